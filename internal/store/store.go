// Package store defines the durable checkpoint interface consumed by the
// session registry, plus an in-memory implementation for tests and
// single-process deployments. The Postgres implementation lives in the
// postgres subpackage.
package store

import (
	"context"
	"errors"
	"time"

	"satlink/server/internal/sim"
)

// ErrNotFound reports that no checkpoint exists for the requested session.
var ErrNotFound = errors.New("checkpoint not found")

// StepRecord is one scenario step as persisted with the checkpoint. The step
// is satisfied by completing a command of the recorded type.
type StepRecord struct {
	ID      string `json:"id"`
	Command string `json:"command"`
	Title   string `json:"title,omitempty"`
}

// CommandRecord is one command-log entry with its terminal status.
type CommandRecord struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Stage    string    `json:"stage"`
	Outcome  string    `json:"outcome,omitempty"`
	Detail   string    `json:"detail,omitempty"`
	IssuedAt time.Time `json:"issuedAt"`
}

// Record is a point-in-time serialization of session progress sufficient to
// resume: the fields the synchronization core reads and writes, nothing more.
type Record struct {
	SessionID      string          `json:"sessionId"`
	ScenarioID     string          `json:"scenarioId"`
	UserID         string          `json:"userId"`
	Status         string          `json:"status"`
	CurrentStep    int             `json:"currentStep"`
	CompletedSteps []string        `json:"completedSteps"`
	ElapsedSeconds float64         `json:"elapsedSeconds"`
	State          sim.State       `json:"state"`
	Steps          []StepRecord    `json:"steps"`
	Commands       []CommandRecord `json:"commands"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.CompletedSteps = append([]string(nil), r.CompletedSteps...)
	out.Steps = append([]StepRecord(nil), r.Steps...)
	out.Commands = append([]CommandRecord(nil), r.Commands...)
	return &out
}

// Store is the persistence collaborator. SaveCheckpoint is best-effort from
// the caller's perspective: the registry retries failures on its own schedule
// and never surfaces them to clients.
type Store interface {
	LoadCheckpoint(ctx context.Context, sessionID string) (*Record, error)
	SaveCheckpoint(ctx context.Context, record *Record) error
}
