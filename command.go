package server

import (
	"fmt"
	"time"

	"satlink/server/internal/sim"
)

// Stage identifies one step of the command pipeline state machine.
type Stage string

const (
	StageQueued       Stage = "queued"
	StageValidating   Stage = "validating"
	StageTransmitting Stage = "transmitting"
	StageAwaitingAck  Stage = "awaiting-ack"
	StageExecuting    Stage = "executing"
	StageCompleted    Stage = "completed"
	StageFailed       Stage = "failed"
)

// stageSuccessor maps each non-terminal stage to the next one on the success
// path. failed is reachable from every non-terminal stage instead.
var stageSuccessor = map[Stage]Stage{
	StageQueued:       StageValidating,
	StageValidating:   StageTransmitting,
	StageTransmitting: StageAwaitingAck,
	StageAwaitingAck:  StageExecuting,
	StageExecuting:    StageCompleted,
}

// Terminal reports whether no further transitions are accepted.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Outcome classifies a terminal command result.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeRejected    Outcome = "rejected"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeFault       Outcome = "fault"
	OutcomeInterrupted Outcome = "interrupted"
)

// Result is the terminal payload attached at completed or failed.
type Result struct {
	Outcome       Outcome     `json:"outcome"`
	Detail        string      `json:"detail,omitempty"`
	CompletedStep string      `json:"completedStep,omitempty"`
	Sim           *sim.Result `json:"sim,omitempty"`
}

// Command is one user-issued instruction moving through the pipeline. Only
// the owning session's run loop mutates it after submission.
type Command struct {
	ID          string              `json:"id"`
	Type        sim.CommandType     `json:"type"`
	Payload     sim.Command         `json:"payload"`
	Stage       Stage               `json:"stage"`
	StageTimes  map[Stage]time.Time `json:"stageTimes"`
	IssuedAt    time.Time           `json:"issuedAt"`
	Result      *Result             `json:"result,omitempty"`
	SubmittedBy string              `json:"-"`
}

// advanceTo moves the command to the next stage on the success path. Skipping
// or revisiting a stage is a programming error and is rejected.
func (c *Command) advanceTo(stage Stage, now time.Time) error {
	if c.Stage.Terminal() {
		return fmt.Errorf("command %s already terminal at %s", c.ID, c.Stage)
	}
	if stageSuccessor[c.Stage] != stage {
		return fmt.Errorf("command %s cannot move %s -> %s", c.ID, c.Stage, stage)
	}
	c.Stage = stage
	c.StageTimes[stage] = now
	return nil
}

// failWith moves the command to failed from any non-terminal stage.
func (c *Command) failWith(result Result, now time.Time) error {
	if c.Stage.Terminal() {
		return fmt.Errorf("command %s already terminal at %s", c.ID, c.Stage)
	}
	c.Stage = StageFailed
	c.StageTimes[StageFailed] = now
	c.Result = &result
	return nil
}

// complete moves the command from executing to completed with a result.
func (c *Command) complete(result Result, now time.Time) error {
	if err := c.advanceTo(StageCompleted, now); err != nil {
		return err
	}
	c.Result = &result
	return nil
}

// CommandView is the command-log entry exposed in snapshots.
type CommandView struct {
	ID       string          `json:"id"`
	Type     sim.CommandType `json:"type"`
	Stage    Stage           `json:"stage"`
	IssuedAt time.Time       `json:"issuedAt"`
	Result   *Result         `json:"result,omitempty"`
}

func (c *Command) view() CommandView {
	return CommandView{
		ID:       c.ID,
		Type:     c.Type,
		Stage:    c.Stage,
		IssuedAt: c.IssuedAt,
		Result:   c.Result,
	}
}
