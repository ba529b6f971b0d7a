package server

import (
	"time"

	"satlink/server/internal/sim"
	"satlink/server/internal/store"
)

// Status is the session lifecycle state. Transitions only move forward.
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

var statusRank = map[Status]int{
	StatusNotStarted: 0,
	StatusInProgress: 1,
	StatusCompleted:  2,
}

// canAdvanceTo reports whether moving to next preserves monotonic forward
// progress.
func (s Status) canAdvanceTo(next Status) bool {
	cur, ok := statusRank[s]
	if !ok {
		return false
	}
	nxt, ok := statusRank[next]
	if !ok {
		return false
	}
	return nxt > cur
}

// Step is one scenario step; completing a command of the matching type while
// the step is current marks it done.
type Step struct {
	ID      string          `json:"id"`
	Command sim.CommandType `json:"command"`
	Title   string          `json:"title,omitempty"`
}

// Session is the authoritative in-memory record of one user's attempt at one
// scenario. Exactly one instance exists per live session id; only the
// session's run loop touches it after hydration.
type Session struct {
	ID         string
	ScenarioID string
	UserID     string

	Status         Status
	CurrentStep    int
	CompletedSteps []string
	ElapsedSeconds float64
	State          sim.State

	Steps    []Step
	Commands []*Command

	completed map[string]struct{}
	byID      map[string]*Command
}

// sessionFromRecord hydrates a session from its durable checkpoint. Commands
// that were mid-flight when the checkpoint was written are resolved to failed
// with an interrupted result so nothing stays non-terminal across a restart.
func sessionFromRecord(rec *store.Record, now time.Time) *Session {
	s := &Session{
		ID:             rec.SessionID,
		ScenarioID:     rec.ScenarioID,
		UserID:         rec.UserID,
		Status:         Status(rec.Status),
		CurrentStep:    rec.CurrentStep,
		CompletedSteps: append([]string(nil), rec.CompletedSteps...),
		ElapsedSeconds: rec.ElapsedSeconds,
		State:          rec.State,
		completed:      make(map[string]struct{}),
		byID:           make(map[string]*Command),
	}
	if s.Status == "" {
		s.Status = StatusNotStarted
	}
	for _, id := range s.CompletedSteps {
		s.completed[id] = struct{}{}
	}
	for _, step := range rec.Steps {
		s.Steps = append(s.Steps, Step{ID: step.ID, Command: sim.CommandType(step.Command), Title: step.Title})
	}
	for _, cr := range rec.Commands {
		cmd := &Command{
			ID:         cr.ID,
			Type:       sim.CommandType(cr.Type),
			Stage:      Stage(cr.Stage),
			IssuedAt:   cr.IssuedAt,
			StageTimes: map[Stage]time.Time{},
		}
		if cr.Outcome != "" {
			cmd.Result = &Result{Outcome: Outcome(cr.Outcome), Detail: cr.Detail}
		}
		if !cmd.Stage.Terminal() {
			cmd.Stage = StageFailed
			cmd.StageTimes[StageFailed] = now
			cmd.Result = &Result{Outcome: OutcomeInterrupted, Detail: "session interrupted"}
		}
		s.Commands = append(s.Commands, cmd)
		s.byID[cmd.ID] = cmd
	}
	return s
}

// record serializes the session for a checkpoint write.
func (s *Session) record(now time.Time) *store.Record {
	rec := &store.Record{
		SessionID:      s.ID,
		ScenarioID:     s.ScenarioID,
		UserID:         s.UserID,
		Status:         string(s.Status),
		CurrentStep:    s.CurrentStep,
		CompletedSteps: append([]string(nil), s.CompletedSteps...),
		ElapsedSeconds: s.ElapsedSeconds,
		State:          s.State,
		UpdatedAt:      now,
	}
	for _, step := range s.Steps {
		rec.Steps = append(rec.Steps, store.StepRecord{ID: step.ID, Command: string(step.Command), Title: step.Title})
	}
	for _, cmd := range s.Commands {
		cr := store.CommandRecord{
			ID:       cmd.ID,
			Type:     string(cmd.Type),
			Stage:    string(cmd.Stage),
			IssuedAt: cmd.IssuedAt,
		}
		if cmd.Result != nil {
			cr.Outcome = string(cmd.Result.Outcome)
			cr.Detail = cmd.Result.Detail
		}
		rec.Commands = append(rec.Commands, cr)
	}
	return rec
}

// markStep records progress when a command of the current step's type
// completes. It returns the completed step id and whether the scenario is
// finished.
func (s *Session) markStep(cmdType sim.CommandType) (string, bool) {
	if s.CurrentStep >= len(s.Steps) {
		return "", false
	}
	step := s.Steps[s.CurrentStep]
	if step.Command != cmdType {
		return "", false
	}
	if _, done := s.completed[step.ID]; !done {
		s.completed[step.ID] = struct{}{}
		s.CompletedSteps = append(s.CompletedSteps, step.ID)
	}
	s.CurrentStep++
	return step.ID, s.CurrentStep >= len(s.Steps)
}

// Snapshot is the client-facing view of the authoritative session state.
type Snapshot struct {
	SessionID      string        `json:"sessionId"`
	ScenarioID     string        `json:"scenarioId"`
	Status         Status        `json:"status"`
	CurrentStep    int           `json:"currentStep"`
	CompletedSteps []string      `json:"completedSteps"`
	ElapsedSeconds float64       `json:"elapsedSeconds"`
	State          sim.State     `json:"state"`
	Steps          []Step        `json:"steps,omitempty"`
	Commands       []CommandView `json:"commands,omitempty"`
	ReadOnly       bool          `json:"readOnly,omitempty"`
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		SessionID:      s.ID,
		ScenarioID:     s.ScenarioID,
		Status:         s.Status,
		CurrentStep:    s.CurrentStep,
		CompletedSteps: append([]string(nil), s.CompletedSteps...),
		ElapsedSeconds: s.ElapsedSeconds,
		State:          s.State,
		Steps:          append([]Step(nil), s.Steps...),
		ReadOnly:       s.Status == StatusCompleted,
	}
	for _, cmd := range s.Commands {
		snap.Commands = append(snap.Commands, cmd.view())
	}
	return snap
}
