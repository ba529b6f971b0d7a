package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satlink/server/internal/sim"
	"satlink/server/internal/store"
)

func TestStatusOnlyAdvancesForward(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusNotStarted, StatusInProgress, true},
		{StatusNotStarted, StatusCompleted, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusNotStarted, false},
		{StatusCompleted, StatusInProgress, false},
		{StatusCompleted, StatusNotStarted, false},
		{StatusInProgress, StatusInProgress, false},
		{Status("bogus"), StatusInProgress, false},
		{StatusNotStarted, Status("bogus"), false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.canAdvanceTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestHydrationResolvesInFlightCommands(t *testing.T) {
	now := time.Now()
	rec := &store.Record{
		SessionID:  "s1",
		ScenarioID: "leo-basics",
		UserID:     "u1",
		Status:     string(StatusInProgress),
		State:      sim.DefaultState(),
		Commands: []store.CommandRecord{
			{ID: "c1", Type: string(sim.CommandAttitudeControl), Stage: string(StageCompleted), Outcome: string(OutcomeSuccess)},
			{ID: "c2", Type: string(sim.CommandOrbitalManeuver), Stage: string(StageAwaitingAck)},
			{ID: "c3", Type: string(sim.CommandPowerConfig), Stage: string(StageQueued)},
		},
	}

	s := sessionFromRecord(rec, now)

	require.Len(t, s.Commands, 3)
	assert.Equal(t, StageCompleted, s.Commands[0].Stage)
	assert.Equal(t, OutcomeSuccess, s.Commands[0].Result.Outcome)
	for _, cmd := range s.Commands[1:] {
		assert.Equal(t, StageFailed, cmd.Stage, "command %s", cmd.ID)
		require.NotNil(t, cmd.Result)
		assert.Equal(t, OutcomeInterrupted, cmd.Result.Outcome)
	}
	assert.Same(t, s.Commands[1], s.byID["c2"])
}

func TestHydrationDefaultsEmptyStatus(t *testing.T) {
	s := sessionFromRecord(&store.Record{SessionID: "s1", State: sim.DefaultState()}, time.Now())
	assert.Equal(t, StatusNotStarted, s.Status)
}

func TestRecordRoundTrip(t *testing.T) {
	now := time.Now()
	rec := &store.Record{
		SessionID:      "s1",
		ScenarioID:     "leo-basics",
		UserID:         "u1",
		Status:         string(StatusInProgress),
		CurrentStep:    1,
		CompletedSteps: []string{"step-1"},
		ElapsedSeconds: 42.5,
		State:          sim.DefaultState(),
		Steps: []store.StepRecord{
			{ID: "step-1", Command: string(sim.CommandAttitudeControl), Title: "Point at the sun"},
			{ID: "step-2", Command: string(sim.CommandCommsConfig)},
		},
		Commands: []store.CommandRecord{
			{ID: "c1", Type: string(sim.CommandAttitudeControl), Stage: string(StageCompleted), Outcome: string(OutcomeSuccess), IssuedAt: now.Add(-time.Minute)},
		},
	}

	s := sessionFromRecord(rec, now)
	out := s.record(now)

	assert.Equal(t, rec.SessionID, out.SessionID)
	assert.Equal(t, rec.Status, out.Status)
	assert.Equal(t, rec.CurrentStep, out.CurrentStep)
	assert.Equal(t, rec.CompletedSteps, out.CompletedSteps)
	assert.Equal(t, rec.ElapsedSeconds, out.ElapsedSeconds)
	assert.Equal(t, rec.Steps, out.Steps)
	require.Len(t, out.Commands, 1)
	assert.Equal(t, rec.Commands[0].ID, out.Commands[0].ID)
	assert.Equal(t, rec.Commands[0].Stage, out.Commands[0].Stage)
	assert.Equal(t, rec.Commands[0].Outcome, out.Commands[0].Outcome)
}

func TestMarkStepAdvancesOnMatchingType(t *testing.T) {
	s := sessionFromRecord(&store.Record{
		SessionID: "s1",
		State:     sim.DefaultState(),
		Steps: []store.StepRecord{
			{ID: "step-1", Command: string(sim.CommandAttitudeControl)},
			{ID: "step-2", Command: string(sim.CommandCommsConfig)},
		},
	}, time.Now())

	// Wrong type leaves the step current.
	id, finished := s.markStep(sim.CommandCommsConfig)
	assert.Empty(t, id)
	assert.False(t, finished)
	assert.Equal(t, 0, s.CurrentStep)

	id, finished = s.markStep(sim.CommandAttitudeControl)
	assert.Equal(t, "step-1", id)
	assert.False(t, finished)
	assert.Equal(t, []string{"step-1"}, s.CompletedSteps)

	id, finished = s.markStep(sim.CommandCommsConfig)
	assert.Equal(t, "step-2", id)
	assert.True(t, finished)

	// Past the last step nothing more is marked.
	id, finished = s.markStep(sim.CommandAttitudeControl)
	assert.Empty(t, id)
	assert.False(t, finished)
}

func TestSnapshotIsReadOnlyWhenCompleted(t *testing.T) {
	s := sessionFromRecord(&store.Record{
		SessionID: "s1",
		Status:    string(StatusCompleted),
		State:     sim.DefaultState(),
	}, time.Now())
	assert.True(t, s.snapshot().ReadOnly)

	s.Status = StatusInProgress
	assert.False(t, s.snapshot().ReadOnly)
}

func TestSnapshotCopiesAreIndependent(t *testing.T) {
	s := sessionFromRecord(&store.Record{
		SessionID:      "s1",
		Status:         string(StatusInProgress),
		CompletedSteps: []string{"step-1"},
		State:          sim.DefaultState(),
	}, time.Now())

	snap := s.snapshot()
	snap.CompletedSteps[0] = "mutated"
	assert.Equal(t, []string{"step-1"}, s.CompletedSteps)
}
