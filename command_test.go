package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satlink/server/internal/sim"
)

func newQueuedCommand() *Command {
	now := time.Now()
	return &Command{
		ID:         "c1",
		Type:       sim.CommandAttitudeControl,
		Stage:      StageQueued,
		StageTimes: map[Stage]time.Time{StageQueued: now},
		IssuedAt:   now,
	}
}

func TestAdvanceFollowsSuccessPath(t *testing.T) {
	cmd := newQueuedCommand()
	for _, next := range []Stage{StageValidating, StageTransmitting, StageAwaitingAck, StageExecuting, StageCompleted} {
		require.NoError(t, cmd.advanceTo(next, time.Now()))
		assert.Equal(t, next, cmd.Stage)
		assert.Contains(t, cmd.StageTimes, next)
	}
	assert.True(t, cmd.Stage.Terminal())
}

func TestAdvanceRejectsSkippedStage(t *testing.T) {
	cmd := newQueuedCommand()
	assert.Error(t, cmd.advanceTo(StageTransmitting, time.Now()))
	assert.Equal(t, StageQueued, cmd.Stage, "failed transition must not move the command")
}

func TestAdvanceRejectsRevisit(t *testing.T) {
	cmd := newQueuedCommand()
	require.NoError(t, cmd.advanceTo(StageValidating, time.Now()))
	assert.Error(t, cmd.advanceTo(StageValidating, time.Now()))
}

func TestTerminalStagesRejectAllTransitions(t *testing.T) {
	completed := newQueuedCommand()
	for _, next := range []Stage{StageValidating, StageTransmitting, StageAwaitingAck, StageExecuting, StageCompleted} {
		require.NoError(t, completed.advanceTo(next, time.Now()))
	}
	assert.Error(t, completed.advanceTo(StageValidating, time.Now()))
	assert.Error(t, completed.failWith(Result{Outcome: OutcomeFault}, time.Now()))

	failed := newQueuedCommand()
	require.NoError(t, failed.failWith(Result{Outcome: OutcomeRejected}, time.Now()))
	assert.Error(t, failed.advanceTo(StageValidating, time.Now()))
	assert.Error(t, failed.failWith(Result{Outcome: OutcomeTimeout}, time.Now()))
	assert.Equal(t, OutcomeRejected, failed.Result.Outcome, "first terminal result wins")
}

func TestFailWithFromAnyNonTerminalStage(t *testing.T) {
	path := []Stage{StageValidating, StageTransmitting, StageAwaitingAck, StageExecuting}
	for i := range path {
		cmd := newQueuedCommand()
		for _, next := range path[:i] {
			require.NoError(t, cmd.advanceTo(next, time.Now()))
		}
		now := time.Now()
		require.NoError(t, cmd.failWith(Result{Outcome: OutcomeTimeout, Detail: "deadline"}, now))
		assert.Equal(t, StageFailed, cmd.Stage)
		assert.Equal(t, now, cmd.StageTimes[StageFailed])
		require.NotNil(t, cmd.Result)
		assert.Equal(t, "deadline", cmd.Result.Detail)
	}
}

func TestCompleteOnlyFromExecuting(t *testing.T) {
	cmd := newQueuedCommand()
	assert.Error(t, cmd.complete(Result{Outcome: OutcomeSuccess}, time.Now()))

	for _, next := range []Stage{StageValidating, StageTransmitting, StageAwaitingAck, StageExecuting} {
		require.NoError(t, cmd.advanceTo(next, time.Now()))
	}
	require.NoError(t, cmd.complete(Result{Outcome: OutcomeSuccess, CompletedStep: "step-1"}, time.Now()))
	assert.Equal(t, StageCompleted, cmd.Stage)
	assert.Equal(t, "step-1", cmd.Result.CompletedStep)
}

func TestViewOmitsPayload(t *testing.T) {
	cmd := newQueuedCommand()
	cmd.Payload = sim.Command{Type: sim.CommandAttitudeControl, Attitude: &sim.AttitudeParams{Mode: sim.ModeNadir}}
	v := cmd.view()
	assert.Equal(t, cmd.ID, v.ID)
	assert.Equal(t, cmd.Stage, v.Stage)
	assert.Nil(t, v.Result)
}
