package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satlink/server/internal/sim"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.LoadCheckpoint(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	record := &Record{
		SessionID:      "s1",
		ScenarioID:     "leo-basics",
		UserID:         "u1",
		Status:         "IN_PROGRESS",
		CurrentStep:    1,
		CompletedSteps: []string{"step-1"},
		ElapsedSeconds: 42.5,
		State:          sim.DefaultState(),
	}
	require.NoError(t, s.SaveCheckpoint(ctx, record))

	loaded, err := s.LoadCheckpoint(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, record.ScenarioID, loaded.ScenarioID)
	assert.Equal(t, record.CompletedSteps, loaded.CompletedSteps)
	assert.False(t, loaded.UpdatedAt.IsZero(), "save stamps UpdatedAt")
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	record := &Record{SessionID: "s1", CompletedSteps: []string{"a"}}
	require.NoError(t, s.SaveCheckpoint(ctx, record))

	loaded, err := s.LoadCheckpoint(ctx, "s1")
	require.NoError(t, err)
	loaded.CompletedSteps[0] = "mutated"

	again, err := s.LoadCheckpoint(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, again.CompletedSteps)
}

func TestMemoryStoreInjectedFailure(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	boom := errors.New("disk on fire")

	s.SetSaveError(boom)
	assert.ErrorIs(t, s.SaveCheckpoint(ctx, &Record{SessionID: "s1"}), boom)

	s.SetSaveError(nil)
	assert.NoError(t, s.SaveCheckpoint(ctx, &Record{SessionID: "s1"}))
}
