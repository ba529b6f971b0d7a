package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps checkpoints in a process-local map.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record

	// FailSaves forces SaveCheckpoint to report an error; tests use it to
	// exercise the registry's retry path.
	FailSaves bool
	failErr   error
}

// NewMemoryStore creates an empty in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Seed inserts a checkpoint directly, bypassing the save bookkeeping.
func (s *MemoryStore) Seed(record *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.SessionID] = record.Clone()
}

// SetSaveError makes subsequent saves fail with err until reset with nil.
func (s *MemoryStore) SetSaveError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FailSaves = err != nil
	s.failErr = err
}

// LoadCheckpoint returns a copy of the stored record.
func (s *MemoryStore) LoadCheckpoint(_ context.Context, sessionID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return record.Clone(), nil
}

// SaveCheckpoint stores a copy of the record.
func (s *MemoryStore) SaveCheckpoint(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailSaves {
		return s.failErr
	}
	clone := record.Clone()
	if clone.UpdatedAt.IsZero() {
		clone.UpdatedAt = time.Now()
	}
	s.records[record.SessionID] = clone
	return nil
}
