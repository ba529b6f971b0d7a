// Package postgres persists session checkpoints in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"satlink/server/internal/store"
)

// Store implements store.Store on top of database/sql with the pq driver.
type Store struct {
	db *sql.DB
}

// Open connects to the database and bootstraps the checkpoint table.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	s := New(db)
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing connection pool without schema bootstrap.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	query := `CREATE TABLE IF NOT EXISTS session_checkpoints (
		session_id VARCHAR(64) PRIMARY KEY,
		scenario_id VARCHAR(64) NOT NULL,
		user_id VARCHAR(64) NOT NULL,
		status VARCHAR(16) NOT NULL,
		current_step INTEGER NOT NULL DEFAULT 0,
		completed_steps JSONB NOT NULL DEFAULT '[]',
		elapsed_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
		state JSONB NOT NULL,
		steps JSONB NOT NULL DEFAULT '[]',
		command_log JSONB NOT NULL DEFAULT '[]',
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("creating checkpoint table: %w", err)
	}
	return nil
}

// LoadCheckpoint fetches the durable record for a session.
func (s *Store) LoadCheckpoint(ctx context.Context, sessionID string) (*store.Record, error) {
	query := `
		SELECT session_id, scenario_id, user_id, status, current_step,
		       completed_steps, elapsed_seconds, state, steps, command_log, updated_at
		FROM session_checkpoints
		WHERE session_id = $1
	`
	row := s.db.QueryRowContext(ctx, query, sessionID)

	var record store.Record
	var completed, state, steps, commands []byte
	err := row.Scan(
		&record.SessionID, &record.ScenarioID, &record.UserID, &record.Status,
		&record.CurrentStep, &completed, &record.ElapsedSeconds, &state,
		&steps, &commands, &record.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}

	if err := json.Unmarshal(completed, &record.CompletedSteps); err != nil {
		return nil, fmt.Errorf("decoding completed steps: %w", err)
	}
	if err := json.Unmarshal(state, &record.State); err != nil {
		return nil, fmt.Errorf("decoding state: %w", err)
	}
	if err := json.Unmarshal(steps, &record.Steps); err != nil {
		return nil, fmt.Errorf("decoding steps: %w", err)
	}
	if err := json.Unmarshal(commands, &record.Commands); err != nil {
		return nil, fmt.Errorf("decoding command log: %w", err)
	}
	return &record, nil
}

// SaveCheckpoint upserts the record keyed by session id.
func (s *Store) SaveCheckpoint(ctx context.Context, record *store.Record) error {
	completed, err := json.Marshal(record.CompletedSteps)
	if err != nil {
		return fmt.Errorf("encoding completed steps: %w", err)
	}
	state, err := json.Marshal(record.State)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	steps, err := json.Marshal(record.Steps)
	if err != nil {
		return fmt.Errorf("encoding steps: %w", err)
	}
	commands, err := json.Marshal(record.Commands)
	if err != nil {
		return fmt.Errorf("encoding command log: %w", err)
	}

	query := `
		INSERT INTO session_checkpoints
			(session_id, scenario_id, user_id, status, current_step,
			 completed_steps, elapsed_seconds, state, steps, command_log, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (session_id) DO UPDATE SET
			status = EXCLUDED.status,
			current_step = EXCLUDED.current_step,
			completed_steps = EXCLUDED.completed_steps,
			elapsed_seconds = EXCLUDED.elapsed_seconds,
			state = EXCLUDED.state,
			steps = EXCLUDED.steps,
			command_log = EXCLUDED.command_log,
			updated_at = NOW()
	`
	_, err = s.db.ExecContext(ctx, query,
		record.SessionID, record.ScenarioID, record.UserID, record.Status,
		record.CurrentStep, completed, record.ElapsedSeconds, state, steps, commands,
	)
	if err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	return nil
}
