package server

import "errors"

// Error taxonomy surfaced by the registry and the command pipeline. Anything
// that would leave a command non-terminal is converted to a terminal failed
// status instead of an error.
var (
	// ErrUnauthorized reports that the caller does not own the session.
	ErrUnauthorized = errors.New("unauthorized for session")

	// ErrNotFound reports that the session exists neither in memory nor in
	// durable storage.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidSession reports a submit against a session that is not live
	// or already completed.
	ErrInvalidSession = errors.New("session not accepting commands")

	// ErrInvalidCommand reports structural validation failure; the command
	// never enters the pipeline.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrDuplicateCommand reports reuse of a command id within a session.
	ErrDuplicateCommand = errors.New("duplicate command id")

	// ErrQueueFull reports that the session's pending command queue is at
	// capacity; the client may retry.
	ErrQueueFull = errors.New("command queue full")

	// ErrRegistryClosed reports an operation against a registry that has
	// been shut down.
	ErrRegistryClosed = errors.New("registry closed")
)
