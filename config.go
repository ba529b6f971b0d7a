package server

import "time"

// Config tunes the registry, the per-session run loops, and the command
// pipeline stage timing. Zero values are replaced by defaults.
type Config struct {
	// TickInterval is the simulation tick cadence per live session.
	TickInterval time.Duration

	// AutosaveInterval is the wall-clock checkpoint cadence while a session
	// is in progress. Failed writes are retried on the next interval.
	AutosaveInterval time.Duration

	// IdleEviction is how long a session may sit without any connected
	// client before it is checkpointed and dropped from memory.
	IdleEviction time.Duration

	// TransmitDelay simulates the uplink transmission time per command.
	TransmitDelay time.Duration

	// AckDelay simulates the round trip until the spacecraft acknowledges a
	// transmitted command. No ack arrives while the link is degraded.
	AckDelay time.Duration

	// AckTimeout bounds the awaiting-ack stage; past it the command fails
	// with a timeout result.
	AckTimeout time.Duration

	// ExecDelay simulates on-board execution time.
	ExecDelay time.Duration

	// ExecTimeout bounds the executing stage.
	ExecTimeout time.Duration

	// SaveTimeout bounds one checkpoint write.
	SaveTimeout time.Duration

	// CommandQueueLimit caps pending commands per session.
	CommandQueueLimit int

	// SendBuffer is the per-connection outbound message buffer. A connection
	// that overflows it is treated as stalled and disconnected.
	SendBuffer int
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		TickInterval:      time.Second,
		AutosaveInterval:  30 * time.Second,
		IdleEviction:      2 * time.Minute,
		TransmitDelay:     150 * time.Millisecond,
		AckDelay:          400 * time.Millisecond,
		AckTimeout:        5 * time.Second,
		ExecDelay:         250 * time.Millisecond,
		ExecTimeout:       5 * time.Second,
		SaveTimeout:       5 * time.Second,
		CommandQueueLimit: 16,
		SendBuffer:        32,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	if c.AutosaveInterval <= 0 {
		c.AutosaveInterval = def.AutosaveInterval
	}
	if c.IdleEviction <= 0 {
		c.IdleEviction = def.IdleEviction
	}
	if c.TransmitDelay <= 0 {
		c.TransmitDelay = def.TransmitDelay
	}
	if c.AckDelay <= 0 {
		c.AckDelay = def.AckDelay
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = def.AckTimeout
	}
	if c.ExecDelay <= 0 {
		c.ExecDelay = def.ExecDelay
	}
	if c.ExecTimeout <= 0 {
		c.ExecTimeout = def.ExecTimeout
	}
	if c.SaveTimeout <= 0 {
		c.SaveTimeout = def.SaveTimeout
	}
	if c.CommandQueueLimit <= 0 {
		c.CommandQueueLimit = def.CommandQueueLimit
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = def.SendBuffer
	}
	return c
}
