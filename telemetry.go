package server

import "sync/atomic"

// TelemetryCounters tracks protocol health for the diagnostics endpoint.
type TelemetryCounters struct {
	broadcasts         atomic.Uint64
	broadcastBytes     atomic.Uint64
	stalledDisconnects atomic.Uint64
	commandsCompleted  atomic.Uint64
	commandsFailed     atomic.Uint64
	commandTimeouts    atomic.Uint64
	checkpointWrites   atomic.Uint64
	checkpointFailures atomic.Uint64
	sessionsHydrated   atomic.Uint64
	sessionsEvicted    atomic.Uint64
}

// TelemetrySnapshot is the JSON shape served by /diagnostics.
type TelemetrySnapshot struct {
	Broadcasts         uint64 `json:"broadcasts"`
	BroadcastBytes     uint64 `json:"broadcastBytes"`
	StalledDisconnects uint64 `json:"stalledDisconnects"`
	CommandsCompleted  uint64 `json:"commandsCompleted"`
	CommandsFailed     uint64 `json:"commandsFailed"`
	CommandTimeouts    uint64 `json:"commandTimeouts"`
	CheckpointWrites   uint64 `json:"checkpointWrites"`
	CheckpointFailures uint64 `json:"checkpointFailures"`
	SessionsHydrated   uint64 `json:"sessionsHydrated"`
	SessionsEvicted    uint64 `json:"sessionsEvicted"`
}

func (t *TelemetryCounters) recordBroadcast(bytes, fanout int) {
	if bytes < 0 {
		bytes = 0
	}
	t.broadcasts.Add(1)
	t.broadcastBytes.Add(uint64(bytes * fanout))
}

func (t *TelemetryCounters) recordStalledDisconnect() {
	t.stalledDisconnects.Add(1)
}

func (t *TelemetryCounters) recordCommandTerminal(stage Stage, outcome Outcome) {
	switch stage {
	case StageCompleted:
		t.commandsCompleted.Add(1)
	case StageFailed:
		t.commandsFailed.Add(1)
		if outcome == OutcomeTimeout {
			t.commandTimeouts.Add(1)
		}
	}
}

func (t *TelemetryCounters) recordCheckpoint(err error) {
	if err != nil {
		t.checkpointFailures.Add(1)
		return
	}
	t.checkpointWrites.Add(1)
}

// Snapshot copies the counters for serialization.
func (t *TelemetryCounters) Snapshot() TelemetrySnapshot {
	return TelemetrySnapshot{
		Broadcasts:         t.broadcasts.Load(),
		BroadcastBytes:     t.broadcastBytes.Load(),
		StalledDisconnects: t.stalledDisconnects.Load(),
		CommandsCompleted:  t.commandsCompleted.Load(),
		CommandsFailed:     t.commandsFailed.Load(),
		CommandTimeouts:    t.commandTimeouts.Load(),
		CheckpointWrites:   t.checkpointWrites.Load(),
		CheckpointFailures: t.checkpointFailures.Load(),
		SessionsHydrated:   t.sessionsHydrated.Load(),
		SessionsEvicted:    t.sessionsEvicted.Load(),
	}
}
