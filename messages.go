package server

import (
	"encoding/json"
	"log/slog"
	"time"
)

// ProtocolVersion is stamped on every server-to-client payload.
const ProtocolVersion = 1

// Server-push message types.
const (
	MessageStateUpdate   = "stateUpdate"
	MessageCommandStatus = "commandStatus"
)

// StateUpdateMessage carries the authoritative snapshot to every room member.
type StateUpdateMessage struct {
	Ver        int      `json:"ver"`
	Type       string   `json:"type"`
	SessionID  string   `json:"sessionId"`
	Snapshot   Snapshot `json:"snapshot"`
	ServerTime int64    `json:"serverTime"`
}

// CommandStatusMessage reports one pipeline stage transition to the room. The
// result is present only at a terminal stage.
type CommandStatusMessage struct {
	Ver       int     `json:"ver"`
	Type      string  `json:"type"`
	SessionID string  `json:"sessionId"`
	CommandID string  `json:"commandId"`
	Stage     Stage   `json:"stage"`
	Timestamp int64   `json:"timestamp"`
	Result    *Result `json:"result,omitempty"`
}

func newStateUpdate(sessionID string, snap Snapshot, now time.Time) StateUpdateMessage {
	return StateUpdateMessage{
		Ver:        ProtocolVersion,
		Type:       MessageStateUpdate,
		SessionID:  sessionID,
		Snapshot:   snap,
		ServerTime: now.UnixMilli(),
	}
}

func newCommandStatus(sessionID string, cmd *Command, now time.Time) CommandStatusMessage {
	msg := CommandStatusMessage{
		Ver:       ProtocolVersion,
		Type:      MessageCommandStatus,
		SessionID: sessionID,
		CommandID: cmd.ID,
		Stage:     cmd.Stage,
		Timestamp: now.UnixMilli(),
	}
	if cmd.Stage.Terminal() {
		msg.Result = cmd.Result
	}
	return msg
}

// marshalMessage encodes a payload, logging instead of failing: a broadcast
// that cannot be encoded is dropped, never fatal to the session.
func marshalMessage(logger *slog.Logger, payload any) ([]byte, bool) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal broadcast payload", "error", err)
		return nil, false
	}
	return data, true
}
