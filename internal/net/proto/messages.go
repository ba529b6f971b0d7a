package proto

import (
	"encoding/json"
	"fmt"

	server "satlink/server"
	"satlink/server/internal/sim"
)

const (
	// Version tracks the wire-protocol revision expected by clients.
	Version = server.ProtocolVersion

	// Type identifiers for outbound websocket payloads.
	typeJoined       = "joined"
	typeLeft         = "left"
	typeSubmitAck    = "submitAck"
	typeSubmitReject = "submitReject"
	typeHeartbeat    = "heartbeat"
	typeError        = "error"
)

// Client message type identifiers.
const (
	TypeJoin      = "join"
	TypeResume    = "resume"
	TypeSubmit    = "submitCommand"
	TypeLeave     = "leave"
	TypeHeartbeat = "heartbeat"
)

// ClientMessage captures an inbound websocket message from the client.
type ClientMessage struct {
	Ver                int             `json:"ver,omitempty"`
	Type               string          `json:"type"`
	SessionID          string          `json:"sessionId,omitempty"`
	CommandID          string          `json:"commandId,omitempty"`
	Command            string          `json:"command,omitempty"`
	Params             json.RawMessage `json:"params,omitempty"`
	LastKnownCommandID string          `json:"lastKnownCommandId,omitempty"`
	SentAt             int64           `json:"sentAt,omitempty"`
}

// DecodeClientMessage converts raw websocket payloads into a structured message.
func DecodeClientMessage(payload []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, err
	}
	if msg.Ver == 0 {
		msg.Ver = Version
	}
	if msg.Ver != Version {
		return msg, fmt.Errorf("unsupported client protocol version %d", msg.Ver)
	}
	return msg, nil
}

// ClientCommand decodes the simulation command carried by a submit message.
func ClientCommand(msg ClientMessage) (sim.Command, error) {
	cmd := sim.Command{Type: sim.CommandType(msg.Command)}
	switch cmd.Type {
	case sim.CommandOrbitalManeuver:
		cmd.Maneuver = &sim.ManeuverParams{}
		return cmd, decodeParams(msg.Params, cmd.Maneuver)
	case sim.CommandAttitudeControl:
		cmd.Attitude = &sim.AttitudeParams{}
		return cmd, decodeParams(msg.Params, cmd.Attitude)
	case sim.CommandCommsConfig:
		cmd.Comms = &sim.CommsParams{}
		return cmd, decodeParams(msg.Params, cmd.Comms)
	case sim.CommandPowerConfig:
		cmd.Power = &sim.PowerParams{}
		return cmd, decodeParams(msg.Params, cmd.Power)
	default:
		return sim.Command{}, fmt.Errorf("unknown command type %q", msg.Command)
	}
}

func decodeParams(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("decoding command parameters: %w", err)
	}
	return nil
}

// Joined is the response to a successful join or resume.
type Joined struct {
	SessionID   string
	Snapshot    server.Snapshot
	CatalogHash string
	Resumed     bool
}

// EncodeJoined renders the join response payload.
func EncodeJoined(msg Joined) ([]byte, error) {
	frame := struct {
		Ver         int             `json:"ver"`
		Type        string          `json:"type"`
		SessionID   string          `json:"sessionId"`
		Snapshot    server.Snapshot `json:"snapshot"`
		CatalogHash string          `json:"catalogHash,omitempty"`
		Resumed     bool            `json:"resumed,omitempty"`
	}{
		Ver:         Version,
		Type:        typeJoined,
		SessionID:   msg.SessionID,
		Snapshot:    msg.Snapshot,
		CatalogHash: msg.CatalogHash,
		Resumed:     msg.Resumed,
	}
	return json.Marshal(frame)
}

// EncodeLeft renders the acknowledgement of a leave request.
func EncodeLeft(sessionID string) ([]byte, error) {
	frame := struct {
		Ver       int    `json:"ver"`
		Type      string `json:"type"`
		SessionID string `json:"sessionId,omitempty"`
	}{
		Ver:       Version,
		Type:      typeLeft,
		SessionID: sessionID,
	}
	return json.Marshal(frame)
}

// SubmitAck acknowledges that a command was accepted into the pipeline.
type SubmitAck struct {
	CommandID string
}

// EncodeSubmitAck renders a command acceptance response.
func EncodeSubmitAck(msg SubmitAck) ([]byte, error) {
	frame := struct {
		Ver       int    `json:"ver"`
		Type      string `json:"type"`
		CommandID string `json:"commandId"`
	}{
		Ver:       Version,
		Type:      typeSubmitAck,
		CommandID: msg.CommandID,
	}
	return json.Marshal(frame)
}

// SubmitReject notifies the client that a command was refused before it
// entered the pipeline.
type SubmitReject struct {
	CommandID string
	Reason    string
	Retry     bool
}

// EncodeSubmitReject renders a command refusal response.
func EncodeSubmitReject(msg SubmitReject) ([]byte, error) {
	frame := struct {
		Ver       int    `json:"ver"`
		Type      string `json:"type"`
		CommandID string `json:"commandId,omitempty"`
		Reason    string `json:"reason"`
		Retry     bool   `json:"retry,omitempty"`
	}{
		Ver:       Version,
		Type:      typeSubmitReject,
		CommandID: msg.CommandID,
		Reason:    msg.Reason,
	}
	if msg.Retry {
		frame.Retry = true
	}
	return json.Marshal(frame)
}

// Heartbeat echoes timing metadata back to the client.
type Heartbeat struct {
	ServerTime int64
	ClientTime int64
	RTTMillis  int64
}

// EncodeHeartbeat renders a heartbeat acknowledgement payload.
func EncodeHeartbeat(msg Heartbeat) ([]byte, error) {
	frame := struct {
		Ver        int    `json:"ver"`
		Type       string `json:"type"`
		ServerTime int64  `json:"serverTime"`
		ClientTime int64  `json:"clientTime,omitempty"`
		RTTMillis  int64  `json:"rtt,omitempty"`
	}{
		Ver:        Version,
		Type:       typeHeartbeat,
		ServerTime: msg.ServerTime,
		ClientTime: msg.ClientTime,
		RTTMillis:  msg.RTTMillis,
	}
	return json.Marshal(frame)
}

// ErrorMessage reports a protocol-level failure on the connection.
type ErrorMessage struct {
	Reason string
}

// EncodeError renders an error payload.
func EncodeError(msg ErrorMessage) ([]byte, error) {
	frame := struct {
		Ver    int    `json:"ver"`
		Type   string `json:"type"`
		Reason string `json:"reason"`
	}{
		Ver:    Version,
		Type:   typeError,
		Reason: msg.Reason,
	}
	return json.Marshal(frame)
}
