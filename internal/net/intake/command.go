// Package intake stages inbound client commands: it decodes and validates the
// wire payload, then hands the command to the session registry, translating
// registry errors into client-facing reject reasons.
package intake

import (
	"errors"

	server "satlink/server"
	"satlink/server/internal/net/proto"
	"satlink/server/internal/sim"
)

// Reject reasons reported to clients. Stable strings: the trainer UI keys
// operator-facing copy off them.
const (
	RejectInvalidCommand = "invalid_command"
	RejectDuplicate      = "duplicate_command"
	RejectQueueFull      = "queue_full"
	RejectSessionClosed  = "session_closed"
	RejectUnknownSession = "unknown_session"
	RejectInternal       = "internal_error"
)

// Submitter accepts validated commands for a session. The registry satisfies
// this.
type Submitter interface {
	Submit(sessionID, connID, commandID string, payload sim.Command) (string, error)
}

// Staged reports the accepted command's identity.
type Staged struct {
	CommandID string
}

// StageClientCommand decodes a submit message and queues it on the session.
// On refusal it returns the reject reason and whether the client may retry
// the same command.
func StageClientCommand(sub Submitter, sessionID, connID string, msg proto.ClientMessage) (Staged, bool, string) {
	var zero Staged

	command, err := proto.ClientCommand(msg)
	if err != nil {
		return zero, false, RejectInvalidCommand
	}
	if err := command.Validate(); err != nil {
		return zero, false, RejectInvalidCommand
	}

	id, err := sub.Submit(sessionID, connID, msg.CommandID, command)
	if err != nil {
		switch {
		case errors.Is(err, server.ErrInvalidCommand):
			return zero, false, RejectInvalidCommand
		case errors.Is(err, server.ErrDuplicateCommand):
			return zero, false, RejectDuplicate
		case errors.Is(err, server.ErrQueueFull):
			// Transient: the pipeline drains and the client may resubmit.
			return Staged{}, true, RejectQueueFull
		case errors.Is(err, server.ErrInvalidSession):
			return zero, false, RejectSessionClosed
		case errors.Is(err, server.ErrNotFound):
			return zero, false, RejectUnknownSession
		default:
			return zero, false, RejectInternal
		}
	}
	return Staged{CommandID: id}, false, ""
}
