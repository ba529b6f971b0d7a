// Package ws serves the realtime websocket endpoint: join, resume, command
// submission, and heartbeats. State updates and command status events are
// produced by the registry and fan out through the subscriber send queue.
package ws

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	server "satlink/server"
	"satlink/server/internal/net/intake"
	"satlink/server/internal/net/proto"
)

// TokenVerifier validates a bearer token and returns the operator id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

type HandlerConfig struct {
	Logger      *slog.Logger
	SendBuffer  int
	CatalogHash string
}

type Handler struct {
	registry    *server.Registry
	verifier    TokenVerifier
	logger      *slog.Logger
	sendBuffer  int
	catalogHash string
	upgrader    websocket.Upgrader
}

func NewHandler(registry *server.Registry, verifier TokenVerifier, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	buffer := cfg.SendBuffer
	if buffer <= 0 {
		buffer = 32
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return &Handler{
		registry:    registry,
		verifier:    verifier,
		logger:      logger,
		sendBuffer:  buffer,
		catalogHash: cfg.CatalogHash,
		upgrader:    upgrader,
	}
}

func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	userID, err := h.verifier.Verify(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "user", userID, "error", err)
		return
	}

	connID := uuid.NewString()
	sub := newSubscriber(connID, conn, h.sendBuffer, h.logger)
	h.logger.Info("connection opened", "connection", connID, "user", userID)

	defer func() {
		h.registry.Leave(connID)
		sub.Close()
		h.logger.Info("connection closed", "connection", connID, "user", userID)
	}()

	// sessionID tracks the room this connection currently observes.
	var sessionID string

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		msg, err := proto.DecodeClientMessage(payload)
		if err != nil {
			h.logger.Debug("discarding malformed message", "connection", connID, "error", err)
			h.sendError(sub, err.Error())
			continue
		}

		switch msg.Type {
		case proto.TypeJoin, proto.TypeResume:
			if msg.SessionID == "" {
				h.sendError(sub, "missing sessionId")
				continue
			}
			var snap server.Snapshot
			resumed := msg.Type == proto.TypeResume
			if resumed {
				snap, err = h.registry.Resume(r.Context(), sub, userID, msg.SessionID, msg.LastKnownCommandID)
			} else {
				snap, err = h.registry.Join(r.Context(), sub, userID, msg.SessionID)
			}
			if err != nil {
				h.logger.Info("join refused", "connection", connID, "session", msg.SessionID, "error", err)
				h.sendError(sub, joinRefusalReason(err))
				continue
			}
			sessionID = msg.SessionID
			data, err := proto.EncodeJoined(proto.Joined{
				SessionID:   sessionID,
				Snapshot:    snap,
				CatalogHash: h.catalogHash,
				Resumed:     resumed,
			})
			if err != nil {
				h.logger.Error("failed to encode join response", "connection", connID, "error", err)
				continue
			}
			sub.Send(data)

		case proto.TypeSubmit:
			if sessionID == "" {
				h.sendReject(sub, msg.CommandID, intake.RejectUnknownSession, false)
				continue
			}
			staged, retry, reason := intake.StageClientCommand(h.registry, sessionID, connID, msg)
			if reason != "" {
				h.sendReject(sub, msg.CommandID, reason, retry)
				continue
			}
			if data, err := proto.EncodeSubmitAck(proto.SubmitAck{CommandID: staged.CommandID}); err == nil {
				sub.Send(data)
			}

		case proto.TypeLeave:
			h.registry.Leave(connID)
			if data, err := proto.EncodeLeft(sessionID); err == nil {
				sub.Send(data)
			}
			sessionID = ""

		case proto.TypeHeartbeat:
			now := time.Now().UnixMilli()
			var rtt int64
			if msg.SentAt > 0 && now >= msg.SentAt {
				rtt = now - msg.SentAt
			}
			data, err := proto.EncodeHeartbeat(proto.Heartbeat{
				ServerTime: now,
				ClientTime: msg.SentAt,
				RTTMillis:  rtt,
			})
			if err != nil {
				continue
			}
			sub.Send(data)

		default:
			h.logger.Debug("unknown message type", "connection", connID, "type", msg.Type)
			h.sendError(sub, "unknown message type")
		}
	}
}

func (h *Handler) sendError(sub *subscriber, reason string) {
	if data, err := proto.EncodeError(proto.ErrorMessage{Reason: reason}); err == nil {
		sub.Send(data)
	}
}

func (h *Handler) sendReject(sub *subscriber, commandID, reason string, retry bool) {
	data, err := proto.EncodeSubmitReject(proto.SubmitReject{
		CommandID: commandID,
		Reason:    reason,
		Retry:     retry,
	})
	if err == nil {
		sub.Send(data)
	}
}

func joinRefusalReason(err error) string {
	switch {
	case errors.Is(err, server.ErrNotFound):
		return "unknown_session"
	case errors.Is(err, server.ErrUnauthorized):
		return "unauthorized"
	default:
		return "join_failed"
	}
}
