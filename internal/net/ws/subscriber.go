package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

// subscriber is one websocket connection registered with the session
// registry. Outbound payloads flow through a bounded channel drained by a
// single writer goroutine; a full channel marks the connection stalled.
type subscriber struct {
	id     string
	conn   *websocket.Conn
	logger *slog.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newSubscriber(id string, conn *websocket.Conn, buffer int, logger *slog.Logger) *subscriber {
	s := &subscriber{
		id:     id,
		conn:   conn,
		logger: logger,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

func (s *subscriber) ID() string { return s.id }

// Send queues a payload for delivery. It never blocks; false means the
// connection cannot keep up and should be dropped.
func (s *subscriber) Send(payload []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

func (s *subscriber) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

func (s *subscriber) writeLoop() {
	for {
		select {
		case payload := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.logger.Debug("write failed, closing connection", "connection", s.id, "error", err)
				s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}
