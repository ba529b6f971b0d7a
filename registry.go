package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"satlink/server/internal/sim"
	"satlink/server/internal/store"
)

// Client is the server-side handle for one connected browser tab. Send must
// not block: it reports false when the connection's outbound buffer is full,
// which the registry treats as a stalled connection.
type Client interface {
	ID() string
	Send(payload []byte) bool
	Close()
}

// Authorizer is the authorization collaborator. It reports whether the user
// may join the session; a store.ErrNotFound error means the session does not
// exist at all.
type Authorizer interface {
	Authorize(ctx context.Context, userID, sessionID string) (bool, error)
}

// Registry is the process-wide bookkeeping of live sessions and their rooms.
// It is created at process start and cleared only by Shutdown; all mutation
// of a session's authoritative state funnels through that session's run loop,
// which is the single-writer guarantee for the whole subsystem.
type Registry struct {
	cfg       Config
	store     store.Store
	authz     Authorizer
	logger    *slog.Logger
	telemetry TelemetryCounters

	mu       sync.Mutex
	sessions map[string]*liveSession
	joined   map[string]string // connection id -> session id
	closed   bool
	wg       sync.WaitGroup
}

// NewRegistry constructs a registry with the given collaborators.
func NewRegistry(cfg Config, st store.Store, authz Authorizer, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		cfg:      cfg.withDefaults(),
		store:    st,
		authz:    authz,
		logger:   logger,
		sessions: make(map[string]*liveSession),
		joined:   make(map[string]string),
	}
}

// Telemetry returns a copy of the protocol counters.
func (r *Registry) Telemetry() TelemetrySnapshot {
	return r.telemetry.Snapshot()
}

// LiveSessions reports the number of sessions currently resident in memory.
func (r *Registry) LiveSessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Join authorizes the caller, attaches the connection to the session's room,
// and returns the current authoritative snapshot. A session not yet resident
// is hydrated from its durable checkpoint first. Joining a new session
// implicitly leaves the previous one.
func (r *Registry) Join(ctx context.Context, client Client, userID, sessionID string) (Snapshot, error) {
	if client == nil {
		return Snapshot{}, fmt.Errorf("nil client")
	}

	ok, err := r.authz.Authorize(ctx, userID, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("authorizing session %s: %w", sessionID, err)
	}
	if !ok {
		return Snapshot{}, ErrUnauthorized
	}

	// The session may be evicted between lookup and attach; one retry
	// covers the window.
	for attempt := 0; attempt < 2; attempt++ {
		ls, err := r.ensureLive(ctx, sessionID)
		if err != nil {
			return Snapshot{}, err
		}
		r.attach(client, sessionID, ls)
		snap, err := ls.snapshotView()
		if err == nil {
			return snap, nil
		}
	}
	return Snapshot{}, ErrNotFound
}

// Resume reconnects a client to a session after a dropped connection. If the
// session is still live this is the cheap path; otherwise it is rehydrated
// from the last durable checkpoint with mid-flight commands resolved to
// failed. Terminal statuses of commands issued after lastKnownCommandID are
// replayed to the reconnecting client only.
func (r *Registry) Resume(ctx context.Context, client Client, userID, sessionID, lastKnownCommandID string) (Snapshot, error) {
	snap, err := r.Join(ctx, client, userID, sessionID)
	if err != nil {
		return snap, err
	}
	if lastKnownCommandID == "" {
		return snap, nil
	}

	seen := false
	now := time.Now()
	for _, view := range snap.Commands {
		if !seen {
			seen = view.ID == lastKnownCommandID
			continue
		}
		if !view.Stage.Terminal() {
			continue
		}
		msg := CommandStatusMessage{
			Ver:       ProtocolVersion,
			Type:      MessageCommandStatus,
			SessionID: sessionID,
			CommandID: view.ID,
			Stage:     view.Stage,
			Timestamp: now.UnixMilli(),
			Result:    view.Result,
		}
		if data, ok := marshalMessage(r.logger, msg); ok {
			client.Send(data)
		}
	}
	return snap, nil
}

// Leave detaches the connection from its room. Idempotent; a connection that
// never joined is a no-op. The session gets a best-effort checkpoint as a
// disconnect notification.
func (r *Registry) Leave(connID string) {
	r.mu.Lock()
	sessionID, ok := r.joined[connID]
	if ok {
		delete(r.joined, connID)
	}
	ls := r.sessions[sessionID]
	r.mu.Unlock()

	if !ok || ls == nil {
		return
	}
	ls.detach(connID)
	ls.notifyDisconnect()
}

// Broadcast pushes a payload to every connection attached to the session.
func (r *Registry) Broadcast(sessionID string, payload []byte) {
	r.mu.Lock()
	ls := r.sessions[sessionID]
	r.mu.Unlock()
	if ls != nil {
		ls.broadcast(payload)
	}
}

// GetSnapshot returns the authoritative snapshot of a live session.
func (r *Registry) GetSnapshot(sessionID string) (Snapshot, error) {
	r.mu.Lock()
	ls := r.sessions[sessionID]
	closed := r.closed
	r.mu.Unlock()

	if closed {
		return Snapshot{}, ErrRegistryClosed
	}
	if ls == nil {
		return Snapshot{}, ErrNotFound
	}
	return ls.snapshotView()
}

// Submit validates a command structurally and hands it to the session's run
// loop. It returns the command id (server-generated when the client supplied
// none) once the command is accepted into the queued stage.
func (r *Registry) Submit(sessionID, connID, commandID string, payload sim.Command) (string, error) {
	if err := payload.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if commandID == "" {
		commandID = uuid.NewString()
	}

	r.mu.Lock()
	ls := r.sessions[sessionID]
	closed := r.closed
	r.mu.Unlock()

	if closed {
		return "", ErrRegistryClosed
	}
	if ls == nil {
		return "", ErrInvalidSession
	}
	if err := ls.submit(commandID, payload, connID); err != nil {
		return "", err
	}
	return commandID, nil
}

// Shutdown stops every session loop, writing a final checkpoint for each, and
// waits for in-flight checkpoint writes up to the context deadline.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	sessions := make([]*liveSession, 0, len(r.sessions))
	for _, ls := range r.sessions {
		sessions = append(sessions, ls)
	}
	r.sessions = make(map[string]*liveSession)
	r.joined = make(map[string]string)
	r.mu.Unlock()

	for _, ls := range sessions {
		ls.requestStop()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ensureLive returns the resident session, hydrating it from the durable
// checkpoint when necessary.
func (r *Registry) ensureLive(ctx context.Context, sessionID string) (*liveSession, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	if ls, ok := r.sessions[sessionID]; ok {
		r.mu.Unlock()
		return ls, nil
	}
	r.mu.Unlock()

	rec, err := r.store.LoadCheckpoint(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint for %s: %w", sessionID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	if ls, ok := r.sessions[sessionID]; ok {
		// Lost the hydration race; the resident copy wins.
		return ls, nil
	}
	ls := newLiveSession(r, sessionFromRecord(rec, time.Now()))
	r.sessions[sessionID] = ls
	r.telemetry.sessionsHydrated.Add(1)
	r.wg.Add(1)
	go ls.run()
	r.logger.Info("session hydrated", "session", sessionID, "status", ls.session.Status)
	return ls, nil
}

func (r *Registry) attach(client Client, sessionID string, ls *liveSession) {
	r.mu.Lock()
	prevID, had := r.joined[client.ID()]
	var prev *liveSession
	if had && prevID != sessionID {
		prev = r.sessions[prevID]
	}
	r.joined[client.ID()] = sessionID
	r.mu.Unlock()

	if prev != nil {
		prev.detach(client.ID())
		prev.notifyDisconnect()
	}
	ls.attach(client)
}

// dropConnection removes a stalled connection's room membership.
func (r *Registry) dropConnection(connID string, ls *liveSession) {
	r.mu.Lock()
	if r.joined[connID] == ls.session.ID {
		delete(r.joined, connID)
	}
	r.mu.Unlock()
	ls.detach(connID)
}

// removeEvicted deregisters an idle session. It refuses when a client managed
// to attach after the eviction decision, in which case the loop keeps running.
func (r *Registry) removeEvicted(ls *liveSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[ls.session.ID] != ls {
		return false
	}
	if ls.subscriberCount() > 0 {
		return false
	}
	delete(r.sessions, ls.session.ID)
	r.telemetry.sessionsEvicted.Add(1)
	return true
}
