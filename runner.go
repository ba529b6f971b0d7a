package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"satlink/server/internal/sim"
)

// liveSession couples one authoritative Session with the goroutine that owns
// it. Every state mutation — command stages, simulation ticks, checkpoints,
// eviction — happens on the run loop, so the session needs no lock of its own.
type liveSession struct {
	registry *Registry
	cfg      Config
	logger   *slog.Logger
	session  *Session

	ops      chan func()
	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	roomMu      sync.Mutex
	subscribers map[string]Client
	emptySince  time.Time

	// Pipeline state for the command currently in flight.
	queue       []*Command
	active      *Command
	stageTimer  *time.Timer
	timerC      <-chan time.Time
	ackArriving bool
	execOverrun bool
	lastTick    time.Time
}

func newLiveSession(r *Registry, s *Session) *liveSession {
	return &liveSession{
		registry:    r,
		cfg:         r.cfg,
		logger:      r.logger.With("session", s.ID),
		session:     s,
		ops:         make(chan func()),
		stop:        make(chan struct{}),
		stopped:     make(chan struct{}),
		subscribers: make(map[string]Client),
		emptySince:  time.Now(),
	}
}

// run is the serialized execution context for the session: the only goroutine
// allowed to mutate the authoritative state.
func (ls *liveSession) run() {
	defer ls.registry.wg.Done()
	defer close(ls.stopped)

	tick := time.NewTicker(ls.cfg.TickInterval)
	defer tick.Stop()
	save := time.NewTicker(ls.cfg.AutosaveInterval)
	defer save.Stop()
	ls.lastTick = time.Now()

	for {
		select {
		case fn := <-ls.ops:
			fn()
		case <-tick.C:
			ls.tick()
		case <-ls.timerC:
			ls.onStageTimer()
		case <-save.C:
			// The interval save doubles as the retry path for earlier
			// failed writes.
			if ls.session.Status == StatusInProgress {
				ls.checkpointAsync(time.Now())
			}
		case <-ls.stop:
			now := time.Now()
			ls.failPending(Result{Outcome: OutcomeInterrupted, Detail: "session interrupted"}, now)
			ls.checkpointSync(now)
			return
		}
	}
}

func (ls *liveSession) requestStop() {
	ls.stopOnce.Do(func() { close(ls.stop) })
}

// --- room membership -------------------------------------------------------

func (ls *liveSession) attach(client Client) {
	ls.roomMu.Lock()
	defer ls.roomMu.Unlock()
	if existing, ok := ls.subscribers[client.ID()]; ok && existing != client {
		existing.Close()
	}
	ls.subscribers[client.ID()] = client
	ls.emptySince = time.Time{}
}

func (ls *liveSession) detach(connID string) {
	ls.roomMu.Lock()
	defer ls.roomMu.Unlock()
	delete(ls.subscribers, connID)
	if len(ls.subscribers) == 0 {
		ls.emptySince = time.Now()
	}
}

func (ls *liveSession) subscriberCount() int {
	ls.roomMu.Lock()
	defer ls.roomMu.Unlock()
	return len(ls.subscribers)
}

func (ls *liveSession) idleSince() (time.Time, bool) {
	ls.roomMu.Lock()
	defer ls.roomMu.Unlock()
	if len(ls.subscribers) > 0 || ls.emptySince.IsZero() {
		return time.Time{}, false
	}
	return ls.emptySince, true
}

// broadcast fans a payload out to the room. Connections whose buffers are
// full are stalled: they get closed and dropped rather than queued without
// bound.
func (ls *liveSession) broadcast(payload []byte) {
	ls.roomMu.Lock()
	subs := make([]Client, 0, len(ls.subscribers))
	for _, client := range ls.subscribers {
		subs = append(subs, client)
	}
	ls.roomMu.Unlock()

	if len(subs) == 0 {
		return
	}
	ls.registry.telemetry.recordBroadcast(len(payload), len(subs))

	var stalled []Client
	for _, client := range subs {
		if !client.Send(payload) {
			stalled = append(stalled, client)
		}
	}
	for _, client := range stalled {
		ls.registry.telemetry.recordStalledDisconnect()
		ls.logger.Warn("disconnecting stalled connection", "connection", client.ID())
		client.Close()
		ls.registry.dropConnection(client.ID(), ls)
	}
}

// --- serialized reads and submissions --------------------------------------

// snapshotView reads the authoritative snapshot through the run loop.
func (ls *liveSession) snapshotView() (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	op := func() { reply <- ls.session.snapshot() }
	select {
	case ls.ops <- op:
	case <-ls.stopped:
		return Snapshot{}, ErrNotFound
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ls.stopped:
		return Snapshot{}, ErrNotFound
	}
}

// submit hands one command to the run loop and waits for acceptance.
func (ls *liveSession) submit(commandID string, payload sim.Command, connID string) error {
	reply := make(chan error, 1)
	op := func() { reply <- ls.handleSubmit(commandID, payload, connID) }
	select {
	case ls.ops <- op:
	case <-ls.stopped:
		return ErrInvalidSession
	}
	select {
	case err := <-reply:
		return err
	case <-ls.stopped:
		return ErrInvalidSession
	}
}

// notifyDisconnect requests a best-effort checkpoint without blocking the
// caller; if the loop is busy the next autosave covers it.
func (ls *liveSession) notifyDisconnect() {
	op := func() { ls.checkpointAsync(time.Now()) }
	select {
	case ls.ops <- op:
	case <-ls.stopped:
	default:
	}
}

// --- pipeline ---------------------------------------------------------------

func (ls *liveSession) handleSubmit(commandID string, payload sim.Command, connID string) error {
	s := ls.session
	if s.Status == StatusCompleted {
		return ErrInvalidSession
	}
	if _, exists := s.byID[commandID]; exists {
		return ErrDuplicateCommand
	}
	if len(ls.queue) >= ls.cfg.CommandQueueLimit {
		return ErrQueueFull
	}

	now := time.Now()
	cmd := &Command{
		ID:          commandID,
		Type:        payload.Type,
		Payload:     payload,
		Stage:       StageQueued,
		StageTimes:  map[Stage]time.Time{StageQueued: now},
		IssuedAt:    now,
		SubmittedBy: connID,
	}
	s.Commands = append(s.Commands, cmd)
	s.byID[cmd.ID] = cmd

	// The first accepted command starts the attempt.
	if s.Status == StatusNotStarted {
		ls.transitionStatus(StatusInProgress, now)
	}

	ls.emitCommandStatus(cmd, now)
	ls.queue = append(ls.queue, cmd)
	ls.pump(now)
	return nil
}

// pump starts the next queued command when the pipeline is idle.
func (ls *liveSession) pump(now time.Time) {
	if ls.active != nil || len(ls.queue) == 0 {
		return
	}
	cmd := ls.queue[0]
	ls.queue = ls.queue[1:]
	ls.startCommand(cmd, now)
}

func (ls *liveSession) startCommand(cmd *Command, now time.Time) {
	ls.active = cmd
	ls.mustAdvance(cmd, StageValidating, now)
	ls.emitCommandStatus(cmd, now)

	if err := sim.Precheck(ls.session.State, cmd.Payload); err != nil {
		ls.finishFailed(Result{Outcome: OutcomeRejected, Detail: err.Error()}, now)
		return
	}

	ls.mustAdvance(cmd, StageTransmitting, now)
	ls.emitCommandStatus(cmd, now)
	ls.armTimer(ls.cfg.TransmitDelay)
}

// onStageTimer advances the in-flight command when its stage delay elapses.
func (ls *liveSession) onStageTimer() {
	cmd := ls.active
	if cmd == nil {
		ls.clearTimer()
		return
	}
	now := time.Now()

	switch cmd.Stage {
	case StageTransmitting:
		ls.mustAdvance(cmd, StageAwaitingAck, now)
		ls.emitCommandStatus(cmd, now)
		if sim.LinkDegraded(ls.session.State) || ls.cfg.AckDelay > ls.cfg.AckTimeout {
			ls.ackArriving = false
			ls.armTimer(ls.cfg.AckTimeout)
		} else {
			ls.ackArriving = true
			ls.armTimer(ls.cfg.AckDelay)
		}
	case StageAwaitingAck:
		if !ls.ackArriving {
			detail := fmt.Sprintf("no acknowledgement within %s", ls.cfg.AckTimeout)
			ls.finishFailed(Result{Outcome: OutcomeTimeout, Detail: detail}, now)
			return
		}
		ls.mustAdvance(cmd, StageExecuting, now)
		ls.emitCommandStatus(cmd, now)
		if ls.cfg.ExecDelay > ls.cfg.ExecTimeout {
			ls.execOverrun = true
			ls.armTimer(ls.cfg.ExecTimeout)
		} else {
			ls.execOverrun = false
			ls.armTimer(ls.cfg.ExecDelay)
		}
	case StageExecuting:
		if ls.execOverrun {
			detail := fmt.Sprintf("execution exceeded %s", ls.cfg.ExecTimeout)
			ls.finishFailed(Result{Outcome: OutcomeTimeout, Detail: detail}, now)
			return
		}
		ls.executeActive(now)
	default:
		ls.clearTimer()
	}
}

// executeActive is the only place authoritative state mutates for a command.
func (ls *liveSession) executeActive(now time.Time) {
	cmd := ls.active
	s := ls.session

	next, simResult, err := sim.ApplyCommand(s.State, cmd.Payload)
	if err != nil {
		ls.finishFailed(Result{Outcome: OutcomeFault, Detail: err.Error()}, now)
		return
	}
	s.State = next

	stepID, finished := s.markStep(cmd.Type)
	result := Result{Outcome: OutcomeSuccess, CompletedStep: stepID, Sim: &simResult}
	if err := cmd.complete(result, now); err != nil {
		ls.logger.Error("command completion rejected", "command", cmd.ID, "error", err)
	}
	ls.registry.telemetry.recordCommandTerminal(cmd.Stage, result.Outcome)
	ls.emitCommandStatus(cmd, now)

	if finished {
		ls.transitionStatus(StatusCompleted, now)
	}
	ls.broadcastState(now)

	ls.active = nil
	ls.clearTimer()
	ls.pump(now)
}

func (ls *liveSession) finishFailed(result Result, now time.Time) {
	cmd := ls.active
	if err := cmd.failWith(result, now); err != nil {
		ls.logger.Error("command failure rejected", "command", cmd.ID, "error", err)
	}
	ls.registry.telemetry.recordCommandTerminal(cmd.Stage, result.Outcome)
	ls.emitCommandStatus(cmd, now)

	ls.active = nil
	ls.clearTimer()
	ls.pump(now)
}

// failPending resolves the in-flight and queued commands to failed; used at
// eviction and shutdown so nothing stays non-terminal forever.
func (ls *liveSession) failPending(result Result, now time.Time) {
	if ls.active != nil {
		cmd := ls.active
		ls.active = nil
		ls.clearTimer()
		if err := cmd.failWith(result, now); err == nil {
			ls.registry.telemetry.recordCommandTerminal(cmd.Stage, result.Outcome)
			ls.emitCommandStatus(cmd, now)
		}
	}
	for _, cmd := range ls.queue {
		if err := cmd.failWith(result, now); err == nil {
			ls.registry.telemetry.recordCommandTerminal(cmd.Stage, result.Outcome)
			ls.emitCommandStatus(cmd, now)
		}
	}
	ls.queue = nil
}

func (ls *liveSession) mustAdvance(cmd *Command, stage Stage, now time.Time) {
	if err := cmd.advanceTo(stage, now); err != nil {
		// Unreachable if the pipeline drives stages correctly; loud if not.
		ls.logger.Error("illegal stage transition", "command", cmd.ID, "error", err)
	}
}

func (ls *liveSession) armTimer(d time.Duration) {
	if ls.stageTimer != nil {
		ls.stageTimer.Stop()
	}
	ls.stageTimer = time.NewTimer(d)
	ls.timerC = ls.stageTimer.C
}

func (ls *liveSession) clearTimer() {
	if ls.stageTimer != nil {
		ls.stageTimer.Stop()
		ls.stageTimer = nil
	}
	ls.timerC = nil
}

// --- ticks, status, checkpoints ---------------------------------------------

func (ls *liveSession) tick() {
	now := time.Now()
	dt := now.Sub(ls.lastTick).Seconds()
	if dt <= 0 {
		dt = ls.cfg.TickInterval.Seconds()
	}
	ls.lastTick = now

	s := ls.session
	s.State = sim.Advance(s.State, dt)
	if s.Status == StatusInProgress && ls.subscriberCount() > 0 {
		s.ElapsedSeconds += dt
	}
	ls.broadcastState(now)

	if since, idle := ls.idleSince(); idle && now.Sub(since) > ls.cfg.IdleEviction {
		ls.evict(now)
	}
}

// evict removes an abandoned session from memory after a final checkpoint.
func (ls *liveSession) evict(now time.Time) {
	if !ls.registry.removeEvicted(ls) {
		return
	}
	ls.logger.Info("evicting idle session")
	ls.requestStop()
}

func (ls *liveSession) transitionStatus(next Status, now time.Time) {
	s := ls.session
	if !s.Status.canAdvanceTo(next) {
		ls.logger.Warn("ignoring status regression", "from", s.Status, "to", next)
		return
	}
	s.Status = next
	ls.logger.Info("session status changed", "status", next)
	ls.broadcastState(now)
	ls.checkpointAsync(now)
}

func (ls *liveSession) broadcastState(now time.Time) {
	msg := newStateUpdate(ls.session.ID, ls.session.snapshot(), now)
	if data, ok := marshalMessage(ls.logger, msg); ok {
		ls.broadcast(data)
	}
}

func (ls *liveSession) emitCommandStatus(cmd *Command, now time.Time) {
	msg := newCommandStatus(ls.session.ID, cmd, now)
	if data, ok := marshalMessage(ls.logger, msg); ok {
		ls.broadcast(data)
	}
}

// checkpointAsync serializes the session and writes it off-loop. A failed or
// slow write never blocks the live protocol; failures are logged and the next
// autosave tick retries.
func (ls *liveSession) checkpointAsync(now time.Time) {
	rec := ls.session.record(now)
	ls.registry.wg.Add(1)
	go func() {
		defer ls.registry.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), ls.cfg.SaveTimeout)
		defer cancel()
		err := ls.registry.store.SaveCheckpoint(ctx, rec)
		ls.registry.telemetry.recordCheckpoint(err)
		if err != nil {
			ls.logger.Warn("checkpoint write failed, retrying on next autosave", "error", err)
		}
	}()
}

// checkpointSync writes the final checkpoint before the loop exits.
func (ls *liveSession) checkpointSync(now time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), ls.cfg.SaveTimeout)
	defer cancel()
	err := ls.registry.store.SaveCheckpoint(ctx, ls.session.record(now))
	ls.registry.telemetry.recordCheckpoint(err)
	if err != nil {
		ls.logger.Warn("final checkpoint write failed", "error", err)
	}
}
