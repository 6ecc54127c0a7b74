package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/signalsfoundry/blocking-sandbox/core"
	"github.com/signalsfoundry/blocking-sandbox/model"
)

// Session owns one engagement: its resolver, pause gate, event feed and at
// most one live tick loop.
type Session struct {
	id      string
	created time.Time
	seq     uint64

	// ctl serializes lifecycle operations (start, stop, configuration
	// changes, synchronous runs). The tick loop never takes it.
	ctl sync.Mutex
	// deleted is set under ctl once Delete has unregistered the session.
	deleted bool

	// mu guards resolver. The loop holds it for exactly one tick; it is
	// never held across the pacing wait.
	mu       sync.Mutex
	resolver *core.Resolver

	gate *gate
	feed *Feed

	// run is the current or most recent loop.
	runMu sync.Mutex
	run   *loopHandle
}

// loopHandle tracks one tick loop.
type loopHandle struct {
	cancel   context.CancelFunc
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newLoopHandle(cancel context.CancelFunc) *loopHandle {
	return &loopHandle{
		cancel: cancel,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// requestStop raises the cooperative cancellation flag.
func (h *loopHandle) requestStop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

func (h *loopHandle) stopRequested() bool {
	select {
	case <-h.stopCh:
		return true
	default:
		return false
	}
}

func (h *loopHandle) live() bool {
	if h == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func newSession(id string, seq uint64, r *core.Resolver, feedBuffer int, now time.Time) *Session {
	return &Session{
		id:       id,
		created:  now,
		seq:      seq,
		resolver: r,
		gate:     newGate(),
		feed:     NewFeed(feedBuffer),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// CreatedAt returns the wall-clock creation time.
func (s *Session) CreatedAt() time.Time { return s.created }

// Feed returns the session's event fan-out.
func (s *Session) Feed() *Feed { return s.feed }

// IsRunning reports whether a tick loop is live.
func (s *Session) IsRunning() bool {
	return s.handle().live()
}

// IsPaused reports whether the pause gate is closed.
func (s *Session) IsPaused() bool { return !s.gate.IsOpen() }

// State returns a consistent snapshot of the engagement.
func (s *Session) State() model.SimulationState {
	running := s.IsRunning()
	s.mu.Lock()
	st := s.resolver.Snapshot()
	s.mu.Unlock()
	return s.decorate(st, running)
}

func (s *Session) decorate(st model.SimulationState, running bool) model.SimulationState {
	st.SessionID = s.id
	st.IsRunning = running
	st.IsPaused = running && !s.gate.IsOpen()
	return st
}

// lockLive takes ctl and fails if the session was deleted meanwhile. On
// success the caller owns ctl.
func (s *Session) lockLive() error {
	s.ctl.Lock()
	if s.deleted {
		s.ctl.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, s.id)
	}
	return nil
}

func (s *Session) handle() *loopHandle {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.run
}

func (s *Session) setHandle(h *loopHandle) {
	s.runMu.Lock()
	s.run = h
	s.runMu.Unlock()
}

// tick advances the resolver by one step under the session lock. It also
// reports the tick interval for pacing.
func (s *Session) tick() (model.TickResult, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := s.resolver.Tick()
	return res, time.Duration(s.resolver.Config().TickRateMs) * time.Millisecond
}

func (s *Session) complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolver.IsComplete()
}

// withResolver runs fn with exclusive access to the resolver.
func (s *Session) withResolver(fn func(r *core.Resolver) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.resolver)
}
