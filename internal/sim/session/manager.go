// Package session runs engagement sessions: a registry of independently
// controllable resolvers, each with its own paced tick loop, pause gate and
// event feed.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/signalsfoundry/blocking-sandbox/core"
	"github.com/signalsfoundry/blocking-sandbox/internal/logging"
	"github.com/signalsfoundry/blocking-sandbox/internal/observability"
	"github.com/signalsfoundry/blocking-sandbox/model"
	"github.com/signalsfoundry/blocking-sandbox/timectrl"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	// ErrSessionNotFound indicates an operation named an unknown session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionRunning indicates an operation that requires an idle
	// session was attempted while its tick loop is live.
	ErrSessionRunning = errors.New("session is running")
	// ErrInvalidRole indicates a player update named neither side.
	ErrInvalidRole = errors.New("invalid role")
	// ErrInvalidConfig re-exports the resolver's configuration error.
	ErrInvalidConfig = core.ErrInvalidConfig
	// ErrInvalidPlayer re-exports the participant validation error.
	ErrInvalidPlayer = model.ErrInvalidPlayer
	// ErrRoleMismatch re-exports the resolver's slot check.
	ErrRoleMismatch = core.ErrRoleMismatch
)

// DefaultStopGrace bounds the cooperative phase of Stop.
const DefaultStopGrace = time.Second

// DefaultFeedBuffer is the per-subscriber event buffer.
const DefaultFeedBuffer = 64

// MetricsRecorder receives session lifecycle measurements.
// *observability.SessionCollector satisfies it.
type MetricsRecorder interface {
	SetSessions(n int)
	SetRunning(n int)
	ObserveTick(state string, d time.Duration)
	IncOutcome(outcome string)
	IncObserverFailure(callback string)
}

type noopMetrics struct{}

func (noopMetrics) SetSessions(int)                   {}
func (noopMetrics) SetRunning(int)                    {}
func (noopMetrics) ObserveTick(string, time.Duration) {}
func (noopMetrics) IncOutcome(string)                 {}
func (noopMetrics) IncObserverFailure(string)         {}

// Manager is the session registry. The registry lock covers bookkeeping
// only; per-session work runs under each session's own locks.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	log        logging.Logger
	clock      timectrl.SimClock
	metrics    MetricsRecorder
	stopGrace  time.Duration
	feedBuffer int
	newID      func() string
	now        func() time.Time
	defaults   core.ResolverConfig

	running atomic.Int64
	created atomic.Uint64
}

// ManagerOption customises Manager construction.
type ManagerOption func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(l logging.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithClock sets the clock used to pace tick loops.
func WithClock(c timectrl.SimClock) ManagerOption {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(r MetricsRecorder) ManagerOption {
	return func(m *Manager) {
		if r != nil {
			m.metrics = r
		}
	}
}

// WithStopGrace sets how long Stop waits for a cooperative exit before
// cancelling the loop's context.
func WithStopGrace(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.stopGrace = d
		}
	}
}

// WithFeedBuffer sets the per-subscriber event buffer.
func WithFeedBuffer(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.feedBuffer = n
		}
	}
}

// WithIDGenerator replaces uuid.NewString for session ids.
func WithIDGenerator(fn func() string) ManagerOption {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// WithNow replaces time.Now for creation timestamps. Tick pacing uses the
// clock from WithClock instead.
func WithNow(fn func() time.Time) ManagerOption {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// WithDefaultConfig supplies the numeric settings used when Create leaves
// them zero.
func WithDefaultConfig(cfg core.ResolverConfig) ManagerOption {
	return func(m *Manager) {
		m.defaults = cfg.WithDefaults()
	}
}

// NewManager constructs an empty registry.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		sessions:   make(map[string]*Session),
		log:        logging.Noop(),
		clock:      timectrl.NewTimeController(time.Now(), timectrl.RealTime),
		metrics:    noopMetrics{},
		stopGrace:  DefaultStopGrace,
		feedBuffer: DefaultFeedBuffer,
		newID:      uuid.NewString,
		now:        time.Now,
		defaults:   core.DefaultResolverConfig(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateOptions configures a new session. Nil players take the defaults;
// zero numeric fields take the manager's defaults.
type CreateOptions struct {
	Blocker     *model.Player
	Rusher      *model.Player
	TickRateMs  int
	MaxTicks    int
	QBZoneDepth float64
	Seed        uint64
}

func (o CreateOptions) resolverConfig(defaults core.ResolverConfig) core.ResolverConfig {
	cfg := core.ResolverConfig{
		TickRateMs:  o.TickRateMs,
		MaxTicks:    o.MaxTicks,
		QBZoneDepth: o.QBZoneDepth,
		Seed:        o.Seed,
	}
	if cfg.TickRateMs == 0 {
		cfg.TickRateMs = defaults.TickRateMs
	}
	if cfg.MaxTicks == 0 {
		cfg.MaxTicks = defaults.MaxTicks
	}
	if cfg.QBZoneDepth == 0 {
		cfg.QBZoneDepth = defaults.QBZoneDepth
	}
	if cfg.Seed == 0 {
		cfg.Seed = defaults.Seed
	}
	return cfg
}

// Create builds and registers a new session.
func (m *Manager) Create(opts CreateOptions) (*Session, error) {
	blocker := model.DefaultBlocker()
	if opts.Blocker != nil {
		blocker = *opts.Blocker
	}
	rusher := model.DefaultRusher()
	if opts.Rusher != nil {
		rusher = *opts.Rusher
	}

	r, err := core.NewResolver(blocker, rusher, opts.resolverConfig(m.defaults))
	if err != nil {
		return nil, err
	}

	id := m.newID()
	s := newSession(id, m.created.Add(1), r, m.feedBuffer, m.now())

	m.mu.Lock()
	if _, exists := m.sessions[id]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("session id %q already registered", id)
	}
	m.sessions[id] = s
	count := len(m.sessions)
	m.mu.Unlock()

	m.metrics.SetSessions(count)
	m.log.Info(context.Background(), "session created",
		logging.SessionID(id),
		logging.Int("tick_rate_ms", r.Config().TickRateMs),
		logging.Int("max_ticks", r.Config().MaxTicks),
		logging.Float64("qb_zone_depth", r.Config().QBZoneDepth),
		logging.String("seed", fmt.Sprint(r.Config().Seed)),
	)
	return s, nil
}

// Get looks up a session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// List returns every session in creation order.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Delete stops the session if needed, closes its feed and unregisters it.
// Stopping and unregistering happen under one hold of the lifecycle lock,
// so a concurrent Start either lands before the stop or finds the session
// gone.
func (m *Manager) Delete(ctx context.Context, id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	if err := s.lockLive(); err != nil {
		return err
	}
	m.stopLocked(ctx, s)
	s.deleted = true

	m.mu.Lock()
	delete(m.sessions, id)
	count := len(m.sessions)
	m.mu.Unlock()
	s.ctl.Unlock()

	s.feed.Close()
	m.metrics.SetSessions(count)
	m.log.Info(ctx, "session deleted", logging.SessionID(id))
	return nil
}

// Start launches the session's tick loop. Observers are notified after the
// session's own feed.
func (m *Manager) Start(id string, observers ...Observer) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}

	if err := s.lockLive(); err != nil {
		return err
	}
	defer s.ctl.Unlock()
	if s.IsRunning() {
		return fmt.Errorf("%w: %s", ErrSessionRunning, id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := newLoopHandle(cancel)
	s.setHandle(h)
	s.gate.Open()

	obs := make([]Observer, 0, len(observers)+1)
	obs = append(obs, s.feed)
	for _, o := range observers {
		if o != nil {
			obs = append(obs, o)
		}
	}

	m.metrics.SetRunning(int(m.running.Add(1)))
	m.log.Info(ctx, "session started", logging.SessionID(id))
	go m.runLoop(ctx, s, h, obs)
	return nil
}

// runLoop is the per-session scheduler. Its only suspension points are the
// pause gate and the pacing wait.
func (m *Manager) runLoop(ctx context.Context, s *Session, h *loopHandle, obs []Observer) {
	log := m.log.With(logging.SessionID(s.id))
	defer func() {
		h.cancel()
		m.metrics.SetRunning(int(m.running.Add(-1)))
		close(h.done)
	}()

	reason := "complete"
loop:
	for !s.complete() {
		if h.stopRequested() {
			reason = "stopped"
			break
		}
		if err := s.gate.Wait(ctx); err != nil {
			reason = "cancelled"
			break
		}
		if h.stopRequested() {
			reason = "stopped"
			break
		}

		start := time.Now()
		res, interval := s.tick()
		m.metrics.ObserveTick(res.State.String(), time.Since(start))

		for _, o := range obs {
			m.notify(ctx, log, "on_tick", func() { o.OnTick(s.id, res) })
		}
		if res.Outcome.IsTerminal() {
			m.metrics.IncOutcome(res.Outcome.String())
			break
		}

		select {
		case <-m.clock.After(interval):
		case <-h.stopCh:
			reason = "stopped"
			break loop
		case <-ctx.Done():
			reason = "cancelled"
			break loop
		}
	}

	s.mu.Lock()
	final := s.decorate(s.resolver.Snapshot(), false)
	s.mu.Unlock()

	log.Info(ctx, "session loop exited",
		logging.String("reason", reason),
		logging.Int("tick", final.CurrentTick),
		logging.String("outcome", final.Outcome.String()),
	)
	for _, o := range obs {
		m.notify(ctx, log, "on_complete", func() { o.OnComplete(s.id, final) })
	}
}

// notify invokes one observer callback, containing any panic.
func (m *Manager) notify(ctx context.Context, log logging.Logger, callback string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.metrics.IncObserverFailure(callback)
			log.Warn(ctx, "observer callback panicked",
				logging.String("callback", callback),
				logging.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	fn()
}

// Pause closes the session's gate. The loop blocks before its next tick.
func (m *Manager) Pause(id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.gate.Close()
	return nil
}

// Resume reopens the session's gate.
func (m *Manager) Resume(id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.gate.Open()
	return nil
}

// Stop ends the session's loop, if any. The loop gets the grace period to
// exit on its own; after that its context is cancelled.
func (m *Manager) Stop(ctx context.Context, id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	m.stop(ctx, s)
	return nil
}

func (m *Manager) stop(ctx context.Context, s *Session) {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	m.stopLocked(ctx, s)
}

// stopLocked requires s.ctl. Timeouts are logged, never returned.
func (m *Manager) stopLocked(ctx context.Context, s *Session) {
	h := s.handle()
	if !h.live() {
		return
	}
	h.requestStop()
	s.gate.Open()

	if waitDone(ctx, h.done, m.stopGrace) {
		return
	}
	m.log.Warn(ctx, "session loop ignored stop; cancelling",
		logging.SessionID(s.id),
		logging.Duration("grace", m.stopGrace),
	)
	h.cancel()
	if !waitDone(context.Background(), h.done, m.stopGrace) {
		m.log.Error(ctx, "session loop did not exit after cancel", logging.SessionID(s.id))
	}
}

// waitDone reports whether done closed within d. A cancelled ctx cuts the
// wait short.
func waitDone(ctx context.Context, done <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Reset stops the session if running and restores its engagement to the
// initial state. Id and configuration are kept.
func (m *Manager) Reset(ctx context.Context, id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	if err := s.lockLive(); err != nil {
		return err
	}
	defer s.ctl.Unlock()
	m.stopLocked(ctx, s)
	return s.withResolver(func(r *core.Resolver) error {
		r.Reset()
		return nil
	})
}

// idle runs fn under the session's lifecycle lock, rejecting the call while
// a loop is live.
func (m *Manager) idle(id string, fn func(s *Session) error) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	if err := s.lockLive(); err != nil {
		return err
	}
	defer s.ctl.Unlock()
	if s.IsRunning() {
		return fmt.Errorf("%w: %s", ErrSessionRunning, id)
	}
	return fn(s)
}

// UpdatePlayer patches one participant's attributes and resets. Rejected
// while running; on any error the configuration is unchanged.
func (m *Manager) UpdatePlayer(id string, role model.Role, attrs map[string]int) error {
	return m.idle(id, func(s *Session) error {
		return s.withResolver(func(r *core.Resolver) error {
			var p model.Player
			switch role {
			case model.RoleBlocker:
				p = r.Blocker()
			case model.RoleRusher:
				p = r.Rusher()
			default:
				return fmt.Errorf("%w: %q", ErrInvalidRole, role.String())
			}
			merged, err := p.Attributes.Merge(attrs)
			if err != nil {
				return err
			}
			p.Attributes = merged
			return r.SetPlayer(p)
		})
	})
}

// SetTickRate changes the tick interval and resets. Rejected while running.
func (m *Manager) SetTickRate(id string, ms int) error {
	return m.idle(id, func(s *Session) error {
		return s.withResolver(func(r *core.Resolver) error {
			return r.SetTickRate(ms)
		})
	})
}

// Step advances an idle session by one tick. The result also goes to the
// session feed, followed by a completion event when it ends the engagement.
// Stepping a finished engagement returns a neutral result and publishes
// nothing.
func (m *Manager) Step(id string) (model.TickResult, error) {
	var res model.TickResult
	err := m.idle(id, func(s *Session) error {
		wasComplete := s.complete()
		res, _ = s.tick()
		if wasComplete {
			return nil
		}
		s.feed.OnTick(s.id, res)
		if res.Outcome.IsTerminal() {
			m.metrics.IncOutcome(res.Outcome.String())
			s.feed.OnComplete(s.id, s.State())
		}
		return nil
	})
	return res, err
}

// RunToCompletion resets an idle session and resolves it synchronously.
func (m *Manager) RunToCompletion(ctx context.Context, id string) ([]model.TickResult, error) {
	return m.runSync(ctx, id, "session.run_to_completion", (*core.Resolver).RunToCompletion)
}

// Replay reruns an idle session's most recent run from the noise position
// it started at.
func (m *Manager) Replay(ctx context.Context, id string) ([]model.TickResult, error) {
	return m.runSync(ctx, id, "session.replay", (*core.Resolver).Replay)
}

func (m *Manager) runSync(ctx context.Context, id, span string, run func(*core.Resolver) []model.TickResult) ([]model.TickResult, error) {
	ctx, sp := observability.StartSpan(ctx, span, attribute.String("session_id", id))
	defer sp.End()

	var results []model.TickResult
	err := m.idle(id, func(s *Session) error {
		return s.withResolver(func(r *core.Resolver) error {
			results = run(r)
			return nil
		})
	})
	if err != nil {
		sp.RecordError(err)
		sp.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if n := len(results); n > 0 {
		last := results[n-1]
		m.metrics.IncOutcome(last.Outcome.String())
		sp.SetAttributes(
			attribute.Int("ticks", n),
			attribute.String("outcome", last.Outcome.String()),
		)
		m.log.Debug(ctx, "synchronous run finished",
			logging.SessionID(id),
			logging.Int("ticks", n),
			logging.String("outcome", last.Outcome.String()),
		)
	}
	return results, nil
}

// State returns the full state of a session.
func (m *Manager) State(id string) (model.SimulationState, error) {
	s, err := m.Get(id)
	if err != nil {
		return model.SimulationState{}, err
	}
	return s.State(), nil
}

// Running reports the number of live tick loops.
func (m *Manager) Running() int { return int(m.running.Load()) }

// Shutdown stops every live loop in parallel and waits for them.
func (m *Manager) Shutdown(ctx context.Context) error {
	sessions := m.List()
	var wg sync.WaitGroup
	for _, s := range sessions {
		if !s.IsRunning() {
			continue
		}
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			m.stop(ctx, s)
		}(s)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
