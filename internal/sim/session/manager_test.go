package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/signalsfoundry/blocking-sandbox/core"
	"github.com/signalsfoundry/blocking-sandbox/model"
	"github.com/signalsfoundry/blocking-sandbox/timectrl"
)

type recordingMetrics struct {
	mu       sync.Mutex
	ticks    int
	outcomes map[string]int
	failures map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{outcomes: map[string]int{}, failures: map[string]int{}}
}

func (r *recordingMetrics) SetSessions(int) {}
func (r *recordingMetrics) SetRunning(int)  {}

func (r *recordingMetrics) ObserveTick(string, time.Duration) {
	r.mu.Lock()
	r.ticks++
	r.mu.Unlock()
}

func (r *recordingMetrics) IncOutcome(o string) {
	r.mu.Lock()
	r.outcomes[o]++
	r.mu.Unlock()
}

func (r *recordingMetrics) IncObserverFailure(cb string) {
	r.mu.Lock()
	r.failures[cb]++
	r.mu.Unlock()
}

func (r *recordingMetrics) failuresFor(cb string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures[cb]
}

var epoch = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("s-%d", n.Add(1)) }
}

func newManualManager(t *testing.T, opts ...ManagerOption) (*Manager, *timectrl.ManualClock) {
	t.Helper()
	clock := timectrl.NewManualClock(epoch)
	base := []ManagerOption{
		WithClock(clock),
		WithIDGenerator(sequentialIDs()),
		WithNow(func() time.Time { return epoch }),
		WithStopGrace(500 * time.Millisecond),
	}
	m := NewManager(append(base, opts...)...)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m, clock
}

// completions collects OnComplete calls.
type completions struct {
	mu     sync.Mutex
	states []model.SimulationState
	done   chan struct{}
	once   sync.Once
}

func newCompletions() *completions { return &completions{done: make(chan struct{})} }

func (c *completions) observer() Observer {
	return ObserverFuncs{Complete: func(_ string, st model.SimulationState) {
		c.mu.Lock()
		c.states = append(c.states, st)
		c.mu.Unlock()
		c.once.Do(func() { close(c.done) })
	}}
}

func (c *completions) wait(t *testing.T) model.SimulationState {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
		t.Fatalf("on_complete never fired")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[0]
}

func (c *completions) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.states)
}

func TestCreateDefaultsAndValidation(t *testing.T) {
	m, _ := newManualManager(t)

	s, err := m.Create(CreateOptions{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.ID() != "s-1" || !s.CreatedAt().Equal(epoch) {
		t.Fatalf("id=%q created=%v", s.ID(), s.CreatedAt())
	}
	st := s.State()
	if st.SessionID != "s-1" || st.TickRateMs != 100 || st.MaxTicks != 50 || st.QBZoneDepth != 7 {
		t.Fatalf("state = %+v", st)
	}
	if st.Blocker != model.DefaultBlocker() || st.Rusher != model.DefaultRusher() {
		t.Fatalf("default players not used")
	}

	if _, err := m.Create(CreateOptions{MaxTicks: 5}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Create(max_ticks=5) err = %v", err)
	}
	bad := model.DefaultRusher()
	bad.Attributes.Speed = 120
	if _, err := m.Create(CreateOptions{Rusher: &bad}); !errors.Is(err, ErrInvalidPlayer) {
		t.Fatalf("Create(bad rusher) err = %v", err)
	}
	if len(m.List()) != 1 {
		t.Fatalf("failed creates should not register sessions")
	}
}

func TestWithDefaultConfig(t *testing.T) {
	m, _ := newManualManager(t, WithDefaultConfig(core.ResolverConfig{TickRateMs: 250, MaxTicks: 20}))
	s, err := m.Create(CreateOptions{QBZoneDepth: 4})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	st := s.State()
	if st.TickRateMs != 250 || st.MaxTicks != 20 || st.QBZoneDepth != 4 {
		t.Fatalf("state = %+v", st)
	}
}

func TestUnknownSession(t *testing.T) {
	m, _ := newManualManager(t)
	ctx := context.Background()

	checks := map[string]error{
		"start":  m.Start("nope"),
		"pause":  m.Pause("nope"),
		"resume": m.Resume("nope"),
		"stop":   m.Stop(ctx, "nope"),
		"reset":  m.Reset(ctx, "nope"),
		"delete": m.Delete(ctx, "nope"),
		"rate":   m.SetTickRate("nope", 100),
		"update": m.UpdatePlayer("nope", model.RoleRusher, nil),
	}
	for name, err := range checks {
		if !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("%s err = %v, want ErrSessionNotFound", name, err)
		}
	}
	if _, err := m.State("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("State err = %v", err)
	}
	if _, err := m.Step("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Step err = %v", err)
	}
}

func TestLifecycleGuardsWhileRunning(t *testing.T) {
	m, clock := newManualManager(t)
	s, _ := m.Create(CreateOptions{Seed: 11})

	if err := m.Start(s.ID()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !clock.BlockUntil(1, 2*time.Second) {
		t.Fatalf("loop never reached the pacing wait")
	}
	before := s.State()

	if err := m.Start(s.ID()); !errors.Is(err, ErrSessionRunning) {
		t.Fatalf("second Start err = %v, want ErrSessionRunning", err)
	}
	if err := m.UpdatePlayer(s.ID(), model.RoleRusher, map[string]int{"speed": 99}); !errors.Is(err, ErrSessionRunning) {
		t.Fatalf("UpdatePlayer err = %v, want ErrSessionRunning", err)
	}
	if err := m.SetTickRate(s.ID(), 200); !errors.Is(err, ErrSessionRunning) {
		t.Fatalf("SetTickRate err = %v, want ErrSessionRunning", err)
	}
	if _, err := m.Step(s.ID()); !errors.Is(err, ErrSessionRunning) {
		t.Fatalf("Step err = %v, want ErrSessionRunning", err)
	}
	if _, err := m.RunToCompletion(context.Background(), s.ID()); !errors.Is(err, ErrSessionRunning) {
		t.Fatalf("RunToCompletion err = %v, want ErrSessionRunning", err)
	}

	after := s.State()
	if after.Rusher != before.Rusher || after.TickRateMs != before.TickRateMs {
		t.Fatalf("rejected updates changed configuration")
	}
	if !after.IsRunning {
		t.Fatalf("state should report running")
	}
}

func TestPauseFreezesTickCounter(t *testing.T) {
	m, clock := newManualManager(t)
	s, _ := m.Create(CreateOptions{Seed: 3})

	if err := m.Start(s.ID()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !clock.BlockUntil(1, 2*time.Second) {
		t.Fatalf("loop never reached the pacing wait")
	}
	if err := m.Pause(s.ID()); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := m.Pause(s.ID()); err != nil {
		t.Fatalf("second Pause: %v", err)
	}
	pausedAt := s.State().CurrentTick

	// Release the pacing wait; the loop must now park at the gate.
	clock.Advance(100 * time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	clock.Advance(time.Second)
	time.Sleep(30 * time.Millisecond)

	st := s.State()
	if st.CurrentTick != pausedAt {
		t.Fatalf("tick advanced while paused: %d -> %d", pausedAt, st.CurrentTick)
	}
	if !st.IsPaused || !st.IsRunning {
		t.Fatalf("state should be running+paused: %+v", st)
	}

	if err := m.Resume(s.ID()); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !clock.BlockUntil(1, 2*time.Second) {
		t.Fatalf("loop did not resume")
	}
	if got := s.State().CurrentTick; got != pausedAt+1 {
		t.Fatalf("tick after resume = %d, want %d", got, pausedAt+1)
	}
}

func TestStopMidRunFiresCompleteOnce(t *testing.T) {
	m, clock := newManualManager(t)
	s, _ := m.Create(CreateOptions{Seed: 5})
	done := newCompletions()

	if err := m.Start(s.ID(), done.observer()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !clock.BlockUntil(1, 2*time.Second) {
		t.Fatalf("loop never reached the pacing wait")
	}
	captured := s.State().CurrentTick

	start := time.Now()
	if err := m.Stop(context.Background(), s.ID()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed >= 500*time.Millisecond {
		t.Fatalf("stop took %v, want within grace", elapsed)
	}

	final := done.wait(t)
	if final.CurrentTick != captured {
		t.Fatalf("final tick = %d, want %d", final.CurrentTick, captured)
	}
	if final.IsRunning || s.IsRunning() {
		t.Fatalf("session still running after stop")
	}
	if err := m.Stop(context.Background(), s.ID()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if done.count() != 1 {
		t.Fatalf("on_complete fired %d times", done.count())
	}
	if m.Running() != 0 {
		t.Fatalf("running = %d after stop", m.Running())
	}
}

func TestStopReleasesPausedLoop(t *testing.T) {
	m, clock := newManualManager(t)
	s, _ := m.Create(CreateOptions{Seed: 8})
	done := newCompletions()

	if err := m.Start(s.ID(), done.observer()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !clock.BlockUntil(1, 2*time.Second) {
		t.Fatalf("loop never reached the pacing wait")
	}
	_ = m.Pause(s.ID())
	clock.Advance(100 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	if err := m.Stop(context.Background(), s.ID()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if time.Since(start) >= 500*time.Millisecond {
		t.Fatalf("paused loop did not observe stop promptly")
	}
	if done.wait(t).IsPaused {
		t.Fatalf("final state should not report paused")
	}
}

func TestRunsToTerminalOutcomeWithAcceleratedClock(t *testing.T) {
	metrics := newRecordingMetrics()
	m := NewManager(
		WithClock(timectrl.NewTimeController(epoch, timectrl.Accelerated)),
		WithMetrics(metrics),
	)
	s, _ := m.Create(CreateOptions{})
	sub := s.Feed().Subscribe()
	defer sub.Close()
	done := newCompletions()

	var ticks atomic.Int32
	obs := ObserverFuncs{Tick: func(string, model.TickResult) { ticks.Add(1) }}
	if err := m.Start(s.ID(), obs, done.observer()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	final := done.wait(t)

	if !final.Outcome.IsTerminal() || !final.IsComplete {
		t.Fatalf("final outcome = %s", final.Outcome)
	}
	if int(ticks.Load()) != final.CurrentTick {
		t.Fatalf("observed %d ticks, final tick %d", ticks.Load(), final.CurrentTick)
	}

	var last Event
	for ev := range drain(sub.C, 2*time.Second) {
		last = ev
	}
	if last.Kind != EventComplete || last.State.Outcome != final.Outcome {
		t.Fatalf("feed's last event = %+v", last)
	}

	metrics.mu.Lock()
	outcomes := metrics.outcomes[final.Outcome.String()]
	metrics.mu.Unlock()
	if outcomes != 1 {
		t.Fatalf("outcome metric = %d, want 1", outcomes)
	}
}

// drain yields events from c until a completion arrives or timeout passes.
func drain(c <-chan Event, timeout time.Duration) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		deadline := time.After(timeout)
		for {
			select {
			case ev, ok := <-c:
				if !ok {
					return
				}
				out <- ev
				if ev.Kind == EventComplete {
					return
				}
			case <-deadline:
				return
			}
		}
	}()
	return out
}

func TestObserverPanicIsContained(t *testing.T) {
	metrics := newRecordingMetrics()
	m := NewManager(
		WithClock(timectrl.NewTimeController(epoch, timectrl.Accelerated)),
		WithMetrics(metrics),
	)
	s, _ := m.Create(CreateOptions{Seed: 21})
	done := newCompletions()

	faulty := ObserverFuncs{
		Tick:     func(string, model.TickResult) { panic("observer bug") },
		Complete: func(string, model.SimulationState) { panic("observer bug") },
	}
	if err := m.Start(s.ID(), faulty, done.observer()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	final := done.wait(t)
	if !final.Outcome.IsTerminal() {
		t.Fatalf("loop aborted by observer panic: %+v", final)
	}
	if got := metrics.failuresFor("on_tick"); got != final.CurrentTick {
		t.Fatalf("on_tick failures = %d, want %d", got, final.CurrentTick)
	}
	if got := metrics.failuresFor("on_complete"); got != 1 {
		t.Fatalf("on_complete failures = %d, want 1", got)
	}
}

func TestUpdatePlayerAndTickRateResetSession(t *testing.T) {
	m, _ := newManualManager(t)
	s, _ := m.Create(CreateOptions{Seed: 2})

	if _, err := m.Step(s.ID()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if err := m.UpdatePlayer(s.ID(), model.RoleBlocker, map[string]int{"strength": 95, "awareness": 90}); err != nil {
		t.Fatalf("UpdatePlayer: %v", err)
	}
	st := s.State()
	if st.Blocker.Attributes.Strength != 95 || st.Blocker.Attributes.Awareness != 90 {
		t.Fatalf("blocker attributes = %+v", st.Blocker.Attributes)
	}
	if st.Blocker.Attributes.PassBlock != model.DefaultBlocker().Attributes.PassBlock {
		t.Fatalf("unpatched attribute changed")
	}
	if st.CurrentTick != 0 {
		t.Fatalf("update should reset, tick = %d", st.CurrentTick)
	}

	if err := m.UpdatePlayer(s.ID(), model.RoleRusher, map[string]int{"speed": 150}); !errors.Is(err, ErrInvalidPlayer) {
		t.Fatalf("out-of-range update err = %v", err)
	}
	if err := m.UpdatePlayer(s.ID(), model.RoleUnknown, map[string]int{"speed": 50}); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("unknown role err = %v", err)
	}
	if s.State().Rusher != model.DefaultRusher() {
		t.Fatalf("rejected update changed the rusher")
	}

	if err := m.SetTickRate(s.ID(), 30); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("SetTickRate(30) err = %v", err)
	}
	if err := m.SetTickRate(s.ID(), 300); err != nil {
		t.Fatalf("SetTickRate: %v", err)
	}
	if s.State().TickRateMs != 300 {
		t.Fatalf("tick rate not applied")
	}
}

func TestStepPublishesToFeed(t *testing.T) {
	m, _ := newManualManager(t)
	s, _ := m.Create(CreateOptions{MaxTicks: 10, Seed: 77})
	sub := s.Feed().Subscribe()
	defer sub.Close()

	var last model.TickResult
	for i := 0; i < 10 && !last.Outcome.IsTerminal(); i++ {
		res, err := m.Step(s.ID())
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		last = res
	}
	if !last.Outcome.IsTerminal() {
		t.Fatalf("10 steps with max_ticks 10 should finish, got %s", last.Outcome)
	}

	var kinds []EventKind
	for ev := range drain(sub.C, time.Second) {
		kinds = append(kinds, ev.Kind)
	}
	if len(kinds) != last.Tick+1 || kinds[len(kinds)-1] != EventComplete {
		t.Fatalf("feed events = %v for %d ticks", kinds, last.Tick)
	}
}

func TestStepAfterCompletionPublishesNothing(t *testing.T) {
	m, _ := newManualManager(t)
	s, _ := m.Create(CreateOptions{MaxTicks: 10, Seed: 77})
	if _, err := m.RunToCompletion(context.Background(), s.ID()); err != nil {
		t.Fatalf("RunToCompletion: %v", err)
	}
	before := s.State()

	sub := s.Feed().Subscribe()
	defer sub.Close()
	for i := 0; i < 3; i++ {
		if _, err := m.Step(s.ID()); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}
	select {
	case ev := <-sub.C:
		t.Fatalf("finished session published %s", ev.Kind)
	default:
	}
	if after := s.State(); after.CurrentTick != before.CurrentTick || after.Outcome != before.Outcome {
		t.Fatalf("finished session changed: %+v -> %+v", before, after)
	}
}

func TestRunToCompletionAndReplay(t *testing.T) {
	m, _ := newManualManager(t)
	s, _ := m.Create(CreateOptions{Seed: 1234})
	ctx := context.Background()

	first, err := m.RunToCompletion(ctx, s.ID())
	if err != nil {
		t.Fatalf("RunToCompletion: %v", err)
	}
	if len(first) == 0 || !first[len(first)-1].Outcome.IsTerminal() {
		t.Fatalf("run did not finish")
	}
	if st := s.State(); !st.IsComplete || st.CurrentTick != len(first) {
		t.Fatalf("state after run = %+v", st)
	}

	replayed, err := m.Replay(ctx, s.ID())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(replayed) != len(first) {
		t.Fatalf("replay len %d, want %d", len(replayed), len(first))
	}
	for i := range first {
		if first[i] != replayed[i] {
			t.Fatalf("tick %d differs after replay", i+1)
		}
	}

	if err := m.Reset(ctx, s.ID()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	st := s.State()
	if st.CurrentTick != 0 || st.Outcome != model.OutcomeInProgress || st.Seed != 1234 {
		t.Fatalf("state after reset = %+v", st)
	}
}

func TestResetStopsLiveLoop(t *testing.T) {
	m, clock := newManualManager(t)
	s, _ := m.Create(CreateOptions{Seed: 9})
	done := newCompletions()

	_ = m.Start(s.ID(), done.observer())
	if !clock.BlockUntil(1, 2*time.Second) {
		t.Fatalf("loop never reached the pacing wait")
	}
	if err := m.Reset(context.Background(), s.ID()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	done.wait(t)
	st := s.State()
	if st.IsRunning || st.CurrentTick != 0 || st.SessionID != s.ID() {
		t.Fatalf("state after reset = %+v", st)
	}
}

func TestDeleteStopsAndClosesFeed(t *testing.T) {
	m, clock := newManualManager(t)
	s, _ := m.Create(CreateOptions{})
	sub := s.Feed().Subscribe()

	_ = m.Start(s.ID())
	if !clock.BlockUntil(1, 2*time.Second) {
		t.Fatalf("loop never reached the pacing wait")
	}
	if err := m.Delete(context.Background(), s.ID()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if s.IsRunning() {
		t.Fatalf("deleted session still running")
	}
	if _, err := m.Get(s.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Get after delete err = %v", err)
	}
	for range sub.C {
	}
}

func TestConcurrentStartAndDeleteLeaveNothingRunning(t *testing.T) {
	m, _ := newManualManager(t)
	for i := 0; i < 50; i++ {
		s, err := m.Create(CreateOptions{})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		var (
			wg       sync.WaitGroup
			startErr error
			delErr   error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			startErr = m.Start(s.ID())
		}()
		go func() {
			defer wg.Done()
			delErr = m.Delete(context.Background(), s.ID())
		}()
		wg.Wait()

		if delErr != nil {
			t.Fatalf("round %d: Delete: %v", i, delErr)
		}
		if startErr != nil && !errors.Is(startErr, ErrSessionNotFound) {
			t.Fatalf("round %d: Start: %v", i, startErr)
		}
		if n := m.Running(); n != 0 {
			t.Fatalf("round %d: %d loops running after delete", i, n)
		}
		if s.IsRunning() {
			t.Fatalf("round %d: deleted session still running", i)
		}
		if _, err := m.Get(s.ID()); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("round %d: Get after delete err = %v", i, err)
		}
	}
}

func TestDeletedSessionRejectsLifecycleCalls(t *testing.T) {
	m, _ := newManualManager(t)
	s, _ := m.Create(CreateOptions{})
	if err := m.Delete(context.Background(), s.ID()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// A caller that looked the session up before the delete still holds it.
	if err := s.lockLive(); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("lockLive on deleted session err = %v", err)
	}
	if err := m.Delete(context.Background(), s.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("second Delete err = %v", err)
	}
}

func TestListKeepsCreationOrder(t *testing.T) {
	// Every session shares one timestamp, and ids s-10.. sort before s-2.
	m, clock := newManualManager(t)
	var want []string
	for i := 0; i < 12; i++ {
		s, err := m.Create(CreateOptions{})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		want = append(want, s.ID())
		clock.Advance(time.Hour)
	}
	got := m.List()
	if len(got) != len(want) {
		t.Fatalf("List len = %d, want %d", len(got), len(want))
	}
	for i, s := range got {
		if s.ID() != want[i] {
			t.Fatalf("List[%d] = %s, want %s", i, s.ID(), want[i])
		}
		if !s.CreatedAt().Equal(epoch) {
			t.Fatalf("%s created at %v; pacing clock leaked into timestamps", s.ID(), s.CreatedAt())
		}
	}
}

func TestSessionsRunIndependently(t *testing.T) {
	m := NewManager(WithClock(timectrl.NewTimeController(epoch, timectrl.Accelerated)))
	const n = 16

	var wg sync.WaitGroup
	finals := make([]model.SimulationState, n)
	for i := 0; i < n; i++ {
		s, err := m.Create(CreateOptions{Seed: uint64(i + 1)})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		wg.Add(1)
		idx := i
		obs := ObserverFuncs{Complete: func(_ string, st model.SimulationState) {
			finals[idx] = st
			wg.Done()
		}}
		if err := m.Start(s.ID(), obs); err != nil {
			t.Fatalf("Start: %v", err)
		}
	}

	waited := make(chan struct{})
	go func() { wg.Wait(); close(waited) }()
	select {
	case <-waited:
	case <-time.After(10 * time.Second):
		t.Fatalf("sessions did not all finish")
	}

	seen := map[string]bool{}
	for _, st := range finals {
		if !st.Outcome.IsTerminal() {
			t.Fatalf("session %s ended %s", st.SessionID, st.Outcome)
		}
		if seen[st.SessionID] {
			t.Fatalf("duplicate completion for %s", st.SessionID)
		}
		seen[st.SessionID] = true
	}
	if len(m.List()) != n {
		t.Fatalf("registry size = %d", len(m.List()))
	}
}

func TestShutdownStopsEverything(t *testing.T) {
	m, clock := newManualManager(t)
	for i := 0; i < 3; i++ {
		s, _ := m.Create(CreateOptions{})
		_ = m.Start(s.ID())
	}
	if !clock.BlockUntil(3, 2*time.Second) {
		t.Fatalf("loops never reached the pacing wait")
	}
	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if m.Running() != 0 {
		t.Fatalf("running = %d after shutdown", m.Running())
	}
}
