// Command sandbox runs pass-block engagements locally and prints every
// tick as it resolves.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/signalsfoundry/blocking-sandbox/core"
	"github.com/signalsfoundry/blocking-sandbox/internal/logging"
	"github.com/signalsfoundry/blocking-sandbox/internal/sim/session"
	"github.com/signalsfoundry/blocking-sandbox/model"
	"github.com/signalsfoundry/blocking-sandbox/timectrl"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "sandbox: %v\n", err)
		os.Exit(1)
	}
}

// attrFlag collects "key=value" attribute overrides, comma separated or
// repeated.
type attrFlag map[string]int

func (a attrFlag) String() string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+strconv.Itoa(a[k]))
	}
	return strings.Join(parts, ",")
}

func (a attrFlag) Set(s string) error {
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return fmt.Errorf("attribute %q: want key=value", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("attribute %q: %w", part, err)
		}
		a[strings.TrimSpace(k)] = n
	}
	return nil
}

type options struct {
	clock    string
	seed     uint64
	tickRate int
	maxTicks int
	qbDepth  float64
	blocker  attrFlag
	rusher   attrFlag
	format   string
	sessions int
	replay   bool
	logLevel string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	defaults := core.DefaultResolverConfig()
	o := options{blocker: attrFlag{}, rusher: attrFlag{}}

	fs := flag.NewFlagSet("sandbox", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.clock, "clock", timectrl.Accelerated.String(), "tick pacing: realtime or accelerated")
	fs.Uint64Var(&o.seed, "seed", 0, "noise seed; 0 picks one per session")
	fs.IntVar(&o.tickRate, "tick-rate", defaults.TickRateMs, "milliseconds per tick")
	fs.IntVar(&o.maxTicks, "max-ticks", defaults.MaxTicks, "tick limit before the blocker wins by default")
	fs.Float64Var(&o.qbDepth, "qb-depth", defaults.QBZoneDepth, "rusher depth that reaches the quarterback")
	fs.Var(o.blocker, "blocker", "blocker attribute overrides, e.g. strength=90,pass_block=85")
	fs.Var(o.rusher, "rusher", "rusher attribute overrides, e.g. speed=92,finesse_moves=88")
	fs.StringVar(&o.format, "format", "text", "output format: text or json")
	fs.IntVar(&o.sessions, "sessions", 1, "number of engagements to run concurrently")
	fs.BoolVar(&o.replay, "replay", false, "replay each finished engagement from its seed and report whether it matches")
	fs.StringVar(&o.logLevel, "log-level", "warn", "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if o.format != "text" && o.format != "json" {
		return options{}, fmt.Errorf("unknown format %q", o.format)
	}
	if o.sessions < 1 {
		return options{}, fmt.Errorf("sessions must be at least 1, got %d", o.sessions)
	}
	return o, nil
}

func (o options) players() (model.Player, model.Player, error) {
	blocker, rusher := model.DefaultBlocker(), model.DefaultRusher()
	var err error
	if blocker.Attributes, err = blocker.Attributes.Merge(o.blocker); err != nil {
		return model.Player{}, model.Player{}, fmt.Errorf("blocker: %w", err)
	}
	if rusher.Attributes, err = rusher.Attributes.Merge(o.rusher); err != nil {
		return model.Player{}, model.Player{}, fmt.Errorf("rusher: %w", err)
	}
	return blocker, rusher, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	mode, err := timectrl.ParseMode(o.clock)
	if err != nil {
		return err
	}
	blocker, rusher, err := o.players()
	if err != nil {
		return err
	}

	log := logging.New(logging.Config{Level: o.logLevel, Format: "text", Writer: stderr})
	mgr := session.NewManager(
		session.WithLogger(log),
		session.WithClock(timectrl.NewTimeController(time.Now(), mode)),
	)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mgr.Shutdown(shutdownCtx)
	}()

	out := &printer{w: stdout, json: o.format == "json", multi: o.sessions > 1}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := 0; i < o.sessions; i++ {
		seed := o.seed
		if seed != 0 {
			seed += uint64(i)
		}
		sess, err := mgr.Create(session.CreateOptions{
			Blocker:     &blocker,
			Rusher:      &rusher,
			TickRateMs:  o.tickRate,
			MaxTicks:    o.maxTicks,
			QBZoneDepth: o.qbDepth,
			Seed:        seed,
		})
		if err != nil {
			return err
		}
		out.header(sess.State())

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := runOne(ctx, mgr, id, out, o.replay); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("session %s: %w", id, err))
				mu.Unlock()
			}
		}(sess.ID())
	}
	wg.Wait()
	return errors.Join(errs...)
}

// runOne drives one session's live loop to its end and optionally checks
// the recorded run against a replay from the same seed.
func runOne(ctx context.Context, mgr *session.Manager, id string, out *printer, replay bool) error {
	done := make(chan model.SimulationState, 1)
	var live []model.TickResult
	obs := session.ObserverFuncs{
		Tick: func(sid string, res model.TickResult) {
			live = append(live, res)
			out.tick(sid, res)
		},
		Complete: func(sid string, final model.SimulationState) {
			done <- final
		},
	}
	if err := mgr.Start(id, obs); err != nil {
		return err
	}

	var final model.SimulationState
	select {
	case final = <-done:
	case <-ctx.Done():
		if err := mgr.Stop(context.Background(), id); err != nil {
			return err
		}
		final = <-done
	}
	out.complete(id, final)

	if !replay || !final.IsComplete {
		return nil
	}
	// The loop may still be unwinding after its last callback.
	if err := mgr.Stop(ctx, id); err != nil {
		return err
	}
	replayed, err := mgr.Replay(ctx, id)
	if err != nil {
		return err
	}
	out.replay(id, sameTicks(live, replayed))
	return nil
}

func sameTicks(a, b []model.TickResult) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// printer serialises output from concurrent sessions.
type printer struct {
	mu    sync.Mutex
	w     io.Writer
	json  bool
	multi bool
}

func (p *printer) emit(kind, id string, data map[string]any, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.json {
		b, err := json.Marshal(map[string]any{"type": kind, "session_id": id, "data": data})
		if err != nil {
			fmt.Fprintf(p.w, "{\"type\":\"error\",\"message\":%q}\n", err.Error())
			return
		}
		fmt.Fprintln(p.w, string(b))
		return
	}
	if p.multi {
		fmt.Fprintf(p.w, "[%s] %s\n", shortID(id), text)
		return
	}
	fmt.Fprintln(p.w, text)
}

func (p *printer) header(st model.SimulationState) {
	p.emit("state", st.SessionID, st.ToMap(), fmt.Sprintf(
		"Engagement %s: %s (STR %d, PBK %d) vs %s (STR %d, PWR %d, FIN %d), tick=%dms max=%d qb_depth=%.1f seed=%d",
		shortID(st.SessionID),
		st.Blocker.Name, st.Blocker.Attributes.Strength, st.Blocker.Attributes.PassBlock,
		st.Rusher.Name, st.Rusher.Attributes.Strength, st.Rusher.Attributes.PowerMoves, st.Rusher.Attributes.FinesseMoves,
		st.TickRateMs, st.MaxTicks, st.QBZoneDepth, st.Seed,
	))
}

func (p *printer) tick(id string, t model.TickResult) {
	p.emit("tick", id, t.ToMap(), fmt.Sprintf(
		"tick %2d %5dms  %-9s vs %-6s  margin %+6.2f  depth %5.2f  %s",
		t.Tick, t.ElapsedMs, t.RusherTechnique, t.BlockerTechnique, t.Margin, t.RusherDepth, t.State,
	))
}

func (p *printer) complete(id string, st model.SimulationState) {
	p.emit("complete", id, st.ToMap(), fmt.Sprintf(
		"outcome %s after %d ticks (rusher wins %d, blocker wins %d, neutral %d)",
		st.Outcome, st.CurrentTick, st.RusherWins, st.BlockerWins, st.NeutralTicks,
	))
}

func (p *printer) replay(id string, match bool) {
	p.emit("replay", id, map[string]any{"match": match}, fmt.Sprintf("replay matches live run: %v", match))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
