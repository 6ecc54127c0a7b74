package core

import (
	"errors"
	"fmt"
	"math"

	"github.com/signalsfoundry/blocking-sandbox/model"
)

// Accepted ranges for engagement configuration.
const (
	MinTickRateMs  = 50
	MaxTickRateMs  = 500
	MinMaxTicks    = 10
	MaxMaxTicks    = 100
	MinQBZoneDepth = 3.0
	MaxQBZoneDepth = 10.0
)

// Defaults applied to zero-valued configuration fields.
const (
	DefaultTickRateMs  = 100
	DefaultMaxTicks    = 50
	DefaultQBZoneDepth = 7.0
)

var (
	// ErrInvalidConfig indicates an engagement configuration outside the
	// accepted ranges.
	ErrInvalidConfig = errors.New("invalid engagement config")
	// ErrRoleMismatch indicates a participant was bound to the wrong side.
	ErrRoleMismatch = errors.New("player role does not match slot")
)

// Starting spots. The rusher lines up a yard outside the blocker's
// set point and drives along +X toward the quarterback.
var (
	BlockerStart = model.Vec2{X: 0, Y: 0}
	RusherStart  = model.Vec2{X: -1, Y: 0}
)

// ResolverConfig holds the tunables of one engagement. TickRateMs only
// timestamps results; pacing belongs to the caller.
type ResolverConfig struct {
	TickRateMs  int
	MaxTicks    int
	QBZoneDepth float64
	// Seed keys the noise stream. Zero asks the resolver to draw one.
	Seed uint64
}

// DefaultResolverConfig returns the stock engagement configuration.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		TickRateMs:  DefaultTickRateMs,
		MaxTicks:    DefaultMaxTicks,
		QBZoneDepth: DefaultQBZoneDepth,
	}
}

// WithDefaults fills zero-valued fields from DefaultResolverConfig.
func (c ResolverConfig) WithDefaults() ResolverConfig {
	if c.TickRateMs == 0 {
		c.TickRateMs = DefaultTickRateMs
	}
	if c.MaxTicks == 0 {
		c.MaxTicks = DefaultMaxTicks
	}
	if c.QBZoneDepth == 0 {
		c.QBZoneDepth = DefaultQBZoneDepth
	}
	return c
}

// Validate checks every field against its accepted range.
func (c ResolverConfig) Validate() error {
	if err := ValidateTickRate(c.TickRateMs); err != nil {
		return err
	}
	if c.MaxTicks < MinMaxTicks || c.MaxTicks > MaxMaxTicks {
		return fmt.Errorf("%w: max_ticks %d outside [%d,%d]", ErrInvalidConfig, c.MaxTicks, MinMaxTicks, MaxMaxTicks)
	}
	if c.QBZoneDepth < MinQBZoneDepth || c.QBZoneDepth > MaxQBZoneDepth {
		return fmt.Errorf("%w: qb_zone_depth %.2f outside [%.1f,%.1f]", ErrInvalidConfig, c.QBZoneDepth, MinQBZoneDepth, MaxQBZoneDepth)
	}
	return nil
}

// ValidateTickRate checks a tick interval in milliseconds.
func ValidateTickRate(ms int) error {
	if ms < MinTickRateMs || ms > MaxTickRateMs {
		return fmt.Errorf("%w: tick_rate_ms %d outside [%d,%d]", ErrInvalidConfig, ms, MinTickRateMs, MaxTickRateMs)
	}
	return nil
}

// ResolverOption customises Resolver construction.
type ResolverOption func(*Resolver)

// WithNoise replaces the seeded noise stream. Replay only reproduces a run
// when the source can rewind to the start of that run.
func WithNoise(n NoiseSource) ResolverOption {
	return func(r *Resolver) {
		if n != nil {
			r.noise = n
		}
	}
}

// Resolver advances one blocker-versus-rusher engagement tick by tick.
// It is not safe for concurrent use; callers serialize access.
type Resolver struct {
	blocker model.Player
	rusher  model.Player
	cfg     ResolverConfig
	noise   NoiseSource

	tick       int
	depth      float64
	blockerPos model.Vec2
	rusherPos  model.Vec2
	state      model.MatchupState
	outcome    model.MatchupOutcome

	rusherWins   int
	blockerWins  int
	neutralTicks int
}

// NewResolver builds a resolver for the given participants. Zero-valued
// config fields take their defaults.
func NewResolver(blocker, rusher model.Player, cfg ResolverConfig, opts ...ResolverOption) (*Resolver, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := checkSlot(blocker, model.RoleBlocker); err != nil {
		return nil, err
	}
	if err := checkSlot(rusher, model.RoleRusher); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = NewSeed()
	}

	r := &Resolver{
		blocker: blocker,
		rusher:  rusher,
		cfg:     cfg,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.noise == nil {
		r.noise = newSeededNoise(cfg.Seed)
	}
	r.Reset()
	return r, nil
}

func checkSlot(p model.Player, want model.Role) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.Role != want {
		return fmt.Errorf("%w: %s given as %s", ErrRoleMismatch, p.Role, want)
	}
	return nil
}

// Config returns the active configuration, including the resolved seed.
func (r *Resolver) Config() ResolverConfig { return r.cfg }

// Blocker returns the bound blocker.
func (r *Resolver) Blocker() model.Player { return r.blocker }

// Rusher returns the bound rusher.
func (r *Resolver) Rusher() model.Player { return r.rusher }

// Outcome returns the current outcome.
func (r *Resolver) Outcome() model.MatchupOutcome { return r.outcome }

// IsComplete reports whether a terminal outcome has been reached.
func (r *Resolver) IsComplete() bool { return r.outcome.IsTerminal() }

// Reset returns counters, positions and outcome to their initial values.
// Configuration and participants are kept. The noise stream carries on
// from where it is, so the next run draws fresh noise; Replay is the way
// to repeat a run.
func (r *Resolver) Reset() {
	r.tick = 0
	r.depth = 0
	r.blockerPos = BlockerStart
	r.rusherPos = RusherStart
	r.state = model.StateInitial
	r.outcome = model.OutcomeInProgress
	r.rusherWins = 0
	r.blockerWins = 0
	r.neutralTicks = 0
}

// Tick advances the engagement by one step. Once the outcome is terminal it
// returns a neutral result and changes nothing.
func (r *Resolver) Tick() model.TickResult {
	if r.outcome.IsTerminal() {
		return r.neutralResult()
	}
	if r.tick == 0 {
		if rw, ok := r.noise.(rewinder); ok {
			rw.Mark()
		}
	}
	r.tick++

	rt := selectRusherTechnique(r.rusher.Attributes, r.noise)
	bt := selectBlockerTechnique(r.blocker.Attributes, rt, r.noise)

	rusherScore := rusherContestBase(rt, r.rusher.Attributes) + r.noise.NormFloat64()*ContestNoiseSigma
	blockerScore := blockerContestBase(bt, r.blocker.Attributes) + r.noise.NormFloat64()*ContestNoiseSigma +
		counterAdjustment(bt, rt)

	margin := rusherScore - blockerScore
	state, movement := resolveMargin(margin)

	r.rusherPos.X += movement
	r.blockerPos.X += movement * BlockerFollow
	if movement > 0 {
		r.depth = roundYards(r.depth + movement)
	}
	r.state = state

	switch {
	case margin > RusherWinningMargin:
		r.rusherWins++
	case margin < BlockerWinningMargin:
		r.blockerWins++
	default:
		r.neutralTicks++
	}

	r.outcome = decideOutcome(r.depth, state, r.tick, r.cfg)

	return model.TickResult{
		Tick:               r.tick,
		ElapsedMs:          r.elapsedMs(),
		BlockerPos:         r.blockerPos,
		RusherPos:          r.rusherPos,
		RusherTechnique:    rt,
		BlockerTechnique:   bt,
		RusherScore:        rusherScore,
		BlockerScore:       blockerScore,
		Margin:             margin,
		Movement:           movement,
		State:              state,
		Outcome:            r.outcome,
		RusherDepth:        r.depth,
		EngagementDuration: r.engagementSeconds(),
	}
}

// depthTolerance absorbs rounding in the summed per-tick movements, which
// are multiples of 0.05 yd that float64 cannot hold exactly.
const depthTolerance = 1e-9

// roundYards snaps a distance to micro-yards so repeated sums of the
// movement steps stay on their exact values.
func roundYards(y float64) float64 { return math.Round(y*1e6) / 1e6 }

// decideOutcome applies the win conditions in priority order: reaching the
// QB zone beats a pancake, and both beat running out the clock.
func decideOutcome(depth float64, state model.MatchupState, tick int, cfg ResolverConfig) model.MatchupOutcome {
	switch {
	case depth >= cfg.QBZoneDepth-depthTolerance:
		return model.OutcomeRusherWin
	case state == model.StatePancake:
		return model.OutcomePancake
	case tick >= cfg.MaxTicks:
		return model.OutcomeBlockerWin
	}
	return model.OutcomeInProgress
}

func (r *Resolver) neutralResult() model.TickResult {
	return model.TickResult{
		Tick:               r.tick,
		ElapsedMs:          r.elapsedMs(),
		BlockerPos:         r.blockerPos,
		RusherPos:          r.rusherPos,
		State:              r.state,
		Outcome:            r.outcome,
		RusherDepth:        r.depth,
		EngagementDuration: r.engagementSeconds(),
	}
}

func (r *Resolver) elapsedMs() int { return r.tick * r.cfg.TickRateMs }

func (r *Resolver) engagementSeconds() float64 {
	return float64(r.elapsedMs()) / 1000.0
}

// RunToCompletion resets the engagement and ticks until a terminal outcome,
// returning every result in order.
func (r *Resolver) RunToCompletion() []model.TickResult {
	r.Reset()
	results := make([]model.TickResult, 0, r.cfg.MaxTicks)
	for !r.outcome.IsTerminal() {
		results = append(results, r.Tick())
	}
	return results
}

// Replay rewinds the noise stream to the start of the most recent run and
// resolves it again to completion. With unchanged participants the results
// equal that run's, whether it was stepped, run live or run synchronously,
// finished or not. Before any tick it reproduces the first run of the seed.
func (r *Resolver) Replay() []model.TickResult {
	if rw, ok := r.noise.(rewinder); ok {
		rw.Rewind()
	}
	return r.RunToCompletion()
}

// SetPlayer swaps the participant for the given role and resets.
func (r *Resolver) SetPlayer(p model.Player) error {
	switch p.Role {
	case model.RoleBlocker:
		if err := checkSlot(p, model.RoleBlocker); err != nil {
			return err
		}
		r.blocker = p
	case model.RoleRusher:
		if err := checkSlot(p, model.RoleRusher); err != nil {
			return err
		}
		r.rusher = p
	default:
		return fmt.Errorf("%w: role %s", model.ErrInvalidPlayer, p.Role)
	}
	r.Reset()
	return nil
}

// SetTickRate changes the timestamp interval and resets.
func (r *Resolver) SetTickRate(ms int) error {
	if err := ValidateTickRate(ms); err != nil {
		return err
	}
	r.cfg.TickRateMs = ms
	r.Reset()
	return nil
}

// Snapshot returns the engagement's aggregate state. Session-level fields
// (id, running, paused) are left for the owner to fill.
func (r *Resolver) Snapshot() model.SimulationState {
	return model.SimulationState{
		Blocker:      r.blocker,
		Rusher:       r.rusher,
		TickRateMs:   r.cfg.TickRateMs,
		MaxTicks:     r.cfg.MaxTicks,
		QBZoneDepth:  r.cfg.QBZoneDepth,
		Seed:         r.cfg.Seed,
		CurrentTick:  r.tick,
		IsComplete:   r.outcome.IsTerminal(),
		BlockerPos:   r.blockerPos,
		RusherPos:    r.rusherPos,
		RusherDepth:  r.depth,
		Outcome:      r.outcome,
		RusherWins:   r.rusherWins,
		BlockerWins:  r.blockerWins,
		NeutralTicks: r.neutralTicks,
	}
}
