package model

// TickResult records one simulated instant. It is produced once per tick
// and never modified afterwards.
type TickResult struct {
	Tick               int              `json:"tick"`
	ElapsedMs          int              `json:"elapsed_ms"`
	BlockerPos         Vec2             `json:"blocker_position"`
	RusherPos          Vec2             `json:"rusher_position"`
	RusherTechnique    RusherTechnique  `json:"rusher_technique"`
	BlockerTechnique   BlockerTechnique `json:"blocker_technique"`
	RusherScore        float64          `json:"rusher_score"`
	BlockerScore       float64          `json:"blocker_score"`
	Margin             float64          `json:"margin"`
	Movement           float64          `json:"movement"`
	State              MatchupState     `json:"state"`
	Outcome            MatchupOutcome   `json:"outcome"`
	RusherDepth        float64          `json:"rusher_depth"`
	EngagementDuration float64          `json:"engagement_duration"`
}

// ToMap renders the tick as a flat keyed structure.
func (t TickResult) ToMap() map[string]any {
	return map[string]any{
		"tick":                t.Tick,
		"elapsed_ms":          t.ElapsedMs,
		"blocker_position":    t.BlockerPos.ToMap(),
		"rusher_position":     t.RusherPos.ToMap(),
		"rusher_technique":    t.RusherTechnique.String(),
		"blocker_technique":   t.BlockerTechnique.String(),
		"rusher_score":        t.RusherScore,
		"blocker_score":       t.BlockerScore,
		"margin":              t.Margin,
		"movement":            t.Movement,
		"state":               t.State.String(),
		"outcome":             t.Outcome.String(),
		"rusher_depth":        t.RusherDepth,
		"engagement_duration": t.EngagementDuration,
	}
}

// TickResultFromMap parses the form produced by ToMap.
func TickResultFromMap(m map[string]any) (TickResult, error) {
	var (
		t   TickResult
		err error
	)
	if t.Tick, err = IntField(m, "tick"); err != nil {
		return TickResult{}, err
	}
	if t.ElapsedMs, err = IntField(m, "elapsed_ms"); err != nil {
		return TickResult{}, err
	}
	if t.BlockerPos, err = vecField(m, "blocker_position"); err != nil {
		return TickResult{}, err
	}
	if t.RusherPos, err = vecField(m, "rusher_position"); err != nil {
		return TickResult{}, err
	}
	if s, err := StringField(m, "rusher_technique"); err != nil {
		return TickResult{}, err
	} else if s != "" {
		if t.RusherTechnique, err = ParseRusherTechnique(s); err != nil {
			return TickResult{}, err
		}
	}
	if s, err := StringField(m, "blocker_technique"); err != nil {
		return TickResult{}, err
	} else if s != "" {
		if t.BlockerTechnique, err = ParseBlockerTechnique(s); err != nil {
			return TickResult{}, err
		}
	}
	if t.RusherScore, err = FloatField(m, "rusher_score"); err != nil {
		return TickResult{}, err
	}
	if t.BlockerScore, err = FloatField(m, "blocker_score"); err != nil {
		return TickResult{}, err
	}
	if t.Margin, err = FloatField(m, "margin"); err != nil {
		return TickResult{}, err
	}
	if t.Movement, err = FloatField(m, "movement"); err != nil {
		return TickResult{}, err
	}
	if t.State, err = stateField(m, "state"); err != nil {
		return TickResult{}, err
	}
	if t.Outcome, err = outcomeField(m, "outcome"); err != nil {
		return TickResult{}, err
	}
	if t.RusherDepth, err = FloatField(m, "rusher_depth"); err != nil {
		return TickResult{}, err
	}
	if t.EngagementDuration, err = FloatField(m, "engagement_duration"); err != nil {
		return TickResult{}, err
	}
	return t, nil
}

// SimulationState is the aggregate snapshot of one session. A new value is
// built for every query; holders never see it change.
type SimulationState struct {
	SessionID   string  `json:"session_id"`
	Blocker     Player  `json:"blocker"`
	Rusher      Player  `json:"rusher"`
	TickRateMs  int     `json:"tick_rate_ms"`
	MaxTicks    int     `json:"max_ticks"`
	QBZoneDepth float64 `json:"qb_zone_depth"`
	Seed        uint64  `json:"seed,string"`

	CurrentTick int  `json:"current_tick"`
	IsRunning   bool `json:"is_running"`
	IsPaused    bool `json:"is_paused"`
	IsComplete  bool `json:"is_complete"`

	BlockerPos  Vec2           `json:"blocker_position"`
	RusherPos   Vec2           `json:"rusher_position"`
	RusherDepth float64        `json:"rusher_depth"`
	Outcome     MatchupOutcome `json:"outcome"`

	RusherWins   int `json:"rusher_wins"`
	BlockerWins  int `json:"blocker_wins"`
	NeutralTicks int `json:"neutral_ticks"`
}

// ToMap renders the state as a keyed structure. Participants use their
// flat map form. The seed is rendered as a decimal string because generic
// keyed transports carry numbers as float64.
func (s SimulationState) ToMap() map[string]any {
	return map[string]any{
		"session_id":       s.SessionID,
		"blocker":          s.Blocker.ToMap(),
		"rusher":           s.Rusher.ToMap(),
		"tick_rate_ms":     s.TickRateMs,
		"max_ticks":        s.MaxTicks,
		"qb_zone_depth":    s.QBZoneDepth,
		"seed":             formatSeed(s.Seed),
		"current_tick":     s.CurrentTick,
		"is_running":       s.IsRunning,
		"is_paused":        s.IsPaused,
		"is_complete":      s.IsComplete,
		"blocker_position": s.BlockerPos.ToMap(),
		"rusher_position":  s.RusherPos.ToMap(),
		"rusher_depth":     s.RusherDepth,
		"outcome":          s.Outcome.String(),
		"rusher_wins":      s.RusherWins,
		"blocker_wins":     s.BlockerWins,
		"neutral_ticks":    s.NeutralTicks,
	}
}

// SimulationStateFromMap parses the form produced by ToMap.
func SimulationStateFromMap(m map[string]any) (SimulationState, error) {
	var (
		s   SimulationState
		err error
	)
	if s.SessionID, err = StringField(m, "session_id"); err != nil {
		return SimulationState{}, err
	}
	if s.Blocker, err = playerField(m, "blocker", DefaultBlocker()); err != nil {
		return SimulationState{}, err
	}
	if s.Rusher, err = playerField(m, "rusher", DefaultRusher()); err != nil {
		return SimulationState{}, err
	}
	if s.TickRateMs, err = IntField(m, "tick_rate_ms"); err != nil {
		return SimulationState{}, err
	}
	if s.MaxTicks, err = IntField(m, "max_ticks"); err != nil {
		return SimulationState{}, err
	}
	if s.QBZoneDepth, err = FloatField(m, "qb_zone_depth"); err != nil {
		return SimulationState{}, err
	}
	seed, err := StringField(m, "seed")
	if err != nil {
		return SimulationState{}, err
	}
	if s.Seed, err = parseSeed(seed); err != nil {
		return SimulationState{}, err
	}
	if s.CurrentTick, err = IntField(m, "current_tick"); err != nil {
		return SimulationState{}, err
	}
	if s.IsRunning, err = BoolField(m, "is_running"); err != nil {
		return SimulationState{}, err
	}
	if s.IsPaused, err = BoolField(m, "is_paused"); err != nil {
		return SimulationState{}, err
	}
	if s.IsComplete, err = BoolField(m, "is_complete"); err != nil {
		return SimulationState{}, err
	}
	if s.BlockerPos, err = vecField(m, "blocker_position"); err != nil {
		return SimulationState{}, err
	}
	if s.RusherPos, err = vecField(m, "rusher_position"); err != nil {
		return SimulationState{}, err
	}
	if s.RusherDepth, err = FloatField(m, "rusher_depth"); err != nil {
		return SimulationState{}, err
	}
	if s.Outcome, err = outcomeField(m, "outcome"); err != nil {
		return SimulationState{}, err
	}
	if s.RusherWins, err = IntField(m, "rusher_wins"); err != nil {
		return SimulationState{}, err
	}
	if s.BlockerWins, err = IntField(m, "blocker_wins"); err != nil {
		return SimulationState{}, err
	}
	if s.NeutralTicks, err = IntField(m, "neutral_ticks"); err != nil {
		return SimulationState{}, err
	}
	return s, nil
}

func vecField(m map[string]any, key string) (Vec2, error) {
	sub, err := MapField(m, key)
	if err != nil {
		return Vec2{}, err
	}
	return Vec2FromMap(sub)
}

func playerField(m map[string]any, key string, base Player) (Player, error) {
	sub, err := MapField(m, key)
	if err != nil {
		return Player{}, err
	}
	return PlayerFromMap(sub, base)
}

func stateField(m map[string]any, key string) (MatchupState, error) {
	s, err := StringField(m, key)
	if err != nil || s == "" {
		return StateInitial, err
	}
	return ParseMatchupState(s)
}

func outcomeField(m map[string]any, key string) (MatchupOutcome, error) {
	s, err := StringField(m, key)
	if err != nil || s == "" {
		return OutcomeInProgress, err
	}
	return ParseMatchupOutcome(s)
}
