package model

import "fmt"

// RusherTechnique is the pass-rush move a rusher commits to for one tick.
type RusherTechnique int

const (
	// RusherTechniqueNone marks a tick in which no move was attempted.
	RusherTechniqueNone RusherTechnique = iota
	BullRush
	Swim
	Spin
	Rip
)

// RusherTechniques lists every real move in selection order.
var RusherTechniques = []RusherTechnique{BullRush, Swim, Spin, Rip}

var rusherTechniqueNames = map[RusherTechnique]string{
	RusherTechniqueNone: "NONE",
	BullRush:            "BULL_RUSH",
	Swim:                "SWIM",
	Spin:                "SPIN",
	Rip:                 "RIP",
}

func (t RusherTechnique) String() string {
	if s, ok := rusherTechniqueNames[t]; ok {
		return s
	}
	return fmt.Sprintf("RusherTechnique(%d)", int(t))
}

// IsPower reports whether the move wins with strength (bull rush, rip).
func (t RusherTechnique) IsPower() bool { return t == BullRush || t == Rip }

// IsFinesse reports whether the move wins with quickness (swim, spin).
func (t RusherTechnique) IsFinesse() bool { return t == Swim || t == Spin }

func (t RusherTechnique) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *RusherTechnique) UnmarshalText(b []byte) error {
	v, err := ParseRusherTechnique(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseRusherTechnique converts a string tag back to a RusherTechnique.
func ParseRusherTechnique(s string) (RusherTechnique, error) {
	for k, v := range rusherTechniqueNames {
		if v == s {
			return k, nil
		}
	}
	return RusherTechniqueNone, fmt.Errorf("%w: rusher technique %q", ErrUnknownTag, s)
}

// BlockerTechnique is the pass-set response a blocker commits to for one tick.
type BlockerTechnique int

const (
	// BlockerTechniqueNone marks a tick in which no response was made.
	BlockerTechniqueNone BlockerTechnique = iota
	Anchor
	Mirror
	Punch
)

// BlockerTechniques lists every real response in selection order.
var BlockerTechniques = []BlockerTechnique{Anchor, Mirror, Punch}

var blockerTechniqueNames = map[BlockerTechnique]string{
	BlockerTechniqueNone: "NONE",
	Anchor:               "ANCHOR",
	Mirror:               "MIRROR",
	Punch:                "PUNCH",
}

func (t BlockerTechnique) String() string {
	if s, ok := blockerTechniqueNames[t]; ok {
		return s
	}
	return fmt.Sprintf("BlockerTechnique(%d)", int(t))
}

func (t BlockerTechnique) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *BlockerTechnique) UnmarshalText(b []byte) error {
	v, err := ParseBlockerTechnique(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseBlockerTechnique converts a string tag back to a BlockerTechnique.
func ParseBlockerTechnique(s string) (BlockerTechnique, error) {
	for k, v := range blockerTechniqueNames {
		if v == s {
			return k, nil
		}
	}
	return BlockerTechniqueNone, fmt.Errorf("%w: blocker technique %q", ErrUnknownTag, s)
}

// MatchupState is the qualitative state of the engagement for one tick,
// recomputed every tick from the contest margin.
type MatchupState int

const (
	StateInitial MatchupState = iota
	StateEngaged
	StateRusherWinning
	StateBlockerWinning
	StateShed
	StatePancake
)

var matchupStateNames = map[MatchupState]string{
	StateInitial:        "INITIAL",
	StateEngaged:        "ENGAGED",
	StateRusherWinning:  "RUSHER_WINNING",
	StateBlockerWinning: "BLOCKER_WINNING",
	StateShed:           "SHED",
	StatePancake:        "PANCAKE",
}

func (s MatchupState) String() string {
	if n, ok := matchupStateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("MatchupState(%d)", int(s))
}

func (s MatchupState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *MatchupState) UnmarshalText(b []byte) error {
	v, err := ParseMatchupState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseMatchupState converts a string tag back to a MatchupState.
func ParseMatchupState(s string) (MatchupState, error) {
	for k, v := range matchupStateNames {
		if v == s {
			return k, nil
		}
	}
	return StateInitial, fmt.Errorf("%w: matchup state %q", ErrUnknownTag, s)
}

// MatchupOutcome classifies how an engagement ended. OutcomeInProgress is
// the only non-terminal value.
type MatchupOutcome int

const (
	OutcomeInProgress MatchupOutcome = iota
	OutcomeRusherWin
	OutcomeBlockerWin
	OutcomePancake
)

var matchupOutcomeNames = map[MatchupOutcome]string{
	OutcomeInProgress: "IN_PROGRESS",
	OutcomeRusherWin:  "RUSHER_WIN",
	OutcomeBlockerWin: "BLOCKER_WIN",
	OutcomePancake:    "PANCAKE",
}

func (o MatchupOutcome) String() string {
	if n, ok := matchupOutcomeNames[o]; ok {
		return n
	}
	return fmt.Sprintf("MatchupOutcome(%d)", int(o))
}

// IsTerminal reports whether the engagement is over.
func (o MatchupOutcome) IsTerminal() bool { return o != OutcomeInProgress }

func (o MatchupOutcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *MatchupOutcome) UnmarshalText(b []byte) error {
	v, err := ParseMatchupOutcome(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// ParseMatchupOutcome converts a string tag back to a MatchupOutcome.
func ParseMatchupOutcome(s string) (MatchupOutcome, error) {
	for k, v := range matchupOutcomeNames {
		if v == s {
			return k, nil
		}
	}
	return OutcomeInProgress, fmt.Errorf("%w: matchup outcome %q", ErrUnknownTag, s)
}
