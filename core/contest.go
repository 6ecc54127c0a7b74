package core

import "github.com/signalsfoundry/blocking-sandbox/model"

// Noise scales for the two random phases of a tick.
const (
	SelectionNoiseSigma = 10.0
	ContestNoiseSigma   = 5.0
)

// CounterSelectionBonus is added to a blocker technique's selection weight
// when it is the natural answer to the rusher's move family.
const CounterSelectionBonus = 20.0

// Contest-phase adjustments applied to the blocker's score.
const (
	AnchorVsPowerBonus    = 5.0
	MirrorVsFinesseBonus  = 6.0
	PunchVsFinessePenalty = -5.0
)

// Margin thresholds, checked in this order.
const (
	ShedMargin           = 18.0
	PancakeMargin        = -22.0
	RusherWinningMargin  = 6.0
	BlockerWinningMargin = -6.0
)

// Movement in yards applied to the rusher for each resolved state.
const (
	ShedMovement           = 1.0
	PancakeMovement        = 0.0
	RusherWinningMovement  = 0.3
	BlockerWinningMovement = -0.1
	EngagedMovement        = 0.05

	// BlockerFollow is the share of the rusher's movement the blocker
	// mirrors, keeping the pair engaged instead of separating.
	BlockerFollow = 0.9
)

func f(v int) float64 { return float64(v) }

// rusherSelectionWeight is how attractive a move looks to the rusher before
// noise is applied.
func rusherSelectionWeight(t model.RusherTechnique, a model.Attributes) float64 {
	switch t {
	case model.BullRush:
		return 0.5*f(a.PowerMoves) + 0.4*f(a.Strength)
	case model.Swim:
		return 0.6*f(a.FinesseMoves) + 0.3*f(a.Speed)
	case model.Spin:
		return 0.6*f(a.FinesseMoves) + 0.3*f(a.Agility)
	case model.Rip:
		return 0.4*f(a.FinesseMoves) + 0.4*f(a.PowerMoves) + 0.1*f(a.Agility)
	}
	return 0
}

// blockerSelectionWeight includes the counter bonus for answering the
// rusher's move family.
func blockerSelectionWeight(t model.BlockerTechnique, a model.Attributes, vs model.RusherTechnique) float64 {
	switch t {
	case model.Anchor:
		w := 0.5*f(a.Strength) + 0.4*f(a.PassBlock)
		if vs.IsPower() {
			w += CounterSelectionBonus
		}
		return w
	case model.Mirror:
		w := 0.4*f(a.Agility) + 0.3*f(a.Speed) + 0.2*f(a.PassBlock)
		if vs.IsFinesse() {
			w += CounterSelectionBonus
		}
		return w
	case model.Punch:
		return 0.4*f(a.Strength) + 0.3*f(a.PassBlock) + 0.2*f(a.Awareness)
	}
	return 0
}

func selectRusherTechnique(a model.Attributes, noise NoiseSource) model.RusherTechnique {
	best := model.RusherTechniqueNone
	bestScore := 0.0
	for _, t := range model.RusherTechniques {
		s := rusherSelectionWeight(t, a) + noise.NormFloat64()*SelectionNoiseSigma
		if best == model.RusherTechniqueNone || s > bestScore {
			best, bestScore = t, s
		}
	}
	return best
}

func selectBlockerTechnique(a model.Attributes, vs model.RusherTechnique, noise NoiseSource) model.BlockerTechnique {
	best := model.BlockerTechniqueNone
	bestScore := 0.0
	for _, t := range model.BlockerTechniques {
		s := blockerSelectionWeight(t, a, vs) + noise.NormFloat64()*SelectionNoiseSigma
		if best == model.BlockerTechniqueNone || s > bestScore {
			best, bestScore = t, s
		}
	}
	return best
}

// rusherContestBase is the noise-free contest score for the chosen move.
func rusherContestBase(t model.RusherTechnique, a model.Attributes) float64 {
	switch t {
	case model.BullRush:
		return 0.5*f(a.PowerMoves) + 0.35*f(a.Strength) + 0.15*f(a.BlockShedding)
	case model.Swim:
		return 0.5*f(a.FinesseMoves) + 0.3*f(a.Speed) + 0.2*f(a.BlockShedding)
	case model.Spin:
		return 0.5*f(a.FinesseMoves) + 0.3*f(a.Agility) + 0.2*f(a.BlockShedding)
	case model.Rip:
		return 0.35*f(a.FinesseMoves) + 0.35*f(a.PowerMoves) + 0.3*f(a.BlockShedding)
	}
	return 0
}

// blockerContestBase is the noise-free contest score for the chosen
// response, before the counter adjustment.
func blockerContestBase(t model.BlockerTechnique, a model.Attributes) float64 {
	switch t {
	case model.Anchor:
		return 0.45*f(a.Strength) + 0.35*f(a.PassBlock) + 0.1*f(a.Awareness)
	case model.Mirror:
		return 0.35*f(a.Agility) + 0.25*f(a.Speed) + 0.3*f(a.PassBlock)
	case model.Punch:
		return 0.4*f(a.Strength) + 0.35*f(a.PassBlock) + 0.15*f(a.Awareness)
	}
	return 0
}

// counterAdjustment is the blocker's contest bonus or penalty for the
// pairing of techniques.
func counterAdjustment(b model.BlockerTechnique, r model.RusherTechnique) float64 {
	switch {
	case b == model.Anchor && r.IsPower():
		return AnchorVsPowerBonus
	case b == model.Mirror && r.IsFinesse():
		return MirrorVsFinesseBonus
	case b == model.Punch && r.IsFinesse():
		return PunchVsFinessePenalty
	}
	return 0
}

// resolveMargin maps a contest margin to the tick's state and the rusher's
// movement.
func resolveMargin(margin float64) (model.MatchupState, float64) {
	switch {
	case margin > ShedMargin:
		return model.StateShed, ShedMovement
	case margin < PancakeMargin:
		return model.StatePancake, PancakeMovement
	case margin > RusherWinningMargin:
		return model.StateRusherWinning, RusherWinningMovement
	case margin < BlockerWinningMargin:
		return model.StateBlockerWinning, BlockerWinningMovement
	default:
		return model.StateEngaged, EngagedMovement
	}
}
