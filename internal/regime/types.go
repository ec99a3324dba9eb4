package regime

// Regime is the discrete market state the classifier maps diagnostics into.
type Regime string

const (
	Breakout  Regime = "BREAKOUT"
	Trending  Regime = "TRENDING"
	Range     Regime = "RANGE"
	Uncertain Regime = "UNCERTAIN"
	Neutral   Regime = "NEUTRAL"
)

// SizeMultiplier scales position size by regime risk character: full size in
// trends, reduced in ranges and breakouts (which can fail violently), half
// when uncertain, nothing when neutral.
func (r Regime) SizeMultiplier() float64 {
	switch r {
	case Trending:
		return 1.0
	case Range:
		return 0.75
	case Breakout:
		return 0.85
	case Uncertain:
		return 0.5
	default:
		return 0.0
	}
}

// Playbook selects the static rule set the oracle is instructed with.
type Playbook string

const (
	MomentumCatch  Playbook = "MOMENTUM_CATCH"
	TrendFollowing Playbook = "TREND_FOLLOWING"
	MeanReversion  Playbook = "MEAN_REVERSION"
	Defensive      Playbook = "DEFENSIVE"
	Wait           Playbook = "WAIT"
)

// Bias constrains the direction the oracle may pick.
type Bias string

const (
	BiasLong          Bias = "LONG"
	BiasShort         Bias = "SHORT"
	BiasBidirectional Bias = "BIDIRECTIONAL"
	BiasOnlyIfPerfect Bias = "ONLY_IF_PERFECT"
	BiasNone          Bias = ""
)

// Info is the classifier verdict for one symbol and one cycle. It is
// recomputed fresh every cycle and never persisted beyond it, except as an
// audit tag on positions opened under it.
type Info struct {
	Regime               Regime   `json:"regime"`
	Playbook             Playbook `json:"playbook"`
	Bias                 Bias     `json:"bias,omitempty"`
	ConfidenceAdjustment int      `json:"confidence_adjustment"`
	Reason               string   `json:"reason"`
}
