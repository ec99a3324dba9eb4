package regime

import (
	"fmt"
	"math"

	"agentra/internal/analysis/profile"
	"agentra/internal/config"
)

// Observation is everything the classifier looks at. It is assembled by the
// orchestrator so that Classify stays a pure function: identical
// observations always yield identical verdicts.
type Observation struct {
	// Micro timeframe, latest two closed candles.
	MicroClose     float64
	MicroPrevClose float64
	MicroVolume    float64
	// MicroAvgVolume is the trailing average volume excluding the latest
	// candle.
	MicroAvgVolume float64

	// Macro timeframe, latest values.
	MacroADX    float64
	MacroClose  float64
	MacroEMA200 float64

	Hurst           float64
	Profile         profile.Profile
	LeaderChangePct float64
	DriftDetected   bool
}

type Classifier struct {
	cfg config.ClassifierConfig
}

func NewClassifier(cfg config.ClassifierConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify runs the fixed priority cascade: breakout, trend, range,
// uncertainty, neutral. First match wins; a fresh high-volume breakout
// overrides a simultaneously true trending condition.
func (c *Classifier) Classify(obs Observation) Info {
	if info, ok := c.detectBreakout(obs); ok {
		return info
	}

	if obs.MacroADX > c.cfg.ADXTrend || obs.Hurst > c.cfg.HurstTrend {
		bias := BiasShort
		if obs.MacroClose > obs.MacroEMA200 {
			bias = BiasLong
		}
		adj := 0
		if math.Abs(obs.LeaderChangePct) > c.cfg.LeaderActivePct {
			adj = 1
		}
		return Info{
			Regime:               Trending,
			Playbook:             TrendFollowing,
			Bias:                 bias,
			ConfidenceAdjustment: adj,
			Reason:               fmt.Sprintf("strong trend (ADX %.1f, Hurst %.2f)", obs.MacroADX, obs.Hurst),
		}
	}

	if obs.MacroADX < c.cfg.ADXTrend && obs.Hurst < c.cfg.HurstRange &&
		math.Abs(obs.LeaderChangePct) < c.cfg.LeaderQuietPct {
		var channelWidth float64
		if obs.Profile.POC > 0 {
			channelWidth = (obs.Profile.VAH - obs.Profile.VAL) / obs.Profile.POC
		}
		if channelWidth > c.cfg.ChannelWidthMin {
			return Info{
				Regime:               Range,
				Playbook:             MeanReversion,
				Bias:                 BiasBidirectional,
				ConfidenceAdjustment: 0,
				Reason:               fmt.Sprintf("range-bound market (ADX %.1f, channel %.1f%%)", obs.MacroADX, channelWidth*100),
			}
		}
	}

	if obs.DriftDetected || (obs.Hurst > c.cfg.HurstNoiseLow && obs.Hurst < c.cfg.HurstNoiseHigh) {
		return Info{
			Regime:               Uncertain,
			Playbook:             Defensive,
			Bias:                 BiasOnlyIfPerfect,
			ConfidenceAdjustment: -2,
			Reason:               "noise zone / statistical drift - only exceptional setups",
		}
	}

	return Info{
		Regime:               Neutral,
		Playbook:             Wait,
		Bias:                 BiasNone,
		ConfidenceAdjustment: 0,
		Reason:               "no clear regime - waiting for setup",
	}
}

// detectBreakout fires only on a fresh break: the current close is beyond
// VAH/VAL on elevated volume while the previous close was still inside the
// level (within a small tolerance band), so continuations do not re-trigger.
func (c *Classifier) detectBreakout(obs Observation) (Info, bool) {
	avgVol := obs.MicroAvgVolume
	if avgVol <= 0 {
		avgVol = 1
	}
	if obs.MicroVolume <= avgVol*c.cfg.BreakoutVolume {
		return Info{}, false
	}
	conviction := "MEDIUM"
	if obs.MicroVolume > avgVol*c.cfg.BreakoutHighVol {
		conviction = "HIGH"
	}
	band := c.cfg.BreakoutBandPct

	if obs.MicroClose > obs.Profile.VAH && obs.MicroPrevClose <= obs.Profile.VAH*(1+band) {
		return Info{
			Regime:               Breakout,
			Playbook:             MomentumCatch,
			Bias:                 BiasLong,
			ConfidenceAdjustment: 1,
			Reason:               fmt.Sprintf("bullish breakout above VAH %.4f with %s volume", obs.Profile.VAH, conviction),
		}, true
	}
	if obs.MicroClose < obs.Profile.VAL && obs.MicroPrevClose >= obs.Profile.VAL*(1-band) {
		return Info{
			Regime:               Breakout,
			Playbook:             MomentumCatch,
			Bias:                 BiasShort,
			ConfidenceAdjustment: 1,
			Reason:               fmt.Sprintf("bearish breakdown below VAL %.4f with %s volume", obs.Profile.VAL, conviction),
		}, true
	}
	return Info{}, false
}
