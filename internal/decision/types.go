package decision

import (
	"time"

	"agentra/internal/analysis/indicator"
	"agentra/internal/analysis/profile"
	"agentra/internal/analysis/smc"
	"agentra/internal/analysis/stats"
	"agentra/internal/memory"
	"agentra/internal/regime"
	"agentra/internal/store"
)

// Action is the oracle's verdict for one instrument.
type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
	Hold Action = "HOLD"
)

// Decision is the fixed shape of an oracle reply after parsing. StopLoss and
// TakeProfit stay nil when the oracle omits them; the lifecycle engine
// applies its own guards.
type Decision struct {
	Action     Action   `json:"decision"`
	Reason     string   `json:"reason"`
	StopLoss   *float64 `json:"stop_loss,omitempty"`
	TakeProfit *float64 `json:"take_profit,omitempty"`
	Confidence int      `json:"confidence"`
}

// HoldDecision is the degraded verdict used on throttle or failure.
func HoldDecision(reason string) Decision {
	return Decision{Action: Hold, Reason: reason, Confidence: 0}
}

// Request carries everything the gateway folds into one oracle consultation.
// The orchestrator assembles it; the gateway never fetches data itself.
type Request struct {
	Symbol string

	Micro *indicator.Series
	Macro *indicator.Series

	Regime  regime.Info
	Hurst   float64
	VPIN    float64
	Drift   stats.DriftResult
	Profile profile.Profile
	SMC     smc.Report

	LeaderSymbol    string
	LeaderChangePct float64
	LeaderLabel     string

	Sentiment string
	Lessons   []memory.Lesson

	Position *store.Position
	Balance  float64

	LastCall     time.Time
	ClosePending bool
}
