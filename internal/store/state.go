package store

import (
	"time"

	"agentra/internal/regime"
)

// Position is one open position. Owned exclusively by the position lifecycle
// engine; at most one per symbol exists at any time.
type Position struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"` // LONG or SHORT
	EntryPrice float64 `json:"entry_price"`
	Quantity   float64 `json:"quantity"`
	StopLoss   float64 `json:"stop_loss"`
	// InitialStopLoss is write-once at entry. It only renders trailing
	// progress and never participates in exit evaluation.
	InitialStopLoss float64     `json:"initial_stop_loss"`
	TakeProfit      float64     `json:"take_profit"`
	EntryTime       time.Time   `json:"entry_time"`
	RegimeAtEntry   regime.Info `json:"regime_at_entry"`
	StrategyUsed    string      `json:"strategy_used"`
	CurrentPrice    float64     `json:"current_price"`
	LastUpdate      time.Time   `json:"last_update"`
}

func (p Position) IsLong() bool { return p.Side == "LONG" }

// TradeContext is the forensic payload frozen into a TradeRecord.
type TradeContext struct {
	EntryRegime  regime.Info `json:"entry_regime"`
	ExitRegime   regime.Info `json:"exit_regime"`
	StrategyUsed string      `json:"strategy_used"`
}

// TradeRecord is immutable and append-only; exactly one is created when a
// position closes.
type TradeRecord struct {
	ID         string       `json:"id"`
	Symbol     string       `json:"symbol"`
	Side       string       `json:"side"`
	EntryPrice float64      `json:"entry_price"`
	ExitPrice  float64      `json:"exit_price"`
	ExitTime   time.Time    `json:"exit_time"`
	PnLPercent float64      `json:"pnl_percent"`
	Realized   float64      `json:"realized_pnl"`
	Reason     string       `json:"reason"`
	Context    TradeContext `json:"context"`
}

type Metrics struct {
	Wins     int     `json:"wins"`
	Losses   int     `json:"losses"`
	TotalPnL float64 `json:"total_pnl"`
}

// Analysis is the latest per-cycle display snapshot.
type Analysis struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	RSI    float64 `json:"rsi"`
	ADX    float64 `json:"adx"`
}

// State is the whole persisted agent document. It is loaded fresh at the top
// of each symbol's turn, mutated in memory, and written back immediately
// after every meaningful mutation.
type State struct {
	Positions      []Position           `json:"current_positions"`
	TradeHistory   []TradeRecord        `json:"trade_history"`
	Metrics        Metrics              `json:"performance_metrics"`
	AccountBalance float64              `json:"account_balance"`
	LastOracleCall map[string]time.Time `json:"last_ai_analysis"`
	LatestAnalysis Analysis             `json:"latest_analysis"`
	LastRun        time.Time            `json:"last_run"`
}

// NewState returns the default document for a fresh deployment.
func NewState(initialBalance float64) *State {
	return &State{
		Positions:      nil,
		TradeHistory:   nil,
		AccountBalance: initialBalance,
		LastOracleCall: make(map[string]time.Time),
	}
}

func (s *State) Position(symbol string) (Position, bool) {
	for _, p := range s.Positions {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return Position{}, false
}

// SetPosition inserts or replaces the position for its symbol, preserving
// the one-open-position-per-symbol invariant.
func (s *State) SetPosition(pos Position) {
	for i, p := range s.Positions {
		if p.Symbol == pos.Symbol {
			s.Positions[i] = pos
			return
		}
	}
	s.Positions = append(s.Positions, pos)
}

func (s *State) RemovePosition(symbol string) {
	out := s.Positions[:0]
	for _, p := range s.Positions {
		if p.Symbol != symbol {
			out = append(out, p)
		}
	}
	s.Positions = out
}

func (s *State) OpenCount() int { return len(s.Positions) }

// RecordTrade appends the record and applies its side effects on balance and
// win/loss metrics.
func (s *State) RecordTrade(rec TradeRecord) {
	s.TradeHistory = append(s.TradeHistory, rec)
	s.Metrics.TotalPnL += rec.Realized
	s.AccountBalance += rec.Realized
	if rec.Realized > 0 {
		s.Metrics.Wins++
	} else {
		s.Metrics.Losses++
	}
}
