package engine

import (
	"agentra/internal/analysis/indicator"
	"agentra/internal/config"
)

// gatekeeper is the cheap pre-filter that decides whether an instrument is
// worth the macro fetch and a possible oracle consultation. Boring symbols
// with no open position and no pending override are skipped for the cycle.
type gatekeeper struct {
	cfg config.GatekeeperConfig
}

// interesting fires on an active trend (ADX), a stretched RSI, or price
// pressing against a Bollinger band.
func (g gatekeeper) interesting(snap indicator.Snapshot) bool {
	if snap.ADX > g.cfg.ADXActive {
		return true
	}
	if snap.RSI < g.cfg.RSILow || snap.RSI > g.cfg.RSIHigh {
		return true
	}
	close := snap.Candle.Close
	if snap.BBUpper > 0 && close >= snap.BBUpper*(1-g.cfg.BBProximity) {
		return true
	}
	if snap.BBLower > 0 && close <= snap.BBLower*(1+g.cfg.BBProximity) {
		return true
	}
	return false
}
