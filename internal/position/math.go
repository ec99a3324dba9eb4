package position

import (
	"math"

	"github.com/shopspring/decimal"
)

var decimalZero = decimal.Zero

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimalZero
	}
	return decimal.NewFromFloat(val)
}

func decToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

func decimalLTE(a, b float64) bool { return decFromFloat(a).Cmp(decFromFloat(b)) <= 0 }
func decimalGTE(a, b float64) bool { return decFromFloat(a).Cmp(decFromFloat(b)) >= 0 }
func decimalGT(a, b float64) bool  { return decFromFloat(a).Cmp(decFromFloat(b)) > 0 }
func decimalLT(a, b float64) bool  { return decFromFloat(a).Cmp(decFromFloat(b)) < 0 }

// confidenceAllocation maps clamped oracle confidence to the fraction of the
// risk budget committed.
func confidenceAllocation(confidence int) float64 {
	switch {
	case confidence >= 9:
		return 1.0
	case confidence >= 7:
		return 0.75
	case confidence >= 5:
		return 0.5
	default:
		return 0.0
	}
}

// positionSize computes quantity = balance * riskPct% * regimeMult *
// confAlloc / |entry - stop| in decimal, then caps the notional at
// leverageCap * balance.
func positionSize(balance, riskPct, regimeMult float64, confidence int, entry, stop, leverageCap float64) float64 {
	riskDistance := decFromFloat(entry).Sub(decFromFloat(stop)).Abs()
	if riskDistance.IsZero() || balance <= 0 || entry <= 0 {
		return 0
	}
	alloc := confidenceAllocation(confidence)
	if alloc == 0 || regimeMult == 0 {
		return 0
	}
	budget := decFromFloat(balance).
		Mul(decFromFloat(riskPct).Div(decimal.NewFromInt(100))).
		Mul(decFromFloat(regimeMult)).
		Mul(decFromFloat(alloc))
	qty := budget.Div(riskDistance)

	if leverageCap > 0 {
		maxQty := decFromFloat(balance).Mul(decFromFloat(leverageCap)).Div(decFromFloat(entry))
		if qty.Cmp(maxQty) > 0 {
			qty = maxQty
		}
	}
	return decToFloat(qty)
}

// realizedPnL returns (absolute pnl, percent pnl) for a closed position.
func realizedPnL(side string, entry, exit, qty float64) (float64, float64) {
	change := decFromFloat(exit).Sub(decFromFloat(entry))
	if side == "SHORT" {
		change = change.Neg()
	}
	pnl := change.Mul(decFromFloat(qty))
	var pct decimal.Decimal
	if entry != 0 {
		pct = change.Div(decFromFloat(entry)).Mul(decimal.NewFromInt(100))
	}
	return decToFloat(pnl), decToFloat(pct)
}
