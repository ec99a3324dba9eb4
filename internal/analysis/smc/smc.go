package smc

import (
	"fmt"
	"strings"

	"agentra/internal/market"
)

const (
	fvgWindow   = 15
	swingWindow = 50
	surfaced    = 3
)

// Gap is a three-candle price imbalance (fair value gap).
type Gap struct {
	Bullish bool    `json:"bullish"`
	Lower   float64 `json:"lower"`
	Upper   float64 `json:"upper"`
	// Age counts candles since the gap's middle candle, 0 = most recent.
	Age int `json:"age"`
}

// Swing is an untapped liquidity level at a local extremum.
type Swing struct {
	High  bool    `json:"high"`
	Price float64 `json:"price"`
}

// Report aggregates the smart-money context surfaced to the oracle. The
// pattern tags are informational only, never traded on directly.
type Report struct {
	Gaps     []Gap    `json:"gaps,omitempty"`
	Swings   []Swing  `json:"swings,omitempty"`
	Patterns []string `json:"patterns,omitempty"`
}

// Analyze extracts fair value gaps from the trailing window, swing-point
// liquidity levels, and candlestick pattern tags for the latest candle.
func Analyze(candles []market.Candle) Report {
	var rep Report
	if len(candles) < 5 {
		return rep
	}
	rep.Gaps = fairValueGaps(candles)
	rep.Swings = swingPoints(candles)
	rep.Patterns = candlePatterns(candles)
	return rep
}

// fairValueGaps scans consecutive triplets: bullish when candle i's high sits
// strictly below candle i+2's low, bearish on the mirrored condition. Only
// the freshest few gaps are kept.
func fairValueGaps(candles []market.Candle) []Gap {
	window := candles
	if len(window) > fvgWindow {
		window = window[len(window)-fvgWindow:]
	}
	var gaps []Gap
	for i := 0; i+2 < len(window); i++ {
		c1 := window[i]
		c3 := window[i+2]
		age := len(window) - i - 2
		if c1.High < c3.Low {
			gaps = append(gaps, Gap{Bullish: true, Lower: c1.High, Upper: c3.Low, Age: age})
		}
		if c1.Low > c3.High {
			gaps = append(gaps, Gap{Bullish: false, Lower: c3.High, Upper: c1.Low, Age: age})
		}
	}
	if len(gaps) > surfaced {
		gaps = gaps[len(gaps)-surfaced:]
	}
	return gaps
}

// swingPoints finds strict local extrema over a 5-candle window (two candles
// each side).
func swingPoints(candles []market.Candle) []Swing {
	window := candles
	if len(window) > swingWindow {
		window = window[len(window)-swingWindow:]
	}
	var lows, highs []Swing
	for i := 2; i+2 < len(window); i++ {
		low := window[i].Low
		if window[i-1].Low > low && window[i-2].Low > low &&
			window[i+1].Low > low && window[i+2].Low > low {
			lows = append(lows, Swing{High: false, Price: low})
		}
		high := window[i].High
		if window[i-1].High < high && window[i-2].High < high &&
			window[i+1].High < high && window[i+2].High < high {
			highs = append(highs, Swing{High: true, Price: high})
		}
	}
	if len(lows) > surfaced {
		lows = lows[len(lows)-surfaced:]
	}
	if len(highs) > surfaced {
		highs = highs[len(highs)-surfaced:]
	}
	return append(lows, highs...)
}

// candlePatterns tags the latest candle relative to the prior one.
func candlePatterns(candles []market.Candle) []string {
	last := candles[len(candles)-1]
	prev := candles[len(candles)-2]

	var patterns []string
	body := abs(last.Close - last.Open)
	totalRange := last.High - last.Low

	prevRed := prev.Close < prev.Open
	prevGreen := prev.Close > prev.Open
	lastGreen := last.Close > last.Open
	lastRed := last.Close < last.Open

	if prevRed && lastGreen && last.Close > prev.Open && last.Open < prev.Close {
		patterns = append(patterns, "BULLISH_ENGULFING")
	}
	if prevGreen && lastRed && last.Close < prev.Open && last.Open > prev.Close {
		patterns = append(patterns, "BEARISH_ENGULFING")
	}

	lowerWick := min(last.Open, last.Close) - last.Low
	upperWick := last.High - max(last.Open, last.Close)
	if lowerWick > body*2 && upperWick < body*0.5 {
		patterns = append(patterns, "HAMMER_PINBAR")
	}
	if upperWick > body*2 && lowerWick < body*0.5 {
		patterns = append(patterns, "SHOOTING_STAR")
	}
	if totalRange > 0 && body <= totalRange*0.1 {
		patterns = append(patterns, "DOJI")
	}
	return patterns
}

// Render formats the report for the oracle prompt.
func (r Report) Render() string {
	var b strings.Builder
	b.WriteString("FAIR VALUE GAPS:\n")
	if len(r.Gaps) == 0 {
		b.WriteString("None recently.\n")
	}
	for _, g := range r.Gaps {
		side := "Bearish"
		if g.Bullish {
			side = "Bullish"
		}
		fmt.Fprintf(&b, "%s FVG at %.4f-%.4f (age %d)\n", side, g.Lower, g.Upper, g.Age)
	}
	b.WriteString("LIQUIDITY POOLS (Swing Highs/Lows):\n")
	if len(r.Swings) == 0 {
		b.WriteString("None defined nearby.\n")
	}
	for _, s := range r.Swings {
		if s.High {
			fmt.Fprintf(&b, "Buy-side liquidity (high): %.4f\n", s.Price)
		} else {
			fmt.Fprintf(&b, "Sell-side liquidity (low): %.4f\n", s.Price)
		}
	}
	b.WriteString("CANDLE PATTERNS:\n")
	if len(r.Patterns) == 0 {
		b.WriteString("No clear patterns.")
	} else {
		b.WriteString(strings.Join(r.Patterns, ", "))
	}
	return b.String()
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
