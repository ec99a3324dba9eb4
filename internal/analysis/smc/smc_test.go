package smc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"agentra/internal/market"
)

func flatCandle(i int, price float64) market.Candle {
	return market.Candle{
		OpenTime: int64(i) * 60_000,
		Open:     price, High: price + 0.5, Low: price - 0.5, Close: price,
		Volume: 100,
	}
}

func TestAnalyzeBullishGap(t *testing.T) {
	candles := []market.Candle{
		flatCandle(0, 100),
		flatCandle(1, 100),
		// c1 high 100.5, then a jump leaves an unfilled gap below c3 low 102.
		{OpenTime: 2 * 60_000, Open: 100, High: 103, Low: 100.4, Close: 102.5, Volume: 100},
		{OpenTime: 3 * 60_000, Open: 102.5, High: 104, Low: 102, Close: 103.5, Volume: 100},
		flatCandle(4, 103.5),
	}
	rep := Analyze(candles)
	if assert.NotEmpty(t, rep.Gaps) {
		g := rep.Gaps[0]
		assert.True(t, g.Bullish)
		assert.Equal(t, 100.5, g.Lower)
		assert.Equal(t, 102.0, g.Upper)
	}
}

func TestAnalyzeSwingPoints(t *testing.T) {
	prices := []float64{100, 101, 105, 101, 100, 99, 95, 99, 100}
	candles := make([]market.Candle, len(prices))
	for i, p := range prices {
		candles[i] = flatCandle(i, p)
	}
	rep := Analyze(candles)

	var highs, lows []float64
	for _, s := range rep.Swings {
		if s.High {
			highs = append(highs, s.Price)
		} else {
			lows = append(lows, s.Price)
		}
	}
	assert.Contains(t, highs, 105.5)
	assert.Contains(t, lows, 94.5)
}

func TestAnalyzeEngulfingPattern(t *testing.T) {
	candles := []market.Candle{
		flatCandle(0, 100),
		flatCandle(1, 100),
		flatCandle(2, 100),
		// Red candle, then a green one engulfing its body.
		{OpenTime: 3 * 60_000, Open: 101, High: 101.2, Low: 99.8, Close: 100, Volume: 100},
		{OpenTime: 4 * 60_000, Open: 99.9, High: 101.6, Low: 99.8, Close: 101.5, Volume: 100},
	}
	rep := Analyze(candles)
	assert.Contains(t, rep.Patterns, "BULLISH_ENGULFING")
}

func TestAnalyzeTooFewCandles(t *testing.T) {
	rep := Analyze([]market.Candle{flatCandle(0, 100)})
	assert.Empty(t, rep.Gaps)
	assert.Empty(t, rep.Swings)
	assert.Empty(t, rep.Patterns)
}

func TestRenderAlwaysStructured(t *testing.T) {
	out := Report{}.Render()
	assert.Contains(t, out, "FAIR VALUE GAPS:")
	assert.Contains(t, out, "LIQUIDITY POOLS")
	assert.Contains(t, out, "No clear patterns.")
}
