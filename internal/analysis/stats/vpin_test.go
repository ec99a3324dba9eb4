package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"agentra/internal/market"
)

func vpinCandles(n int, closeAtHigh bool) []market.Candle {
	out := make([]market.Candle, n)
	for i := 0; i < n; i++ {
		c := market.Candle{
			OpenTime:  int64(i) * 60_000,
			CloseTime: int64(i)*60_000 + 59_999,
			High:      101,
			Low:       99,
			Volume:    1000,
		}
		if closeAtHigh {
			c.Open, c.Close = 99, 101
		} else {
			c.Open, c.Close = 100, 100
		}
		out[i] = c
	}
	return out
}

func TestVPINOneSidedFlow(t *testing.T) {
	// Every close at the high reads as pure buy volume: maximal imbalance.
	score := VPIN(vpinCandles(20, true), 10, 1.0)
	assert.Equal(t, 1.0, score)
}

func TestVPINBalancedFlow(t *testing.T) {
	// Close at mid-range splits volume evenly: zero imbalance.
	score := VPIN(vpinCandles(20, false), 10, 1.0)
	assert.Equal(t, 0.0, score)
}

func TestVPINNeutralFallbacks(t *testing.T) {
	// Not enough candles to fill the bucket count.
	assert.Equal(t, 0.5, VPIN(vpinCandles(5, true), 10, 1.0))
	assert.Equal(t, 0.5, VPIN(nil, 10, 1.0))

	// Zero volume cannot size buckets.
	zero := vpinCandles(20, true)
	for i := range zero {
		zero[i].Volume = 0
	}
	assert.Equal(t, 0.5, VPIN(zero, 10, 1.0))
}
