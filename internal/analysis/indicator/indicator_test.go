package indicator

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentra/internal/market"
)

func walkCandles(n int, seed int64) []market.Candle {
	r := rand.New(rand.NewSource(seed))
	candles := make([]market.Candle, n)
	price := 100.0
	for i := 0; i < n; i++ {
		open := price
		price += r.NormFloat64() * 0.5
		high := math.Max(open, price) + r.Float64()*0.3
		low := math.Min(open, price) - r.Float64()*0.3
		candles[i] = market.Candle{
			OpenTime:  int64(i) * 60_000,
			CloseTime: int64(i)*60_000 + 59_999,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     price,
			Volume:    1000 + r.Float64()*200,
		}
	}
	return candles
}

func TestComputeFullHistory(t *testing.T) {
	candles := walkCandles(260, 7)
	series, err := Compute("BTC/USDT", "15m", candles)
	require.NoError(t, err)

	assert.Equal(t, "BTC/USDT", series.Symbol)
	assert.Equal(t, "15m", series.Interval)
	// Warm-up rows are dropped, one snapshot per remaining candle.
	assert.Equal(t, 260-(WarmUp-1), series.Len())

	for _, snap := range series.Snapshots {
		assert.False(t, math.IsNaN(snap.RSI))
		assert.GreaterOrEqual(t, snap.RSI, 0.0)
		assert.LessOrEqual(t, snap.RSI, 100.0)
		assert.Greater(t, snap.ATR, 0.0)
		assert.GreaterOrEqual(t, snap.High20, snap.Low20)
		assert.GreaterOrEqual(t, snap.BBUpper, snap.BBMid)
		assert.GreaterOrEqual(t, snap.BBMid, snap.BBLower)
		assert.GreaterOrEqual(t, snap.ADX, 0.0)
	}

	last := series.Last()
	assert.Equal(t, candles[len(candles)-1].Close, last.Candle.Close)
}

func TestComputeInsufficientHistory(t *testing.T) {
	_, err := Compute("BTC/USDT", "15m", walkCandles(150, 3))
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestComputeRejectsInvalidSeries(t *testing.T) {
	candles := walkCandles(210, 5)
	candles[10].OpenTime = candles[9].OpenTime
	_, err := Compute("BTC/USDT", "15m", candles)
	assert.ErrorIs(t, err, market.ErrNotMonotonic)

	_, err = Compute("BTC/USDT", "15m", nil)
	assert.ErrorIs(t, err, market.ErrNoData)
}

func TestRSISaturatesWithoutLosses(t *testing.T) {
	closes := make([]float64, 50)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	rsi := rsiWilder(closes, 14)
	// Monotonic rises have zero average loss; RSI pins at 100 instead of
	// dividing by zero.
	assert.Equal(t, 100.0, rsi[len(rsi)-1])
}
