package indicator

import (
	"errors"
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"agentra/internal/market"
)

// WarmUp is the number of candles required before the first reportable row
// (EMA-200 has the longest lookback). Rows without full history are dropped,
// never emitted with partial values.
const WarmUp = 200

var ErrInsufficientHistory = errors.New("indicator: insufficient candle history")

// Snapshot carries the derived values for one candle.
type Snapshot struct {
	Candle     market.Candle
	RSI        float64
	EMA50      float64
	EMA200     float64
	BBUpper    float64
	BBMid      float64
	BBLower    float64
	ADX        float64
	ATR        float64
	MACD       float64
	MACDSignal float64
	High20     float64
	Low20      float64
}

// Series is a warm-up-trimmed indicator view over a candle series.
type Series struct {
	Symbol    string
	Interval  string
	Snapshots []Snapshot
}

func (s Series) Last() Snapshot {
	return s.Snapshots[len(s.Snapshots)-1]
}

func (s Series) Prev() Snapshot {
	return s.Snapshots[len(s.Snapshots)-2]
}

func (s Series) Len() int { return len(s.Snapshots) }

// Compute annotates candles with RSI-14, EMA-50/200, Bollinger(20,2),
// ADX-14, ATR-14, MACD(12,26,9) and the rolling 20-period high/low, then
// drops every row that lacks full lookback. Input must be validated OHLCV
// with at least WarmUp rows.
func Compute(symbol, interval string, candles []market.Candle) (Series, error) {
	if err := market.Validate(candles); err != nil {
		return Series{}, err
	}
	if len(candles) < WarmUp {
		return Series{}, fmt.Errorf("%w: have %d candles, need %d", ErrInsufficientHistory, len(candles), WarmUp)
	}

	n := len(candles)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}

	ema50 := talib.Ema(closes, 50)
	ema200 := talib.Ema(closes, 200)
	bbUp, bbMid, bbLow := talib.BBands(closes, 20, 2, 2, talib.SMA)
	macd, macdSignal, _ := talib.Macd(closes, 12, 26, 9)
	high20 := talib.Max(highs, 20)
	low20 := talib.Min(lows, 20)

	rsi := rsiWilder(closes, 14)
	tr := trueRange(highs, lows, closes)
	atr := talib.Sma(tr, 14)
	adx := adxSimplified(highs, lows, atr, 14)

	start := WarmUp - 1
	out := make([]Snapshot, 0, n-start)
	for i := start; i < n; i++ {
		snap := Snapshot{
			Candle:     candles[i],
			RSI:        rsi[i],
			EMA50:      ema50[i],
			EMA200:     ema200[i],
			BBUpper:    bbUp[i],
			BBMid:      bbMid[i],
			BBLower:    bbLow[i],
			ADX:        adx[i],
			ATR:        atr[i],
			MACD:       macd[i],
			MACDSignal: macdSignal[i],
			High20:     high20[i],
			Low20:      low20[i],
		}
		if snap.hasInvalid() {
			// A non-finite value past warm-up means the math above has a
			// hole; refuse the whole series rather than report garbage.
			return Series{}, fmt.Errorf("indicator: non-finite value at row %d for %s", i, symbol)
		}
		out = append(out, snap)
	}
	return Series{Symbol: symbol, Interval: interval, Snapshots: out}, nil
}

func (s Snapshot) hasInvalid() bool {
	for _, v := range []float64{
		s.RSI, s.EMA50, s.EMA200, s.BBUpper, s.BBMid, s.BBLower,
		s.ADX, s.ATR, s.MACD, s.MACDSignal, s.High20, s.Low20,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}

// rsiWilder computes RSI with Wilder exponential smoothing (alpha = 1/period,
// i.e. com = period-1) over split gains/losses. A zero average loss saturates
// to 100 instead of dividing by zero.
func rsiWilder(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	if len(closes) == 0 {
		return out
	}
	alpha := 1.0 / float64(period)
	var avgGain, avgLoss float64
	out[0] = 50
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		var gain, loss float64
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		if i == 1 {
			avgGain, avgLoss = gain, loss
		} else {
			avgGain = alpha*gain + (1-alpha)*avgGain
			avgLoss = alpha*loss + (1-alpha)*avgLoss
		}
		if avgLoss == 0 {
			out[i] = 100
		} else {
			rs := avgGain / avgLoss
			out[i] = 100 - 100/(1+rs)
		}
	}
	return out
}

func trueRange(highs, lows, closes []float64) []float64 {
	out := make([]float64, len(highs))
	for i := range highs {
		hl := highs[i] - lows[i]
		if i == 0 {
			out[i] = hl
			continue
		}
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		out[i] = math.Max(hl, math.Max(hc, lc))
	}
	return out
}

// adxSimplified derives ADX from directional movement smoothed with a Wilder
// EMA over the SMA-based ATR. Zero denominators (flat range, +DI + -DI == 0)
// yield 0 rather than propagating NaN.
func adxSimplified(highs, lows, atr []float64, period int) []float64 {
	n := len(highs)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	alpha := 1.0 / float64(period)
	var smPlus, smMinus, adx float64
	seeded := false
	for i := 1; i < n; i++ {
		upMove := highs[i] - highs[i-1]
		downMove := lows[i-1] - lows[i]
		var plusDM, minusDM float64
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}
		if i == 1 {
			smPlus, smMinus = plusDM, minusDM
		} else {
			smPlus = alpha*plusDM + (1-alpha)*smPlus
			smMinus = alpha*minusDM + (1-alpha)*smMinus
		}

		var plusDI, minusDI float64
		if atr[i] > 0 {
			plusDI = 100 * smPlus / atr[i]
			minusDI = 100 * smMinus / atr[i]
		}
		var dx float64
		if sum := plusDI + minusDI; sum > 0 {
			dx = 100 * math.Abs(plusDI-minusDI) / sum
		}
		if !seeded {
			adx = dx
			seeded = true
		} else {
			adx = alpha*dx + (1-alpha)*adx
		}
		out[i] = adx
	}
	return out
}
