package stats

import "math"

// HurstMaxLag bounds the lag scan; lags 2..HurstMaxLag-1 are used.
const HurstMaxLag = 20

// Hurst estimates the Hurst exponent from close prices via variance scaling:
// tau(lag) = sqrt(std(diff(close, lag))), least-squares fit of log(tau)
// against log(lag), H = 2*slope. Degenerate input returns exactly 0.5: the
// caller is a classifier that must always get a verdict, never an error.
//
// H > 0.65 reads as persistence (trend), H < 0.35 as mean reversion, the
// band between as noise.
func Hurst(closes []float64) float64 {
	if len(closes) <= HurstMaxLag {
		return 0.5
	}
	var logLags, logTaus []float64
	for lag := 2; lag < HurstMaxLag; lag++ {
		diffs := make([]float64, 0, len(closes)-lag)
		for i := lag; i < len(closes); i++ {
			diffs = append(diffs, closes[i]-closes[i-lag])
		}
		tau := math.Sqrt(stdPop(diffs))
		if tau <= 0 || math.IsNaN(tau) || math.IsInf(tau, 0) {
			return 0.5
		}
		logLags = append(logLags, math.Log(float64(lag)))
		logTaus = append(logTaus, math.Log(tau))
	}
	slope, ok := fitSlope(logLags, logTaus)
	if !ok {
		return 0.5
	}
	h := 2 * slope
	if math.IsNaN(h) || math.IsInf(h, 0) {
		return 0.5
	}
	return math.Round(h*1000) / 1000
}

// stdPop is the population standard deviation (ddof = 0).
func stdPop(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)))
}

func fitSlope(xs, ys []float64) (float64, bool) {
	n := float64(len(xs))
	if n < 2 {
		return 0, false
	}
	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, false
	}
	return (n*sumXY - sumX*sumY) / denom, true
}
