package stats

import (
	"fmt"
	"math"
	"sort"
)

// Minimum return-sample counts below which the KS test is considered
// unreliable and drift is never asserted.
const (
	MinCurrentSamples  = 20
	MinBaselineSamples = 50
)

// DriftResult is the outcome of the two-sample Kolmogorov-Smirnov test on
// log-returns. The null hypothesis is that current and baseline windows come
// from the same distribution; drift is declared when p < alpha.
type DriftResult struct {
	Detected  bool    `json:"drift_detected"`
	PValue    float64 `json:"p_value"`
	Statistic float64 `json:"ks_stat"`
	Reason    string  `json:"reason"`
}

// DetectDrift compares the return distribution of the current price window
// against a disjoint baseline window. Small samples report "no drift" rather
// than running a test that cannot support the claim.
func DetectDrift(current, baseline []float64, alpha float64) DriftResult {
	if alpha <= 0 || alpha >= 1 {
		alpha = 0.05
	}
	cur := logReturns(current)
	base := logReturns(baseline)
	if len(cur) < MinCurrentSamples || len(base) < MinBaselineSamples {
		return DriftResult{
			Detected: false,
			PValue:   1.0,
			Reason:   "insufficient samples for statistical test",
		}
	}
	d := ksStatistic(cur, base)
	p := ksPValue(d, len(cur), len(base))
	res := DriftResult{
		Detected:  p < alpha,
		PValue:    p,
		Statistic: d,
		Reason:    "market behavior remains statistically consistent",
	}
	if res.Detected {
		res.Reason = fmt.Sprintf("concept drift detected: return distribution shifted (p=%.4e)", p)
	}
	return res
}

func logReturns(prices []float64) []float64 {
	out := make([]float64, 0, len(prices))
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 || prices[i] <= 0 {
			continue
		}
		out = append(out, math.Log(prices[i]/prices[i-1]))
	}
	return out
}

// ksStatistic is the supremum distance between the two empirical CDFs.
func ksStatistic(a, b []float64) float64 {
	x := append([]float64(nil), a...)
	y := append([]float64(nil), b...)
	sort.Float64s(x)
	sort.Float64s(y)
	var i, j int
	var d float64
	for i < len(x) && j < len(y) {
		// Ties advance both pointers so equal samples contribute no distance.
		d1, d2 := x[i], y[j]
		if d1 <= d2 {
			i++
		}
		if d2 <= d1 {
			j++
		}
		fx := float64(i) / float64(len(x))
		fy := float64(j) / float64(len(y))
		if diff := math.Abs(fx - fy); diff > d {
			d = diff
		}
	}
	return d
}

// ksPValue is the two-sided asymptotic p-value with the small-sample
// effective-size correction (Numerical Recipes form).
func ksPValue(d float64, n1, n2 int) float64 {
	en := math.Sqrt(float64(n1) * float64(n2) / float64(n1+n2))
	lambda := (en + 0.12 + 0.11/en) * d
	return kolmogorovQ(lambda)
}

// kolmogorovQ evaluates Q_KS(lambda) = 2*sum_{j>=1} (-1)^{j-1} exp(-2 j^2 lambda^2).
func kolmogorovQ(lambda float64) float64 {
	if lambda <= 0 {
		return 1
	}
	var sum float64
	sign := 1.0
	for j := 1; j <= 100; j++ {
		term := math.Exp(-2 * float64(j*j) * lambda * lambda)
		sum += sign * term
		if term < 1e-10 {
			break
		}
		sign = -sign
	}
	p := 2 * sum
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
