package stats

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func pricesFromReturns(r *rand.Rand, n int, vol float64) []float64 {
	out := make([]float64, n)
	price := 100.0
	for i := 0; i < n; i++ {
		price *= math.Exp(r.NormFloat64() * vol)
		out[i] = price
	}
	return out
}

func TestDetectDriftSameDistribution(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	baseline := pricesFromReturns(r, 200, 0.01)
	current := pricesFromReturns(r, 60, 0.01)

	res := DetectDrift(current, baseline, 0.05)
	assert.False(t, res.Detected)
	assert.Equal(t, "market behavior remains statistically consistent", res.Reason)
}

func TestDetectDriftVolatilityShift(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	baseline := pricesFromReturns(r, 200, 0.01)
	current := pricesFromReturns(r, 60, 0.05)

	res := DetectDrift(current, baseline, 0.05)
	assert.True(t, res.Detected)
	assert.Less(t, res.PValue, 0.05)
	assert.Contains(t, res.Reason, "concept drift detected")
}

func TestDetectDriftInsufficientSamples(t *testing.T) {
	res := DetectDrift([]float64{100, 101}, []float64{100, 99}, 0.05)
	assert.False(t, res.Detected)
	assert.Equal(t, 1.0, res.PValue)
	assert.Equal(t, "insufficient samples for statistical test", res.Reason)
}

func TestKSStatisticIdenticalSamples(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5}
	assert.Equal(t, 0.0, ksStatistic(a, a))
}
