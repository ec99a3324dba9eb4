package stats

import (
	"math"

	"agentra/internal/market"
)

const epsilonRange = 1e-6

// VPIN approximates order-flow toxicity (Volume-synchronized Probability of
// Informed Trading). Each candle's volume is split into buy/sell parts using
// the close's position inside the candle range, candles are accumulated
// newest-first into buckets sized at the trailing average volume, and the
// score is the mean |buy-sell|/total imbalance of the most recent nBuckets
// filled buckets. Scores above ~0.7 read as toxic/informed flow.
//
// Fewer than nBuckets filled buckets returns the neutral 0.5.
func VPIN(candles []market.Candle, nBuckets int, bucketSizeFactor float64) float64 {
	if nBuckets <= 0 {
		nBuckets = 10
	}
	if bucketSizeFactor <= 0 {
		bucketSizeFactor = 1.0
	}
	if len(candles) == 0 {
		return 0.5
	}

	var totalVol float64
	for _, c := range candles {
		totalVol += c.Volume
	}
	avgVol := totalVol / float64(len(candles))
	if avgVol <= 0 {
		return 0.5
	}
	bucketSize := avgVol * bucketSizeFactor

	var curBuy, curSell, curVol float64
	imbalances := make([]float64, 0, nBuckets)
	for i := len(candles) - 1; i >= 0; i-- {
		c := candles[i]
		rng := c.High - c.Low
		if rng <= 0 {
			rng = epsilonRange
		}
		buyRatio := (c.Close - c.Low) / rng
		buyRatio = math.Max(0, math.Min(1, buyRatio))

		curBuy += c.Volume * buyRatio
		curSell += c.Volume * (1 - buyRatio)
		curVol += c.Volume

		if curVol >= bucketSize {
			imbalances = append(imbalances, math.Abs(curBuy-curSell)/curVol)
			curBuy, curSell, curVol = 0, 0, 0
		}
		if len(imbalances) >= nBuckets {
			break
		}
	}
	if len(imbalances) < nBuckets {
		return 0.5
	}

	var sum float64
	for _, im := range imbalances {
		sum += im
	}
	return math.Round(sum/float64(len(imbalances))*1000) / 1000
}
