package profile

import (
	"fmt"
	"math"
	"sort"

	"agentra/internal/market"
)

const (
	bins            = 50
	valueAreaShare  = 0.70
	DefaultLookback = 24
)

// Profile is a binned volume-at-price view over a trailing window.
type Profile struct {
	POC     float64 `json:"poc"`
	VAH     float64 `json:"vah"`
	VAL     float64 `json:"val"`
	Summary string  `json:"summary"`
}

// Compute bins the trailing lookback candles into 50 equal-width price bins
// keyed on each candle's close, finds the Point of Control (max-volume bin)
// and builds the 70% Value Area by accumulating bins in descending volume
// order. A flat window (max == min price) collapses POC/VAH/VAL to that
// price.
func Compute(candles []market.Candle, lookback int) Profile {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	if len(candles) == 0 {
		return Profile{Summary: "insufficient data"}
	}
	if len(candles) > lookback {
		candles = candles[len(candles)-lookback:]
	}

	minPrice := math.MaxFloat64
	maxPrice := -math.MaxFloat64
	for _, c := range candles {
		if c.Low < minPrice {
			minPrice = c.Low
		}
		if c.High > maxPrice {
			maxPrice = c.High
		}
	}
	priceRange := maxPrice - minPrice
	if priceRange <= 0 {
		return Profile{
			POC:     minPrice,
			VAH:     minPrice,
			VAL:     minPrice,
			Summary: "flat range",
		}
	}

	binSize := priceRange / bins
	volumeByBin := make([]float64, bins)
	for _, c := range candles {
		idx := int((c.Close - minPrice) / binSize)
		if idx < 0 {
			idx = 0
		}
		if idx >= bins {
			idx = bins - 1
		}
		volumeByBin[idx] += c.Volume
	}

	pocIdx := 0
	var totalVolume float64
	for i, v := range volumeByBin {
		totalVolume += v
		if v > volumeByBin[pocIdx] {
			pocIdx = i
		}
	}
	poc := minPrice + float64(pocIdx)*binSize

	order := make([]int, bins)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return volumeByBin[order[a]] > volumeByBin[order[b]]
	})

	target := totalVolume * valueAreaShare
	var accumulated float64
	vah := poc
	val := poc
	for _, idx := range order {
		price := minPrice + float64(idx)*binSize
		if price > vah {
			vah = price
		}
		if price < val {
			val = price
		}
		accumulated += volumeByBin[idx]
		if accumulated >= target {
			break
		}
	}

	return Profile{
		POC:     poc,
		VAH:     vah,
		VAL:     val,
		Summary: fmt.Sprintf("POC: %.4f | VA: [%.4f - %.4f]", poc, val, vah),
	}
}
