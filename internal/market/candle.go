package market

import (
	"errors"
	"time"
)

type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

var (
	ErrNoData       = errors.New("market: no candle data")
	ErrNotMonotonic = errors.New("market: candle timestamps not strictly increasing")
)

// Validate checks the series contract: non-empty, strictly increasing open
// times. Callers treat a validation error as "skip this symbol this cycle".
func Validate(candles []Candle) error {
	if len(candles) == 0 {
		return ErrNoData
	}
	for i := 1; i < len(candles); i++ {
		if candles[i].OpenTime <= candles[i-1].OpenTime {
			return ErrNotMonotonic
		}
	}
	return nil
}

func (c Candle) OpenedAt() time.Time {
	return time.UnixMilli(c.OpenTime).UTC()
}

// Closes extracts the close column.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
