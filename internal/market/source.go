package market

import "context"

// Source is the exchange-facing read port. Implementations must return an
// error on any transport failure; the engine maps that to skipping the
// symbol for the running cycle.
type Source interface {
	// FetchHistory returns up to limit closed candles for symbol at the
	// given interval, oldest first.
	FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	// FetchTicker returns the live last-trade price. Exit evaluation uses
	// this instead of the stale last candle close.
	FetchTicker(ctx context.Context, symbol string) (float64, error)
}
