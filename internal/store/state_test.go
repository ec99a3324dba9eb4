package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatePositions(t *testing.T) {
	st := NewState(10000)
	assert.Equal(t, 0, st.OpenCount())

	st.SetPosition(Position{Symbol: "BTC/USDT", Side: "LONG", EntryPrice: 100})
	st.SetPosition(Position{Symbol: "ETH/USDT", Side: "SHORT", EntryPrice: 2000})
	assert.Equal(t, 2, st.OpenCount())

	// Replaces in place, never duplicates.
	st.SetPosition(Position{Symbol: "BTC/USDT", Side: "LONG", EntryPrice: 101})
	assert.Equal(t, 2, st.OpenCount())
	pos, ok := st.Position("BTC/USDT")
	require.True(t, ok)
	assert.Equal(t, 101.0, pos.EntryPrice)

	st.RemovePosition("BTC/USDT")
	_, ok = st.Position("BTC/USDT")
	assert.False(t, ok)
	assert.Equal(t, 1, st.OpenCount())
}

func TestRecordTradeSideEffects(t *testing.T) {
	st := NewState(10000)

	st.RecordTrade(TradeRecord{ID: "a", Realized: 150})
	assert.Equal(t, 10150.0, st.AccountBalance)
	assert.Equal(t, 1, st.Metrics.Wins)
	assert.Equal(t, 0, st.Metrics.Losses)

	st.RecordTrade(TradeRecord{ID: "b", Realized: -50})
	assert.Equal(t, 10100.0, st.AccountBalance)
	assert.Equal(t, 1, st.Metrics.Losses)
	assert.Equal(t, 100.0, st.Metrics.TotalPnL)

	// Flat scratches count as losses, not wins.
	st.RecordTrade(TradeRecord{ID: "c", Realized: 0})
	assert.Equal(t, 2, st.Metrics.Losses)
	assert.Len(t, st.TradeHistory, 3)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore(10000)

	st, err := ms.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10000.0, st.AccountBalance)
	assert.NotNil(t, st.LastOracleCall)

	st.SetPosition(Position{Symbol: "BTC/USDT", Side: "LONG", EntryPrice: 100})
	st.LastOracleCall["BTC/USDT"] = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, ms.Save(ctx, st))
	assert.Equal(t, 1, ms.SaveCount)

	loaded, err := ms.Load(ctx)
	require.NoError(t, err)
	pos, ok := loaded.Position("BTC/USDT")
	require.True(t, ok)
	assert.Equal(t, 100.0, pos.EntryPrice)
	assert.Equal(t, st.LastOracleCall["BTC/USDT"], loaded.LastOracleCall["BTC/USDT"])
}

func TestMemoryStoreLoadIsDeepCopy(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore(10000)

	st, _ := ms.Load(ctx)
	st.SetPosition(Position{Symbol: "BTC/USDT", Side: "LONG", EntryPrice: 100})
	require.NoError(t, ms.Save(ctx, st))

	first, _ := ms.Load(ctx)
	first.RemovePosition("BTC/USDT")
	first.AccountBalance = 1

	// Mutating one loaded copy must not leak into the stored document.
	second, _ := ms.Load(ctx)
	_, ok := second.Position("BTC/USDT")
	assert.True(t, ok)
	assert.Equal(t, 10000.0, second.AccountBalance)
}
