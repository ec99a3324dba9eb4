package position

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentra/internal/decision"
	"agentra/internal/market"
	"agentra/internal/memory"
	"agentra/internal/regime"
	"agentra/internal/store"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testEngine(mem memory.Recorder) *Engine {
	return NewEngine(2, 3, 5, mem, nil, func() time.Time { return testNow })
}

func floatPtr(v float64) *float64 { return &v }

func trendingInfo() regime.Info {
	return regime.Info{Regime: regime.Trending, Playbook: regime.TrendFollowing, Bias: regime.BiasLong}
}

func TestTryOpenLong(t *testing.T) {
	e := testEngine(memory.NewFakeStore())
	st := store.NewState(10000)

	opened := e.TryOpen(context.Background(), st, OpenRequest{
		Symbol: "BTC/USDT",
		Decision: decision.Decision{
			Action:     decision.Buy,
			Reason:     "breakout retest",
			StopLoss:   floatPtr(98),
			TakeProfit: floatPtr(106),
			Confidence: 9,
		},
		Price:  100,
		ATR:    1,
		Regime: trendingInfo(),
	})
	require.True(t, opened)

	pos, ok := st.Position("BTC/USDT")
	require.True(t, ok)
	assert.Equal(t, "LONG", pos.Side)
	assert.Equal(t, 100.0, pos.EntryPrice)
	assert.Equal(t, 100.0, pos.Quantity) // 10000 x 2% / 2 risk distance
	assert.Equal(t, 98.0, pos.StopLoss)
	assert.Equal(t, 98.0, pos.InitialStopLoss)
	assert.Equal(t, 106.0, pos.TakeProfit)
	assert.Equal(t, testNow, pos.EntryTime)
	assert.Equal(t, string(regime.TrendFollowing), pos.StrategyUsed)
}

func TestTryOpenEntryGuards(t *testing.T) {
	e := testEngine(memory.NewFakeStore())
	ctx := context.Background()

	base := OpenRequest{
		Symbol:   "BTC/USDT",
		Decision: decision.Decision{Action: decision.Buy, StopLoss: floatPtr(98), Confidence: 9},
		Price:    100,
		ATR:      1,
		Regime:   trendingInfo(),
	}

	t.Run("hold never opens", func(t *testing.T) {
		st := store.NewState(10000)
		req := base
		req.Decision.Action = decision.Hold
		assert.False(t, e.TryOpen(ctx, st, req))
	})

	t.Run("confidence below threshold", func(t *testing.T) {
		st := store.NewState(10000)
		req := base
		req.Decision.Confidence = 4
		assert.False(t, e.TryOpen(ctx, st, req))
	})

	t.Run("already positioned on symbol", func(t *testing.T) {
		st := store.NewState(10000)
		st.SetPosition(store.Position{Symbol: "BTC/USDT", Side: "LONG", EntryPrice: 90})
		assert.False(t, e.TryOpen(ctx, st, base))
	})

	t.Run("position cap reached", func(t *testing.T) {
		st := store.NewState(10000)
		for _, sym := range []string{"ETH/USDT", "SOL/USDT", "XRP/USDT"} {
			st.SetPosition(store.Position{Symbol: sym, Side: "LONG", EntryPrice: 1})
		}
		assert.False(t, e.TryOpen(ctx, st, base))
		assert.Equal(t, 3, st.OpenCount())
	})

	t.Run("no live price", func(t *testing.T) {
		st := store.NewState(10000)
		req := base
		req.Price = 0
		assert.False(t, e.TryOpen(ctx, st, req))
	})

	t.Run("neutral regime sizes to zero", func(t *testing.T) {
		st := store.NewState(10000)
		req := base
		req.Regime = regime.Info{Regime: regime.Neutral, Playbook: regime.Wait}
		assert.False(t, e.TryOpen(ctx, st, req))
	})
}

func TestTryOpenCorrectsWrongSideStop(t *testing.T) {
	e := testEngine(memory.NewFakeStore())
	st := store.NewState(10000)

	opened := e.TryOpen(context.Background(), st, OpenRequest{
		Symbol: "BTC/USDT",
		Decision: decision.Decision{
			Action:     decision.Buy,
			StopLoss:   floatPtr(105), // above a long entry
			Confidence: 9,
		},
		Price:  100,
		ATR:    2,
		Regime: trendingInfo(),
	})
	require.True(t, opened)

	pos, _ := st.Position("BTC/USDT")
	assert.Equal(t, 96.0, pos.StopLoss, "wrong-side stop falls back to entry - 2 ATR")
	assert.Equal(t, 108.0, pos.TakeProfit, "missing target synthesized at 2R")
}

func TestTryOpenShortDefaults(t *testing.T) {
	e := testEngine(memory.NewFakeStore())
	st := store.NewState(10000)

	opened := e.TryOpen(context.Background(), st, OpenRequest{
		Symbol:   "ETH/USDT",
		Decision: decision.Decision{Action: decision.Sell, Confidence: 9},
		Price:    100,
		ATR:      2,
		Regime:   trendingInfo(),
	})
	require.True(t, opened)

	pos, _ := st.Position("ETH/USDT")
	assert.Equal(t, "SHORT", pos.Side)
	assert.Equal(t, 104.0, pos.StopLoss)
	assert.Equal(t, 92.0, pos.TakeProfit)
}

func TestManageStopExitPricedAtStop(t *testing.T) {
	mem := memory.NewFakeStore()
	e := testEngine(mem)
	st := store.NewState(10000)
	st.SetPosition(store.Position{
		Symbol: "BTC/USDT", Side: "LONG",
		EntryPrice: 100, Quantity: 50, StopLoss: 98, InitialStopLoss: 98,
		EntryTime:     testNow.Add(-time.Hour),
		RegimeAtEntry: trendingInfo(), StrategyUsed: string(regime.TrendFollowing),
	})

	rec := e.Manage(context.Background(), st, "BTC/USDT", ManageInput{LivePrice: 97})
	require.NotNil(t, rec)
	// Fill is booked at the stop, not at the gapped live price.
	assert.Equal(t, 98.0, rec.ExitPrice)
	assert.Equal(t, -100.0, rec.Realized)
	assert.Equal(t, -2.0, rec.PnLPercent)
	assert.Equal(t, ReasonStopLoss, rec.Reason)

	_, stillOpen := st.Position("BTC/USDT")
	assert.False(t, stillOpen)
	assert.Equal(t, 9900.0, st.AccountBalance)
	assert.Equal(t, 1, st.Metrics.Losses)

	lessons, err := mem.Recall(context.Background(), "BTC/USDT", 5)
	require.NoError(t, err)
	require.Len(t, lessons, 1)
	assert.Equal(t, ReasonStopLoss, lessons[0].Reason)
}

func TestManageStopBeatsTargetOnSameTick(t *testing.T) {
	e := testEngine(memory.NewFakeStore())
	st := store.NewState(10000)
	entry := testNow.Add(-30 * time.Minute)
	st.SetPosition(store.Position{
		Symbol: "BTC/USDT", Side: "LONG",
		EntryPrice: 100, Quantity: 10, StopLoss: 98, InitialStopLoss: 98, TakeProfit: 110,
		EntryTime: entry,
	})

	// One tick where the wick since entry cleared the target while the live
	// price sits through the stop. Capital preservation wins.
	candles := []market.Candle{
		{OpenTime: entry.Add(5 * time.Minute).UnixMilli(), High: 111, Low: 97, Close: 97.5},
	}
	rec := e.Manage(context.Background(), st, "BTC/USDT", ManageInput{LivePrice: 97.5, Candles: candles})
	require.NotNil(t, rec)
	assert.Equal(t, ReasonStopLoss, rec.Reason)
	assert.Equal(t, 98.0, rec.ExitPrice)
	assert.Equal(t, -20.0, rec.Realized)

	_, stillOpen := st.Position("BTC/USDT")
	assert.False(t, stillOpen)
}

func TestManageTrailingRatchet(t *testing.T) {
	e := testEngine(memory.NewFakeStore())
	st := store.NewState(10000)
	st.SetPosition(store.Position{
		Symbol: "BTC/USDT", Side: "LONG",
		EntryPrice: 100, Quantity: 10, StopLoss: 95, InitialStopLoss: 95, TakeProfit: 120,
		EntryTime: testNow.Add(-time.Hour),
	})
	ctx := context.Background()

	// Favorable excursion past the break-even trigger, then the trail takes
	// over at live - 1.5 ATR.
	rec := e.Manage(ctx, st, "BTC/USDT", ManageInput{LivePrice: 105, ATR: 1})
	require.Nil(t, rec)
	pos, _ := st.Position("BTC/USDT")
	assert.Equal(t, 103.5, pos.StopLoss)
	assert.Equal(t, 95.0, pos.InitialStopLoss, "trailing moves the working stop only")

	// A pullback never loosens the stop.
	rec = e.Manage(ctx, st, "BTC/USDT", ManageInput{LivePrice: 104, ATR: 1})
	require.Nil(t, rec)
	pos, _ = st.Position("BTC/USDT")
	assert.Equal(t, 103.5, pos.StopLoss)
	assert.Equal(t, 95.0, pos.InitialStopLoss)

	// Falling through the trailed stop books the locked-in profit.
	rec = e.Manage(ctx, st, "BTC/USDT", ManageInput{LivePrice: 103.2, ATR: 1})
	require.NotNil(t, rec)
	assert.Equal(t, ReasonStopLoss, rec.Reason)
	assert.Equal(t, 103.5, rec.ExitPrice)
	assert.Equal(t, 35.0, rec.Realized)
}

func TestManageBreakEvenOnlyImproves(t *testing.T) {
	e := testEngine(memory.NewFakeStore())
	st := store.NewState(10000)
	st.SetPosition(store.Position{
		Symbol: "BTC/USDT", Side: "LONG",
		EntryPrice: 100, Quantity: 10, StopLoss: 90, InitialStopLoss: 90, TakeProfit: 110,
		EntryTime: testNow.Add(-time.Hour),
	})
	ctx := context.Background()

	// Trigger is min(ATR, half the target distance) = min(2, 5) = 2.
	require.Nil(t, e.Manage(ctx, st, "BTC/USDT", ManageInput{LivePrice: 103, ATR: 2}))
	pos, _ := st.Position("BTC/USDT")
	assert.Equal(t, 100.0, pos.StopLoss)
	assert.Equal(t, 90.0, pos.InitialStopLoss, "break-even moves the working stop only")

	// A second tick at the same price must not move the stop again.
	require.Nil(t, e.Manage(ctx, st, "BTC/USDT", ManageInput{LivePrice: 103, ATR: 2}))
	pos, _ = st.Position("BTC/USDT")
	assert.Equal(t, 100.0, pos.StopLoss)
}

func TestManageWickTakeProfit(t *testing.T) {
	e := testEngine(memory.NewFakeStore())
	ctx := context.Background()
	entry := testNow.Add(-30 * time.Minute)

	newState := func() *store.State {
		st := store.NewState(10000)
		st.SetPosition(store.Position{
			Symbol: "BTC/USDT", Side: "LONG",
			EntryPrice: 100, Quantity: 10, StopLoss: 98, InitialStopLoss: 98, TakeProfit: 110,
			EntryTime: entry,
		})
		return st
	}

	t.Run("wick after entry fills at target", func(t *testing.T) {
		st := newState()
		candles := []market.Candle{
			{OpenTime: entry.Add(5 * time.Minute).UnixMilli(), High: 111, Low: 104, Close: 105},
		}
		rec := e.Manage(ctx, st, "BTC/USDT", ManageInput{LivePrice: 105, Candles: candles})
		require.NotNil(t, rec)
		assert.Equal(t, ReasonTakeProfit, rec.Reason)
		assert.Equal(t, 110.0, rec.ExitPrice)
	})

	t.Run("wick before entry is ignored", func(t *testing.T) {
		st := newState()
		candles := []market.Candle{
			{OpenTime: entry.Add(-5 * time.Minute).UnixMilli(), High: 150, Low: 104, Close: 105},
		}
		rec := e.Manage(ctx, st, "BTC/USDT", ManageInput{LivePrice: 105, Candles: candles})
		assert.Nil(t, rec)
	})

	t.Run("live beyond target fills at live", func(t *testing.T) {
		st := newState()
		rec := e.Manage(ctx, st, "BTC/USDT", ManageInput{LivePrice: 112})
		require.NotNil(t, rec)
		assert.Equal(t, ReasonTakeProfit, rec.Reason)
		assert.Equal(t, 112.0, rec.ExitPrice)
	})
}

func TestManageOverridesBeatPriceExits(t *testing.T) {
	e := testEngine(memory.NewFakeStore())
	ctx := context.Background()

	newState := func() *store.State {
		st := store.NewState(10000)
		st.SetPosition(store.Position{
			Symbol: "BTC/USDT", Side: "LONG",
			EntryPrice: 100, Quantity: 10, StopLoss: 98, InitialStopLoss: 98, TakeProfit: 110,
			EntryTime: testNow.Add(-time.Hour),
		})
		return st
	}

	t.Run("kill switch closes at live", func(t *testing.T) {
		st := newState()
		rec := e.Manage(ctx, st, "BTC/USDT", ManageInput{LivePrice: 101, KillPending: true})
		require.NotNil(t, rec)
		assert.Equal(t, ReasonKillSwitch, rec.Reason)
		assert.Equal(t, 101.0, rec.ExitPrice)
	})

	t.Run("manual close closes at live", func(t *testing.T) {
		st := newState()
		rec := e.Manage(ctx, st, "BTC/USDT", ManageInput{LivePrice: 101, ClosePending: true})
		require.NotNil(t, rec)
		assert.Equal(t, ReasonManualClose, rec.Reason)
	})

	t.Run("kill beats manual", func(t *testing.T) {
		st := newState()
		rec := e.Manage(ctx, st, "BTC/USDT", ManageInput{LivePrice: 101, KillPending: true, ClosePending: true})
		require.NotNil(t, rec)
		assert.Equal(t, ReasonKillSwitch, rec.Reason)
	})

	t.Run("kill switch wins over a breached stop", func(t *testing.T) {
		st := newState()
		rec := e.Manage(ctx, st, "BTC/USDT", ManageInput{LivePrice: 97, KillPending: true})
		require.NotNil(t, rec)
		assert.Equal(t, ReasonKillSwitch, rec.Reason)
		assert.Equal(t, 97.0, rec.ExitPrice)
	})
}

func TestManageBackfillsSafeStop(t *testing.T) {
	e := testEngine(memory.NewFakeStore())
	st := store.NewState(10000)
	st.SetPosition(store.Position{
		Symbol: "BTC/USDT", Side: "LONG",
		EntryPrice: 100, Quantity: 10, // no stop survived persistence
		EntryTime: testNow.Add(-time.Hour),
	})

	rec := e.Manage(context.Background(), st, "BTC/USDT", ManageInput{LivePrice: 94.9})
	require.NotNil(t, rec)
	assert.Equal(t, ReasonStopLoss, rec.Reason)
	assert.Equal(t, 95.0, rec.ExitPrice, "safe stop lands at entry - 5%")
}

func TestManageNoPositionOrPrice(t *testing.T) {
	e := testEngine(memory.NewFakeStore())
	st := store.NewState(10000)
	assert.Nil(t, e.Manage(context.Background(), st, "BTC/USDT", ManageInput{LivePrice: 100}))

	st.SetPosition(store.Position{Symbol: "BTC/USDT", Side: "LONG", EntryPrice: 100, StopLoss: 98})
	assert.Nil(t, e.Manage(context.Background(), st, "BTC/USDT", ManageInput{LivePrice: 0}))
}
