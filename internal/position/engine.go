package position

import (
	"context"
	"fmt"
	"time"

	"agentra/internal/decision"
	"agentra/internal/gateway/notifier"
	"agentra/internal/logger"
	"agentra/internal/market"
	"agentra/internal/memory"
	"agentra/internal/regime"
	"agentra/internal/store"

	"github.com/google/uuid"
)

const (
	trailingATRFactor = 1.5
	trailingFloorPct  = 0.002
	stopGuardATRMult  = 2.0
	rewardRiskRatio   = 2.0
	safeStopPct       = 0.05
	minOpenConfidence = 5
)

// Close reasons recorded on TradeRecords.
const (
	ReasonStopLoss    = "STOP_LOSS"
	ReasonTakeProfit  = "TAKE_PROFIT"
	ReasonManualClose = "MANUAL_CLOSE"
	ReasonKillSwitch  = "KILL_SWITCH"
)

// Engine owns the FLAT -> OPEN -> CLOSED state machine. It mutates the
// passed-in State only; persistence stays with the caller.
type Engine struct {
	risk   config
	mem    memory.Recorder
	notify notifier.Notifier
	now    func() time.Time
}

type config struct {
	RiskPct      float64
	MaxPositions int
	LeverageCap  float64
}

func NewEngine(riskPct float64, maxPositions int, leverageCap float64, mem memory.Recorder, notify notifier.Notifier, now func() time.Time) *Engine {
	if notify == nil {
		notify = notifier.Nop{}
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{
		risk:   config{RiskPct: riskPct, MaxPositions: maxPositions, LeverageCap: leverageCap},
		mem:    mem,
		notify: notify,
		now:    now,
	}
}

// OpenRequest is one entry attempt.
type OpenRequest struct {
	Symbol   string
	Decision decision.Decision
	Price    float64
	ATR      float64
	Regime   regime.Info
}

// TryOpen opens a position when every entry guard passes. It returns whether
// a position was created; a false return is normal flow, not an error.
func (e *Engine) TryOpen(ctx context.Context, st *store.State, req OpenRequest) bool {
	d := req.Decision
	if d.Action != decision.Buy && d.Action != decision.Sell {
		return false
	}
	if d.Confidence < minOpenConfidence {
		logger.Infof("[position] %s skip entry: confidence %d below threshold", req.Symbol, d.Confidence)
		return false
	}
	if _, exists := st.Position(req.Symbol); exists {
		return false
	}
	if st.OpenCount() >= e.risk.MaxPositions {
		logger.Warnf("[position] %s skip entry: position cap %d reached", req.Symbol, e.risk.MaxPositions)
		return false
	}
	if req.Price <= 0 {
		logger.Warnf("[position] %s skip entry: no live price", req.Symbol)
		return false
	}

	side := "LONG"
	if d.Action == decision.Sell {
		side = "SHORT"
	}
	stop := e.guardedStop(req.Symbol, side, req.Price, req.ATR, d.StopLoss)
	target := e.guardedTarget(side, req.Price, stop, d.TakeProfit)

	qty := positionSize(st.AccountBalance, e.risk.RiskPct, req.Regime.Regime.SizeMultiplier(),
		d.Confidence, req.Price, stop, e.risk.LeverageCap)
	if qty <= 0 {
		logger.Infof("[position] %s skip entry: computed size is zero (regime %s)", req.Symbol, req.Regime.Regime)
		return false
	}

	now := e.now()
	pos := store.Position{
		Symbol:          req.Symbol,
		Side:            side,
		EntryPrice:      req.Price,
		Quantity:        qty,
		StopLoss:        stop,
		InitialStopLoss: stop,
		TakeProfit:      target,
		EntryTime:       now,
		RegimeAtEntry:   req.Regime,
		StrategyUsed:    string(req.Regime.Playbook),
		CurrentPrice:    req.Price,
		LastUpdate:      now,
	}
	st.SetPosition(pos)

	logger.Infof("[position] OPEN %s %s qty=%.4f entry=%.4f stop=%.4f target=%.4f conf=%d",
		side, req.Symbol, qty, req.Price, stop, target, d.Confidence)
	e.pushOpen(pos, d)
	return true
}

// ManageInput is everything one management tick needs.
type ManageInput struct {
	LivePrice    float64
	ATR          float64
	Candles      []market.Candle
	ExitRegime   regime.Info
	KillPending  bool
	ClosePending bool
}

// Manage runs one tick on the symbol's open position: break-even, trailing,
// then exit evaluation. Overrides are checked with highest priority right
// before an exit is realized. Returns the trade record if the position
// closed this tick.
func (e *Engine) Manage(ctx context.Context, st *store.State, symbol string, in ManageInput) *store.TradeRecord {
	pos, ok := st.Position(symbol)
	if !ok {
		return nil
	}
	if in.LivePrice <= 0 {
		return nil
	}

	long := pos.IsLong()
	e.ensureSafeStop(&pos)
	e.applyBreakEven(&pos, in.LivePrice, in.ATR, long)
	e.applyTrailing(&pos, in.LivePrice, in.ATR, long)
	pos.CurrentPrice = in.LivePrice
	pos.LastUpdate = e.now()
	st.SetPosition(pos)

	// Overrides beat every price-based exit.
	if in.KillPending {
		return e.close(ctx, st, pos, in.LivePrice, ReasonKillSwitch, in.ExitRegime)
	}
	if in.ClosePending {
		return e.close(ctx, st, pos, in.LivePrice, ReasonManualClose, in.ExitRegime)
	}

	// Stop before target: on a simultaneous breach capital preservation wins.
	if stopBreached(long, in.LivePrice, pos.StopLoss) {
		return e.close(ctx, st, pos, pos.StopLoss, ReasonStopLoss, in.ExitRegime)
	}
	if hit, exitPrice := targetHit(long, in.LivePrice, pos.TakeProfit, wickExtreme(long, pos.EntryTime, in.Candles)); hit {
		return e.close(ctx, st, pos, exitPrice, ReasonTakeProfit, in.ExitRegime)
	}
	return nil
}

// guardedStop corrects an absent or wrong-side oracle stop to entry -/+
// 2 ATR.
func (e *Engine) guardedStop(symbol, side string, entry, atr float64, proposed *float64) float64 {
	fallback := entry - stopGuardATRMult*atr
	if side == "SHORT" {
		fallback = entry + stopGuardATRMult*atr
	}
	if proposed == nil {
		logger.Warnf("[position] %s no stop proposed, using %.4f (2xATR)", symbol, fallback)
		return fallback
	}
	wrongSide := (side == "LONG" && *proposed >= entry) || (side == "SHORT" && *proposed <= entry)
	if wrongSide || *proposed <= 0 {
		logger.Warnf("[position] %s stop %.4f on wrong side of entry %.4f, corrected to %.4f",
			symbol, *proposed, entry, fallback)
		return fallback
	}
	return *proposed
}

// guardedTarget synthesizes a 2R target when the oracle omitted one.
func (e *Engine) guardedTarget(side string, entry, stop float64, proposed *float64) float64 {
	if proposed != nil && *proposed > 0 {
		validSide := (side == "LONG" && *proposed > entry) || (side == "SHORT" && *proposed < entry)
		if validSide {
			return *proposed
		}
	}
	risk := entry - stop
	if side == "SHORT" {
		risk = stop - entry
	}
	if side == "LONG" {
		return entry + rewardRiskRatio*risk
	}
	return entry - rewardRiskRatio*risk
}

// ensureSafeStop backfills a missing stop on a stored position at entry
// -/+ 5%.
func (e *Engine) ensureSafeStop(pos *store.Position) {
	if pos.StopLoss > 0 {
		return
	}
	if pos.IsLong() {
		pos.StopLoss = pos.EntryPrice * (1 - safeStopPct)
	} else {
		pos.StopLoss = pos.EntryPrice * (1 + safeStopPct)
	}
	logger.Warnf("[position] %s had no stop, safe stop set to %.4f", pos.Symbol, pos.StopLoss)
}

// applyBreakEven moves the stop to entry once favorable excursion exceeds
// min(ATR, half the take-profit distance). Only ever improves the stop.
func (e *Engine) applyBreakEven(pos *store.Position, live, atr float64, long bool) {
	tpDist := pos.TakeProfit - pos.EntryPrice
	excursion := live - pos.EntryPrice
	if !long {
		tpDist = -tpDist
		excursion = -excursion
	}
	trigger := atr
	if half := 0.5 * tpDist; half > 0 && half < trigger {
		trigger = half
	}
	if trigger <= 0 || excursion < trigger {
		return
	}
	if long && decimalLT(pos.StopLoss, pos.EntryPrice) {
		logger.Infof("[position] %s break-even: stop %.4f -> %.4f", pos.Symbol, pos.StopLoss, pos.EntryPrice)
		pos.StopLoss = pos.EntryPrice
		e.pushBreakEven(*pos)
	} else if !long && decimalGT(pos.StopLoss, pos.EntryPrice) {
		logger.Infof("[position] %s break-even: stop %.4f -> %.4f", pos.Symbol, pos.StopLoss, pos.EntryPrice)
		pos.StopLoss = pos.EntryPrice
		e.pushBreakEven(*pos)
	}
}

// applyTrailing ratchets the stop behind the live price. Distance is
// max(1.5 ATR, 0.2% of entry); the stop never retreats.
func (e *Engine) applyTrailing(pos *store.Position, live, atr float64, long bool) {
	dist := trailingATRFactor * atr
	if floor := trailingFloorPct * pos.EntryPrice; floor > dist {
		dist = floor
	}
	if dist <= 0 {
		return
	}
	if long {
		if candidate := live - dist; decimalGT(candidate, pos.StopLoss) {
			pos.StopLoss = candidate
		}
	} else {
		if candidate := live + dist; decimalLT(candidate, pos.StopLoss) {
			pos.StopLoss = candidate
		}
	}
}

func stopBreached(long bool, live, stop float64) bool {
	if stop <= 0 {
		return false
	}
	if long {
		return decimalLTE(live, stop)
	}
	return decimalGTE(live, stop)
}

// targetHit checks the live price and the wick extreme since entry. Exit
// price is the live price when it already cleared the target, else the
// target itself.
func targetHit(long bool, live, target, extreme float64) (bool, float64) {
	if target <= 0 {
		return false, 0
	}
	if long {
		if decimalGTE(live, target) {
			return true, live
		}
		if extreme > 0 && decimalGTE(extreme, target) {
			return true, target
		}
		return false, 0
	}
	if decimalLTE(live, target) {
		return true, live
	}
	if extreme > 0 && decimalLTE(extreme, target) {
		return true, target
	}
	return false, 0
}

// wickExtreme is the max high (long) or min low (short) over candles opened
// at or after entry time.
func wickExtreme(long bool, entryTime time.Time, candles []market.Candle) float64 {
	entryMs := entryTime.UnixMilli()
	extreme := 0.0
	for _, c := range candles {
		if c.OpenTime < entryMs {
			continue
		}
		if long {
			if c.High > extreme {
				extreme = c.High
			}
		} else {
			if extreme == 0 || c.Low < extreme {
				extreme = c.Low
			}
		}
	}
	return extreme
}

func (e *Engine) close(ctx context.Context, st *store.State, pos store.Position, exitPrice float64, reason string, exitRegime regime.Info) *store.TradeRecord {
	pnl, pnlPct := realizedPnL(pos.Side, pos.EntryPrice, exitPrice, pos.Quantity)
	rec := store.TradeRecord{
		ID:         uuid.NewString(),
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		ExitTime:   e.now(),
		PnLPercent: pnlPct,
		Realized:   pnl,
		Reason:     reason,
		Context: store.TradeContext{
			EntryRegime:  pos.RegimeAtEntry,
			ExitRegime:   exitRegime,
			StrategyUsed: pos.StrategyUsed,
		},
	}
	st.RecordTrade(rec)
	st.RemovePosition(pos.Symbol)

	logger.Infof("[position] CLOSE %s %s exit=%.4f pnl=%.2f (%.2f%%) reason=%s",
		pos.Side, pos.Symbol, exitPrice, pnl, pnlPct, reason)

	if e.mem != nil {
		lesson := memory.Lesson{
			Symbol: pos.Symbol,
			Side:   pos.Side,
			PnLPct: pnlPct,
			Reason: reason,
			Text: fmt.Sprintf("%s under %s regime (%s playbook) closed via %s at %+.2f%%",
				pos.Side, pos.RegimeAtEntry.Regime, pos.StrategyUsed, reason, pnlPct),
		}
		if err := e.mem.Record(ctx, lesson); err != nil {
			logger.Warnf("[position] %s lesson write failed: %v", pos.Symbol, err)
		}
	}
	e.pushClose(pos, rec)
	return &rec
}

func (e *Engine) pushOpen(pos store.Position, d decision.Decision) {
	msg := notifier.StructuredMessage{
		Icon:  "🚀",
		Title: fmt.Sprintf("Opened %s %s", pos.Side, pos.Symbol),
		Sections: []notifier.MessageSection{
			{Title: "Trade", Lines: []string{
				fmt.Sprintf("entry %.4f qty %.4f", pos.EntryPrice, pos.Quantity),
				fmt.Sprintf("stop %.4f target %.4f", pos.StopLoss, pos.TakeProfit),
				fmt.Sprintf("confidence %d/10, playbook %s", d.Confidence, pos.StrategyUsed),
			}},
			{Title: "Reason", Lines: []string{d.Reason}},
		},
		Timestamp: e.now().UTC(),
	}
	if err := e.notify.SendStructured(msg); err != nil {
		logger.Warnf("[position] open notification failed: %v", err)
	}
}

func (e *Engine) pushBreakEven(pos store.Position) {
	msg := notifier.StructuredMessage{
		Icon:  "🛡️",
		Title: fmt.Sprintf("Break-even %s %s", pos.Side, pos.Symbol),
		Sections: []notifier.MessageSection{
			{Title: "Stop", Lines: []string{fmt.Sprintf("moved to entry %.4f", pos.EntryPrice)}},
		},
		Timestamp: e.now().UTC(),
	}
	if err := e.notify.SendStructured(msg); err != nil {
		logger.Warnf("[position] break-even notification failed: %v", err)
	}
}

func (e *Engine) pushClose(pos store.Position, rec store.TradeRecord) {
	icon := "✅"
	if rec.Realized < 0 {
		icon = "🛑"
	}
	msg := notifier.StructuredMessage{
		Icon:  icon,
		Title: fmt.Sprintf("Closed %s %s", pos.Side, pos.Symbol),
		Sections: []notifier.MessageSection{
			{Title: "Result", Lines: []string{
				fmt.Sprintf("exit %.4f, pnl %+.2f USDT (%+.2f%%)", rec.ExitPrice, rec.Realized, rec.PnLPercent),
				"reason " + rec.Reason,
			}},
		},
		Timestamp: e.now().UTC(),
	}
	if err := e.notify.SendStructured(msg); err != nil {
		logger.Warnf("[position] close notification failed: %v", err)
	}
}
