package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"agentra/internal/analysis/indicator"
	"agentra/internal/analysis/profile"
	"agentra/internal/analysis/smc"
	"agentra/internal/analysis/stats"
	"agentra/internal/config"
	"agentra/internal/decision"
	"agentra/internal/logger"
	"agentra/internal/market"
	"agentra/internal/memory"
	"agentra/internal/position"
	"agentra/internal/regime"
	"agentra/internal/store"

	"golang.org/x/time/rate"
)

// Overrides is the override-signal port the engine polls. The file-backed
// registry in internal/override satisfies it.
type Overrides interface {
	KillPending() bool
	ConsumeKill() error
	PendingClose(symbol string) bool
	ConsumeClose(symbol string) error
}

// SentimentProvider supplies free-form news/sentiment text for the oracle
// prompt. May return "".
type SentimentProvider interface {
	Latest(ctx context.Context) string
}

// StaticSentiment returns a fixed string (usually empty).
type StaticSentiment string

func (s StaticSentiment) Latest(context.Context) string { return string(s) }

// LeaderContext is the once-per-cycle read of the market leader.
type LeaderContext struct {
	Symbol    string
	ChangePct float64
	Label     string
}

// Engine drives the trading cycle: one logical worker walking the symbol
// universe strictly sequentially, so AgentState never sees concurrent
// mutation.
type Engine struct {
	cfg        *config.Config
	source     market.Source
	store      store.Store
	gateway    *decision.Gateway
	classifier *regime.Classifier
	lifecycle  *position.Engine
	overrides  Overrides
	lessons    memory.Recaller
	sentiment  SentimentProvider
	limiter    *rate.Limiter
	gate       gatekeeper
	now        func() time.Time
}

func New(cfg *config.Config, source market.Source, st store.Store, gw *decision.Gateway,
	classifier *regime.Classifier, lifecycle *position.Engine, overrides Overrides,
	lessons memory.Recaller, sentiment SentimentProvider) *Engine {
	if sentiment == nil {
		sentiment = StaticSentiment("")
	}
	return &Engine{
		cfg:        cfg,
		source:     source,
		store:      st,
		gateway:    gw,
		classifier: classifier,
		lifecycle:  lifecycle,
		overrides:  overrides,
		lessons:    lessons,
		sentiment:  sentiment,
		limiter:    rate.NewLimiter(rate.Every(cfg.Oracle.Pacing), 1),
		gate:       gatekeeper{cfg: cfg.Gatekeeper},
		now:        time.Now,
	}
}

// Run executes cycles until the context ends. A cycle failure is logged and
// the next cycle starts on schedule; only cancellation stops the loop.
func (e *Engine) Run(ctx context.Context) error {
	logger.Infof("[engine] starting: %d symbols, cycle %s", len(e.cfg.Symbols), e.cfg.CycleInterval)
	ticker := time.NewTicker(e.cfg.CycleInterval)
	defer ticker.Stop()

	e.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Infof("[engine] stopped: %v", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			e.RunCycle(ctx)
		}
	}
}

// RunCycle walks the universe once. The kill switch is observed once at the
// top and consumed once at the bottom, so every open position sees the same
// verdict within the cycle. Consumption is deferred to a later cycle when a
// symbol that held a position could not complete its turn.
func (e *Engine) RunCycle(ctx context.Context) {
	killActive := e.overrides.KillPending()
	var killHeld map[string]bool
	if killActive {
		logger.Warnf("[engine] kill switch active: closing all positions this cycle")
		killHeld = e.openSymbols(ctx)
	}

	leader := e.fetchLeader(ctx)
	sentiment := e.sentiment.Latest(ctx)

	failed := make(map[string]bool)
	for _, symbol := range e.orderedUniverse() {
		if ctx.Err() != nil {
			return
		}
		if err := e.processSymbol(ctx, symbol, leader, sentiment, killActive); err != nil {
			failed[symbol] = true
			logger.Errorf("[engine] %s cycle turn failed: %v", symbol, err)
		}
	}

	if killActive {
		e.settleKill(killHeld, failed)
	}
}

// settleKill consumes the kill sentinel only when every symbol that held a
// position at cycle start got a clean turn. Otherwise the switch stays armed
// so the position that escaped this cycle is flattened on the next one.
func (e *Engine) settleKill(held, failed map[string]bool) {
	if held == nil {
		logger.Warnf("[engine] kill switch stays armed: open positions unknown")
		return
	}
	for symbol := range held {
		if failed[symbol] {
			logger.Warnf("[engine] kill switch stays armed: %s turn failed with a position open", symbol)
			return
		}
	}
	if err := e.overrides.ConsumeKill(); err != nil {
		logger.Errorf("[engine] kill switch consume failed: %v", err)
	}
}

// openSymbols snapshots which symbols hold a position. Returns nil when the
// state cannot be read.
func (e *Engine) openSymbols(ctx context.Context) map[string]bool {
	st, err := e.store.Load(ctx)
	if err != nil {
		logger.Errorf("[engine] state load failed: %v", err)
		return nil
	}
	held := make(map[string]bool, len(st.Positions))
	for _, p := range st.Positions {
		held[p.Symbol] = true
	}
	return held
}

// orderedUniverse puts symbols with a pending manual close first so operator
// intent is honored before any oracle spend.
func (e *Engine) orderedUniverse() []string {
	symbols := append([]string(nil), e.cfg.Symbols...)
	sort.SliceStable(symbols, func(i, j int) bool {
		return e.overrides.PendingClose(symbols[i]) && !e.overrides.PendingClose(symbols[j])
	})
	return symbols
}

// fetchLeader reads the leader's latest closed-candle percent change once per
// cycle. A failed read degrades to a neutral leader, never aborts the cycle.
func (e *Engine) fetchLeader(ctx context.Context) LeaderContext {
	lc := LeaderContext{Symbol: e.cfg.Leader.Symbol, Label: "NEUTRAL"}
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Exchange.HTTPTimeout)
	defer cancel()
	candles, err := e.source.FetchHistory(callCtx, e.cfg.Leader.Symbol, e.cfg.Leader.Interval, 3)
	if err != nil || len(candles) < 2 {
		logger.Warnf("[engine] leader fetch failed (%v), assuming neutral", err)
		return lc
	}
	last, prev := candles[len(candles)-1], candles[len(candles)-2]
	if prev.Close > 0 {
		lc.ChangePct = (last.Close - prev.Close) / prev.Close * 100
	}
	switch {
	case lc.ChangePct > 1.0:
		lc.Label = "PUMPING"
	case lc.ChangePct < -1.0:
		lc.Label = "DUMPING"
	}
	return lc
}

func (e *Engine) processSymbol(ctx context.Context, symbol string, leader LeaderContext, sentiment string, killActive bool) error {
	// Fresh load each turn so overrides and writes from earlier turns are
	// visible.
	st, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("state load: %w", err)
	}
	_, hasPos := st.Position(symbol)
	closePending := e.overrides.PendingClose(symbol)

	micro, err := e.fetchSeries(ctx, symbol, e.cfg.Timeframes.Micro, e.cfg.Timeframes.MicroLimit)
	if err != nil {
		return fmt.Errorf("micro data: %w", err)
	}
	microSeries, err := indicator.Compute(symbol, e.cfg.Timeframes.Micro, micro)
	if err != nil {
		return fmt.Errorf("micro indicators: %w", err)
	}

	if !killActive && !hasPos && !closePending && !e.gate.interesting(microSeries.Last()) {
		logger.Debugf("[engine] %s gatekeeper skip", symbol)
		return nil
	}

	macro, err := e.fetchSeries(ctx, symbol, e.cfg.Timeframes.Macro, e.cfg.Timeframes.MacroLimit)
	if err != nil {
		return fmt.Errorf("macro data: %w", err)
	}
	macroSeries, err := indicator.Compute(symbol, e.cfg.Timeframes.Macro, macro)
	if err != nil {
		return fmt.Errorf("macro indicators: %w", err)
	}

	diag := e.diagnose(micro, macro)
	info := e.classify(micro, macroSeries, diag, leader)

	live, err := e.fetchTicker(ctx, symbol)
	if err != nil {
		return fmt.Errorf("ticker: %w", err)
	}

	res := e.consult(ctx, st, symbol, &microSeries, &macroSeries, diag, info, leader, sentiment, closePending, hasPos)

	atr := microSeries.Last().ATR
	rec := e.lifecycle.Manage(ctx, st, symbol, position.ManageInput{
		LivePrice:    live,
		ATR:          atr,
		Candles:      micro,
		ExitRegime:   info,
		KillPending:  killActive,
		ClosePending: closePending,
	})
	if closePending {
		// Acted upon regardless of outcome: a stale request for a flat
		// symbol is also cleared.
		if err := e.overrides.ConsumeClose(symbol); err != nil {
			logger.Warnf("[engine] %s close request consume failed: %v", symbol, err)
		}
	}

	if rec == nil && !killActive && !closePending {
		e.lifecycle.TryOpen(ctx, st, position.OpenRequest{
			Symbol:   symbol,
			Decision: res.Decision,
			Price:    live,
			ATR:      atr,
			Regime:   info,
		})
	}

	snap := microSeries.Last()
	st.LatestAnalysis = store.Analysis{Symbol: symbol, Price: live, RSI: snap.RSI, ADX: snap.ADX}
	st.LastRun = e.now()
	e.persist(ctx, st, symbol)
	return nil
}

type diagnostics struct {
	Hurst   float64
	VPIN    float64
	Drift   stats.DriftResult
	Profile profile.Profile
	SMC     smc.Report
}

// diagnose runs the statistical battery. Hurst reads the macro closes; the
// drift, toxicity and structure reads come from the micro series.
func (e *Engine) diagnose(micro, macro []market.Candle) diagnostics {
	microCloses := market.Closes(micro)
	current, baseline := splitDriftWindows(microCloses, e.cfg.Drift.CurrentWindow, e.cfg.Drift.BaselineWindow)
	return diagnostics{
		Hurst:   stats.Hurst(market.Closes(macro)),
		VPIN:    stats.VPIN(micro, e.cfg.VPIN.Buckets, e.cfg.VPIN.BucketSizeFactor),
		Drift:   stats.DetectDrift(current, baseline, e.cfg.Drift.Alpha),
		Profile: profile.Compute(micro, e.cfg.Classifier.ProfileLookback),
		SMC:     smc.Analyze(micro),
	}
}

// splitDriftWindows takes the trailing currentN closes and the baselineN
// closes immediately before them.
func splitDriftWindows(closes []float64, currentN, baselineN int) ([]float64, []float64) {
	n := len(closes)
	if n <= currentN {
		return closes, nil
	}
	current := closes[n-currentN:]
	start := n - currentN - baselineN
	if start < 0 {
		start = 0
	}
	return current, closes[start : n-currentN]
}

func (e *Engine) classify(micro []market.Candle, macroSeries indicator.Series, diag diagnostics, leader LeaderContext) regime.Info {
	last := micro[len(micro)-1]
	prev := micro[len(micro)-2]
	avgVol := trailingAvgVolume(micro)
	macroLast := macroSeries.Last()
	return e.classifier.Classify(regime.Observation{
		MicroClose:      last.Close,
		MicroPrevClose:  prev.Close,
		MicroVolume:     last.Volume,
		MicroAvgVolume:  avgVol,
		MacroADX:        macroLast.ADX,
		MacroClose:      macroLast.Candle.Close,
		MacroEMA200:     macroLast.EMA200,
		Hurst:           diag.Hurst,
		Profile:         diag.Profile,
		LeaderChangePct: leader.ChangePct,
		DriftDetected:   diag.Drift.Detected,
	})
}

// trailingAvgVolume averages the 20 candles before the latest one.
func trailingAvgVolume(candles []market.Candle) float64 {
	n := len(candles)
	if n < 2 {
		return 0
	}
	start := n - 21
	if start < 0 {
		start = 0
	}
	window := candles[start : n-1]
	sum := 0.0
	for _, c := range window {
		sum += c.Volume
	}
	return sum / float64(len(window))
}

// consult dispatches the decision gateway and, when a real network call
// happened, persists the last-call stamp immediately and paces before the
// next instrument.
func (e *Engine) consult(ctx context.Context, st *store.State, symbol string,
	micro, macro *indicator.Series, diag diagnostics, info regime.Info,
	leader LeaderContext, sentiment string, closePending, hasPos bool) decision.Result {

	var pos *store.Position
	if hasPos {
		if p, ok := st.Position(symbol); ok {
			pos = &p
		}
	}
	var lessons []memory.Lesson
	if e.lessons != nil {
		var err error
		lessons, err = e.lessons.Recall(ctx, symbol, 5)
		if err != nil {
			logger.Warnf("[engine] %s lesson recall failed: %v", symbol, err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Oracle.Timeout)
	defer cancel()
	res := e.gateway.Decide(callCtx, decision.Request{
		Symbol:          symbol,
		Micro:           micro,
		Macro:           macro,
		Regime:          info,
		Hurst:           diag.Hurst,
		VPIN:            diag.VPIN,
		Drift:           diag.Drift,
		Profile:         diag.Profile,
		SMC:             diag.SMC,
		LeaderSymbol:    leader.Symbol,
		LeaderChangePct: leader.ChangePct,
		LeaderLabel:     leader.Label,
		Sentiment:       sentiment,
		Lessons:         lessons,
		Position:        pos,
		Balance:         st.AccountBalance,
		LastCall:        st.LastOracleCall[symbol],
		ClosePending:    closePending,
	})

	if res.Called {
		st.LastOracleCall[symbol] = res.LastCall
		// Persisted immediately, not batched: a crash before the next
		// write must not trigger runaway repeated calls.
		e.persist(ctx, st, symbol)
		if err := e.limiter.Wait(ctx); err != nil && ctx.Err() == nil {
			logger.Warnf("[engine] pacing interrupted: %v", err)
		}
	}
	return res
}

func (e *Engine) fetchSeries(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Exchange.HTTPTimeout)
	defer cancel()
	candles, err := e.source.FetchHistory(callCtx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}
	if err := market.Validate(candles); err != nil {
		return nil, err
	}
	return candles, nil
}

func (e *Engine) fetchTicker(ctx context.Context, symbol string) (float64, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Exchange.HTTPTimeout)
	defer cancel()
	return e.source.FetchTicker(callCtx, symbol)
}

// persist saves the state document. Failures are logged and the in-memory
// state carries forward; the next cycle writes fresh.
func (e *Engine) persist(ctx context.Context, st *store.State, symbol string) {
	if err := e.store.Save(ctx, st); err != nil {
		logger.Errorf("[engine] %s state save failed: %v", symbol, err)
	}
}
