package decision

import (
	"fmt"
	"strings"

	"agentra/internal/analysis/indicator"
	"agentra/internal/memory"
)

const systemPrompt = `You are a disciplined crypto futures position manager.
You receive one instrument per message: indicator snapshots, quantitative
regime diagnostics, the active strategy rule set, and lessons from past
trades. Decide whether to open a position now.

Respond with a single JSON object and nothing else:
` + "```json" + `
{"decision": "BUY|SELL|HOLD", "reason": "...", "stop_loss": 0.0, "take_profit": 0.0, "confidence": 1}
` + "```" + `
Rules:
- "decision" is BUY, SELL or HOLD. HOLD is always acceptable.
- "confidence" is an integer 1-10. Below 5 no trade will be taken.
- "stop_loss" and "take_profit" are absolute prices, or null when holding.
- Follow the active strategy rules; if the setup violates them, HOLD.`

// BuildUserPrompt renders the full market context for one instrument.
func BuildUserPrompt(req Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "=== INSTRUMENT: %s ===\n\n", req.Symbol)

	if req.Micro != nil {
		b.WriteString("## Execution timeframe (" + req.Micro.Interval + ")\n")
		b.WriteString(renderSnippet(req.Micro))
		b.WriteString("\n")
	}
	if req.Macro != nil {
		b.WriteString("## Context timeframe (" + req.Macro.Interval + ")\n")
		b.WriteString(renderSnippet(req.Macro))
		b.WriteString("\n")
	}

	b.WriteString("## Quantitative physics\n")
	fmt.Fprintf(&b, "- Regime: %s (playbook %s", req.Regime.Regime, req.Regime.Playbook)
	if req.Regime.Bias != "" {
		fmt.Fprintf(&b, ", bias %s", req.Regime.Bias)
	}
	b.WriteString(")\n")
	if req.Regime.Reason != "" {
		fmt.Fprintf(&b, "- Regime reason: %s\n", req.Regime.Reason)
	}
	fmt.Fprintf(&b, "- Hurst exponent: %.3f\n", req.Hurst)
	fmt.Fprintf(&b, "- VPIN toxicity: %.3f\n", req.VPIN)
	if req.Drift.Detected {
		fmt.Fprintf(&b, "- ALERT statistical drift detected (p=%.4f): recent returns no longer match baseline\n", req.Drift.PValue)
	}
	if req.Profile.POC > 0 {
		fmt.Fprintf(&b, "- Volume profile: POC %.4f, VAH %.4f, VAL %.4f\n",
			req.Profile.POC, req.Profile.VAH, req.Profile.VAL)
	}
	if structure := req.SMC.Render(); structure != "" {
		b.WriteString(structure)
	}

	if req.LeaderSymbol != "" {
		fmt.Fprintf(&b, "\n## Market leader\n- %s 1h change %+.2f%% (%s)\n",
			req.LeaderSymbol, req.LeaderChangePct, req.LeaderLabel)
	}

	if sentiment := strings.TrimSpace(req.Sentiment); sentiment != "" {
		b.WriteString("\n## News & sentiment\n" + sentiment + "\n")
	}

	b.WriteString("\n## Account\n")
	fmt.Fprintf(&b, "- Balance: %.2f USDT\n", req.Balance)
	if req.Position != nil {
		fmt.Fprintf(&b, "- OPEN POSITION: %s %s entry %.4f stop %.4f target %.4f\n",
			req.Position.Side, req.Position.Symbol, req.Position.EntryPrice,
			req.Position.StopLoss, req.Position.TakeProfit)
	} else {
		b.WriteString("- No open position on this instrument\n")
	}

	if lessons := renderLessons(req.Lessons); lessons != "" {
		b.WriteString("\n## Lessons from past trades\n" + lessons)
	}

	b.WriteString("\n" + req.Regime.Playbook.Rules())
	return b.String()
}

// renderSnippet summarizes where the instrument is and how it got there:
// current values, 5-candle momentum deltas, the last 3 closes, and a volume
// conviction read.
func renderSnippet(s *indicator.Series) string {
	if s.Len() == 0 {
		return "- no data\n"
	}
	last := s.Last()
	var b strings.Builder
	fmt.Fprintf(&b, "- Close %.4f | RSI %.1f | ADX %.1f | ATR %.4f\n",
		last.Candle.Close, last.RSI, last.ADX, last.ATR)
	fmt.Fprintf(&b, "- EMA50 %.4f | EMA200 %.4f | BB %.4f / %.4f / %.4f\n",
		last.EMA50, last.EMA200, last.BBLower, last.BBMid, last.BBUpper)
	fmt.Fprintf(&b, "- MACD %.5f vs signal %.5f\n", last.MACD, last.MACDSignal)

	n := s.Len()
	if n > 5 {
		ref := s.Snapshots[n-6]
		fmt.Fprintf(&b, "- 5-candle momentum: RSI %s | ADX %s | volume %s\n",
			deltaArrow(last.RSI-ref.RSI), deltaArrow(last.ADX-ref.ADX),
			deltaArrow(last.Candle.Volume-ref.Candle.Volume))
	}
	if n >= 3 {
		a, m := s.Snapshots[n-3], s.Snapshots[n-2]
		fmt.Fprintf(&b, "- Last 3 closes: %.4f -> %.4f -> %.4f\n",
			a.Candle.Close, m.Candle.Close, last.Candle.Close)
	}
	if trend := volumeTrend(s); trend != "" {
		b.WriteString("- Volume conviction: " + trend + "\n")
	}
	return b.String()
}

func deltaArrow(delta float64) string {
	switch {
	case delta > 0:
		return fmt.Sprintf("rising (%+.1f)", delta)
	case delta < 0:
		return fmt.Sprintf("falling (%+.1f)", delta)
	default:
		return "flat"
	}
}

// volumeTrend compares the 5-candle mean volume against the 15-candle mean.
func volumeTrend(s *indicator.Series) string {
	n := s.Len()
	if n < 15 {
		return ""
	}
	mean := func(k int) float64 {
		sum := 0.0
		for i := n - k; i < n; i++ {
			sum += s.Snapshots[i].Candle.Volume
		}
		return sum / float64(k)
	}
	short, long := mean(5), mean(15)
	if long <= 0 {
		return ""
	}
	ratio := short / long
	switch {
	case ratio > 1.2:
		return fmt.Sprintf("EXPANDING (%.2fx recent vs baseline)", ratio)
	case ratio < 0.8:
		return fmt.Sprintf("FADING (%.2fx recent vs baseline)", ratio)
	default:
		return "steady"
	}
}

func renderLessons(lessons []memory.Lesson) string {
	if len(lessons) == 0 {
		return ""
	}
	var b strings.Builder
	// Newest lessons come first from the store; render oldest first.
	for i := len(lessons) - 1; i >= 0; i-- {
		l := lessons[i]
		outcome := "LOSS"
		if l.PnLPct > 0 {
			outcome = "WIN"
		}
		fmt.Fprintf(&b, "- %s %s %s (%+.2f%%): %s\n", l.Symbol, l.Side, outcome, l.PnLPct, l.Text)
	}
	return b.String()
}
