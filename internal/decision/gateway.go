package decision

import (
	"context"
	"time"

	"agentra/internal/gateway/oracle"
	"agentra/internal/logger"
)

// Result is the gateway's answer plus whether a real network consultation
// happened. Called=true obliges the caller to persist the new LastCall
// immediately and to pace before the next instrument.
type Result struct {
	Decision Decision
	Called   bool
	LastCall time.Time
}

// Gateway fronts the oracle with a per-symbol cooldown and total failure
// containment: every path out of Decide returns a usable Decision.
type Gateway struct {
	client oracle.Client
	gate   *CooldownGate
}

func NewGateway(client oracle.Client, cooldown time.Duration, now func() time.Time) *Gateway {
	return &Gateway{
		client: client,
		gate:   NewCooldownGate(cooldown, now),
	}
}

// Decide consults the oracle unless the symbol is throttled or has a manual
// close pending. Transport or parse failures degrade to HOLD with zero
// confidence; they never propagate.
func (g *Gateway) Decide(ctx context.Context, req Request) Result {
	if req.ClosePending {
		return Result{Decision: HoldDecision("rate limited: manual close pending")}
	}
	if !g.gate.Allow(req.LastCall) {
		return Result{Decision: HoldDecision("rate limited: cooldown active")}
	}

	calledAt := g.gate.Now()
	raw, err := g.client.Complete(ctx, systemPrompt, BuildUserPrompt(req))
	if err != nil {
		logger.Errorf("[decision] %s oracle call failed: %v", req.Symbol, err)
		return Result{Decision: HoldDecision("oracle unavailable"), Called: true, LastCall: calledAt}
	}

	d, err := ParseReply(raw)
	if err != nil {
		logger.Errorf("[decision] %s unparseable oracle reply: %v", req.Symbol, err)
		return Result{Decision: HoldDecision("oracle reply invalid"), Called: true, LastCall: calledAt}
	}

	d.Confidence = clampConfidence(d.Confidence + req.Regime.ConfidenceAdjustment)
	logger.Infof("[decision] %s -> %s conf=%d reason=%s", req.Symbol, d.Action, d.Confidence, d.Reason)
	return Result{Decision: d, Called: true, LastCall: calledAt}
}

func clampConfidence(c int) int {
	if c < 1 {
		return 1
	}
	if c > 10 {
		return 10
	}
	return c
}
