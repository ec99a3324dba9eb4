package decision

import "time"

// CooldownGate throttles oracle consultations per symbol. The clock is
// injected so the gate is testable without sleeping.
type CooldownGate struct {
	cooldown time.Duration
	now      func() time.Time
}

func NewCooldownGate(cooldown time.Duration, now func() time.Time) *CooldownGate {
	if now == nil {
		now = time.Now
	}
	return &CooldownGate{cooldown: cooldown, now: now}
}

// Allow reports whether a call may go out given the symbol's last call time.
// A zero lastCall means the symbol has never been consulted.
func (g *CooldownGate) Allow(lastCall time.Time) bool {
	if lastCall.IsZero() {
		return true
	}
	return g.now().Sub(lastCall) >= g.cooldown
}

// Now exposes the gate's clock so callers stamp last-call times consistently.
func (g *CooldownGate) Now() time.Time { return g.now() }
