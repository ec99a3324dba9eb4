package notifier

// Notifier is the minimal push surface the engine depends on. Delivery is
// best-effort: callers log failures and move on, a dead notifier must never
// stall a trading cycle.
type Notifier interface {
	SendText(text string) error
	SendStructured(msg StructuredMessage) error
}

// Nop discards everything. Used when Telegram is not configured.
type Nop struct{}

var _ Notifier = Nop{}

func (Nop) SendText(string) error                 { return nil }
func (Nop) SendStructured(StructuredMessage) error { return nil }
