package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCooldownGate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gate := NewCooldownGate(14*time.Minute, func() time.Time { return now })

	t.Run("never consulted", func(t *testing.T) {
		assert.True(t, gate.Allow(time.Time{}))
	})

	t.Run("inside cooldown", func(t *testing.T) {
		assert.False(t, gate.Allow(now.Add(-5*time.Minute)))
		assert.False(t, gate.Allow(now.Add(-13*time.Minute-59*time.Second)))
	})

	t.Run("boundary and beyond", func(t *testing.T) {
		assert.True(t, gate.Allow(now.Add(-14*time.Minute)))
		assert.True(t, gate.Allow(now.Add(-1*time.Hour)))
	})

	t.Run("clock is injected", func(t *testing.T) {
		assert.Equal(t, now, gate.Now())
	})
}
