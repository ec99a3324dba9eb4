package notifier

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRenderMarkdown(t *testing.T) {
	msg := StructuredMessage{
		Icon:  "🚀",
		Title: "Opened LONG BTC/USDT",
		Sections: []MessageSection{
			{Title: "Trade", Lines: []string{"entry 100.0000 qty 1.0000", ""}},
			{Title: "Reason", Lines: []string{"breakout retest"}},
		},
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	out := msg.RenderMarkdown()

	assert.True(t, strings.HasPrefix(out, "🚀 Opened LONG BTC/USDT"))
	assert.Contains(t, out, "```\n")
	assert.Contains(t, out, "- entry 100.0000 qty 1.0000")
	assert.Contains(t, out, "Reason\n- breakout retest")
	assert.Contains(t, out, "Time: 2026-03-01 12:00:00 UTC")
}

func TestRenderMarkdownSanitizesFences(t *testing.T) {
	msg := StructuredMessage{
		Title: "t",
		Sections: []MessageSection{
			{Lines: []string{"evil ``` break"}},
		},
	}
	out := msg.RenderMarkdown()
	assert.Contains(t, out, "evil ''' break")
	// Exactly the wrapping fence pair survives.
	assert.Equal(t, 2, strings.Count(out, "```"))
}

func TestRenderMarkdownSkipsEmptySections(t *testing.T) {
	msg := StructuredMessage{
		Title:    "t",
		Sections: []MessageSection{{Title: "Empty", Lines: []string{"", "  "}}},
	}
	assert.NotContains(t, msg.RenderMarkdown(), "```")
}

func TestRenderMarkdownTruncates(t *testing.T) {
	msg := StructuredMessage{
		Title: "t",
		Sections: []MessageSection{
			{Lines: []string{strings.Repeat("x", 5000)}},
		},
	}
	out := msg.RenderMarkdown()
	assert.LessOrEqual(t, len(out), maxStructuredMessageLen+3)
	assert.True(t, strings.HasSuffix(out, "..."))
}
