package llmutils

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/crystaldolphin/chatrelay/internal/schema"
)

func TestTruncateCountsRunes(t *testing.T) {
	assert.Equal(t, "héllo", Truncate("héllo", 5))
	assert.Equal(t, "hé...", Truncate("héllo", 2))
}

func TestStripThink(t *testing.T) {
	assert.Equal(t, "answer", StripThink("<think>\nplan\n</think>answer"))
}

func TestToolHint(t *testing.T) {
	hint := ToolHint([]schema.ToolCall{
		{Name: "web_fetch", Arguments: map[string]any{"url": "https://go.dev", "maxChars": 100.0}},
		{Name: "noop"},
	})
	assert.Equal(t, `web_fetch("https://go.dev"), noop`, hint)
}
