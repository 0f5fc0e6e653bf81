// Package llmutils holds small string helpers shared by the providers, the
// reply decoder and the relay.
package llmutils

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/crystaldolphin/chatrelay/internal/schema"
)

// LevelTrace sits below slog.LevelDebug and is used for full wire payloads.
const LevelTrace = slog.Level(-8)

var reThink = regexp.MustCompile(`(?s)<think>.*?</think>`)

// Truncate shortens s to at most n runes, adding "..." if it was cut.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

// StripThink removes <think>…</think> reasoning blocks some models embed.
func StripThink(s string) string {
	return reThink.ReplaceAllString(s, "")
}

// ToolHint summarises tool calls for logs, e.g. `web_fetch("https://go.dev")`.
// The argument shown is the first string value in key order.
func ToolHint(calls []schema.ToolCall) string {
	parts := make([]string, 0, len(calls))
	for _, call := range calls {
		arg := firstStringArg(call.Arguments)
		if arg == "" {
			parts = append(parts, call.Name)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s(%q)", call.Name, Truncate(arg, 40)))
	}
	return strings.Join(parts, ", ")
}

func firstStringArg(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s, ok := args[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
