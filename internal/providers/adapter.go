package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/crystaldolphin/chatrelay/internal/schema"
)

// Kind selects the wire format a provider speaks.
type Kind string

const (
	KindClaude   Kind = "claude"   // alternating roles, block arrays
	KindDeepSeek Kind = "deepseek" // JSON-wrapped assistant turns
	KindOpenAI   Kind = "openai"   // Responses API input items
	KindQwen     Kind = "qwen"     // block arrays with trailing metadata objects
	KindCustom   Kind = "custom"   // plain strings, OpenAI-compatible endpoint
)

// ErrUnknownKind is returned for a provider kind no adapter handles.
var ErrUnknownKind = errors.New("unknown provider kind")

// ParseKind normalises s into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KindClaude, KindDeepSeek, KindOpenAI, KindQwen, KindCustom:
		return k, nil
	case "anthropic":
		return KindClaude, nil
	case "deepinfra":
		return KindCustom, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Adapter converts canonical messages and tool turns into one provider's wire
// shape. Adapters are stateless and safe for concurrent use.
type Adapter interface {
	Kind() Kind
	// Convert turns canonical messages into wire messages. System messages
	// are skipped; the system prompt travels separately.
	Convert(msgs []schema.Message) []schema.WireMessage
	// ToolDefinitions renders tool declarations in the provider's format.
	ToolDefinitions(decls []schema.ToolDeclaration) []any
	// ToolTurn returns the assistant tool-call entry followed by the
	// tool-result entries, in call order.
	ToolTurn(content string, results []schema.ToolResult) []schema.WireMessage
	// ReplyEntry is the assistant entry recorded for a final text reply.
	ReplyEntry(raw string) schema.WireMessage
}

// NewAdapter returns the adapter for kind.
func NewAdapter(kind Kind) (Adapter, error) {
	switch kind {
	case KindClaude:
		return ClaudeAdapter{}, nil
	case KindDeepSeek:
		return DeepSeekAdapter{}, nil
	case KindOpenAI:
		return ResponsesAdapter{}, nil
	case KindQwen:
		return QwenAdapter{}, nil
	case KindCustom:
		return CustomAdapter{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// ---------------------------------------------------------------------------
// Shared helpers
// ---------------------------------------------------------------------------

const (
	defaultImageMime = "image/jpeg"
	defaultFileMime  = "application/octet-stream"
)

func mimeOrDefault(item schema.ContentItem) string {
	if item.MimeType != "" {
		return item.MimeType
	}
	if item.Kind == schema.KindImage {
		return defaultImageMime
	}
	return defaultFileMime
}

func dataURI(item schema.ContentItem) string {
	return "data:" + mimeOrDefault(item) + ";base64," + item.Value
}

func textBlock(text string) map[string]any {
	return map[string]any{"type": "text", "text": text}
}

// parametersMap decodes a JSON Schema into a plain map, defaulting to an
// empty object schema.
func parametersMap(raw json.RawMessage) map[string]any {
	out := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			slog.Warn("invalid tool parameter schema", "err", err)
		}
	}
	if len(out) == 0 {
		out = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return out
}

func skipUnknown(adapter Kind, item schema.ContentItem) {
	slog.Debug("dropping content item of unknown kind", "adapter", adapter, "kind", item.Kind, "msg_id", item.MsgID)
}
