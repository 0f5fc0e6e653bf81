package providers

import (
	"strings"

	"github.com/crystaldolphin/chatrelay/internal/envelope"
	"github.com/crystaldolphin/chatrelay/internal/schema"
)

const mimePDF = "application/pdf"

// ClaudeAdapter targets the Anthropic Messages API, which requires strictly
// alternating user/assistant turns starting with a user turn.
type ClaudeAdapter struct{}

func (ClaudeAdapter) Kind() Kind { return KindClaude }

func (a ClaudeAdapter) Convert(msgs []schema.Message) []schema.WireMessage {
	var out []schema.WireMessage

	for _, msg := range msgs {
		if msg.Role == schema.RoleSystem {
			continue
		}
		role := msg.Role
		// Assistant-authored images are rejected by the API.
		if role == schema.RoleAssistant && msg.HasKind(schema.KindImage) {
			role = schema.RoleUser
		}

		blocks := a.blocks(msg)
		if len(blocks) == 0 {
			continue
		}

		if n := len(out); n > 0 && out[n-1]["role"] == string(role) {
			prev, _ := out[n-1]["content"].([]any)
			out[n-1]["content"] = append(prev, blocks...)
			continue
		}
		out = append(out, schema.WireMessage{
			"role":    string(role),
			"content": blocks,
		})
	}

	for len(out) > 0 && out[0]["role"] != string(schema.RoleUser) {
		out = out[1:]
	}
	return out
}

func (a ClaudeAdapter) blocks(msg schema.Message) []any {
	var (
		blocks     []any
		attachment *schema.ContentItem
	)
	for i, item := range msg.Content {
		switch {
		case item.IsTextLike():
			blocks = append(blocks, textBlock(envelope.Build(msg, item).String()))
		case item.Kind == schema.KindImage:
			blocks = append(blocks, map[string]any{
				"type":   "image",
				"source": base64Source(item),
			})
			if attachment == nil {
				attachment = &msg.Content[i]
			}
		case item.Kind == schema.KindFile && item.MimeType == mimePDF:
			blocks = append(blocks, map[string]any{
				"type":   "document",
				"source": base64Source(item),
			})
			if attachment == nil {
				attachment = &msg.Content[i]
			}
		case item.Kind == schema.KindFile:
			blocks = append(blocks, textBlock(envelope.Unsupported(msg, item).String()))
		default:
			skipUnknown(KindClaude, item)
		}
	}
	if attachment != nil && !msg.HasTextLike() {
		blocks = append(blocks, textBlock(envelope.Fallback(msg, *attachment).String()))
	}
	return blocks
}

func base64Source(item schema.ContentItem) map[string]any {
	return map[string]any{
		"type":       "base64",
		"media_type": mimeOrDefault(item),
		"data":       item.Value,
	}
}

// ToolDefinitions uses Anthropic's {name, description, input_schema} shape.
func (ClaudeAdapter) ToolDefinitions(decls []schema.ToolDeclaration) []any {
	out := make([]any, 0, len(decls))
	for _, d := range decls {
		out = append(out, map[string]any{
			"name":         d.Name,
			"description":  d.Description,
			"input_schema": parametersMap(d.Parameters),
		})
	}
	return out
}

// ToolTurn emits one assistant message of tool_use blocks and one user
// message holding every tool_result, keeping the roles alternating.
func (ClaudeAdapter) ToolTurn(content string, results []schema.ToolResult) []schema.WireMessage {
	var calls []any
	if content != "" {
		calls = append(calls, textBlock(content))
	}
	outputs := make([]any, 0, len(results))
	for _, r := range results {
		input := r.Call.Arguments
		if input == nil {
			input = map[string]any{}
		}
		calls = append(calls, map[string]any{
			"type":  "tool_use",
			"id":    r.Call.ID,
			"name":  r.Call.Name,
			"input": input,
		})
		outputs = append(outputs, map[string]any{
			"type":        "tool_result",
			"tool_use_id": r.Call.ID,
			"content":     r.Content,
		})
	}
	return []schema.WireMessage{
		{"role": "assistant", "content": calls},
		{"role": "user", "content": outputs},
	}
}

// emptyReply is recorded for a blank completion; Anthropic rejects empty
// text blocks.
const emptyReply = `{"message":null}`

func (ClaudeAdapter) ReplyEntry(raw string) schema.WireMessage {
	if strings.TrimSpace(raw) == "" {
		raw = emptyReply
	}
	return schema.WireMessage{
		"role":    "assistant",
		"content": []any{textBlock(raw)},
	}
}
