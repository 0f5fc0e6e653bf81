package providers

import (
	"github.com/crystaldolphin/chatrelay/internal/envelope"
	"github.com/crystaldolphin/chatrelay/internal/schema"
)

// ResponsesAdapter builds input items for the OpenAI Responses API.
// Text parts are tagged output_text on assistant turns and input_text on
// user turns.
type ResponsesAdapter struct{}

func (ResponsesAdapter) Kind() Kind { return KindOpenAI }

func (ResponsesAdapter) Convert(msgs []schema.Message) []schema.WireMessage {
	out := make([]schema.WireMessage, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Role == schema.RoleSystem {
			continue
		}
		tag := "input_text"
		if msg.Role == schema.RoleAssistant {
			tag = "output_text"
		}

		var (
			blocks     = make([]any, 0, len(msg.Content))
			attachment *schema.ContentItem
		)
		for i, item := range msg.Content {
			switch {
			case item.IsTextLike():
				blocks = append(blocks, map[string]any{"type": tag, "text": envelope.Build(msg, item).String()})
			case item.Kind == schema.KindImage:
				blocks = append(blocks, map[string]any{"type": "input_image", "image_url": dataURI(item)})
			case item.Kind == schema.KindFile:
				blocks = append(blocks, map[string]any{
					"type":      "input_file",
					"filename":  item.Filename,
					"file_data": dataURI(item),
				})
			default:
				skipUnknown(KindOpenAI, item)
				continue
			}
			if !item.IsTextLike() && attachment == nil {
				attachment = &msg.Content[i]
			}
		}
		if attachment != nil && !msg.HasTextLike() {
			blocks = append(blocks, map[string]any{"type": tag, "text": envelope.Fallback(msg, *attachment).String()})
		}

		out = append(out, schema.WireMessage{
			"type":    "message",
			"role":    string(msg.Role),
			"content": blocks,
		})
	}
	return out
}

// ToolDefinitions uses the flat Responses API function shape.
func (ResponsesAdapter) ToolDefinitions(decls []schema.ToolDeclaration) []any {
	out := make([]any, 0, len(decls))
	for _, d := range decls {
		out = append(out, map[string]any{
			"type":        "function",
			"name":        d.Name,
			"description": d.Description,
			"parameters":  parametersMap(d.Parameters),
		})
	}
	return out
}

// ToolTurn emits function_call items followed by function_call_output items.
func (a ResponsesAdapter) ToolTurn(content string, results []schema.ToolResult) []schema.WireMessage {
	var out []schema.WireMessage
	if content != "" {
		out = append(out, a.ReplyEntry(content))
	}
	for _, r := range results {
		out = append(out, schema.WireMessage{
			"type":      "function_call",
			"call_id":   r.Call.ID,
			"name":      r.Call.Name,
			"arguments": r.Call.ArgumentsJSON(),
		})
	}
	for _, r := range results {
		out = append(out, schema.WireMessage{
			"type":    "function_call_output",
			"call_id": r.Call.ID,
			"output":  r.Content,
		})
	}
	return out
}

func (ResponsesAdapter) ReplyEntry(raw string) schema.WireMessage {
	return schema.WireMessage{
		"type":    "message",
		"role":    "assistant",
		"content": []any{map[string]any{"type": "output_text", "text": raw}},
	}
}
