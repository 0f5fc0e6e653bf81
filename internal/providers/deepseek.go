package providers

import (
	"encoding/json"
	"strings"

	"github.com/crystaldolphin/chatrelay/internal/envelope"
	"github.com/crystaldolphin/chatrelay/internal/schema"
)

// DeepSeekAdapter keeps one wire message per canonical message. Assistant
// turns collapse into one text block whose text is a stringified
// {"type":"text","text":...} object; user turns are arrays of text blocks.
// Attachments are described in text.
type DeepSeekAdapter struct{ chatFormat }

func (DeepSeekAdapter) Kind() Kind { return KindDeepSeek }

func (DeepSeekAdapter) Convert(msgs []schema.Message) []schema.WireMessage {
	out := make([]schema.WireMessage, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Role == schema.RoleSystem {
			continue
		}

		var texts []string
		for _, item := range msg.Content {
			switch {
			case item.IsTextLike():
				texts = append(texts, envelope.Build(msg, item).String())
			case item.Kind == schema.KindImage, item.Kind == schema.KindFile:
				texts = append(texts, envelope.Unsupported(msg, item).String())
			default:
				skipUnknown(KindDeepSeek, item)
			}
		}

		if msg.Role == schema.RoleAssistant {
			blocks := []any{}
			if len(texts) > 0 {
				blocks = append(blocks, textBlock(wrapAssistantText(texts)))
			}
			out = append(out, schema.WireMessage{
				"role":    "assistant",
				"content": blocks,
			})
			continue
		}

		blocks := make([]any, 0, len(texts))
		for _, t := range texts {
			blocks = append(blocks, textBlock(t))
		}
		out = append(out, schema.WireMessage{
			"role":    string(msg.Role),
			"content": blocks,
		})
	}
	return out
}

func wrapAssistantText(texts []string) string {
	b, err := json.Marshal(map[string]any{
		"type": "text",
		"text": strings.Join(texts, "\n"),
	})
	if err != nil {
		return strings.Join(texts, "\n")
	}
	return string(b)
}
