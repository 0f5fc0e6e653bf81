package providers

import (
	"strings"

	"github.com/crystaldolphin/chatrelay/internal/envelope"
	"github.com/crystaldolphin/chatrelay/internal/schema"
)

// CustomAdapter targets generic OpenAI-compatible endpoints (DeepInfra and
// friends) that only accept string content.
//
// User turns keep only the first serialized item; the rest are dropped.
// Whether later items should be joined instead is still open, so the
// upstream behaviour is kept.
type CustomAdapter struct{ chatFormat }

func (CustomAdapter) Kind() Kind { return KindCustom }

func (CustomAdapter) Convert(msgs []schema.Message) []schema.WireMessage {
	out := make([]schema.WireMessage, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Role == schema.RoleSystem {
			continue
		}

		parts := make([]string, 0, len(msg.Content))
		for _, item := range msg.Content {
			switch {
			case item.IsTextLike():
				parts = append(parts, envelope.Build(msg, item).String())
			case item.Kind == schema.KindImage, item.Kind == schema.KindFile:
				parts = append(parts, envelope.Unsupported(msg, item).String())
			default:
				skipUnknown(KindCustom, item)
			}
		}

		var content string
		switch {
		case msg.Role == schema.RoleAssistant:
			content = strings.Join(parts, "\n")
		case len(parts) > 0:
			content = parts[0]
		}
		out = append(out, schema.WireMessage{
			"role":    string(msg.Role),
			"content": content,
		})
	}
	return out
}
