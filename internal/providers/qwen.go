package providers

import (
	"github.com/crystaldolphin/chatrelay/internal/envelope"
	"github.com/crystaldolphin/chatrelay/internal/schema"
)

// QwenAdapter emits block arrays of text and image_url parts.
//
// An image is followed by its raw envelope object only when the message
// already carries text; attachment-only messages get no carrier at all. This
// is the reverse of the other adapters and is kept as observed upstream
// behaviour until the provider's expectations are confirmed.
type QwenAdapter struct{ chatFormat }

func (QwenAdapter) Kind() Kind { return KindQwen }

func (QwenAdapter) Convert(msgs []schema.Message) []schema.WireMessage {
	out := make([]schema.WireMessage, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Role == schema.RoleSystem {
			continue
		}
		hasText := msg.HasTextLike()

		blocks := make([]any, 0, len(msg.Content))
		for _, item := range msg.Content {
			switch {
			case item.IsTextLike():
				blocks = append(blocks, textBlock(envelope.Build(msg, item).String()))
			case item.Kind == schema.KindImage:
				blocks = append(blocks, map[string]any{
					"type":      "image_url",
					"image_url": map[string]any{"url": dataURI(item)},
				})
				if hasText {
					blocks = append(blocks, envelope.Build(msg, item).Map())
				}
			case item.Kind == schema.KindFile:
				blocks = append(blocks, textBlock(envelope.Unsupported(msg, item).String()))
			default:
				skipUnknown(KindQwen, item)
			}
		}
		out = append(out, schema.WireMessage{
			"role":    string(msg.Role),
			"content": blocks,
		})
	}
	return out
}
