// Package channels provides chat-platform channel implementations.
package channels

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"

	"github.com/crystaldolphin/chatrelay/internal/bus"
	"github.com/crystaldolphin/chatrelay/internal/schema"
)

// Channel is a chat transport: it feeds inbound messages to the bus and
// delivers outbound replies.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

// Base holds common state and helper methods shared by all channels.
type Base struct {
	channelName bus.ChannelType
	b           bus.Bus
	allowFrom   []string // empty = allow all
}

// NewBase creates a Base with the given channel name, bus, and allowlist.
func NewBase(name bus.ChannelType, b bus.Bus, allowFrom []string) Base {
	return Base{channelName: name, b: b, allowFrom: allowFrom}
}

// IsAllowed checks whether senderID is on the allowlist.
// senderID may be "id|username" (Telegram) or a plain string.
func (b *Base) IsAllowed(senderID string) bool {
	if len(b.allowFrom) == 0 {
		return true
	}
	for _, part := range strings.Split(senderID, "|") {
		if part == "" {
			continue
		}
		for _, allowed := range b.allowFrom {
			if allowed == part {
				return true
			}
		}
	}
	return false
}

// HandleMessage verifies the sender is allowed, then pushes msg to the bus.
// Messages without any content item are dropped.
func (b *Base) HandleMessage(msg bus.InboundMessage) {
	if !b.IsAllowed(msg.SenderID()) {
		slog.Warn("access denied", "channel", b.channelName, "sender", msg.SenderID())
		return
	}
	if len(msg.Items()) == 0 {
		slog.Debug("dropping empty message", "channel", b.channelName, "chat", msg.ChatID())
		return
	}
	b.b.PublishInbound(msg)
}

func textItem(text string) schema.ContentItem {
	return schema.ContentItem{Kind: schema.KindText, Value: text}
}

// mediaItem turns a downloaded attachment into an image or file item.
func mediaItem(data []byte, mimeType, filename string) schema.ContentItem {
	kind := schema.KindFile
	if strings.HasPrefix(mimeType, "image/") {
		kind = schema.KindImage
	}
	return schema.ContentItem{
		Kind:     kind,
		Value:    base64.StdEncoding.EncodeToString(data),
		MimeType: mimeType,
		Filename: filename,
	}
}

// splitMessage splits content into chunks that fit within maxLen,
// preferring newline breaks, then space breaks, then hard cut.
func splitMessage(content string, maxLen int) []string {
	if len(content) <= maxLen {
		return []string{content}
	}
	var chunks []string
	for len(content) > 0 {
		if len(content) <= maxLen {
			chunks = append(chunks, content)
			break
		}
		cut := content[:maxLen]
		pos := strings.LastIndex(cut, "\n")
		if pos <= 0 {
			pos = strings.LastIndex(cut, " ")
		}
		if pos <= 0 {
			pos = maxLen
		}
		chunks = append(chunks, content[:pos])
		content = strings.TrimLeft(content[pos:], " \t\n")
	}
	return chunks
}
