package bus

import (
	"context"
	"strings"
	"time"

	"github.com/crystaldolphin/chatrelay/internal/schema"
)

// ChannelType names the chat transport a message came from or goes to.
type ChannelType string

const (
	ChannelCLI      ChannelType = "cli"
	ChannelTelegram ChannelType = "telegram"
	ChannelSlack    ChannelType = "slack"
	ChannelWhatsApp ChannelType = "whatsapp"
)

// Metadata keys understood by the channels.
const (
	MetaEmojiReact = "emojiReact"
	MetaReplyTo    = "replyTo"
	MetaThreadTS   = "threadTs"
)

// InboundMessage is a message received from a chat channel.
type InboundMessage struct {
	channel    ChannelType
	senderID   string
	senderName string
	chatID     string
	msgID      string
	content    []schema.ContentItem
	timestamp  time.Time
	metadata   map[string]any
}

func NewInboundMessage(channel ChannelType, senderID, chatID string, content ...schema.ContentItem) InboundMessage {
	return InboundMessage{
		channel:   channel,
		senderID:  senderID,
		chatID:    chatID,
		content:   content,
		timestamp: time.Now(),
	}
}

func (m InboundMessage) Channel() ChannelType           { return m.channel }
func (m InboundMessage) SenderID() string               { return m.senderID }
func (m InboundMessage) SenderName() string             { return m.senderName }
func (m InboundMessage) ChatID() string                 { return m.chatID }
func (m InboundMessage) MsgID() string                  { return m.msgID }
func (m InboundMessage) Items() []schema.ContentItem    { return m.content }
func (m InboundMessage) Timestamp() time.Time           { return m.timestamp }
func (m InboundMessage) Metadata() map[string]any       { return m.metadata }
func (m *InboundMessage) SetSenderName(name string)     { m.senderName = name }
func (m *InboundMessage) SetMsgID(id string)            { m.msgID = id }
func (m *InboundMessage) SetMetadata(md map[string]any) { m.metadata = md }

// SessionKey identifies the conversation: channel plus chat.
func (m InboundMessage) SessionKey() string {
	return string(m.channel) + ":" + m.chatID
}

// Content joins the text-like items, which is what slash commands and logs
// look at.
func (m InboundMessage) Content() string {
	var parts []string
	for _, c := range m.content {
		if c.IsTextLike() {
			parts = append(parts, c.Value)
		}
	}
	return strings.Join(parts, "\n")
}

// Canonical converts the message into a user turn. Items inherit the
// message's id, sender and timestamp unless they carry their own.
func (m InboundMessage) Canonical() schema.Message {
	items := make([]schema.ContentItem, 0, len(m.content))
	date := m.timestamp.UTC().Format(time.RFC3339)
	for _, c := range m.content {
		if c.MsgID == "" {
			c.MsgID = m.msgID
		}
		if c.AuthorID == "" {
			c.AuthorID = m.senderID
		}
		if c.AuthorName == "" {
			c.AuthorName = m.senderName
		}
		if c.DateString == "" {
			c.DateString = date
		}
		items = append(items, c)
	}
	return schema.Message{Role: schema.RoleUser, Name: m.senderName, Content: items}
}

// OutboundMessage is a reply routed back to a chat channel.
type OutboundMessage struct {
	channel  ChannelType
	chatID   string
	content  string
	metadata map[string]any
}

func NewOutboundMessage(channel ChannelType, chatID, content string) OutboundMessage {
	return OutboundMessage{channel: channel, chatID: chatID, content: content}
}

func (m OutboundMessage) Channel() ChannelType           { return m.channel }
func (m OutboundMessage) ChatID() string                 { return m.chatID }
func (m OutboundMessage) Content() string                { return m.content }
func (m OutboundMessage) Metadata() map[string]any       { return m.metadata }
func (m *OutboundMessage) SetMetadata(md map[string]any) { m.metadata = md }

// Set stores one metadata value, allocating the map if needed.
func (m *OutboundMessage) Set(key string, v any) {
	if m.metadata == nil {
		m.metadata = make(map[string]any)
	}
	m.metadata[key] = v
}

// MetaString returns a string metadata value, or "".
func (m OutboundMessage) MetaString(key string) string {
	s, _ := m.metadata[key].(string)
	return s
}

// Bus carries messages between channels and the relay.
type Bus interface {
	PublishInbound(msg InboundMessage)
	PublishOutbound(msg OutboundMessage)
	Inbound() <-chan InboundMessage
	Outbound() <-chan OutboundMessage
}

// MessageBus decouples chat channels from the relay.
//
// Channels push InboundMessages; the relay consumes them, processes, and
// pushes OutboundMessages back for the channel manager to route.
// Both directions use buffered channels so senders rarely block on a slow consumer.
type MessageBus struct {
	inbound  chan InboundMessage  // channels → relay
	outbound chan OutboundMessage // relay → channels
}

func NewMessageBus(bufSize int) *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, bufSize),
		outbound: make(chan OutboundMessage, bufSize),
	}
}

func (b *MessageBus) PublishInbound(msg InboundMessage)   { b.inbound <- msg }
func (b *MessageBus) PublishOutbound(msg OutboundMessage) { b.outbound <- msg }
func (b *MessageBus) Inbound() <-chan InboundMessage      { return b.inbound }
func (b *MessageBus) Outbound() <-chan OutboundMessage    { return b.outbound }

// PublishInboundContext publishes msg unless ctx is cancelled first.
func (b *MessageBus) PublishInboundContext(ctx context.Context, msg InboundMessage) error {
	select {
	case b.inbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MessageBus) InboundSize() int { return len(b.inbound) }

func (b *MessageBus) OutboundSize() int { return len(b.outbound) }
