package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/crystaldolphin/chatrelay/internal/bus"
	"github.com/crystaldolphin/chatrelay/internal/config"
	"github.com/crystaldolphin/chatrelay/internal/schema"
)

// bridgeMessage is one frame exchanged with the WhatsApp bridge.
type bridgeMessage struct {
	Type      string       `json:"type"`
	ID        string       `json:"id,omitempty"`
	Sender    string       `json:"sender,omitempty"`
	PN        string       `json:"pn,omitempty"`
	PushName  string       `json:"pushName,omitempty"`
	Content   string       `json:"content,omitempty"`
	Timestamp int64        `json:"timestamp,omitempty"`
	IsGroup   bool         `json:"isGroup,omitempty"`
	Media     *bridgeMedia `json:"media,omitempty"`
	Status    string       `json:"status,omitempty"`
	Error     string       `json:"error,omitempty"`

	// Outbound fields.
	Token string `json:"token,omitempty"`
	To    string `json:"to,omitempty"`
	Text  string `json:"text,omitempty"`
	Emoji string `json:"emoji,omitempty"`
}

// bridgeMedia carries a base64 attachment.
type bridgeMedia struct {
	Data     string `json:"data"`
	MimeType string `json:"mimetype"`
	Filename string `json:"filename,omitempty"`
}

// WhatsAppChannel connects to a WhatsApp bridge over WebSocket.
type WhatsAppChannel struct {
	Base
	cfg *config.WhatsAppConfig

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWhatsAppChannel(cfg *config.WhatsAppConfig, b bus.Bus) *WhatsAppChannel {
	return &WhatsAppChannel{
		Base: NewBase(bus.ChannelWhatsApp, b, cfg.AllowFrom),
		cfg:  cfg,
	}
}

func (w *WhatsAppChannel) Name() string { return string(bus.ChannelWhatsApp) }

func (w *WhatsAppChannel) Start(ctx context.Context) error {
	bridgeURL := w.cfg.BridgeURL
	if bridgeURL == "" {
		bridgeURL = "ws://localhost:3001"
	}
	slog.Info("whatsapp: connecting to bridge", "url", bridgeURL)

	for {
		if err := w.connectOnce(ctx, bridgeURL); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("whatsapp: connection lost, reconnecting in 5s", "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
}

func (w *WhatsAppChannel) connectOnce(ctx context.Context, url string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	w.setConn(conn)
	defer func() {
		w.setConn(nil)
		conn.Close()
	}()

	// Unblock ReadMessage on shutdown.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	slog.Info("whatsapp: connected to bridge")

	if w.cfg.BridgeToken != "" {
		if err := w.write(bridgeMessage{Type: "auth", Token: w.cfg.BridgeToken}); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		w.handleBridgeMessage(raw)
	}
}

func (w *WhatsAppChannel) setConn(conn *websocket.Conn) {
	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()
}

func (w *WhatsAppChannel) handleBridgeMessage(raw []byte) {
	var data bridgeMessage
	if err := json.Unmarshal(raw, &data); err != nil {
		slog.Debug("whatsapp: invalid bridge frame", "err", err)
		return
	}
	switch data.Type {
	case "message":
		w.handleChatMessage(data)
	case "status":
		slog.Info("whatsapp: status", "status", data.Status)
	case "qr":
		slog.Info("whatsapp: scan QR code in the bridge terminal")
	case "error":
		slog.Error("whatsapp: bridge error", "error", data.Error)
	}
}

func (w *WhatsAppChannel) handleChatMessage(data bridgeMessage) {
	userID := data.PN
	if userID == "" {
		userID = data.Sender
	}
	senderID, _, _ := strings.Cut(userID, "@")

	chatID := data.Sender
	if chatID == "" {
		chatID = userID
	}

	var items []schema.ContentItem
	if text := strings.TrimSpace(data.Content); text != "" && text != "[Voice Message]" {
		items = append(items, textItem(text))
	}
	if m := data.Media; m != nil && m.Data != "" {
		kind := schema.KindFile
		if strings.HasPrefix(m.MimeType, "image/") {
			kind = schema.KindImage
		}
		items = append(items, schema.ContentItem{Kind: kind, Value: m.Data, MimeType: m.MimeType, Filename: m.Filename})
	}

	msg := bus.NewInboundMessage(bus.ChannelWhatsApp, senderID, chatID, items...)
	msg.SetMsgID(data.ID)
	msg.SetSenderName(data.PushName)
	msg.SetMetadata(map[string]any{"is_group": data.IsGroup})
	w.HandleMessage(msg)
}

func (w *WhatsAppChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	if emoji := msg.MetaString(bus.MetaEmojiReact); emoji != "" {
		if id := msg.MetaString(bus.MetaReplyTo); id != "" {
			if err := w.write(bridgeMessage{Type: "react", To: msg.ChatID(), ID: id, Emoji: emoji}); err != nil {
				slog.Warn("whatsapp: reaction failed", "err", err)
			}
		}
	}
	if msg.Content() == "" {
		return nil
	}
	return w.write(bridgeMessage{Type: "send", To: msg.ChatID(), Text: msg.Content()})
}

func (w *WhatsAppChannel) write(m bridgeMessage) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return fmt.Errorf("whatsapp: bridge not connected")
	}
	return w.conn.WriteMessage(websocket.TextMessage, payload)
}
