package channels

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/crystaldolphin/chatrelay/internal/bus"
	"github.com/crystaldolphin/chatrelay/internal/config"
	"github.com/crystaldolphin/chatrelay/internal/schema"
)

const telegramMaxMessage = 4000

// TelegramChannel implements the Telegram bot via long polling.
// Photos and documents are downloaded and forwarded as image and file items.
type TelegramChannel struct {
	Base
	cfg        *config.TelegramConfig
	bot        *tgbotapi.BotAPI
	httpClient *http.Client
}

// NewTelegramChannel creates a TelegramChannel.
func NewTelegramChannel(cfg *config.TelegramConfig, b bus.Bus) *TelegramChannel {
	return &TelegramChannel{
		Base:       NewBase(bus.ChannelTelegram, b, cfg.AllowFrom),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (t *TelegramChannel) Name() string { return string(bus.ChannelTelegram) }

func (t *TelegramChannel) Start(ctx context.Context) error {
	if t.cfg.Token == "" {
		return fmt.Errorf("telegram: bot token not configured")
	}
	bot, err := tgbotapi.NewBotAPI(t.cfg.Token)
	if err != nil {
		return fmt.Errorf("telegram: create bot: %w", err)
	}
	t.bot = bot
	slog.Info("telegram: connected", "username", bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go t.handleUpdate(ctx, update)
		case <-ctx.Done():
			bot.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

func (t *TelegramChannel) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	senderID := strconv.FormatInt(msg.From.ID, 10)
	if msg.From.UserName != "" {
		senderID = senderID + "|" + msg.From.UserName
	}
	chatID := strconv.FormatInt(msg.Chat.ID, 10)

	var items []schema.ContentItem
	if text := strings.TrimSpace(msg.Text + msg.Caption); text != "" {
		items = append(items, textItem(text))
	}
	if len(msg.Photo) > 0 {
		photo := msg.Photo[len(msg.Photo)-1]
		if item, err := t.download(ctx, photo.FileID, "image/jpeg", ""); err == nil {
			items = append(items, item)
		} else {
			slog.Warn("telegram: photo download failed", "err", err)
		}
	}
	if doc := msg.Document; doc != nil {
		if item, err := t.download(ctx, doc.FileID, doc.MimeType, doc.FileName); err == nil {
			items = append(items, item)
		} else {
			slog.Warn("telegram: document download failed", "file", doc.FileName, "err", err)
		}
	}

	typingCtx, cancelTyping := context.WithCancel(ctx)
	defer cancelTyping()
	go t.sendTypingLoop(typingCtx, msg.Chat.ID)

	in := bus.NewInboundMessage(bus.ChannelTelegram, senderID, chatID, items...)
	in.SetMsgID(strconv.Itoa(msg.MessageID))
	in.SetSenderName(strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName))
	in.SetMetadata(map[string]any{
		"username": msg.From.UserName,
		"is_group": msg.Chat.Type != "private",
	})
	t.HandleMessage(in)
}

// download fetches a Telegram file into memory as a content item.
func (t *TelegramChannel) download(ctx context.Context, fileID, mimeType, filename string) (schema.ContentItem, error) {
	if t.bot == nil {
		return schema.ContentItem{}, fmt.Errorf("bot not running")
	}
	url, err := t.bot.GetFileDirectURL(fileID)
	if err != nil {
		return schema.ContentItem{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return schema.ContentItem{}, err
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return schema.ContentItem{}, err
	}
	defer resp.Body.Close()

	limit := int64(t.cfg.MaxMediaBytes)
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return schema.ContentItem{}, err
	}
	if int64(len(data)) > limit {
		return schema.ContentItem{}, fmt.Errorf("file larger than %d bytes", limit)
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return mediaItem(data, mimeType, filename), nil
}

func (t *TelegramChannel) sendTypingLoop(ctx context.Context, chatID int64) {
	for {
		if t.bot != nil {
			action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
			_, _ = t.bot.Request(action)
		}
		select {
		case <-time.After(4 * time.Second):
		case <-ctx.Done():
			return
		}
	}
}

func (t *TelegramChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	if t.bot == nil {
		return fmt.Errorf("telegram: bot not running")
	}
	chatID, err := strconv.ParseInt(msg.ChatID(), 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat_id %q: %w", msg.ChatID(), err)
	}
	replyTo, _ := strconv.Atoi(msg.MetaString(bus.MetaReplyTo))

	if emoji := msg.MetaString(bus.MetaEmojiReact); emoji != "" && replyTo != 0 {
		if err := t.react(chatID, replyTo, emoji); err != nil {
			slog.Warn("telegram: reaction failed", "emoji", emoji, "err", err)
		}
	}

	if msg.Content() == "" {
		return nil
	}
	if !t.cfg.ReplyToMessage {
		replyTo = 0
	}

	for _, chunk := range splitMessage(msg.Content(), telegramMaxMessage) {
		m := tgbotapi.NewMessage(chatID, markdownToTelegramHTML(chunk))
		m.ParseMode = tgbotapi.ModeHTML
		m.ReplyToMessageID = replyTo
		if _, err := t.bot.Send(m); err != nil {
			// Fallback to plain text.
			plain := tgbotapi.NewMessage(chatID, chunk)
			plain.ReplyToMessageID = replyTo
			if _, err := t.bot.Send(plain); err != nil {
				return fmt.Errorf("telegram: send: %w", err)
			}
		}
	}
	return nil
}

// react sets an emoji reaction on a message. The bot library predates
// reactions, so the call goes through the raw request API.
func (t *TelegramChannel) react(chatID int64, messageID int, emoji string) error {
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", chatID)
	params.AddNonZero("message_id", messageID)
	if err := params.AddInterface("reaction", []map[string]string{{"type": "emoji", "emoji": emoji}}); err != nil {
		return err
	}
	_, err := t.bot.MakeRequest("setMessageReaction", params)
	return err
}

// ---------------------------------------------------------------------------
// Markdown → Telegram HTML converter
// ---------------------------------------------------------------------------

var (
	reTGCodeBlock  = regexp.MustCompile("(?s)```[\\w]*\\n?([\\s\\S]*?)```")
	reTGInlineCode = regexp.MustCompile("`([^`]+)`")
	reTGHeader     = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	reTGLink       = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	reTGBold       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reTGStrike     = regexp.MustCompile(`~~(.+?)~~`)
	reTGBullet     = regexp.MustCompile(`(?m)^[-*]\s+`)
)

func markdownToTelegramHTML(text string) string {
	if text == "" {
		return ""
	}

	var codeBlocks []string
	text = reTGCodeBlock.ReplaceAllStringFunc(text, func(m string) string {
		codeBlocks = append(codeBlocks, reTGCodeBlock.FindStringSubmatch(m)[1])
		return fmt.Sprintf("\x00CB%d\x00", len(codeBlocks)-1)
	})

	var inlineCodes []string
	text = reTGInlineCode.ReplaceAllStringFunc(text, func(m string) string {
		inlineCodes = append(inlineCodes, reTGInlineCode.FindStringSubmatch(m)[1])
		return fmt.Sprintf("\x00IC%d\x00", len(inlineCodes)-1)
	})

	text = reTGHeader.ReplaceAllString(text, "$1")
	text = htmlEscape(text)
	text = reTGLink.ReplaceAllString(text, `<a href="$2">$1</a>`)
	text = reTGBold.ReplaceAllString(text, "<b>$1</b>")
	text = reTGStrike.ReplaceAllString(text, "<s>$1</s>")
	text = reTGBullet.ReplaceAllString(text, "• ")

	for i, code := range inlineCodes {
		text = strings.ReplaceAll(text, fmt.Sprintf("\x00IC%d\x00", i), "<code>"+htmlEscape(code)+"</code>")
	}
	for i, code := range codeBlocks {
		text = strings.ReplaceAll(text, fmt.Sprintf("\x00CB%d\x00", i), "<pre><code>"+htmlEscape(code)+"</code></pre>")
	}
	return text
}

func htmlEscape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
