package channels

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	slackgo "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/crystaldolphin/chatrelay/internal/bus"
	"github.com/crystaldolphin/chatrelay/internal/config"
	"github.com/crystaldolphin/chatrelay/internal/schema"
)

const slackMaxFileBytes = 10 << 20

// SlackChannel implements Slack via Socket Mode.
type SlackChannel struct {
	Base
	cfg       *config.SlackConfig
	webClient *slackgo.Client
	smClient  *socketmode.Client
	botUserID string
}

func NewSlackChannel(cfg *config.SlackConfig, b bus.Bus) *SlackChannel {
	return &SlackChannel{
		Base: NewBase(bus.ChannelSlack, b, cfg.AllowFrom),
		cfg:  cfg,
	}
}

func (s *SlackChannel) Name() string { return string(bus.ChannelSlack) }

func (s *SlackChannel) Start(ctx context.Context) error {
	if s.cfg.BotToken == "" || s.cfg.AppToken == "" {
		return fmt.Errorf("slack: bot/app token not configured")
	}

	s.webClient = slackgo.New(s.cfg.BotToken, slackgo.OptionAppLevelToken(s.cfg.AppToken))

	if resp, err := s.webClient.AuthTestContext(ctx); err == nil {
		s.botUserID = resp.UserID
		slog.Info("slack: connected", "bot_user_id", s.botUserID)
	}

	s.smClient = socketmode.New(s.webClient)
	go s.smClient.RunContext(ctx) //nolint:errcheck

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-s.smClient.Events:
			if !ok {
				return nil
			}
			s.handleEvent(ctx, evt)
		}
	}
}

func (s *SlackChannel) handleEvent(ctx context.Context, evt socketmode.Event) {
	if evt.Type != socketmode.EventTypeEventsAPI {
		return
	}
	s.smClient.Ack(*evt.Request)
	cb, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}
	if cb.InnerEvent.Type != "message" && cb.InnerEvent.Type != "app_mention" {
		return
	}
	go s.handleInnerEvent(ctx, cb.InnerEvent)
}

func (s *SlackChannel) handleInnerEvent(ctx context.Context, ev slackevents.EventsAPIInnerEvent) {
	data, ok := ev.Data.(map[string]any)
	if !ok {
		return
	}
	userID, _ := data["user"].(string)
	channel, _ := data["channel"].(string)
	text, _ := data["text"].(string)
	subtype, _ := data["subtype"].(string)
	channelType, _ := data["channel_type"].(string)
	ts, _ := data["ts"].(string)
	threadTS, _ := data["thread_ts"].(string)

	if (subtype != "" && subtype != "file_share") || userID == "" || channel == "" {
		return
	}
	if userID == s.botUserID {
		return
	}
	// Mentions arrive as both message and app_mention events.
	if ev.Type == "message" && s.botUserID != "" && strings.Contains(text, "<@"+s.botUserID+">") {
		return
	}
	if channelType != "im" && !s.shouldRespond(ev.Type, text, channel) {
		return
	}

	var items []schema.ContentItem
	if text = s.stripMention(text); text != "" {
		items = append(items, textItem(text))
	}
	items = append(items, s.downloadFiles(ctx, data["files"])...)

	if s.cfg.ReplyInThread && threadTS == "" {
		threadTS = ts
	}

	msg := bus.NewInboundMessage(bus.ChannelSlack, userID, channel, items...)
	msg.SetMsgID(ts)
	msg.SetSenderName(s.userName(ctx, userID))
	msg.SetMetadata(map[string]any{
		bus.MetaThreadTS: threadTS,
		"channelType":    channelType,
	})
	s.HandleMessage(msg)
}

func (s *SlackChannel) downloadFiles(ctx context.Context, raw any) []schema.ContentItem {
	files, _ := raw.([]any)
	var items []schema.ContentItem
	for _, f := range files {
		file, _ := f.(map[string]any)
		url, _ := file["url_private_download"].(string)
		mimeType, _ := file["mimetype"].(string)
		name, _ := file["name"].(string)
		size, _ := file["size"].(float64)
		if url == "" || size > slackMaxFileBytes {
			continue
		}
		var buf bytes.Buffer
		if err := s.webClient.GetFileContext(ctx, url, &buf); err != nil {
			slog.Warn("slack: file download failed", "file", name, "err", err)
			continue
		}
		items = append(items, mediaItem(buf.Bytes(), mimeType, name))
	}
	return items
}

func (s *SlackChannel) userName(ctx context.Context, userID string) string {
	u, err := s.webClient.GetUserInfoContext(ctx, userID)
	if err != nil {
		return ""
	}
	if u.Profile.DisplayName != "" {
		return u.Profile.DisplayName
	}
	return u.RealName
}

func (s *SlackChannel) shouldRespond(evType, text, channel string) bool {
	switch s.cfg.GroupPolicy {
	case "open":
		return true
	case "mention":
		if evType == "app_mention" {
			return true
		}
		return s.botUserID != "" && strings.Contains(text, "<@"+s.botUserID+">")
	case "allowlist":
		for _, a := range s.cfg.GroupAllowFrom {
			if a == channel {
				return true
			}
		}
		return false
	}
	return false
}

func (s *SlackChannel) stripMention(text string) string {
	if s.botUserID == "" {
		return strings.TrimSpace(text)
	}
	re := regexp.MustCompile(`<@` + regexp.QuoteMeta(s.botUserID) + `>\s*`)
	return strings.TrimSpace(re.ReplaceAllString(text, ""))
}

func (s *SlackChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if s.webClient == nil {
		return fmt.Errorf("slack: not connected")
	}

	if emoji := msg.MetaString(bus.MetaEmojiReact); emoji != "" {
		if ts := msg.MetaString(bus.MetaReplyTo); ts != "" {
			item := slackgo.ItemRef{Channel: msg.ChatID(), Timestamp: ts}
			if err := s.webClient.AddReactionContext(ctx, slackReactionName(emoji), item); err != nil {
				slog.Warn("slack: reaction failed", "emoji", emoji, "err", err)
			}
		}
	}

	if msg.Content() == "" {
		return nil
	}

	options := []slackgo.MsgOption{slackgo.MsgOptionText(msg.Content(), false)}
	if threadTS := msg.MetaString(bus.MetaThreadTS); threadTS != "" && msg.MetaString("channelType") != "im" {
		options = append(options, slackgo.MsgOptionTS(threadTS))
	}

	if _, _, err := s.webClient.PostMessageContext(ctx, msg.ChatID(), options...); err != nil {
		return fmt.Errorf("slack: post: %w", err)
	}
	return nil
}

var slackEmojiNames = map[string]string{
	"👍": "+1",
	"👎": "-1",
	"❤️": "heart",
	"❤": "heart",
	"😂": "joy",
	"😄": "smile",
	"😮": "open_mouth",
	"😢": "cry",
	"🎉": "tada",
	"🔥": "fire",
	"👀": "eyes",
	"🙏": "pray",
	"✅": "white_check_mark",
	"🤔": "thinking_face",
}

// slackReactionName maps a unicode emoji to Slack's reaction name. Names
// like ":tada:" are accepted as-is.
func slackReactionName(emoji string) string {
	if name, ok := slackEmojiNames[emoji]; ok {
		return name
	}
	return strings.Trim(emoji, ":")
}
