package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/crystaldolphin/chatrelay/internal/bus"
	"github.com/crystaldolphin/chatrelay/internal/cache"
	"github.com/crystaldolphin/chatrelay/internal/reply"
	"github.com/crystaldolphin/chatrelay/internal/schema"
	"github.com/crystaldolphin/chatrelay/internal/shared/llmutils"
	"github.com/crystaldolphin/chatrelay/internal/tools"
)

const (
	apologyText = "Sorry, something went wrong while answering. Let's start over."
	helpText    = "chatrelay commands:\n/new - Start a new conversation\n/help - Show available commands"
	newText     = "New conversation started."
)

// Settings are the relay's per-deployment knobs.
type Settings struct {
	SystemPrompt string
	BotName      string
}

// Relay is the core processing engine.
//
// It reads InboundMessages from the bus, runs slash commands or the tool-call
// orchestrator for the message's chat, decodes the model's reply and
// publishes it as an OutboundMessage. Each inbound message is handled in its
// own goroutine; messages for the same chat are serialized by the lock
// registry.
type Relay struct {
	bus          bus.Bus
	orchestrator *Orchestrator
	cache        schema.ConversationCache
	locks        *cache.Locks
	dispatcher   schema.Dispatcher
	settings     Settings
}

func NewRelay(
	b bus.Bus,
	orchestrator *Orchestrator,
	conversations schema.ConversationCache,
	locks *cache.Locks,
	dispatcher schema.Dispatcher,
	settings Settings,
) *Relay {
	return &Relay{
		bus:          b,
		orchestrator: orchestrator,
		cache:        conversations,
		locks:        locks,
		dispatcher:   dispatcher,
		settings:     settings,
	}
}

// Run reads from the inbound bus and processes each message in a goroutine.
// Blocks until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	slog.Info("Relay started", "bot", r.settings.BotName)

	for {
		select {
		case msg := <-r.bus.Inbound():
			go r.handleMessage(ctx, msg)
		case <-ctx.Done():
			slog.Info("Relay stopping")
			return ctx.Err()
		}
	}
}

func (r *Relay) handleMessage(ctx context.Context, msg bus.InboundMessage) {
	out, err := r.Process(ctx, msg)
	if err != nil {
		out = r.reply(msg, apologyText)
	}
	switch {
	case out != nil:
		r.bus.PublishOutbound(*out)
	case msg.Channel() == bus.ChannelCLI:
		// Signal the CLI that the turn is over even when there is no reply.
		r.bus.PublishOutbound(*r.reply(msg, ""))
	}
}

// Process handles one inbound message outside the bus loop and returns the
// reply to send, or nil when the model chose not to answer. On a fatal error
// the chat's cached conversation is dropped so the next message starts clean.
func (r *Relay) Process(ctx context.Context, msg bus.InboundMessage) (*bus.OutboundMessage, error) {
	key := msg.SessionKey()

	slog.Info(
		"Processing message",
		"sender", msg.SenderID(),
		"channel", msg.Channel(),
		"chat", key,
		"content", llmutils.Truncate(msg.Content(), 80),
	)

	if r.locks.Busy(key) {
		slog.Debug("Chat busy, waiting for the running turn", "chat", key)
	}
	release := r.locks.Acquire(key)
	defer release()

	if out, err := r.handleSlashCommand(ctx, msg, key); out != nil || err != nil {
		return out, err
	}

	ctx = tools.WithTurnContext(ctx, tools.TurnContext{
		Channel: string(msg.Channel()),
		ChatID:  msg.ChatID(),
		MsgID:   msg.MsgID(),
	})

	raw, err := r.orchestrator.Run(ctx, Request{
		ChatID:   key,
		System:   r.settings.SystemPrompt,
		Messages: []schema.Message{msg.Canonical()},
		Tools:    r.dispatcher.Declarations(),
	})
	if err != nil {
		slog.Error("Turn failed, resetting conversation", "chat", key, "err", err)
		if derr := r.cache.Delete(context.WithoutCancel(ctx), key); derr != nil {
			slog.Warn("Failed to reset conversation", "chat", key, "err", derr)
		}
		return nil, fmt.Errorf("process %s: %w", key, err)
	}

	answer := reply.ExtractAnswer(raw, r.settings.BotName)
	if answer == nil || (answer.Message == nil && answer.EmojiReact == "") {
		slog.Info("No reply", "chat", key)
		return nil, nil
	}

	slog.Info("Response", "channel", msg.Channel(), "sender", msg.SenderID(), "length", len(answer.Text()), "react", answer.EmojiReact)

	out := r.reply(msg, answer.Text())
	if answer.EmojiReact != "" {
		out.Set(bus.MetaEmojiReact, answer.EmojiReact)
	}
	return out, nil
}

// handleSlashCommand returns a non-nil reply when msg was a known command.
func (r *Relay) handleSlashCommand(ctx context.Context, msg bus.InboundMessage, key string) (*bus.OutboundMessage, error) {
	switch strings.ToLower(strings.TrimSpace(msg.Content())) {
	case "/new":
		if err := r.cache.Delete(ctx, key); err != nil {
			return nil, fmt.Errorf("reset %s: %w", key, err)
		}
		return r.reply(msg, newText), nil
	case "/help":
		return r.reply(msg, helpText), nil
	}
	return nil, nil
}

func (r *Relay) reply(msg bus.InboundMessage, content string) *bus.OutboundMessage {
	out := bus.NewOutboundMessage(msg.Channel(), msg.ChatID(), content)
	for k, v := range msg.Metadata() {
		out.Set(k, v)
	}
	if id := msg.MsgID(); id != "" {
		out.Set(bus.MetaReplyTo, id)
	}
	return &out
}
