package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/crystaldolphin/chatrelay/internal/providers"
	"github.com/crystaldolphin/chatrelay/internal/schema"
	"github.com/crystaldolphin/chatrelay/internal/shared/llmutils"
)

const (
	DefaultMaxCycles = 5
	DefaultCacheTTL  = 30 * time.Minute
)

// ErrOrchestrationExhausted is returned when the model keeps requesting tools
// after the cycle budget is spent.
var ErrOrchestrationExhausted = errors.New("tool-call cycles exhausted")

// ChatProvider is what the orchestrator needs from a provider: its adapter
// and a single round-trip.
type ChatProvider interface {
	providers.Adapter
	Chat(ctx context.Context, req schema.ChatRequest) (schema.ChatResponse, error)
}

// Request is one orchestrated turn for a chat.
type Request struct {
	ChatID   string
	System   string
	Messages []schema.Message
	Tools    []schema.ToolDeclaration
}

// Orchestrator drives the send / dispatch loop for one chat turn and keeps
// the chat's wire conversation in the cache.
type Orchestrator struct {
	provider   ChatProvider
	cache      schema.ConversationCache
	dispatcher schema.Dispatcher
	maxCycles  int
	ttl        time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxCycles sets the tool-call cycle budget.
func WithMaxCycles(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxCycles = n
		}
	}
}

// WithTTL sets how long a conversation stays cached after its last turn.
func WithTTL(ttl time.Duration) Option {
	return func(o *Orchestrator) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

func NewOrchestrator(provider ChatProvider, cache schema.ConversationCache, dispatcher schema.Dispatcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider:   provider,
		cache:      cache,
		dispatcher: dispatcher,
		maxCycles:  DefaultMaxCycles,
		ttl:        DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) MaxCycles() int { return o.maxCycles }

// Run sends the new messages for req.ChatID, resolves tool calls until the
// model answers in text, and returns the raw reply. The conversation is only
// written back to the cache when a reply was produced.
func (o *Orchestrator) Run(ctx context.Context, req Request) (string, error) {
	conversation, _, err := o.cache.Get(ctx, req.ChatID)
	if err != nil {
		return "", fmt.Errorf("load conversation %s: %w", req.ChatID, err)
	}
	conversation = append(conversation, o.provider.Convert(req.Messages)...)

	var tools []any
	if len(req.Tools) > 0 {
		tools = o.provider.ToolDefinitions(req.Tools)
	}

	log := slog.With("chat", req.ChatID, "adapter", o.provider.Kind())

	for cycle := 1; ; cycle++ {
		resp, err := o.provider.Chat(ctx, schema.ChatRequest{
			System:   req.System,
			Messages: conversation,
			Tools:    tools,
		})
		if err != nil {
			return "", fmt.Errorf("cycle %d: %w", cycle, err)
		}

		if !resp.HasToolCalls() {
			conversation = append(conversation, o.provider.ReplyEntry(resp.Content))
			if err := o.cache.Set(ctx, req.ChatID, conversation, o.ttl); err != nil {
				return "", fmt.Errorf("store conversation %s: %w", req.ChatID, err)
			}
			log.Debug("turn done", "cycles", cycle-1, "entries", len(conversation))
			return resp.Content, nil
		}

		log.Info("tool calls", "cycle", cycle, "hint", llmutils.ToolHint(resp.ToolCalls))
		results := o.dispatch(ctx, resp.ToolCalls)
		conversation = append(conversation, o.provider.ToolTurn(resp.Content, results)...)

		if cycle >= o.maxCycles {
			log.Warn("tool-call budget spent", "cycles", cycle)
			return "", fmt.Errorf("%w after %d cycles", ErrOrchestrationExhausted, cycle)
		}
	}
}

// dispatch executes calls in order. Failures are fed back to the model as
// error results instead of aborting the turn.
func (o *Orchestrator) dispatch(ctx context.Context, calls []schema.ToolCall) []schema.ToolResult {
	results := make([]schema.ToolResult, 0, len(calls))
	for _, call := range calls {
		if call.ID == "" {
			call.ID = "call_" + uuid.NewString()
		}

		res, err := o.dispatcher.Execute(ctx, call.Name, call.Arguments)
		if err != nil {
			res = schema.DispatchResult{Success: false, Error: err.Error()}
		}
		results = append(results, schema.ToolResult{Call: call, Content: encodeResult(res)})
	}
	return results
}

func encodeResult(res schema.DispatchResult) string {
	b, err := json.Marshal(res)
	if err != nil {
		b, _ = json.Marshal(schema.DispatchResult{Success: false, Error: err.Error()})
	}
	return string(b)
}
