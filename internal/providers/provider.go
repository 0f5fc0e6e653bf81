// Package providers converts canonical conversations into each LLM provider's
// wire format and carries them over the provider's transport.
package providers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crystaldolphin/chatrelay/internal/schema"
)

const (
	defaultMaxTokens  = 4096
	defaultRetryDelay = 2 * time.Second
)

// Provider pairs an Adapter with the Transport that speaks its wire format.
type Provider struct {
	Adapter
	name        string
	transport   Transport
	model       string
	maxTokens   int
	temperature float64
	retryDelay  time.Duration
}

// NewProvider assembles a provider from its parts.
func NewProvider(name string, adapter Adapter, transport Transport, model string, maxTokens int, temperature float64) *Provider {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Provider{
		Adapter:     adapter,
		name:        name,
		transport:   transport,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		retryDelay:  defaultRetryDelay,
	}
}

func (p *Provider) Name() string  { return p.name }
func (p *Provider) Model() string { return p.model }

// Chat performs one round-trip, filling in the configured model and sampling
// defaults when req leaves them empty.
func (p *Provider) Chat(ctx context.Context, req schema.ChatRequest) (schema.ChatResponse, error) {
	if req.Model == "" {
		req.Model = p.model
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = p.maxTokens
	}
	if req.Temperature == 0 {
		req.Temperature = p.temperature
	}

	start := time.Now()
	resp, err := p.transport.Chat(ctx, req)
	if err != nil {
		return schema.ChatResponse{}, err
	}
	slog.Debug("provider call",
		"provider", p.name,
		"kind", p.Kind(),
		"model", req.Model,
		"tool_calls", len(resp.ToolCalls),
		"finish", resp.FinishReason,
		"input_tokens", resp.Usage["input_tokens"],
		"output_tokens", resp.Usage["output_tokens"],
		"took", time.Since(start),
	)
	return resp, nil
}

// Complete runs a single-turn completion without tools and returns the raw
// text. A failed call is retried once after a fixed delay.
func (p *Provider) Complete(ctx context.Context, system string, msgs []schema.Message) (string, error) {
	req := schema.ChatRequest{
		System:   system,
		Messages: p.Convert(msgs),
	}

	resp, err := p.Chat(ctx, req)
	if err == nil {
		return resp.Content, nil
	}
	slog.Warn("completion failed, retrying once", "provider", p.name, "delay", p.retryDelay, "err", err)

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("complete: %w", ctx.Err())
	case <-time.After(p.retryDelay):
	}

	resp, err = p.Chat(ctx, req)
	if err != nil {
		return "", fmt.Errorf("complete after retry: %w", err)
	}
	return resp.Content, nil
}
