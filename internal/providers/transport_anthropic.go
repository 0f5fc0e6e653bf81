package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
	"golang.org/x/time/rate"

	"github.com/crystaldolphin/chatrelay/internal/schema"
)

// AnthropicTransport sends already-converted wire messages through the
// Anthropic SDK. The messages and tools are injected as raw JSON so the
// adapter stays the single owner of the wire shape.
type AnthropicTransport struct {
	client  *anthropic.Client
	limiter *rate.Limiter
	spec    *ProviderSpec
}

func NewAnthropicTransport(apiKey, apiBase string, extraHeaders map[string]string, rps float64, spec *ProviderSpec) *AnthropicTransport {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if apiBase != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSpace(apiBase)))
	}
	for k, v := range extraHeaders {
		opts = append(opts, option.WithHeader(k, v))
	}
	c := anthropic.NewClient(opts...)
	return &AnthropicTransport{client: &c, limiter: newLimiter(rps), spec: spec}
}

func (t *AnthropicTransport) Chat(ctx context.Context, req schema.ChatRequest) (schema.ChatResponse, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return schema.ChatResponse{}, fmt.Errorf("%w: rate limiter: %w", ErrTransport, err)
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(t.spec.ResolveModel(req.Model)),
		MaxTokens:   int64(req.MaxTokens),
		Temperature: param.NewOpt(req.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	reqOpts := []option.RequestOption{option.WithJSONSet("messages", req.Messages)}
	if len(req.Tools) > 0 {
		reqOpts = append(reqOpts, option.WithJSONSet("tools", req.Tools))
	}

	resp, err := t.client.Messages.New(ctx, params, reqOpts...)
	if err != nil {
		return schema.ChatResponse{}, fmt.Errorf("%w: anthropic: %w", ErrTransport, err)
	}

	var (
		text      strings.Builder
		toolCalls []schema.ToolCall
	)
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			toolUse := block.AsToolUse()
			args := map[string]any{}
			if len(toolUse.Input) > 0 {
				if err := json.Unmarshal(toolUse.Input, &args); err != nil {
					slog.Warn("failed to parse tool input", "tool", toolUse.Name, "err", err)
				}
			}
			toolCalls = append(toolCalls, schema.ToolCall{
				ID:        toolUse.ID,
				Name:      toolUse.Name,
				Arguments: args,
			})
		}
	}

	finish := "stop"
	switch stop := string(resp.StopReason); stop {
	case "tool_use":
		finish = "tool_calls"
	case "", "end_turn":
	default:
		finish = stop
	}

	return schema.ChatResponse{
		Content:      strings.TrimSpace(text.String()),
		ToolCalls:    toolCalls,
		FinishReason: finish,
		Usage: map[string]int{
			"input_tokens":  int(resp.Usage.InputTokens),
			"output_tokens": int(resp.Usage.OutputTokens),
		},
	}, nil
}
