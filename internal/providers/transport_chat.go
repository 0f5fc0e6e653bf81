package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/crystaldolphin/chatrelay/internal/schema"
)

// ChatCompletionsTransport makes direct HTTP calls to any OpenAI-compatible
// /chat/completions endpoint (DeepSeek, DashScope, DeepInfra, OpenRouter…).
type ChatCompletionsTransport struct {
	httpClient
	spec *ProviderSpec
}

func NewChatCompletionsTransport(
	apiKey, apiBase string,
	extraHeaders map[string]string,
	requestsPerSecond float64,
	spec *ProviderSpec,
) *ChatCompletionsTransport {
	return &ChatCompletionsTransport{
		httpClient: newHTTPClient(apiKey, apiBase, extraHeaders, requestsPerSecond),
		spec:       spec,
	}
}

func (t *ChatCompletionsTransport) Chat(ctx context.Context, req schema.ChatRequest) (schema.ChatResponse, error) {
	messages := make([]any, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, map[string]any{
			"role":    openai.ChatMessageRoleSystem,
			"content": req.System,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, m)
	}

	model := t.spec.ResolveModel(req.Model)
	body := map[string]any{
		"model":       model,
		"messages":    messages,
		"max_tokens":  req.MaxTokens,
		"temperature": req.Temperature,
	}
	if len(req.Tools) > 0 {
		body["tools"] = req.Tools
		body["tool_choice"] = "auto"
	}
	t.spec.applyModelOverrides(model, body)

	raw, err := t.postJSON(ctx, "/chat/completions", body)
	if err != nil {
		return schema.ChatResponse{}, err
	}
	return parseChatCompletion(raw)
}

func parseChatCompletion(raw []byte) (schema.ChatResponse, error) {
	var body openai.ChatCompletionResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return schema.ChatResponse{}, fmt.Errorf("%w: parse chat completion: %w", ErrTransport, err)
	}
	if len(body.Choices) == 0 {
		return schema.ChatResponse{}, fmt.Errorf("%w: empty choices in response", ErrTransport)
	}

	choice := body.Choices[0]
	var toolCalls []schema.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		args, err := parseArguments(tc.Function.Arguments)
		if err != nil {
			slog.Warn("failed to parse tool arguments", "tool", tc.Function.Name, "err", err)
		}
		toolCalls = append(toolCalls, schema.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	finish := string(choice.FinishReason)
	if finish == "" {
		finish = string(openai.FinishReasonStop)
	}

	return schema.ChatResponse{
		Content:      strings.TrimSpace(choice.Message.Content),
		ToolCalls:    toolCalls,
		FinishReason: finish,
		Usage: map[string]int{
			"input_tokens":  body.Usage.PromptTokens,
			"output_tokens": body.Usage.CompletionTokens,
		},
	}, nil
}
