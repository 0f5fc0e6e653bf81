package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/crystaldolphin/chatrelay/internal/schema"
)

// ResponsesTransport calls the OpenAI Responses API (non-streaming).
type ResponsesTransport struct {
	httpClient
	spec *ProviderSpec
}

func NewResponsesTransport(
	apiKey, apiBase string,
	extraHeaders map[string]string,
	requestsPerSecond float64,
	spec *ProviderSpec,
) *ResponsesTransport {
	return &ResponsesTransport{
		httpClient: newHTTPClient(apiKey, apiBase, extraHeaders, requestsPerSecond),
		spec:       spec,
	}
}

func (t *ResponsesTransport) Chat(ctx context.Context, req schema.ChatRequest) (schema.ChatResponse, error) {
	body := map[string]any{
		"model":             t.spec.ResolveModel(req.Model),
		"store":             false,
		"input":             req.Messages,
		"max_output_tokens": req.MaxTokens,
		"temperature":       req.Temperature,
	}
	if req.System != "" {
		body["instructions"] = req.System
	}
	if len(req.Tools) > 0 {
		body["tools"] = req.Tools
		body["tool_choice"] = "auto"
	}

	raw, err := t.postJSON(ctx, "/responses", body)
	if err != nil {
		return schema.ChatResponse{}, err
	}
	return parseResponses(raw)
}

type responsesBody struct {
	Status string `json:"status"`
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"` // type=message
		CallID    string `json:"call_id"`   // type=function_call
		Name      string `json:"name"`      // type=function_call
		Arguments string `json:"arguments"` // type=function_call
	} `json:"output"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

var responsesFinishReason = map[string]string{
	"completed":  "stop",
	"incomplete": "length",
	"failed":     "error",
	"cancelled":  "error",
}

func parseResponses(raw []byte) (schema.ChatResponse, error) {
	var body responsesBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return schema.ChatResponse{}, fmt.Errorf("%w: parse responses output: %w", ErrTransport, err)
	}

	var (
		text      strings.Builder
		toolCalls []schema.ToolCall
	)
	for _, item := range body.Output {
		switch item.Type {
		case "message":
			for _, c := range item.Content {
				if c.Type == "output_text" {
					text.WriteString(c.Text)
				}
			}
		case "function_call":
			args, err := parseArguments(item.Arguments)
			if err != nil {
				slog.Warn("failed to parse tool arguments", "tool", item.Name, "err", err)
			}
			toolCalls = append(toolCalls, schema.ToolCall{
				ID:        item.CallID,
				Name:      item.Name,
				Arguments: args,
			})
		}
	}

	finish, ok := responsesFinishReason[body.Status]
	if !ok {
		finish = "stop"
	}
	if len(toolCalls) > 0 {
		finish = "tool_calls"
	}

	return schema.ChatResponse{
		Content:      strings.TrimSpace(text.String()),
		ToolCalls:    toolCalls,
		FinishReason: finish,
		Usage: map[string]int{
			"input_tokens":  body.Usage.InputTokens,
			"output_tokens": body.Usage.OutputTokens,
		},
	}, nil
}
