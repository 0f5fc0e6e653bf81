package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/chatrelay/internal/schema"
)

func TestChatCompletionsTransport(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "yes", r.Header.Get("X-Extra"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"choices": [{
				"message": {
					"role": "assistant",
					"content": null,
					"tool_calls": [{"id": "call_1", "type": "function",
						"function": {"name": "web_fetch", "arguments": "{\"url\": \"https://example.com\"}"}}]
				},
				"finish_reason": "tool_calls"
			}],
			"usage": {"prompt_tokens": 11, "completion_tokens": 7, "total_tokens": 18}
		}`)
	}))
	defer srv.Close()

	tr := NewChatCompletionsTransport("sk-test", srv.URL+"/", map[string]string{"X-Extra": "yes"}, 0, FindByName("deepseek"))
	resp, err := tr.Chat(context.Background(), schema.ChatRequest{
		Model:     "deepseek/deepseek-chat",
		System:    "be brief",
		Messages:  []schema.WireMessage{{"role": "user", "content": "hi"}},
		Tools:     DeepSeekAdapter{}.ToolDefinitions([]schema.ToolDeclaration{{Name: "web_fetch"}}),
		MaxTokens: 100,
	})
	require.NoError(t, err)

	assert.Equal(t, "deepseek-chat", got["model"], "the provider prefix is stripped")
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "auto", got["tool_choice"])

	require.True(t, resp.HasToolCalls())
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "https://example.com", resp.ToolCalls[0].Arguments["url"])
	assert.Equal(t, "tool_calls", resp.FinishReason)
	assert.Equal(t, 11, resp.Usage["input_tokens"])
}

func TestChatCompletionsModelOverride(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
	}))
	defer srv.Close()

	tr := NewChatCompletionsTransport("", srv.URL, nil, 0, FindByName("moonshot"))
	resp, err := tr.Chat(context.Background(), schema.ChatRequest{Model: "kimi-k2.5", Temperature: 0.2})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got["temperature"])
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
}

func TestTransportHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewChatCompletionsTransport("", srv.URL, nil, 0, nil).Chat(context.Background(), schema.ChatRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Contains(t, err.Error(), "rate limit exceeded")

	_, err = NewResponsesTransport("", srv.URL, nil, 0, nil).Chat(context.Background(), schema.ChatRequest{})
	assert.ErrorIs(t, err, ErrTransport)
}

func TestResponsesTransport(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/responses", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		_, _ = io.WriteString(w, `{
			"status": "completed",
			"output": [
				{"type": "reasoning"},
				{"type": "message", "content": [{"type": "output_text", "text": "{\"message\":\"hi\"}"}]},
				{"type": "function_call", "call_id": "fc_1", "name": "web_fetch", "arguments": "{\"url\":\"x\"}"}
			],
			"usage": {"input_tokens": 3, "output_tokens": 4}
		}`)
	}))
	defer srv.Close()

	tr := NewResponsesTransport("k", srv.URL, nil, 0, FindByName("openai"))
	resp, err := tr.Chat(context.Background(), schema.ChatRequest{Model: "gpt-4.1", System: "sys"})
	require.NoError(t, err)

	assert.Equal(t, "sys", got["instructions"])
	assert.Equal(t, false, got["store"])
	assert.Equal(t, `{"message":"hi"}`, resp.Content)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "fc_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "tool_calls", resp.FinishReason)
	assert.Equal(t, 4, resp.Usage["output_tokens"])
}

func TestAnthropicTransport(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "yes", r.Header.Get("X-Extra"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-sonnet-4-5",
			"content": [
				{"type": "text", "text": "  checking  "},
				{"type": "tool_use", "id": "toolu_1", "name": "web_fetch", "input": {"url": "https://example.com"}}
			],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 12, "output_tokens": 5}
		}`)
	}))
	defer srv.Close()

	claude := ClaudeAdapter{}
	tr := NewAnthropicTransport("sk-ant", srv.URL, map[string]string{"X-Extra": "yes"}, 0, FindByName("anthropic"))
	resp, err := tr.Chat(context.Background(), schema.ChatRequest{
		Model:     "anthropic/claude-sonnet-4-5",
		System:    "be brief",
		Messages:  claude.Convert([]schema.Message{schema.NewTextMessage(schema.RoleUser, "ann", "1", "hi")}),
		Tools:     claude.ToolDefinitions([]schema.ToolDeclaration{{Name: "web_fetch", Description: "fetch"}}),
		MaxTokens: 256,
	})
	require.NoError(t, err)

	assert.Equal(t, "claude-sonnet-4-5", got["model"], "the provider prefix is stripped")
	assert.Equal(t, float64(256), got["max_tokens"])
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].(map[string]any)["role"])
	tools, ok := got["tools"].([]any)
	require.True(t, ok)
	assert.Equal(t, "web_fetch", tools[0].(map[string]any)["name"])
	system := got["system"].([]any)
	assert.Equal(t, "be brief", system[0].(map[string]any)["text"])

	assert.Equal(t, "checking", resp.Content)
	require.True(t, resp.HasToolCalls())
	assert.Equal(t, "toolu_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "web_fetch", resp.ToolCalls[0].Name)
	assert.Equal(t, "https://example.com", resp.ToolCalls[0].Arguments["url"])
	assert.Equal(t, "tool_calls", resp.FinishReason)
	assert.Equal(t, 12, resp.Usage["input_tokens"])
	assert.Equal(t, 5, resp.Usage["output_tokens"])
}

func TestAnthropicTransportStopReasons(t *testing.T) {
	for stop, want := range map[string]string{"end_turn": "stop", "max_tokens": "max_tokens"} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"id":"m","type":"message","role":"assistant","model":"c",
				"content":[{"type":"text","text":"ok"}],"stop_reason":"`+stop+`",
				"usage":{"input_tokens":1,"output_tokens":1}}`)
		}))

		resp, err := NewAnthropicTransport("k", srv.URL, nil, 0, nil).Chat(context.Background(), schema.ChatRequest{Model: "c", MaxTokens: 10})
		srv.Close()
		require.NoError(t, err)
		assert.Equal(t, want, resp.FinishReason, stop)
		assert.False(t, resp.HasToolCalls())
	}
}

func TestAnthropicTransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"invalid_request_error","message":"bad request"}}`)
	}))
	defer srv.Close()

	_, err := NewAnthropicTransport("k", srv.URL, nil, 0, nil).Chat(context.Background(), schema.ChatRequest{Model: "c", MaxTokens: 10})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestAnthropicTransportRateLimited(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"m","type":"message","role":"assistant","model":"c",
			"content":[{"type":"text","text":"ok"}],"stop_reason":"end_turn",
			"usage":{"input_tokens":1,"output_tokens":1}}`)
	}))
	defer srv.Close()

	tr := NewAnthropicTransport("k", srv.URL, nil, 0.001, nil)
	_, err := tr.Chat(context.Background(), schema.ChatRequest{Model: "c", MaxTokens: 10})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = tr.Chat(ctx, schema.ChatRequest{Model: "c", MaxTokens: 10})
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, 1, calls, "the second call waits on the limiter instead of reaching the server")
}

func TestParseArgumentsRepair(t *testing.T) {
	args, err := parseArguments("{\"text\": \"two\nlines\"}")
	require.NoError(t, err)
	assert.Equal(t, "two\nlines", args["text"])

	args, err = parseArguments(`{"a": 1}}}`)
	require.NoError(t, err)
	assert.Equal(t, float64(1), args["a"])

	args, err = parseArguments("   ")
	require.NoError(t, err)
	assert.Empty(t, args)

	_, err = parseArguments("nonsense")
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// Provider
// ---------------------------------------------------------------------------

type scriptedTransport struct {
	calls int
	errs  []error
	last  schema.ChatRequest
}

func (s *scriptedTransport) Chat(_ context.Context, req schema.ChatRequest) (schema.ChatResponse, error) {
	s.last = req
	s.calls++
	if s.calls <= len(s.errs) && s.errs[s.calls-1] != nil {
		return schema.ChatResponse{}, s.errs[s.calls-1]
	}
	return schema.ChatResponse{Content: "done"}, nil
}

func TestProviderFillsDefaults(t *testing.T) {
	tr := &scriptedTransport{}
	p := NewProvider("deepseek", DeepSeekAdapter{}, tr, "deepseek-chat", 0, 0.4)

	_, err := p.Chat(context.Background(), schema.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "deepseek-chat", tr.last.Model)
	assert.Equal(t, defaultMaxTokens, tr.last.MaxTokens)
	assert.Equal(t, 0.4, tr.last.Temperature)
}

func TestCompleteRetriesOnce(t *testing.T) {
	boom := errors.New("boom")

	tr := &scriptedTransport{errs: []error{boom}}
	p := NewProvider("custom", CustomAdapter{}, tr, "m", 0, 0)
	p.retryDelay = time.Millisecond

	out, err := p.Complete(context.Background(), "sys", []schema.Message{
		schema.NewTextMessage(schema.RoleUser, "ann", "1", "hi"),
	})
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	assert.Equal(t, 2, tr.calls)
	assert.Equal(t, "sys", tr.last.System)
	assert.Len(t, tr.last.Messages, 1)

	tr = &scriptedTransport{errs: []error{boom, boom, nil}}
	p = NewProvider("custom", CustomAdapter{}, tr, "m", 0, 0)
	p.retryDelay = time.Millisecond

	_, err = p.Complete(context.Background(), "", nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, tr.calls, "only one retry")
}

func TestNewInfersKind(t *testing.T) {
	p, err := New(Params{Model: "qwen-vl-max", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, KindQwen, p.Kind())
	assert.Equal(t, "dashscope", p.Name())

	p, err = New(Params{ProviderName: "deepinfra", Model: "meta-llama/Llama-3.3-70B"})
	require.NoError(t, err)
	assert.Equal(t, KindCustom, p.Kind())

	p, err = New(Params{ProviderName: "custom", Kind: "deepseek", APIBase: "http://localhost:8000/v1", Model: "local"})
	require.NoError(t, err)
	assert.Equal(t, KindDeepSeek, p.Kind())

	_, err = New(Params{ProviderName: "custom", Model: "local"})
	assert.Error(t, err, "custom has no default base")

	_, err = New(Params{Model: "mystery-model"})
	assert.ErrorIs(t, err, ErrUnknownKind)
}
