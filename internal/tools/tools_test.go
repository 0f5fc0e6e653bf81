package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/chatrelay/internal/schema"
)

type stubTool struct {
	name string
	out  string
	err  error
	got  map[string]any
	turn TurnContext
}

func (s *stubTool) Name() string                { return s.name }
func (s *stubTool) Description() string         { return "stub " + s.name }
func (s *stubTool) Parameters() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (s *stubTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	s.got = params
	s.turn = TurnCtx(ctx)
	return s.out, s.err
}

var _ schema.Dispatcher = (*Registry)(nil)

func TestRegistryExecute(t *testing.T) {
	jsonTool := &stubTool{name: "b_json", out: `{"ok":true}`}
	textTool := &stubTool{name: "a_text", out: "plain"}
	r := NewRegistry(jsonTool, textTool)

	ctx := WithTurnContext(context.Background(), TurnContext{Channel: "cli", ChatID: "c1"})

	res, err := r.Execute(ctx, "b_json", map[string]any{"x": "y"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, json.RawMessage(`{"ok":true}`), res.Result)
	assert.Equal(t, "y", jsonTool.got["x"])
	assert.Equal(t, "c1", jsonTool.turn.ChatID)

	res, err = r.Execute(ctx, "a_text", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain", res.Result)

	encoded, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"result":"plain"}`, string(encoded))
}

func TestRegistryErrors(t *testing.T) {
	boom := errors.New("boom")
	r := NewRegistry(&stubTool{name: "fails", err: boom})

	_, err := r.Execute(context.Background(), "fails", nil)
	assert.ErrorIs(t, err, boom)

	_, err = r.Execute(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestRegistryDeclarationsSorted(t *testing.T) {
	r := NewRegistry(&stubTool{name: "zeta"}, &stubTool{name: "alpha"})
	r.Add(&stubTool{name: "mid"})

	decls := r.Declarations()
	require.Len(t, decls, 3)
	assert.Equal(t, "alpha", decls[0].Name)
	assert.Equal(t, "stub alpha", decls[0].Description)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.Names())
}

func TestWebFetchHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, `<!doctype html><html><head><title>Relay notes</title></head>
<body><article><h1>Relay notes</h1>
<p>The relay forwards chat messages to a language model and returns its answer to the chat.
It keeps a short conversation history per chat so follow-up questions make sense.</p>
<p>Tools let the model fetch pages before answering, which keeps replies grounded in the link that was shared.</p>
</article><script>var x = 1;</script></body></html>`)
	}))
	defer srv.Close()

	out, err := NewWebFetchTool(0).Execute(context.Background(), map[string]any{"url": srv.URL})
	require.NoError(t, err)

	var res fetchResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Contains(t, res.Text, "forwards chat messages")
	assert.NotContains(t, res.Text, "var x")
	assert.False(t, res.Truncated)
}

func TestWebFetchTruncatesAndFormatsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"items":[`+`"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"`+`]}`)
	}))
	defer srv.Close()

	out, err := NewWebFetchTool(0).Execute(context.Background(), map[string]any{"url": srv.URL, "maxChars": float64(100)})
	require.NoError(t, err)

	var res fetchResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "json", res.Extractor)
	assert.True(t, res.Truncated)
	assert.Len(t, res.Text, 100)
}

func TestWebFetchRejectsBadURLs(t *testing.T) {
	tool := NewWebFetchTool(0)
	for _, u := range []string{"", "ftp://example.com/file", "https://"} {
		_, err := tool.Execute(context.Background(), map[string]any{"url": u})
		assert.Error(t, err, "url %q", u)
	}
}
