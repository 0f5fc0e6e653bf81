package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/chatrelay/internal/tools"
)

const stdioServerEnv = "CHATRELAY_MCP_STDIO_SERVER"

// TestMain doubles as a stdio MCP server when re-executed by the stdio tests.
func TestMain(m *testing.M) {
	if os.Getenv(stdioServerEnv) == "1" {
		serveStdio()
		os.Exit(0)
	}
	os.Exit(m.Run())
}

type rpcRequest struct {
	ID     *int64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// handle implements a tiny server with an echo tool and a failing tool.
func handle(req rpcRequest) (any, *RPCError) {
	switch req.Method {
	case "initialize":
		return map[string]any{"protocolVersion": protocolVersion, "capabilities": map[string]any{}}, nil
	case "tools/list":
		return map[string]any{"tools": []map[string]any{
			{
				"name":        "echo",
				"description": "Echo the text back",
				"inputSchema": map[string]any{
					"type":       "object",
					"properties": map[string]any{"text": map[string]any{"type": "string"}},
				},
			},
			{"name": "fail.hard", "description": "Always fails"},
			{"name": ""},
		}}, nil
	case "tools/call":
		var p struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}
		_ = json.Unmarshal(req.Params, &p)
		switch p.Name {
		case "echo":
			return map[string]any{"content": []map[string]any{
				{"type": "text", "text": fmt.Sprint(p.Arguments["text"])},
			}}, nil
		case "fail.hard":
			return map[string]any{
				"content": []map[string]any{{"type": "text", "text": "boom"}},
				"isError": true,
			}, nil
		}
		return nil, &RPCError{Code: -32602, Message: "unknown tool " + p.Name}
	}
	return nil, &RPCError{Code: -32601, Message: "method not found"}
}

func encodeResponse(id int64, result any, rpcErr *RPCError) []byte {
	resp := map[string]any{"jsonrpc": "2.0", "id": id}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	data, _ := json.Marshal(resp)
	return data
}

func serveStdio() {
	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		var req rpcRequest
		if err := json.Unmarshal(in.Bytes(), &req); err != nil || req.ID == nil {
			continue
		}
		result, rpcErr := handle(req)
		fmt.Fprintln(os.Stdout, "server log line")
		fmt.Fprintf(os.Stdout, "%s\n", encodeResponse(*req.ID, result, rpcErr))
	}
}

type httpServer struct {
	mu       sync.Mutex
	methods  []string
	sessions []string
	auth     []string
	sse      bool
}

func (s *httpServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.methods = append(s.methods, req.Method)
	s.sessions = append(s.sessions, r.Header.Get(sessionHeader))
	s.auth = append(s.auth, r.Header.Get("Authorization"))
	s.mu.Unlock()

	if req.ID == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if req.Method == "initialize" {
		w.Header().Set(sessionHeader, "session-1")
	}
	result, rpcErr := handle(req)
	body := encodeResponse(*req.ID, result, rpcErr)
	if s.sse {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "event: message\ndata: {\"jsonrpc\":\"2.0\",\"method\":\"notifications/progress\"}\n\n")
		fmt.Fprintf(w, "event: message\ndata: %s\n\n", body)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func connectHTTP(t *testing.T, srv *httpServer) (*Manager, *tools.Registry) {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	m := NewManager(map[string]ServerConfig{
		"docs": {URL: ts.URL, Headers: map[string]string{"Authorization": "Bearer k"}},
	})
	t.Cleanup(func() { _ = m.Close() })

	reg := tools.NewRegistry()
	n := m.Connect(context.Background(), reg)
	require.Equal(t, 2, n)
	return m, reg
}

func TestConnectHTTPRegistersTools(t *testing.T) {
	srv := &httpServer{}
	_, reg := connectHTTP(t, srv)

	assert.Equal(t, []string{"mcp_docs_echo", "mcp_docs_fail_hard"}, reg.Names())

	decls := reg.Declarations()
	require.Len(t, decls, 2)
	assert.Equal(t, "Echo the text back", decls[0].Description)
	assert.JSONEq(t, `{"type":"object","properties":{"text":{"type":"string"}}}`, string(decls[0].Parameters))
	assert.JSONEq(t, string(emptyObjectSchema), string(decls[1].Parameters))

	res, err := reg.Execute(context.Background(), "mcp_docs_echo", map[string]any{"text": "hello"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "hello", res.Result)

	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Equal(t, []string{"initialize", "notifications/initialized", "tools/list", "tools/call"}, srv.methods)
	assert.Equal(t, []string{"", "session-1", "session-1", "session-1"}, srv.sessions)
	for _, a := range srv.auth {
		assert.Equal(t, "Bearer k", a)
	}
}

func TestConnectHTTPEventStream(t *testing.T) {
	_, reg := connectHTTP(t, &httpServer{sse: true})

	res, err := reg.Execute(context.Background(), "mcp_docs_echo", map[string]any{"text": "streamed"})
	require.NoError(t, err)
	assert.Equal(t, "streamed", res.Result)
}

func TestToolErrorResult(t *testing.T) {
	_, reg := connectHTTP(t, &httpServer{})

	_, err := reg.Execute(context.Background(), "mcp_docs_fail_hard", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestRPCErrorSurfaces(t *testing.T) {
	ts := httptest.NewServer(&httpServer{})
	defer ts.Close()

	c := newClient("docs", ServerConfig{URL: ts.URL})
	require.NoError(t, c.connect(context.Background()))

	_, err := c.callTool(context.Background(), "missing", nil)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32602, rpcErr.Code)
}

func TestConnectSkipsBrokenServers(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer down.Close()

	m := NewManager(map[string]ServerConfig{
		"down":  {URL: down.URL},
		"empty": {},
	})
	defer m.Close()

	reg := tools.NewRegistry()
	assert.Zero(t, m.Connect(context.Background(), reg))
	assert.Empty(t, reg.Names())
}

func TestNoTransport(t *testing.T) {
	err := newClient("x", ServerConfig{}).connect(context.Background())
	assert.ErrorIs(t, err, ErrNoTransport)
}

func TestConnectStdio(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	m := NewManager(map[string]ServerConfig{
		"local": {Command: exe, Env: map[string]string{stdioServerEnv: "1"}},
	})
	reg := tools.NewRegistry()
	require.Equal(t, 2, m.Connect(context.Background(), reg))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := reg.Execute(ctx, "mcp_local_echo", map[string]any{"text": "over stdio"})
	require.NoError(t, err)
	assert.Equal(t, "over stdio", res.Result)

	require.NoError(t, m.Close())

	_, err = reg.Execute(ctx, "mcp_local_echo", map[string]any{"text": "gone"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestToolName(t *testing.T) {
	assert.Equal(t, "mcp_my_server_search_docs", ToolName("my server", "search.docs"))
	assert.Equal(t, "mcp_gh_list-issues", ToolName("gh", "list-issues"))
}
