package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const protocolVersion = "2024-11-05"

// sessionHeader carries the server-assigned session over streamable HTTP.
const sessionHeader = "Mcp-Session-Id"

var (
	// ErrNoTransport is returned for a server with neither command nor url.
	ErrNoTransport = errors.New("mcp: no command or url configured")
	// ErrClosed is returned when the stdio server has gone away.
	ErrClosed = errors.New("mcp: server closed")
)

// RPCError is a JSON-RPC error object returned by a server.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("mcp: rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	ID     *int64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// client speaks JSON-RPC to one MCP server, either over a subprocess's
// stdin/stdout or by POSTing to a URL.
type client struct {
	name       string
	cfg        ServerConfig
	httpClient *http.Client
	nextID     atomic.Int64

	// stdio
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	mu     sync.Mutex

	// http
	session atomic.Value // string
}

func newClient(name string, cfg ServerConfig) *client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &client{
		name:       name,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// connect starts the subprocess when one is configured, then performs the
// initialize handshake.
func (c *client) connect(ctx context.Context) error {
	switch {
	case c.cfg.Command != "":
		if err := c.startProcess(); err != nil {
			return err
		}
	case c.cfg.URL != "":
	default:
		return fmt.Errorf("%w: server %q", ErrNoTransport, c.name)
	}

	if err := c.initialize(ctx); err != nil {
		c.close()
		return fmt.Errorf("initialize %s: %w", c.name, err)
	}
	return nil
}

// The subprocess outlives the connect context, so it is started without one
// and killed in close.
func (c *client) startProcess() error {
	c.cmd = exec.Command(c.cfg.Command, c.cfg.Args...)
	c.cmd.Stderr = os.Stderr
	if len(c.cfg.Env) > 0 {
		c.cmd.Env = os.Environ()
		for k, v := range c.cfg.Env {
			c.cmd.Env = append(c.cmd.Env, k+"="+v)
		}
	}

	stdin, err := c.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := c.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	c.stdin = stdin
	c.stdout = bufio.NewReader(stdout)

	if err := c.cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", c.cfg.Command, err)
	}
	return nil
}

func (c *client) close() error {
	if c.cmd == nil || c.cmd.Process == nil {
		return nil
	}
	_ = c.stdin.Close()
	if err := c.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	_ = c.cmd.Wait()
	return nil
}

func (c *client) initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "chatrelay", "version": "1.0"},
	}
	if _, err := c.call(ctx, "initialize", params); err != nil {
		return err
	}
	return c.notify(ctx, "notifications/initialized")
}

// toolDef is one entry of a tools/list result.
type toolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

func (c *client) listTools(ctx context.Context) ([]toolDef, error) {
	raw, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var result struct {
		Tools []toolDef `json:"tools"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode tools/list: %w", err)
	}
	return result.Tools, nil
}

// callTool runs a tool and joins its text content blocks. A result flagged
// isError comes back as an error carrying that text.
func (c *client) callTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	raw, err := c.call(ctx, "tools/call", map[string]any{"name": name, "arguments": args})
	if err != nil {
		return "", err
	}

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return string(raw), nil
	}

	var parts []string
	for _, block := range result.Content {
		if block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	out := strings.Join(parts, "\n")
	if result.IsError {
		return "", fmt.Errorf("%s: %s", name, out)
	}
	if out == "" {
		out = "(no output)"
	}
	return out, nil
}

func (c *client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	req := map[string]any{"jsonrpc": "2.0", "id": id, "method": method}
	if params != nil {
		req["params"] = params
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	var resp *rpcResponse
	if c.cmd != nil {
		resp, err = c.roundTripStdio(ctx, id, data)
	} else {
		resp, err = c.roundTripHTTP(ctx, id, data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", c.name, method, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%s %s: %w", c.name, method, resp.Error)
	}
	return resp.Result, nil
}

func (c *client) notify(ctx context.Context, method string) error {
	data, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "method": method})
	if c.cmd != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		_, err := fmt.Fprintf(c.stdin, "%s\n", data)
		return err
	}
	httpResp, err := c.post(ctx, data)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, httpResp.Body)
	return httpResp.Body.Close()
}

func (c *client) roundTripStdio(ctx context.Context, id int64, data []byte) (*rpcResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintf(c.stdin, "%s\n", data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClosed, err)
	}

	// Servers may interleave log lines and notifications; skip until our id.
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, err := c.stdout.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrClosed, err)
		}
		if resp, ok := matchResponse([]byte(line), id); ok {
			return resp, nil
		}
	}
}

func (c *client) post(ctx context.Context, data []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if s, _ := c.session.Load().(string); s != "" {
		req.Header.Set(sessionHeader, s)
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if s := resp.Header.Get(sessionHeader); s != "" {
		c.session.Store(s)
	}
	return resp, nil
}

func (c *client) roundTripHTTP(ctx context.Context, id int64, data []byte) (*rpcResponse, error) {
	httpResp, err := c.post(ctx, data)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if !strings.HasPrefix(httpResp.Header.Get("Content-Type"), "text/event-stream") {
		var resp rpcResponse
		if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return &resp, nil
	}

	scanner := bufio.NewScanner(httpResp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		payload, ok := strings.CutPrefix(scanner.Text(), "data:")
		if !ok {
			continue
		}
		if resp, ok := matchResponse([]byte(payload), id); ok {
			return resp, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("event stream ended without a response to request %d", id)
}

func matchResponse(line []byte, id int64) (*rpcResponse, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, false
	}
	var resp rpcResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, false
	}
	if resp.ID == nil || *resp.ID != id {
		return nil, false
	}
	return &resp, true
}
