package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/crystaldolphin/chatrelay/internal/reply"
	"github.com/crystaldolphin/chatrelay/internal/schema"
	"github.com/crystaldolphin/chatrelay/internal/shared/llmutils"
)

// ErrTransport wraps every network or API failure returned by a transport.
var ErrTransport = errors.New("provider transport error")

// Transport performs one provider round-trip.
type Transport interface {
	Chat(ctx context.Context, req schema.ChatRequest) (schema.ChatResponse, error)
}

// httpClient is the plumbing shared by the hand-rolled HTTP transports.
type httpClient struct {
	apiKey       string
	apiBase      string
	extraHeaders map[string]string
	limiter      *rate.Limiter
	client       *http.Client
}

func newHTTPClient(apiKey, apiBase string, extraHeaders map[string]string, rps float64) httpClient {
	return httpClient{
		apiKey:       apiKey,
		apiBase:      strings.TrimRight(apiBase, "/"),
		extraHeaders: extraHeaders,
		limiter:      newLimiter(rps),
		client:       &http.Client{Timeout: 120 * time.Second},
	}
}

// newLimiter allows rps requests per second; rps <= 0 means unlimited.
func newLimiter(rps float64) *rate.Limiter {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return rate.NewLimiter(limit, 1)
}

// postJSON sends body to apiBase+path and returns the raw response body.
// Non-200 responses are turned into ErrTransport errors.
func (c httpClient) postJSON(ctx context.Context, path string, body map[string]any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %w", ErrTransport, err)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	slog.Log(ctx, llmutils.LevelTrace, "provider request", "url", c.apiBase+path, "body", string(data))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range c.extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: HTTP request: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrTransport, resp.StatusCode, friendlyHTTPError(resp.StatusCode, raw))
	}
	slog.Log(ctx, llmutils.LevelTrace, "provider response", "body", string(raw))
	return raw, nil
}

func friendlyHTTPError(code int, body []byte) string {
	if code == http.StatusTooManyRequests {
		return "rate limit exceeded"
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}

// parseArguments decodes tool-call arguments, repairing stray control
// characters and trailing garbage some models emit.
func parseArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err == nil {
		return out, nil
	}

	fixed := reply.FixControlChars(raw)
	if err := json.Unmarshal([]byte(fixed), &out); err == nil {
		return out, nil
	}

	// Drop trailing garbage one closing brace at a time.
	for i := strings.LastIndex(fixed, "}"); i >= 0; i = strings.LastIndex(fixed[:i], "}") {
		if err := json.Unmarshal([]byte(fixed[:i+1]), &out); err == nil {
			return out, nil
		}
	}
	return map[string]any{}, fmt.Errorf("cannot repair JSON: %s", llmutils.Truncate(raw, 200))
}
