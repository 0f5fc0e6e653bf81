package dependency

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/chatrelay/internal/agent"
	"github.com/crystaldolphin/chatrelay/internal/config"
	"github.com/crystaldolphin/chatrelay/internal/tools"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Agent.Model = "local-model"
	cfg.Agent.Provider = "custom"
	cfg.Providers.Custom.APIBase = "http://127.0.0.1:8000/v1"
	return &cfg
}

func TestNewWiresServices(t *testing.T) {
	cfg := testConfig()
	cfg.Agent.MaxCycles = 3

	c, err := New(cfg)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, "custom", c.Provider().Name())
	assert.Equal(t, "local-model", c.Provider().Model())
	assert.Equal(t, 3, c.Orchestrator().MaxCycles())
	assert.Equal(t, []string{string(tools.ToolWebFetch)}, c.Tools().Names())
	assert.NotNil(t, c.Relay())
	assert.NotNil(t, c.Janitor())
	assert.Same(t, cfg, c.Config())
}

func TestNewWithoutWebFetch(t *testing.T) {
	cfg := testConfig()
	cfg.Tools.WebFetch.Enabled = false

	c, err := New(cfg)
	require.NoError(t, err)
	defer c.Close()

	assert.Empty(t, c.Tools().Names())
}

func TestNewSQLiteCache(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.Backend = "sqlite"
	cfg.Cache.Path = filepath.Join(t.TempDir(), "cache.db")

	c, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, c.Close())
}

func TestNewRequiresAPIKey(t *testing.T) {
	cfg := config.DefaultConfig()
	_, err := New(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no API key")
}

func TestNewRejectsBadSweep(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.Sweep = "every now and then"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestDefaultMaxCycles(t *testing.T) {
	cfg := testConfig()
	cfg.Agent.MaxCycles = 0

	c, err := New(cfg)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, agent.DefaultMaxCycles, c.Orchestrator().MaxCycles())
}

// mcpHandler answers the handshake and lists a single lookup tool.
func mcpHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     *int64 `json:"id"`
		Method string `json:"method"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.ID == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	result := map[string]any{}
	switch req.Method {
	case "tools/list":
		result["tools"] = []map[string]any{{"name": "lookup", "description": "Look up a term"}}
	case "tools/call":
		result["content"] = []map[string]any{{"type": "text", "text": "found it"}}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": *req.ID, "result": result})
}

func TestNewRegistersMCPTools(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(mcpHandler))
	defer srv.Close()

	cfg := testConfig()
	cfg.Tools.MCPServers = map[string]config.MCPServerConfig{
		"glossary": {URL: srv.URL},
		"broken":   {},
	}

	c, err := New(cfg)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, []string{"mcp_glossary_lookup", string(tools.ToolWebFetch)}, c.Tools().Names())

	res, err := c.Tools().Execute(context.Background(), "mcp_glossary_lookup", map[string]any{"term": "ttl"})
	require.NoError(t, err)
	assert.Equal(t, "found it", res.Result)
}
