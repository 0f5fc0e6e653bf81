// Package mcp connects to Model Context Protocol servers and exposes their
// tools to the orchestrator as ordinary schema.Tool values.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/crystaldolphin/chatrelay/internal/schema"
)

// ServerConfig holds the connection parameters for a single MCP server.
// Command wins over URL when both are set.
type ServerConfig struct {
	Command string
	Args    []string
	Env     map[string]string
	URL     string
	Headers map[string]string
	Timeout time.Duration
}

// Registrar receives discovered tools. *tools.Registry satisfies it.
type Registrar interface {
	Add(t schema.Tool)
}

// Manager owns the connections to every configured MCP server.
type Manager struct {
	servers map[string]ServerConfig

	mu      sync.Mutex
	clients []*client
}

func NewManager(servers map[string]ServerConfig) *Manager {
	return &Manager{servers: servers}
}

// Connect dials every server in name order and registers its tools into reg
// as mcp_<server>_<tool>. A server that fails to connect or list is logged
// and skipped. It returns the number of tools registered.
func (m *Manager) Connect(ctx context.Context, reg Registrar) int {
	names := make([]string, 0, len(m.servers))
	for name := range m.servers {
		names = append(names, name)
	}
	sort.Strings(names)

	total := 0
	for _, name := range names {
		c := newClient(name, m.servers[name])
		if err := c.connect(ctx); err != nil {
			slog.Error("MCP server connect failed", "server", name, "err", err)
			continue
		}
		defs, err := c.listTools(ctx)
		if err != nil {
			slog.Error("MCP server list_tools failed", "server", name, "err", err)
			_ = c.close()
			continue
		}

		for _, def := range defs {
			if def.Name == "" {
				continue
			}
			t := newTool(c, name, def)
			reg.Add(t)
			total++
			slog.Debug("MCP tool registered", "server", name, "tool", t.name)
		}
		slog.Info("MCP server connected", "server", name, "tools", len(defs))

		m.mu.Lock()
		m.clients = append(m.clients, c)
		m.mu.Unlock()
	}
	return total
}

// Close stops every subprocess-backed server.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, c := range m.clients {
		errs = append(errs, c.close())
	}
	m.clients = nil
	return errors.Join(errs...)
}

// tool adapts one remote MCP tool to schema.Tool.
type tool struct {
	client      *client
	name        string
	remoteName  string
	description string
	parameters  json.RawMessage
}

var emptyObjectSchema = json.RawMessage(`{"type":"object","properties":{}}`)

func newTool(c *client, server string, def toolDef) *tool {
	params := def.InputSchema
	if len(params) == 0 || string(params) == "null" {
		params = emptyObjectSchema
	}
	return &tool{
		client:      c,
		name:        ToolName(server, def.Name),
		remoteName:  def.Name,
		description: def.Description,
		parameters:  params,
	}
}

func (t *tool) Name() string                { return t.name }
func (t *tool) Description() string         { return t.description }
func (t *tool) Parameters() json.RawMessage { return t.parameters }

func (t *tool) Execute(ctx context.Context, params map[string]any) (string, error) {
	return t.client.callTool(ctx, t.remoteName, params)
}

// ToolName builds the registry name for a remote tool. Characters provider
// APIs reject in function names become underscores.
func ToolName(server, remote string) string {
	return "mcp_" + sanitize(server) + "_" + sanitize(remote)
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, s)
}
