package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/crystaldolphin/chatrelay/internal/schema"
	"github.com/crystaldolphin/chatrelay/internal/shared/llmutils"
)

// ToolName is the canonical name of a built-in tool.
type ToolName string

const (
	ToolWebFetch ToolName = "web_fetch"
)

// ErrUnknownTool is returned when the model calls a tool that isn't registered.
var ErrUnknownTool = errors.New("unknown tool")

// Registry holds the named tools the model may call and dispatches calls to
// them. It implements schema.Dispatcher.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]schema.Tool
}

func NewRegistry(ts ...schema.Tool) *Registry {
	r := &Registry{tools: make(map[string]schema.Tool, len(ts))}
	for _, t := range ts {
		r.tools[t.Name()] = t
	}
	return r
}

// Get returns the tool with the given name, or nil if not found.
func (r *Registry) Get(name ToolName) schema.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[string(name)]
}

// Add registers a tool, replacing any existing tool with the same name.
func (r *Registry) Add(t schema.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Declarations returns the provider-neutral tool declarations, sorted by name
// so requests are stable across calls.
func (r *Registry) Declarations() []schema.ToolDeclaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]schema.ToolDeclaration, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, schema.ToolDeclaration{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute runs the named tool. A tool that returns JSON has its output
// embedded as-is in the result; anything else is carried as a string.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (schema.DispatchResult, error) {
	t := r.Get(ToolName(name))
	if t == nil {
		return schema.DispatchResult{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	turn := TurnCtx(ctx)
	start := time.Now()
	out, err := t.Execute(ctx, args)
	if err != nil {
		slog.Warn("Tool failed", "tool", name, "chat", turn.ChatID, "err", err)
		return schema.DispatchResult{}, fmt.Errorf("%s: %w", name, err)
	}
	slog.Info("Tool call", "tool", name, "chat", turn.ChatID, "took", time.Since(start), "result", llmutils.Truncate(out, 120))

	if json.Valid([]byte(out)) {
		return schema.DispatchResult{Success: true, Result: json.RawMessage(out)}, nil
	}
	return schema.DispatchResult{Success: true, Result: out}, nil
}
