package schema

import (
	"context"
	"encoding/json"
	"time"
)

// Tool is the interface all LLM-callable tools must satisfy.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns the JSON Schema (as raw JSON bytes) for this tool's parameters.
	Parameters() json.RawMessage
	Execute(ctx context.Context, params map[string]any) (string, error)
}

// DispatchResult is what a Dispatcher hands back for one tool call.
type DispatchResult struct {
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Dispatcher executes tool calls by name on behalf of the orchestrator.
type Dispatcher interface {
	Execute(ctx context.Context, name string, args map[string]any) (DispatchResult, error)
	Declarations() []ToolDeclaration
}

// ConversationCache stores converted wire conversations per chat.
type ConversationCache interface {
	// Get returns the cached conversation and whether one was present.
	Get(ctx context.Context, chatID string) ([]WireMessage, bool, error)
	Set(ctx context.Context, chatID string, msgs []WireMessage, ttl time.Duration) error
	Delete(ctx context.Context, chatID string) error
}
