package schema

import (
	"encoding/json"
)

// WireMessage is one entry of a provider-specific conversation payload.
// Its shape depends entirely on the adapter that produced it.
type WireMessage = map[string]any

// ToolCall is one tool-call directive returned by a provider.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ArgumentsJSON returns the arguments encoded as a JSON object string.
func (tc ToolCall) ArgumentsJSON() string {
	if tc.Arguments == nil {
		return "{}"
	}
	b, err := json.Marshal(tc.Arguments)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ToolResult pairs a tool call with the serialized result fed back to the model.
type ToolResult struct {
	Call    ToolCall
	Content string
}

// ToolDeclaration is the provider-neutral description of a callable tool.
type ToolDeclaration struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON Schema object
}

// ChatRequest is one SENDING step handed to a provider transport.
type ChatRequest struct {
	Model       string
	System      string
	Messages    []WireMessage
	Tools       []any
	MaxTokens   int
	Temperature float64
}

// ChatResponse is the normalised transport response.
type ChatResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        map[string]int // "input_tokens", "output_tokens"
}

// HasToolCalls reports whether the response contains at least one tool call.
func (r ChatResponse) HasToolCalls() bool { return len(r.ToolCalls) > 0 }
