package providers

import (
	openai "github.com/sashabaranov/go-openai"

	"github.com/crystaldolphin/chatrelay/internal/schema"
)

// chatFormat holds the tool-turn shapes shared by every adapter that talks
// to an OpenAI-compatible /chat/completions endpoint.
type chatFormat struct{}

func (chatFormat) ToolDefinitions(decls []schema.ToolDeclaration) []any {
	out := make([]any, 0, len(decls))
	for _, d := range decls {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  parametersMap(d.Parameters),
			},
		})
	}
	return out
}

// ToolTurn emits the assistant tool_calls entry and then one role=tool
// message per result.
func (chatFormat) ToolTurn(content string, results []schema.ToolResult) []schema.WireMessage {
	calls := make([]openai.ToolCall, 0, len(results))
	for _, r := range results {
		calls = append(calls, openai.ToolCall{
			ID:   r.Call.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      r.Call.Name,
				Arguments: r.Call.ArgumentsJSON(),
			},
		})
	}

	assistant := schema.WireMessage{
		"role":       openai.ChatMessageRoleAssistant,
		"content":    nil,
		"tool_calls": calls,
	}
	if content != "" {
		assistant["content"] = content
	}

	out := []schema.WireMessage{assistant}
	for _, r := range results {
		out = append(out, schema.WireMessage{
			"role":         openai.ChatMessageRoleTool,
			"tool_call_id": r.Call.ID,
			"name":         r.Call.Name,
			"content":      r.Content,
		})
	}
	return out
}

func (chatFormat) ReplyEntry(raw string) schema.WireMessage {
	return schema.WireMessage{
		"role":    openai.ChatMessageRoleAssistant,
		"content": raw,
	}
}
