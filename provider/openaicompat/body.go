package openaicompat

import (
	"encoding/json"

	"github.com/nevindra/counsel"
)

// BuildBody converts counsel ChatMessages and a model name into a wire-format
// ChatRequest. System messages are kept in the messages array as
// role:"system". The request temperature is always set; when tools are
// present, tool_choice defaults to "auto" (options can override it).
func BuildBody(messages []counsel.ChatMessage, tools []counsel.ToolDefinition, model string, temperature float64, opts ...Option) ChatRequest {
	var msgs []Message

	for _, m := range messages {
		switch {
		case m.Role == "assistant" && len(m.ToolCalls) > 0:
			var tcs []ToolCallRequest
			for _, tc := range m.ToolCalls {
				tcs = append(tcs, ToolCallRequest{
					ID:   tc.ID,
					Type: "function",
					Function: FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Args),
					},
				})
			}
			msg := Message{
				Role:      "assistant",
				ToolCalls: tcs,
			}
			// Text alongside tool calls rides as content; otherwise null.
			if m.Content != "" {
				msg.Content = m.Content
			}
			msgs = append(msgs, msg)

		case m.Role == "tool":
			msgs = append(msgs, Message{
				Role:       "tool",
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
			})

		default:
			// system, user, or plain assistant message.
			msgs = append(msgs, Message{
				Role:    m.Role,
				Content: m.Content,
			})
		}
	}

	req := ChatRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: &temperature,
	}

	if len(tools) > 0 {
		req.Tools = BuildToolDefs(tools)
		req.ToolChoice = "auto"
	}

	for _, opt := range opts {
		opt(&req)
	}

	return req
}

// BuildToolDefs converts counsel ToolDefinitions to the wire tool format,
// expanding each definition's parameter list into a JSON Schema object.
func BuildToolDefs(tools []counsel.ToolDefinition) []Tool {
	out := make([]Tool, 0, len(tools))
	for _, t := range tools {
		params := t.Schema()
		if len(params) == 0 {
			params = json.RawMessage(`{}`)
		}
		out = append(out, Tool{
			Type: "function",
			Function: Function{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
