package openaicompat

import (
	"encoding/json"

	"github.com/nevindra/counsel"
)

// ParseResponse converts a wire-format ChatResponse to a counsel
// ChatResponse. It extracts content, tool calls, finish reason, and usage
// from choices[0].
func ParseResponse(resp ChatResponse) (counsel.ChatResponse, error) {
	var out counsel.ChatResponse

	if len(resp.Choices) == 0 {
		return out, nil
	}

	choice := resp.Choices[0]
	out.FinishReason = choice.FinishReason
	if choice.Message != nil {
		out.Content = choice.Message.Content
		out.ToolCalls = ParseToolCalls(choice.Message.ToolCalls)
	}

	if resp.Usage != nil {
		out.Usage = counsel.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}

	return out, nil
}

// ParseToolCalls converts wire tool call requests to counsel ToolCalls.
// The API returns function.arguments as a JSON string; invalid argument
// text degrades to an empty object rather than failing the response.
func ParseToolCalls(tcs []ToolCallRequest) []counsel.ToolCall {
	if len(tcs) == 0 {
		return nil
	}

	out := make([]counsel.ToolCall, 0, len(tcs))
	for _, tc := range tcs {
		args := json.RawMessage(tc.Function.Arguments)
		if !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		out = append(out, counsel.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return out
}
