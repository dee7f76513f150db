package openaicompat

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/nevindra/counsel"
)

func TestBuildBodyBasic(t *testing.T) {
	messages := []counsel.ChatMessage{
		counsel.SystemMessage("你是政策专家"),
		counsel.UserMessage("南宁限购吗"),
	}
	body := BuildBody(messages, nil, "deepseek-chat", 0.7)

	if body.Model != "deepseek-chat" {
		t.Errorf("Model = %q", body.Model)
	}
	if body.Temperature == nil || *body.Temperature != 0.7 {
		t.Errorf("Temperature = %v", body.Temperature)
	}
	if len(body.Messages) != 2 {
		t.Fatalf("Messages = %d, want 2", len(body.Messages))
	}
	if body.Messages[0].Role != "system" || body.Messages[0].Content != "你是政策专家" {
		t.Errorf("messages[0] = %+v", body.Messages[0])
	}
	if body.Tools != nil || body.ToolChoice != nil {
		t.Errorf("tools should be absent: %+v, %v", body.Tools, body.ToolChoice)
	}
	if body.Stream {
		t.Error("Stream should default to false")
	}
}

func TestBuildBodyWithTools(t *testing.T) {
	tools := []counsel.ToolDefinition{{
		Name:        "search_policy",
		Description: "检索政策",
		Parameters: []counsel.ToolParameter{
			{Name: "query", Type: "string", Required: true},
			{Name: "city", Type: "string", Enum: []string{"南宁", "柳州"}},
		},
	}}
	body := BuildBody([]counsel.ChatMessage{counsel.UserMessage("限购")}, tools, "m", 0.7)

	if len(body.Tools) != 1 {
		t.Fatalf("Tools = %d, want 1", len(body.Tools))
	}
	tool := body.Tools[0]
	if tool.Type != "function" || tool.Function.Name != "search_policy" {
		t.Errorf("tool = %+v", tool)
	}
	if !strings.Contains(string(tool.Function.Parameters), `"required":["query"]`) {
		t.Errorf("parameters = %s", tool.Function.Parameters)
	}
	if body.ToolChoice != "auto" {
		t.Errorf("ToolChoice = %v, want auto", body.ToolChoice)
	}
}

func TestBuildBodyToolExchange(t *testing.T) {
	messages := []counsel.ChatMessage{
		counsel.AssistantToolCallMessage("", []counsel.ToolCall{
			{ID: "c1", Name: "search_policy", Args: json.RawMessage(`{"query":"限购"}`)},
		}),
		counsel.ToolResultMessage("c1", `{"success":true}`),
	}
	body := BuildBody(messages, nil, "m", 0.7)

	if len(body.Messages) != 2 {
		t.Fatalf("Messages = %d, want 2", len(body.Messages))
	}

	call := body.Messages[0]
	if call.Role != "assistant" || len(call.ToolCalls) != 1 {
		t.Fatalf("assistant message = %+v", call)
	}
	if call.ToolCalls[0].ID != "c1" || call.ToolCalls[0].Type != "function" {
		t.Errorf("tool call = %+v", call.ToolCalls[0])
	}
	if call.ToolCalls[0].Function.Name != "search_policy" ||
		call.ToolCalls[0].Function.Arguments != `{"query":"限购"}` {
		t.Errorf("function = %+v", call.ToolCalls[0].Function)
	}

	// A call-only assistant message has null content on the wire.
	encoded, err := json.Marshal(call)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(encoded), `"content":null`) {
		t.Errorf("encoded assistant message = %s", encoded)
	}

	result := body.Messages[1]
	if result.Role != "tool" || result.ToolCallID != "c1" || result.Content != `{"success":true}` {
		t.Errorf("tool message = %+v", result)
	}
}

func TestBuildBodyOptions(t *testing.T) {
	body := BuildBody([]counsel.ChatMessage{counsel.UserMessage("hi")}, nil, "m", 0.7,
		WithTemperature(0.2),
		WithTopP(0.9),
		WithMaxTokens(2048),
		WithStop("\n\n"),
		WithSeed(42),
	)

	if body.Temperature == nil || *body.Temperature != 0.2 {
		t.Errorf("Temperature = %v, want option override", body.Temperature)
	}
	if body.TopP == nil || *body.TopP != 0.9 {
		t.Errorf("TopP = %v", body.TopP)
	}
	if body.MaxTokens != 2048 {
		t.Errorf("MaxTokens = %d", body.MaxTokens)
	}
	if len(body.Stop) != 1 || body.Stop[0] != "\n\n" {
		t.Errorf("Stop = %v", body.Stop)
	}
	if body.Seed == nil || *body.Seed != 42 {
		t.Errorf("Seed = %v", body.Seed)
	}
}

func TestBuildBodyToolChoiceOverride(t *testing.T) {
	tools := []counsel.ToolDefinition{{Name: "search_policy"}}
	body := BuildBody([]counsel.ChatMessage{counsel.UserMessage("hi")}, tools, "m", 0.7,
		WithToolChoice("required"))
	if body.ToolChoice != "required" {
		t.Errorf("ToolChoice = %v, want required", body.ToolChoice)
	}
}
