package counsel

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// roleTemperature is used for every role-facing model call. Planning and
// coordination calls run colder; see Planner and checkConsensus.
const roleTemperature = 0.7

// roleFormatRequirements is appended to every role's system prompt.
const roleFormatRequirements = `

## 回复格式要求

1. 信息收集：如果用户问题缺少关键信息（如城市、预算、房屋类型、首付比例等），先礼貌地追问，不要直接给出模糊的回答。

2. 推荐问题：在回复结束后，输出 2-3 个相关的后续问题供用户选择，帮助用户深入了解。格式如下：

【推荐问题】
- 问题1
- 问题2
- 问题3

注意：推荐问题要与当前话题相关，具体且有价值，避免过于宽泛。`

// nodeOutcome is the buffered result of one concurrently executed node.
type nodeOutcome struct {
	roleID  string
	content string
	events  []Event
}

// executeNodeStreaming runs one node with live text relay: role_start and a
// dispatch notice, deltas as they arrive, then role_result. A node failure
// is absorbed into a role_result carrying the failure text.
func (e *Engine) executeNodeStreaming(ctx context.Context, node PlanNode, input string, cc *ConversationContext, emit emitFn) error {
	role, ok := e.roles.Get(node.RoleID)
	if !ok {
		e.logger.Warn("角色不存在", "role", node.RoleID)
		return nil
	}
	if err := emit(Event{Type: EventRoleStart, Role: role.ID, Name: role.Name, Icon: role.Icon}); err != nil {
		return err
	}
	if err := emit(Event{
		Type:     EventThinkingStep,
		StepType: StepRoleDispatch,
		Content:  role.Name + "正在分析...",
		Role:     role.ID,
	}); err != nil {
		return err
	}

	content, err := e.executeRoleStream(ctx, role, input, cc, emit, false)
	if err != nil {
		e.logger.Error("角色执行失败", "role", role.ID, "error", err)
		return emit(Event{Type: EventRoleResult, Role: role.ID, Content: "执行出错: " + err.Error()})
	}
	cc.RoleResults.Set(role.ID, content)
	return emit(Event{Type: EventRoleResult, Role: role.ID, Content: content})
}

// executeNodeSilent runs an intermediate node of a multi-specialist turn:
// text is withheld (it feeds later prompts, not the user), tool events and
// thinking notices still relay, and completion is a thinking_step notice
// instead of a role_result.
func (e *Engine) executeNodeSilent(ctx context.Context, node PlanNode, input string, cc *ConversationContext, emit emitFn) error {
	role, ok := e.roles.Get(node.RoleID)
	if !ok {
		e.logger.Warn("角色不存在", "role", node.RoleID)
		return nil
	}
	if err := emit(Event{
		Type:     EventThinkingStep,
		StepType: StepRoleDispatch,
		Content:  role.Name + "正在分析...",
		Role:     role.ID,
	}); err != nil {
		return err
	}

	content, err := e.executeRoleStream(ctx, role, input, cc, emit, true)
	if err != nil {
		e.logger.Error("角色执行失败", "role", role.ID, "error", err)
		return emit(Event{
			Type:     EventThinkingStep,
			StepType: StepError,
			Content:  role.Name + "分析出错: " + err.Error(),
			Role:     role.ID,
		})
	}
	cc.RoleResults.Set(role.ID, content)
	e.logger.Info("中间专家分析完成", "role", role.ID)
	return emit(Event{
		Type:     EventThinkingStep,
		StepType: StepRoleComplete,
		Content:  role.Name + "分析完成",
		Role:     role.ID,
	})
}

// executeNodeBuffered runs one node of a concurrent round with non-streamed
// calls, buffering its events for ordered replay at the join. Failures,
// panics included, are absorbed into the content so dependents still see an
// entry for the role.
func (e *Engine) executeNodeBuffered(ctx context.Context, node PlanNode, input string, cc *ConversationContext) (out nodeOutcome) {
	out.roleID = node.RoleID
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("角色执行 panic", "role", node.RoleID, "panic", p)
			out = nodeOutcome{roleID: node.RoleID, content: fmt.Sprintf("执行出错: %v", p)}
		}
	}()

	role, ok := e.roles.Get(node.RoleID)
	if !ok {
		e.logger.Warn("角色不存在", "role", node.RoleID)
		return nodeOutcome{roleID: node.RoleID, content: "角色不存在"}
	}

	var buf []Event
	content, err := e.executeRole(ctx, role, input, cc, func(ev Event) error {
		buf = append(buf, ev)
		return nil
	})
	if err != nil {
		e.logger.Error("角色执行失败", "role", role.ID, "error", err)
		return nodeOutcome{roleID: node.RoleID, content: "执行出错: " + err.Error()}
	}
	return nodeOutcome{roleID: node.RoleID, content: content, events: buf}
}

// executeRoleStream drives one role to completion over streaming calls,
// entering the tool-calling sub-loop whenever the accumulated response
// requests tools. It returns the role's final text. When silent is true
// text deltas are withheld; tool events and thinking notices still flow.
func (e *Engine) executeRoleStream(ctx context.Context, role Role, input string, cc *ConversationContext, emit emitFn, silent bool) (string, error) {
	e.logger.Info("流式执行角色", "role", role.ID)
	messages := e.buildRoleMessages(role, input, cc)
	tools := e.tools.DefinitionsFor(role.Tools)

	afterTool := false
	for round := 0; ; round++ {
		resp, err := e.streamChat(ctx, ChatRequest{
			Messages:    messages,
			Tools:       tools,
			Temperature: roleTemperature,
		}, func(delta string) error {
			if silent {
				return nil
			}
			return emit(Event{Type: EventContentDelta, Role: role.ID, Delta: delta, AfterTool: afterTool})
		})
		if err != nil {
			return "", err
		}
		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}
		if round >= e.maxToolRounds {
			e.logger.Warn("工具调用轮数达到上限，截断", "role", role.ID, "rounds", round)
			return resp.Content, nil
		}
		// Text that precedes a tool request is working-out, not the answer.
		if notice := clipThinking(resp.Content); notice != "" {
			if err := emit(Event{Type: EventThinkingStep, StepType: StepPlanning, Content: notice, Role: role.ID}); err != nil {
				return "", err
			}
		}
		messages, err = e.applyToolCalls(ctx, role, messages, resp, emit)
		if err != nil {
			return "", err
		}
		afterTool = true
	}
}

// executeRole is the non-streaming variant used by concurrent rounds and
// discussion mode. Tool and thinking events go through emit.
func (e *Engine) executeRole(ctx context.Context, role Role, input string, cc *ConversationContext, emit emitFn) (string, error) {
	e.logger.Info("执行角色", "role", role.ID)
	messages := e.buildRoleMessages(role, input, cc)
	tools := e.tools.DefinitionsFor(role.Tools)

	for round := 0; ; round++ {
		resp, err := e.provider.Chat(ctx, ChatRequest{
			Messages:    messages,
			Tools:       tools,
			Temperature: roleTemperature,
		})
		if err != nil {
			return "", err
		}
		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}
		if round >= e.maxToolRounds {
			e.logger.Warn("工具调用轮数达到上限，截断", "role", role.ID, "rounds", round)
			return resp.Content, nil
		}
		if notice := clipThinking(resp.Content); notice != "" {
			if err := emit(Event{Type: EventThinkingStep, StepType: StepPlanning, Content: notice, Role: role.ID}); err != nil {
				return "", err
			}
		}
		messages, err = e.applyToolCalls(ctx, role, messages, resp, emit)
		if err != nil {
			return "", err
		}
	}
}

// applyToolCalls appends the assistant message carrying the requested calls,
// executes each call, and appends its result message. A missing tool or a
// failed execution becomes an error payload the model can read; only a
// successful execution emits a tool_result event.
func (e *Engine) applyToolCalls(ctx context.Context, role Role, messages []ChatMessage, resp ChatResponse, emit emitFn) ([]ChatMessage, error) {
	messages = append(messages, AssistantToolCallMessage(resp.Content, resp.ToolCalls))

	for _, tc := range resp.ToolCalls {
		e.logger.Info("执行工具", "tool", tc.Name, "args", string(tc.Args))
		if err := emit(Event{Type: EventToolCall, ToolName: tc.Name, ToolArgs: string(tc.Args), Role: role.ID}); err != nil {
			return nil, err
		}

		args := tc.Args
		if len(args) == 0 || !json.Valid(args) {
			args = json.RawMessage("{}")
		}

		var payload string
		res, err := e.tools.Execute(ctx, tc.Name, args)
		switch {
		case err != nil:
			e.logger.Error("工具执行失败", "tool", tc.Name, "error", err)
			payload = errorPayload(err.Error())
		case res.Error != "":
			e.logger.Warn("工具返回错误", "tool", tc.Name, "error", res.Error)
			payload = errorPayload(res.Error)
		default:
			payload = res.Content
			if err := emit(Event{
				Type:     EventToolResult,
				ToolName: tc.Name,
				Content:  "工具 " + tc.Name + " 执行完成",
				Role:     role.ID,
			}); err != nil {
				return nil, err
			}
		}
		messages = append(messages, ToolResultMessage(tc.ID, payload))
	}
	return messages, nil
}

// streamChat runs one streaming call, forwarding each text delta through
// onDelta, and returns the accumulated response. The delta channel is always
// drained so the provider goroutine can finish even after onDelta fails.
func (e *Engine) streamChat(ctx context.Context, req ChatRequest, onDelta func(delta string) error) (ChatResponse, error) {
	deltas := make(chan StreamEvent, 64)
	var (
		resp      ChatResponse
		streamErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		resp, streamErr = e.provider.ChatStream(ctx, req, deltas)
	}()

	var emitErr error
	for ev := range deltas {
		if emitErr != nil || ev.Type != StreamTextDelta || ev.Content == "" {
			continue
		}
		if err := onDelta(ev.Content); err != nil {
			emitErr = err
		}
	}
	<-done

	if streamErr != nil {
		return ChatResponse{}, streamErr
	}
	if emitErr != nil {
		return ChatResponse{}, emitErr
	}
	return resp, nil
}

// buildRoleMessages assembles one role's view of the turn: its prompt,
// sibling results recorded so far, the fixed format instructions, bounded
// history, and the current input when history does not already end with it.
func (e *Engine) buildRoleMessages(role Role, input string, cc *ConversationContext) []ChatMessage {
	system := role.SystemPrompt
	if sections := e.renderRoleResults(cc); len(sections) > 0 {
		system += "\n\n以下是其他专家的分析结果，请参考：\n" + strings.Join(sections, "\n\n")
	}
	system += roleFormatRequirements

	messages := []ChatMessage{SystemMessage(system)}
	recent := cc.RecentHistory(e.maxHistoryTurns)
	messages = append(messages, recent...)
	if len(recent) == 0 || recent[len(recent)-1].Content != input {
		messages = append(messages, UserMessage(input))
	}
	return messages
}

// renderRoleResults renders recorded results as 【<name>的分析】 sections in
// completion order, skipping roles missing from the catalog.
func (e *Engine) renderRoleResults(cc *ConversationContext) []string {
	var sections []string
	for _, out := range cc.RoleResults {
		if r, ok := e.roles.Get(out.RoleID); ok {
			sections = append(sections, "【"+r.Name+"的分析】\n"+out.Content)
		}
	}
	return sections
}

func errorPayload(msg string) string {
	b, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return `{"error":"unknown"}`
	}
	return string(b)
}

// clipThinking shortens interstitial model text into a notice.
func clipThinking(s string) string {
	return clipRunes(strings.TrimSpace(s), 100)
}

func clipRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
