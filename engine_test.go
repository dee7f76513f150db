package counsel

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSingleRoleTurnStreamsLive(t *testing.T) {
	p := &scriptProvider{rules: []*scriptRule{
		planRule(`{"nodes":[{"role_id":"policy","depends_on":[]}],"reason":"政策问题"}`),
		{match: sysContains("你是政策专家。"), deltas: []string{"南宁", "目前不限购"}},
	}}
	store := NewMemoryContextStore(0)
	e := newTestEngine(p, nil, store)

	events, err := runTestTurn(t, e, Request{SessionID: "s1", Input: "南宁限购吗", Mode: ModeStandard})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	want := []EventType{
		EventThinkingStart,
		EventThinkingStep, // 正在分析
		EventThinkingStep, // 已确定由...
		EventRoleStart,
		EventThinkingStep, // 政策专家正在分析
		EventContentDelta,
		EventContentDelta,
		EventRoleResult,
		EventDone,
	}
	got := eventTypes(events)
	if len(got) != len(want) {
		t.Fatalf("event types = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event[%d] = %s, want %s (all: %v)", i, got[i], want[i], got)
		}
	}

	start := eventsOfType(events, EventRoleStart)[0]
	if start.Role != "policy" || start.Name != "政策专家" || start.Icon != "📜" {
		t.Errorf("role_start = %+v", start)
	}
	result := eventsOfType(events, EventRoleResult)[0]
	if result.Content != "南宁目前不限购" {
		t.Errorf("role_result content = %q", result.Content)
	}
	for _, ev := range events {
		if ev.IsSummary {
			t.Errorf("unexpected summary event: %+v", ev)
		}
	}

	cc, loadErr := store.Load(context.Background(), "s1")
	if loadErr != nil || cc == nil {
		t.Fatalf("Load: cc=%v err=%v", cc, loadErr)
	}
	if len(cc.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(cc.History))
	}
	if cc.History[0].Role != "user" || cc.History[0].Content != "南宁限购吗" {
		t.Errorf("history[0] = %+v", cc.History[0])
	}
	if cc.History[1].Role != "assistant" || cc.History[1].Content != "南宁目前不限购" {
		t.Errorf("history[1] = %+v", cc.History[1])
	}
}

func TestSerialChainSilencesIntermediateRole(t *testing.T) {
	p := &scriptProvider{rules: []*scriptRule{
		planRule(`{"nodes":[
			{"role_id":"policy","depends_on":[]},
			{"role_id":"market","depends_on":["policy"]}
		],"reason":"市场分析依赖政策信息"}`),
		{match: userContains("基于以下各专家的分析"), deltas: []string{"综合建议"}},
		{match: sysContains("你是政策专家。"), deltas: []string{"限购政策内容"}},
		{match: sysContains("你是市场分析师。"), deltas: []string{"市场", "分析"}},
	}}
	store := NewMemoryContextStore(0)
	e := newTestEngine(p, nil, store)

	events, err := runTestTurn(t, e, Request{SessionID: "s2", Input: "限购政策对房价的影响"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	// The intermediate role's text feeds later prompts, never the client.
	for _, ev := range eventsOfType(events, EventContentDelta) {
		if ev.Role == "policy" {
			t.Fatalf("intermediate role leaked delta: %+v", ev)
		}
	}
	var sawComplete bool
	for _, ev := range eventsOfType(events, EventThinkingStep) {
		if ev.StepType == StepRoleComplete && ev.Role == "policy" {
			sawComplete = true
			if ev.Content != "政策专家分析完成" {
				t.Errorf("completion notice = %q", ev.Content)
			}
		}
	}
	if !sawComplete {
		t.Error("missing role_complete notice for intermediate role")
	}

	var marketDeltas int
	for _, ev := range eventsOfType(events, EventContentDelta) {
		if ev.Role == "market" {
			marketDeltas++
		}
	}
	if marketDeltas != 2 {
		t.Errorf("market deltas = %d, want 2", marketDeltas)
	}

	// Two recorded results without a synthesizer entry trigger exactly one
	// implicit synthesis.
	var summaryStarts, summaryResults int
	for _, ev := range events {
		if ev.Type == EventRoleStart && ev.IsSummary {
			summaryStarts++
			if ev.Role != "advisor" {
				t.Errorf("summary role = %q", ev.Role)
			}
		}
		if ev.Type == EventRoleResult && ev.IsSummary {
			summaryResults++
			if ev.Content != "综合建议" {
				t.Errorf("summary content = %q", ev.Content)
			}
		}
	}
	if summaryStarts != 1 || summaryResults != 1 {
		t.Fatalf("summary starts=%d results=%d, want 1/1", summaryStarts, summaryResults)
	}

	// The dependent role saw the completed upstream result.
	marketCalls := p.callsMatching(sysContains("你是市场分析师。"))
	if len(marketCalls) != 1 {
		t.Fatalf("market calls = %d, want 1", len(marketCalls))
	}
	if !strings.Contains(marketCalls[0].Messages[0].Content, "【政策专家的分析】\n限购政策内容") {
		t.Errorf("market system prompt missing upstream result:\n%s", marketCalls[0].Messages[0].Content)
	}

	synthCalls := p.callsMatching(userContains("基于以下各专家的分析"))
	if len(synthCalls) != 1 {
		t.Fatalf("synthesis calls = %d, want 1", len(synthCalls))
	}
	prompt := synthCalls[0].Messages[len(synthCalls[0].Messages)-1].Content
	if !strings.Contains(prompt, "【政策专家的分析】") || !strings.Contains(prompt, "【市场分析师的分析】") {
		t.Errorf("synthesis prompt missing sections:\n%s", prompt)
	}

	if n := p.countCalls(sysContains("你是政策专家。")); n != 1 {
		t.Errorf("policy executed %d times, want 1", n)
	}

	cc, _ := store.Load(context.Background(), "s2")
	last := cc.History[len(cc.History)-1]
	if last.Role != "assistant" || last.Content != "综合建议" {
		t.Errorf("canonical answer = %+v", last)
	}
}

func TestParallelRoundReplaysInDeclarationOrder(t *testing.T) {
	p := &scriptProvider{rules: []*scriptRule{
		planRule(`{"nodes":[
			{"role_id":"policy","depends_on":[]},
			{"role_id":"market","depends_on":[]}
		],"reason":"两者独立可并行"}`),
		{match: userContains("基于以下各专家的分析"), deltas: []string{"整合结论"}},
		// The first-declared node finishes last; replay order must not change.
		{match: sysContains("你是政策专家。"), resp: ChatResponse{Content: "政策结论"}, delay: 30 * time.Millisecond},
		{match: sysContains("你是市场分析师。"), resp: ChatResponse{Content: "市场结论"}},
	}}
	store := NewMemoryContextStore(0)
	e := newTestEngine(p, nil, store)

	events, err := runTestTurn(t, e, Request{SessionID: "s3", Input: "限购政策和房价"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	starts := eventsOfType(events, EventRoleStart)
	if len(starts) != 3 {
		t.Fatalf("role starts = %d, want 3 (2 specialists + summary)", len(starts))
	}
	if starts[0].Role != "policy" || starts[1].Role != "market" {
		t.Errorf("start order = %s, %s", starts[0].Role, starts[1].Role)
	}

	results := eventsOfType(events, EventRoleResult)
	if len(results) != 3 {
		t.Fatalf("role results = %d, want 3", len(results))
	}
	if results[0].Role != "policy" || results[0].Content != "政策结论" {
		t.Errorf("results[0] = %+v", results[0])
	}
	if results[1].Role != "market" || results[1].Content != "市场结论" {
		t.Errorf("results[1] = %+v", results[1])
	}
	if results[2].Role != "advisor" || !results[2].IsSummary {
		t.Errorf("results[2] = %+v", results[2])
	}

	cc, _ := store.Load(context.Background(), "s3")
	last := cc.History[len(cc.History)-1]
	if last.Content != "整合结论" {
		t.Errorf("canonical answer = %q", last.Content)
	}
}

func TestPlannedSynthesizerSkipsImplicitSynthesis(t *testing.T) {
	p := &scriptProvider{rules: []*scriptRule{
		planRule(`{"nodes":[
			{"role_id":"policy","depends_on":[]},
			{"role_id":"advisor","depends_on":["policy"]}
		],"reason":"顾问整合政策结果"}`),
		{match: sysContains("你是政策专家。"), deltas: []string{"政策分析"}},
		{match: sysContains("你是购房顾问。"), deltas: []string{"直接整合"}},
	}}
	store := NewMemoryContextStore(0)
	e := newTestEngine(p, nil, store)

	events, err := runTestTurn(t, e, Request{SessionID: "s4", Input: "综合建议"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	for _, ev := range events {
		if ev.IsSummary {
			t.Errorf("unexpected implicit synthesis event: %+v", ev)
		}
	}
	results := eventsOfType(events, EventRoleResult)
	if len(results) != 1 || results[0].Role != "advisor" || results[0].Content != "直接整合" {
		t.Fatalf("results = %+v", results)
	}

	cc, _ := store.Load(context.Background(), "s4")
	last := cc.History[len(cc.History)-1]
	if last.Content != "直接整合" {
		t.Errorf("canonical answer = %q", last.Content)
	}
}

func TestNodeFailureAbsorbedIntoStream(t *testing.T) {
	p := &scriptProvider{rules: []*scriptRule{
		planRule(`{"nodes":[{"role_id":"policy","depends_on":[]}],"reason":"r"}`),
		{match: sysContains("你是政策专家。"), err: NewUnavailableError("", errors.New("connect refused"))},
	}}
	e := newTestEngine(p, nil, nil)

	events, err := runTestTurn(t, e, Request{SessionID: "s5", Input: "限购"})
	if err != nil {
		t.Fatalf("Process should absorb node failures, got %v", err)
	}

	results := eventsOfType(events, EventRoleResult)
	if len(results) != 1 || !strings.HasPrefix(results[0].Content, "执行出错") {
		t.Fatalf("results = %+v", results)
	}
	if len(eventsOfType(events, EventError)) != 0 {
		t.Error("absorbed failure must not emit an error event")
	}
	if events[len(events)-1].Type != EventDone {
		t.Errorf("last event = %s, want done", events[len(events)-1].Type)
	}
}

func TestFailedTurnEndsWithSingleErrorEvent(t *testing.T) {
	// Discussion mode treats model failures as turn-terminal.
	p := &scriptProvider{rules: []*scriptRule{
		planRule(`{"nodes":[
			{"role_id":"policy","depends_on":[]},
			{"role_id":"market","depends_on":[]}
		],"reason":"r"}`),
		{match: sysContains("你是政策专家。"), err: NewRateLimitError(&ErrHTTP{Status: 429})},
	}}
	e := newTestEngine(p, nil, nil)

	events, err := runTestTurn(t, e, Request{SessionID: "s6", Input: "限购和房价", Mode: ModeDiscussion})
	if err == nil {
		t.Fatal("Process should fail the turn")
	}

	errs := eventsOfType(events, EventError)
	if len(errs) != 1 {
		t.Fatalf("error events = %d, want 1", len(errs))
	}
	if errs[0].Code != CodeRateLimit || errs[0].Message != "请求过于频繁，请稍后重试" {
		t.Errorf("error event = %+v", errs[0])
	}
	if events[len(events)-1].Type != EventError {
		t.Errorf("last event = %s, want error", events[len(events)-1].Type)
	}
	if len(eventsOfType(events, EventDone)) != 0 {
		t.Error("failed turn must not emit done")
	}
}

func TestCancelledContextStopsTurn(t *testing.T) {
	p := &scriptProvider{rules: []*scriptRule{
		planRule(`{"nodes":[{"role_id":"policy","depends_on":[]}],"reason":"r"}`),
	}}
	e := newTestEngine(p, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch := make(chan Event) // unbuffered with no reader: only ctx can unblock emit
	err := e.Process(ctx, Request{SessionID: "s7", Input: "限购"}, ch)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if _, open := <-ch; open {
		t.Error("event channel not closed")
	}
}

func TestToolCallingRound(t *testing.T) {
	tool := &stubTool{
		defs: []ToolDefinition{{
			Name:        "search_policy",
			Description: "检索政策",
			Parameters:  []ToolParameter{{Name: "query", Type: "string", Required: true}},
		}},
		result: ToolResult{Content: `{"success":true}`},
	}
	registry := NewToolRegistry()
	registry.Add(tool)

	p := &scriptProvider{rules: []*scriptRule{
		planRule(`{"nodes":[{"role_id":"policy","depends_on":[]}],"reason":"r"}`),
		{
			match: sysContains("你是政策专家。"),
			max:   1,
			resp: ChatResponse{
				Content: "让我先查询相关政策",
				ToolCalls: []ToolCall{
					{ID: "c1", Name: "search_policy", Args: json.RawMessage(`{"query":"限购"}`)},
				},
			},
		},
		{match: sysContains("你是政策专家。"), deltas: []string{"根据政策，南宁不限购"}},
	}}
	e := newTestEngine(p, registry, nil)

	events, err := runTestTurn(t, e, Request{SessionID: "s8", Input: "南宁限购吗"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	calls := eventsOfType(events, EventToolCall)
	if len(calls) != 1 {
		t.Fatalf("tool_call events = %d, want 1", len(calls))
	}
	if calls[0].ToolName != "search_policy" || calls[0].ToolArgs != `{"query":"限购"}` || calls[0].Role != "policy" {
		t.Errorf("tool_call = %+v", calls[0])
	}
	toolResults := eventsOfType(events, EventToolResult)
	if len(toolResults) != 1 || toolResults[0].Content != "工具 search_policy 执行完成" {
		t.Fatalf("tool_result events = %+v", toolResults)
	}

	if tool.callCount() != 1 || tool.names[0] != "search_policy" || tool.args[0] != `{"query":"限购"}` {
		t.Errorf("tool execution = names %v args %v", tool.names, tool.args)
	}

	var afterToolDelta bool
	for _, ev := range eventsOfType(events, EventContentDelta) {
		if ev.AfterTool && ev.Delta == "根据政策，南宁不限购" {
			afterToolDelta = true
		}
	}
	if !afterToolDelta {
		t.Error("missing after_tool delta for the follow-up round")
	}

	// The follow-up round sees the tool exchange.
	roleCalls := p.callsMatching(sysContains("你是政策专家。"))
	if len(roleCalls) != 2 {
		t.Fatalf("role calls = %d, want 2", len(roleCalls))
	}
	msgs := roleCalls[1].Messages
	var sawToolMsg bool
	for _, m := range msgs {
		if m.Role == "tool" && m.ToolCallID == "c1" && m.Content == `{"success":true}` {
			sawToolMsg = true
		}
	}
	if !sawToolMsg {
		t.Errorf("follow-up messages missing tool result: %+v", msgs)
	}

	results := eventsOfType(events, EventRoleResult)
	if len(results) != 1 || results[0].Content != "根据政策，南宁不限购" {
		t.Errorf("role_result = %+v", results)
	}
}

func TestInvalidToolArgsAndUnknownTool(t *testing.T) {
	tool := &stubTool{
		defs:   []ToolDefinition{{Name: "search_policy", Description: "检索政策"}},
		result: ToolResult{Content: `{"ok":1}`},
	}
	registry := NewToolRegistry()
	registry.Add(tool)

	p := &scriptProvider{rules: []*scriptRule{
		planRule(`{"nodes":[{"role_id":"policy","depends_on":[]}],"reason":"r"}`),
		{
			match: sysContains("你是政策专家。"),
			max:   1,
			resp: ChatResponse{
				ToolCalls: []ToolCall{
					{ID: "c1", Name: "search_policy", Args: json.RawMessage(`{bad`)},
					{ID: "c2", Name: "judge_timing", Args: json.RawMessage(`{}`)},
				},
			},
		},
		{match: sysContains("你是政策专家。"), deltas: []string{"最终回答"}},
	}}
	e := newTestEngine(p, registry, nil)

	events, err := runTestTurn(t, e, Request{SessionID: "s9", Input: "限购"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	// Malformed arguments are normalized before execution.
	if tool.callCount() != 1 || tool.args[0] != "{}" {
		t.Errorf("tool args = %v, want [{}]", tool.args)
	}

	// Only the successful call produces a tool_result event; the unknown tool
	// becomes an error payload the model reads.
	if n := len(eventsOfType(events, EventToolResult)); n != 1 {
		t.Errorf("tool_result events = %d, want 1", n)
	}
	roleCalls := p.callsMatching(sysContains("你是政策专家。"))
	if len(roleCalls) != 2 {
		t.Fatalf("role calls = %d, want 2", len(roleCalls))
	}
	var sawErrPayload bool
	for _, m := range roleCalls[1].Messages {
		if m.Role == "tool" && m.ToolCallID == "c2" &&
			strings.Contains(m.Content, "工具 judge_timing 不存在") {
			sawErrPayload = true
		}
	}
	if !sawErrPayload {
		t.Error("unknown tool error payload not fed back to the model")
	}
}

func TestMaxToolRoundsTruncates(t *testing.T) {
	tool := &stubTool{
		defs:   []ToolDefinition{{Name: "search_policy", Description: "检索政策"}},
		result: ToolResult{Content: `{"ok":1}`},
	}
	registry := NewToolRegistry()
	registry.Add(tool)

	p := &scriptProvider{rules: []*scriptRule{
		planRule(`{"nodes":[{"role_id":"policy","depends_on":[]}],"reason":"r"}`),
		{
			match: sysContains("你是政策专家。"),
			resp: ChatResponse{
				Content: "部分分析",
				ToolCalls: []ToolCall{
					{ID: "c1", Name: "search_policy", Args: json.RawMessage(`{}`)},
				},
			},
		},
	}}
	e := newTestEngine(p, registry, nil, WithMaxToolRounds(1))

	events, err := runTestTurn(t, e, Request{SessionID: "s10", Input: "限购"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	results := eventsOfType(events, EventRoleResult)
	if len(results) != 1 || results[0].Content != "部分分析" {
		t.Fatalf("role_result = %+v, want truncated text", results)
	}
	if events[len(events)-1].Type != EventDone {
		t.Errorf("last event = %s, want done", events[len(events)-1].Type)
	}
	if tool.callCount() != 1 {
		t.Errorf("tool calls = %d, want 1", tool.callCount())
	}
}

func TestClearContext(t *testing.T) {
	store := NewMemoryContextStore(0)
	e := newTestEngine(&scriptProvider{}, nil, store)

	if e.ClearContext(context.Background(), "missing") {
		t.Error("clearing an unknown session should report false")
	}

	cc := NewConversationContext("s11")
	cc.AddMessage("user", "你好")
	if err := store.Save(context.Background(), cc); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !e.ClearContext(context.Background(), "s11") {
		t.Error("clearing an existing session should report true")
	}
	if e.ClearContext(context.Background(), "s11") {
		t.Error("second clear should report false")
	}

	noStore := newTestEngine(&scriptProvider{}, nil, nil)
	if noStore.ClearContext(context.Background(), "s11") {
		t.Error("engine without a store should report false")
	}
}
