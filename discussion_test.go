package counsel

import (
	"context"
	"strings"
	"testing"
)

// discussionRules scripts a two-specialist discussion: initial statements,
// a coordinator verdict, optional supplements, and the closing summary.
func discussionRules(consensus ...*scriptRule) []*scriptRule {
	rules := []*scriptRule{
		planRule(`{"nodes":[
			{"role_id":"policy","depends_on":[]},
			{"role_id":"market","depends_on":[]}
		],"reason":"需要讨论"}`),
	}
	rules = append(rules, consensus...)
	rules = append(rules,
		&scriptRule{
			match: allOf(sysContains("你是政策专家。"), sysContains("多专家讨论")),
			resp:  ChatResponse{Content: "补充：关注公积金新政"},
		},
		&scriptRule{
			match: allOf(sysContains("你是市场分析师。"), sysContains("多专家讨论")),
			resp:  ChatResponse{Content: "无补充"},
		},
		&scriptRule{
			match: sysContains("总结以下专家讨论"),
			resp:  ChatResponse{Content: "最终建议：先看政策再入市"},
		},
		&scriptRule{
			match: sysContains("你是政策专家。"),
			resp:  ChatResponse{Content: "政策观点"},
		},
		&scriptRule{
			match: sysContains("你是市场分析师。"),
			resp:  ChatResponse{Content: "市场观点"},
		},
	)
	return rules
}

func consensusRule(verdict string, max int) *scriptRule {
	return &scriptRule{
		match: sysContains("讨论协调者"),
		resp:  ChatResponse{Content: verdict},
		max:   max,
	}
}

func TestDiscussionReachesConsensus(t *testing.T) {
	p := &scriptProvider{rules: discussionRules(consensusRule("是", 0))}
	store := NewMemoryContextStore(0)
	e := newTestEngine(p, nil, store)

	events, err := runTestTurn(t, e, Request{SessionID: "d1", Input: "限购和房价怎么看", Mode: ModeDiscussion})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	results := eventsOfType(events, EventRoleResult)
	if len(results) != 3 {
		t.Fatalf("role results = %d, want 3 (two statements + summary)", len(results))
	}
	if results[0].Role != "policy" || results[0].Content != "政策观点" {
		t.Errorf("results[0] = %+v", results[0])
	}
	if results[1].Role != "market" || results[1].Content != "市场观点" {
		t.Errorf("results[1] = %+v", results[1])
	}
	if results[2].Role != "advisor" || results[2].Content != "最终建议：先看政策再入市" {
		t.Errorf("results[2] = %+v", results[2])
	}

	if n := len(eventsOfType(events, EventDiscussion)); n != 0 {
		t.Errorf("discussion events = %d, want 0 after immediate consensus", n)
	}
	if n := p.countCalls(sysContains("讨论协调者")); n != 1 {
		t.Errorf("consensus checks = %d, want 1", n)
	}
	if events[len(events)-1].Type != EventDone {
		t.Errorf("last event = %s", events[len(events)-1].Type)
	}

	cc, _ := store.Load(context.Background(), "d1")
	last := cc.History[len(cc.History)-1]
	if last.Role != "assistant" || last.Content != "最终建议：先看政策再入市" {
		t.Errorf("canonical answer = %+v", last)
	}
}

func TestDiscussionSupplementRound(t *testing.T) {
	p := &scriptProvider{rules: discussionRules(
		consensusRule("否，仍有分歧", 1),
		consensusRule("是", 0),
	)}
	e := newTestEngine(p, nil, nil)

	events, err := runTestTurn(t, e, Request{SessionID: "d2", Input: "限购和房价怎么看", Mode: ModeDiscussion})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	// Only the policy expert had something to add; the declining role stays
	// silent.
	supplements := eventsOfType(events, EventDiscussion)
	if len(supplements) != 1 {
		t.Fatalf("discussion events = %d, want 1", len(supplements))
	}
	sup := supplements[0]
	if sup.From != "policy" || sup.Name != "政策专家" || sup.Round != 2 {
		t.Errorf("supplement = %+v", sup)
	}
	if sup.Content != "补充：关注公积金新政" {
		t.Errorf("supplement content = %q", sup.Content)
	}

	if n := p.countCalls(sysContains("讨论协调者")); n != 2 {
		t.Errorf("consensus checks = %d, want 2", n)
	}

	// The summary sees the supplement in the transcript.
	summaryCalls := p.callsMatching(sysContains("总结以下专家讨论"))
	if len(summaryCalls) != 1 {
		t.Fatalf("summary calls = %d, want 1", len(summaryCalls))
	}
	user := summaryCalls[0].Messages[1].Content
	if !strings.Contains(user, "【政策专家】补充：关注公积金新政") {
		t.Errorf("summary transcript missing supplement:\n%s", user)
	}
}

func TestDiscussionRoundBudget(t *testing.T) {
	p := &scriptProvider{rules: discussionRules(consensusRule("否", 0))}
	e := newTestEngine(p, nil, nil, WithMaxDiscussionRounds(2))

	events, err := runTestTurn(t, e, Request{SessionID: "d3", Input: "限购和房价怎么看", Mode: ModeDiscussion})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	// Budget 2 counts the statement round: one supplement round at most.
	if n := p.countCalls(sysContains("讨论协调者")); n != 1 {
		t.Errorf("consensus checks = %d, want 1", n)
	}
	if n := len(eventsOfType(events, EventDiscussion)); n != 1 {
		t.Errorf("discussion events = %d, want 1", n)
	}
	if events[len(events)-1].Type != EventDone {
		t.Errorf("last event = %s", events[len(events)-1].Type)
	}
}

func TestDiscussionSingleNodeFallsBackToDAG(t *testing.T) {
	p := &scriptProvider{rules: []*scriptRule{
		planRule(`{"nodes":[{"role_id":"policy","depends_on":[]}],"reason":"单一问题"}`),
		{match: sysContains("你是政策专家。"), deltas: []string{"直接", "回答"}},
	}}
	e := newTestEngine(p, nil, nil)

	events, err := runTestTurn(t, e, Request{SessionID: "d4", Input: "南宁限购吗", Mode: ModeDiscussion})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if n := len(eventsOfType(events, EventDiscussion)); n != 0 {
		t.Errorf("discussion events = %d, want 0", n)
	}
	if n := len(eventsOfType(events, EventContentDelta)); n != 2 {
		t.Errorf("deltas = %d, want live streaming", n)
	}
	if n := p.countCalls(sysContains("讨论协调者")); n != 0 {
		t.Errorf("consensus checks = %d, want 0", n)
	}
}

func TestRenderDiscussion(t *testing.T) {
	entries := []discussionEntry{
		{RoleID: "policy", Name: "政策专家", Content: "观点一"},
		{RoleID: "market", Name: "市场分析师", Content: "观点二"},
	}
	got := renderDiscussion(entries)
	want := "【政策专家】观点一\n【市场分析师】观点二"
	if got != want {
		t.Errorf("renderDiscussion = %q, want %q", got, want)
	}
}
