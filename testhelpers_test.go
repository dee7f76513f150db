package counsel

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// scriptRule matches one class of model request and scripts its outcome.
// A rule with max > 0 is consumed after that many uses, letting tests script
// "tool call first, then final answer" sequences for the same role.
type scriptRule struct {
	match  func(ChatRequest) bool
	resp   ChatResponse
	err    error
	deltas []string
	delay  time.Duration
	max    int
	uses   int
}

// scriptProvider is a Provider whose replies come from an ordered rule list.
// Every request is recorded for later assertions. Safe for concurrent use.
type scriptProvider struct {
	mu    sync.Mutex
	rules []*scriptRule
	calls []ChatRequest
}

func (p *scriptProvider) Name() string { return "script" }

func (p *scriptProvider) pick(req ChatRequest) *scriptRule {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	for _, r := range p.rules {
		if r.max > 0 && r.uses >= r.max {
			continue
		}
		if r.match(req) {
			r.uses++
			return r
		}
	}
	return nil
}

func (p *scriptProvider) Chat(_ context.Context, req ChatRequest) (ChatResponse, error) {
	r := p.pick(req)
	if r == nil {
		return ChatResponse{}, fmt.Errorf("unscripted chat request: %s", summarizeRequest(req))
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	return r.resp, r.err
}

func (p *scriptProvider) ChatStream(_ context.Context, req ChatRequest, ch chan<- StreamEvent) (ChatResponse, error) {
	defer close(ch)
	r := p.pick(req)
	if r == nil {
		return ChatResponse{}, fmt.Errorf("unscripted stream request: %s", summarizeRequest(req))
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.err != nil {
		return ChatResponse{}, r.err
	}
	resp := r.resp
	if len(r.deltas) > 0 {
		for _, d := range r.deltas {
			ch <- StreamEvent{Type: StreamTextDelta, Content: d}
		}
		if resp.Content == "" {
			resp.Content = strings.Join(r.deltas, "")
		}
	} else if resp.Content != "" {
		ch <- StreamEvent{Type: StreamTextDelta, Content: resp.Content}
	}
	return resp, nil
}

// countCalls returns how many recorded requests satisfy match.
func (p *scriptProvider) countCalls(match func(ChatRequest) bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, req := range p.calls {
		if match(req) {
			n++
		}
	}
	return n
}

// callsMatching returns the recorded requests satisfying match, in order.
func (p *scriptProvider) callsMatching(match func(ChatRequest) bool) []ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []ChatRequest
	for _, req := range p.calls {
		if match(req) {
			out = append(out, req)
		}
	}
	return out
}

func summarizeRequest(req ChatRequest) string {
	parts := make([]string, 0, len(req.Messages))
	for _, m := range req.Messages {
		parts = append(parts, m.Role+":"+clipRunes(m.Content, 40))
	}
	return strings.Join(parts, " | ")
}

// --- request matchers ---

func sysContains(sub string) func(ChatRequest) bool {
	return func(req ChatRequest) bool {
		return len(req.Messages) > 0 &&
			req.Messages[0].Role == "system" &&
			strings.Contains(req.Messages[0].Content, sub)
	}
}

func userContains(sub string) func(ChatRequest) bool {
	return func(req ChatRequest) bool {
		for i := len(req.Messages) - 1; i >= 0; i-- {
			if req.Messages[i].Role == "user" {
				return strings.Contains(req.Messages[i].Content, sub)
			}
		}
		return false
	}
}

func allOf(matchers ...func(ChatRequest) bool) func(ChatRequest) bool {
	return func(req ChatRequest) bool {
		for _, m := range matchers {
			if !m(req) {
				return false
			}
		}
		return true
	}
}

// planRule scripts the planner call.
func planRule(planJSON string) *scriptRule {
	return &scriptRule{
		match: sysContains("智能任务规划器"),
		resp:  ChatResponse{Content: planJSON},
	}
}

// --- test catalog ---

// testRoles is a compact three-specialist catalog so orchestration tests do
// not depend on the built-in prompts.
func testRoles() *RoleSet {
	return NewRoleSet(
		Role{
			ID:           "policy",
			Name:         "政策专家",
			Icon:         "📜",
			SystemPrompt: "你是政策专家。",
			Tools:        []string{"search_policy"},
			Keywords:     []string{"限购", "政策"},
		},
		Role{
			ID:           "market",
			Name:         "市场分析师",
			Icon:         "📊",
			SystemPrompt: "你是市场分析师。",
			Tools:        []string{"query_market"},
			Keywords:     []string{"房价"},
		},
		Role{
			ID:           "advisor",
			Name:         "购房顾问",
			Icon:         "🏠",
			SystemPrompt: "你是购房顾问。",
			Keywords:     []string{"建议"},
			Synthesizer:  true,
		},
	)
}

func newTestEngine(p Provider, tools *ToolRegistry, store ContextStore, opts ...EngineOption) *Engine {
	return NewEngine(testRoles(), nil, p, tools, store, opts...)
}

// runTestTurn drives one Process call to completion and collects its events.
func runTestTurn(t *testing.T, e *Engine, req Request) ([]Event, error) {
	t.Helper()
	ch := make(chan Event, 256)
	errCh := make(chan error, 1)
	go func() { errCh <- e.Process(context.Background(), req, ch) }()

	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events, <-errCh
}

func eventsOfType(events []Event, typ EventType) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func eventTypes(events []Event) []EventType {
	types := make([]EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

// --- tool stub ---

type stubTool struct {
	mu     sync.Mutex
	defs   []ToolDefinition
	result ToolResult
	err    error
	names  []string
	args   []string
}

func (s *stubTool) Definitions() []ToolDefinition { return s.defs }

func (s *stubTool) Execute(_ context.Context, name string, args json.RawMessage) (ToolResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, name)
	s.args = append(s.args, string(args))
	return s.result, s.err
}

func (s *stubTool) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.names)
}
