package counsel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Mode selects the orchestration protocol for a turn.
type Mode string

const (
	// ModeStandard runs the planned roles as a dependency DAG.
	ModeStandard Mode = "standard"
	// ModeDiscussion runs the planned roles as a moderated multi-round
	// discussion. Falls back to standard when the plan has a single node.
	ModeDiscussion Mode = "discussion"
)

// Request describes one user turn.
type Request struct {
	SessionID string
	Input     string
	Mode      Mode
}

// emitFn delivers one event to the turn's consumer. Implementations return
// a non-nil error only when the turn should stop (consumer gone).
type emitFn func(Event) error

// Engine orchestrates a turn: plan the roles, schedule them over their
// dependency DAG, run tool calls, synthesize, and persist the conversation.
// One Engine serves many sessions concurrently; per-turn state lives on the
// stack of Process.
type Engine struct {
	roles    *RoleSet
	planner  *Planner
	provider Provider
	tools    *ToolRegistry
	store    ContextStore

	logger              *slog.Logger
	maxHistoryTurns     int
	maxToolRounds       int
	maxDiscussionRounds int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the structured logger (default: discard).
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithMaxHistoryTurns bounds how many past exchanges each role sees
// (default: 5 turns, i.e. 10 messages).
func WithMaxHistoryTurns(n int) EngineOption {
	return func(e *Engine) { e.maxHistoryTurns = n }
}

// WithMaxToolRounds bounds consecutive tool-calling rounds within one node.
// Exceeding the bound truncates with the text accumulated so far; it never
// fails the turn (default: 5).
func WithMaxToolRounds(n int) EngineOption {
	return func(e *Engine) { e.maxToolRounds = n }
}

// WithMaxDiscussionRounds bounds discussion mode, counting the initial
// statement round (default: 5).
func WithMaxDiscussionRounds(n int) EngineOption {
	return func(e *Engine) { e.maxDiscussionRounds = n }
}

// NewEngine builds an engine. roles, planner, tools, and store may be nil:
// nil roles means DefaultRoles, nil planner means a planner over the same
// provider and roles, nil tools means an empty registry, and nil store
// disables persistence (every turn starts fresh).
func NewEngine(roles *RoleSet, planner *Planner, provider Provider, tools *ToolRegistry, store ContextStore, opts ...EngineOption) *Engine {
	e := &Engine{
		roles:               roles,
		planner:             planner,
		provider:            provider,
		tools:               tools,
		store:               store,
		maxHistoryTurns:     5,
		maxToolRounds:       5,
		maxDiscussionRounds: 5,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = nopLogger
	}
	if e.roles == nil {
		e.roles = DefaultRoles()
	}
	if e.tools == nil {
		e.tools = NewToolRegistry()
	}
	if e.planner == nil {
		e.planner = NewPlanner(e.provider, e.roles, WithPlannerLogger(e.logger))
	}
	return e
}

// Process handles one user turn, emitting the event stream on ch. The
// channel is closed exactly once on every path. A failed turn ends with a
// single error event instead of done; the same failure is also returned.
// In-node failures (a role or tool going wrong) are absorbed into the
// stream and do not fail the turn.
func (e *Engine) Process(ctx context.Context, req Request, ch chan<- Event) error {
	// safeCloseCh closes the event channel exactly once. All exit paths use
	// this instead of raw close(ch), preventing double-close panics if a
	// caller-side wrapper also closes the channel.
	var closeOnce sync.Once
	safeCloseCh := func() {
		closeOnce.Do(func() {
			defer func() { recover() }()
			close(ch)
		})
	}
	defer safeCloseCh()

	emit := func(ev Event) error {
		select {
		case ch <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	input := NormalizeInput(req.Input)
	e.logger.Info("处理用户输入",
		"session", req.SessionID,
		"mode", req.Mode,
		"input", clipRunes(input, 50))

	cc := e.loadContext(ctx, req.SessionID)
	cc.AddMessage("user", input)

	if err := e.runTurn(ctx, input, req.Mode, cc, emit); err != nil {
		me := AsModelError(err)
		e.logger.Error("处理用户输入失败", "session", req.SessionID, "error", err)
		_ = emit(Event{Type: EventError, Code: me.Code, Message: me.Message})
		return err
	}
	return nil
}

// runTurn drives a turn to done. Every returned error is turn-terminal.
func (e *Engine) runTurn(ctx context.Context, input string, mode Mode, cc *ConversationContext, emit emitFn) error {
	if err := emit(Event{Type: EventThinkingStart}); err != nil {
		return err
	}
	if err := emit(Event{Type: EventThinkingStep, StepType: StepPlanning, Content: "正在分析您的问题..."}); err != nil {
		return err
	}

	plan := e.planner.Plan(ctx, input)
	e.logger.Info("执行计划", "roles", plan.RoleIDs(), "reason", plan.Reason)

	names := make([]string, 0, len(plan.Nodes))
	for _, r := range plan.Roles(e.roles) {
		names = append(names, r.Name)
	}
	if err := emit(Event{
		Type:     EventThinkingStep,
		StepType: StepPlanning,
		Content:  "已确定由 " + strings.Join(names, ", ") + " 为您解答",
	}); err != nil {
		return err
	}

	if mode == ModeDiscussion && len(plan.Nodes) > 1 {
		if err := e.runDiscussion(ctx, input, plan, cc, emit); err != nil {
			return err
		}
	} else {
		if err := e.runDAG(ctx, input, plan, cc, emit); err != nil {
			return err
		}
	}

	e.saveContext(ctx, cc)
	return emit(Event{Type: EventDone})
}

// runDAG schedules the plan round by round. A round with one ready node runs
// serially (silent unless it is the turn's final output); a round with
// several runs them concurrently with buffered events, joined before the
// next round so later prompts see every completed result.
func (e *Engine) runDAG(ctx context.Context, input string, plan Plan, cc *ConversationContext, emit emitFn) error {
	cc.RoleResults.Clear()
	completed := make(map[string]bool, len(plan.Nodes))
	total := len(plan.Nodes)
	multiExpert := total > 1

	for {
		ready := plan.ReadyNodes(completed)
		if len(ready) == 0 {
			if len(completed) < total {
				e.logger.Warn("执行计划未完成", "completed", len(completed), "total", total)
			}
			break
		}
		lastBatch := len(completed)+len(ready) == total

		if len(ready) == 1 {
			node := ready[0]
			if multiExpert && !lastBatch {
				if err := e.executeNodeSilent(ctx, node, input, cc, emit); err != nil {
					return err
				}
			} else {
				if err := e.executeNodeStreaming(ctx, node, input, cc, emit); err != nil {
					return err
				}
			}
			completed[node.RoleID] = true
			continue
		}

		e.logger.Info("并行执行角色", "count", len(ready), "roles", planNodeIDs(ready))
		for _, node := range ready {
			role, ok := e.roles.Get(node.RoleID)
			if !ok {
				continue
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
		}

		// Fan out. Nodes in one round never write shared state; results are
		// applied at the join below, in declaration order.
		outcomes := make([]nodeOutcome, len(ready))
		var wg sync.WaitGroup
		wg.Add(len(ready))
		for i, node := range ready {
			go func(i int, node PlanNode) {
				defer wg.Done()
				outcomes[i] = e.executeNodeBuffered(ctx, node, input, cc)
			}(i, node)
		}
		wg.Wait()

		for i, node := range ready {
			out := outcomes[i]
			cc.RoleResults.Set(out.roleID, out.content)
			for _, ev := range out.events {
				if err := emit(ev); err != nil {
					return err
				}
			}
			if err := emit(Event{Type: EventRoleResult, Role: out.roleID, Content: out.content}); err != nil {
				return err
			}
			completed[node.RoleID] = true
		}
	}

	synth := e.roles.Synthesizer()
	if cc.RoleResults.Len() > 1 && !cc.RoleResults.Has(synth.ID) {
		e.logger.Info("多角色结果，自动调用整合", "synthesizer", synth.ID)
		if err := emit(Event{
			Type:     EventThinkingStep,
			StepType: StepSynthesizing,
			Content:  "正在整合各专家意见，生成综合建议...",
		}); err != nil {
			return err
		}
		if err := emit(Event{
			Type:      EventRoleStart,
			Role:      synth.ID,
			Name:      synth.Name,
			Icon:      synth.Icon,
			IsSummary: true,
		}); err != nil {
			return err
		}
		summary, err := e.synthesize(ctx, synth, input, cc, emit)
		if err != nil {
			return err
		}
		cc.RoleResults.Set(synth.ID, summary)
		if err := emit(Event{
			Type:      EventRoleResult,
			Role:      synth.ID,
			Content:   summary,
			IsSummary: true,
		}); err != nil {
			return err
		}
	}

	// The canonical answer for history: the synthesizer's result when
	// present, else the most recently completed specialist's.
	if cc.RoleResults.Len() > 0 {
		final, ok := cc.RoleResults.Get(synth.ID)
		if !ok {
			last, _ := cc.RoleResults.Last()
			final = last.Content
		}
		cc.AddMessage("assistant", final)
	}
	return nil
}

const synthesisPromptTemplate = `基于以下各专家的分析，为用户提供简洁的综合建议。

用户问题：%s

各专家分析：
%s

请综合以上信息，给出：
1. 核心结论（一句话总结）
2. 关键要点（3-5条）
3. 建议下一步行动

注意：不要重复专家已经说过的详细内容，只做提炼和整合。

最后，在回复结束后输出 2-3 个相关的后续问题供用户选择，格式如下：

【推荐问题】
- 问题1
- 问题2
- 问题3`

// synthesize streams one no-tools call that condenses every recorded result
// into the turn's combined answer, relaying deltas live.
func (e *Engine) synthesize(ctx context.Context, synth Role, input string, cc *ConversationContext, emit emitFn) (string, error) {
	sections := e.renderRoleResults(cc)
	prompt := fmt.Sprintf(synthesisPromptTemplate, input, strings.Join(sections, "\n"))

	resp, err := e.streamChat(ctx, ChatRequest{
		Messages: []ChatMessage{
			SystemMessage(synth.SystemPrompt),
			UserMessage(prompt),
		},
		Temperature: roleTemperature,
	}, func(delta string) error {
		return emit(Event{Type: EventContentDelta, Role: synth.ID, Delta: delta})
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (e *Engine) loadContext(ctx context.Context, sessionID string) *ConversationContext {
	if e.store != nil {
		cc, err := e.store.Load(ctx, sessionID)
		if err != nil {
			e.logger.Warn("加载上下文失败", "session", sessionID, "error", err)
		} else if cc != nil {
			return cc
		}
	}
	e.logger.Debug("创建新上下文", "session", sessionID)
	return NewConversationContext(sessionID)
}

// saveContext persists the context. Failures are logged and swallowed so a
// broken store never costs the user an already-generated answer.
func (e *Engine) saveContext(ctx context.Context, cc *ConversationContext) {
	if e.store == nil {
		return
	}
	if err := e.store.Save(ctx, cc); err != nil {
		e.logger.Warn("保存上下文失败", "session", cc.SessionID, "error", err)
	}
}

// ClearContext removes a session's stored context, reporting whether one
// existed. Store failures report false.
func (e *Engine) ClearContext(ctx context.Context, sessionID string) bool {
	if e.store == nil {
		return false
	}
	existed, err := e.store.Clear(ctx, sessionID)
	if err != nil {
		e.logger.Warn("清除上下文失败", "session", sessionID, "error", err)
		return false
	}
	if existed {
		e.logger.Info("清除上下文", "session", sessionID)
	}
	return existed
}

func planNodeIDs(nodes []PlanNode) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.RoleID
	}
	return ids
}

// nopLogger is a logger that discards all output. Used when WithLogger is not set.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
