package counsel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// PlanNode is one step of an execution plan: a role to run and the roles
// whose results it needs first. An empty DependsOn means the node is ready
// immediately.
type PlanNode struct {
	RoleID    string   `json:"role_id"`
	DependsOn []string `json:"depends_on"`
}

// Plan is a small DAG of roles produced by the Planner. Node order is the
// declaration order from the planning reply and is preserved by scheduling.
type Plan struct {
	Nodes  []PlanNode `json:"nodes"`
	Reason string     `json:"reason"`
}

// RoleIDs returns the planned role ids in declaration order.
func (p Plan) RoleIDs() []string {
	ids := make([]string, len(p.Nodes))
	for i, n := range p.Nodes {
		ids[i] = n.RoleID
	}
	return ids
}

// Roles resolves the planned nodes against a catalog, dropping unknown ids.
func (p Plan) Roles(catalog *RoleSet) []Role {
	var out []Role
	for _, n := range p.Nodes {
		if r, ok := catalog.Get(n.RoleID); ok {
			out = append(out, r)
		}
	}
	return out
}

// ReadyNodes returns the nodes whose dependencies are all completed and that
// are not themselves completed, in declaration order.
func (p Plan) ReadyNodes(completed map[string]bool) []PlanNode {
	var ready []PlanNode
	for _, n := range p.Nodes {
		if completed[n.RoleID] {
			continue
		}
		ok := true
		for _, dep := range n.DependsOn {
			if !completed[dep] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, n)
		}
	}
	return ready
}

// plannerSystemPrompt instructs the model to map a question onto specialist
// roles and dependency edges. Kept in sync with the DefaultRoles catalog.
const plannerSystemPrompt = `你是一个智能任务规划器，负责分析用户的购房咨询问题，决定需要哪些专家角色来回答，以及它们之间的执行依赖关系。

## 可用的专家角色

1. financial_advisor（财务顾问）
   - 职责：贷款计算、月供计算、税费估算、购房成本分析、还款压力评估
   - 适用问题：贷款怎么算、月供多少、要交多少税、买房要花多少钱

2. policy_expert（政策专家）
   - 职责：限购限贷政策、公积金政策、购房资格、税收优惠政策
   - 适用问题：限购吗、能买几套、公积金能贷多少、需要什么条件

3. market_analyst（市场分析师）
   - 职责：房价走势、区域对比、市场行情、购房时机判断
   - 适用问题：房价多少、哪个区好、现在能买吗、会涨还是跌

4. purchase_consultant（购房顾问）
   - 职责：综合建议、整合多方信息、购房流程指导
   - 适用问题：综合分析、给我建议、怎么买房
   - 特殊规则：当需要整合多个专家的结果时，purchase_consultant 应该依赖这些专家

## 依赖关系判断规则

1. 无依赖（可并行）：两个角色的分析相互独立，不需要对方的结果
   - 例：政策专家查限购 + 市场分析师查房价 → 互不依赖，可并行

2. 有依赖（需串行）：一个角色需要另一个角色的结果才能工作
   - 例：财务顾问计算贷款需要政策专家提供的利率信息 → 财务依赖政策
   - 例：购房顾问整合建议需要其他专家的分析结果 → 顾问依赖其他专家

3. 整合场景：当有多个专家参与时，通常需要 purchase_consultant 来整合
   - purchase_consultant 应该依赖所有其他参与的专家

## 输出格式

请直接返回 JSON，不要添加其他说明：
{
  "nodes": [
    {"role_id": "角色ID", "depends_on": ["依赖的角色ID列表，无依赖则为空数组"]}
  ],
  "reason": "简要说明规划理由"
}

## 示例

用户问题："南宁限购吗"
{
  "nodes": [
    {"role_id": "policy_expert", "depends_on": []}
  ],
  "reason": "单一政策问题，只需政策专家"
}

用户问题："外地人在南宁买房要准备多少钱"
{
  "nodes": [
    {"role_id": "policy_expert", "depends_on": []},
    {"role_id": "financial_advisor", "depends_on": []}
  ],
  "reason": "政策专家查购房资格，财务顾问算费用，两者独立可并行"
}

用户问题："根据南宁公积金政策帮我算下能贷多少"
{
  "nodes": [
    {"role_id": "policy_expert", "depends_on": []},
    {"role_id": "financial_advisor", "depends_on": ["policy_expert"]}
  ],
  "reason": "财务计算需要政策专家提供的公积金额度信息，需串行"
}

用户问题："我想在南宁买150万的房子，月入1.5万，现在是好时机吗"
{
  "nodes": [
    {"role_id": "policy_expert", "depends_on": []},
    {"role_id": "financial_advisor", "depends_on": []},
    {"role_id": "market_analyst", "depends_on": []},
    {"role_id": "purchase_consultant", "depends_on": ["policy_expert", "financial_advisor", "market_analyst"]}
  ],
  "reason": "综合问题：政策、财务、市场三者独立可并行，购房顾问最后整合"
}

## 注意事项

1. 尽量精简角色，不要过度调用
2. 能并行就并行，减少等待时间
3. 只有真正需要整合时才加入 purchase_consultant
4. 简单问题通常只需要 1 个角色`

// Planner turns a free-text question into an executable Plan. Plan never
// returns an error: every failure degrades to a single-node plan running the
// catalog's synthesizer, with the failure recorded in Plan.Reason.
type Planner struct {
	provider Provider
	roles    *RoleSet
	prompt   string
	logger   *slog.Logger
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithPlannerPrompt replaces the planning system prompt. Hosts with a custom
// role catalog should supply a prompt describing their own roles.
func WithPlannerPrompt(prompt string) PlannerOption {
	return func(p *Planner) { p.prompt = prompt }
}

// WithPlannerLogger sets the structured logger (default: discard).
func WithPlannerLogger(l *slog.Logger) PlannerOption {
	return func(p *Planner) { p.logger = l }
}

// NewPlanner builds a planner over the given provider and role catalog.
func NewPlanner(provider Provider, roles *RoleSet, opts ...PlannerOption) *Planner {
	p := &Planner{
		provider: provider,
		roles:    roles,
		prompt:   plannerSystemPrompt,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = nopLogger
	}
	return p
}

// Plan analyses the user input and returns an execution plan.
func (p *Planner) Plan(ctx context.Context, input string) Plan {
	input = strings.TrimSpace(input)
	if input == "" {
		return p.defaultPlan("空输入，使用默认角色")
	}

	resp, err := p.provider.Chat(ctx, ChatRequest{
		Messages: []ChatMessage{
			SystemMessage(p.prompt),
			UserMessage("用户问题：" + input),
		},
		// Low temperature keeps the plan deterministic.
		Temperature: 0.1,
	})
	if err != nil {
		var me *ModelError
		if errors.As(err, &me) {
			p.logger.Error("规划失败", "code", me.Code, "error", me.Message)
			return p.defaultPlan("LLM 调用失败，使用默认角色: " + me.Message)
		}
		p.logger.Error("规划失败", "error", err)
		return p.defaultPlan(fmt.Sprintf("规划失败，使用默认角色: %v", err))
	}

	return p.parsePlan(resp.Content)
}

// parsePlan extracts and validates the JSON plan from a model reply.
func (p *Planner) parsePlan(content string) Plan {
	raw, ok := extractJSONObject(content)
	if !ok {
		p.logger.Warn("规划响应中未找到 JSON", "content", content)
		return p.defaultPlan("解析失败，使用默认角色: no JSON object in response")
	}

	var payload struct {
		Nodes []struct {
			RoleID    string   `json:"role_id"`
			DependsOn []string `json:"depends_on"`
		} `json:"nodes"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		p.logger.Warn("解析执行计划失败", "error", err, "content", content)
		return p.defaultPlan(fmt.Sprintf("解析失败，使用默认角色: %v", err))
	}

	var nodes []PlanNode
	for _, n := range payload.Nodes {
		if _, known := p.roles.Get(n.RoleID); !known {
			continue
		}
		deps := make([]string, 0, len(n.DependsOn))
		for _, dep := range n.DependsOn {
			if _, known := p.roles.Get(dep); known {
				deps = append(deps, dep)
			}
		}
		nodes = append(nodes, PlanNode{RoleID: n.RoleID, DependsOn: deps})
	}
	if len(nodes) == 0 {
		return p.defaultPlan("解析结果为空，使用默认角色")
	}

	if !validDAG(nodes) {
		p.logger.Warn("检测到循环依赖，清除所有依赖")
		for i := range nodes {
			nodes[i].DependsOn = nil
		}
	}

	return Plan{Nodes: nodes, Reason: payload.Reason}
}

func (p *Planner) defaultPlan(reason string) Plan {
	return Plan{
		Nodes:  []PlanNode{{RoleID: p.roles.Synthesizer().ID}},
		Reason: reason,
	}
}

// extractJSONObject returns the outermost {...} span of s, mirroring a
// greedy first-brace-to-last-brace match.
func extractJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// validDAG reports whether the dependency graph is acyclic, via Kahn's
// topological sort. Edges to ids outside the node set are ignored. A plan
// that names the same role twice also fails validation.
func validDAG(nodes []PlanNode) bool {
	ids := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		ids[n.RoleID] = true
	}
	inDegree := make(map[string]int, len(nodes))
	graph := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		if _, ok := inDegree[n.RoleID]; !ok {
			inDegree[n.RoleID] = 0
		}
		for _, dep := range n.DependsOn {
			if ids[dep] {
				graph[dep] = append(graph[dep], n.RoleID)
				inDegree[n.RoleID]++
			}
		}
	}

	var queue []string
	seeded := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if inDegree[n.RoleID] == 0 && !seeded[n.RoleID] {
			queue = append(queue, n.RoleID)
			seeded[n.RoleID] = true
		}
	}
	visited := 0
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range graph[current] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	return visited == len(nodes)
}
