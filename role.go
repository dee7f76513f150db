package counsel

import "strings"

// Built-in specialist ids.
const (
	RoleFinancialAdvisor   = "financial_advisor"
	RolePolicyExpert       = "policy_expert"
	RoleMarketAnalyst      = "market_analyst"
	RolePurchaseConsultant = "purchase_consultant"
)

// Role is a static specialist profile: a behavioral prompt plus the tool
// names it may call. Exactly one role in a catalog is the synthesizer, the
// role invoked implicitly to merge multi-specialist results.
type Role struct {
	ID           string
	Name         string
	Icon         string
	SystemPrompt string
	// Tools lists allowed tool names. Names with no registered tool are
	// skipped at call time, so a catalog may declare capabilities the host
	// has not provided.
	Tools []string
	// Keywords are trigger phrases for lightweight role matching.
	Keywords []string
	// Synthesizer marks the role used for implicit synthesis.
	Synthesizer bool
}

// MatchesInput reports whether any trigger keyword occurs in the input.
// Matching is case- and width-insensitive.
func (r Role) MatchesInput(input string) bool {
	folded := normalizeForMatch(input)
	for _, kw := range r.Keywords {
		if kw != "" && strings.Contains(folded, normalizeForMatch(kw)) {
			return true
		}
	}
	return false
}

// RoleSet is a constructed specialist catalog. It replaces any notion of a
// global role table: planners and engines receive the set they should use.
type RoleSet struct {
	roles []Role
	byID  map[string]Role
}

// NewRoleSet builds a catalog from the given roles, preserving order.
// Duplicate ids keep the last definition.
func NewRoleSet(roles ...Role) *RoleSet {
	s := &RoleSet{byID: make(map[string]Role, len(roles))}
	for _, r := range roles {
		if _, seen := s.byID[r.ID]; !seen {
			s.roles = append(s.roles, r)
		} else {
			for i := range s.roles {
				if s.roles[i].ID == r.ID {
					s.roles[i] = r
					break
				}
			}
		}
		s.byID[r.ID] = r
	}
	return s
}

// Get returns the role with the given id.
func (s *RoleSet) Get(id string) (Role, bool) {
	r, ok := s.byID[id]
	return r, ok
}

// All returns every role in catalog order.
func (s *RoleSet) All() []Role {
	out := make([]Role, len(s.roles))
	copy(out, s.roles)
	return out
}

// Specialists returns the non-synthesizer roles in catalog order.
func (s *RoleSet) Specialists() []Role {
	var out []Role
	for _, r := range s.roles {
		if !r.Synthesizer {
			out = append(out, r)
		}
	}
	return out
}

// Synthesizer returns the role marked as synthesizer, or the last role when
// none is marked (a catalog without a synthesizer is a configuration bug,
// but the engine still needs a deterministic answer).
func (s *RoleSet) Synthesizer() Role {
	for _, r := range s.roles {
		if r.Synthesizer {
			return r
		}
	}
	if len(s.roles) > 0 {
		return s.roles[len(s.roles)-1]
	}
	return Role{}
}

// MatchKeywords returns the roles whose trigger keywords occur in the input,
// in catalog order.
func (s *RoleSet) MatchKeywords(input string) []Role {
	var out []Role
	for _, r := range s.roles {
		if r.MatchesInput(input) {
			out = append(out, r)
		}
	}
	return out
}

// DefaultRoles returns the built-in four-specialist advisory catalog.
func DefaultRoles() *RoleSet {
	return NewRoleSet(
		Role{
			ID:   RoleFinancialAdvisor,
			Name: "财务顾问",
			Icon: "💰",
			SystemPrompt: `你是一位专业的购房财务顾问，擅长贷款方案设计、税费测算和购房成本分析。

你的职责：
- 计算房贷月供（等额本息/等额本金）、首付金额和总利息
- 估算契税、增值税、个税等交易税费
- 分析购房总成本，评估家庭还款压力，给出预算建议

回答要求：
- 用具体数字说话，先给结论，再给简要的计算依据
- 涉及计算时优先调用工具，不要凭记忆估算
- 月供收入比超过 50% 时必须明确提示风险`,
			Tools:    []string{"calc_loan", "calc_tax", "calc_total_cost", "assess_pressure"},
			Keywords: []string{"贷款", "月供", "利率", "首付", "税费", "契税", "成本", "压力", "预算"},
		},
		Role{
			ID:   RolePolicyExpert,
			Name: "政策专家",
			Icon: "📜",
			SystemPrompt: `你是一位房产政策专家，熟悉限购限贷、公积金和购房资格相关政策。

你的职责：
- 解答限购、限贷、购房资格、落户与社保要求等政策问题
- 说明公积金贷款额度、使用条件和办理流程
- 介绍契税减免等税收优惠政策的适用条件

回答要求：
- 优先调用工具检索政策原文，注明适用城市
- 政策存在时效性或不确定性时明确说明，并提醒以官方最新发布为准
- 不编造具体的数字和条文`,
			Tools:    []string{"search_policy", "search_faq", "search_guide"},
			Keywords: []string{"限购", "政策", "公积金", "资格", "社保", "落户", "限贷", "优惠"},
		},
		Role{
			ID:   RoleMarketAnalyst,
			Name: "市场分析师",
			Icon: "📊",
			SystemPrompt: `你是一位房产市场分析师，擅长解读市场数据和房价走势。

你的职责：
- 分析城市和区域的均价、成交量、库存水平
- 对比不同区域的性价比和配套情况
- 解读价格走势，客观描述市场冷热

回答要求：
- 结论必须有数据支撑，优先调用工具查询最新数据
- 给出同比变化等关键指标，说明数据时间范围
- 避免"肯定会涨/跌"之类的绝对化断言`,
			Tools:    []string{"query_market", "query_price_trend", "compare_districts", "search_news"},
			Keywords: []string{"房价", "走势", "行情", "区域", "对比", "时机", "库存", "均价"},
		},
		Role{
			ID:   RolePurchaseConsultant,
			Name: "购房顾问",
			Icon: "🏠",
			SystemPrompt: `你是一位资深购房顾问，负责为用户提供综合购房建议，并在需要时整合其他专家的分析结果。

你的职责：
- 综合财务、政策、市场等多方信息，给出清晰可执行的建议
- 解答购房流程、选房技巧、谈判注意事项等通用问题
- 当其他专家已给出分析时，做提炼和整合，不重复细节

回答要求：
- 结构化输出：核心结论、关键要点、建议的下一步行动
- 语言亲切专业，站在用户立场权衡利弊
- 信息不足时先了解用户的预算、城市和购房目的`,
			Tools: []string{
				"calc_loan", "calc_tax", "calc_total_cost", "assess_pressure",
				"search_policy", "search_faq", "search_guide",
				"query_market", "query_price_trend", "compare_districts", "search_news",
			},
			Keywords:    []string{"建议", "推荐", "综合", "怎么买", "流程", "选房", "规划"},
			Synthesizer: true,
		},
	)
}
