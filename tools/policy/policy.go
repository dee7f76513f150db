// Package policy provides the policy knowledge tools: search_policy,
// search_faq and search_guide over a knowledge.Base, with best-effort
// caching of lookups.
package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nevindra/counsel"
	"github.com/nevindra/counsel/knowledge"
)

// Tool answers policy, FAQ and purchase-guide lookups.
type Tool struct {
	kb     *knowledge.Base
	cache  counsel.Cache
	logger *slog.Logger
}

// Option configures the Tool.
type Option func(*Tool)

// WithCache enables caching of lookup results. Cache failures are logged and
// the lookup proceeds uncached.
func WithCache(c counsel.Cache) Option {
	return func(t *Tool) { t.cache = c }
}

// WithLogger sets the structured logger (default: discard).
func WithLogger(l *slog.Logger) Option {
	return func(t *Tool) { t.logger = l }
}

// New creates the policy tool over a knowledge base.
func New(kb *knowledge.Base, opts ...Option) *Tool {
	t := &Tool{kb: kb, logger: slog.New(discardHandler{})}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Tool) Definitions() []counsel.ToolDefinition {
	return []counsel.ToolDefinition{
		{
			Name:        "search_policy",
			Description: "搜索购房相关政策文档，包括限购限贷政策、税费政策、公积金政策等",
			Parameters: []counsel.ToolParameter{
				{Name: "query", Type: "string", Description: "搜索关键词或问题，如：南宁限购政策、首付比例、公积金贷款", Required: true},
				{Name: "city", Type: "string", Description: "城市名称，用于过滤特定城市的政策", Enum: []string{"南宁", "柳州"}},
				{Name: "top_k", Type: "integer", Description: "返回结果数量，默认3条"},
			},
		},
		{
			Name:        "search_faq",
			Description: "搜索购房常见问题解答，包括贷款、税费、流程、资格等问题",
			Parameters: []counsel.ToolParameter{
				{Name: "query", Type: "string", Description: "搜索问题，如：公积金贷款额度、首付多少、买房流程", Required: true},
				{Name: "city", Type: "string", Description: "城市名称，用于过滤特定城市的问题", Enum: []string{"南宁", "柳州"}},
				{Name: "category", Type: "string", Description: "问题分类", Enum: []string{"贷款", "税费", "流程", "购房资格", "公积金", "首付", "利率", "还款压力"}},
				{Name: "top_k", Type: "integer", Description: "返回结果数量，默认3条"},
			},
		},
		{
			Name:        "search_guide",
			Description: "检索购房流程指南，回答从看房到交房的各环节问题",
			Parameters: []counsel.ToolParameter{
				{Name: "query", Type: "string", Description: "用户问题，如：买房流程、签合同注意事项、交房验收", Required: true},
				{Name: "stage", Type: "string", Description: "购房阶段，用于过滤特定阶段的内容", Enum: []string{"看房", "签约", "贷款", "过户", "交房", "装修"}},
				{Name: "top_k", Type: "integer", Description: "返回结果数量，默认3条"},
			},
		},
	}
}

func (t *Tool) Execute(ctx context.Context, name string, args json.RawMessage) (counsel.ToolResult, error) {
	def, ok := findDef(t.Definitions(), name)
	if !ok {
		return counsel.ToolResult{Error: "工具 " + name + " 不存在"}, nil
	}
	if err := def.ValidateArgs(args); err != nil {
		return counsel.ToolResult{Error: err.Error()}, nil
	}

	var params struct {
		Query    string `json:"query"`
		City     string `json:"city"`
		Category string `json:"category"`
		Stage    string `json:"stage"`
		TopK     int    `json:"top_k"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return counsel.ToolResult{Error: fmt.Sprintf("参数格式错误: %v", err)}, nil
	}
	if params.TopK <= 0 {
		params.TopK = 3
	}

	extras := map[string]string{"top_k": fmt.Sprint(params.TopK)}
	if params.Category != "" {
		extras["category"] = params.Category
	}
	if params.Stage != "" {
		extras["stage"] = params.Stage
	}
	key := counsel.CacheKey(name, params.City, params.Query, extras)
	if cached, ok := t.cacheGet(ctx, key); ok {
		return counsel.ToolResult{Content: string(cached)}, nil
	}

	var payload any
	switch name {
	case "search_policy":
		payload = t.searchPolicy(params.Query, params.City, params.TopK)
	case "search_faq":
		payload = t.searchFAQ(params.Query, params.City, params.Category, params.TopK)
	case "search_guide":
		payload = t.searchGuide(params.Query, params.Stage, params.TopK)
	}

	content, err := json.Marshal(payload)
	if err != nil {
		return counsel.ToolResult{Error: fmt.Sprintf("编码结果失败: %v", err)}, nil
	}
	t.cacheSet(ctx, key, content)
	return counsel.ToolResult{Content: string(content)}, nil
}

// policyHit is one formatted search result. Content is truncated so a model
// prompt never inflates past reason.
type policyHit struct {
	Title     string   `json:"title"`
	City      string   `json:"city,omitempty"`
	Content   string   `json:"content"`
	Relevance int      `json:"relevance"`
	Keywords  []string `json:"keywords,omitempty"`
}

type faqHit struct {
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Category  string `json:"category,omitempty"`
	City      string `json:"city,omitempty"`
	Relevance int    `json:"relevance"`
}

func (t *Tool) searchPolicy(query, city string, topK int) any {
	hits := t.kb.SearchPolicy(query, city, topK)
	if len(hits) == 0 {
		return searchEnvelope{
			Success: true, Query: query, City: city,
			Summary: "未找到与「" + query + "」相关的政策文档" + citySuffix(city),
		}
	}
	results := make([]policyHit, len(hits))
	for i, h := range hits {
		results[i] = policyHit{
			Title:     h.Title,
			City:      h.City,
			Content:   clip(h.Content, 800),
			Relevance: relevance(h.Score),
			Keywords:  h.Keywords,
		}
	}
	summary := fmt.Sprintf("找到 %d 条相关政策。", len(hits))
	if results[0].City != "" {
		summary += "最相关的是" + results[0].City + "的政策文档。"
	}
	return searchEnvelope{
		Success: true, Query: query, City: city,
		Results: results, Count: len(hits), Summary: summary,
	}
}

func (t *Tool) searchFAQ(query, city, category string, topK int) any {
	hits := t.kb.SearchFAQ(query, city, category, topK)
	if len(hits) == 0 {
		return searchEnvelope{
			Success: true, Query: query, City: city, Category: category,
			Summary: "未找到与「" + query + "」相关的常见问题",
		}
	}
	results := make([]faqHit, len(hits))
	for i, h := range hits {
		results[i] = faqHit{
			Question:  h.Question,
			Answer:    h.Answer,
			Category:  h.Category,
			City:      h.City,
			Relevance: relevance(h.Score),
		}
	}
	return searchEnvelope{
		Success: true, Query: query, City: city, Category: category,
		Results: results, Count: len(hits),
		Summary: fmt.Sprintf("找到 %d 个相关问题。最相关的问题是：「%s」", len(hits), clip(results[0].Question, 30)),
		// The best answer rides along so the model can quote it directly.
		BestAnswer: results[0].Answer,
	}
}

func (t *Tool) searchGuide(query, stage string, topK int) any {
	searchQuery := query
	if stage != "" {
		searchQuery = stage + " " + query
	}
	hits := t.kb.SearchGuide(searchQuery, topK)
	if len(hits) == 0 {
		summary := "未找到与「" + query + "」相关的购房指南"
		if stage != "" {
			summary += "（" + stage + "阶段）"
		}
		return searchEnvelope{Success: true, Query: query, Stage: stage, Summary: summary}
	}
	results := make([]policyHit, len(hits))
	for i, h := range hits {
		results[i] = policyHit{
			Title:     h.Title,
			Content:   clip(h.Content, 800),
			Relevance: relevance(h.Score),
			Keywords:  h.Keywords,
		}
	}
	summary := fmt.Sprintf("找到 %d 条相关指南。", len(hits))
	if stage != "" {
		summary += "已筛选" + stage + "阶段的内容。"
	}
	return searchEnvelope{
		Success: true, Query: query, Stage: stage,
		Results: results, Count: len(hits), Summary: summary,
	}
}

// searchEnvelope is the common result wrapper all three lookups share.
type searchEnvelope struct {
	Success    bool   `json:"success"`
	Query      string `json:"query"`
	City       string `json:"city,omitempty"`
	Category   string `json:"category,omitempty"`
	Stage      string `json:"stage,omitempty"`
	Results    any    `json:"results,omitempty"`
	Count      int    `json:"count"`
	Summary    string `json:"summary"`
	BestAnswer string `json:"best_answer,omitempty"`
}

func (t *Tool) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	if t.cache == nil {
		return nil, false
	}
	value, ok, err := t.cache.Get(ctx, key)
	if err != nil {
		t.logger.Warn("知识缓存读取失败", "key", key, "error", err)
		return nil, false
	}
	if ok {
		t.logger.Debug("知识缓存命中", "key", key)
	}
	return value, ok
}

func (t *Tool) cacheSet(ctx context.Context, key string, value []byte) {
	if t.cache == nil {
		return
	}
	if err := t.cache.Set(ctx, key, value, counsel.DefaultKnowledgeTTL); err != nil {
		t.logger.Warn("知识缓存写入失败", "key", key, "error", err)
	}
}

func findDef(defs []counsel.ToolDefinition, name string) (counsel.ToolDefinition, bool) {
	for _, d := range defs {
		if d.Name == name {
			return d, true
		}
	}
	return counsel.ToolDefinition{}, false
}

func relevance(score float64) int {
	return int(score*100 + 0.5)
}

func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func citySuffix(city string) string {
	if city == "" {
		return ""
	}
	return "（" + city + "）"
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

var _ counsel.Tool = (*Tool)(nil)
