// Package news provides the search_news tool over an embedded feed of
// housing policy and market items.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/nevindra/counsel"
)

// NewsTTL is the cache lifetime for news lookups. News goes stale faster
// than policy documents.
const NewsTTL = 30 * time.Minute

// Item is one news entry in the feed.
type Item struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Summary     string   `json:"summary"`
	Source      string   `json:"source"`
	URL         string   `json:"url"`
	PublishDate string   `json:"publish_date"`
	City        string   `json:"city,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
}

// Tool answers news searches. The zero feed falls back to the embedded one.
type Tool struct {
	feed   []Item
	cache  counsel.Cache
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the Tool.
type Option func(*Tool)

// WithFeed replaces the embedded feed.
func WithFeed(items []Item) Option {
	return func(t *Tool) { t.feed = items }
}

// WithCache enables caching of search results.
func WithCache(c counsel.Cache) Option {
	return func(t *Tool) { t.cache = c }
}

// WithLogger sets the structured logger (default: discard).
func WithLogger(l *slog.Logger) Option {
	return func(t *Tool) { t.logger = l }
}

// New creates the news tool.
func New(opts ...Option) *Tool {
	t := &Tool{feed: defaultFeed, logger: slog.New(nopHandler{}), now: time.Now}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Tool) Definitions() []counsel.ToolDefinition {
	return []counsel.ToolDefinition{
		{
			Name:        "search_news",
			Description: "搜索最新的房产政策新闻和市场动态",
			Parameters: []counsel.ToolParameter{
				{Name: "query", Type: "string", Description: "搜索关键词，如：限购政策、公积金、房价走势", Required: true},
				{Name: "city", Type: "string", Description: "城市名称，用于过滤特定城市的新闻", Enum: []string{"南宁", "柳州"}},
				{Name: "days", Type: "integer", Description: "最近几天的新闻，默认30天"},
			},
		},
	}
}

func (t *Tool) Execute(ctx context.Context, name string, args json.RawMessage) (counsel.ToolResult, error) {
	defs := t.Definitions()
	if name != defs[0].Name {
		return counsel.ToolResult{Error: "工具 " + name + " 不存在"}, nil
	}
	if err := defs[0].ValidateArgs(args); err != nil {
		return counsel.ToolResult{Error: err.Error()}, nil
	}

	var params struct {
		Query string `json:"query"`
		City  string `json:"city"`
		Days  int    `json:"days"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return counsel.ToolResult{Error: fmt.Sprintf("参数格式错误: %v", err)}, nil
	}
	if params.Days <= 0 {
		params.Days = 30
	}

	key := counsel.CacheKey(name, params.City, params.Query, map[string]string{"days": fmt.Sprint(params.Days)})
	if t.cache != nil {
		if cached, ok, err := t.cache.Get(ctx, key); err != nil {
			t.logger.Warn("新闻缓存读取失败", "key", key, "error", err)
		} else if ok {
			return counsel.ToolResult{Content: string(cached)}, nil
		}
	}

	hits := t.search(params.Query, params.City, params.Days)

	payload := struct {
		Success bool   `json:"success"`
		Query   string `json:"query"`
		City    string `json:"city,omitempty"`
		Days    int    `json:"days"`
		Results []Item `json:"results"`
		Count   int    `json:"count"`
		Summary string `json:"summary"`
	}{
		Success: true, Query: params.Query, City: params.City,
		Days: params.Days, Results: hits, Count: len(hits),
	}
	if len(hits) == 0 {
		payload.Summary = "未找到与「" + params.Query + "」相关的新闻"
		if params.City != "" {
			payload.Summary += "（" + params.City + "）"
		}
	} else {
		payload.Summary = fmt.Sprintf("找到 %d 条相关新闻。最新一条：「%s」（%s）",
			len(hits), clipRunes(hits[0].Title, 20), hits[0].PublishDate)
	}

	content, err := json.Marshal(payload)
	if err != nil {
		return counsel.ToolResult{Error: fmt.Sprintf("编码结果失败: %v", err)}, nil
	}
	if t.cache != nil {
		if err := t.cache.Set(ctx, key, content, NewsTTL); err != nil {
			t.logger.Warn("新闻缓存写入失败", "key", key, "error", err)
		}
	}
	return counsel.ToolResult{Content: string(content)}, nil
}

const maxResults = 5

// search scores feed items against the query: a title term counts 3, a
// summary term 1, a declared keyword overlapping the query 2. Items outside
// the date window or the city filter are skipped. A city-less item matches
// any city filter.
func (t *Tool) search(query, city string, days int) []Item {
	queryLower := strings.ToLower(query)
	terms := strings.Fields(queryLower)
	cutoff := t.now().AddDate(0, 0, -days)

	type scored struct {
		item  Item
		score int
	}
	var results []scored
	for _, item := range t.feed {
		if city != "" && item.City != "" && item.City != city {
			continue
		}
		if date, err := time.Parse("2006-01-02", item.PublishDate); err == nil && date.Before(cutoff) {
			continue
		}

		score := 0
		titleLower := strings.ToLower(item.Title)
		summaryLower := strings.ToLower(item.Summary)
		for _, term := range terms {
			if strings.Contains(titleLower, term) {
				score += 3
			}
			if strings.Contains(summaryLower, term) {
				score += 1
			}
		}
		for _, kw := range item.Keywords {
			kwLower := strings.ToLower(kw)
			if strings.Contains(queryLower, kwLower) || strings.Contains(kwLower, queryLower) {
				score += 2
			}
		}
		if score > 0 {
			results = append(results, scored{item, score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].item.PublishDate > results[j].item.PublishDate
	})
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	items := make([]Item, len(results))
	for i, r := range results {
		items[i] = r.item
	}
	return items
}

func clipRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (h nopHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h nopHandler) WithGroup(string) slog.Handler           { return h }

var _ counsel.Tool = (*Tool)(nil)
