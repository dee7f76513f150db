package news

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/nevindra/counsel"
)

// feedNow pins the clock just after the newest embedded item so the default
// 30-day window covers the whole feed.
var feedNow = time.Date(2025, 12, 30, 12, 0, 0, 0, time.UTC)

func testTool(opts ...Option) *Tool {
	t := New(opts...)
	t.now = func() time.Time { return feedNow }
	return t
}

func execute(t *testing.T, tool *Tool, args string) map[string]any {
	t.Helper()
	res, err := tool.Execute(context.Background(), "search_news", json.RawMessage(args))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Error != "" {
		t.Fatalf("tool error: %s", res.Error)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(res.Content), &payload); err != nil {
		t.Fatalf("result not JSON: %v\n%s", err, res.Content)
	}
	return payload
}

func TestSearchNewsByKeyword(t *testing.T) {
	payload := execute(t, testTool(), `{"query":"公积金"}`)

	if payload["success"] != true {
		t.Fatalf("success = %v", payload["success"])
	}
	results := payload["results"].([]any)
	if len(results) == 0 {
		t.Fatal("no results for 公积金")
	}
	top := results[0].(map[string]any)
	if !strings.Contains(top["title"].(string), "公积金") {
		t.Errorf("top result = %v", top["title"])
	}
}

func TestSearchNewsCityFilter(t *testing.T) {
	payload := execute(t, testTool(), `{"query":"楼市 成交量 利率","city":"柳州"}`)

	for _, r := range payload["results"].([]any) {
		item := r.(map[string]any)
		// City-tagged results must match the filter. Region-wide items
		// (no city) are allowed through.
		if c, ok := item["city"]; ok && c != "柳州" {
			t.Errorf("city filter leaked %v", item["title"])
		}
	}
}

func TestSearchNewsDateWindow(t *testing.T) {
	payload := execute(t, testTool(), `{"query":"旧改 老旧小区","days":10}`)

	// news_006 (2025-12-08) is 22 days old, outside a 10-day window.
	if payload["count"] != float64(0) {
		t.Errorf("count = %v, want 0 results outside window", payload["count"])
	}
}

func TestSearchNewsResultCap(t *testing.T) {
	feed := make([]Item, 8)
	for i := range feed {
		feed[i] = Item{
			ID:          string(rune('a' + i)),
			Title:       "房价动态",
			Summary:     "房价摘要",
			PublishDate: "2025-12-20",
		}
	}
	payload := execute(t, testTool(WithFeed(feed)), `{"query":"房价"}`)

	if payload["count"] != float64(5) {
		t.Errorf("count = %v, want cap at 5", payload["count"])
	}
}

func TestSearchNewsTitleOutranksSummary(t *testing.T) {
	feed := []Item{
		{ID: "a", Title: "别的标题", Summary: "正文提到限购一次", PublishDate: "2025-12-28"},
		{ID: "b", Title: "限购政策解读", Summary: "正文", PublishDate: "2025-12-01"},
	}
	payload := execute(t, testTool(WithFeed(feed)), `{"query":"限购"}`)

	results := payload["results"].([]any)
	if len(results) != 2 {
		t.Fatalf("results = %d", len(results))
	}
	// The older title match outranks the newer summary-only match.
	if results[0].(map[string]any)["id"] != "b" {
		t.Errorf("order = %v", results)
	}
}

func TestSearchNewsNoMatch(t *testing.T) {
	payload := execute(t, testTool(), `{"query":"股票行情"}`)

	if payload["success"] != true {
		t.Errorf("success = %v, empty result is not a failure", payload["success"])
	}
	if !strings.Contains(payload["summary"].(string), "未找到") {
		t.Errorf("summary = %v", payload["summary"])
	}
}

func TestSearchNewsValidation(t *testing.T) {
	tool := testTool()
	for name, args := range map[string]string{
		"missing query": `{}`,
		"bad city":      `{"query":"限购","city":"桂林"}`,
	} {
		res, err := tool.Execute(context.Background(), "search_news", json.RawMessage(args))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if res.Error == "" {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestSearchNewsCached(t *testing.T) {
	cache := counsel.NewMemoryCache()
	tool := testTool(WithCache(cache))

	first := execute(t, tool, `{"query":"契税"}`)

	// Swap the feed out; a cached query must still return the old payload.
	tool.feed = nil
	second := execute(t, tool, `{"query":"契税"}`)
	if first["count"] != second["count"] || second["count"] == float64(0) {
		t.Errorf("cache miss: first = %v, second = %v", first["count"], second["count"])
	}

	fresh := execute(t, tool, `{"query":"契税","days":7}`)
	if fresh["count"] != float64(0) {
		t.Errorf("different days should miss the cache, got %v", fresh["count"])
	}
}
