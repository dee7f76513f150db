package knowledge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
)

const sampleMarkdown = `# 南宁市购房政策汇总

**关键词**: 限购, 首付

南宁市已全面取消限购。

## 公积金贷款

双职工家庭最高可贷70万元。

## 契税优惠

90平米以下首套按1%征收。

### 补充说明

三级标题不单独成篇。
`

func TestImportMarkdownSplitsOnHeadings(t *testing.T) {
	docs, err := ImportMarkdown("nanning_policy.md", []byte(sampleMarkdown), TypePolicy)
	if err != nil {
		t.Fatalf("ImportMarkdown: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("docs = %d, want 3 (h1 + two h2)", len(docs))
	}

	if docs[0].Title != "南宁市购房政策汇总" {
		t.Errorf("title[0] = %q", docs[0].Title)
	}
	if docs[1].Title != "公积金贷款" {
		t.Errorf("title[1] = %q", docs[1].Title)
	}
	if docs[2].Title != "契税优惠" {
		t.Errorf("title[2] = %q", docs[2].Title)
	}

	for _, d := range docs {
		if d.Type != TypePolicy {
			t.Errorf("doc %s type = %q", d.ID, d.Type)
		}
		if d.City != "南宁" {
			t.Errorf("doc %s city = %q", d.ID, d.City)
		}
	}

	// The level-3 section stays inside its level-2 parent.
	if got := docs[2].Content; !strings.Contains(got, "三级标题不单独成篇") {
		t.Errorf("h3 content not kept in parent section: %q", got)
	}
	// The keyword line lands in the first section.
	if len(docs[0].Keywords) != 2 {
		t.Errorf("keywords = %v", docs[0].Keywords)
	}
}

func TestImportMarkdownWithoutHeadings(t *testing.T) {
	docs, err := ImportMarkdown("note.md", []byte("纯文本内容，没有标题。"), TypeGuide)
	if err != nil {
		t.Fatalf("ImportMarkdown: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("docs = %d, want 1", len(docs))
	}
	if docs[0].ID != "guide_note" {
		t.Errorf("id = %q", docs[0].ID)
	}
}

func TestImportMarkdownEmpty(t *testing.T) {
	docs, err := ImportMarkdown("empty.md", []byte("   \n"), TypeGuide)
	if err != nil {
		t.Fatalf("ImportMarkdown: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("docs = %+v, want none", docs)
	}
}

func TestImportWeb(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><title>柳州购房指南</title></head><body>
			<article><h1>柳州购房指南</h1>
			<p>柳州市购房资格与贷款流程说明。本文介绍柳州市最新的购房政策与办理流程，帮助购房者了解所需材料。</p>
			<p>公积金贷款需连续缴存六个月以上，且账户状态正常。商业贷款首付比例最低为百分之二十。</p>
			</article></body></html>`))
	}))
	defer srv.Close()

	docs, err := ImportWeb(context.Background(), srv.URL+"/guide", TypeGuide)
	if err != nil {
		t.Fatalf("ImportWeb: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("docs = %d, want 1", len(docs))
	}
	if docs[0].Title != "柳州购房指南" {
		t.Errorf("title = %q", docs[0].Title)
	}
	if docs[0].City != "柳州" {
		t.Errorf("city = %q", docs[0].City)
	}
	if !strings.Contains(docs[0].Content, "公积金") {
		t.Errorf("content = %q", docs[0].Content)
	}
}

func TestImportWebHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := ImportWeb(context.Background(), srv.URL, TypeGuide); err == nil {
		t.Fatal("expected error on 404")
	}
}

func TestCorpusRoundTripAndMerge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.json")

	// Missing corpus is empty, not an error.
	docs, err := LoadCorpus(path)
	if err != nil {
		t.Fatalf("LoadCorpus: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("fresh corpus = %+v", docs)
	}

	docs = Merge(docs, []Document{{ID: "policy_a", Type: TypePolicy, Title: "A"}})
	docs = Merge(docs, []Document{
		{ID: "policy_a", Type: TypePolicy, Title: "A v2"},
		{ID: "guide_b", Type: TypeGuide, Title: "B"},
	})
	if len(docs) != 2 {
		t.Fatalf("merged = %d, want 2", len(docs))
	}
	if docs[0].Title != "A v2" {
		t.Errorf("re-import did not replace: %q", docs[0].Title)
	}

	if err := SaveCorpus(path, docs); err != nil {
		t.Fatalf("SaveCorpus: %v", err)
	}
	loaded, err := LoadCorpus(path)
	if err != nil {
		t.Fatalf("LoadCorpus: %v", err)
	}
	if len(loaded) != 2 || loaded[1].ID != "guide_b" {
		t.Fatalf("loaded = %+v", loaded)
	}
}
