// Package knowledge holds the advisory knowledge base: policy documents,
// FAQ entries and purchase guides, searched by normalized keyword matching.
// Importers turn Markdown, PDF and web sources into documents.
package knowledge

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Document types.
const (
	TypePolicy = "policy"
	TypeFAQ    = "faq"
	TypeGuide  = "guide"
)

// Document is one knowledge base entry. Policy and guide documents carry
// Title and Content; FAQ entries carry Question and Answer instead.
type Document struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	City     string   `json:"city,omitempty"`
	Title    string   `json:"title,omitempty"`
	Content  string   `json:"content,omitempty"`
	Question string   `json:"question,omitempty"`
	Answer   string   `json:"answer,omitempty"`
	Category string   `json:"category,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

// Hit is one search result with its relevance in [0,1].
type Hit struct {
	Document
	Score float64 `json:"relevance_score"`
}

// Base is an in-memory knowledge base. It is immutable after construction,
// so lookups need no locking.
type Base struct {
	docs []Document
}

// NewBase builds a base over the given documents.
func NewBase(docs []Document) *Base {
	return &Base{docs: docs}
}

// Len returns the number of documents.
func (b *Base) Len() int { return len(b.docs) }

// CountByType returns how many documents of the given type are loaded.
func (b *Base) CountByType(docType string) int {
	n := 0
	for _, d := range b.docs {
		if d.Type == docType {
			n++
		}
	}
	return n
}

// SearchPolicy returns the policy documents best matching query, optionally
// filtered by city. Documents without a city match every city.
func (b *Base) SearchPolicy(query, city string, topK int) []Hit {
	return b.search(query, TypePolicy, city, "", topK)
}

// SearchGuide returns the purchase guides best matching query.
func (b *Base) SearchGuide(query string, topK int) []Hit {
	return b.search(query, TypeGuide, "", "", topK)
}

// SearchFAQ returns the FAQ entries best matching query, optionally filtered
// by city and category.
func (b *Base) SearchFAQ(query, city, category string, topK int) []Hit {
	return b.search(query, TypeFAQ, city, category, topK)
}

// search scores every document of the wanted type against the query terms.
// FAQ entries weight the question over the answer; other documents weight
// title over content, with declared keywords in between. Zero-score
// documents are dropped.
func (b *Base) search(query, docType, city, category string, topK int) []Hit {
	if topK <= 0 {
		topK = 3
	}
	queryFolded := fold(query)
	terms := strings.Fields(queryFolded)

	var hits []Hit
	for _, d := range b.docs {
		if d.Type != docType {
			continue
		}
		if city != "" && d.City != "" && d.City != city {
			continue
		}
		if category != "" && d.Category != category {
			continue
		}

		score := 0
		if docType == TypeFAQ {
			question := fold(d.Question)
			answer := fold(d.Answer)
			for _, term := range terms {
				if strings.Contains(question, term) {
					score += 2
				}
				if strings.Contains(answer, term) {
					score++
				}
			}
			for _, kw := range d.Keywords {
				if strings.Contains(queryFolded, fold(kw)) {
					score += 3
				}
			}
		} else {
			content := fold(d.Content)
			for _, term := range terms {
				if strings.Contains(content, term) {
					score++
				}
			}
			for _, kw := range d.Keywords {
				kwFolded := fold(kw)
				if strings.Contains(queryFolded, kwFolded) || strings.Contains(kwFolded, queryFolded) {
					score += 2
				}
			}
			if strings.Contains(fold(d.Title), queryFolded) {
				score += 3
			}
		}
		if score == 0 {
			continue
		}
		hits = append(hits, Hit{Document: d, Score: min(float64(score)/10, 1.0)})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

// fold normalizes text for matching: NFKC plus lower case, so full-width
// variants and Latin case differences do not defeat substring checks.
func fold(s string) string {
	return strings.ToLower(norm.NFKC.String(s))
}

var keywordLineRe = regexp.MustCompile(`(?m)^\*\*关键词[^:：]*[:：]\s*(.+?)\s*\**$`)

// extractKeywords pulls a declared keyword line (**关键词**: a, b, c) out of
// document content. Absent line means no keywords, not an error.
func extractKeywords(content string) []string {
	m := keywordLineRe.FindStringSubmatch(content)
	if m == nil {
		return nil
	}
	parts := strings.FieldsFunc(m[1], func(r rune) bool { return r == ',' || r == '，' })
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(strings.TrimRight(p, "*")); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// cityFromName guesses the city a source file covers from its name.
func cityFromName(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "nanning") || strings.Contains(name, "南宁"):
		return "南宁"
	case strings.Contains(lower, "liuzhou") || strings.Contains(name, "柳州"):
		return "柳州"
	default:
		return ""
	}
}
