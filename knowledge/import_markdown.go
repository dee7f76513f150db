package knowledge

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ImportMarkdown splits a Markdown source into documents at level-1 and
// level-2 headings. Each section becomes one document titled by its heading;
// content before the first heading is dropped when empty, kept as an untitled
// section otherwise. The city is guessed from the source name and a declared
// keyword line inside a section becomes the document's keywords.
func ImportMarkdown(name string, src []byte, docType string) ([]Document, error) {
	root := goldmark.New().Parser().Parse(text.NewReader(src))

	type section struct {
		title string
		start int
	}
	var sections []section

	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok || h.Level > 2 {
			return ast.WalkContinue, nil
		}
		lines := h.Lines()
		if lines.Len() == 0 {
			return ast.WalkContinue, nil
		}
		// The segment starts after the "#" markers; back up to the line
		// start so the section keeps its heading.
		start := lines.At(0).Start
		if i := bytes.LastIndexByte(src[:start], '\n'); i >= 0 {
			start = i + 1
		} else {
			start = 0
		}
		sections = append(sections, section{
			title: string(h.Text(src)),
			start: start,
		})
		return ast.WalkSkipChildren, nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk markdown %s: %w", name, err)
	}

	city := cityFromName(name)
	slug := docSlug(name)

	if len(sections) == 0 {
		content := strings.TrimSpace(string(src))
		if content == "" {
			return nil, nil
		}
		return []Document{{
			ID:       fmt.Sprintf("%s_%s", docType, slug),
			Type:     docType,
			City:     city,
			Title:    firstLine(content),
			Content:  content,
			Keywords: extractKeywords(content),
		}}, nil
	}

	var docs []Document
	if pre := strings.TrimSpace(string(src[:sections[0].start])); pre != "" {
		docs = append(docs, Document{
			ID:       fmt.Sprintf("%s_%s_00", docType, slug),
			Type:     docType,
			City:     city,
			Title:    firstLine(pre),
			Content:  pre,
			Keywords: extractKeywords(pre),
		})
	}
	for i, s := range sections {
		end := len(src)
		if i+1 < len(sections) {
			end = sections[i+1].start
		}
		content := strings.TrimSpace(string(src[s.start:end]))
		if content == "" {
			continue
		}
		docs = append(docs, Document{
			ID:       fmt.Sprintf("%s_%s_%02d", docType, slug, i+1),
			Type:     docType,
			City:     city,
			Title:    s.title,
			Content:  content,
			Keywords: extractKeywords(content),
		})
	}
	return docs, nil
}

// docSlug derives a stable id fragment from a source name.
func docSlug(name string) string {
	name = strings.TrimSuffix(name, ".md")
	name = strings.TrimSuffix(name, ".markdown")
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == '/' || r == '\\' || r == ' ' || r == '.' || r == '-':
			return '_'
		default:
			return r
		}
	}, name)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(strings.TrimLeft(s, "# "))
}
