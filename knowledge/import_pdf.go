package knowledge

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ImportPDF extracts the text of a PDF policy document into one document.
// Pages that fail text extraction are skipped rather than failing the import.
func ImportPDF(name string, content []byte, docType string) ([]Document, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("empty PDF content")
	}
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", name, err)
	}

	var text strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}
		if text.Len() > 0 {
			text.WriteString("\n\n")
		}
		text.WriteString(pageText)
	}

	body := strings.TrimSpace(text.String())
	if body == "" {
		return nil, fmt.Errorf("pdf %s: no extractable text", name)
	}
	return []Document{{
		ID:       fmt.Sprintf("%s_%s", docType, docSlug(strings.TrimSuffix(name, ".pdf"))),
		Type:     docType,
		City:     cityFromName(name),
		Title:    firstLine(body),
		Content:  body,
		Keywords: extractKeywords(body),
	}}, nil
}
