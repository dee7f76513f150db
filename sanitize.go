package counsel

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeInput prepares raw user text for planning and history: NFKC
// normalization folds full-width and compatibility variants (common in
// Chinese input methods), control characters other than newline and tab are
// stripped, and surrounding whitespace is trimmed.
func NormalizeInput(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// normalizeForMatch folds text for case- and width-insensitive keyword
// matching.
func normalizeForMatch(s string) string {
	return strings.ToLower(norm.NFKC.String(s))
}
