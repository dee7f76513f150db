package counsel

import "testing"

func TestNormalizeInput(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trims whitespace", "  南宁限购吗  ", "南宁限购吗"},
		{"folds full-width digits", "预算１５０万", "预算150万"},
		{"folds full-width latin", "ＬＰＲ利率", "LPR利率"},
		{"strips control chars", "你\x00好\x07世界", "你好世界"},
		{"keeps newline and tab", "第一行\n\t第二行", "第一行\n\t第二行"},
		{"full-width space trimmed", "　南宁　", "南宁"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeInput(tt.in); got != tt.want {
				t.Errorf("NormalizeInput(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeForMatch(t *testing.T) {
	if got := normalizeForMatch("ＬＰＲ"); got != "lpr" {
		t.Errorf("normalizeForMatch = %q, want lpr", got)
	}
	if got := normalizeForMatch("限购"); got != "限购" {
		t.Errorf("normalizeForMatch = %q", got)
	}
}
