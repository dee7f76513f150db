package knowledge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
)

const (
	fetchTimeout  = 15 * time.Second
	maxFetchBytes = 5 * 1024 * 1024
)

// ImportWeb fetches a web page and extracts its readable article text into
// one document, titled by the page title.
func ImportWeb(ctx context.Context, rawURL, docType string) ([]Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %s: %w", rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	client := &http.Client{Timeout: fetchTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: http %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}

	article, err := readability.FromReader(strings.NewReader(string(body)), u)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", rawURL, err)
	}
	content := strings.TrimSpace(article.TextContent)
	if content == "" {
		return nil, fmt.Errorf("extract %s: no readable content", rawURL)
	}

	title := strings.TrimSpace(article.Title)
	if title == "" {
		title = firstLine(content)
	}
	return []Document{{
		ID:      fmt.Sprintf("%s_%s", docType, docSlug(u.Host+u.Path)),
		Type:    docType,
		City:    cityFromName(rawURL + title),
		Title:   title,
		Content: content,
	}}, nil
}
