package preview

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/doyensec/safeurl"
	"golang.org/x/net/html"
)

// SafeClient returns an HTTP client that refuses private, loopback and
// link-local destinations and non-web ports.
func SafeClient(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()
	return safeurl.Client(cfg).Client
}

// HTMLExtractor downloads the raw page and reduces it to text.
type HTMLExtractor struct {
	client  *http.Client
	minLen  int
	maxBody int64
}

// NewHTMLExtractor accepts page text longer than minLen characters, reading at most maxBody bytes.
func NewHTMLExtractor(client *http.Client, minLen int, maxBody int64) *HTMLExtractor {
	if maxBody <= 0 {
		maxBody = 5 << 20
	}
	return &HTMLExtractor{client: client, minLen: minLen, maxBody: maxBody}
}

// Name identifies the extractor in logs and metrics.
func (e *HTMLExtractor) Name() string { return "html" }

// Extract downloads u over the SSRF-safe client and returns its visible text.
func (e *HTMLExtractor) Extract(ctx context.Context, u string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch page: status %d", resp.StatusCode)
	}

	text := ExtractText(io.LimitReader(resp.Body, e.maxBody))
	if utf8.RuneCountInString(text) <= e.minLen {
		return "", fmt.Errorf("%w: %d characters", errTooShort, utf8.RuneCountInString(text))
	}
	return text, nil
}

var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"svg":      true,
	"title":    true,
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "header": true, "footer": true, "main": true,
	"blockquote": true, "pre": true, "table": true, "tr": true, "td": true, "th": true,
	"body": true,
}

// ExtractText returns the visible text of an HTML document with entities
// decoded and whitespace collapsed.
func ExtractText(r io.Reader) string {
	z := html.NewTokenizer(r)
	var b strings.Builder
	skip := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			return CollapseWhitespace(b.String())
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Type == html.StartTagToken && skippedElements[tok.Data] {
				skip++
			}
			if blockElements[tok.Data] {
				b.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if skippedElements[string(name)] && skip > 0 {
				skip--
			}
			if blockElements[string(name)] {
				b.WriteByte(' ')
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}
