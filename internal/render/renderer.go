// Package render fetches documents and returns their rendered HTML for
// contact extraction. A plain HTTP fetch is tried first; JavaScript-heavy
// pages fall back to a headless browser.
package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Renderer loads a URL and returns the rendered document as HTML text.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
	Name() string
}

// RenderError wraps a document fetch/render failure.
type RenderError struct {
	URL     string
	Timeout bool
	Err     error
}

func (e *RenderError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("render %s: timeout: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("render %s: %v", e.URL, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// NormalizeURL prepends a scheme when the source stored a bare domain.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return "http://" + raw
	}
	return raw
}

// visibleTextLen returns the length of the document's visible text, used to
// detect script-rendered pages that need the browser fallback.
func visibleTextLen(html string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0
	}
	doc.Find("script, style, noscript").Remove()
	return len(strings.TrimSpace(doc.Find("body").Text()))
}
