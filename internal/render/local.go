package render

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const (
	userAgent = "Mozilla/5.0 (compatible; StarReach/1.0)"

	// maxBodyBytes caps how much of a document is read; contact links live
	// near the top of personal sites and the extractor caps its own scan.
	maxBodyBytes = 2 << 20
)

// Local fetches documents with a plain HTTP GET. Fast and cheap, but blind to
// client-side rendering.
type Local struct {
	http *http.Client
}

// NewLocal creates a Local renderer with the given per-request timeout.
func NewLocal(timeout time.Duration) *Local {
	return &Local{
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

func (l *Local) Name() string { return "local" }

// Render fetches the URL and returns the raw HTML.
func (l *Local) Render(ctx context.Context, rawURL string) (string, error) {
	target := NormalizeURL(rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", &RenderError{URL: target, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := l.http.Do(req)
	if err != nil {
		return "", &RenderError{URL: target, Timeout: isTimeout(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &RenderError{URL: target, Err: eris.Errorf("status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", &RenderError{URL: target, Timeout: isTimeout(err), Err: err}
	}

	return string(body), nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
