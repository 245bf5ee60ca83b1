package render

import (
	"context"
	"errors"
	"time"

	"github.com/chromedp/chromedp"
)

// Browser renders documents in headless Chrome, for pages that only produce
// content after JavaScript runs. Requires a Chrome/Chromium binary on the
// host.
type Browser struct {
	timeout time.Duration
}

// NewBrowser creates a Browser renderer with the given per-page timeout.
func NewBrowser(timeout time.Duration) *Browser {
	return &Browser{timeout: timeout}
}

func (b *Browser) Name() string { return "browser" }

// Render navigates to the URL, waits for the page to settle, and returns the
// rendered HTML.
func (b *Browser) Render(ctx context.Context, rawURL string) (string, error) {
	target := NormalizeURL(rawURL)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.UserAgent(userAgent),
		)...,
	)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, b.timeout)
	defer cancelTimeout()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body"),
		// Give client-side rendering a moment to fill in content.
		chromedp.Sleep(2*time.Second),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", &RenderError{
			URL:     target,
			Timeout: errors.Is(err, context.DeadlineExceeded),
			Err:     err,
		}
	}

	return html, nil
}
