package render

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// minVisibleText is the visible-text length below which a fetched page is
// assumed to be script-rendered and handed to the next renderer.
const minVisibleText = 500

// Chain tries renderers in priority order. A renderer's result is accepted
// when it carries enough visible text; the last renderer's result is accepted
// as-is.
type Chain struct {
	renderers []Renderer
}

// NewChain creates a Chain over the given renderers.
func NewChain(renderers ...Renderer) *Chain {
	return &Chain{renderers: renderers}
}

func (c *Chain) Name() string { return "chain" }

// Render runs the chain for a single URL.
func (c *Chain) Render(ctx context.Context, url string) (string, error) {
	var lastErr error
	for i, r := range c.renderers {
		html, err := r.Render(ctx, url)
		if err != nil {
			zap.L().Debug("render: renderer failed, trying next",
				zap.String("renderer", r.Name()),
				zap.String("url", url),
				zap.Error(err),
			)
			lastErr = err
			continue
		}

		last := i == len(c.renderers)-1
		if !last && visibleTextLen(html) < minVisibleText {
			zap.L().Debug("render: page looks script-rendered, falling back",
				zap.String("renderer", r.Name()),
				zap.String("url", url),
			)
			lastErr = &RenderError{URL: url, Err: eris.New("insufficient visible text")}
			continue
		}

		return html, nil
	}

	if lastErr == nil {
		lastErr = eris.Errorf("render: no renderer configured for %s", url)
	}
	return "", lastErr
}
