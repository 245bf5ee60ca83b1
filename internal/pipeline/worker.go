package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/starreach/starreach-cli/internal/extract"
	"github.com/starreach/starreach-cli/internal/model"
	"github.com/starreach/starreach-cli/internal/render"
	"github.com/starreach/starreach-cli/internal/resilience"
	"github.com/starreach/starreach-cli/pkg/github"
)

// worker pulls stargazers off the work queue, enriches them, and forwards
// the result. A rate-limited source makes the worker sleep and retry the
// same stargazer without spending its retry budget; any other failure
// increments the retry count and requeues until the budget is exhausted,
// at which point the stargazer is forwarded with whatever was gathered.
type worker struct {
	id            int
	client        github.Client
	renderer      render.Renderer
	maxRetries    int
	renderTimeout time.Duration

	work     chan *model.EnrichedStargazer
	results  chan<- *model.EnrichedStargazer
	drain    <-chan struct{}
	inflight *sync.WaitGroup
	stats    *stats
}

func (w *worker) run(ctx context.Context) {
	log := zap.L().With(zap.Int("worker", w.id))
	for e := range w.work {
		select {
		case <-w.drain:
			w.drop(log, e)
			continue
		default:
		}
		w.handle(ctx, log, e)
	}
}

func (w *worker) handle(ctx context.Context, log *zap.Logger, e *model.EnrichedStargazer) {
	for {
		err := w.process(ctx, e)
		if err == nil {
			log.Debug("enriched", zap.String("login", e.Login))
			w.forward(e)
			w.stats.processed.Add(1)
			return
		}

		if wait, ok := resilience.IsRateLimit(err); ok {
			log.Info("rate limited, waiting",
				zap.String("login", e.Login),
				zap.Duration("wait", wait))
			select {
			case <-time.After(wait):
				continue // same stargazer, retry budget untouched
			case <-w.drain:
				w.drop(log, e)
				return
			}
		}

		e.RetryCount++
		e.LastErr = err.Error()
		if e.RetryCount >= w.maxRetries {
			log.Warn("abandoning after retries",
				zap.String("login", e.Login),
				zap.Int("attempts", e.RetryCount),
				zap.Error(err))
			w.forward(e)
			w.stats.abandoned.Add(1)
			return
		}

		log.Debug("requeueing",
			zap.String("login", e.Login),
			zap.Int("attempt", e.RetryCount),
			zap.Error(err))
		w.requeue(log, e)
		return
	}
}

// process performs the enrichment steps for a single stargazer: load the
// profile detail if the listing did not carry it, scan the bio, then render
// and scan each document URL. Partial results accumulate on the entity, so
// a failed attempt keeps what earlier attempts found. A panic in any step
// is recovered and surfaced as an ordinary failure.
func (w *worker) process(ctx context.Context, e *model.EnrichedStargazer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("worker: recovered from panic",
				zap.String("login", e.Login),
				zap.Any("panic", r),
				zap.Stack("stack"))
			err = eris.Errorf("worker: panic processing %s: %v", e.Login, r)
		}
	}()

	if !e.DetailLoaded {
		detail, derr := w.client.FetchUser(ctx, e.Login)
		if derr != nil {
			return eris.Wrapf(derr, "worker: fetch detail for %s", e.Login)
		}
		e.ApplyDetail(model.Stargazer{
			Login:           detail.Login,
			Name:            detail.Name,
			Email:           detail.Email,
			Bio:             detail.Bio,
			Blog:            detail.Blog,
			Company:         detail.Company,
			Location:        detail.Location,
			TwitterUsername: detail.TwitterUsername,
			HTMLURL:         detail.HTMLURL,
		})
	}

	e.Contact.Merge(extract.Extract(e.Bio))

	for _, doc := range e.DocumentURLs() {
		rctx, cancel := context.WithTimeout(ctx, w.renderTimeout)
		text, rerr := w.renderer.Render(rctx, doc)
		cancel()
		if rerr != nil {
			return eris.Wrapf(rerr, "worker: render %s", doc)
		}
		e.Contact.Merge(extract.Extract(text))
	}
	return nil
}

// forward hands the stargazer to the saver. The result queue is closed only
// after every worker has exited, so a blocking send here is safe.
func (w *worker) forward(e *model.EnrichedStargazer) {
	w.results <- e
	w.inflight.Done()
}

// requeue returns the stargazer to the work queue without blocking the
// worker itself. With every worker busy a direct send could deadlock the
// pool against a full queue, so the send runs detached and gives up once
// the run starts draining. The entity stays in flight until the send or
// the drop resolves, which keeps the queue open underneath the send.
func (w *worker) requeue(log *zap.Logger, e *model.EnrichedStargazer) {
	go func() {
		select {
		case w.work <- e:
		case <-w.drain:
			w.drop(log, e)
		}
	}()
}

func (w *worker) drop(log *zap.Logger, e *model.EnrichedStargazer) {
	log.Warn("dropping on drain", zap.String("login", e.Login))
	w.stats.dropped.Add(1)
	w.inflight.Done()
}
