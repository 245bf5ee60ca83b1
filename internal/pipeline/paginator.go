package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/starreach/starreach-cli/internal/model"
	"github.com/starreach/starreach-cli/internal/resilience"
	"github.com/starreach/starreach-cli/pkg/github"
)

// paginator walks the stargazer listing one page at a time and feeds the
// bounded work queue. It honors rate-limit waits by sleeping and re-fetching
// the same cursor, retries transient page failures indefinitely, and stops
// on the first fatal error.
type paginator struct {
	client    github.Client
	repo      github.Repo
	existing  map[string]struct{}
	limit     int
	retryWait time.Duration

	work     chan<- *model.EnrichedStargazer
	inflight *sync.WaitGroup
	stats    *stats
}

func (p *paginator) run(ctx context.Context) error {
	log := zap.L().With(
		zap.String("component", "paginator"),
		zap.String("repo", p.repo.String()),
	)

	cursor := ""
	admitted := 0
	for {
		if ctx.Err() != nil {
			log.Info("pagination interrupted", zap.Int("admitted", admitted))
			return nil
		}

		page, err := p.client.FetchPage(ctx, p.repo, cursor)
		if err != nil {
			if resilience.IsFatal(err) {
				log.Error("pagination failed", zap.Error(err))
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("page fetch failed, retrying",
				zap.String("cursor", cursor),
				zap.Duration("wait", p.retryWait),
				zap.Error(err))
			if !sleepCtx(ctx, p.retryWait) {
				return nil
			}
			continue
		}

		if page.Wait > 0 {
			log.Info("rate limited, waiting",
				zap.String("cursor", cursor),
				zap.Duration("wait", page.Wait))
			if !sleepCtx(ctx, page.Wait) {
				return nil
			}
			continue // re-fetch the same cursor
		}

		for _, u := range page.Users {
			if _, ok := p.existing[u.Login]; ok {
				p.stats.skipped.Add(1)
				log.Debug("already persisted, skipping", zap.String("login", u.Login))
				continue
			}
			if p.limit > 0 && admitted >= p.limit {
				log.Info("limit reached", zap.Int("admitted", admitted))
				return nil
			}

			e := model.NewEnriched(model.Stargazer{
				Login:   u.Login,
				HTMLURL: u.HTMLURL,
			})
			p.inflight.Add(1)
			select {
			case p.work <- e:
				admitted++
			case <-ctx.Done():
				p.inflight.Done()
				log.Info("pagination interrupted", zap.Int("admitted", admitted))
				return nil
			}
		}

		if page.NextCursor == "" {
			log.Info("pagination complete", zap.Int("admitted", admitted))
			return nil
		}
		cursor = page.NextCursor
	}
}

// sleepCtx sleeps for d unless ctx is canceled first. It reports whether the
// full sleep completed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
