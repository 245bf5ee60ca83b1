package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/starreach/starreach-cli/internal/model"
	"github.com/starreach/starreach-cli/internal/store"
)

// saver buffers enriched stargazers and flushes them to the store when the
// buffer reaches a threshold or the flush interval elapses. Each flush
// re-reads the store, appends only logins not already present, and writes
// the combined set back atomically. A failed flush retains the buffer for
// the next attempt.
type saver struct {
	store     store.Store
	threshold int
	interval  time.Duration

	results <-chan *model.EnrichedStargazer
	stats   *stats

	buf []*model.EnrichedStargazer
}

func (s *saver) run() {
	log := zap.L().With(zap.String("component", "saver"))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-s.results:
			if !ok {
				s.flush(log)
				return
			}
			s.buf = append(s.buf, e)
			if len(s.buf) >= s.threshold {
				s.flush(log)
			}
		case <-ticker.C:
			s.flush(log)
		}
	}
}

func (s *saver) flush(log *zap.Logger) {
	if len(s.buf) == 0 {
		return
	}

	// The final flush happens while the run context may already be canceled;
	// persistence must still complete.
	ctx := context.Background()

	snap, err := s.store.Load(ctx)
	if err != nil {
		log.Error("flush: load failed, retaining buffer",
			zap.Int("buffered", len(s.buf)),
			zap.Error(err))
		return
	}

	rows := snap.Rows
	seen := snap.Keys
	appended := 0
	for _, e := range s.buf {
		if _, dup := seen[e.Login]; dup {
			log.Debug("flush: duplicate key skipped", zap.String("login", e.Login))
			continue
		}
		seen[e.Login] = struct{}{}
		rows = append(rows, store.FromStargazer(e))
		appended++
	}

	if err := s.store.Write(ctx, rows); err != nil {
		log.Error("flush: write failed, retaining buffer",
			zap.Int("buffered", len(s.buf)),
			zap.Error(err))
		return
	}

	s.stats.flushed.Add(int64(len(s.buf)))
	log.Info("flush complete",
		zap.Int("appended", appended),
		zap.Int("total_rows", len(rows)))
	s.buf = s.buf[:0]
}
