package pipeline

import (
	"sync/atomic"

	"github.com/starreach/starreach-cli/internal/model"
)

// stats tracks run counters across the paginator, workers and saver.
type stats struct {
	processed atomic.Int64 // enriched and forwarded to the saver
	abandoned atomic.Int64 // retry budget exhausted, forwarded with partial data
	skipped   atomic.Int64 // already persisted, never enqueued
	dropped   atomic.Int64 // lost to a drain before reaching the result queue
	flushed   atomic.Int64 // written to the store
}

func (s *stats) summary(runID, repo string, fatal bool) *model.RunSummary {
	return &model.RunSummary{
		RunID:     runID,
		Repo:      repo,
		Processed: s.processed.Load(),
		Abandoned: s.abandoned.Load(),
		Skipped:   s.skipped.Load(),
		Dropped:   s.dropped.Load(),
		Flushed:   s.flushed.Load(),
		Fatal:     fatal,
	}
}
