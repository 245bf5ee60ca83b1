package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/starreach/starreach-cli/internal/model"
	"github.com/starreach/starreach-cli/internal/render"
	"github.com/starreach/starreach-cli/internal/store"
	"github.com/starreach/starreach-cli/pkg/github"
)

// State is the coordinator's lifecycle phase.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateDraining  State = "draining"
	StateFatalStop State = "fatal_stop"
	StateStopped   State = "stopped"
)

// Options tunes a pipeline run.
type Options struct {
	Workers        int
	QueueCapacity  int
	MaxRetries     int
	FlushThreshold int
	FlushInterval  time.Duration
	PageRetryWait  time.Duration
	RenderTimeout  time.Duration
	Limit          int
}

// Coordinator owns a single ingestion run: one paginator, a worker pool and
// one saver wired together with bounded queues.
type Coordinator struct {
	opts     Options
	client   github.Client
	renderer render.Renderer
	store    store.Store

	mu    sync.Mutex
	state State
}

func New(opts Options, client github.Client, renderer render.Renderer, st store.Store) *Coordinator {
	return &Coordinator{
		opts:     opts,
		client:   client,
		renderer: renderer,
		store:    st,
		state:    StateIdle,
	}
}

// State reports the current lifecycle phase.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// setStateFrom transitions only when the current state matches from.
func (c *Coordinator) setStateFrom(from, to State) {
	c.mu.Lock()
	if c.state == from {
		c.state = to
	}
	c.mu.Unlock()
}

// Run executes the pipeline until the listing is exhausted, the context is
// canceled, or the paginator hits a fatal error. Cancellation drains: intake
// stops, in-flight stargazers finish, queued ones are dropped, and buffered
// results are flushed before Run returns. Run returns an error only when a
// fatal stop left nothing processed.
func (c *Coordinator) Run(ctx context.Context, repo github.Repo) (*model.RunSummary, error) {
	runID := uuid.New().String()
	log := zap.L().With(
		zap.String("run_id", runID),
		zap.String("repo", repo.String()),
	)
	c.setState(StateRunning)
	log.Info("run starting",
		zap.Int("workers", c.opts.Workers),
		zap.Int("queue_capacity", c.opts.QueueCapacity),
		zap.Int("max_retries", c.opts.MaxRetries))

	snap, err := c.store.Load(ctx)
	if err != nil {
		c.setState(StateStopped)
		return nil, eris.Wrap(err, "coordinator: load store snapshot")
	}
	log.Info("store snapshot loaded", zap.Int("existing", len(snap.Keys)))

	st := &stats{}
	work := make(chan *model.EnrichedStargazer, c.opts.QueueCapacity)
	results := make(chan *model.EnrichedStargazer, c.opts.QueueCapacity)
	drain := make(chan struct{})
	var drainOnce sync.Once
	closeDrain := func() { drainOnce.Do(func() { close(drain) }) }
	var inflight sync.WaitGroup

	// Interrupt watcher: a canceled context moves the run into draining.
	runDone := make(chan struct{})
	defer close(runDone)
	go func() {
		select {
		case <-ctx.Done():
			log.Info("interrupt received, draining")
			c.setStateFrom(StateRunning, StateDraining)
			closeDrain()
		case <-runDone:
		}
	}()

	var fatalErr error
	pagDone := make(chan struct{})
	p := &paginator{
		client:    c.client,
		repo:      repo,
		existing:  snap.Keys,
		limit:     c.opts.Limit,
		retryWait: c.opts.PageRetryWait,
		work:      work,
		inflight:  &inflight,
		stats:     st,
	}
	go func() {
		defer close(pagDone)
		if perr := p.run(ctx); perr != nil {
			fatalErr = perr
			c.setState(StateFatalStop)
			closeDrain()
		}
	}()

	// The work queue closes once pagination has finished and every admitted
	// stargazer has resolved to a result, a drop, or a pending requeue that
	// itself holds the in-flight count.
	go func() {
		<-pagDone
		inflight.Wait()
		close(work)
	}()

	var g errgroup.Group
	for i := 0; i < c.opts.Workers; i++ {
		w := &worker{
			id:            i,
			client:        c.client,
			renderer:      c.renderer,
			maxRetries:    c.opts.MaxRetries,
			renderTimeout: c.opts.RenderTimeout,
			work:          work,
			results:       results,
			drain:         drain,
			inflight:      &inflight,
			stats:         st,
		}
		g.Go(func() error {
			w.run(ctx)
			return nil
		})
	}

	s := &saver{
		store:     c.store,
		threshold: c.opts.FlushThreshold,
		interval:  c.opts.FlushInterval,
		results:   results,
		stats:     st,
	}
	saverDone := make(chan struct{})
	go func() {
		defer close(saverDone)
		s.run()
	}()

	g.Wait() //nolint:errcheck // workers never return errors
	close(results)
	<-saverDone
	<-pagDone

	fatal := fatalErr != nil
	if !fatal {
		c.setState(StateStopped)
	}
	summary := st.summary(runID, repo.String(), fatal)
	log.Info("run finished",
		zap.String("state", string(c.State())),
		zap.Int64("processed", summary.Processed),
		zap.Int64("abandoned", summary.Abandoned),
		zap.Int64("skipped", summary.Skipped),
		zap.Int64("dropped", summary.Dropped),
		zap.Int64("flushed", summary.Flushed))

	if fatal && summary.Processed == 0 {
		return summary, eris.Wrap(fatalErr, "coordinator: run failed before any stargazer was processed")
	}
	return summary, nil
}
