package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/starreach/starreach-cli/internal/resilience"
	"github.com/starreach/starreach-cli/internal/store"
	"github.com/starreach/starreach-cli/pkg/github"
)

var testRepo = github.Repo{Owner: "octocat", Name: "hello-world"}

func testOptions() Options {
	return Options{
		Workers:        2,
		QueueCapacity:  4,
		MaxRetries:     3,
		FlushThreshold: 3,
		FlushInterval:  50 * time.Millisecond,
		PageRetryWait:  10 * time.Millisecond,
		RenderTimeout:  time.Second,
	}
}

// singlePage returns a client that serves the given users on the first page
// and reports the listing exhausted.
func singlePage(users ...github.User) *stubClient {
	return &stubClient{
		fetchPage: func(ctx context.Context, repo github.Repo, cursor string) (*github.Page, error) {
			return &github.Page{Users: users}, nil
		},
	}
}

func TestRunEnrichesAndPersists(t *testing.T) {
	st := &memStore{}
	client := singlePage(
		github.User{Login: "alice", HTMLURL: "https://github.com/alice"},
		github.User{Login: "bob", HTMLURL: "https://github.com/bob"},
	)
	client.fetchUser = func(ctx context.Context, login string) (*github.User, error) {
		if login == "alice" {
			return &github.User{
				Login: "alice",
				Email: "alice@users.noreply.github.com",
				Bio:   "reach me at alice@bio.example",
				Blog:  "alice.dev",
			}, nil
		}
		return &github.User{Login: login}, nil
	}

	r := &mockRenderer{}
	r.On("Render", mock.Anything, "alice.dev").
		Return(`<a href="mailto:alice@blog.example">mail</a>`, nil)
	r.On("Render", mock.Anything, mock.Anything).Return("<html><body>hi</body></html>", nil)

	c := New(testOptions(), client, r, st)
	summary, err := c.Run(context.Background(), testRepo)
	require.NoError(t, err)

	assert.Equal(t, int64(2), summary.Processed)
	assert.Equal(t, int64(0), summary.Abandoned)
	assert.Equal(t, int64(2), summary.Flushed)
	assert.Equal(t, StateStopped, c.State())

	assert.ElementsMatch(t, []string{"alice", "bob"}, st.logins())
	row, ok := st.row("alice")
	require.True(t, ok)
	// The blog is scanned after the bio, so its address wins.
	assert.Equal(t, "alice@blog.example", row.ScrapedEmail)
	assert.Equal(t, "alice@users.noreply.github.com", row.GitHubEmail)
	assert.Empty(t, row.Error)
}

func TestRunSkipsPersistedLogins(t *testing.T) {
	st := &memStore{rows: []store.Row{{Login: "alice"}}}
	var detailCalls atomic.Int64
	client := singlePage(
		github.User{Login: "alice", HTMLURL: "https://github.com/alice"},
		github.User{Login: "bob", HTMLURL: "https://github.com/bob"},
	)
	client.fetchUser = func(ctx context.Context, login string) (*github.User, error) {
		detailCalls.Add(1)
		assert.Equal(t, "bob", login)
		return &github.User{Login: login}, nil
	}

	r := &mockRenderer{}
	r.On("Render", mock.Anything, mock.Anything).Return("", nil)

	summary, err := New(testOptions(), client, r, st).Run(context.Background(), testRepo)
	require.NoError(t, err)

	assert.Equal(t, int64(1), summary.Skipped)
	assert.Equal(t, int64(1), summary.Processed)
	assert.Equal(t, int64(1), detailCalls.Load())
	assert.ElementsMatch(t, []string{"alice", "bob"}, st.logins())
}

func TestRetryBudgetIsExact(t *testing.T) {
	st := &memStore{}
	client := singlePage(github.User{Login: "bob", HTMLURL: "https://github.com/bob"})

	var attempts atomic.Int64
	r := &funcRenderer{fn: func(ctx context.Context, url string) (string, error) {
		attempts.Add(1)
		return "", errors.New("connection refused")
	}}

	opts := testOptions()
	opts.Workers = 1
	opts.MaxRetries = 3
	summary, err := New(opts, client, r, st).Run(context.Background(), testRepo)
	require.NoError(t, err)

	// Three total attempts, then the stargazer is forwarded with its error.
	assert.Equal(t, int64(3), attempts.Load())
	assert.Equal(t, int64(1), summary.Abandoned)
	assert.Equal(t, int64(0), summary.Processed)

	row, ok := st.row("bob")
	require.True(t, ok)
	assert.Contains(t, row.Error, "connection refused")
}

func TestRateLimitDoesNotConsumeRetryBudget(t *testing.T) {
	st := &memStore{}
	client := singlePage(github.User{Login: "carol", HTMLURL: "https://github.com/carol"})

	var detailCalls atomic.Int64
	client.fetchUser = func(ctx context.Context, login string) (*github.User, error) {
		if detailCalls.Add(1) <= 2 {
			return nil, &resilience.RateLimitError{Wait: 20 * time.Millisecond}
		}
		return &github.User{Login: login}, nil
	}

	r := &mockRenderer{}
	r.On("Render", mock.Anything, mock.Anything).Return("", nil)

	start := time.Now()
	summary, err := New(testOptions(), client, r, st).Run(context.Background(), testRepo)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.Equal(t, int64(3), detailCalls.Load())
	assert.Equal(t, int64(1), summary.Processed)
	assert.Equal(t, int64(0), summary.Abandoned)
}

func TestPaginatorHonorsRateLimitWait(t *testing.T) {
	st := &memStore{}
	var calls atomic.Int64
	var firstAt, secondAt time.Time
	client := &stubClient{
		fetchPage: func(ctx context.Context, repo github.Repo, cursor string) (*github.Page, error) {
			switch calls.Add(1) {
			case 1:
				firstAt = time.Now()
				return &github.Page{Wait: 50 * time.Millisecond}, nil
			default:
				secondAt = time.Now()
				// The same cursor must be re-fetched after the wait.
				assert.Equal(t, "", cursor)
				return &github.Page{Users: []github.User{{Login: "dave", HTMLURL: "https://github.com/dave"}}}, nil
			}
		},
	}

	r := &mockRenderer{}
	r.On("Render", mock.Anything, mock.Anything).Return("", nil)

	summary, err := New(testOptions(), client, r, st).Run(context.Background(), testRepo)
	require.NoError(t, err)

	assert.Equal(t, int64(2), calls.Load())
	assert.GreaterOrEqual(t, secondAt.Sub(firstAt), 50*time.Millisecond)
	assert.Equal(t, int64(1), summary.Processed)
}

func TestPaginatorRetriesTransientPageErrors(t *testing.T) {
	st := &memStore{}
	var calls atomic.Int64
	client := &stubClient{
		fetchPage: func(ctx context.Context, repo github.Repo, cursor string) (*github.Page, error) {
			if calls.Add(1) == 1 {
				return nil, resilience.NewTransientError(errors.New("bad gateway"), 502)
			}
			return &github.Page{Users: []github.User{{Login: "erin", HTMLURL: "https://github.com/erin"}}}, nil
		},
	}

	r := &mockRenderer{}
	r.On("Render", mock.Anything, mock.Anything).Return("", nil)

	summary, err := New(testOptions(), client, r, st).Run(context.Background(), testRepo)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Processed)
	assert.Equal(t, int64(2), calls.Load())
}

func TestFatalPageErrorFailsEmptyRun(t *testing.T) {
	st := &memStore{}
	client := &stubClient{
		fetchPage: func(ctx context.Context, repo github.Repo, cursor string) (*github.Page, error) {
			return nil, resilience.NewFatalError(errors.New("repository not found"), 404)
		},
	}

	c := New(testOptions(), client, &mockRenderer{}, st)
	summary, err := c.Run(context.Background(), testRepo)
	require.Error(t, err)
	require.NotNil(t, summary)
	assert.True(t, summary.Fatal)
	assert.Equal(t, int64(0), summary.Processed)
	assert.Equal(t, StateFatalStop, c.State())
	assert.Empty(t, st.logins())
}

func TestFatalAfterProgressKeepsResults(t *testing.T) {
	st := &memStore{}
	client := &stubClient{
		fetchPage: func(ctx context.Context, repo github.Repo, cursor string) (*github.Page, error) {
			if cursor == "" {
				return &github.Page{
					Users:      []github.User{{Login: "alice", HTMLURL: "https://github.com/alice"}},
					NextCursor: "page2",
				}, nil
			}
			// Hold the fatal page back until alice has been flushed, so the
			// run has durable progress when the stop hits.
			for i := 0; i < 200; i++ {
				st.mu.Lock()
				writes := st.writes
				st.mu.Unlock()
				if writes > 0 {
					break
				}
				time.Sleep(10 * time.Millisecond)
			}
			return nil, resilience.NewFatalError(errors.New("token revoked"), 401)
		},
	}

	r := &mockRenderer{}
	r.On("Render", mock.Anything, mock.Anything).Return("", nil)

	opts := testOptions()
	opts.FlushThreshold = 1
	c := New(opts, client, r, st)
	summary, err := c.Run(context.Background(), testRepo)

	require.NoError(t, err)
	assert.True(t, summary.Fatal)
	assert.Equal(t, int64(1), summary.Processed)
	assert.Equal(t, StateFatalStop, c.State())
	assert.ElementsMatch(t, []string{"alice"}, st.logins())
}

func TestDrainFlushesForwardedResults(t *testing.T) {
	st := &memStore{}
	client := &stubClient{
		fetchPage: func(ctx context.Context, repo github.Repo, cursor string) (*github.Page, error) {
			if cursor == "" {
				return &github.Page{
					Users: []github.User{
						{Login: "alice", HTMLURL: "https://github.com/alice"},
						{Login: "bob", HTMLURL: "https://github.com/bob"},
					},
					NextCursor: "page2",
				}, nil
			}
			<-ctx.Done() // the listing never finishes on its own
			return nil, ctx.Err()
		},
	}

	var rendered sync.WaitGroup
	rendered.Add(2)
	r := &funcRenderer{fn: func(ctx context.Context, url string) (string, error) {
		rendered.Done()
		return "", nil
	}}

	opts := testOptions()
	opts.FlushThreshold = 100
	opts.FlushInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c := New(opts, client, r, st)
	var summaryErr error
	var got int64
	go func() {
		defer close(done)
		summary, err := c.Run(ctx, testRepo)
		summaryErr = err
		if summary != nil {
			got = summary.Processed
		}
	}()

	rendered.Wait()
	time.Sleep(50 * time.Millisecond) // let the results reach the saver
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not drain")
	}
	require.NoError(t, summaryErr)
	assert.Equal(t, int64(2), got)
	assert.ElementsMatch(t, []string{"alice", "bob"}, st.logins())
}

func TestDrainDropsQueuedStargazers(t *testing.T) {
	st := &memStore{}
	client := singlePage(
		github.User{Login: "alice", HTMLURL: "https://github.com/alice"},
		github.User{Login: "bob", HTMLURL: "https://github.com/bob"},
	)

	started := make(chan struct{})
	var once sync.Once
	r := &funcRenderer{fn: func(ctx context.Context, url string) (string, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return "", ctx.Err()
	}}

	opts := testOptions()
	opts.Workers = 1
	opts.RenderTimeout = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-started
		cancel()
	}()

	summary, err := New(opts, client, r, st).Run(ctx, testRepo)
	require.NoError(t, err)

	assert.Equal(t, int64(0), summary.Processed)
	assert.Equal(t, int64(2), summary.Dropped)
	assert.Empty(t, st.logins())
}

func TestBackpressureBoundsPageFetches(t *testing.T) {
	st := &memStore{}
	var pages atomic.Int64
	client := &stubClient{
		fetchPage: func(ctx context.Context, repo github.Repo, cursor string) (*github.Page, error) {
			n := pages.Add(1)
			return &github.Page{
				Users:      []github.User{{Login: "user" + string(rune('a'+n%26)), HTMLURL: "https://github.com/u"}},
				NextCursor: "more",
			}, nil
		},
	}

	r := &funcRenderer{fn: func(ctx context.Context, url string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}

	opts := testOptions()
	opts.Workers = 1
	opts.QueueCapacity = 2
	opts.RenderTimeout = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = New(opts, client, r, st).Run(ctx, testRepo)
	}()

	time.Sleep(300 * time.Millisecond)
	fetched := pages.Load()
	// The paginator stalls once the queue and the pool are saturated:
	// capacity + workers admitted, plus one send in flight.
	assert.LessOrEqual(t, fetched, int64(opts.QueueCapacity+opts.Workers+2))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, fetched, pages.Load(), "paginator kept fetching while saturated")

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not drain")
	}
}

func TestLimitStopsIntake(t *testing.T) {
	st := &memStore{}
	users := make([]github.User, 10)
	for i := range users {
		users[i] = github.User{Login: "user" + string(rune('a'+i)), HTMLURL: "https://github.com/u"}
	}
	client := singlePage(users...)

	r := &mockRenderer{}
	r.On("Render", mock.Anything, mock.Anything).Return("", nil)

	opts := testOptions()
	opts.Limit = 3
	summary, err := New(opts, client, r, st).Run(context.Background(), testRepo)
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.Processed)
	assert.Len(t, st.logins(), 3)
}

// Existing alice is untouched; bob is enriched from his bio alone (no
// website, no profile URL, so nothing is rendered).
func TestRunBioOnlyEnrichment(t *testing.T) {
	st := &memStore{rows: []store.Row{{Login: "alice", Name: "Alice Original"}}}
	client := singlePage(
		github.User{Login: "alice", HTMLURL: "https://github.com/alice"},
		github.User{Login: "bob"},
	)
	client.fetchUser = func(ctx context.Context, login string) (*github.User, error) {
		return &github.User{Login: "bob", Bio: "contact: bob@x.com"}, nil
	}

	r := &funcRenderer{fn: func(ctx context.Context, url string) (string, error) {
		t.Errorf("unexpected render of %s", url)
		return "", nil
	}}

	summary, err := New(testOptions(), client, r, st).Run(context.Background(), testRepo)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Processed)
	assert.Equal(t, int64(1), summary.Skipped)

	require.Len(t, st.logins(), 2)
	alice, _ := st.row("alice")
	assert.Equal(t, "Alice Original", alice.Name)
	bob, ok := st.row("bob")
	require.True(t, ok)
	assert.Equal(t, "bob@x.com", bob.ScrapedEmail)
}

// End-to-end against a real workbook: first run persists alice and bob,
// second run skips both and appends only the newcomer.
func TestRunAgainstXLSXStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stargazers.xlsx")

	r := &mockRenderer{}
	r.On("Render", mock.Anything, mock.Anything).Return("", nil)

	first := store.NewXLSX(path)
	summary, err := New(testOptions(), singlePage(
		github.User{Login: "alice", HTMLURL: "https://github.com/alice"},
		github.User{Login: "bob", HTMLURL: "https://github.com/bob"},
	), r, first).Run(context.Background(), testRepo)
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.Processed)

	second := store.NewXLSX(path)
	summary, err = New(testOptions(), singlePage(
		github.User{Login: "alice", HTMLURL: "https://github.com/alice"},
		github.User{Login: "bob", HTMLURL: "https://github.com/bob"},
		github.User{Login: "carol", HTMLURL: "https://github.com/carol"},
	), r, second).Run(context.Background(), testRepo)
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.Skipped)
	assert.Equal(t, int64(1), summary.Processed)

	snap, err := store.NewXLSX(path).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Rows, 3)
	assert.True(t, snap.Has("alice"))
	assert.True(t, snap.Has("bob"))
	assert.True(t, snap.Has("carol"))
}

func TestWorkerPanicCountsAsFailure(t *testing.T) {
	st := &memStore{}
	client := singlePage(github.User{Login: "mallory", HTMLURL: "https://github.com/mallory"})

	r := &funcRenderer{fn: func(ctx context.Context, url string) (string, error) {
		panic("render exploded")
	}}

	opts := testOptions()
	opts.Workers = 1
	summary, err := New(opts, client, r, st).Run(context.Background(), testRepo)
	require.NoError(t, err)

	assert.Equal(t, int64(1), summary.Abandoned)
	row, ok := st.row("mallory")
	require.True(t, ok)
	assert.Contains(t, row.Error, "panic")
}
