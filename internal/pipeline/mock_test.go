package pipeline

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/starreach/starreach-cli/internal/store"
	"github.com/starreach/starreach-cli/pkg/github"
)

// stubClient is a function-backed github.Client for stateful pagination
// scenarios that are awkward to express as canned mock expectations.
type stubClient struct {
	fetchPage func(ctx context.Context, repo github.Repo, cursor string) (*github.Page, error)
	fetchUser func(ctx context.Context, login string) (*github.User, error)
}

func (s *stubClient) FetchPage(ctx context.Context, repo github.Repo, cursor string) (*github.Page, error) {
	return s.fetchPage(ctx, repo, cursor)
}

func (s *stubClient) FetchUser(ctx context.Context, login string) (*github.User, error) {
	if s.fetchUser == nil {
		return &github.User{Login: login}, nil
	}
	return s.fetchUser(ctx, login)
}

type mockRenderer struct {
	mock.Mock
}

func (m *mockRenderer) Render(ctx context.Context, url string) (string, error) {
	args := m.Called(ctx, url)
	return args.String(0), args.Error(1)
}

func (m *mockRenderer) Name() string {
	return "mock"
}

// funcRenderer is a function-backed renderer for tests that need to count
// calls or block until signaled.
type funcRenderer struct {
	fn func(ctx context.Context, url string) (string, error)
}

func (f *funcRenderer) Render(ctx context.Context, url string) (string, error) {
	return f.fn(ctx, url)
}

func (f *funcRenderer) Name() string { return "func" }

// memStore is an in-memory store.Store that mirrors the load/replace
// contract of the real drivers and records every write.
type memStore struct {
	mu     sync.Mutex
	rows   []store.Row
	writes int
	// loadErr and writeErr, when set, fail the next matching call once.
	loadErr  error
	writeErr error
}

func (m *memStore) Load(ctx context.Context) (*store.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		err := m.loadErr
		m.loadErr = nil
		return nil, err
	}
	rows := make([]store.Row, len(m.rows))
	copy(rows, m.rows)
	keys := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		keys[r.Login] = struct{}{}
	}
	return &store.Snapshot{Rows: rows, Keys: keys}, nil
}

func (m *memStore) Write(ctx context.Context, rows []store.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		err := m.writeErr
		m.writeErr = nil
		return err
	}
	m.rows = make([]store.Row, len(rows))
	copy(m.rows, rows)
	m.writes++
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) logins() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r.Login)
	}
	return out
}

func (m *memStore) row(login string) (store.Row, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.Login == login {
			return r, true
		}
	}
	return store.Row{}, false
}
