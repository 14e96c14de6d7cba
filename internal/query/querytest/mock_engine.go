// Package querytest provides shared test doubles for the query.Engine interface.
package querytest

import (
	"context"
	"sync"

	"github.com/wesm/pushvault/internal/query"
	"github.com/wesm/pushvault/internal/store"
)

// MockEngine implements query.Engine for testing. Each method delegates to an
// optional function field; when the field is nil, the matching canned value
// is returned. Call counts are recorded for every method.
type MockEngine struct {
	Messages     map[string]*store.Message
	ListResults  []store.Message
	SearchResult *query.SearchResult
	Groups       []store.GroupSummary
	CountsResult query.Counts
	FP           query.Fingerprint
	Names        []string
	EachResults  []store.Message

	// Optional overrides: set these to customise behavior per-test.
	GetMessageFunc    func(context.Context, string) (*store.Message, error)
	ListMessagesFunc  func(context.Context, query.ListOptions) ([]store.Message, error)
	SearchFunc        func(context.Context, query.SearchOptions) (*query.SearchResult, error)
	GroupedLatestFunc func(context.Context) ([]store.GroupSummary, error)
	CountsFunc        func(context.Context, *string) (query.Counts, error)
	FingerprintFunc   func(context.Context) (query.Fingerprint, error)

	mu    sync.Mutex
	calls map[string]int
}

// Compile-time check.
var _ query.Engine = (*MockEngine)(nil)

func (m *MockEngine) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[name]++
}

// Calls returns how many times the named method was invoked.
func (m *MockEngine) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *MockEngine) GetMessage(ctx context.Context, id string) (*store.Message, error) {
	m.record("GetMessage")
	if m.GetMessageFunc != nil {
		return m.GetMessageFunc(ctx, id)
	}
	return m.Messages[id], nil
}

func (m *MockEngine) ListMessages(ctx context.Context, opts query.ListOptions) ([]store.Message, error) {
	m.record("ListMessages")
	if m.ListMessagesFunc != nil {
		return m.ListMessagesFunc(ctx, opts)
	}
	return m.ListResults, nil
}

func (m *MockEngine) Search(ctx context.Context, opts query.SearchOptions) (*query.SearchResult, error) {
	m.record("Search")
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, opts)
	}
	if m.SearchResult == nil {
		return &query.SearchResult{}, nil
	}
	return m.SearchResult, nil
}

func (m *MockEngine) GroupedLatest(ctx context.Context) ([]store.GroupSummary, error) {
	m.record("GroupedLatest")
	if m.GroupedLatestFunc != nil {
		return m.GroupedLatestFunc(ctx)
	}
	return m.Groups, nil
}

func (m *MockEngine) Counts(ctx context.Context, group *string) (query.Counts, error) {
	m.record("Counts")
	if m.CountsFunc != nil {
		return m.CountsFunc(ctx, group)
	}
	return m.CountsResult, nil
}

func (m *MockEngine) Fingerprint(ctx context.Context) (query.Fingerprint, error) {
	m.record("Fingerprint")
	if m.FingerprintFunc != nil {
		return m.FingerprintFunc(ctx)
	}
	return m.FP, nil
}

func (m *MockEngine) EachMessage(_ context.Context, fn func(store.Message) error) error {
	m.record("EachMessage")
	for _, msg := range m.EachResults {
		if err := fn(msg); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockEngine) GroupNames(_ context.Context) ([]string, error) {
	m.record("GroupNames")
	return m.Names, nil
}

func (m *MockEngine) Close() error {
	return nil
}
