package messages

import (
	"context"
	"testing"
	"time"

	"github.com/wesm/pushvault/internal/query"
	"github.com/wesm/pushvault/internal/query/querytest"
	"github.com/wesm/pushvault/internal/store"
	"github.com/wesm/pushvault/internal/testutil"
)

func echoEngine() *querytest.MockEngine {
	return &querytest.MockEngine{
		SearchFunc: func(ctx context.Context, opts query.SearchOptions) (*query.SearchResult, error) {
			m := testutil.NewMessage(opts.Text).Build()
			return &query.SearchResult{Messages: []store.Message{m}, Total: 1}, nil
		},
	}
}

func recv(t *testing.T, ch <-chan SearchResult) SearchResult {
	t.Helper()
	select {
	case r, ok := <-ch:
		if !ok {
			t.Fatal("results channel closed")
		}
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a search result")
	}
	return SearchResult{}
}

func assertNoResult(t *testing.T, ch <-chan SearchResult, wait time.Duration) {
	t.Helper()
	select {
	case r := <-ch:
		t.Errorf("unexpected result for %q", r.Options.Text)
	case <-time.After(wait):
	}
}

func TestSearcher_DebounceKeepsLastSubmission(t *testing.T) {
	eng := echoEngine()
	s := NewSearcher(eng, WithDebounce(30*time.Millisecond), WithSearchLogger(quietLogger()))
	defer s.Close()

	for _, text := range []string{"d", "di", "dis", "disk"} {
		s.Submit(query.SearchOptions{Text: text})
	}

	r := recv(t, s.Results())
	if r.Options.Text != "disk" || r.Total != 1 || r.Messages[0].ID != "disk" {
		t.Errorf("result = %+v, want the disk search", r)
	}
	assertNoResult(t, s.Results(), 100*time.Millisecond)
	if n := eng.Calls("Search"); n != 1 {
		t.Errorf("Search ran %d times, want 1", n)
	}
}

func TestSearcher_SupersededSearchIsCancelledAndDiscarded(t *testing.T) {
	started := make(chan struct{}, 1)
	cancelled := make(chan struct{}, 1)
	eng := &querytest.MockEngine{
		SearchFunc: func(ctx context.Context, opts query.SearchOptions) (*query.SearchResult, error) {
			if opts.Text == "slow" {
				started <- struct{}{}
				<-ctx.Done()
				cancelled <- struct{}{}
				// A late result must still be discarded.
				return &query.SearchResult{Total: 99}, nil
			}
			return &query.SearchResult{Total: 1}, nil
		},
	}
	s := NewSearcher(eng, WithDebounce(time.Millisecond), WithSearchLogger(quietLogger()))
	defer s.Close()

	s.Submit(query.SearchOptions{Text: "slow"})
	<-started
	s.Submit(query.SearchOptions{Text: "fast"})

	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("superseded search was not cancelled")
	}

	r := recv(t, s.Results())
	if r.Options.Text != "fast" || r.Total != 1 {
		t.Errorf("result = %+v, want fast", r)
	}
	assertNoResult(t, s.Results(), 50*time.Millisecond)
}

func TestSearcher_ErrorDeliversEmpty(t *testing.T) {
	eng := &querytest.MockEngine{
		SearchFunc: func(context.Context, query.SearchOptions) (*query.SearchResult, error) {
			return nil, context.DeadlineExceeded
		},
	}
	s := NewSearcher(eng, WithDebounce(time.Millisecond), WithSearchLogger(quietLogger()))
	defer s.Close()

	s.Submit(query.SearchOptions{Text: "x"})
	r := recv(t, s.Results())
	if r.Messages == nil || len(r.Messages) != 0 || r.Total != 0 {
		t.Errorf("result = %+v, want empty", r)
	}
}

func TestSearcher_Close(t *testing.T) {
	eng := echoEngine()
	s := NewSearcher(eng, WithDebounce(10*time.Millisecond))
	s.Submit(query.SearchOptions{Text: "pending"})
	s.Close()
	s.Close()
	s.Submit(query.SearchOptions{Text: "after"})

	if _, ok := <-s.Results(); ok {
		t.Error("Results not closed")
	}
	time.Sleep(50 * time.Millisecond)
	if n := eng.Calls("Search"); n != 0 {
		t.Errorf("Search ran %d times after Close, want 0", n)
	}
}

func TestManagerSearcher(t *testing.T) {
	e := newEnv(t)
	e.Insert(
		testutil.NewMessage("a").Title("disk full").Build(),
		testutil.NewMessage("b").Title("cpu hot").Build(),
	)
	s := e.mgr.Searcher(WithDebounce(time.Millisecond))
	defer s.Close()

	s.Submit(query.SearchOptions{Text: "disk"})
	r := recv(t, s.Results())
	if r.Total != 1 || r.Messages[0].ID != "a" {
		t.Errorf("result = %+v", r)
	}
}
