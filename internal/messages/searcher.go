package messages

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bep/debounce"

	"github.com/wesm/pushvault/internal/query"
	"github.com/wesm/pushvault/internal/store"
)

// DefaultSearchDebounce is the quiet window before a submitted search runs.
const DefaultSearchDebounce = 200 * time.Millisecond

// SearchResult is delivered by a Searcher for the most recent submission.
type SearchResult struct {
	Options  query.SearchOptions
	Messages []store.Message
	Total    int64
}

// Searcher runs searches as the user types. Submissions within the debounce
// window collapse into the last one, a new submission cancels a search that
// is still running, and results of superseded searches are discarded.
type Searcher struct {
	engine    query.Engine
	logger    *slog.Logger
	debounced func(func())

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	gen      uint64
	inflight context.CancelFunc
	closed   bool
	results  chan SearchResult
}

// SearcherOption configures a Searcher.
type SearcherOption func(*searcherConfig)

type searcherConfig struct {
	wait   time.Duration
	logger *slog.Logger
}

// WithDebounce sets the quiet window.
func WithDebounce(d time.Duration) SearcherOption {
	return func(c *searcherConfig) { c.wait = d }
}

// WithSearchLogger sets the logger for failed searches.
func WithSearchLogger(logger *slog.Logger) SearcherOption {
	return func(c *searcherConfig) { c.logger = logger }
}

// NewSearcher returns a Searcher reading from engine.
func NewSearcher(engine query.Engine, opts ...SearcherOption) *Searcher {
	cfg := searcherConfig{wait: DefaultSearchDebounce, logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Searcher{
		engine:    engine,
		logger:    cfg.logger,
		debounced: debounce.New(cfg.wait),
		ctx:       ctx,
		cancel:    cancel,
		results:   make(chan SearchResult, 1),
	}
}

// Searcher returns a Searcher over the manager's engine.
func (m *Manager) Searcher(opts ...SearcherOption) *Searcher {
	return NewSearcher(m.engine, append([]SearcherOption{WithSearchLogger(m.logger)}, opts...)...)
}

// Results delivers the outcome of the latest search. Only the newest
// undelivered result is buffered. The channel is closed by Close.
func (s *Searcher) Results() <-chan SearchResult { return s.results }

// Submit schedules a search for opts, superseding every earlier submission.
func (s *Searcher) Submit(opts query.SearchOptions) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.gen++
	gen := s.gen
	if s.inflight != nil {
		s.inflight()
		s.inflight = nil
	}
	s.mu.Unlock()

	s.debounced(func() { s.run(gen, opts) })
}

func (s *Searcher) run(gen uint64, opts query.SearchOptions) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.inflight = cancel
	s.mu.Unlock()

	res, err := s.engine.Search(ctx, opts)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen {
		return
	}
	s.inflight = nil

	out := SearchResult{Options: opts, Messages: []store.Message{}}
	if err != nil {
		s.logger.Warn("search", "text", opts.Text, "error", err)
	} else if res != nil {
		out.Messages, out.Total = res.Messages, res.Total
	}

	select {
	case <-s.results:
	default:
	}
	s.results <- out
}

// Close cancels any running search and closes Results.
func (s *Searcher) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
	close(s.results)
}
