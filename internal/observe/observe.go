// Package observe recomputes the derived views (counts and grouped latest
// messages) whenever the message table changes, no matter which process
// made the change, and publishes the results to subscribers.
//
// Three sources feed one coalescing trigger: explicit Trigger calls from
// local writers, the cross-process broadcast signal, and a poller that
// compares the database change fingerprint. A single worker drains the
// trigger, so recomputations never overlap and a burst of triggers while
// one is running collapses into exactly one follow-up run.
package observe

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesm/pushvault/internal/broadcast"
	"github.com/wesm/pushvault/internal/query"
	"github.com/wesm/pushvault/internal/store"
)

// DefaultPollInterval is how often the fingerprint is checked.
const DefaultPollInterval = time.Second

// CacheWriter receives every recomputed group list.
// *groupcache.Cache satisfies it.
type CacheWriter interface {
	Set(groups []store.GroupSummary) error
}

// EventKind says which part of a recomputation an Event announces.
type EventKind int

const (
	// CountsChanged is published first in every recomputation.
	CountsChanged EventKind = iota + 1
	// GroupsChanged follows once the grouped list and cache are written.
	GroupsChanged
)

func (k EventKind) String() string {
	switch k {
	case CountsChanged:
		return "counts"
	case GroupsChanged:
		return "groups"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a snapshot of the published views. Groups is shared between
// subscribers and must not be modified.
type Event struct {
	Kind   EventKind
	Counts query.Counts
	Groups []store.GroupSummary
}

// Observer owns the recomputation pipeline.
type Observer struct {
	engine       query.Engine
	cache        CacheWriter
	logger       *slog.Logger
	pollInterval time.Duration
	signalPath   string

	trigger chan struct{}
	runMu   sync.Mutex
	runs    atomic.Int64
	running atomic.Bool

	fpMu   sync.Mutex
	lastFP *query.Fingerprint

	mu     sync.RWMutex
	counts query.Counts
	groups []store.GroupSummary

	subMu  sync.Mutex
	subs   map[int]chan Event
	nextID int
}

// Option configures an Observer.
type Option func(*Observer)

// WithLogger sets the logger for pipeline failures.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Observer) { o.logger = logger }
}

// WithPollInterval sets how often the change fingerprint is compared. A
// non-positive interval disables polling.
func WithPollInterval(d time.Duration) Option {
	return func(o *Observer) { o.pollInterval = d }
}

// WithSignal makes Run listen for the cross-process broadcast signal at path.
func WithSignal(path string) Option {
	return func(o *Observer) { o.signalPath = path }
}

// New creates an Observer reading from engine. cache may be nil.
func New(engine query.Engine, cache CacheWriter, opts ...Option) *Observer {
	o := &Observer{
		engine:       engine,
		cache:        cache,
		logger:       slog.Default(),
		pollInterval: DefaultPollInterval,
		trigger:      make(chan struct{}, 1),
		groups:       []store.GroupSummary{},
		subs:         make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Trigger requests a recomputation. It never blocks: when a request is
// already pending the call is absorbed into it.
func (o *Observer) Trigger() {
	select {
	case o.trigger <- struct{}{}:
	default:
	}
}

// Run primes the views, then recomputes on every trigger, broadcast signal
// or fingerprint change until ctx is cancelled.
func (o *Observer) Run(ctx context.Context) error {
	if o.signalPath != "" {
		l, err := broadcast.Listen(o.signalPath, o.Trigger, broadcast.WithLogger(o.logger))
		if err != nil {
			return fmt.Errorf("observe: %w", err)
		}
		defer l.Close()
	}

	o.running.Store(true)
	defer o.running.Store(false)

	_ = o.RefreshNow(ctx)

	var tick <-chan time.Time
	if o.pollInterval > 0 {
		ticker := time.NewTicker(o.pollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-o.trigger:
			_ = o.RefreshNow(ctx)
		case <-tick:
			if o.fingerprintChanged(ctx) {
				_ = o.RefreshNow(ctx)
			}
		}
	}
}

func (o *Observer) fingerprintChanged(ctx context.Context) bool {
	fp, err := o.engine.Fingerprint(ctx)
	if err != nil {
		if ctx.Err() == nil {
			o.logger.Warn("read change fingerprint", "error", err)
		}
		return false
	}
	o.fpMu.Lock()
	defer o.fpMu.Unlock()
	return o.lastFP == nil || *o.lastFP != fp
}

// RefreshNow runs the pipeline synchronously: counts, publish counts,
// grouped list, cache write, publish groups. It is serialized with the Run
// worker. Failures are logged and returned; the previously published views
// stay in place until a later run succeeds.
func (o *Observer) RefreshNow(ctx context.Context) error {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	o.runs.Add(1)

	fp, fpErr := o.engine.Fingerprint(ctx)

	counts, err := o.engine.Counts(ctx, nil)
	if err != nil {
		o.logger.Warn("recompute counts", "error", err)
		return fmt.Errorf("counts: %w", err)
	}
	o.mu.Lock()
	o.counts = counts
	groups := o.groups
	o.mu.Unlock()
	o.publish(Event{Kind: CountsChanged, Counts: counts, Groups: groups})

	groups, err = o.engine.GroupedLatest(ctx)
	if err != nil {
		o.logger.Warn("recompute grouped latest", "error", err)
		return fmt.Errorf("grouped latest: %w", err)
	}
	if groups == nil {
		groups = []store.GroupSummary{}
	}

	if o.cache != nil {
		if err := o.cache.Set(groups); err != nil {
			o.logger.Warn("write group cache", "error", err)
		}
	}

	o.mu.Lock()
	o.groups = groups
	o.mu.Unlock()
	o.publish(Event{Kind: GroupsChanged, Counts: counts, Groups: groups})

	if fpErr == nil {
		o.fpMu.Lock()
		o.lastFP = &fp
		o.fpMu.Unlock()
	}
	o.logger.Debug("views recomputed", "unread", counts.Unread, "total", counts.Total, "groups", len(groups))
	return nil
}

// Running reports whether Run is draining triggers.
func (o *Observer) Running() bool { return o.running.Load() }

// Runs returns how many times the pipeline has started.
func (o *Observer) Runs() int64 { return o.runs.Load() }

// Counts returns the last published counters.
func (o *Observer) Counts() query.Counts {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.counts
}

// Groups returns a copy of the last published group list.
func (o *Observer) Groups() []store.GroupSummary {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return slices.Clone(o.groups)
}

// Subscribe returns a channel that always holds the most recent unread
// Event: a slow subscriber skips intermediate events and never blocks the
// pipeline. Call the returned function to unsubscribe; it closes the channel.
func (o *Observer) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 1)

	o.subMu.Lock()
	id := o.nextID
	o.nextID++
	o.subs[id] = ch
	o.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.subMu.Lock()
			delete(o.subs, id)
			o.subMu.Unlock()
			close(ch)
		})
	}
}

func (o *Observer) publish(ev Event) {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	for _, ch := range o.subs {
		// Drop the stale event, if any, so the send below cannot block.
		select {
		case <-ch:
		default:
		}
		ch <- ev
	}
}
