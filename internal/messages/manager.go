// Package messages is the entry point collaborators use: writes go through
// the store, reads through the query engine, and the derived views are kept
// current by an observer that every write pokes.
package messages

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wesm/pushvault/internal/broadcast"
	"github.com/wesm/pushvault/internal/export"
	"github.com/wesm/pushvault/internal/groupcache"
	"github.com/wesm/pushvault/internal/importer"
	"github.com/wesm/pushvault/internal/observe"
	"github.com/wesm/pushvault/internal/query"
	"github.com/wesm/pushvault/internal/store"
	"github.com/wesm/pushvault/internal/textutil"
)

// Manager coordinates the store, the read engine, the group cache and the
// change observer.
type Manager struct {
	store    *store.Store
	engine   query.Engine
	cache    *groupcache.Cache
	observer *observe.Observer
	poster   *broadcast.Poster
	logger   *slog.Logger

	defaultGroup string
	defaultTTL   int
	pollInterval time.Duration
	now          func() time.Time

	stampMu   sync.Mutex
	lastStamp time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used by the manager and its observer.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithSignal enables the cross-process broadcast at path: writes post it
// and the observer listens for it.
func WithSignal(path string) Option {
	return func(m *Manager) { m.poster = broadcast.NewPoster(path) }
}

// WithPollInterval sets the observer's fingerprint poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) { m.pollInterval = d }
}

// WithDefaultGroup sets the group assigned to messages without one.
func WithDefaultGroup(group string) Option {
	return func(m *Manager) {
		if group != "" {
			m.defaultGroup = group
		}
	}
}

// WithDefaultTTL sets the ttl Ingest uses when a payload has none.
func WithDefaultTTL(days int) Option {
	return func(m *Manager) { m.defaultTTL = days }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New wires a Manager. cache may be nil, in which case Groups always
// queries the database.
func New(st *store.Store, engine query.Engine, cache *groupcache.Cache, opts ...Option) *Manager {
	m := &Manager{
		store:        st,
		engine:       engine,
		cache:        cache,
		logger:       slog.Default(),
		defaultGroup: store.DefaultGroup,
		defaultTTL:   store.TTLForever,
		pollInterval: observe.DefaultPollInterval,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	obsOpts := []observe.Option{
		observe.WithLogger(m.logger),
		observe.WithPollInterval(m.pollInterval),
	}
	if m.poster != nil {
		obsOpts = append(obsOpts, observe.WithSignal(m.poster.Path()))
	}
	var cw observe.CacheWriter
	if cache != nil {
		cw = cache
	}
	m.observer = observe.New(engine, cw, obsOpts...)
	st.OnChange(m.observer.Trigger)
	return m
}

// Observer returns the change observer.
func (m *Manager) Observer() *observe.Observer { return m.observer }

// Run drives the observer until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	return m.observer.Run(ctx)
}

// Subscribe forwards to the observer.
func (m *Manager) Subscribe() (<-chan observe.Event, func()) {
	return m.observer.Subscribe()
}

// stamp returns a createDate strictly after every stamp this Manager has
// handed out, at the millisecond precision the store keeps.
func (m *Manager) stamp() time.Time {
	m.stampMu.Lock()
	defer m.stampMu.Unlock()
	t := m.now().UTC().Truncate(time.Millisecond)
	if !t.After(m.lastStamp) {
		t = m.lastStamp.Add(time.Millisecond)
	}
	m.lastStamp = t
	return t
}

// written posts the cross-process signal and brings the local views up to
// date. A running observer gets a trigger that lands after any optimistic
// cache write; otherwise the views are recomputed before returning.
func (m *Manager) written(ctx context.Context) {
	if m.poster != nil {
		if err := m.poster.Post(); err != nil {
			m.logger.Warn("post change signal", "path", m.poster.Path(), "error", err)
		}
	}
	if m.observer.Running() {
		m.observer.Trigger()
		return
	}
	_ = m.observer.RefreshNow(ctx)
}

// Add stores msg, replacing any message with the same id, and returns the
// stored value. A missing id, group or createDate is filled in.
func (m *Manager) Add(ctx context.Context, msg store.Message) (store.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Group == "" {
		msg.Group = m.defaultGroup
	}
	if msg.CreateDate.IsZero() {
		msg.CreateDate = m.stamp()
	} else {
		msg.CreateDate = msg.CreateDate.UTC().Truncate(time.Millisecond)
	}
	normalize(&msg)

	optimistic := m.cache != nil && m.observer.Running()
	var prev *store.Message
	if optimistic {
		prev = m.Get(ctx, msg.ID)
	}

	if err := m.store.InsertOrReplace(ctx, &msg); err != nil {
		m.logger.Warn("add message", "id", msg.ID, "error", err)
		return store.Message{}, wrap(ErrWriteFailed, "add", err)
	}

	if optimistic {
		m.prependCached(msg, prev)
	}
	m.written(ctx)
	return msg, nil
}

// prependCached puts msg at the head of the cached group list before the
// observer's full recomputation lands, so readers never see a list that
// predates the write. prev is the row msg replaced, if any.
func (m *Manager) prependCached(msg store.Message, prev *store.Message) {
	var unread int64
	for _, g := range m.cache.Get() {
		if g.Group == msg.Group {
			unread = g.UnreadCount
			break
		}
	}
	if prev != nil && prev.Group == msg.Group && !prev.IsRead {
		unread--
	}
	if !msg.IsRead {
		unread++
	}
	unread = max(unread, 0)
	if err := m.cache.Prepend(store.GroupSummary{Message: msg, UnreadCount: unread}); err != nil {
		m.logger.Warn("prepend group cache", "group", msg.Group, "error", err)
	}
}

func normalize(msg *store.Message) {
	for _, p := range []**string{&msg.Title, &msg.Subtitle, &msg.Body, &msg.From, &msg.Host} {
		*p = textutil.NormalizePtr(*p)
	}
	msg.Group = textutil.Normalize(msg.Group)
}

// Get returns the message with id, or nil when it is absent or the read
// failed.
func (m *Manager) Get(ctx context.Context, id string) *store.Message {
	msg, err := m.engine.GetMessage(ctx, id)
	if err != nil {
		m.logger.Warn("get message", "id", id, "error", err)
		return nil
	}
	return msg
}

// List returns a page of messages, newest first.
func (m *Manager) List(ctx context.Context, opts query.ListOptions) []store.Message {
	msgs, err := m.engine.ListMessages(ctx, opts)
	if err != nil {
		m.logger.Warn("list messages", "error", err)
		return []store.Message{}
	}
	return msgs
}

// Search returns a page of matches and the total match count.
func (m *Manager) Search(ctx context.Context, opts query.SearchOptions) ([]store.Message, int64) {
	res, err := m.engine.Search(ctx, opts)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("search messages", "error", err)
		}
		return []store.Message{}, 0
	}
	return res.Messages, res.Total
}

// Groups returns the grouped summaries from the cache, falling back to a
// live query when the cache is empty.
func (m *Manager) Groups(ctx context.Context) []store.GroupSummary {
	if m.cache != nil {
		if groups := m.cache.Get(); len(groups) > 0 {
			return groups
		}
	}
	groups, err := m.engine.GroupedLatest(ctx)
	if err != nil {
		m.logger.Warn("grouped latest", "error", err)
		return []store.GroupSummary{}
	}
	if groups == nil {
		groups = []store.GroupSummary{}
	}
	return groups
}

// GroupNames lists the distinct groups.
func (m *Manager) GroupNames(ctx context.Context) []string {
	names, err := m.engine.GroupNames(ctx)
	if err != nil {
		m.logger.Warn("group names", "error", err)
		return []string{}
	}
	return names
}

// Counts returns unread and total counts, optionally for one group.
func (m *Manager) Counts(ctx context.Context, group *string) query.Counts {
	c, err := m.engine.Counts(ctx, group)
	if err != nil {
		m.logger.Warn("counts", "error", err)
		return query.Counts{}
	}
	return c
}

// MarkAllRead marks every unread message read, optionally limited to group.
func (m *Manager) MarkAllRead(ctx context.Context, group *string) (int64, error) {
	n, err := m.store.MarkAllRead(ctx, group)
	if err != nil {
		return 0, wrap(ErrWriteFailed, "mark read", err)
	}
	if n > 0 {
		m.written(ctx)
	}
	return n, nil
}

// MarkRead marks the given messages read.
func (m *Manager) MarkRead(ctx context.Context, ids ...string) (int64, error) {
	n, err := m.store.MarkRead(ctx, ids...)
	if err != nil {
		return 0, wrap(ErrWriteFailed, "mark read", err)
	}
	if n > 0 {
		m.written(ctx)
	}
	return n, nil
}

func (m *Manager) delete(ctx context.Context, op string, p store.DeletePredicate) (int64, error) {
	n, err := m.store.Delete(ctx, p)
	if err != nil {
		return 0, wrap(ErrWriteFailed, op, err)
	}
	if n > 0 {
		m.written(ctx)
		m.logger.Debug("deleted messages", "op", op, "count", n)
	}
	return n, nil
}

// DeleteReadBefore removes read messages created before t.
func (m *Manager) DeleteReadBefore(ctx context.Context, t time.Time) (int64, error) {
	return m.delete(ctx, "delete read before", store.ReadBefore(t))
}

// DeleteAllRead removes every read message.
func (m *Manager) DeleteAllRead(ctx context.Context) (int64, error) {
	return m.delete(ctx, "delete all read", store.AllRead())
}

// DeleteBefore removes every message created before t.
func (m *Manager) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	return m.delete(ctx, "delete before", store.Before(t))
}

// DeleteGroup removes every message in group.
func (m *Manager) DeleteGroup(ctx context.Context, group string) (int64, error) {
	return m.delete(ctx, "delete group", store.InGroup(group))
}

// DeleteMessage removes one message and reports the group it was in.
func (m *Manager) DeleteMessage(ctx context.Context, id string) (group string, ok bool, err error) {
	group, ok, err = m.store.DeleteByID(ctx, id)
	if err != nil {
		return "", false, wrap(ErrWriteFailed, "delete message", err)
	}
	if ok {
		m.written(ctx)
	}
	return group, ok, nil
}

// DeleteExpired removes messages whose ttl has elapsed.
func (m *Manager) DeleteExpired(ctx context.Context) (int64, error) {
	n, err := m.store.SweepExpired(ctx, m.now())
	if err != nil {
		return 0, wrap(ErrWriteFailed, "delete expired", err)
	}
	if n > 0 {
		m.written(ctx)
		m.logger.Info("expired messages removed", "count", n)
	}
	return n, nil
}

// Compact reclaims free pages in the database file.
func (m *Manager) Compact(ctx context.Context) error {
	if err := m.store.Compact(ctx); err != nil {
		return wrap(ErrWriteFailed, "compact", err)
	}
	return nil
}

// Import loads a JSON array written by Export. Nothing is stored when the
// file is malformed.
func (m *Manager) Import(ctx context.Context, path string) (*importer.Summary, error) {
	summary, err := importer.FromFile(ctx, m.store, path, importer.Options{Logger: m.logger})
	if err != nil {
		return summary, wrap(ErrImport, path, err)
	}
	if summary.MessagesAdded > 0 {
		m.written(ctx)
	}
	return summary, nil
}

// Export streams every message to path as a JSON array.
func (m *Manager) Export(ctx context.Context, path string) (export.Stats, error) {
	stats, err := export.ToFile(ctx, m.engine, path)
	if err != nil {
		return stats, wrap(ErrExport, path, err)
	}
	return stats, nil
}
