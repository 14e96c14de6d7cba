// Package storetest provides a Fixture and helpers for tests that exercise
// the store and query layers together through their public APIs.
package storetest

import (
	"context"
	"testing"

	"github.com/wesm/pushvault/internal/query"
	"github.com/wesm/pushvault/internal/store"
	"github.com/wesm/pushvault/internal/testutil"
)

// Fixture holds a fresh store and an engine reading from it.
type Fixture struct {
	T      *testing.T
	Ctx    context.Context
	Store  *store.Store
	Engine *query.SQLiteEngine
}

// New creates a Fixture with a fresh test database.
func New(t *testing.T, opts ...store.Option) *Fixture {
	t.Helper()
	st := testutil.NewTestStore(t, opts...)
	return &Fixture{
		T:      t,
		Ctx:    context.Background(),
		Store:  st,
		Engine: testutil.NewTestEngine(t, st),
	}
}

// Insert upserts each message, failing the test on error.
func (f *Fixture) Insert(msgs ...store.Message) {
	f.T.Helper()
	for i := range msgs {
		testutil.MustNoErr(f.T, f.Store.InsertOrReplace(f.Ctx, &msgs[i]), "insert "+msgs[i].ID)
	}
}

// Counts returns the global counters.
func (f *Fixture) Counts() query.Counts {
	f.T.Helper()
	c, err := f.Engine.Counts(f.Ctx, nil)
	testutil.MustNoErr(f.T, err, "Counts")
	return c
}

// AssertCounts fails the test when the global counters differ from want.
func (f *Fixture) AssertCounts(unread, total int64) {
	f.T.Helper()
	got := f.Counts()
	if got.Unread != unread || got.Total != total {
		f.T.Errorf("counts = {unread:%d total:%d}, want {unread:%d total:%d}",
			got.Unread, got.Total, unread, total)
	}
}

// MustGet returns the message with id, failing the test when absent.
func (f *Fixture) MustGet(id string) store.Message {
	f.T.Helper()
	m, err := f.Engine.GetMessage(f.Ctx, id)
	testutil.MustNoErr(f.T, err, "GetMessage "+id)
	if m == nil {
		f.T.Fatalf("message %s not found", id)
	}
	return *m
}

// IDs returns the ids of msgs in order.
func IDs(msgs []store.Message) []string {
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids
}

// GroupNames returns the group of each summary in order.
func GroupNames(groups []store.GroupSummary) []string {
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = g.Group
	}
	return names
}
