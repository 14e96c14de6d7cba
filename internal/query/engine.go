package query

import (
	"context"

	"github.com/wesm/pushvault/internal/store"
)

// Engine provides read operations over the message store.
// SQLiteEngine is the production implementation; querytest.MockEngine
// stands in for it in observer and facade tests.
type Engine interface {
	// GetMessage returns the message with the given id, or nil when absent.
	GetMessage(ctx context.Context, id string) (*store.Message, error)

	// ListMessages returns one page ordered by createDate descending.
	ListMessages(ctx context.Context, opts ListOptions) ([]store.Message, error)

	// Search returns one page of keyword matches plus the total match count,
	// both read from the same snapshot.
	Search(ctx context.Context, opts SearchOptions) (*SearchResult, error)

	// GroupedLatest returns the newest message of every group annotated with
	// its unread count, unread groups first.
	GroupedLatest(ctx context.Context) ([]store.GroupSummary, error)

	// Counts returns unread and total row counts, optionally for one group.
	Counts(ctx context.Context, group *string) (Counts, error)

	// Fingerprint returns a cheap value that changes whenever a commit
	// changes the rows behind Counts or GroupedLatest.
	Fingerprint(ctx context.Context) (Fingerprint, error)

	// EachMessage streams every row, oldest first, without materializing
	// the table.
	EachMessage(ctx context.Context, fn func(store.Message) error) error

	// GroupNames returns the distinct group names in ascending order.
	GroupNames(ctx context.Context) ([]string, error)

	// Close releases any resources held by the engine.
	Close() error
}
