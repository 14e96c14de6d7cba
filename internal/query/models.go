package query

import (
	"time"

	"github.com/wesm/pushvault/internal/store"
)

// DefaultPageSize is used when a caller passes a non-positive limit.
const DefaultPageSize = 50

// ListOptions selects a page of messages.
type ListOptions struct {
	// Group limits the listing to one group; nil lists across all groups.
	Group *string
	// Limit is the page size.
	Limit int
	// Before is the keyset cursor: pass the createDate of the last message
	// of the previous page.
	Before *time.Time
}

// SearchOptions selects a page of keyword matches.
type SearchOptions struct {
	Text   string
	Group  *string
	Before *time.Time
	Limit  int
}

// SearchResult holds one page of matches and the total number of matches.
type SearchResult struct {
	Messages []store.Message
	Total    int64
}

// Counts holds the derived counters.
type Counts struct {
	Unread int64 `json:"unread"`
	Total  int64 `json:"total"`
}

// Fingerprint identifies a committed state of the message table. Two equal
// fingerprints mean no insert, delete or read-state change happened between
// the reads.
type Fingerprint struct {
	ChangeSeq int64
	RowCount  int64
	MaxRowID  int64
}

func pageSize(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	return limit
}
