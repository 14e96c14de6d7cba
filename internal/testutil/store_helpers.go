package testutil

import (
	"path/filepath"
	"testing"

	"github.com/wesm/pushvault/internal/query"
	"github.com/wesm/pushvault/internal/store"
)

// NewTestStore creates a migrated temporary database for testing.
// The database is automatically closed when the test completes.
func NewTestStore(t *testing.T, opts ...store.Option) *store.Store {
	t.Helper()
	return OpenTestStore(t, filepath.Join(t.TempDir(), "test.db"), opts...)
}

// OpenTestStore opens the database at path and closes it on cleanup. Opening
// the same path twice simulates two processes sharing one file.
func OpenTestStore(t *testing.T, path string, opts ...store.Option) *store.Store {
	t.Helper()

	st, err := store.Open(path, opts...)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewTestEngine returns a query engine over st.
func NewTestEngine(t *testing.T, st *store.Store) *query.SQLiteEngine {
	t.Helper()
	return query.NewSQLiteEngine(st.DB())
}
