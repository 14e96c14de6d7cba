// Package store provides database access for pushvault.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"
)

// Store provides database operations for pushvault. Reads go through
// internal/query; Store owns the schema and the write path.
type Store struct {
	db     *sql.DB
	dbPath string
	opts   Options

	// writeMu serializes writes issued by this process. SQLite serializes
	// writers across processes; this keeps goroutines in one process from
	// racing each other into SQLITE_BUSY.
	writeMu sync.Mutex

	hookMu sync.RWMutex
	hooks  []func()
}

// Options tunes store behavior.
type Options struct {
	// CompactAfterDelete runs VACUUM after every delete or sweep that
	// removed rows. When false, compaction is left to Compact (usually
	// driven by the maintenance scheduler).
	CompactAfterDelete bool
}

// Option configures a Store at Open time.
type Option func(*Options)

// WithCompactAfterDelete sets Options.CompactAfterDelete.
func WithCompactAfterDelete(enabled bool) Option {
	return func(o *Options) { o.CompactAfterDelete = enabled }
}

const defaultSQLiteParams = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"

// isSQLiteError checks if err is a sqlite3.Error with a message containing substr.
// Handles both value (sqlite3.Error) and pointer (*sqlite3.Error) forms.
func isSQLiteError(err error, substr string) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return strings.Contains(sqliteErr.Error(), substr)
	}
	var sqliteErrPtr *sqlite3.Error
	if errors.As(err, &sqliteErrPtr) && sqliteErrPtr != nil {
		return strings.Contains(sqliteErrPtr.Error(), substr)
	}
	return false
}

// IsBusy reports whether err is a transient lock error (SQLITE_BUSY or
// SQLITE_LOCKED), typically caused by another process holding the write lock.
func IsBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	var sqliteErrPtr *sqlite3.Error
	if errors.As(err, &sqliteErrPtr) && sqliteErrPtr != nil {
		return sqliteErrPtr.Code == sqlite3.ErrBusy || sqliteErrPtr.Code == sqlite3.ErrLocked
	}
	return false
}

// Open opens or creates the database at the given path and applies all
// pending migrations. A migration failure closes the handle and returns an
// error; callers must not continue with an unmigrated store.
func Open(dbPath string, opts ...Option) (*Store, error) {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+defaultSQLiteParams)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{
		db:     db,
		dbPath: dbPath,
		opts:   o,
	}

	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", dbPath, err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for read queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// OnChange registers fn to be called after every committed write that
// changed at least one row. Hooks run synchronously on the writer's
// goroutine and must not block.
func (s *Store) OnChange(fn func()) {
	s.hookMu.Lock()
	s.hooks = append(s.hooks, fn)
	s.hookMu.Unlock()
}

func (s *Store) notifyChange() {
	s.hookMu.RLock()
	hooks := s.hooks
	s.hookMu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}

// withTx executes fn within a database transaction. If fn returns an error,
// the transaction is rolled back; otherwise it is committed.
func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Stats holds database statistics.
type Stats struct {
	MessageCount int64
	UnreadCount  int64
	GroupCount   int64
	DatabaseSize int64
	Migrations   []string
}

// GetStats returns statistics about the database.
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{}

	queries := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM message", &stats.MessageCount},
		{"SELECT COUNT(*) FROM message WHERE isRead = 0", &stats.UnreadCount},
		{`SELECT COUNT(DISTINCT "group") FROM message`, &stats.GroupCount},
	}

	for _, q := range queries {
		if err := s.db.QueryRow(q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("get stats %q: %w", q.query, err)
		}
	}

	if info, err := os.Stat(s.dbPath); err == nil {
		stats.DatabaseSize = info.Size()
	}

	applied, err := s.AppliedMigrations()
	if err != nil {
		return nil, err
	}
	stats.Migrations = applied

	return stats, nil
}
