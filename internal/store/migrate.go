package store

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// migration is a named, idempotent schema step. Each one runs in its own
// transaction and is recorded in schema_migrations once it commits.
type migration struct {
	name string
	up   func(tx *sql.Tx) error
}

// migrations is the ordered schema history. Append only: never reorder or
// rename entries, older installations have them recorded by name.
var migrations = []migration{
	{name: "create_message", up: createMessage},
	{name: "rename_message_read", up: renameMessageRead},
	{name: "add_message_reply", up: addMessageReply},
	{name: "create_message_changes", up: createMessageChanges},
}

// Migrate applies every migration that is not yet recorded. Names recorded
// by a newer build that this build does not know are left alone.
func (s *Store) Migrate() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name TEXT PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied, err := s.appliedSet()
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.name] {
			continue
		}
		err := s.withTx(func(tx *sql.Tx) error {
			if err := m.up(tx); err != nil {
				return err
			}
			_, err := tx.Exec(`INSERT OR IGNORE INTO schema_migrations (name) VALUES (?)`, m.name)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
		slog.Debug("migration applied", "name", m.name, "db", s.dbPath)
	}
	return nil
}

func (s *Store) appliedSet() (map[string]bool, error) {
	names, err := s.AppliedMigrations()
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set, nil
}

// AppliedMigrations returns the recorded migration names in application order.
func (s *Store) AppliedMigrations() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM schema_migrations ORDER BY applied_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan migration row: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func execAll(tx *sql.Tx, stmts ...string) error {
	for i, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("statement %d: %w", i+1, err)
		}
	}
	return nil
}

// hasColumn reports whether table has a column with the given name.
func hasColumn(tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.Query(fmt.Sprintf(`PRAGMA table_info(%q)`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			typ       string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func createMessage(tx *sql.Tx) error {
	return execAll(tx,
		`CREATE TABLE IF NOT EXISTS message (
			id TEXT PRIMARY KEY,
			"group" TEXT NOT NULL,
			createDate DATETIME NOT NULL,
			title TEXT,
			subtitle TEXT,
			body TEXT,
			icon TEXT,
			url TEXT,
			image TEXT,
			"from" TEXT,
			host TEXT,
			level INTEGER NOT NULL,
			ttl INTEGER NOT NULL,
			read BOOLEAN NOT NULL,
			other TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_message_createdate
			ON message(createDate DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_message_group_createdate
			ON message("group", createDate DESC)`,
	)
}

func renameMessageRead(tx *sql.Tx) error {
	done, err := hasColumn(tx, "message", "isRead")
	if err != nil {
		return err
	}
	if done {
		return nil
	}
	return execAll(tx, `ALTER TABLE message RENAME COLUMN read TO isRead`)
}

func addMessageReply(tx *sql.Tx) error {
	_, err := tx.Exec(`ALTER TABLE message ADD COLUMN reply TEXT`)
	if err != nil && isSQLiteError(err, "duplicate column name") {
		return nil
	}
	return err
}

// createMessageChanges installs a single-row commit counter bumped by
// triggers on every change that can move the unread or total counts. The
// observer polls it as a cheap fingerprint that also sees commits made by
// other processes.
func createMessageChanges(tx *sql.Tx) error {
	return execAll(tx,
		`CREATE TABLE IF NOT EXISTS message_changes (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			seq INTEGER NOT NULL DEFAULT 0
		)`,
		`INSERT OR IGNORE INTO message_changes (id, seq) VALUES (1, 0)`,
		`CREATE TRIGGER IF NOT EXISTS message_changes_insert AFTER INSERT ON message
		BEGIN
			UPDATE message_changes SET seq = seq + 1 WHERE id = 1;
		END`,
		`CREATE TRIGGER IF NOT EXISTS message_changes_delete AFTER DELETE ON message
		BEGIN
			UPDATE message_changes SET seq = seq + 1 WHERE id = 1;
		END`,
		`CREATE TRIGGER IF NOT EXISTS message_changes_read AFTER UPDATE OF isRead ON message
		WHEN OLD.isRead != NEW.isRead
		BEGIN
			UPDATE message_changes SET seq = seq + 1 WHERE id = 1;
		END`,
	)
}
