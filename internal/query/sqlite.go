package query

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/wesm/pushvault/internal/search"
	"github.com/wesm/pushvault/internal/store"
)

// SQLiteEngine implements Engine using direct SQLite queries.
type SQLiteEngine struct {
	db *sql.DB
}

// NewSQLiteEngine creates a new SQLite-backed query engine.
func NewSQLiteEngine(db *sql.DB) *SQLiteEngine {
	return &SQLiteEngine{db: db}
}

// Close is a no-op for SQLiteEngine since it doesn't own the connection.
func (e *SQLiteEngine) Close() error {
	return nil
}

// searchColumns are the columns each search token is matched against.
var searchColumns = []string{"title", "subtitle", "body", `"group"`, "url"}

// prefixedColumns returns store.MessageColumns qualified with alias.
func prefixedColumns(alias string) string {
	cols := strings.Split(store.MessageColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanMessages(rows *sql.Rows) ([]store.Message, error) {
	defer rows.Close()
	var msgs []store.Message
	for rows.Next() {
		m, err := store.ScanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

// GetMessage returns a single message by id, or nil if it does not exist.
func (e *SQLiteEngine) GetMessage(ctx context.Context, id string) (*store.Message, error) {
	row := e.db.QueryRowContext(ctx,
		`SELECT `+store.MessageColumns+` FROM message WHERE id = ?`, id)
	m, err := store.ScanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	return &m, nil
}

// ListMessages returns a page of messages, newest first. Rows sharing a
// createDate are ordered by id descending.
func (e *SQLiteEngine) ListMessages(ctx context.Context, opts ListOptions) ([]store.Message, error) {
	var (
		conds []string
		args  []any
	)
	if opts.Group != nil {
		conds = append(conds, `"group" = ?`)
		args = append(args, *opts.Group)
	}
	if opts.Before != nil {
		conds = append(conds, "createDate < ?")
		args = append(args, store.FormatTime(*opts.Before))
	}

	q := `SELECT ` + store.MessageColumns + ` FROM message`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY createDate DESC, id DESC LIMIT ?`
	args = append(args, pageSize(opts.Limit))

	rows, err := e.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return scanMessages(rows)
}

// buildSearchWhere returns the WHERE clause for opts. Every token must match
// at least one of searchColumns; the group and cursor filters are ANDed on.
func buildSearchWhere(opts SearchOptions) (string, []any) {
	var (
		conds []string
		args  []any
	)
	for _, pattern := range search.Patterns(opts.Text) {
		per := make([]string, len(searchColumns))
		for i, col := range searchColumns {
			per[i] = col + ` LIKE ? ESCAPE '\'`
			args = append(args, pattern)
		}
		conds = append(conds, "("+strings.Join(per, " OR ")+")")
	}
	if opts.Group != nil {
		conds = append(conds, `"group" = ?`)
		args = append(args, *opts.Group)
	}
	if opts.Before != nil {
		conds = append(conds, "createDate < ?")
		args = append(args, store.FormatTime(*opts.Before))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Search returns one page of messages matching every token of opts.Text,
// newest first, together with the total number of matches. Both queries run
// in one transaction so the page and the total describe the same commit.
func (e *SQLiteEngine) Search(ctx context.Context, opts SearchOptions) (*SearchResult, error) {
	where, args := buildSearchWhere(opts)

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("search: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result := &SearchResult{}
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM message`+where, args...).Scan(&result.Total); err != nil {
		return nil, fmt.Errorf("search count: %w", err)
	}

	pageArgs := append(append([]any{}, args...), pageSize(opts.Limit))
	rows, err := tx.QueryContext(ctx,
		`SELECT `+store.MessageColumns+` FROM message`+where+
			` ORDER BY createDate DESC, id DESC LIMIT ?`, pageArgs...)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	result.Messages, err = scanMessages(rows)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return result, nil
}

// GroupedLatest returns one summary per group: the group's newest message
// and its unread count. Groups with unread messages come first, most unread
// first; ties and fully read groups follow newest first, then by name.
func (e *SQLiteEngine) GroupedLatest(ctx context.Context) ([]store.GroupSummary, error) {
	q := `
		WITH ranked AS (
			SELECT ` + store.MessageColumns + `,
				ROW_NUMBER() OVER (
					PARTITION BY "group" ORDER BY createDate DESC, id DESC
				) AS rn
			FROM message
		),
		unread AS (
			SELECT "group", COUNT(*) AS cnt
			FROM message
			WHERE isRead = 0
			GROUP BY "group"
		)
		SELECT ` + prefixedColumns("r") + `, COALESCE(u.cnt, 0) AS unread_count
		FROM ranked r
		LEFT JOIN unread u ON u."group" = r."group"
		WHERE r.rn = 1
		ORDER BY unread_count DESC, r.createDate DESC, r."group" ASC
	`
	rows, err := e.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("grouped latest: %w", err)
	}
	defer rows.Close()

	var groups []store.GroupSummary
	for rows.Next() {
		var g store.GroupSummary
		m, err := store.ScanMessage(rows, &g.UnreadCount)
		if err != nil {
			return nil, fmt.Errorf("scan group summary: %w", err)
		}
		g.Message = m
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group summaries: %w", err)
	}
	return groups, nil
}

// Counts returns the unread and total counts, optionally within one group.
func (e *SQLiteEngine) Counts(ctx context.Context, group *string) (Counts, error) {
	q := `SELECT COALESCE(SUM(CASE WHEN isRead = 0 THEN 1 ELSE 0 END), 0), COUNT(*) FROM message`
	var args []any
	if group != nil {
		q += ` WHERE "group" = ?`
		args = append(args, *group)
	}

	var c Counts
	if err := e.db.QueryRowContext(ctx, q, args...).Scan(&c.Unread, &c.Total); err != nil {
		return Counts{}, fmt.Errorf("counts: %w", err)
	}
	return c, nil
}

// Fingerprint reads the trigger-maintained change counter together with the
// row count and highest rowid.
func (e *SQLiteEngine) Fingerprint(ctx context.Context) (Fingerprint, error) {
	var fp Fingerprint
	err := e.db.QueryRowContext(ctx, `
		SELECT
			COALESCE((SELECT seq FROM message_changes WHERE id = 1), 0),
			(SELECT COUNT(*) FROM message),
			COALESCE((SELECT MAX(rowid) FROM message), 0)
	`).Scan(&fp.ChangeSeq, &fp.RowCount, &fp.MaxRowID)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("fingerprint: %w", err)
	}
	return fp, nil
}

// EachMessage calls fn for every message, oldest first. Iteration stops at
// the first error fn returns, and that error is returned unwrapped.
func (e *SQLiteEngine) EachMessage(ctx context.Context, fn func(store.Message) error) error {
	rows, err := e.db.QueryContext(ctx,
		`SELECT `+store.MessageColumns+` FROM message ORDER BY createDate ASC, id ASC`)
	if err != nil {
		return fmt.Errorf("each message: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := store.ScanMessage(rows)
		if err != nil {
			return fmt.Errorf("scan message: %w", err)
		}
		if err := fn(m); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate messages: %w", err)
	}
	return nil
}

// GroupNames returns the distinct group names in ascending order.
func (e *SQLiteEngine) GroupNames(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, e.db, `SELECT DISTINCT "group" FROM message ORDER BY "group"`)
}

func queryStrings(ctx context.Context, q querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
