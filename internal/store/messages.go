package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const insertMessageSQL = `
	INSERT OR REPLACE INTO message (` + MessageColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func messageArgs(m *Message) []any {
	group := m.Group
	if group == "" {
		group = DefaultGroup
	}
	return []any{
		m.ID, group, FormatTime(m.CreateDate),
		toNull(m.Title), toNull(m.Subtitle), toNull(m.Body), toNull(m.Icon),
		toNull(m.URL), toNull(m.Image), toNull(m.From), toNull(m.Host),
		m.Level, m.TTL, m.IsRead, toNull(m.Other), toNull(m.Reply),
	}
}

// InsertOrReplace upserts msg by id. An existing row with the same id is
// replaced in full, not merged.
func (s *Store) InsertOrReplace(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		return fmt.Errorf("insert message: empty id")
	}

	s.writeMu.Lock()
	_, err := s.db.ExecContext(ctx, insertMessageSQL, messageArgs(msg)...)
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("insert message %s: %w", msg.ID, err)
	}

	s.notifyChange()
	return nil
}

// InsertBatch upserts msgs inside a single transaction and returns the
// number of rows written.
func (s *Store) InsertBatch(ctx context.Context, msgs []Message) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}

	s.writeMu.Lock()
	err := s.withTx(func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, insertMessageSQL)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i := range msgs {
			if msgs[i].ID == "" {
				return fmt.Errorf("message %d: empty id", i)
			}
			if _, err := stmt.ExecContext(ctx, messageArgs(&msgs[i])...); err != nil {
				return fmt.Errorf("message %s: %w", msgs[i].ID, err)
			}
		}
		return nil
	})
	s.writeMu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("insert batch: %w", err)
	}

	s.notifyChange()
	return len(msgs), nil
}

// MarkAllRead flips isRead for every unread row, optionally limited to one
// group. Rows that are already read are not touched, so a call that
// changes nothing does not register as a write.
func (s *Store) MarkAllRead(ctx context.Context, group *string) (int64, error) {
	query := `UPDATE message SET isRead = 1 WHERE isRead = 0`
	var args []any
	if group != nil {
		query += ` AND "group" = ?`
		args = append(args, *group)
	}

	s.writeMu.Lock()
	res, err := s.db.ExecContext(ctx, query, args...)
	s.writeMu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}

	n, _ := res.RowsAffected()
	if n > 0 {
		s.notifyChange()
	}
	return n, nil
}

// MarkRead flips isRead for the given ids.
func (s *Store) MarkRead(ctx context.Context, ids ...string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	s.writeMu.Lock()
	res, err := s.db.ExecContext(ctx,
		`UPDATE message SET isRead = 1 WHERE isRead = 0 AND id IN (`+placeholders+`)`, args...)
	s.writeMu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}

	n, _ := res.RowsAffected()
	if n > 0 {
		s.notifyChange()
	}
	return n, nil
}

// DeletePredicate selects rows for Delete. The zero value matches nothing.
type DeletePredicate struct {
	ID       *string
	Group    *string
	OnlyRead bool
	Before   *time.Time
}

// ReadBefore matches read rows created before t.
func ReadBefore(t time.Time) DeletePredicate { return DeletePredicate{OnlyRead: true, Before: &t} }

// AllRead matches every read row.
func AllRead() DeletePredicate { return DeletePredicate{OnlyRead: true} }

// Before matches every row created before t.
func Before(t time.Time) DeletePredicate { return DeletePredicate{Before: &t} }

// ByID matches a single row.
func ByID(id string) DeletePredicate { return DeletePredicate{ID: &id} }

// InGroup matches every row in group.
func InGroup(group string) DeletePredicate { return DeletePredicate{Group: &group} }

// IsEmpty reports whether p has no conditions.
func (p DeletePredicate) IsEmpty() bool {
	return p.ID == nil && p.Group == nil && !p.OnlyRead && p.Before == nil
}

func (p DeletePredicate) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	if p.ID != nil {
		conds = append(conds, "id = ?")
		args = append(args, *p.ID)
	}
	if p.Group != nil {
		conds = append(conds, `"group" = ?`)
		args = append(args, *p.Group)
	}
	if p.OnlyRead {
		conds = append(conds, "isRead = 1")
	}
	if p.Before != nil {
		conds = append(conds, "createDate < ?")
		args = append(args, FormatTime(*p.Before))
	}
	return strings.Join(conds, " AND "), args
}

// Delete removes rows matching p in one transaction and returns how many
// were removed. An empty predicate is a no-op.
func (s *Store) Delete(ctx context.Context, p DeletePredicate) (int64, error) {
	if p.IsEmpty() {
		return 0, nil
	}
	where, args := p.where()

	var n int64
	s.writeMu.Lock()
	err := s.withTx(func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM message WHERE `+where, args...)
		if err != nil {
			return err
		}
		n, _ = res.RowsAffected()
		return nil
	})
	s.writeMu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}

	if n > 0 {
		s.notifyChange()
		s.compactAfterDelete(ctx)
	}
	return n, nil
}

// DeleteByID removes a single row and returns the group it belonged to.
// ok is false when no row had that id.
func (s *Store) DeleteByID(ctx context.Context, id string) (group string, ok bool, err error) {
	s.writeMu.Lock()
	err = s.withTx(func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `SELECT "group" FROM message WHERE id = ?`, id).Scan(&group)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM message WHERE id = ?`, id); err != nil {
			return err
		}
		ok = true
		return nil
	})
	s.writeMu.Unlock()
	if err != nil {
		return "", false, fmt.Errorf("delete message %s: %w", id, err)
	}

	if ok {
		s.notifyChange()
		s.compactAfterDelete(ctx)
	}
	return group, ok, nil
}

// SweepExpired deletes rows whose ttl has elapsed at now. ttl is added as
// calendar days to createDate by SQLite's date functions, so a message
// created at 23:59 with ttl 1 expires at 23:59 the following day.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	s.writeMu.Lock()
	err := s.withTx(func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM message
			WHERE ttl != ?
			  AND strftime('%Y-%m-%d %H:%M:%f', createDate, '+' || ttl || ' days') < ?
		`, TTLForever, FormatTime(now))
		if err != nil {
			return err
		}
		n, _ = res.RowsAffected()
		return nil
	})
	s.writeMu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("sweep expired: %w", err)
	}

	if n > 0 {
		s.notifyChange()
		s.compactAfterDelete(ctx)
	}
	return n, nil
}

// Compact reclaims space freed by deletes.
func (s *Store) Compact(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

// compactAfterDelete runs Compact when configured to. Failure is not fatal
// to the delete that preceded it, the space is reclaimed on a later pass.
func (s *Store) compactAfterDelete(ctx context.Context) {
	if !s.opts.CompactAfterDelete {
		return
	}
	if err := s.Compact(ctx); err != nil {
		slog.Warn("compact after delete failed", "busy", IsBusy(err), "error", err)
	}
}
