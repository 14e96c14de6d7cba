package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// TTLForever is the ttl sentinel for messages that never expire.
const TTLForever = 999_999

// DefaultGroup is the group assigned to messages that arrive without one.
const DefaultGroup = "Default"

// TimeLayout is the on-disk representation of createDate. It is fixed
// width so lexicographic comparison matches chronological order, and it is
// understood by SQLite's date functions.
const TimeLayout = "2006-01-02 15:04:05.000"

// Message is a persisted notification. Every field except IsRead is
// immutable once stored; changing content means replacing the row.
type Message struct {
	ID         string    `msgpack:"id"`
	Group      string    `msgpack:"group"`
	CreateDate time.Time `msgpack:"createDate"`
	Title      *string   `msgpack:"title"`
	Subtitle   *string   `msgpack:"subtitle"`
	Body       *string   `msgpack:"body"`
	Icon       *string   `msgpack:"icon"`
	URL        *string   `msgpack:"url"`
	Image      *string   `msgpack:"image"`
	From       *string   `msgpack:"from"`
	Host       *string   `msgpack:"host"`
	Level      int       `msgpack:"level"`
	TTL        int       `msgpack:"ttl"`
	IsRead     bool      `msgpack:"isRead"`
	Other      *string   `msgpack:"other"`
	Reply      *string   `msgpack:"reply"`
}

// GroupSummary is the newest message of a group annotated with the
// group's unread count.
type GroupSummary struct {
	Message
	UnreadCount int64 `msgpack:"unreadCount"`
}

// Expired reports whether m is past its ttl at now. Day arithmetic is
// calendar based (AddDate), matching the SQL sweep.
func (m Message) Expired(now time.Time) bool {
	if m.TTL == TTLForever {
		return false
	}
	return m.CreateDate.AddDate(0, 0, m.TTL).Before(now)
}

// FormatTime renders t in the on-disk layout (UTC, millisecond precision).
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a value written by FormatTime. Seconds-only and RFC 3339
// values are accepted for rows written by other tools.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range []string{TimeLayout, "2006-01-02 15:04:05", time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// sqlTime scans createDate regardless of whether the driver hands back a
// parsed time.Time (declared DATETIME column) or raw text (derived columns).
type sqlTime struct {
	Time time.Time
}

func (t *sqlTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		parsed, err := ParseTime(v)
		if err != nil {
			return err
		}
		t.Time = parsed
		return nil
	case []byte:
		parsed, err := ParseTime(string(v))
		if err != nil {
			return err
		}
		t.Time = parsed
		return nil
	case nil:
		return fmt.Errorf("createDate is NULL")
	default:
		return fmt.Errorf("unsupported createDate type %T", src)
	}
}

// MessageColumns is the column list matching ScanMessage, in order.
const MessageColumns = `id, "group", createDate, title, subtitle, body, icon, url, image, "from", host, level, ttl, isRead, other, reply`

// RowScanner is satisfied by *sql.Row and *sql.Rows.
type RowScanner interface {
	Scan(dest ...any) error
}

// ScanMessage scans one row selected with MessageColumns. extra receives
// any trailing columns the caller appended to the select list.
func ScanMessage(sc RowScanner, extra ...any) (Message, error) {
	var (
		m       Message
		created sqlTime
		title, subtitle, body, icon, url, image,
		from, host, other, reply sql.NullString
	)
	dest := []any{
		&m.ID, &m.Group, &created, &title, &subtitle, &body, &icon, &url,
		&image, &from, &host, &m.Level, &m.TTL, &m.IsRead, &other, &reply,
	}
	dest = append(dest, extra...)
	if err := sc.Scan(dest...); err != nil {
		return Message{}, err
	}
	m.CreateDate = created.Time
	m.Title = nullString(title)
	m.Subtitle = nullString(subtitle)
	m.Body = nullString(body)
	m.Icon = nullString(icon)
	m.URL = nullString(url)
	m.Image = nullString(image)
	m.From = nullString(from)
	m.Host = nullString(host)
	m.Other = nullString(other)
	m.Reply = nullString(reply)
	return m, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func toNull(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// wireMessage is the JSON shape shared by import, export and the HTTP API.
// createDate travels as seconds since the Unix epoch.
type wireMessage struct {
	ID          string  `json:"id"`
	Group       *string `json:"group"`
	CreateDate  float64 `json:"createDate"`
	Title       *string `json:"title,omitempty"`
	Subtitle    *string `json:"subtitle,omitempty"`
	Body        *string `json:"body,omitempty"`
	Icon        *string `json:"icon,omitempty"`
	URL         *string `json:"url,omitempty"`
	Image       *string `json:"image,omitempty"`
	From        *string `json:"from,omitempty"`
	Host        *string `json:"host,omitempty"`
	Level       int     `json:"level"`
	TTL         *int    `json:"ttl"`
	IsRead      bool    `json:"isRead"`
	Other       *string `json:"other,omitempty"`
	Reply       *string `json:"reply,omitempty"`
	UnreadCount *int64  `json:"unreadCount,omitempty"`
}

func toWire(m Message) wireMessage {
	group := m.Group
	ttl := m.TTL
	return wireMessage{
		ID:         m.ID,
		Group:      &group,
		CreateDate: epochSeconds(m.CreateDate),
		Title:      m.Title,
		Subtitle:   m.Subtitle,
		Body:       m.Body,
		Icon:       m.Icon,
		URL:        m.URL,
		Image:      m.Image,
		From:       m.From,
		Host:       m.Host,
		Level:      m.Level,
		TTL:        &ttl,
		IsRead:     m.IsRead,
		Other:      m.Other,
		Reply:      m.Reply,
	}
}

func (w wireMessage) message() Message {
	m := Message{
		ID:         w.ID,
		Group:      DefaultGroup,
		CreateDate: fromEpochSeconds(w.CreateDate),
		Title:      w.Title,
		Subtitle:   w.Subtitle,
		Body:       w.Body,
		Icon:       w.Icon,
		URL:        w.URL,
		Image:      w.Image,
		From:       w.From,
		Host:       w.Host,
		Level:      w.Level,
		TTL:        TTLForever,
		IsRead:     w.IsRead,
		Other:      w.Other,
		Reply:      w.Reply,
	}
	if w.Group != nil && *w.Group != "" {
		m.Group = *w.Group
	}
	if w.TTL != nil {
		m.TTL = *w.TTL
	}
	return m
}

// MarshalJSON encodes m in the import/export shape.
func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(toWire(m))
}

// UnmarshalJSON decodes the import/export shape. A missing or empty group
// becomes DefaultGroup and a missing ttl becomes TTLForever.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = w.message()
	return nil
}

// MarshalJSON encodes the summary as a message with an unreadCount field.
func (g GroupSummary) MarshalJSON() ([]byte, error) {
	w := toWire(g.Message)
	unread := g.UnreadCount
	w.UnreadCount = &unread
	return json.Marshal(w)
}

// UnmarshalJSON decodes a summary written by MarshalJSON.
func (g *GroupSummary) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	g.Message = w.message()
	g.UnreadCount = 0
	if w.UnreadCount != nil {
		g.UnreadCount = *w.UnreadCount
	}
	return nil
}

func epochSeconds(t time.Time) float64 {
	ms := t.UnixMilli()
	return float64(ms) / 1000
}

func fromEpochSeconds(sec float64) time.Time {
	ms := int64(math.Round(sec * 1000))
	return time.UnixMilli(ms).UTC()
}
