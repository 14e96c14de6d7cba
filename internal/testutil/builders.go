package testutil

import (
	"time"

	"github.com/wesm/pushvault/internal/store"
)

// BaseTime is the default createDate for built messages.
var BaseTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// MessageBuilder provides a fluent API for constructing store.Message in tests.
type MessageBuilder struct {
	m store.Message
}

// NewMessage creates a builder with sensible defaults: unread, never
// expiring, in the default group, created at BaseTime.
func NewMessage(id string) *MessageBuilder {
	title := "Title " + id
	body := "Body " + id
	return &MessageBuilder{
		m: store.Message{
			ID:         id,
			Group:      store.DefaultGroup,
			CreateDate: BaseTime,
			Title:      &title,
			Body:       &body,
			TTL:        store.TTLForever,
		},
	}
}

func (b *MessageBuilder) Group(g string) *MessageBuilder {
	b.m.Group = g
	return b
}

func (b *MessageBuilder) At(t time.Time) *MessageBuilder {
	b.m.CreateDate = t.UTC()
	return b
}

// After sets createDate to BaseTime plus d.
func (b *MessageBuilder) After(d time.Duration) *MessageBuilder {
	b.m.CreateDate = BaseTime.Add(d)
	return b
}

func (b *MessageBuilder) Title(s string) *MessageBuilder {
	b.m.Title = &s
	return b
}

func (b *MessageBuilder) Subtitle(s string) *MessageBuilder {
	b.m.Subtitle = &s
	return b
}

func (b *MessageBuilder) Body(s string) *MessageBuilder {
	b.m.Body = &s
	return b
}

func (b *MessageBuilder) URL(s string) *MessageBuilder {
	b.m.URL = &s
	return b
}

func (b *MessageBuilder) TTL(days int) *MessageBuilder {
	b.m.TTL = days
	return b
}

func (b *MessageBuilder) Level(l int) *MessageBuilder {
	b.m.Level = l
	return b
}

func (b *MessageBuilder) Read() *MessageBuilder {
	b.m.IsRead = true
	return b
}

// NoContent clears title, subtitle and body.
func (b *MessageBuilder) NoContent() *MessageBuilder {
	b.m.Title, b.m.Subtitle, b.m.Body = nil, nil, nil
	return b
}

func (b *MessageBuilder) Build() store.Message {
	return b.m
}

// BuildPtr returns a pointer to a copy of the built message.
func (b *MessageBuilder) BuildPtr() *store.Message {
	m := b.m
	return &m
}
