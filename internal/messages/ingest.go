package messages

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/wesm/pushvault/internal/store"
	"github.com/wesm/pushvault/internal/textutil"
)

// Payload is an inbound push as delivered by the transport. Every field is
// optional.
type Payload struct {
	ID       string          `json:"id,omitempty"`
	Group    string          `json:"group,omitempty"`
	Title    *string         `json:"title,omitempty"`
	Subtitle *string         `json:"subtitle,omitempty"`
	Body     *string         `json:"body,omitempty"`
	Icon     *string         `json:"icon,omitempty"`
	URL      *string         `json:"url,omitempty"`
	Image    *string         `json:"image,omitempty"`
	From     *string         `json:"from,omitempty"`
	Host     *string         `json:"host,omitempty"`
	Level    int             `json:"level,omitempty"`
	TTL      *int            `json:"ttl,omitempty"`
	Markdown bool            `json:"markdown,omitempty"`
	Reply    *string         `json:"reply,omitempty"`
	Other    json.RawMessage `json:"other,omitempty"`
}

// Ingest turns a payload into a stored message. It returns ok=false without
// error when the payload is not worth keeping: no title, subtitle or body,
// or a ttl of zero days or less.
func (m *Manager) Ingest(ctx context.Context, p Payload) (msg store.Message, ok bool, err error) {
	body := ""
	if p.Body != nil {
		body = *p.Body
	}
	if p.Title == nil && p.Subtitle == nil && body == "" {
		m.logger.Debug("dropping empty payload", "id", p.ID)
		return store.Message{}, false, nil
	}

	ttl := m.defaultTTL
	if p.TTL != nil {
		ttl = *p.TTL
	}
	if ttl <= 0 {
		return store.Message{}, false, nil
	}

	msg = store.Message{
		ID:       p.ID,
		Group:    p.Group,
		Title:    p.Title,
		Subtitle: p.Subtitle,
		Icon:     p.Icon,
		URL:      p.URL,
		Image:    p.Image,
		From:     p.From,
		Host:     p.Host,
		Level:    p.Level,
		TTL:      ttl,
		Reply:    p.Reply,
	}
	if body != "" {
		if p.Markdown {
			body = textutil.MarkdownLineBreaks(body)
		}
		msg.Body = &body
	}
	if len(p.Other) > 0 && string(p.Other) != "null" {
		other := string(p.Other)
		msg.Other = &other
	}

	msg, err = m.Add(ctx, msg)
	if err != nil {
		return store.Message{}, false, err
	}
	return msg, true, nil
}

// SeedExamples stores a few sample messages that show off grouping,
// Markdown bodies and url actions.
func (m *Manager) SeedExamples(ctx context.Context) ([]store.Message, error) {
	samples := []Payload{
		{
			Group:    "Markdown",
			Title:    strPtr("Example"),
			Body:     strPtr("# pushvault\n## pushvault\n### pushvault"),
			Markdown: true,
		},
		{
			Group: "Examples",
			Title: strPtr("How to use"),
			Body: strPtr("* Messages are grouped by their group field\n" +
				"* Unread counts are kept per group\n" +
				"* Search matches title, subtitle, body, group and url"),
		},
		{
			Group: "App",
			Title: strPtr("Open a link"),
			Body:  strPtr("The url field is opened when the message is activated."),
			URL:   strPtr("https://example.com/"),
		},
	}

	one := 1
	var out []store.Message
	for _, p := range samples {
		p.Level = 1
		p.TTL = &one
		msg, _, err := m.Ingest(ctx, p)
		if err != nil {
			return out, err
		}
		out = append(out, msg)
	}
	return out, nil
}

// stressBatchSize bounds how many synthetic rows share one transaction.
const stressBatchSize = 1000

// StressFill inserts n read, one-day messages spread over ten groups, each
// with a body of roughly bodyBytes of random CJK text. It is meant for load
// checks of the grouped and search queries.
func (m *Manager) StressFill(ctx context.Context, n, bodyBytes int) (int, error) {
	body := "Text Data " + randomCJK(bodyBytes)

	var (
		total int
		batch = make([]store.Message, 0, min(n, stressBatchSize))
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		added, err := m.store.InsertBatch(ctx, batch)
		if err != nil {
			return wrap(ErrWriteFailed, "stress fill", err)
		}
		total += added
		batch = batch[:0]
		return nil
	}

	for k := 0; k < n; k++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		title := strconv.Itoa(k) + " Test"
		b := body
		batch = append(batch, store.Message{
			ID:         uuid.NewString(),
			Group:      strconv.Itoa(k % 10),
			CreateDate: m.stamp(),
			Title:      &title,
			Body:       &b,
			Level:      1,
			TTL:        1,
			IsRead:     true,
		})
		if len(batch) == stressBatchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}
	if total > 0 {
		m.written(ctx)
	}
	return total, nil
}

// randomCJK returns at least approxBytes of UTF-8 text drawn from the CJK
// Unified Ideographs block.
func randomCJK(approxBytes int) string {
	const lo, hi = 0x4E00, 0x9FA5
	var b strings.Builder
	b.Grow(approxBytes + 3)
	for b.Len() < approxBytes {
		b.WriteRune(rune(lo + rand.IntN(hi-lo+1)))
	}
	return b.String()
}

func strPtr(s string) *string { return &s }
