// Package importer loads messages from JSON files written by export.
package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/wesm/pushvault/internal/store"
)

// Inserter writes a batch of messages atomically. *store.Store satisfies it.
type Inserter interface {
	InsertBatch(ctx context.Context, msgs []store.Message) (int, error)
}

type Options struct {
	// Logger is optional; defaults to slog.Default().
	Logger *slog.Logger
}

type Summary struct {
	Duration          time.Duration
	MessagesProcessed int64
	MessagesAdded     int64
	MessagesSkipped   int64
}

// FromFile imports the JSON array at path.
func FromFile(ctx context.Context, st Inserter, path string, opts Options) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()
	return FromReader(ctx, st, f, opts)
}

// FromReader decodes a JSON array of messages from r and stores them in one
// transaction. Rows already present are replaced. Elements without an id are
// skipped. A malformed document imports nothing.
func FromReader(ctx context.Context, st Inserter, r io.Reader, opts Options) (*Summary, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	start := time.Now()
	summary := &Summary{}

	var pending []store.Message
	rd := NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		m, err := rd.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return summary, fmt.Errorf("decode import: %w", err)
		}
		summary.MessagesProcessed++

		if m.ID == "" {
			summary.MessagesSkipped++
			log.Warn("skipping imported message without id", "index", summary.MessagesProcessed-1)
			continue
		}
		pending = append(pending, m)
	}

	n, err := st.InsertBatch(ctx, pending)
	if err != nil {
		return summary, fmt.Errorf("store import: %w", err)
	}
	summary.MessagesAdded = int64(n)
	summary.Duration = time.Since(start)

	log.Info("import complete",
		"processed", summary.MessagesProcessed,
		"added", summary.MessagesAdded,
		"skipped", summary.MessagesSkipped,
		"duration", summary.Duration,
	)
	return summary, nil
}
