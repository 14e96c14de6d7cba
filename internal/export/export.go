// Package export writes the message table to JSON files that import can
// read back.
package export

import (
	"context"
	"fmt"
	"os"

	"github.com/wesm/pushvault/internal/fileutil"
	"github.com/wesm/pushvault/internal/store"
)

// Source streams every stored message. query.Engine satisfies it.
type Source interface {
	EachMessage(ctx context.Context, fn func(store.Message) error) error
}

// Stats describes a finished export.
type Stats struct {
	Count int
	Size  int64
	Path  string
}

// ToFile writes every message from src to path as a JSON array, oldest
// first. A symlink at path is refused. On failure the partial file is
// removed.
func ToFile(ctx context.Context, src Source, path string) (Stats, error) {
	f, err := fileutil.CreateNoFollow(path, 0600)
	if err != nil {
		return Stats{}, fmt.Errorf("create export file: %w", err)
	}

	fail := func(err error) (Stats, error) {
		f.Close()
		os.Remove(path)
		return Stats{}, err
	}

	w := NewJSONWriter(f)
	if err := src.EachMessage(ctx, w.Write); err != nil {
		return fail(fmt.Errorf("write messages: %w", err))
	}
	if err := w.Close(); err != nil {
		return fail(fmt.Errorf("finish export: %w", err))
	}
	if err := f.Sync(); err != nil {
		return fail(fmt.Errorf("sync export: %w", err))
	}

	info, err := f.Stat()
	if err != nil {
		return fail(fmt.Errorf("stat export: %w", err))
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return Stats{}, fmt.Errorf("close export: %w", err)
	}
	return Stats{Count: w.Count(), Size: info.Size(), Path: path}, nil
}

// FormatResult formats Stats for display.
func FormatResult(stats Stats) string {
	if stats.Count == 0 {
		return fmt.Sprintf("No messages exported.\nWrote empty array to %s", stats.Path)
	}
	return fmt.Sprintf("Exported %d message(s) (%s)\n\nSaved to:\n%s",
		stats.Count, FormatBytesLong(stats.Size), stats.Path)
}

// FormatBytesLong formats bytes with full precision for export results.
func FormatBytesLong(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
