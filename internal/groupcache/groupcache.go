// Package groupcache persists the last computed group summaries so a cold
// start can show the grouped view before the database has been queried.
package groupcache

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/wesm/pushvault/internal/fileutil"
	"github.com/wesm/pushvault/internal/store"
)

// FileName is the cache blob name inside the cache directory.
const FileName = "groups.cache"

// formatVersion is bumped when the encoded layout changes. Blobs written
// with another version are treated as absent.
const formatVersion = 1

type blob struct {
	Version int                  `msgpack:"v"`
	Groups  []store.GroupSummary `msgpack:"groups"`
}

// Cache is a single msgpack blob of group summaries. Writers replace it
// atomically under an advisory file lock shared with other processes;
// readers never lock and always see a complete blob.
type Cache struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger used for decode and write failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// New returns a cache stored in dir. The directory is created on first write.
func New(dir string, opts ...Option) *Cache {
	c := &Cache{
		path:   filepath.Join(dir, FileName),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Path returns the blob path.
func (c *Cache) Path() string { return c.path }

// Get returns the cached summaries. A missing, unreadable or undecodable
// blob yields an empty slice.
func (c *Cache) Get() []store.GroupSummary {
	groups, err := c.read()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("group cache unreadable", "path", c.path, "error", err)
		}
		return []store.GroupSummary{}
	}
	return groups
}

func (c *Cache) read() ([]store.GroupSummary, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, err
	}
	var b blob
	if err := msgpack.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if b.Version != formatVersion {
		return nil, fmt.Errorf("unsupported cache version %d", b.Version)
	}
	for i := range b.Groups {
		b.Groups[i].CreateDate = b.Groups[i].CreateDate.UTC()
	}
	if b.Groups == nil {
		b.Groups = []store.GroupSummary{}
	}
	return b.Groups, nil
}

// Set replaces the blob with groups. Equal inputs produce identical bytes.
func (c *Cache) Set(groups []store.GroupSummary) error {
	return c.locked(func() error {
		return c.write(groups)
	})
}

// Prepend places g first and drops any other entry for the same group. It
// is an optimistic local update; the next full recomputation overwrites it.
func (c *Cache) Prepend(g store.GroupSummary) error {
	return c.locked(func() error {
		current, err := c.read()
		if err != nil {
			current = nil
		}
		next := make([]store.GroupSummary, 0, len(current)+1)
		next = append(next, g)
		for _, existing := range current {
			if existing.Group != g.Group {
				next = append(next, existing)
			}
		}
		return c.write(next)
	})
}

// Clear removes the blob.
func (c *Cache) Clear() error {
	return c.locked(func() error {
		if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("clear group cache: %w", err)
		}
		return nil
	})
}

func (c *Cache) write(groups []store.GroupSummary) error {
	if groups == nil {
		groups = []store.GroupSummary{}
	}
	data, err := msgpack.Marshal(&blob{Version: formatVersion, Groups: groups})
	if err != nil {
		return fmt.Errorf("encode group cache: %w", err)
	}
	if err := fileutil.WriteFileAtomic(c.path, data, 0600); err != nil {
		return fmt.Errorf("write group cache: %w", err)
	}
	return nil
}

// locked runs fn holding both the in-process mutex and the cross-process
// file lock.
func (c *Cache) locked(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := fileutil.SecureMkdirAll(filepath.Dir(c.path), 0700); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	unlock, err := lockFile(c.path + ".lock")
	if err != nil {
		return fmt.Errorf("lock group cache: %w", err)
	}
	defer unlock()
	return fn()
}
