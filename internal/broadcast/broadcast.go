// Package broadcast delivers a payload-less "messages changed" signal
// between processes that share a data directory.
//
// The signal is a small file rewritten on every Post. Listeners watch its
// directory with fsnotify and invoke their callback for each observed
// rewrite. Signals may be coalesced or, under load, lost; receivers must
// treat them as hints and recompute from the database.
package broadcast

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultName is the signal file name inside the data directory.
const DefaultName = "pushvault.signal"

// Poster publishes the signal.
type Poster struct {
	path string
	mu   sync.Mutex
}

// NewPoster returns a Poster writing to path.
func NewPoster(path string) *Poster {
	return &Poster{path: path}
}

// Path returns the signal file path.
func (p *Poster) Path() string { return p.path }

// Post rewrites the signal file. The content is only informative; listeners
// react to the write itself.
func (p *Poster) Post() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	stamp := strconv.Itoa(os.Getpid()) + " " + time.Now().UTC().Format(time.RFC3339Nano) + "\n"
	if err := os.WriteFile(p.path, []byte(stamp), 0600); err != nil {
		return fmt.Errorf("post signal: %w", err)
	}
	return nil
}

// Listener watches a signal file and calls a callback for every change.
type Listener struct {
	path    string
	watcher *fsnotify.Watcher
	fn      func()
	logger  *slog.Logger
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithLogger sets the logger for watch errors.
func WithLogger(logger *slog.Logger) ListenerOption {
	return func(l *Listener) { l.logger = logger }
}

// Listen starts watching path and calls fn on its own goroutine for every
// write, create or rename of the file. fn must not block for long; the usual
// callback hands off to a coalescing trigger. The directory holding path is
// created if missing.
func Listen(path string, fn func(), opts ...ListenerOption) (*Listener, error) {
	if fn == nil {
		return nil, errors.New("listen: nil callback")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("listen: create dir: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("listen: new watcher: %w", err)
	}
	// Watch the directory, not the file: writers may replace the file, and
	// watching a missing file fails.
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("listen: watch %s: %w", dir, err)
	}

	l := &Listener{
		path:    abs,
		watcher: w,
		fn:      fn,
		logger:  slog.Default(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.wg.Add(1)
	go l.loop()
	return l, nil
}

func (l *Listener) loop() {
	defer l.wg.Done()
	for {
		select {
		case <-l.done:
			return
		case ev, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != l.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				l.fn()
			}
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			// Overflow means signals were dropped; a spurious callback makes
			// the receiver recompute, which is always safe.
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				l.fn()
			}
			l.logger.Warn("signal watch error", "path", l.path, "error", err)
		}
	}
}

// Close stops the listener and waits for its goroutine to exit. After
// Close returns the callback is not invoked again.
func (l *Listener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.watcher.Close()
		l.wg.Wait()
	})
	return err
}
