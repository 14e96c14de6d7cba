package broadcast

import (
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wesm/pushvault/internal/testutil"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPostIsDelivered(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultName)

	var hits atomic.Int64
	l, err := Listen(path, func() { hits.Add(1) })
	testutil.MustNoErr(t, err, "Listen")
	t.Cleanup(func() { l.Close() })

	p := NewPoster(path)
	testutil.MustNoErr(t, p.Post(), "Post")
	waitFor(t, "first signal", func() bool { return hits.Load() >= 1 })

	seen := hits.Load()
	testutil.MustNoErr(t, p.Post(), "second Post")
	waitFor(t, "second signal", func() bool { return hits.Load() > seen })
}

func TestOtherFilesIgnored(t *testing.T) {
	dir := t.TempDir()

	var hits atomic.Int64
	l, err := Listen(filepath.Join(dir, DefaultName), func() { hits.Add(1) })
	testutil.MustNoErr(t, err, "Listen")
	t.Cleanup(func() { l.Close() })

	testutil.WriteFile(t, dir, "pushvault.db", []byte("noise"))
	time.Sleep(200 * time.Millisecond)
	if n := hits.Load(); n != 0 {
		t.Errorf("callback ran %d times for an unrelated file", n)
	}
}

func TestCloseStopsCallbacks(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultName)

	var hits atomic.Int64
	l, err := Listen(path, func() { hits.Add(1) })
	testutil.MustNoErr(t, err, "Listen")
	testutil.MustNoErr(t, l.Close(), "Close")
	testutil.MustNoErr(t, l.Close(), "second Close")

	testutil.MustNoErr(t, NewPoster(path).Post(), "Post")
	time.Sleep(200 * time.Millisecond)
	if n := hits.Load(); n != 0 {
		t.Errorf("callback ran %d times after Close", n)
	}
}

func TestListen_NilCallback(t *testing.T) {
	if _, err := Listen(filepath.Join(t.TempDir(), DefaultName), nil); err == nil {
		t.Fatal("expected error for nil callback")
	}
}
