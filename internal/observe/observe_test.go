package observe

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wesm/pushvault/internal/broadcast"
	"github.com/wesm/pushvault/internal/groupcache"
	"github.com/wesm/pushvault/internal/query"
	"github.com/wesm/pushvault/internal/query/querytest"
	"github.com/wesm/pushvault/internal/store"
	"github.com/wesm/pushvault/internal/testutil"
	"github.com/wesm/pushvault/internal/testutil/storetest"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// startRun runs o in the background and stops it when the test ends.
func startRun(t *testing.T, o *Observer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run: %v", err)
		}
	})
}

func TestRefreshNow_PublishesAndCaches(t *testing.T) {
	f := storetest.New(t)
	f.Insert(
		testutil.NewMessage("a1").Group("A").Build(),
		testutil.NewMessage("b1").Group("B").After(time.Minute).Read().Build(),
	)
	cache := groupcache.New(t.TempDir())
	o := New(f.Engine, cache, WithLogger(quietLogger()))

	events, unsubscribe := o.Subscribe()
	defer unsubscribe()

	testutil.MustNoErr(t, o.RefreshNow(f.Ctx), "RefreshNow")

	if got := o.Counts(); got != (query.Counts{Unread: 1, Total: 2}) {
		t.Errorf("Counts() = %+v", got)
	}
	testutil.AssertStrings(t, storetest.GroupNames(o.Groups()), "A", "B")
	testutil.AssertStrings(t, storetest.GroupNames(cache.Get()), "A", "B")

	ev := <-events
	if ev.Kind != GroupsChanged {
		t.Errorf("latest event kind = %v, want %v", ev.Kind, GroupsChanged)
	}
	if ev.Counts.Unread != 1 || len(ev.Groups) != 2 {
		t.Errorf("event = %+v", ev)
	}
}

func TestRefreshNow_PublishesCountsBeforeGroups(t *testing.T) {
	release := make(chan struct{})
	eng := &querytest.MockEngine{
		CountsResult: query.Counts{Unread: 3, Total: 5},
		GroupedLatestFunc: func(context.Context) ([]store.GroupSummary, error) {
			<-release
			return []store.GroupSummary{{Message: testutil.NewMessage("x").Build(), UnreadCount: 3}}, nil
		},
	}
	o := New(eng, nil, WithLogger(quietLogger()))
	events, unsubscribe := o.Subscribe()
	defer unsubscribe()

	done := make(chan error, 1)
	go func() { done <- o.RefreshNow(context.Background()) }()

	ev := <-events
	if ev.Kind != CountsChanged || ev.Counts.Unread != 3 {
		t.Fatalf("first event = %+v, want counts with unread 3", ev)
	}
	if len(ev.Groups) != 0 {
		t.Errorf("counts event carried %d groups before the grouped query finished", len(ev.Groups))
	}

	close(release)
	testutil.MustNoErr(t, <-done, "RefreshNow")
	ev = <-events
	if ev.Kind != GroupsChanged || len(ev.Groups) != 1 {
		t.Errorf("second event = %+v, want groups", ev)
	}
}

func TestTrigger_CoalescesDuringRun(t *testing.T) {
	var (
		entered = make(chan struct{}, 10)
		release = make(chan struct{})
		gate    atomic.Bool
	)
	eng := &querytest.MockEngine{
		GroupedLatestFunc: func(context.Context) ([]store.GroupSummary, error) {
			if gate.Load() {
				entered <- struct{}{}
				<-release
			}
			return nil, nil
		},
	}
	o := New(eng, nil, WithLogger(quietLogger()), WithPollInterval(0))
	startRun(t, o)
	eventually(t, "priming run", func() bool { return eng.Calls("GroupedLatest") == 1 })

	gate.Store(true)
	o.Trigger()
	<-entered // a run is now in flight

	for i := 0; i < 20; i++ {
		o.Trigger()
	}
	gate.Store(false)
	close(release)

	eventually(t, "follow-up run", func() bool { return eng.Calls("GroupedLatest") == 3 })
	time.Sleep(100 * time.Millisecond)
	if n := eng.Calls("GroupedLatest"); n != 3 {
		t.Errorf("GroupedLatest ran %d times, want 3 (prime, triggered, one coalesced)", n)
	}
}

func TestRefreshNow_FailureKeepsPreviousViewsAndRetries(t *testing.T) {
	var fail atomic.Bool
	eng := &querytest.MockEngine{
		CountsFunc: func(context.Context, *string) (query.Counts, error) {
			if fail.Load() {
				return query.Counts{}, errors.New("disk I/O error")
			}
			return query.Counts{Unread: 1, Total: 1}, nil
		},
	}
	o := New(eng, nil, WithLogger(quietLogger()))
	ctx := context.Background()

	testutil.MustNoErr(t, o.RefreshNow(ctx), "first RefreshNow")

	fail.Store(true)
	if err := o.RefreshNow(ctx); err == nil {
		t.Fatal("expected error from failing engine")
	}
	if got := o.Counts(); got.Unread != 1 {
		t.Errorf("Counts() after failure = %+v, want previous value kept", got)
	}

	fail.Store(false)
	eng.CountsFunc = nil
	eng.CountsResult = query.Counts{Unread: 7, Total: 9}
	testutil.MustNoErr(t, o.RefreshNow(ctx), "retry")
	if got := o.Counts(); got.Unread != 7 {
		t.Errorf("Counts() after retry = %+v", got)
	}
}

func TestPoller_RecomputesOnFingerprintChange(t *testing.T) {
	var seq atomic.Int64
	eng := &querytest.MockEngine{
		FingerprintFunc: func(context.Context) (query.Fingerprint, error) {
			return query.Fingerprint{ChangeSeq: seq.Load()}, nil
		},
	}
	o := New(eng, nil, WithLogger(quietLogger()), WithPollInterval(10*time.Millisecond))
	startRun(t, o)
	eventually(t, "priming run", func() bool { return o.Runs() == 1 })

	// An unchanged fingerprint does not recompute.
	time.Sleep(100 * time.Millisecond)
	if n := o.Runs(); n != 1 {
		t.Fatalf("runs = %d with a stable fingerprint, want 1", n)
	}

	seq.Add(1)
	eventually(t, "poll-driven run", func() bool { return o.Runs() == 2 })
}

func TestRun_ReactsToOtherProcessWrites(t *testing.T) {
	f := storetest.New(t)
	signal := filepath.Join(t.TempDir(), broadcast.DefaultName)

	// Polling disabled: only the broadcast signal can wake the observer.
	o := New(f.Engine, nil, WithLogger(quietLogger()), WithPollInterval(0), WithSignal(signal))
	startRun(t, o)
	eventually(t, "priming run", func() bool { return o.Runs() >= 1 })

	// A second handle on the same file plays the other process.
	other := testutil.OpenTestStore(t, f.Store.Path())
	msg := testutil.NewMessage("remote").Group("Remote").Build()
	testutil.MustNoErr(t, other.InsertOrReplace(f.Ctx, &msg), "insert via other handle")
	testutil.MustNoErr(t, broadcast.NewPoster(signal).Post(), "Post")

	eventually(t, "remote write to be observed", func() bool {
		return o.Counts().Total == 1
	})
	testutil.AssertStrings(t, storetest.GroupNames(o.Groups()), "Remote")
}

func TestSubscribe_LatestWins(t *testing.T) {
	eng := &querytest.MockEngine{}
	o := New(eng, nil, WithLogger(quietLogger()))
	events, unsubscribe := o.Subscribe()

	for i := int64(1); i <= 3; i++ {
		eng.CountsResult = query.Counts{Unread: i, Total: i}
		testutil.MustNoErr(t, o.RefreshNow(context.Background()), "RefreshNow")
	}

	ev := <-events
	if ev.Counts.Unread != 3 || ev.Kind != GroupsChanged {
		t.Errorf("buffered event = %+v, want the final groups event", ev)
	}
	select {
	case ev := <-events:
		t.Errorf("unexpected second buffered event %+v", ev)
	default:
	}

	unsubscribe()
	unsubscribe()
	if _, ok := <-events; ok {
		t.Error("channel still open after unsubscribe")
	}
	testutil.MustNoErr(t, o.RefreshNow(context.Background()), "RefreshNow after unsubscribe")
}

func TestRunning_TracksRun(t *testing.T) {
	o := New(&querytest.MockEngine{}, nil, WithLogger(quietLogger()), WithPollInterval(0))
	if o.Running() {
		t.Fatal("Running before Run")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()
	eventually(t, "Run to start", o.Running)

	cancel()
	testutil.MustNoErr(t, <-done, "Run")
	if o.Running() {
		t.Error("Running after Run returned")
	}
}
