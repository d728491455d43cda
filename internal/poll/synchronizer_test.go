package poll

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// counterFetch returns 1, 2, 3... on successive calls.
func counterFetch() (FetchFunc[int], *atomic.Int32) {
	var calls atomic.Int32
	return func(ctx context.Context) (int, error) {
		return int(calls.Add(1)), nil
	}, &calls
}

func TestSynchronizer_TickReplacesSnapshot(t *testing.T) {
	t.Parallel()

	fetch, calls := counterFetch()
	var seen [][2]int
	s := New(fetch, Options[int]{
		Name:   "counter",
		Logger: discardLogger(),
		OnSnapshot: func(prev, next int, seq uint64) {
			seen = append(seen, [2]int{prev, next})
		},
	})

	_, ok := s.Snapshot()
	assert.False(t, ok, "no snapshot before the first fetch")

	assert.True(t, s.Tick(context.Background()))
	assert.True(t, s.Tick(context.Background()))

	got, ok := s.Snapshot()
	require.True(t, ok)
	assert.Equal(t, 2, got)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, uint64(2), s.Seq())
	assert.Equal(t, [][2]int{{0, 1}, {1, 2}}, seen)
}

func TestSynchronizer_RefreshFromOnSnapshot(t *testing.T) {
	t.Parallel()

	fetch, calls := counterFetch()
	var (
		s    *Synchronizer[int]
		seen []int
		errs = make(chan error, 1)
	)
	s = New(fetch, Options[int]{
		Logger: discardLogger(),
		OnSnapshot: func(prev, next int, seq uint64) {
			seen = append(seen, next)
			if next == 1 {
				errs <- s.Refresh(context.Background())
				assert.Equal(t, []int{1}, seen, "nested snapshots are delivered after the callback returns")
			}
		},
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Tick(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Refresh from OnSnapshot did not return")
	}
	require.NoError(t, <-errs)
	assert.Equal(t, []int{1, 2}, seen)
	assert.Equal(t, int32(2), calls.Load())

	assert.True(t, s.Tick(context.Background()), "scheduled ticks keep running")
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestSynchronizer_BackgroundErrorKeepsSnapshot(t *testing.T) {
	t.Parallel()

	fail := false
	s := New(func(ctx context.Context) (string, error) {
		if fail {
			return "", errors.New("server unavailable")
		}
		return "good", nil
	}, Options[string]{Logger: discardLogger()})

	require.True(t, s.Tick(context.Background()))
	fail = true
	assert.True(t, s.Tick(context.Background()), "a failed fetch still counts as a cycle")

	got, ok := s.Snapshot()
	require.True(t, ok)
	assert.Equal(t, "good", got)
	assert.Equal(t, uint64(1), s.Seq())
}

func TestSynchronizer_RefreshSurfacesErrorOnce(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	s := New(func(ctx context.Context) (int, error) {
		return 0, boom
	}, Options[int]{Logger: discardLogger()})

	err := s.Refresh(context.Background())
	assert.ErrorIs(t, err, boom)

	_, ok := s.Snapshot()
	assert.False(t, ok)
}

func TestSynchronizer_RefreshWorksWhilePaused(t *testing.T) {
	t.Parallel()

	fetch, calls := counterFetch()
	s := New(fetch, Options[int]{Paused: true, Logger: discardLogger()})

	assert.False(t, s.Tick(context.Background()), "paused synchronizer skips scheduled ticks")
	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, int32(1), calls.Load())
}

func TestSynchronizer_NoOverlappingFetches(t *testing.T) {
	t.Parallel()

	var inFlight, maxInFlight atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{}, 16)

	s := New(func(ctx context.Context) (int, error) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		started <- struct{}{}
		<-release
		inFlight.Add(-1)
		return int(n), nil
	}, Options[int]{Logger: discardLogger()})

	ctx := context.Background()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Tick(ctx)
	}()
	<-started

	// While the first fetch is blocked every scheduled tick is skipped
	for i := 0; i < 5; i++ {
		assert.False(t, s.Tick(ctx))
	}

	// A manual refresh queues behind the in-flight fetch
	refreshed := make(chan error, 1)
	go func() { refreshed <- s.Refresh(ctx) }()

	close(release)
	wg.Wait()
	require.NoError(t, <-refreshed)

	assert.Equal(t, int32(1), maxInFlight.Load())
	assert.Equal(t, uint64(2), s.Seq())
}

func TestSynchronizer_StopDiscardsInFlightResult(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32

	s := New(func(ctx context.Context) (int, error) {
		if calls.Add(1) == 1 {
			return 1, nil
		}
		close(started)
		<-release
		return 99, nil
	}, Options[int]{Logger: discardLogger()})

	ctx := context.Background()
	require.True(t, s.Tick(ctx))

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Tick(ctx)
	}()
	<-started

	s.Stop()
	close(release)
	<-done

	got, _ := s.Snapshot()
	assert.Equal(t, 1, got, "result of a fetch finishing after stop is discarded")
	assert.False(t, s.Tick(ctx))
	assert.ErrorIs(t, s.Refresh(ctx), ErrStopped)
	assert.Equal(t, int32(2), calls.Load(), "no fetch is issued after stop")

	// Idempotent
	s.Stop()
	s.Stop()
}

func TestSynchronizer_StopWhenTerminal(t *testing.T) {
	t.Parallel()

	fetch, calls := counterFetch()
	var last int
	s := New(fetch, Options[int]{
		Logger:     discardLogger(),
		StopWhen:   func(v int) bool { return v >= 3 },
		OnSnapshot: func(prev, next int, seq uint64) { last = next },
	})

	ctx := context.Background()
	for i := 0; i < 6; i++ {
		s.Tick(ctx)
	}

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 3, last, "the terminal snapshot is still published")
	assert.True(t, s.Stopped())

	select {
	case <-s.Done():
	default:
		t.Fatal("Done channel should be closed")
	}
}

func TestSynchronizer_RunWithManualClock(t *testing.T) {
	t.Parallel()

	clock := NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	fetched := make(chan int, 16)
	var calls atomic.Int32

	s := New(func(ctx context.Context) (int, error) {
		n := int(calls.Add(1))
		fetched <- n
		return n, nil
	}, Options[int]{
		Interval: 5 * time.Second,
		Clock:    clock,
		Logger:   discardLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()

	// Immediate fetch on activation
	assert.Equal(t, 1, waitFetch(t, fetched))
	require.Eventually(t, func() bool { return clock.Tickers() == 1 }, time.Second, time.Millisecond)

	clock.Advance(4 * time.Second)
	assertNoFetch(t, fetched)

	clock.Advance(time.Second)
	assert.Equal(t, 2, waitFetch(t, fetched))

	// Pausing keeps the snapshot and skips ticks
	s.SetEnabled(false)
	clock.Advance(5 * time.Second)
	assertNoFetch(t, fetched)
	got, _ := s.Snapshot()
	assert.Equal(t, 2, got)

	// Resuming fetches immediately
	s.SetEnabled(true)
	assert.Equal(t, 3, waitFetch(t, fetched))

	cancel()
	assert.ErrorIs(t, <-runErr, context.Canceled)
}

func TestSynchronizer_RunReturnsOnStop(t *testing.T) {
	t.Parallel()

	fetch, _ := counterFetch()
	s := New(fetch, Options[int]{
		Clock:  NewManualClock(time.Now()),
		Logger: discardLogger(),
	})

	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(context.Background()) }()

	require.Eventually(t, func() bool { return s.Seq() == 1 }, time.Second, time.Millisecond)
	s.Stop()

	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func waitFetch(t *testing.T, ch <-chan int) int {
	t.Helper()
	select {
	case n := <-ch:
		return n
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fetch")
		return 0
	}
}

func assertNoFetch(t *testing.T, ch <-chan int) {
	t.Helper()
	select {
	case n := <-ch:
		t.Fatalf("unexpected fetch %d", n)
	case <-time.After(20 * time.Millisecond):
	}
}
