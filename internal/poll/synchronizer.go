package poll

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/taskwatch/internal/redact"
)

// ErrStopped is returned by Refresh once the synchronizer has been stopped.
var ErrStopped = errors.New("synchronizer stopped")

// DefaultInterval is used when Options.Interval is not positive.
const DefaultInterval = 5 * time.Second

// FetchFunc produces one authoritative snapshot. It must not leave side
// effects behind when it fails.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Options configures a Synchronizer.
type Options[T any] struct {
	// Name identifies the synchronizer in logs and metrics.
	Name string

	// Interval between scheduled fetches.
	Interval time.Duration

	// Paused starts the synchronizer with auto-refresh disabled.
	Paused bool

	// StopWhen is evaluated on every applied snapshot. Returning true stops
	// the synchronizer after that snapshot becomes visible.
	StopWhen func(T) bool

	// OnSnapshot is called once per replacement, after the new snapshot is
	// visible to readers and the fetch has settled. Calls never overlap and
	// arrive in replacement order. seq is the replacement counter.
	OnSnapshot func(prev, next T, seq uint64)

	Clock  Clock
	Logger *slog.Logger
}

// Synchronizer repeatedly fetches a snapshot of type T and replaces the
// held value wholesale. At most one fetch is in flight per instance.
type Synchronizer[T any] struct {
	name       string
	fetch      FetchFunc[T]
	interval   time.Duration
	stopWhen   func(T) bool
	onSnapshot func(prev, next T, seq uint64)
	clock      Clock
	logger     *slog.Logger
	metrics    *fetchMetrics

	// fetchMu is held for the whole duration of a fetch.
	fetchMu sync.Mutex

	// notifyMu guards the OnSnapshot queue. Callbacks run after fetchMu is
	// released, one at a time and in replacement order.
	notifyMu   sync.Mutex
	pending    []notification[T]
	delivering bool

	mu       sync.RWMutex
	snapshot T
	has      bool
	seq      uint64 // applied replacements
	issued   uint64 // fetch sequence numbers handed out
	applied  uint64 // fetch sequence number of the visible snapshot
	enabled  bool
	stopped  bool
	stopCh   chan struct{}
	stopOnce sync.Once
	resume   chan struct{}
}

// New creates a Synchronizer around fetch.
func New[T any](fetch FetchFunc[T], opts Options[T]) *Synchronizer[T] {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Name == "" {
		opts.Name = "poll"
	}

	return &Synchronizer[T]{
		name:       opts.Name,
		fetch:      fetch,
		interval:   opts.Interval,
		stopWhen:   opts.StopWhen,
		onSnapshot: opts.OnSnapshot,
		clock:      opts.Clock,
		logger:     opts.Logger.With("component", "poll", "synchronizer", opts.Name),
		metrics:    newFetchMetrics(opts.Name),
		enabled:    !opts.Paused,
		stopCh:     make(chan struct{}),
		resume:     make(chan struct{}, 1),
	}
}

// Name returns the synchronizer's name.
func (s *Synchronizer[T]) Name() string { return s.name }

// Run fetches immediately when enabled, then once per interval until ctx is
// done or the synchronizer stops. Re-enabling a paused synchronizer triggers
// an immediate fetch. Run must not be called concurrently with itself.
func (s *Synchronizer[T]) Run(ctx context.Context) error {
	if s.Stopped() {
		return nil
	}

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Debug("synchronizer started", "interval", s.interval)
	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("synchronizer context done")
			return ctx.Err()
		case <-s.stopCh:
			s.logger.Debug("synchronizer stopped")
			return nil
		case <-s.resume:
			s.Tick(ctx)
		case <-ticker.C():
			s.Tick(ctx)
		}
	}
}

// Tick performs one scheduled cycle. It returns false without fetching when
// the synchronizer is paused, stopped, or already has a fetch in flight.
// Fetch errors are logged and never returned.
func (s *Synchronizer[T]) Tick(ctx context.Context) bool {
	if !s.Enabled() || s.Stopped() {
		return false
	}
	if !s.fetchMu.TryLock() {
		s.logger.Debug("skipping tick, fetch in flight")
		return false
	}
	err := s.cycle(ctx)
	s.fetchMu.Unlock()
	s.deliver()

	if err != nil && !errors.Is(err, ErrStopped) {
		s.logger.Warn("background fetch failed", "error", redact.Error(err))
	}
	return true
}

// Refresh performs a user-triggered fetch. It waits for any fetch in flight
// to settle, then fetches regardless of the enabled flag. The fetch error,
// if any, is returned to the caller unchanged. The new snapshot is visible
// when Refresh returns; its OnSnapshot call may still be pending when
// another callback is running, for example when Refresh is called from one.
func (s *Synchronizer[T]) Refresh(ctx context.Context) error {
	if s.Stopped() {
		return ErrStopped
	}
	s.fetchMu.Lock()
	err := s.cycle(ctx)
	s.fetchMu.Unlock()
	s.deliver()
	return err
}

// cycle runs one fetch. The caller must hold fetchMu.
func (s *Synchronizer[T]) cycle(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	s.issued++
	seq := s.issued
	s.mu.Unlock()

	s.metrics.fetch(ctx)
	next, err := s.fetch(ctx)
	if err != nil {
		s.metrics.failure(ctx)
		return err
	}

	s.mu.Lock()
	if s.stopped || seq <= s.applied {
		s.mu.Unlock()
		s.metrics.discard(ctx)
		s.logger.Debug("discarding fetch result", "seq", seq)
		return nil
	}
	prev := s.snapshot
	s.snapshot = next
	s.has = true
	s.applied = seq
	s.seq++
	replacement := s.seq
	terminal := s.stopWhen != nil && s.stopWhen(next)
	if terminal {
		s.markStoppedLocked()
	}
	if s.onSnapshot != nil {
		s.notifyMu.Lock()
		s.pending = append(s.pending, notification[T]{prev: prev, next: next, seq: replacement})
		s.notifyMu.Unlock()
	}
	s.mu.Unlock()

	if terminal {
		s.logger.Info("synchronizer reached terminal snapshot", "seq", replacement)
	}
	return nil
}

type notification[T any] struct {
	prev, next T
	seq        uint64
}

// deliver runs queued OnSnapshot callbacks. A callback may call Refresh;
// the snapshot it produces is delivered by the outer loop once the
// callback returns.
func (s *Synchronizer[T]) deliver() {
	s.notifyMu.Lock()
	if s.delivering {
		s.notifyMu.Unlock()
		return
	}
	s.delivering = true

	for len(s.pending) > 0 {
		n := s.pending[0]
		s.pending = s.pending[1:]
		s.notifyMu.Unlock()
		s.onSnapshot(n.prev, n.next, n.seq)
		s.notifyMu.Lock()
	}
	s.delivering = false
	s.notifyMu.Unlock()
}

// SetEnabled pauses or resumes scheduled fetches. The last snapshot is kept.
func (s *Synchronizer[T]) SetEnabled(enabled bool) {
	s.mu.Lock()
	was := s.enabled
	s.enabled = enabled
	s.mu.Unlock()

	if enabled && !was {
		select {
		case s.resume <- struct{}{}:
		default:
		}
	}
}

// Enabled reports whether scheduled fetches are active.
func (s *Synchronizer[T]) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// Stop ends the synchronizer. No further fetches are issued, and the result
// of a fetch already in flight is discarded. Repeated calls are no-ops.
func (s *Synchronizer[T]) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markStoppedLocked()
}

func (s *Synchronizer[T]) markStoppedLocked() {
	s.stopped = true
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Stopped reports whether Stop was called or StopWhen matched.
func (s *Synchronizer[T]) Stopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}

// Done is closed when the synchronizer stops.
func (s *Synchronizer[T]) Done() <-chan struct{} {
	return s.stopCh
}

// Snapshot returns the last applied snapshot and whether one exists.
func (s *Synchronizer[T]) Snapshot() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot, s.has
}

// Seq returns the number of snapshot replacements so far.
func (s *Synchronizer[T]) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}
