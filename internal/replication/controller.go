package replication

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/taskwatch/internal/domain"
	"github.com/phrazzld/taskwatch/internal/events"
	"github.com/phrazzld/taskwatch/internal/platform/deepwiki"
	"github.com/phrazzld/taskwatch/internal/poll"
	"github.com/phrazzld/taskwatch/internal/redact"
)

// DefaultInterval between status polls of a running job.
const DefaultInterval = 2 * time.Second

var (
	// ErrNoJob is returned by Wait when no run was started.
	ErrNoJob = errors.New("no sync job started")

	// ErrSuperseded is returned by Wait when a newer Start replaced the job.
	ErrSuperseded = errors.New("sync job replaced by a newer start")

	// ErrStopped is returned by Wait when the controller was stopped before
	// the job finished.
	ErrStopped = errors.New("sync controller stopped")
)

// Options configures a Controller.
type Options struct {
	Interval time.Duration
	Emitter  events.Emitter
	Logger   *slog.Logger
	Clock    poll.Clock

	// CompletedLine and FailedLine override the terminal log lines.
	CompletedLine string
	FailedLine    string
}

type job struct {
	syncID string
	sync   *poll.Synchronizer[domain.SyncJob]
	cancel context.CancelFunc

	once  sync.Once
	done  chan struct{}
	final View
	err   error
}

func (j *job) finish(view View, err error) {
	j.once.Do(func() {
		j.final, j.err = view, err
		close(j.done)
	})
}

// Controller drives a single replication run at a time: it validates and
// starts the run, then polls its status until the job is terminal.
type Controller struct {
	client     deepwiki.Client
	interval   time.Duration
	emitter    events.Emitter
	logger     *slog.Logger
	clock      poll.Clock
	transition Transition

	mu      sync.Mutex
	current *job
	view    View
}

// NewController creates a Controller.
func NewController(client deepwiki.Client, opts Options) *Controller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = poll.RealClock{}
	}
	tr := DefaultTransition
	if opts.CompletedLine != "" {
		tr.CompletedLine = opts.CompletedLine
	}
	if opts.FailedLine != "" {
		tr.FailedLine = opts.FailedLine
	}
	return &Controller{
		client:     client,
		interval:   opts.Interval,
		emitter:    opts.Emitter,
		logger:     opts.Logger.With("component", "sync_controller"),
		clock:      opts.Clock,
		transition: tr,
		view:       View{Logs: []string{}},
	}
}

// Start validates req, asks the server to start the run and begins polling
// its status. Validation failures never reach the network. A successful
// Start replaces any previous run.
func (c *Controller) Start(ctx context.Context, req StartRequest) (View, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return View{}, err
	}

	log := c.logger.With(
		"repository_id", req.RepositoryID,
		"mode", req.Mode,
		"target", redact.URL(req.TargetServer))

	var (
		started domain.SyncStart
		err     error
	)
	if req.Mode == ModePull {
		started, err = c.client.PullSync(ctx, req.toClient())
	} else {
		started, err = c.client.StartSync(ctx, req.toClient())
	}
	if err != nil {
		log.Warn("sync start rejected", "error", redact.Error(err))
		return View{}, err
	}
	if started.SyncID == "" {
		return View{}, errors.New("sync start response has no sync id")
	}
	if started.RepositoryID == 0 {
		started.RepositoryID = req.RepositoryID
	}

	j := &job{syncID: started.SyncID, done: make(chan struct{})}
	j.sync = poll.New(c.fetchStatus(started.SyncID), poll.Options[domain.SyncJob]{
		Name:     "sync-" + started.SyncID,
		Interval: c.interval,
		Clock:    c.clock,
		Logger:   c.logger,
		StopWhen: func(s domain.SyncJob) bool { return s.Status.IsTerminal() },
		OnSnapshot: func(_, next domain.SyncJob, _ uint64) {
			c.apply(j, next)
		},
	})

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	j.cancel = cancel

	seed := Seed(started.InitialJob(c.clock.Now()))

	c.mu.Lock()
	prev := c.current
	c.current = j
	c.view = seed
	c.mu.Unlock()

	if prev != nil {
		prev.sync.Stop()
		prev.cancel()
		prev.finish(View{}, ErrSuperseded)
		log.Info("previous sync job replaced", "previous_sync_id", prev.syncID)
	}

	log.Info("sync started", "sync_id", started.SyncID, "total_tasks", started.TotalTasks)
	c.publish(seed)

	go func() {
		_ = j.sync.Run(runCtx)
	}()
	return seed.clone(), nil
}

func (c *Controller) fetchStatus(syncID string) poll.FetchFunc[domain.SyncJob] {
	return func(ctx context.Context) (domain.SyncJob, error) {
		return c.client.SyncStatus(ctx, syncID)
	}
}

// apply folds a status snapshot into the view of j. Snapshots of a
// replaced job are ignored.
func (c *Controller) apply(j *job, next domain.SyncJob) {
	c.mu.Lock()
	if c.current != j {
		c.mu.Unlock()
		return
	}
	c.view = c.transition.Advance(c.view, next)
	view := c.view.clone()
	c.mu.Unlock()

	c.logger.Debug("sync progress",
		"sync_id", next.SyncID,
		"status", next.Status,
		"completed_tasks", next.CompletedTasks,
		"total_tasks", next.TotalTasks,
		"progress", view.Progress)

	c.publish(view)

	if view.Done {
		j.cancel()
		j.finish(view, nil)
		c.logger.Info("sync finished",
			"sync_id", next.SyncID,
			"status", next.Status,
			"failed_tasks", next.FailedTasks)
	}
}

func (c *Controller) publish(view View) {
	if err := events.Publish(context.Background(), c.emitter, events.TypeSyncUpdated, view); err != nil {
		c.logger.Warn("failed to publish sync view", "error", redact.Error(err))
	}
}

// View returns a copy of the current view.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view.clone()
}

// Active reports whether a run is being polled.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil && !c.view.Done && !c.current.sync.Stopped()
}

// Refresh polls the current job now and returns the fetch error, if any.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	j := c.current
	c.mu.Unlock()
	if j == nil {
		return ErrNoJob
	}
	return j.sync.Refresh(ctx)
}

// Wait blocks until the current job is terminal and returns its final view.
func (c *Controller) Wait(ctx context.Context) (View, error) {
	c.mu.Lock()
	j := c.current
	c.mu.Unlock()
	if j == nil {
		return View{}, ErrNoJob
	}

	select {
	case <-ctx.Done():
		return c.View(), ctx.Err()
	case <-j.done:
		return j.final.clone(), j.err
	}
}

// Stop ends polling of the current job. The last view is kept.
func (c *Controller) Stop() {
	c.mu.Lock()
	j := c.current
	view := c.view.clone()
	c.mu.Unlock()
	if j == nil {
		return
	}
	j.sync.Stop()
	j.cancel()
	j.finish(view, ErrStopped)
}
