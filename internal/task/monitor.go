package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/taskwatch/internal/domain"
	"github.com/phrazzld/taskwatch/internal/events"
	"github.com/phrazzld/taskwatch/internal/platform/deepwiki"
	"github.com/phrazzld/taskwatch/internal/poll"
	"github.com/phrazzld/taskwatch/internal/redact"
)

// Monitor defaults
const (
	DefaultMonitorInterval    = 5 * time.Second
	DefaultRepositoryInterval = 3 * time.Second
	DefaultRecentLimit        = 20
)

// ElapsedUnavailable is shown when a task duration cannot be computed.
const ElapsedUnavailable = "-"

// MonitorOptions configures a Monitor.
type MonitorOptions struct {
	// Interval between monitor polls
	Interval time.Duration

	// RepositoryInterval between polls of a watched repository
	RepositoryInterval time.Duration

	// RecentLimit bounds the recent-task view
	RecentLimit int

	// Paused starts with auto-refresh disabled
	Paused bool

	Emitter events.Emitter
	Logger  *slog.Logger
	Clock   poll.Clock
}

// TaskRow is one rendered task line.
type TaskRow struct {
	ID         int64             `json:"id" yaml:"id"`
	Repository string            `json:"repository" yaml:"repository"`
	Title      string            `json:"title" yaml:"title"`
	Status     domain.TaskStatus `json:"status" yaml:"status"`
	Elapsed    string            `json:"elapsed" yaml:"elapsed"`
	Error      string            `json:"error,omitempty" yaml:"error,omitempty"`
	Actions    []Action          `json:"actions" yaml:"actions"`
}

// MonitorView is the rendered monitor state published on every update.
type MonitorView struct {
	QueueStatus domain.QueueStatus `json:"queue_status" yaml:"queue_status"`
	ActiveTasks []TaskRow          `json:"active_tasks" yaml:"active_tasks"`
	RecentTasks []TaskRow          `json:"recent_tasks" yaml:"recent_tasks"`
	AutoRefresh bool               `json:"auto_refresh" yaml:"auto_refresh"`
	Seq         uint64             `json:"seq"          yaml:"seq"`
}

// RepositoryView is the rendered state of one watched repository.
type RepositoryView struct {
	RepositoryID int64            `json:"repository_id" yaml:"repository_id"`
	Stats        domain.TaskStats `json:"stats"         yaml:"stats"`
	Tasks        []TaskRow        `json:"tasks"         yaml:"tasks"`
}

type runner interface {
	Run(ctx context.Context) error
}

// Monitor keeps the task monitor and any watched repositories in sync with
// the server and issues user actions against tasks. Local task status is
// never modified: every action is followed by a refresh.
type Monitor struct {
	client      deepwiki.Client
	emitter     events.Emitter
	logger      *slog.Logger
	clock       poll.Clock
	recentLimit int
	repoEvery   time.Duration

	monitor *poll.Synchronizer[domain.MonitorSnapshot]

	mu      sync.Mutex
	repos   map[int64]*poll.Synchronizer[domain.RepositoryTasks]
	auto    bool
	runCtx  context.Context
	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

// NewMonitor creates a Monitor. Nothing is fetched until Run or Refresh.
func NewMonitor(client deepwiki.Client, opts MonitorOptions) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultMonitorInterval
	}
	if opts.RepositoryInterval <= 0 {
		opts.RepositoryInterval = DefaultRepositoryInterval
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = DefaultRecentLimit
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = poll.RealClock{}
	}

	m := &Monitor{
		client:      client,
		emitter:     opts.Emitter,
		logger:      opts.Logger.With("component", "task_monitor"),
		clock:       opts.Clock,
		recentLimit: opts.RecentLimit,
		repoEvery:   opts.RepositoryInterval,
		repos:       make(map[int64]*poll.Synchronizer[domain.RepositoryTasks]),
		auto:        !opts.Paused,
	}

	m.monitor = poll.New(client.Monitor, poll.Options[domain.MonitorSnapshot]{
		Name:     "monitor",
		Interval: opts.Interval,
		Paused:   opts.Paused,
		Clock:    opts.Clock,
		Logger:   opts.Logger,
		OnSnapshot: func(_, _ domain.MonitorSnapshot, _ uint64) {
			m.publish(events.TypeMonitorUpdated, m.View())
		},
	})
	return m
}

func (m *Monitor) publish(eventType string, payload any) {
	if err := events.Publish(context.Background(), m.emitter, eventType, payload); err != nil {
		m.logger.Warn("failed to publish view update",
			"event_type", eventType,
			"error", redact.Error(err))
	}
}

// Run polls until ctx is done or Stop is called. Repositories watched while
// running start polling immediately.
func (m *Monitor) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return poll.ErrStopped
	}
	if m.runCtx != nil {
		m.mu.Unlock()
		return errors.New("monitor is already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.runCtx, m.cancel = runCtx, cancel
	m.launchLocked(m.monitor)
	for _, s := range m.repos {
		m.launchLocked(s)
	}
	m.mu.Unlock()

	m.logger.Info("task monitor started", "auto_refresh", m.AutoRefresh())

	<-runCtx.Done()
	m.wg.Wait()

	m.logger.Info("task monitor stopped")
	return ctx.Err()
}

// launchLocked runs s on the monitor's run context. Caller holds mu.
func (m *Monitor) launchLocked(s runner) {
	if m.runCtx == nil {
		return
	}
	ctx := m.runCtx
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		_ = s.Run(ctx)
	}()
}

// Stop ends polling. It is safe to call more than once.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.stopped = true
	m.monitor.Stop()
	for _, s := range m.repos {
		s.Stop()
	}
	if m.cancel != nil {
		m.cancel()
	}
}

// WatchRepository starts polling the task list of a repository so that its
// pending tasks can be acted on.
func (m *Monitor) WatchRepository(repositoryID int64) error {
	if repositoryID <= 0 {
		return fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrEmptyRepository)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return poll.ErrStopped
	}
	if _, ok := m.repos[repositoryID]; ok {
		return nil
	}

	s := poll.New(m.fetchRepository(repositoryID), poll.Options[domain.RepositoryTasks]{
		Name:     fmt.Sprintf("repository-%d", repositoryID),
		Interval: m.repoEvery,
		Paused:   !m.auto,
		Clock:    m.clock,
		Logger:   m.logger,
		OnSnapshot: func(_, next domain.RepositoryTasks, _ uint64) {
			m.publish(events.TypeRepositoryUpdated, m.repositoryView(next))
		},
	})
	m.repos[repositoryID] = s
	m.launchLocked(s)

	m.logger.Debug("watching repository", "repository_id", repositoryID)
	return nil
}

// UnwatchRepository stops polling a repository.
func (m *Monitor) UnwatchRepository(repositoryID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.repos[repositoryID]; ok {
		s.Stop()
		delete(m.repos, repositoryID)
	}
}

func (m *Monitor) fetchRepository(repositoryID int64) poll.FetchFunc[domain.RepositoryTasks] {
	return func(ctx context.Context) (domain.RepositoryTasks, error) {
		tasks, err := m.client.RepositoryTasks(ctx, repositoryID)
		if err != nil {
			return domain.RepositoryTasks{}, err
		}
		stats, err := m.client.RepositoryTaskStats(ctx, repositoryID)
		if err != nil {
			return domain.RepositoryTasks{}, err
		}
		return domain.RepositoryTasks{RepositoryID: repositoryID, Tasks: tasks, Stats: stats}, nil
	}
}

// refreshers returns every owned synchronizer.
func (m *Monitor) refreshers() []interface{ Refresh(context.Context) error } {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []interface{ Refresh(context.Context) error }{m.monitor}
	for _, s := range m.repos {
		out = append(out, s)
	}
	return out
}

// Refresh fetches every owned snapshot now, regardless of auto-refresh.
// The first error is returned.
func (m *Monitor) Refresh(ctx context.Context) error {
	var firstErr error
	for _, s := range m.refreshers() {
		if err := s.Refresh(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SetAutoRefresh pauses or resumes scheduled polling of every snapshot.
// Turning it back on fetches immediately.
func (m *Monitor) SetAutoRefresh(enabled bool) {
	m.mu.Lock()
	m.auto = enabled
	syncs := []interface{ SetEnabled(bool) }{m.monitor}
	for _, s := range m.repos {
		syncs = append(syncs, s)
	}
	m.mu.Unlock()

	for _, s := range syncs {
		s.SetEnabled(enabled)
	}
	m.logger.Debug("auto refresh changed", "enabled", enabled)
}

// AutoRefresh reports whether scheduled polling is on.
func (m *Monitor) AutoRefresh() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.auto
}

// Snapshot returns the last monitor snapshot.
func (m *Monitor) Snapshot() (domain.MonitorSnapshot, bool) {
	return m.monitor.Snapshot()
}

// ActiveTasks returns the running and queued tasks of the last snapshot.
func (m *Monitor) ActiveTasks() []domain.Task {
	snap, _ := m.monitor.Snapshot()
	return snap.Active()
}

// RecentTasks returns the most recently finished tasks, newest first.
func (m *Monitor) RecentTasks() []domain.Task {
	snap, _ := m.monitor.Snapshot()
	return snap.Recent(m.recentLimit)
}

// QueueStatus returns the queue counters of the last snapshot.
func (m *Monitor) QueueStatus() domain.QueueStatus {
	snap, _ := m.monitor.Snapshot()
	return snap.QueueStatus
}

// RepositoryTasks returns the last snapshot of a watched repository.
func (m *Monitor) RepositoryTasks(repositoryID int64) (domain.RepositoryTasks, bool) {
	m.mu.Lock()
	s, ok := m.repos[repositoryID]
	m.mu.Unlock()
	if !ok {
		return domain.RepositoryTasks{}, false
	}
	return s.Snapshot()
}

// View renders the monitor at the clock's current time.
func (m *Monitor) View() MonitorView {
	now := m.clock.Now()
	return MonitorView{
		QueueStatus: m.QueueStatus(),
		ActiveTasks: rows(m.ActiveTasks(), now),
		RecentTasks: rows(m.RecentTasks(), now),
		AutoRefresh: m.AutoRefresh(),
		Seq:         m.monitor.Seq(),
	}
}

// RepositoryView renders a watched repository.
func (m *Monitor) RepositoryView(repositoryID int64) (RepositoryView, bool) {
	snap, ok := m.RepositoryTasks(repositoryID)
	if !ok {
		return RepositoryView{RepositoryID: repositoryID}, false
	}
	return m.repositoryView(snap), true
}

func (m *Monitor) repositoryView(snap domain.RepositoryTasks) RepositoryView {
	return RepositoryView{
		RepositoryID: snap.RepositoryID,
		Stats:        snap.Stats,
		Tasks:        rows(snap.Tasks, m.clock.Now()),
	}
}

func rows(tasks []domain.Task, now time.Time) []TaskRow {
	out := make([]TaskRow, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, TaskRow{
			ID:         t.ID,
			Repository: t.RepositoryLabel(),
			Title:      t.Title,
			Status:     t.Status,
			Elapsed:    ElapsedLabel(t, now),
			Error:      t.ErrorMsg,
			Actions:    AvailableActions(t.Status),
		})
	}
	return out
}

// ElapsedLabel renders how long t has been running, or ElapsedUnavailable.
func ElapsedLabel(t domain.Task, now time.Time) string {
	d, ok := domain.TaskDuration(t, now)
	if !ok {
		return ElapsedUnavailable
	}
	return domain.FormatDuration(d)
}

// Durations renders the elapsed label of every active task, keyed by id.
func (m *Monitor) Durations(now time.Time) map[int64]string {
	active := m.ActiveTasks()
	out := make(map[int64]string, len(active))
	for _, t := range active {
		out[t.ID] = ElapsedLabel(t, now)
	}
	return out
}

// lookup finds the last known state of a task across every snapshot. When
// several snapshots hold the task, the most recently updated copy wins.
func (m *Monitor) lookup(taskID int64) (domain.Task, bool) {
	var (
		found domain.Task
		ok    bool
	)
	consider := func(t domain.Task) {
		if !ok || t.UpdatedAt.After(found.UpdatedAt) {
			found, ok = t, true
		}
	}

	if snap, has := m.monitor.Snapshot(); has {
		if t, hit := snap.Find(taskID); hit {
			consider(t)
		}
	}

	m.mu.Lock()
	repos := make([]*poll.Synchronizer[domain.RepositoryTasks], 0, len(m.repos))
	for _, s := range m.repos {
		repos = append(repos, s)
	}
	m.mu.Unlock()

	for _, s := range repos {
		if snap, has := s.Snapshot(); has {
			if t, hit := snap.Find(taskID); hit {
				consider(t)
			}
		}
	}
	return found, ok
}

// Perform validates action against the task's last known status, sends it
// to the server, then refreshes every snapshot whatever the outcome. The
// server's error is returned unchanged.
func (m *Monitor) Perform(ctx context.Context, action Action, taskID int64) error {
	t, ok := m.lookup(taskID)
	if !ok {
		return fmt.Errorf("%w: %d", domain.ErrTaskNotFound, taskID)
	}
	if _, err := Validate(t.Status, action); err != nil {
		return err
	}

	log := m.logger.With("action", action, "task_id", taskID, "status", t.Status)

	var err error
	switch action {
	case ActionRun:
		err = m.client.RunTask(ctx, taskID)
	case ActionEnqueue:
		err = m.client.EnqueueTask(ctx, taskID)
	case ActionCancel:
		err = m.client.CancelTask(ctx, taskID)
	case ActionRetry:
		err = m.client.RetryTask(ctx, taskID)
	case ActionRegenerate:
		err = m.client.RegenerateTask(ctx, taskID)
	case ActionDelete:
		err = m.client.DeleteTask(ctx, taskID)
	default:
		return fmt.Errorf("%w: unknown action %q", domain.ErrValidation, action)
	}

	for _, s := range m.refreshers() {
		if rerr := s.Refresh(ctx); rerr != nil && !errors.Is(rerr, poll.ErrStopped) {
			log.Warn("refresh after action failed", "error", redact.Error(rerr))
		}
	}

	if err != nil {
		log.Warn("task action rejected by server", "error", redact.Error(err))
		return err
	}
	log.Info("task action accepted")
	return nil
}

// RunTask starts a pending task.
func (m *Monitor) RunTask(ctx context.Context, taskID int64) error {
	return m.Perform(ctx, ActionRun, taskID)
}

// EnqueueTask queues a pending task.
func (m *Monitor) EnqueueTask(ctx context.Context, taskID int64) error {
	return m.Perform(ctx, ActionEnqueue, taskID)
}

// CancelTask cancels a running or queued task.
func (m *Monitor) CancelTask(ctx context.Context, taskID int64) error {
	return m.Perform(ctx, ActionCancel, taskID)
}

// RetryTask resets a finished task.
func (m *Monitor) RetryTask(ctx context.Context, taskID int64) error {
	return m.Perform(ctx, ActionRetry, taskID)
}

// RegenerateTask regenerates a finished task's output.
func (m *Monitor) RegenerateTask(ctx context.Context, taskID int64) error {
	return m.Perform(ctx, ActionRegenerate, taskID)
}

// DeleteTask removes a finished task.
func (m *Monitor) DeleteTask(ctx context.Context, taskID int64) error {
	return m.Perform(ctx, ActionDelete, taskID)
}
