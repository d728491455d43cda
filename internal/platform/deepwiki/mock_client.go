package deepwiki

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/phrazzld/taskwatch/internal/domain"
)

// MockClient is a Client whose behavior is set per method through the
// ...Fn fields. Unset methods return zero values. Every call is recorded.
type MockClient struct {
	MonitorFn             func(ctx context.Context) (domain.MonitorSnapshot, error)
	RepositoryTasksFn     func(ctx context.Context, repositoryID int64) ([]domain.Task, error)
	RepositoryTaskStatsFn func(ctx context.Context, repositoryID int64) (domain.TaskStats, error)
	GetTaskFn             func(ctx context.Context, taskID int64) (domain.Task, error)
	RunTaskFn             func(ctx context.Context, taskID int64) error
	EnqueueTaskFn         func(ctx context.Context, taskID int64) error
	RetryTaskFn           func(ctx context.Context, taskID int64) error
	RegenerateTaskFn      func(ctx context.Context, taskID int64) error
	CancelTaskFn          func(ctx context.Context, taskID int64) error
	DeleteTaskFn          func(ctx context.Context, taskID int64) error
	GetDocumentFn         func(ctx context.Context, documentID int64) (domain.Document, error)
	DocumentVersionsFn    func(ctx context.Context, documentID int64) ([]domain.Document, error)
	UpdateDocumentFn      func(ctx context.Context, documentID int64, content string) (domain.Document, error)
	StartSyncFn           func(ctx context.Context, req SyncRequest) (domain.SyncStart, error)
	PullSyncFn            func(ctx context.Context, req SyncRequest) (domain.SyncStart, error)
	SyncStatusFn          func(ctx context.Context, syncID string) (domain.SyncJob, error)

	mu    sync.Mutex
	calls []string
}

var _ Client = (*MockClient)(nil)

func (m *MockClient) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

// Calls returns the recorded calls, formatted as "Method" or "Method(arg)".
func (m *MockClient) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many recorded calls have the given method name.
func (m *MockClient) CallCount(method string) int {
	n := 0
	for _, c := range m.Calls() {
		if c == method || strings.HasPrefix(c, method+"(") {
			n++
		}
	}
	return n
}

// Monitor implements Client.
func (m *MockClient) Monitor(ctx context.Context) (domain.MonitorSnapshot, error) {
	m.record("Monitor")
	if m.MonitorFn != nil {
		return m.MonitorFn(ctx)
	}
	return domain.MonitorSnapshot{}, nil
}

// RepositoryTasks implements Client.
func (m *MockClient) RepositoryTasks(ctx context.Context, repositoryID int64) ([]domain.Task, error) {
	m.record(fmt.Sprintf("RepositoryTasks(%v)", repositoryID))
	if m.RepositoryTasksFn != nil {
		return m.RepositoryTasksFn(ctx, repositoryID)
	}
	return nil, nil
}

// RepositoryTaskStats implements Client.
func (m *MockClient) RepositoryTaskStats(ctx context.Context, repositoryID int64) (domain.TaskStats, error) {
	m.record(fmt.Sprintf("RepositoryTaskStats(%v)", repositoryID))
	if m.RepositoryTaskStatsFn != nil {
		return m.RepositoryTaskStatsFn(ctx, repositoryID)
	}
	return domain.TaskStats{}, nil
}

// GetTask implements Client.
func (m *MockClient) GetTask(ctx context.Context, taskID int64) (domain.Task, error) {
	m.record(fmt.Sprintf("GetTask(%v)", taskID))
	if m.GetTaskFn != nil {
		return m.GetTaskFn(ctx, taskID)
	}
	return domain.Task{}, nil
}

// RunTask implements Client.
func (m *MockClient) RunTask(ctx context.Context, taskID int64) error {
	m.record(fmt.Sprintf("RunTask(%v)", taskID))
	if m.RunTaskFn != nil {
		return m.RunTaskFn(ctx, taskID)
	}
	return nil
}

// EnqueueTask implements Client.
func (m *MockClient) EnqueueTask(ctx context.Context, taskID int64) error {
	m.record(fmt.Sprintf("EnqueueTask(%v)", taskID))
	if m.EnqueueTaskFn != nil {
		return m.EnqueueTaskFn(ctx, taskID)
	}
	return nil
}

// RetryTask implements Client.
func (m *MockClient) RetryTask(ctx context.Context, taskID int64) error {
	m.record(fmt.Sprintf("RetryTask(%v)", taskID))
	if m.RetryTaskFn != nil {
		return m.RetryTaskFn(ctx, taskID)
	}
	return nil
}

// RegenerateTask implements Client.
func (m *MockClient) RegenerateTask(ctx context.Context, taskID int64) error {
	m.record(fmt.Sprintf("RegenerateTask(%v)", taskID))
	if m.RegenerateTaskFn != nil {
		return m.RegenerateTaskFn(ctx, taskID)
	}
	return nil
}

// CancelTask implements Client.
func (m *MockClient) CancelTask(ctx context.Context, taskID int64) error {
	m.record(fmt.Sprintf("CancelTask(%v)", taskID))
	if m.CancelTaskFn != nil {
		return m.CancelTaskFn(ctx, taskID)
	}
	return nil
}

// DeleteTask implements Client.
func (m *MockClient) DeleteTask(ctx context.Context, taskID int64) error {
	m.record(fmt.Sprintf("DeleteTask(%v)", taskID))
	if m.DeleteTaskFn != nil {
		return m.DeleteTaskFn(ctx, taskID)
	}
	return nil
}

// GetDocument implements Client.
func (m *MockClient) GetDocument(ctx context.Context, documentID int64) (domain.Document, error) {
	m.record(fmt.Sprintf("GetDocument(%v)", documentID))
	if m.GetDocumentFn != nil {
		return m.GetDocumentFn(ctx, documentID)
	}
	return domain.Document{}, nil
}

// DocumentVersions implements Client.
func (m *MockClient) DocumentVersions(ctx context.Context, documentID int64) ([]domain.Document, error) {
	m.record(fmt.Sprintf("DocumentVersions(%v)", documentID))
	if m.DocumentVersionsFn != nil {
		return m.DocumentVersionsFn(ctx, documentID)
	}
	return nil, nil
}

// UpdateDocument implements Client.
func (m *MockClient) UpdateDocument(ctx context.Context, documentID int64, content string) (domain.Document, error) {
	m.record(fmt.Sprintf("UpdateDocument(%v)", documentID))
	if m.UpdateDocumentFn != nil {
		return m.UpdateDocumentFn(ctx, documentID, content)
	}
	return domain.Document{}, nil
}

// StartSync implements Client.
func (m *MockClient) StartSync(ctx context.Context, req SyncRequest) (domain.SyncStart, error) {
	m.record(fmt.Sprintf("StartSync(%v)", req.RepositoryID))
	if m.StartSyncFn != nil {
		return m.StartSyncFn(ctx, req)
	}
	return domain.SyncStart{}, nil
}

// PullSync implements Client.
func (m *MockClient) PullSync(ctx context.Context, req SyncRequest) (domain.SyncStart, error) {
	m.record(fmt.Sprintf("PullSync(%v)", req.RepositoryID))
	if m.PullSyncFn != nil {
		return m.PullSyncFn(ctx, req)
	}
	return domain.SyncStart{}, nil
}

// SyncStatus implements Client.
func (m *MockClient) SyncStatus(ctx context.Context, syncID string) (domain.SyncJob, error) {
	m.record(fmt.Sprintf("SyncStatus(%v)", syncID))
	if m.SyncStatusFn != nil {
		return m.SyncStatusFn(ctx, syncID)
	}
	return domain.SyncJob{}, nil
}
