package deepwiki

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/phrazzld/taskwatch/internal/domain"
)

// Monitor fetches the queue aggregate with active and recent tasks.
func (c *HTTPClient) Monitor(ctx context.Context) (domain.MonitorSnapshot, error) {
	var out domain.MonitorSnapshot
	err := c.doJSON(ctx, http.MethodGet, "/tasks/monitor", nil, &out, requestOptions{})
	return out, err
}

// RepositoryTasks lists every task of a repository.
func (c *HTTPClient) RepositoryTasks(ctx context.Context, repositoryID int64) ([]domain.Task, error) {
	var out []domain.Task
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/repositories/%d/tasks", repositoryID), nil, &out, requestOptions{})
	return out, err
}

// RepositoryTaskStats returns per-status counters for a repository.
func (c *HTTPClient) RepositoryTaskStats(ctx context.Context, repositoryID int64) (domain.TaskStats, error) {
	var out domain.TaskStats
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/repositories/%d/tasks/stats", repositoryID), nil, &out, requestOptions{})
	return out, err
}

// GetTask fetches a single task.
func (c *HTTPClient) GetTask(ctx context.Context, taskID int64) (domain.Task, error) {
	var out domain.Task
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/tasks/%d", taskID), nil, &out, requestOptions{})
	return out, err
}

func (c *HTTPClient) taskAction(ctx context.Context, taskID int64, action string) error {
	return c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/tasks/%d/%s", taskID, action), nil, nil, requestOptions{})
}

// RunTask starts a pending task immediately.
func (c *HTTPClient) RunTask(ctx context.Context, taskID int64) error {
	return c.taskAction(ctx, taskID, "run")
}

// EnqueueTask puts a pending task on the queue.
func (c *HTTPClient) EnqueueTask(ctx context.Context, taskID int64) error {
	return c.taskAction(ctx, taskID, "enqueue")
}

// RetryTask resets a finished task so it can run again.
func (c *HTTPClient) RetryTask(ctx context.Context, taskID int64) error {
	return c.taskAction(ctx, taskID, "retry")
}

// RegenerateTask resets a finished task and discards its output.
func (c *HTTPClient) RegenerateTask(ctx context.Context, taskID int64) error {
	return c.taskAction(ctx, taskID, "regenerate")
}

// CancelTask stops a queued or running task.
func (c *HTTPClient) CancelTask(ctx context.Context, taskID int64) error {
	return c.taskAction(ctx, taskID, "cancel")
}

// DeleteTask removes a finished task.
func (c *HTTPClient) DeleteTask(ctx context.Context, taskID int64) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/tasks/%d", taskID), nil, nil, requestOptions{})
}

// GetDocument fetches one document version.
func (c *HTTPClient) GetDocument(ctx context.Context, documentID int64) (domain.Document, error) {
	var out domain.Document
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/documents/%d", documentID), nil, &out, requestOptions{})
	return out, err
}

// DocumentVersions lists every version in the document's lineage.
func (c *HTTPClient) DocumentVersions(ctx context.Context, documentID int64) ([]domain.Document, error) {
	var out []domain.Document
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/documents/%d/versions", documentID), nil, &out, requestOptions{})
	return out, err
}

// UpdateDocument saves new content, which the server stores as a new version.
func (c *HTTPClient) UpdateDocument(ctx context.Context, documentID int64, content string) (domain.Document, error) {
	var out domain.Document
	body := map[string]string{"content": content}
	err := c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/documents/%d", documentID), body, &out, requestOptions{})
	return out, err
}

// StartSync pushes a repository to another server.
func (c *HTTPClient) StartSync(ctx context.Context, req SyncRequest) (domain.SyncStart, error) {
	var out domain.SyncStart
	err := c.doJSON(ctx, http.MethodPost, "/sync/start", req, &out, requestOptions{enveloped: true})
	return out, err
}

// PullSync pulls a repository from another server.
func (c *HTTPClient) PullSync(ctx context.Context, req SyncRequest) (domain.SyncStart, error) {
	var out domain.SyncStart
	err := c.doJSON(ctx, http.MethodPost, "/sync/pull", req, &out, requestOptions{enveloped: true})
	return out, err
}

// SyncStatus fetches the authoritative snapshot of a sync run.
func (c *HTTPClient) SyncStatus(ctx context.Context, syncID string) (domain.SyncJob, error) {
	var out domain.SyncJob
	if strings.TrimSpace(syncID) == "" {
		return out, fmt.Errorf("%w: sync id is required", domain.ErrValidation)
	}
	err := c.doJSON(ctx, http.MethodGet, "/sync/status/"+url.PathEscape(syncID), nil, &out, requestOptions{enveloped: true})
	return out, err
}
