package domain

import (
	"fmt"
	"time"
)

// TaskStatus represents the current state of a generation task
type TaskStatus string

// Possible task status values. The server reports either "succeeded" or
// "completed" for a successful run; both are treated the same way.
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCanceled  TaskStatus = "canceled"
)

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusQueued, TaskStatusRunning,
		TaskStatusSucceeded, TaskStatusCompleted, TaskStatusFailed,
		TaskStatusCanceled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further automatic transition happens from s.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusSucceeded, TaskStatusCompleted, TaskStatusFailed, TaskStatusCanceled:
		return true
	default:
		return false
	}
}

// IsActive reports whether the task occupies the queue or a worker.
func (s TaskStatus) IsActive() bool {
	return s == TaskStatusRunning || s == TaskStatusQueued
}

// ParseTaskStatus converts a raw status string into a TaskStatus.
func ParseTaskStatus(raw string) (TaskStatus, error) {
	status := TaskStatus(raw)
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return status, nil
}

// RepositoryRef is the short repository summary embedded in task payloads.
type RepositoryRef struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Task identifies one unit of asynchronous work executed by the server.
// Its status is only ever changed by the server; the client observes it
// through polling.
type Task struct {
	ID           int64          `json:"id" yaml:"id"`
	RepositoryID int64          `json:"repository_id" yaml:"repository_id"`
	WriterName   string         `json:"writer_name,omitempty" yaml:"writer_name,omitempty"`
	Type         string         `json:"type" yaml:"type"`
	Title        string         `json:"title" yaml:"title"`
	Status       TaskStatus     `json:"status" yaml:"status"`
	DocID        string         `json:"doc_id,omitempty" yaml:"doc_id,omitempty"`
	ErrorMsg     string         `json:"error_msg,omitempty" yaml:"error_msg,omitempty"`
	SortOrder    int            `json:"sort_order" yaml:"sort_order"`
	StartedAt    *time.Time     `json:"started_at" yaml:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at" yaml:"completed_at"`
	CreatedAt    time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" yaml:"updated_at"`
	Repository   *RepositoryRef `json:"repository,omitempty" yaml:"repository,omitempty"`
}

// RepositoryLabel returns the repository name when the server embedded it,
// falling back to the numeric id.
func (t Task) RepositoryLabel() string {
	if t.Repository != nil && t.Repository.Name != "" {
		return t.Repository.Name
	}
	return fmt.Sprintf("%d", t.RepositoryID)
}

// TaskStats holds per-status task counts for one repository.
type TaskStats struct {
	Total     int `json:"total" yaml:"total"`
	Pending   int `json:"pending" yaml:"pending"`
	Queued    int `json:"queued" yaml:"queued"`
	Running   int `json:"running" yaml:"running"`
	Succeeded int `json:"succeeded" yaml:"succeeded"`
	Failed    int `json:"failed" yaml:"failed"`
	Canceled  int `json:"canceled" yaml:"canceled"`
}

// RepositoryTasks is the snapshot of one repository's task board.
type RepositoryTasks struct {
	RepositoryID int64     `json:"repository_id" yaml:"repository_id"`
	Tasks        []Task    `json:"tasks" yaml:"tasks"`
	Stats        TaskStats `json:"stats" yaml:"stats"`
}

// Find returns the task with the given id.
func (r RepositoryTasks) Find(id int64) (Task, bool) {
	return findTask(r.Tasks, id)
}

func findTask(tasks []Task, id int64) (Task, bool) {
	for _, t := range tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}
