package domain

import (
	"math"
	"time"
)

// SyncStatus is the state of a cross-server replication run.
// The zero value is the implicit state before the first poll.
type SyncStatus string

// Possible sync status values
const (
	SyncStatusUnknown   SyncStatus = ""
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

// IsTerminal reports whether the job has finished.
func (s SyncStatus) IsTerminal() bool {
	return s == SyncStatusCompleted || s == SyncStatusFailed
}

// SyncJob is the authoritative snapshot of one replication run.
type SyncJob struct {
	SyncID         string     `json:"sync_id" yaml:"sync_id"`
	RepositoryID   int64      `json:"repository_id" yaml:"repository_id"`
	TotalTasks     int        `json:"total_tasks" yaml:"total_tasks"`
	CompletedTasks int        `json:"completed_tasks" yaml:"completed_tasks"`
	FailedTasks    int        `json:"failed_tasks" yaml:"failed_tasks"`
	Status         SyncStatus `json:"status" yaml:"status"`
	CurrentTask    string     `json:"current_task" yaml:"current_task"`
	StartedAt      time.Time  `json:"started_at" yaml:"started_at"`
	UpdatedAt      time.Time  `json:"updated_at" yaml:"updated_at"`
}

// ProgressPercent returns round(100 * completed / total), or 0 when the job
// has no tasks. The value is taken from the snapshot as-is: it is neither
// clamped nor smoothed across polls.
func (j SyncJob) ProgressPercent() int {
	return ProgressPercent(j.CompletedTasks, j.TotalTasks)
}

// ProgressPercent computes a rounded completion percentage.
func ProgressPercent(completed, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}

// SyncStart is the server's answer to a start request.
type SyncStart struct {
	SyncID       string     `json:"sync_id" yaml:"sync_id"`
	RepositoryID int64      `json:"repository_id" yaml:"repository_id"`
	TotalTasks   int        `json:"total_tasks" yaml:"total_tasks"`
	Status       SyncStatus `json:"status" yaml:"status"`
}

// InitialJob builds the snapshot shown before the first status poll lands.
func (s SyncStart) InitialJob(now time.Time) SyncJob {
	return SyncJob{
		SyncID:       s.SyncID,
		RepositoryID: s.RepositoryID,
		TotalTasks:   s.TotalTasks,
		Status:       s.Status,
		StartedAt:    now,
		UpdatedAt:    now,
	}
}
