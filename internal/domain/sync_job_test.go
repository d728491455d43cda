package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressPercent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		completed int
		total     int
		want      int
	}{
		{"no tasks", 0, 0, 0},
		{"no tasks with stray count", 5, 0, 0},
		{"none done", 0, 10, 0},
		{"rounds down", 1, 3, 33},
		{"rounds up", 2, 3, 67},
		{"half rounds away from zero", 1, 8, 13},
		{"done", 10, 10, 100},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			job := SyncJob{CompletedTasks: tc.completed, TotalTasks: tc.total}
			assert.Equal(t, tc.want, job.ProgressPercent())
		})
	}
}

func TestProgressPercent_MonotoneForNonDecreasingCompletion(t *testing.T) {
	t.Parallel()

	prev := -1
	for completed := 0; completed <= 37; completed++ {
		got := ProgressPercent(completed, 37)
		assert.GreaterOrEqual(t, got, prev, "completed=%d", completed)
		prev = got
	}
	assert.Equal(t, 100, prev)
}

func TestSyncStatus_IsTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, SyncStatusUnknown.IsTerminal())
	assert.False(t, SyncStatusRunning.IsTerminal())
	assert.True(t, SyncStatusCompleted.IsTerminal())
	assert.True(t, SyncStatusFailed.IsTerminal())
}

func TestSyncStart_InitialJob(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	start := SyncStart{SyncID: "abc", RepositoryID: 4, TotalTasks: 10, Status: SyncStatusRunning}

	job := start.InitialJob(now)

	assert.Equal(t, "abc", job.SyncID)
	assert.Equal(t, 10, job.TotalTasks)
	assert.Zero(t, job.CompletedTasks)
	assert.Equal(t, SyncStatusRunning, job.Status)
	assert.Equal(t, now, job.StartedAt)
}
