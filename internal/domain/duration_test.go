package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTaskDuration(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	ptr := func(ts time.Time) *time.Time { return &ts }

	tests := []struct {
		name    string
		task    Task
		now     time.Time
		want    time.Duration
		wantOK  bool
		wantStr string
	}{
		{
			name:    "running task measured against now",
			task:    Task{StartedAt: ptr(t0)},
			now:     t0.Add(65 * time.Second),
			want:    65 * time.Second,
			wantOK:  true,
			wantStr: "1 minute 5 seconds",
		},
		{
			name:    "completed task measured against completed_at",
			task:    Task{StartedAt: ptr(t0), CompletedAt: ptr(t0.Add(2*time.Hour + 3*time.Minute))},
			now:     t0.Add(5 * time.Hour),
			want:    2*time.Hour + 3*time.Minute,
			wantOK:  true,
			wantStr: "2 hours 3 minutes",
		},
		{
			name:    "completed_at in the future is capped at now",
			task:    Task{StartedAt: ptr(t0), CompletedAt: ptr(t0.Add(time.Hour))},
			now:     t0.Add(10 * time.Second),
			want:    10 * time.Second,
			wantOK:  true,
			wantStr: "10 seconds",
		},
		{
			name:   "missing started_at",
			task:   Task{CompletedAt: ptr(t0)},
			now:    t0,
			wantOK: false,
		},
		{
			name:   "completed before started",
			task:   Task{StartedAt: ptr(t0), CompletedAt: ptr(t0.Add(-time.Minute))},
			now:    t0.Add(time.Hour),
			wantOK: false,
		},
		{
			name:   "clock skew puts now before started_at",
			task:   Task{StartedAt: ptr(t0)},
			now:    t0.Add(-3 * time.Second),
			wantOK: false,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := TaskDuration(tc.task, tc.now)
			assert.Equal(t, tc.wantOK, ok)
			if !tc.wantOK {
				assert.Zero(t, got)
				return
			}
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.wantStr, FormatDuration(got))
		})
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0 seconds", FormatDuration(0))
	assert.Equal(t, "0 seconds", FormatDuration(400*time.Millisecond))
	assert.Equal(t, "1 second", FormatDuration(time.Second))
	assert.Equal(t, "1 hour", FormatDuration(time.Hour))
	assert.Equal(t, "1 hour 1 minute 1 second", FormatDuration(time.Hour+time.Minute+time.Second))
	assert.Equal(t, "3 hours 59 seconds", FormatDuration(3*time.Hour+59*time.Second))
}
