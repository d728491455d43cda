package domain

import (
	"fmt"
	"strings"
	"time"
)

// TaskDuration returns how long a task has been (or was) running.
// The end of the interval is min(now, completed_at). The second return value
// is false when the duration is unavailable: started_at is missing, or the
// computed value is negative because of clock skew or a malformed timestamp.
func TaskDuration(t Task, now time.Time) (time.Duration, bool) {
	if t.StartedAt == nil || t.StartedAt.IsZero() {
		return 0, false
	}
	end := now
	if t.CompletedAt != nil && !t.CompletedAt.IsZero() && t.CompletedAt.Before(now) {
		end = *t.CompletedAt
	}
	d := end.Sub(*t.StartedAt)
	if d < 0 {
		return 0, false
	}
	return d, true
}

// FormatDuration renders d in whole seconds as e.g. "1 minute 5 seconds".
// Zero components are omitted; a duration under one second is "0 seconds".
func FormatDuration(d time.Duration) string {
	total := int64(d / time.Second)
	if total <= 0 {
		return "0 seconds"
	}
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	parts := make([]string, 0, 3)
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 {
		parts = append(parts, plural(seconds, "second"))
	}
	return strings.Join(parts, " ")
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
