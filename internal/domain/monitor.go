package domain

import (
	"sort"
	"time"
)

// QueueStatus holds the queue-level counters reported by the server.
type QueueStatus struct {
	QueueLength    int `json:"queue_length" yaml:"queue_length"`
	PriorityLength int `json:"priority_length" yaml:"priority_length"`
	ActiveWorkers  int `json:"active_workers" yaml:"active_workers"`
	ActiveRepos    int `json:"active_repos" yaml:"active_repos"`
}

// MonitorSnapshot is the aggregate returned by one monitor poll.
type MonitorSnapshot struct {
	QueueStatus QueueStatus `json:"queue_status" yaml:"queue_status"`
	ActiveTasks []Task      `json:"active_tasks" yaml:"active_tasks"`
	RecentTasks []Task      `json:"recent_tasks" yaml:"recent_tasks"`
}

// Find looks the task up in both the active and the recent lists.
func (m MonitorSnapshot) Find(id int64) (Task, bool) {
	if t, ok := findTask(m.ActiveTasks, id); ok {
		return t, true
	}
	return findTask(m.RecentTasks, id)
}

// Active returns the tasks whose status is running or queued, in server order.
func (m MonitorSnapshot) Active() []Task {
	out := make([]Task, 0, len(m.ActiveTasks))
	for _, t := range m.ActiveTasks {
		if t.Status.IsActive() {
			out = append(out, t)
		}
	}
	return out
}

// Recent returns at most limit terminal tasks, most recently finished first.
// A non-positive limit returns every terminal task.
func (m MonitorSnapshot) Recent(limit int) []Task {
	out := make([]Task, 0, len(m.RecentTasks))
	for _, t := range m.RecentTasks {
		if t.Status.IsTerminal() {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return finishedAt(out[i]).After(finishedAt(out[j]))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func finishedAt(t Task) time.Time {
	if t.CompletedAt != nil {
		return *t.CompletedAt
	}
	return t.UpdatedAt
}
