package replication

import "github.com/phrazzld/taskwatch/internal/domain"

// Fixed lines appended when a run finishes.
const (
	DefaultCompletedLine = "Sync completed"
	DefaultFailedLine    = "Sync failed"
)

// View is the rendered state of the current replication run.
type View struct {
	Job      domain.SyncJob `json:"job"      yaml:"job"`
	Progress int            `json:"progress" yaml:"progress"`
	Logs     []string       `json:"logs"     yaml:"logs"`
	Done     bool           `json:"done"     yaml:"done"`

	// lastTask is the most recent non-empty current_task that was logged.
	lastTask string

	// lastStatus is the status of the previous poll; the start response
	// does not count.
	lastStatus domain.SyncStatus
}

// Seed builds the view shown between the start response and the first poll.
func Seed(job domain.SyncJob) View {
	return View{
		Job:      job,
		Progress: job.ProgressPercent(),
		Logs:     []string{},
		Done:     job.Status.IsTerminal(),
	}
}

// Transition holds the fixed terminal lines used by Advance.
type Transition struct {
	CompletedLine string
	FailedLine    string
}

// DefaultTransition uses DefaultCompletedLine and DefaultFailedLine.
var DefaultTransition = Transition{
	CompletedLine: DefaultCompletedLine,
	FailedLine:    DefaultFailedLine,
}

// Advance applies a status snapshot to prev using DefaultTransition.
func Advance(prev View, next domain.SyncJob) View {
	return DefaultTransition.Advance(prev, next)
}

// Advance applies a status snapshot to prev and returns the new view.
// prev is not modified.
//
// A log line is appended when current_task is non-empty and differs from
// the last logged value. The terminal line is appended once, on the poll
// where the status first becomes completed or failed. Progress is taken
// from the snapshot as-is.
func (tr Transition) Advance(prev View, next domain.SyncJob) View {
	logs := make([]string, len(prev.Logs), len(prev.Logs)+2)
	copy(logs, prev.Logs)

	view := View{
		Job:        next,
		Progress:   next.ProgressPercent(),
		lastTask:   prev.lastTask,
		lastStatus: next.Status,
	}

	if next.CurrentTask != "" && next.CurrentTask != view.lastTask {
		logs = append(logs, next.CurrentTask)
		view.lastTask = next.CurrentTask
	}

	if next.Status != prev.lastStatus && !prev.lastStatus.IsTerminal() {
		switch next.Status {
		case domain.SyncStatusCompleted:
			logs = append(logs, tr.CompletedLine)
		case domain.SyncStatusFailed:
			logs = append(logs, tr.FailedLine)
		}
	}

	view.Logs = logs
	view.Done = next.Status.IsTerminal()
	return view
}

func (v View) clone() View {
	v.Logs = append([]string(nil), v.Logs...)
	if v.Logs == nil {
		v.Logs = []string{}
	}
	return v
}
