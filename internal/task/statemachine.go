package task

import (
	"fmt"

	"github.com/phrazzld/taskwatch/internal/domain"
)

// Action is a user-issued request against a task.
type Action string

// Supported actions
const (
	ActionRun        Action = "run"
	ActionEnqueue    Action = "enqueue"
	ActionCancel     Action = "cancel"
	ActionRetry      Action = "retry"
	ActionRegenerate Action = "regenerate"
	ActionDelete     Action = "delete"
)

// Actions lists every action in display order.
var Actions = []Action{
	ActionRun,
	ActionEnqueue,
	ActionCancel,
	ActionRetry,
	ActionRegenerate,
	ActionDelete,
}

// ParseAction converts a raw action name into an Action.
func ParseAction(raw string) (Action, error) {
	for _, a := range Actions {
		if string(a) == raw {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: unknown action %q", domain.ErrValidation, raw)
}

// Expectation describes what the server is expected to do once it accepts
// an action. It is informational only: the next poll carries the truth.
type Expectation struct {
	// Statuses the task is expected to move into. Empty when the task is
	// expected to disappear.
	Statuses []domain.TaskStatus

	// Removed is true when the action deletes the task.
	Removed bool
}

type rule struct {
	from   []domain.TaskStatus
	expect Expectation
}

var terminalStatuses = []domain.TaskStatus{
	domain.TaskStatusSucceeded,
	domain.TaskStatusCompleted,
	domain.TaskStatusFailed,
	domain.TaskStatusCanceled,
}

var rules = map[Action]rule{
	ActionRun: {
		from:   []domain.TaskStatus{domain.TaskStatusPending},
		expect: Expectation{Statuses: []domain.TaskStatus{domain.TaskStatusQueued, domain.TaskStatusRunning}},
	},
	ActionEnqueue: {
		from:   []domain.TaskStatus{domain.TaskStatusPending},
		expect: Expectation{Statuses: []domain.TaskStatus{domain.TaskStatusQueued}},
	},
	ActionCancel: {
		from:   []domain.TaskStatus{domain.TaskStatusRunning, domain.TaskStatusQueued},
		expect: Expectation{Statuses: []domain.TaskStatus{domain.TaskStatusCanceled}},
	},
	ActionRetry: {
		from: []domain.TaskStatus{
			domain.TaskStatusFailed,
			domain.TaskStatusSucceeded,
			domain.TaskStatusCompleted,
		},
		expect: Expectation{Statuses: []domain.TaskStatus{domain.TaskStatusPending, domain.TaskStatusQueued}},
	},
	ActionRegenerate: {
		from: []domain.TaskStatus{
			domain.TaskStatusFailed,
			domain.TaskStatusSucceeded,
			domain.TaskStatusCompleted,
		},
		expect: Expectation{Statuses: []domain.TaskStatus{domain.TaskStatusPending, domain.TaskStatusQueued}},
	},
	ActionDelete: {
		from:   terminalStatuses,
		expect: Expectation{Removed: true},
	},
}

// Allowed reports whether action may be requested for a task whose last
// known status is status. Unknown statuses reject every action.
func Allowed(status domain.TaskStatus, action Action) bool {
	r, ok := rules[action]
	if !ok || !status.Valid() {
		return false
	}
	for _, s := range r.from {
		if s == status {
			return true
		}
	}
	return false
}

// Validate checks action against status and returns what the server is
// expected to do. A rejected action returns an error wrapping
// domain.ErrActionNotAllowed.
func Validate(status domain.TaskStatus, action Action) (Expectation, error) {
	if _, ok := rules[action]; !ok {
		return Expectation{}, fmt.Errorf("%w: unknown action %q", domain.ErrActionNotAllowed, action)
	}
	if !Allowed(status, action) {
		return Expectation{}, fmt.Errorf("%w: cannot %s a task in status %q",
			domain.ErrActionNotAllowed, action, status)
	}
	r := rules[action]
	exp := Expectation{Removed: r.expect.Removed}
	exp.Statuses = append(exp.Statuses, r.expect.Statuses...)
	return exp, nil
}

// AvailableActions returns the actions permitted for status, in display order.
func AvailableActions(status domain.TaskStatus) []Action {
	out := make([]Action, 0, len(Actions))
	for _, a := range Actions {
		if Allowed(status, a) {
			out = append(out, a)
		}
	}
	return out
}
