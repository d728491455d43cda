// Package task keeps the task monitor and watched repository boards in sync
// with the server and validates user actions against a task's last known
// status before sending them.
//
// The client never changes a task's status itself. Every action, accepted
// or rejected, is followed by a refresh so the next snapshot carries the
// server's view.
package task
