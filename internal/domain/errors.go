package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when input fails local validation.
	// This is always wrapped with a more specific error message and is
	// raised before any network call is made.
	ErrValidation = errors.New("validation failed")

	// ErrActionNotAllowed is returned when a task action is not permitted
	// for the task's last known status.
	ErrActionNotAllowed = errors.New("action not allowed")

	// ErrTaskNotFound is returned when a task is not present in any
	// snapshot the client holds.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidStatus is returned when a status string is not recognised.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrEmptyRepository is returned when an operation requires a repository
	// selection and none was given.
	ErrEmptyRepository = errors.New("repository is required")

	// ErrInvalidTargetURL is returned when a sync target is not an absolute
	// http or https URL.
	ErrInvalidTargetURL = errors.New("invalid target server URL")
)
