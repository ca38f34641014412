package task

import "errors"

var (
	// ErrAlreadyTracking is returned by StartTracking when the task already
	// has an open tracking interval.
	ErrAlreadyTracking = errors.New("time tracking is already running")
	// ErrNotTracking is returned by StopTracking when the task has no open
	// tracking interval, or when the stored state is inconsistent.
	ErrNotTracking = errors.New("time tracking is not running")
	// ErrHierarchyCycle is returned when attaching a subtask would make a
	// task its own ancestor.
	ErrHierarchyCycle = errors.New("task hierarchy cycle")
	// ErrConcurrentUpdate is returned when a conditional write lost a race
	// against another writer. Callers may retry.
	ErrConcurrentUpdate = errors.New("concurrent update")

	ErrInvalidStatus   = errors.New("invalid task status")
	ErrInvalidPriority = errors.New("invalid task priority")
)
