package scheduler

import "errors"

const namespace = "scheduler"

var (
	// ErrAlreadyStarted is returned by Start when called more than once.
	ErrAlreadyStarted = errors.New(namespace + ": scheduler already started")

	// ErrClosed is returned by Post* once the scheduler has begun shutting
	// down.
	ErrClosed = errors.New(namespace + ": scheduler is closed")

	// ErrNilTask is returned by Post* when passed a nil task.
	ErrNilTask = errors.New(namespace + ": nil task")

	// ErrNilCallback is returned by PostOneShot when passed a nil callback.
	ErrNilCallback = errors.New(namespace + ": nil callback")
)
