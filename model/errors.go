package model

import "errors"

var (
	// ErrWorkerBusy is returned when a task frame is addressed to a worker
	// that already has one in flight. The pool rejects such dispatches before
	// they ever reach the worker, so observing this error indicates a caller
	// contract violation.
	ErrWorkerBusy = errors.New("worker busy")

	// ErrPoolClosed is returned by Submit after Shutdown has begun.
	ErrPoolClosed = errors.New("pool closed")

	// ErrUnknownOperation is returned when an operation is not part of the
	// registered set.
	ErrUnknownOperation = errors.New("unknown operation")
)
