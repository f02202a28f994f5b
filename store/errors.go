package store

import "errors"

var (
	// ErrWorkerTypeNotFound indicates the worker type does not exist.
	ErrWorkerTypeNotFound = errors.New("worker type not found")

	// ErrWorkerNotFound indicates the worker does not exist.
	ErrWorkerNotFound = errors.New("worker not found")

	// ErrWorkerExists indicates a worker row with the same keys already
	// exists.
	ErrWorkerExists = errors.New("worker already exists")
)
