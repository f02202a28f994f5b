package store

import (
	"context"

	fleet "github.com/fleetworks/fleet-provider"
)

// WorkerTypeStore provides persistence for worker-type records.
// Implementations must be safe for concurrent access.
type WorkerTypeStore interface {
	// Get returns the worker type with the given name.
	// Returns ErrWorkerTypeNotFound if it does not exist.
	Get(ctx context.Context, name fleet.WorkerTypeName) (fleet.WorkerType, error)

	// Put creates or replaces a worker-type record. The fleet manager owns
	// worker-type lifecycle; the provider itself only mutates records
	// through Modify.
	Put(ctx context.Context, workerType fleet.WorkerType) error

	// Modify applies fn to the worker type under an atomic read-modify-write:
	// no concurrent Modify for the same record can interleave between the
	// read and the write. If fn returns an error the record is left
	// untouched and the error is returned.
	// Returns ErrWorkerTypeNotFound if the record does not exist.
	Modify(ctx context.Context, name fleet.WorkerTypeName, fn func(*fleet.WorkerType) error) (fleet.WorkerType, error)

	// List returns every worker-type record.
	List(ctx context.Context) ([]fleet.WorkerType, error)
}

// WorkerStore provides persistence for worker records.
// Implementations must be safe for concurrent access.
type WorkerStore interface {
	// Create inserts a new worker row.
	// Returns ErrWorkerExists if the (workerType, workerID) pair is taken.
	Create(ctx context.Context, worker fleet.Worker) (fleet.Worker, error)

	// Get returns the worker with the given keys.
	// Returns ErrWorkerNotFound if it does not exist; callers that treat a
	// miss as an expected branch check for that sentinel.
	Get(ctx context.Context, workerType fleet.WorkerTypeName, workerID string) (fleet.Worker, error)

	// Modify applies fn to the worker under an atomic read-modify-write.
	// Returns ErrWorkerNotFound if the record does not exist.
	Modify(ctx context.Context, workerType fleet.WorkerTypeName, workerID string, fn func(*fleet.Worker) error) (fleet.Worker, error)

	// Delete removes a worker row. Deleting a missing row returns
	// ErrWorkerNotFound.
	Delete(ctx context.Context, workerType fleet.WorkerTypeName, workerID string) error

	// ListByWorkerType returns every worker belonging to a worker type.
	// Returns an empty slice if none exist.
	ListByWorkerType(ctx context.Context, workerType fleet.WorkerTypeName) ([]fleet.Worker, error)
}
