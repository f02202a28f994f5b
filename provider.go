package fleet

import "context"

// Provider is the lifecycle surface a cloud backend exposes to the fleet
// manager. The outer control loop calls Initiate once per activation,
// Provision once per tick per worker type that needs capacity, and
// HandleOperations periodically to advance in-flight cloud operations.
// Concrete providers implement the whole set; none of the methods may assume
// any other is in progress concurrently for the same worker type.
type Provider interface {
	// Initiate idempotently brings the provider's own cloud prerequisites
	// (bootstrap service account, role, policy bindings) to desired state.
	Initiate(ctx context.Context) error

	// Prepare runs once per control-loop pass, before any worker type is
	// processed.
	Prepare(ctx context.Context) error

	// Provision requests one additional instance for the worker type and
	// registers the resulting cloud operation for tracking.
	Provision(ctx context.Context, workerType *WorkerType) error

	// HandleOperations polls every tracked operation for the worker type
	// once, dropping those observed in a terminal state.
	HandleOperations(ctx context.Context, workerType *WorkerType) error

	// VerifyIdentity checks an instance identity token and, on success,
	// issues a scoped temporary credential for the worker.
	VerifyIdentity(ctx context.Context, token string, workerType *WorkerType) (Credential, error)

	// ListWorkers returns the instances currently backing the worker type.
	ListWorkers(ctx context.Context, workerType *WorkerType) ([]WorkerInfo, error)

	// QueryWorkerState reports the instance state behind a worker record.
	QueryWorkerState(ctx context.Context, worker *Worker) (WorkerState, error)

	// WorkerInfo returns provider-side detail for a single worker.
	WorkerInfo(ctx context.Context, worker *Worker) (WorkerInfo, error)

	// TerminateWorker tears down a single instance and its worker record.
	TerminateWorker(ctx context.Context, worker *Worker) error

	// TerminateWorkerType tears down every instance backing a worker type.
	TerminateWorkerType(ctx context.Context, workerType *WorkerType) error

	// Terminate tears down everything this provider manages, across all
	// worker types. Called when the provider is being removed.
	Terminate(ctx context.Context) error

	// Cleanup runs once per control-loop pass, after every worker type has
	// been processed.
	Cleanup(ctx context.Context) error
}
