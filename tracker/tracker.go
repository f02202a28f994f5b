// Package tracker advances the asynchronous cloud operations registered for
// a worker type. Operations are polled, never waited on: a pending operation
// stays in the tracked list for the next control-loop tick, a terminal one
// is reported (if it carried errors) and forgotten.
package tracker

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	fleet "github.com/fleetworks/fleet-provider"
	"github.com/fleetworks/fleet-provider/cloud"
	"github.com/fleetworks/fleet-provider/store"
)

// Config holds the dependencies for a Tracker.
type Config struct {
	// Operations is the cloud operation-status capability. Required.
	Operations cloud.Operations

	// WorkerTypes persists the tracked-operation list. Required.
	WorkerTypes store.WorkerTypeStore

	// Reporter receives operation-error events. Required.
	Reporter fleet.ErrorReporter

	// Logger is used for diagnostic output. Defaults to a no-op logger.
	Logger *zerolog.Logger
}

// Tracker polls tracked operations to their terminal state.
type Tracker struct {
	operations  cloud.Operations
	workerTypes store.WorkerTypeStore
	reporter    fleet.ErrorReporter
	logger      zerolog.Logger
}

// New creates a Tracker from config.
func New(config Config) (*Tracker, error) {
	if config.Operations == nil {
		return nil, errors.New("operations capability is required")
	}
	if config.WorkerTypes == nil {
		return nil, errors.New("worker type store is required")
	}
	if config.Reporter == nil {
		return nil, errors.New("error reporter is required")
	}

	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = *config.Logger
	}

	return &Tracker{
		operations:  config.Operations,
		workerTypes: config.WorkerTypes,
		reporter:    config.Reporter,
		logger:      logger,
	}, nil
}

// HandleOperations polls every operation tracked for workerType and persists
// a new tracked list with all terminal operations removed. An operation the
// cloud no longer knows about is dropped silently. A status fetch failure
// aborts the pass; the list keeps its last persisted state and the next tick
// re-derives from there.
//
// On success workerType is updated in place with the persisted record.
func (t *Tracker) HandleOperations(ctx context.Context, workerType *fleet.WorkerType) error {
	tracked := workerType.ProviderData.TrackedOperations
	if len(tracked) == 0 {
		return nil
	}

	resolved := make(map[string]bool, len(tracked))

	for _, op := range tracked {
		status, err := t.fetch(ctx, op)
		if cloud.IsNotFound(err) {
			t.logger.Debug().
				Str("worker_type", string(workerType.Name)).
				Str("operation", op.Name).
				Msg("tracked operation no longer exists, dropping")
			resolved[operationKey(op)] = true
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to fetch operation %s: %w", op.Name, err)
		}

		if status.Status != cloud.OperationDone {
			continue
		}

		for _, opErr := range status.Errors {
			t.reporter.ReportError(ctx, fleet.ErrorReport{
				WorkerType:  workerType.Name,
				Kind:        fleet.ErrorKindOperation,
				Title:       "Operation Error",
				Description: opErr.Message,
				Extra: map[string]string{
					"code":      opErr.Code,
					"operation": op.Name,
					"region":    op.Region,
				},
			})
		}

		// Best-effort cleanup of the cloud's operation registry.
		if err := t.delete(ctx, op); err != nil {
			t.logger.Warn().
				Err(err).
				Str("operation", op.Name).
				Msg("failed to delete completed operation")
		}

		resolved[operationKey(op)] = true
	}

	if len(resolved) == 0 {
		return nil
	}

	updated, err := t.workerTypes.Modify(ctx, workerType.Name, func(wt *fleet.WorkerType) error {
		kept := make([]fleet.Operation, 0, len(wt.ProviderData.TrackedOperations))
		for _, op := range wt.ProviderData.TrackedOperations {
			if !resolved[operationKey(op)] {
				kept = append(kept, op)
			}
		}
		wt.ProviderData.TrackedOperations = kept
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update tracked operations: %w", err)
	}

	*workerType = updated
	return nil
}

func (t *Tracker) fetch(ctx context.Context, op fleet.Operation) (*cloud.Operation, error) {
	if op.Region == "" {
		return t.operations.GetGlobalOperation(ctx, op.Name)
	}
	return t.operations.GetRegionOperation(ctx, op.Region, op.Name)
}

func (t *Tracker) delete(ctx context.Context, op fleet.Operation) error {
	if op.Region == "" {
		return t.operations.DeleteGlobalOperation(ctx, op.Name)
	}
	return t.operations.DeleteRegionOperation(ctx, op.Region, op.Name)
}

func operationKey(op fleet.Operation) string {
	return op.Region + "/" + op.Name
}
