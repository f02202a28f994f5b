// Package reconcile implements an optimistic read-modify-set protocol for
// externally owned resources such as IAM service accounts, roles, and
// policy bindings. The resource lives at the cloud provider; no local copy
// is kept, so every reconciliation round-trips to the source of truth.
package reconcile

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fleetworks/fleet-provider/cloud"
)

const (
	// DefaultWriteAttempts is the number of write attempts before a
	// conflict is escalated to the caller.
	DefaultWriteAttempts = 5

	// DefaultInitialBackoff is the delay before the first retry. The delay
	// doubles on every subsequent attempt.
	DefaultInitialBackoff = 100 * time.Millisecond
)

// Resource describes one externally owned resource in terms of the four
// primitives the reconciler needs. Set and Modify may be invoked more than
// once for the same logical change when a concurrent writer causes a
// conflict, so both must converge under repeated application (write the
// full desired value, never append to it).
type Resource[T any] struct {
	// Read fetches the current state. A cloud.ErrNotFound result selects
	// the Set branch; any other error aborts the reconciliation.
	Read func(ctx context.Context) (T, error)

	// Compare reports whether current state already satisfies desired
	// state. When it returns true the round is a no-op.
	Compare func(current T) bool

	// Modify applies a partial update to bring current state to desired
	// state.
	Modify func(ctx context.Context, current T) error

	// Set creates the resource from scratch when Read found nothing.
	Set func(ctx context.Context) error
}

type settings struct {
	writeAttempts  int
	initialBackoff time.Duration
}

// Option customizes a reconciliation run.
type Option func(*settings)

// WithWriteAttempts overrides the write-attempt budget.
func WithWriteAttempts(attempts int) Option {
	return func(s *settings) {
		if attempts > 0 {
			s.writeAttempts = attempts
		}
	}
}

// WithInitialBackoff overrides the delay before the first retry.
func WithInitialBackoff(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.initialBackoff = d
		}
	}
}

// Reconcile drives resource toward its desired state: read the current
// state, create it if absent, patch it if present but unsatisfactory,
// otherwise do nothing. A write that fails with a concurrent-modification
// conflict restarts the round from the read, backing off exponentially,
// until the attempt budget is exhausted. Every other failure propagates
// immediately.
func Reconcile[T any](ctx context.Context, resource Resource[T], opts ...Option) error {
	s := settings{
		writeAttempts:  DefaultWriteAttempts,
		initialBackoff: DefaultInitialBackoff,
	}
	for _, opt := range opts {
		opt(&s)
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = s.initialBackoff
	expBackoff.Multiplier = 2
	expBackoff.RandomizationFactor = 0
	expBackoff.MaxInterval = 1 << 20 * time.Millisecond
	expBackoff.MaxElapsedTime = 0

	round := func() error {
		current, err := resource.Read(ctx)

		switch {
		case cloud.IsNotFound(err):
			err = resource.Set(ctx)
		case err != nil:
			// Read failures other than not-found are never retried.
			return backoff.Permanent(err)
		case resource.Compare(current):
			return nil
		default:
			err = resource.Modify(ctx, current)
		}

		if err == nil {
			return nil
		}
		if cloud.IsConflict(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, uint64(s.writeAttempts-1)), ctx)
	return backoff.Retry(round, policy)
}
