// Package runner drives the provider on a recurring cadence: one tick per
// worker type per pass, worker types processed concurrently, ticks for the
// same worker type never overlapping.
package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	fleet "github.com/fleetworks/fleet-provider"
	"github.com/fleetworks/fleet-provider/metrics"
	"github.com/fleetworks/fleet-provider/store"
)

// DefaultTickInterval is the pass cadence when Config leaves it zero.
const DefaultTickInterval = 30 * time.Second

// Config holds the dependencies of a Runner.
type Config struct {
	// Provider is the cloud backend being driven. Required.
	Provider fleet.Provider

	// WorkerTypes enumerates the pools each pass covers. Required.
	WorkerTypes store.WorkerTypeStore

	// TickInterval is the delay between passes. Defaults to
	// DefaultTickInterval.
	TickInterval time.Duration

	// Collector records per-tick metrics. Optional.
	Collector *metrics.Collector

	// Logger is used for diagnostic output. Defaults to a no-op logger.
	Logger *zerolog.Logger
}

// Runner is the recurring control loop.
type Runner struct {
	provider     fleet.Provider
	workerTypes  store.WorkerTypeStore
	tickInterval time.Duration
	collector    *metrics.Collector
	logger       zerolog.Logger

	mu     sync.Mutex
	demand map[fleet.WorkerTypeName]int
}

// New creates a Runner from config.
func New(config Config) (*Runner, error) {
	if config.Provider == nil {
		return nil, errors.New("provider is required")
	}
	if config.WorkerTypes == nil {
		return nil, errors.New("worker type store is required")
	}

	tickInterval := config.TickInterval
	if tickInterval == 0 {
		tickInterval = DefaultTickInterval
	}

	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = *config.Logger
	}

	return &Runner{
		provider:     config.Provider,
		workerTypes:  config.WorkerTypes,
		tickInterval: tickInterval,
		collector:    config.Collector,
		logger:       logger,
		demand:       make(map[fleet.WorkerTypeName]int),
	}, nil
}

// RequestCapacity asks for count additional instances for a worker type. The
// request is satisfied on the worker type's next tick, keeping all work for
// one worker type on its own serialized timeline.
func (r *Runner) RequestCapacity(name fleet.WorkerTypeName, count int) {
	if count <= 0 {
		return
	}
	r.mu.Lock()
	r.demand[name] += count
	r.mu.Unlock()
}

// Run executes passes until ctx is cancelled. The first pass starts
// immediately. A tick that fails only skips the rest of that worker type's
// tick; other worker types and later passes are unaffected.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	for {
		if err := r.pass(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// pass runs one full control-loop pass: Prepare, one concurrent tick per
// worker type, Cleanup.
func (r *Runner) pass(ctx context.Context) error {
	if err := r.provider.Prepare(ctx); err != nil {
		return err
	}

	workerTypes, err := r.workerTypes.List(ctx)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for i := range workerTypes {
		workerType := workerTypes[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.tick(ctx, &workerType)
		}()
	}
	wg.Wait()

	return r.provider.Cleanup(ctx)
}

// tick processes one worker type: pending capacity requests first, then one
// tracking pass over its in-flight operations.
func (r *Runner) tick(ctx context.Context, workerType *fleet.WorkerType) {
	start := time.Now()

	needed := r.takeDemand(workerType.Name)
	for i := 0; i < needed; i++ {
		if err := r.provider.Provision(ctx, workerType); err != nil {
			r.logger.Error().
				Err(err).
				Str("worker_type", string(workerType.Name)).
				Msg("provisioning failed")
			return
		}
		if r.collector != nil {
			r.collector.IncInstancesProvisioned(string(workerType.Name))
		}
	}

	if err := r.provider.HandleOperations(ctx, workerType); err != nil {
		r.logger.Error().
			Err(err).
			Str("worker_type", string(workerType.Name)).
			Msg("operation tracking failed")
		return
	}

	if r.collector != nil {
		r.collector.SetTrackedOperations(string(workerType.Name), len(workerType.ProviderData.TrackedOperations))
		r.collector.ObserveTickDuration(string(workerType.Name), time.Since(start).Seconds())
	}
}

// takeDemand drains the pending capacity count for a worker type.
func (r *Runner) takeDemand(name fleet.WorkerTypeName) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := r.demand[name]
	delete(r.demand, name)
	return count
}
