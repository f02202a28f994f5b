package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fleet "github.com/fleetworks/fleet-provider"
	"github.com/fleetworks/fleet-provider/store/memory"
)

func newTestRunner(t *testing.T, provider *fleet.MockProvider, names ...fleet.WorkerTypeName) (*Runner, *memory.WorkerTypes) {
	t.Helper()

	workerTypes := memory.NewWorkerTypes()
	for _, name := range names {
		require.NoError(t, workerTypes.Put(context.Background(), fleet.WorkerType{Name: name}))
	}

	r, err := New(Config{
		Provider:     provider,
		WorkerTypes:  workerTypes,
		TickInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)

	return r, workerTypes
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	_, err = New(Config{Provider: fleet.NewMockProvider()})
	require.Error(t, err)
}

func TestRun_TicksEveryWorkerTypePerPass(t *testing.T) {
	provider := fleet.NewMockProvider()

	passes := make(chan struct{}, 16)
	provider.CleanupFunc = func(ctx context.Context) error {
		passes <- struct{}{}
		return nil
	}

	r, _ := newTestRunner(t, provider, "wt1", "wt2")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	// Wait for at least two full passes.
	for i := 0; i < 2; i++ {
		select {
		case <-passes:
		case <-time.After(time.Second):
			t.Fatal("control loop did not complete a pass")
		}
	}
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	assert.GreaterOrEqual(t, provider.PrepareCalls, 2)
	assert.GreaterOrEqual(t, provider.CleanupCalls, 2)
	assert.Contains(t, provider.HandleOperationsCalls, fleet.WorkerTypeName("wt1"))
	assert.Contains(t, provider.HandleOperationsCalls, fleet.WorkerTypeName("wt2"))
	// No capacity was requested, so no provisioning happened.
	assert.Empty(t, provider.ProvisionCalls)
}

func TestRun_SatisfiesRequestedCapacityOnNextTick(t *testing.T) {
	provider := fleet.NewMockProvider()

	passes := make(chan struct{}, 16)
	provider.CleanupFunc = func(ctx context.Context) error {
		passes <- struct{}{}
		return nil
	}

	r, _ := newTestRunner(t, provider, "wt1")
	r.RequestCapacity("wt1", 3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case <-passes:
		case <-time.After(time.Second):
			t.Fatal("control loop did not complete a pass")
		}
	}
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	// The demand was drained by exactly one tick.
	assert.Equal(t, []fleet.WorkerTypeName{"wt1", "wt1", "wt1"}, provider.ProvisionCalls)
}

func TestRun_FailedTickDoesNotStopOtherWorkerTypes(t *testing.T) {
	provider := fleet.NewMockProvider()
	provider.HandleOperationsFunc = func(ctx context.Context, workerType *fleet.WorkerType) error {
		if workerType.Name == "wt1" {
			return assertableError("status fetch failed")
		}
		return nil
	}

	passes := make(chan struct{}, 16)
	provider.CleanupFunc = func(ctx context.Context) error {
		passes <- struct{}{}
		return nil
	}

	r, _ := newTestRunner(t, provider, "wt1", "wt2")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case <-passes:
	case <-time.After(time.Second):
		t.Fatal("control loop did not complete a pass")
	}
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	assert.Contains(t, provider.HandleOperationsCalls, fleet.WorkerTypeName("wt2"))
}

func TestRun_PrepareFailureAbortsLoop(t *testing.T) {
	provider := fleet.NewMockProvider()
	provider.PrepareFunc = func(ctx context.Context) error {
		return assertableError("prepare failed")
	}

	r, _ := newTestRunner(t, provider, "wt1")

	err := r.Run(context.Background())

	require.Error(t, err)
	assert.Empty(t, provider.HandleOperationsCalls)
}

func TestRequestCapacity_IgnoresNonPositiveCounts(t *testing.T) {
	provider := fleet.NewMockProvider()
	r, _ := newTestRunner(t, provider, "wt1")

	r.RequestCapacity("wt1", 0)
	r.RequestCapacity("wt1", -2)

	assert.Zero(t, r.takeDemand("wt1"))
}

type assertableError string

func (e assertableError) Error() string { return string(e) }
