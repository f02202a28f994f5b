package store

import (
	"context"
	"sync"

	fleet "github.com/fleetworks/fleet-provider"
)

// MockWorkerTypeStore is a configurable mock implementation of
// WorkerTypeStore for use in tests. It allows setting up expected return
// values, tracking method calls, and injecting errors for testing error
// paths.
type MockWorkerTypeStore struct {
	mu sync.RWMutex

	// GetFunc is called by Get if set.
	GetFunc func(ctx context.Context, name fleet.WorkerTypeName) (fleet.WorkerType, error)

	// PutFunc is called by Put if set.
	PutFunc func(ctx context.Context, workerType fleet.WorkerType) error

	// ModifyFunc is called by Modify if set.
	ModifyFunc func(ctx context.Context, name fleet.WorkerTypeName, fn func(*fleet.WorkerType) error) (fleet.WorkerType, error)

	// ListFunc is called by List if set.
	ListFunc func(ctx context.Context) ([]fleet.WorkerType, error)

	// Call tracking
	GetCalls    []fleet.WorkerTypeName
	PutCalls    []fleet.WorkerType
	ModifyCalls []fleet.WorkerTypeName
	ListCalls   int
}

// NewMockWorkerTypeStore creates a new mock worker-type store.
func NewMockWorkerTypeStore() *MockWorkerTypeStore {
	return &MockWorkerTypeStore{}
}

// Get implements WorkerTypeStore.
func (m *MockWorkerTypeStore) Get(ctx context.Context, name fleet.WorkerTypeName) (fleet.WorkerType, error) {
	m.mu.Lock()
	m.GetCalls = append(m.GetCalls, name)
	m.mu.Unlock()

	if m.GetFunc != nil {
		return m.GetFunc(ctx, name)
	}

	return fleet.WorkerType{}, ErrWorkerTypeNotFound
}

// Put implements WorkerTypeStore.
func (m *MockWorkerTypeStore) Put(ctx context.Context, workerType fleet.WorkerType) error {
	m.mu.Lock()
	m.PutCalls = append(m.PutCalls, workerType)
	m.mu.Unlock()

	if m.PutFunc != nil {
		return m.PutFunc(ctx, workerType)
	}

	return nil
}

// Modify implements WorkerTypeStore.
func (m *MockWorkerTypeStore) Modify(ctx context.Context, name fleet.WorkerTypeName, fn func(*fleet.WorkerType) error) (fleet.WorkerType, error) {
	m.mu.Lock()
	m.ModifyCalls = append(m.ModifyCalls, name)
	m.mu.Unlock()

	if m.ModifyFunc != nil {
		return m.ModifyFunc(ctx, name, fn)
	}

	return fleet.WorkerType{}, ErrWorkerTypeNotFound
}

// List implements WorkerTypeStore.
func (m *MockWorkerTypeStore) List(ctx context.Context) ([]fleet.WorkerType, error) {
	m.mu.Lock()
	m.ListCalls++
	m.mu.Unlock()

	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}

	return nil, nil
}

// MockWorkerStore is a configurable mock implementation of WorkerStore for
// use in tests.
type MockWorkerStore struct {
	mu sync.RWMutex

	// CreateFunc is called by Create if set.
	CreateFunc func(ctx context.Context, worker fleet.Worker) (fleet.Worker, error)

	// GetFunc is called by Get if set.
	GetFunc func(ctx context.Context, workerType fleet.WorkerTypeName, workerID string) (fleet.Worker, error)

	// ModifyFunc is called by Modify if set.
	ModifyFunc func(ctx context.Context, workerType fleet.WorkerTypeName, workerID string, fn func(*fleet.Worker) error) (fleet.Worker, error)

	// DeleteFunc is called by Delete if set.
	DeleteFunc func(ctx context.Context, workerType fleet.WorkerTypeName, workerID string) error

	// ListByWorkerTypeFunc is called by ListByWorkerType if set.
	ListByWorkerTypeFunc func(ctx context.Context, workerType fleet.WorkerTypeName) ([]fleet.Worker, error)

	// Call tracking
	CreateCalls           []fleet.Worker
	GetCalls              []WorkerKeyCall
	ModifyCalls           []WorkerKeyCall
	DeleteCalls           []WorkerKeyCall
	ListByWorkerTypeCalls []fleet.WorkerTypeName
}

// WorkerKeyCall records one keyed worker-store invocation.
type WorkerKeyCall struct {
	WorkerType fleet.WorkerTypeName
	WorkerID   string
}

// NewMockWorkerStore creates a new mock worker store.
func NewMockWorkerStore() *MockWorkerStore {
	return &MockWorkerStore{}
}

// Create implements WorkerStore.
func (m *MockWorkerStore) Create(ctx context.Context, worker fleet.Worker) (fleet.Worker, error) {
	m.mu.Lock()
	m.CreateCalls = append(m.CreateCalls, worker)
	m.mu.Unlock()

	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, worker)
	}

	return worker, nil
}

// Get implements WorkerStore.
func (m *MockWorkerStore) Get(ctx context.Context, workerType fleet.WorkerTypeName, workerID string) (fleet.Worker, error) {
	m.mu.Lock()
	m.GetCalls = append(m.GetCalls, WorkerKeyCall{WorkerType: workerType, WorkerID: workerID})
	m.mu.Unlock()

	if m.GetFunc != nil {
		return m.GetFunc(ctx, workerType, workerID)
	}

	return fleet.Worker{}, ErrWorkerNotFound
}

// Modify implements WorkerStore.
func (m *MockWorkerStore) Modify(ctx context.Context, workerType fleet.WorkerTypeName, workerID string, fn func(*fleet.Worker) error) (fleet.Worker, error) {
	m.mu.Lock()
	m.ModifyCalls = append(m.ModifyCalls, WorkerKeyCall{WorkerType: workerType, WorkerID: workerID})
	m.mu.Unlock()

	if m.ModifyFunc != nil {
		return m.ModifyFunc(ctx, workerType, workerID, fn)
	}

	return fleet.Worker{}, ErrWorkerNotFound
}

// Delete implements WorkerStore.
func (m *MockWorkerStore) Delete(ctx context.Context, workerType fleet.WorkerTypeName, workerID string) error {
	m.mu.Lock()
	m.DeleteCalls = append(m.DeleteCalls, WorkerKeyCall{WorkerType: workerType, WorkerID: workerID})
	m.mu.Unlock()

	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, workerType, workerID)
	}

	return nil
}

// ListByWorkerType implements WorkerStore.
func (m *MockWorkerStore) ListByWorkerType(ctx context.Context, workerType fleet.WorkerTypeName) ([]fleet.Worker, error) {
	m.mu.Lock()
	m.ListByWorkerTypeCalls = append(m.ListByWorkerTypeCalls, workerType)
	m.mu.Unlock()

	if m.ListByWorkerTypeFunc != nil {
		return m.ListByWorkerTypeFunc(ctx, workerType)
	}

	return nil, nil
}
