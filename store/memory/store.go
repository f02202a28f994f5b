package memory

import (
	"context"
	"sync"

	fleet "github.com/fleetworks/fleet-provider"
	"github.com/fleetworks/fleet-provider/store"
)

// WorkerTypes is an in-memory implementation of store.WorkerTypeStore for
// testing and single-process deployments. It provides thread-safe access
// using a sync.RWMutex; Modify holds the write lock for the whole
// read-modify-write, which satisfies the atomicity contract.
type WorkerTypes struct {
	mu      sync.RWMutex
	records map[fleet.WorkerTypeName]fleet.WorkerType
}

// NewWorkerTypes creates a new in-memory worker-type store.
func NewWorkerTypes() *WorkerTypes {
	return &WorkerTypes{
		records: make(map[fleet.WorkerTypeName]fleet.WorkerType),
	}
}

// Get returns the worker type with the given name.
// Returns store.ErrWorkerTypeNotFound if it does not exist.
func (s *WorkerTypes) Get(ctx context.Context, name fleet.WorkerTypeName) (fleet.WorkerType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workerType, ok := s.records[name]
	if !ok {
		return fleet.WorkerType{}, store.ErrWorkerTypeNotFound
	}

	return workerType, nil
}

// Put creates or replaces a worker-type record.
func (s *WorkerTypes) Put(ctx context.Context, workerType fleet.WorkerType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[workerType.Name] = workerType
	return nil
}

// Modify applies fn to the worker type under the store's write lock.
// Returns store.ErrWorkerTypeNotFound if the record does not exist.
func (s *WorkerTypes) Modify(ctx context.Context, name fleet.WorkerTypeName, fn func(*fleet.WorkerType) error) (fleet.WorkerType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	workerType, ok := s.records[name]
	if !ok {
		return fleet.WorkerType{}, store.ErrWorkerTypeNotFound
	}

	if err := fn(&workerType); err != nil {
		return fleet.WorkerType{}, err
	}

	s.records[name] = workerType
	return workerType, nil
}

// List returns every worker-type record.
func (s *WorkerTypes) List(ctx context.Context) ([]fleet.WorkerType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workerTypes := make([]fleet.WorkerType, 0, len(s.records))
	for _, workerType := range s.records {
		workerTypes = append(workerTypes, workerType)
	}

	return workerTypes, nil
}

// Workers is an in-memory implementation of store.WorkerStore.
type Workers struct {
	mu      sync.RWMutex
	records map[workerKey]fleet.Worker
}

type workerKey struct {
	workerType fleet.WorkerTypeName
	workerID   string
}

// NewWorkers creates a new in-memory worker store.
func NewWorkers() *Workers {
	return &Workers{
		records: make(map[workerKey]fleet.Worker),
	}
}

// Create inserts a new worker row.
// Returns store.ErrWorkerExists if the keys are taken.
func (s *Workers) Create(ctx context.Context, worker fleet.Worker) (fleet.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := workerKey{workerType: worker.WorkerType, workerID: worker.WorkerID}
	if _, ok := s.records[key]; ok {
		return fleet.Worker{}, store.ErrWorkerExists
	}

	s.records[key] = worker
	return worker, nil
}

// Get returns the worker with the given keys.
// Returns store.ErrWorkerNotFound if it does not exist.
func (s *Workers) Get(ctx context.Context, workerType fleet.WorkerTypeName, workerID string) (fleet.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	worker, ok := s.records[workerKey{workerType: workerType, workerID: workerID}]
	if !ok {
		return fleet.Worker{}, store.ErrWorkerNotFound
	}

	return worker, nil
}

// Modify applies fn to the worker under the store's write lock.
// Returns store.ErrWorkerNotFound if the record does not exist.
func (s *Workers) Modify(ctx context.Context, workerType fleet.WorkerTypeName, workerID string, fn func(*fleet.Worker) error) (fleet.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := workerKey{workerType: workerType, workerID: workerID}
	worker, ok := s.records[key]
	if !ok {
		return fleet.Worker{}, store.ErrWorkerNotFound
	}

	if err := fn(&worker); err != nil {
		return fleet.Worker{}, err
	}

	s.records[key] = worker
	return worker, nil
}

// Delete removes a worker row.
// Returns store.ErrWorkerNotFound if the record does not exist.
func (s *Workers) Delete(ctx context.Context, workerType fleet.WorkerTypeName, workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := workerKey{workerType: workerType, workerID: workerID}
	if _, ok := s.records[key]; !ok {
		return store.ErrWorkerNotFound
	}

	delete(s.records, key)
	return nil
}

// ListByWorkerType returns every worker belonging to a worker type.
func (s *Workers) ListByWorkerType(ctx context.Context, workerType fleet.WorkerTypeName) ([]fleet.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workers := make([]fleet.Worker, 0)
	for key, worker := range s.records {
		if key.workerType == workerType {
			workers = append(workers, worker)
		}
	}

	return workers, nil
}
