package fleet

import (
	"context"
	"sync"
)

// MockErrorReporter is a configurable mock implementation of ErrorReporter
// for use in tests. It records every report it receives.
type MockErrorReporter struct {
	mu sync.RWMutex

	// ReportErrorFunc is called by ReportError if set.
	ReportErrorFunc func(ctx context.Context, report ErrorReport)

	// Reports holds every report received, in order.
	Reports []ErrorReport
}

// NewMockErrorReporter creates a new mock error reporter.
func NewMockErrorReporter() *MockErrorReporter {
	return &MockErrorReporter{}
}

// ReportError implements ErrorReporter.
func (m *MockErrorReporter) ReportError(ctx context.Context, report ErrorReport) {
	m.mu.Lock()
	m.Reports = append(m.Reports, report)
	m.mu.Unlock()

	if m.ReportErrorFunc != nil {
		m.ReportErrorFunc(ctx, report)
	}
}

// ReportsOfKind returns the received reports with the given kind.
func (m *MockErrorReporter) ReportsOfKind(kind ErrorKind) []ErrorReport {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []ErrorReport
	for _, report := range m.Reports {
		if report.Kind == kind {
			matched = append(matched, report)
		}
	}
	return matched
}

// MockProvider is a configurable mock implementation of Provider for use in
// tests. Unset funcs succeed with zero values.
type MockProvider struct {
	mu sync.RWMutex

	// InitiateFunc is called by Initiate if set.
	InitiateFunc func(ctx context.Context) error

	// PrepareFunc is called by Prepare if set.
	PrepareFunc func(ctx context.Context) error

	// ProvisionFunc is called by Provision if set.
	ProvisionFunc func(ctx context.Context, workerType *WorkerType) error

	// HandleOperationsFunc is called by HandleOperations if set.
	HandleOperationsFunc func(ctx context.Context, workerType *WorkerType) error

	// VerifyIdentityFunc is called by VerifyIdentity if set.
	VerifyIdentityFunc func(ctx context.Context, token string, workerType *WorkerType) (Credential, error)

	// ListWorkersFunc is called by ListWorkers if set.
	ListWorkersFunc func(ctx context.Context, workerType *WorkerType) ([]WorkerInfo, error)

	// QueryWorkerStateFunc is called by QueryWorkerState if set.
	QueryWorkerStateFunc func(ctx context.Context, worker *Worker) (WorkerState, error)

	// WorkerInfoFunc is called by WorkerInfo if set.
	WorkerInfoFunc func(ctx context.Context, worker *Worker) (WorkerInfo, error)

	// TerminateWorkerFunc is called by TerminateWorker if set.
	TerminateWorkerFunc func(ctx context.Context, worker *Worker) error

	// TerminateWorkerTypeFunc is called by TerminateWorkerType if set.
	TerminateWorkerTypeFunc func(ctx context.Context, workerType *WorkerType) error

	// TerminateFunc is called by Terminate if set.
	TerminateFunc func(ctx context.Context) error

	// CleanupFunc is called by Cleanup if set.
	CleanupFunc func(ctx context.Context) error

	// Call tracking
	InitiateCalls            int
	PrepareCalls             int
	ProvisionCalls           []WorkerTypeName
	HandleOperationsCalls    []WorkerTypeName
	VerifyIdentityCalls      []string
	ListWorkersCalls         []WorkerTypeName
	QueryWorkerStateCalls    []string
	WorkerInfoCalls          []string
	TerminateWorkerCalls     []string
	TerminateWorkerTypeCalls []WorkerTypeName
	TerminateCalls           int
	CleanupCalls             int
}

// NewMockProvider creates a new mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// Initiate implements Provider.
func (m *MockProvider) Initiate(ctx context.Context) error {
	m.mu.Lock()
	m.InitiateCalls++
	m.mu.Unlock()

	if m.InitiateFunc != nil {
		return m.InitiateFunc(ctx)
	}
	return nil
}

// Prepare implements Provider.
func (m *MockProvider) Prepare(ctx context.Context) error {
	m.mu.Lock()
	m.PrepareCalls++
	m.mu.Unlock()

	if m.PrepareFunc != nil {
		return m.PrepareFunc(ctx)
	}
	return nil
}

// Provision implements Provider.
func (m *MockProvider) Provision(ctx context.Context, workerType *WorkerType) error {
	m.mu.Lock()
	m.ProvisionCalls = append(m.ProvisionCalls, workerType.Name)
	m.mu.Unlock()

	if m.ProvisionFunc != nil {
		return m.ProvisionFunc(ctx, workerType)
	}
	return nil
}

// HandleOperations implements Provider.
func (m *MockProvider) HandleOperations(ctx context.Context, workerType *WorkerType) error {
	m.mu.Lock()
	m.HandleOperationsCalls = append(m.HandleOperationsCalls, workerType.Name)
	m.mu.Unlock()

	if m.HandleOperationsFunc != nil {
		return m.HandleOperationsFunc(ctx, workerType)
	}
	return nil
}

// VerifyIdentity implements Provider.
func (m *MockProvider) VerifyIdentity(ctx context.Context, token string, workerType *WorkerType) (Credential, error) {
	m.mu.Lock()
	m.VerifyIdentityCalls = append(m.VerifyIdentityCalls, token)
	m.mu.Unlock()

	if m.VerifyIdentityFunc != nil {
		return m.VerifyIdentityFunc(ctx, token, workerType)
	}
	return Credential{}, nil
}

// ListWorkers implements Provider.
func (m *MockProvider) ListWorkers(ctx context.Context, workerType *WorkerType) ([]WorkerInfo, error) {
	m.mu.Lock()
	m.ListWorkersCalls = append(m.ListWorkersCalls, workerType.Name)
	m.mu.Unlock()

	if m.ListWorkersFunc != nil {
		return m.ListWorkersFunc(ctx, workerType)
	}
	return nil, nil
}

// QueryWorkerState implements Provider.
func (m *MockProvider) QueryWorkerState(ctx context.Context, worker *Worker) (WorkerState, error) {
	m.mu.Lock()
	m.QueryWorkerStateCalls = append(m.QueryWorkerStateCalls, worker.WorkerID)
	m.mu.Unlock()

	if m.QueryWorkerStateFunc != nil {
		return m.QueryWorkerStateFunc(ctx, worker)
	}
	return WorkerStateRequested, nil
}

// WorkerInfo implements Provider.
func (m *MockProvider) WorkerInfo(ctx context.Context, worker *Worker) (WorkerInfo, error) {
	m.mu.Lock()
	m.WorkerInfoCalls = append(m.WorkerInfoCalls, worker.WorkerID)
	m.mu.Unlock()

	if m.WorkerInfoFunc != nil {
		return m.WorkerInfoFunc(ctx, worker)
	}
	return WorkerInfo{WorkerID: worker.WorkerID}, nil
}

// TerminateWorker implements Provider.
func (m *MockProvider) TerminateWorker(ctx context.Context, worker *Worker) error {
	m.mu.Lock()
	m.TerminateWorkerCalls = append(m.TerminateWorkerCalls, worker.WorkerID)
	m.mu.Unlock()

	if m.TerminateWorkerFunc != nil {
		return m.TerminateWorkerFunc(ctx, worker)
	}
	return nil
}

// TerminateWorkerType implements Provider.
func (m *MockProvider) TerminateWorkerType(ctx context.Context, workerType *WorkerType) error {
	m.mu.Lock()
	m.TerminateWorkerTypeCalls = append(m.TerminateWorkerTypeCalls, workerType.Name)
	m.mu.Unlock()

	if m.TerminateWorkerTypeFunc != nil {
		return m.TerminateWorkerTypeFunc(ctx, workerType)
	}
	return nil
}

// Terminate implements Provider.
func (m *MockProvider) Terminate(ctx context.Context) error {
	m.mu.Lock()
	m.TerminateCalls++
	m.mu.Unlock()

	if m.TerminateFunc != nil {
		return m.TerminateFunc(ctx)
	}
	return nil
}

// Cleanup implements Provider.
func (m *MockProvider) Cleanup(ctx context.Context) error {
	m.mu.Lock()
	m.CleanupCalls++
	m.mu.Unlock()

	if m.CleanupFunc != nil {
		return m.CleanupFunc(ctx)
	}
	return nil
}
