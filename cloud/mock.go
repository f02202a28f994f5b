package cloud

import (
	"context"
	"sync"
)

// MockCompute is a configurable mock implementation of Compute for use in
// tests. It allows setting up expected return values, tracking method calls,
// and injecting errors for testing error paths.
type MockCompute struct {
	mu sync.RWMutex

	// InsertInstanceFunc is called by InsertInstance if set.
	InsertInstanceFunc func(ctx context.Context, req InstanceRequest) (*Operation, error)

	// GetInstanceFunc is called by GetInstance if set.
	GetInstanceFunc func(ctx context.Context, instanceID string) (*Instance, error)

	// DeleteInstanceFunc is called by DeleteInstance if set.
	DeleteInstanceFunc func(ctx context.Context, instanceID string) error

	// ListInstancesFunc is called by ListInstances if set.
	ListInstancesFunc func(ctx context.Context, labels map[string]string) ([]Instance, error)

	// ListZonesFunc is called by ListZones if set.
	ListZonesFunc func(ctx context.Context, region string) ([]string, error)

	// Call tracking
	InsertInstanceCalls []InstanceRequest
	GetInstanceCalls    []string
	DeleteInstanceCalls []string
	ListInstancesCalls  []map[string]string
	ListZonesCalls      []string
}

// NewMockCompute creates a new mock compute capability.
func NewMockCompute() *MockCompute {
	return &MockCompute{}
}

// InsertInstance implements Compute.
func (m *MockCompute) InsertInstance(ctx context.Context, req InstanceRequest) (*Operation, error) {
	m.mu.Lock()
	m.InsertInstanceCalls = append(m.InsertInstanceCalls, req)
	m.mu.Unlock()

	if m.InsertInstanceFunc != nil {
		return m.InsertInstanceFunc(ctx, req)
	}

	return &Operation{Name: "op-" + req.Name, Region: req.Region, Status: OperationRunning, TargetID: "0"}, nil
}

// GetInstance implements Compute.
func (m *MockCompute) GetInstance(ctx context.Context, instanceID string) (*Instance, error) {
	m.mu.Lock()
	m.GetInstanceCalls = append(m.GetInstanceCalls, instanceID)
	m.mu.Unlock()

	if m.GetInstanceFunc != nil {
		return m.GetInstanceFunc(ctx, instanceID)
	}

	return nil, ErrNotFound
}

// DeleteInstance implements Compute.
func (m *MockCompute) DeleteInstance(ctx context.Context, instanceID string) error {
	m.mu.Lock()
	m.DeleteInstanceCalls = append(m.DeleteInstanceCalls, instanceID)
	m.mu.Unlock()

	if m.DeleteInstanceFunc != nil {
		return m.DeleteInstanceFunc(ctx, instanceID)
	}

	return nil
}

// ListInstances implements Compute.
func (m *MockCompute) ListInstances(ctx context.Context, labels map[string]string) ([]Instance, error) {
	m.mu.Lock()
	m.ListInstancesCalls = append(m.ListInstancesCalls, labels)
	m.mu.Unlock()

	if m.ListInstancesFunc != nil {
		return m.ListInstancesFunc(ctx, labels)
	}

	return nil, nil
}

// ListZones implements Compute.
func (m *MockCompute) ListZones(ctx context.Context, region string) ([]string, error) {
	m.mu.Lock()
	m.ListZonesCalls = append(m.ListZonesCalls, region)
	m.mu.Unlock()

	if m.ListZonesFunc != nil {
		return m.ListZonesFunc(ctx, region)
	}

	return []string{region + "-a", region + "-b"}, nil
}

// MockIAM is a configurable mock implementation of IAM for use in tests.
type MockIAM struct {
	mu sync.RWMutex

	// GetServiceAccountFunc is called by GetServiceAccount if set.
	GetServiceAccountFunc func(ctx context.Context, email string) (*ServiceAccount, error)

	// CreateServiceAccountFunc is called by CreateServiceAccount if set.
	CreateServiceAccountFunc func(ctx context.Context, account ServiceAccount) (*ServiceAccount, error)

	// UpdateServiceAccountFunc is called by UpdateServiceAccount if set.
	UpdateServiceAccountFunc func(ctx context.Context, account ServiceAccount) (*ServiceAccount, error)

	// GetRoleFunc is called by GetRole if set.
	GetRoleFunc func(ctx context.Context, name string) (*Role, error)

	// CreateRoleFunc is called by CreateRole if set.
	CreateRoleFunc func(ctx context.Context, role Role) (*Role, error)

	// UpdateRoleFunc is called by UpdateRole if set.
	UpdateRoleFunc func(ctx context.Context, role Role) (*Role, error)

	// GetPolicyFunc is called by GetPolicy if set.
	GetPolicyFunc func(ctx context.Context, resource string) (*Policy, error)

	// SetPolicyFunc is called by SetPolicy if set.
	SetPolicyFunc func(ctx context.Context, resource string, policy Policy) error

	// Call tracking
	GetServiceAccountCalls    []string
	CreateServiceAccountCalls []ServiceAccount
	UpdateServiceAccountCalls []ServiceAccount
	GetRoleCalls              []string
	CreateRoleCalls           []Role
	UpdateRoleCalls           []Role
	GetPolicyCalls            []string
	SetPolicyCalls            []SetPolicyCall
}

// SetPolicyCall records one SetPolicy invocation.
type SetPolicyCall struct {
	Resource string
	Policy   Policy
}

// NewMockIAM creates a new mock IAM capability.
func NewMockIAM() *MockIAM {
	return &MockIAM{}
}

// GetServiceAccount implements IAM.
func (m *MockIAM) GetServiceAccount(ctx context.Context, email string) (*ServiceAccount, error) {
	m.mu.Lock()
	m.GetServiceAccountCalls = append(m.GetServiceAccountCalls, email)
	m.mu.Unlock()

	if m.GetServiceAccountFunc != nil {
		return m.GetServiceAccountFunc(ctx, email)
	}

	return nil, ErrNotFound
}

// CreateServiceAccount implements IAM.
func (m *MockIAM) CreateServiceAccount(ctx context.Context, account ServiceAccount) (*ServiceAccount, error) {
	m.mu.Lock()
	m.CreateServiceAccountCalls = append(m.CreateServiceAccountCalls, account)
	m.mu.Unlock()

	if m.CreateServiceAccountFunc != nil {
		return m.CreateServiceAccountFunc(ctx, account)
	}

	created := account
	return &created, nil
}

// UpdateServiceAccount implements IAM.
func (m *MockIAM) UpdateServiceAccount(ctx context.Context, account ServiceAccount) (*ServiceAccount, error) {
	m.mu.Lock()
	m.UpdateServiceAccountCalls = append(m.UpdateServiceAccountCalls, account)
	m.mu.Unlock()

	if m.UpdateServiceAccountFunc != nil {
		return m.UpdateServiceAccountFunc(ctx, account)
	}

	updated := account
	return &updated, nil
}

// GetRole implements IAM.
func (m *MockIAM) GetRole(ctx context.Context, name string) (*Role, error) {
	m.mu.Lock()
	m.GetRoleCalls = append(m.GetRoleCalls, name)
	m.mu.Unlock()

	if m.GetRoleFunc != nil {
		return m.GetRoleFunc(ctx, name)
	}

	return nil, ErrNotFound
}

// CreateRole implements IAM.
func (m *MockIAM) CreateRole(ctx context.Context, role Role) (*Role, error) {
	m.mu.Lock()
	m.CreateRoleCalls = append(m.CreateRoleCalls, role)
	m.mu.Unlock()

	if m.CreateRoleFunc != nil {
		return m.CreateRoleFunc(ctx, role)
	}

	created := role
	return &created, nil
}

// UpdateRole implements IAM.
func (m *MockIAM) UpdateRole(ctx context.Context, role Role) (*Role, error) {
	m.mu.Lock()
	m.UpdateRoleCalls = append(m.UpdateRoleCalls, role)
	m.mu.Unlock()

	if m.UpdateRoleFunc != nil {
		return m.UpdateRoleFunc(ctx, role)
	}

	updated := role
	return &updated, nil
}

// GetPolicy implements IAM.
func (m *MockIAM) GetPolicy(ctx context.Context, resource string) (*Policy, error) {
	m.mu.Lock()
	m.GetPolicyCalls = append(m.GetPolicyCalls, resource)
	m.mu.Unlock()

	if m.GetPolicyFunc != nil {
		return m.GetPolicyFunc(ctx, resource)
	}

	return &Policy{ETag: "etag-0"}, nil
}

// SetPolicy implements IAM.
func (m *MockIAM) SetPolicy(ctx context.Context, resource string, policy Policy) error {
	m.mu.Lock()
	m.SetPolicyCalls = append(m.SetPolicyCalls, SetPolicyCall{Resource: resource, Policy: policy})
	m.mu.Unlock()

	if m.SetPolicyFunc != nil {
		return m.SetPolicyFunc(ctx, resource, policy)
	}

	return nil
}

// MockOperations is a configurable mock implementation of Operations for use
// in tests.
type MockOperations struct {
	mu sync.RWMutex

	// GetRegionOperationFunc is called by GetRegionOperation if set.
	GetRegionOperationFunc func(ctx context.Context, region, name string) (*Operation, error)

	// GetGlobalOperationFunc is called by GetGlobalOperation if set.
	GetGlobalOperationFunc func(ctx context.Context, name string) (*Operation, error)

	// DeleteRegionOperationFunc is called by DeleteRegionOperation if set.
	DeleteRegionOperationFunc func(ctx context.Context, region, name string) error

	// DeleteGlobalOperationFunc is called by DeleteGlobalOperation if set.
	DeleteGlobalOperationFunc func(ctx context.Context, name string) error

	// Call tracking
	GetRegionOperationCalls    []RegionOperationCall
	GetGlobalOperationCalls    []string
	DeleteRegionOperationCalls []RegionOperationCall
	DeleteGlobalOperationCalls []string
}

// RegionOperationCall records one regional operation lookup or delete.
type RegionOperationCall struct {
	Region string
	Name   string
}

// NewMockOperations creates a new mock operations capability.
func NewMockOperations() *MockOperations {
	return &MockOperations{}
}

// GetRegionOperation implements Operations.
func (m *MockOperations) GetRegionOperation(ctx context.Context, region, name string) (*Operation, error) {
	m.mu.Lock()
	m.GetRegionOperationCalls = append(m.GetRegionOperationCalls, RegionOperationCall{Region: region, Name: name})
	m.mu.Unlock()

	if m.GetRegionOperationFunc != nil {
		return m.GetRegionOperationFunc(ctx, region, name)
	}

	return &Operation{Name: name, Region: region, Status: OperationDone}, nil
}

// GetGlobalOperation implements Operations.
func (m *MockOperations) GetGlobalOperation(ctx context.Context, name string) (*Operation, error) {
	m.mu.Lock()
	m.GetGlobalOperationCalls = append(m.GetGlobalOperationCalls, name)
	m.mu.Unlock()

	if m.GetGlobalOperationFunc != nil {
		return m.GetGlobalOperationFunc(ctx, name)
	}

	return &Operation{Name: name, Status: OperationDone}, nil
}

// DeleteRegionOperation implements Operations.
func (m *MockOperations) DeleteRegionOperation(ctx context.Context, region, name string) error {
	m.mu.Lock()
	m.DeleteRegionOperationCalls = append(m.DeleteRegionOperationCalls, RegionOperationCall{Region: region, Name: name})
	m.mu.Unlock()

	if m.DeleteRegionOperationFunc != nil {
		return m.DeleteRegionOperationFunc(ctx, region, name)
	}

	return nil
}

// DeleteGlobalOperation implements Operations.
func (m *MockOperations) DeleteGlobalOperation(ctx context.Context, name string) error {
	m.mu.Lock()
	m.DeleteGlobalOperationCalls = append(m.DeleteGlobalOperationCalls, name)
	m.mu.Unlock()

	if m.DeleteGlobalOperationFunc != nil {
		return m.DeleteGlobalOperationFunc(ctx, name)
	}

	return nil
}
