// Package cloud defines the capability surface the provider consumes from
// the cloud platform. The concrete wire protocol lives behind these
// interfaces and is injected by the environment; everything in this package
// is transport-agnostic.
package cloud

import "context"

// Compute manages instances and placement lookups.
type Compute interface {
	// InsertInstance issues an instance create request. The request carries
	// an idempotency token so transport-level retries of the same logical
	// request do not create duplicates. The returned operation describes the
	// asynchronous creation; its TargetID is the cloud-assigned instance id.
	InsertInstance(ctx context.Context, req InstanceRequest) (*Operation, error)

	// GetInstance fetches an instance by cloud instance id.
	// Returns ErrNotFound if the cloud does not know the id.
	GetInstance(ctx context.Context, instanceID string) (*Instance, error)

	// DeleteInstance tears down an instance by cloud instance id.
	// Deleting an unknown id returns ErrNotFound.
	DeleteInstance(ctx context.Context, instanceID string) error

	// ListInstances returns every instance whose labels match all the given
	// label pairs.
	ListInstances(ctx context.Context, labels map[string]string) ([]Instance, error)

	// ListZones returns the zones available in a region.
	ListZones(ctx context.Context, region string) ([]string, error)
}

// IAM manages the provider's identity resources: service accounts, roles and
// policy bindings. All writes may fail with a ConflictError when another
// writer mutated the resource concurrently; callers retry from a fresh read.
type IAM interface {
	// GetServiceAccount fetches a service account by email.
	// Returns ErrNotFound if it does not exist.
	GetServiceAccount(ctx context.Context, email string) (*ServiceAccount, error)

	// CreateServiceAccount creates a service account.
	CreateServiceAccount(ctx context.Context, account ServiceAccount) (*ServiceAccount, error)

	// UpdateServiceAccount patches an existing service account.
	UpdateServiceAccount(ctx context.Context, account ServiceAccount) (*ServiceAccount, error)

	// GetRole fetches a custom role by name.
	// Returns ErrNotFound if it does not exist.
	GetRole(ctx context.Context, name string) (*Role, error)

	// CreateRole creates a custom role.
	CreateRole(ctx context.Context, role Role) (*Role, error)

	// UpdateRole patches an existing custom role.
	UpdateRole(ctx context.Context, role Role) (*Role, error)

	// GetPolicy fetches the policy attached to a resource. The returned
	// policy carries an etag; SetPolicy with a stale etag fails with a
	// ConflictError.
	GetPolicy(ctx context.Context, resource string) (*Policy, error)

	// SetPolicy replaces the policy attached to a resource.
	SetPolicy(ctx context.Context, resource string, policy Policy) error
}

// Operations reads and deletes asynchronous operation records. Regional and
// global operations live in separate registries.
type Operations interface {
	// GetRegionOperation fetches a regional operation's current status.
	// Returns ErrNotFound if the registry no longer knows the operation.
	GetRegionOperation(ctx context.Context, region, name string) (*Operation, error)

	// GetGlobalOperation fetches a global operation's current status.
	// Returns ErrNotFound if the registry no longer knows the operation.
	GetGlobalOperation(ctx context.Context, name string) (*Operation, error)

	// DeleteRegionOperation removes a finished regional operation.
	DeleteRegionOperation(ctx context.Context, region, name string) error

	// DeleteGlobalOperation removes a finished global operation.
	DeleteGlobalOperation(ctx context.Context, name string) error
}
