package cloud

// InstanceRequest describes one instance create request.
type InstanceRequest struct {
	// Name is the instance name, unique within the zone.
	Name string

	// Region and Zone select placement. Region also scopes the resulting
	// operation.
	Region string
	Zone   string

	// MachineType is the machine shape.
	MachineType string

	// Image is the boot image.
	Image string

	// Preemptible requests interruptible capacity.
	Preemptible bool

	// Network and Subnetwork select the network attachment.
	Network    string
	Subnetwork string

	// DiskSizeGiB and DiskType configure the boot disk. Zero size means the
	// cloud default.
	DiskSizeGiB int64
	DiskType    string

	// ServiceAccount is the email of the service account the instance runs
	// as.
	ServiceAccount string

	// Labels tag the instance for later listing and drift detection.
	Labels map[string]string

	// Metadata is the bootstrap metadata blob exposed to the instance.
	Metadata map[string]string

	// RequestID is the caller-supplied idempotency token. The cloud treats
	// two inserts with the same RequestID as one logical request.
	RequestID string
}

// Instance is the cloud's view of one compute instance.
type Instance struct {
	// ID is the cloud-assigned instance identifier.
	ID string

	// Name is the instance name.
	Name string

	// Zone is where the instance was placed.
	Zone string

	// MachineType echoes the machine shape.
	MachineType string

	// Status is the cloud-side lifecycle state, e.g. "PROVISIONING",
	// "RUNNING", "STOPPED", "TERMINATED".
	Status string

	// Labels echo the labels supplied at creation.
	Labels map[string]string
}

// Instance status values reported by the cloud.
const (
	InstanceStatusProvisioning = "PROVISIONING"
	InstanceStatusStaging      = "STAGING"
	InstanceStatusRunning      = "RUNNING"
	InstanceStatusStopped      = "STOPPED"
	InstanceStatusTerminated   = "TERMINATED"
)

// OperationStatus is the lifecycle state of an asynchronous operation.
type OperationStatus string

const (
	// OperationPending means the operation has been accepted but not
	// started.
	OperationPending OperationStatus = "PENDING"

	// OperationRunning means the operation is in progress.
	OperationRunning OperationStatus = "RUNNING"

	// OperationDone means the operation reached a terminal state, with or
	// without errors.
	OperationDone OperationStatus = "DONE"
)

// Operation is one asynchronous cloud operation.
type Operation struct {
	// Name is the cloud-assigned operation name.
	Name string

	// Region scopes the operation. Empty means global.
	Region string

	// Status is the current lifecycle state.
	Status OperationStatus

	// TargetID identifies the resource the operation acts on; for an
	// instance insert this is the new instance's id.
	TargetID string

	// Errors carries the failures for a DONE operation. Empty means the
	// operation completed cleanly.
	Errors []OperationError
}

// OperationError is one failure attached to a finished operation.
type OperationError struct {
	// Code is the cloud's machine-readable error code.
	Code string

	// Message is the human-readable detail.
	Message string
}

// ServiceAccount is an IAM service account.
type ServiceAccount struct {
	// Email is the account's unique address and lookup key.
	Email string

	// DisplayName and Description are human-facing metadata.
	DisplayName string
	Description string
}

// Role is an IAM custom role granting a fixed permission set.
type Role struct {
	// Name is the role's unique identifier.
	Name string

	// Description is human-facing metadata.
	Description string

	// Permissions is the exact permission set the role grants.
	Permissions []string
}

// PolicyBinding grants a role to a set of members.
type PolicyBinding struct {
	// Role names the granted role.
	Role string

	// Members are the identities the role is granted to.
	Members []string
}

// Policy is the set of bindings attached to a resource, guarded by an etag
// for optimistic concurrency.
type Policy struct {
	// Bindings are the role grants.
	Bindings []PolicyBinding

	// ETag is the version observed at read time. SetPolicy with a stale
	// etag fails with a ConflictError.
	ETag string
}
