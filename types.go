package fleet

import (
	"encoding/json"
	"time"
)

// WorkerTypeName identifies a pool of interchangeable workers.
// Different worker types provision and scale independently.
type WorkerTypeName string

// WorkerType is the desired-state record for a worker pool. The record itself
// is owned by the fleet manager; the provider only reads Config and mutates
// ProviderData through the store's atomic Modify primitive.
type WorkerType struct {
	// Name is the unique key for this worker type.
	Name WorkerTypeName

	// Config describes the instances that back this pool.
	Config WorkerTypeConfig

	// ProviderData is per-provider scratch state. For this provider it
	// carries the ordered list of in-flight cloud operations.
	ProviderData ProviderData
}

// WorkerTypeConfig holds the placement and machine configuration for a worker
// type, supplied by the fleet manager.
type WorkerTypeConfig struct {
	// Regions are the candidate placement regions. Provisioning picks one
	// uniformly at random per call.
	Regions []string `json:"regions" yaml:"regions"`

	// MachineType is the cloud machine shape (e.g. "n2-standard-4").
	MachineType string `json:"machineType" yaml:"machineType"`

	// Image is the boot image for new instances.
	Image string `json:"image" yaml:"image"`

	// Preemptible requests interruptible capacity when true.
	Preemptible bool `json:"preemptible" yaml:"preemptible"`

	// Network and Subnetwork select the network attachment for instances.
	Network    string `json:"network" yaml:"network"`
	Subnetwork string `json:"subnetwork" yaml:"subnetwork"`

	// DiskSizeGiB is the boot disk size. Zero means the cloud default.
	DiskSizeGiB int64 `json:"diskSizeGiB" yaml:"diskSizeGiB"`

	// DiskType is the boot disk type (e.g. "pd-ssd").
	DiskType string `json:"diskType" yaml:"diskType"`

	// UserData is opaque boot data handed to the worker agent unmodified.
	UserData json.RawMessage `json:"userData,omitempty" yaml:"-"`
}

// ProviderData is the provider-owned portion of a WorkerType record.
type ProviderData struct {
	// TrackedOperations are the in-flight cloud operations for this worker
	// type, in registration order. An operation stays here from the moment a
	// create request is accepted until it is observed in a terminal state.
	TrackedOperations []Operation `json:"trackedOperations"`
}

// Operation is a handle to an asynchronous cloud operation. It is embedded in
// ProviderData rather than persisted as its own entity: losing the list only
// stops polling, it never rolls back the underlying action.
type Operation struct {
	// Name is the cloud-assigned operation name.
	Name string `json:"name"`

	// Region scopes the operation-status lookup. Empty means the operation
	// is global.
	Region string `json:"region,omitempty"`
}

// Worker is one compute instance tracked by the fleet manager. A row is
// created as soon as a create request is accepted, before the instance boots,
// so a later credential request can be correlated with it.
type Worker struct {
	// WorkerType names the pool this worker belongs to.
	WorkerType WorkerTypeName

	// WorkerID is the provider-namespaced identifier, derived from the
	// provider tag and the cloud instance id.
	WorkerID string

	// Provider is the name of the provider that owns this worker.
	Provider string

	// Created is when the create request was accepted.
	Created time.Time

	// Credentialed is nil until a credential request is observed, then true
	// once credentials have been issued.
	Credentialed *bool
}

// WorkerID derives the provider-namespaced worker identifier for a cloud
// instance. Provisioning and credential issuance must agree on this
// derivation: the Worker row is keyed by it, and a booted instance is
// correlated with its row by re-deriving the id from the attested instance
// id.
func WorkerID(provider, instanceID string) string {
	return provider + "-" + instanceID
}

// WorkerState is the coarse lifecycle state of a cloud instance as reported
// by QueryWorkerState.
type WorkerState string

const (
	// WorkerStateRequested indicates the instance is still being created.
	WorkerStateRequested WorkerState = "requested"

	// WorkerStateRunning indicates the instance is up.
	WorkerStateRunning WorkerState = "running"

	// WorkerStateStopped indicates the instance exists but is not running.
	WorkerStateStopped WorkerState = "stopped"

	// WorkerStateGone indicates the cloud no longer knows the instance.
	WorkerStateGone WorkerState = "gone"
)

// WorkerInfo is the provider-side detail for a single worker instance.
type WorkerInfo struct {
	// WorkerID is the provider-namespaced identifier.
	WorkerID string

	// Zone is the zone the instance was placed in.
	Zone string

	// MachineType echoes the instance's machine shape.
	MachineType string

	// State is the instance state at query time.
	State WorkerState
}

// Credential is a scoped, time-bounded credential issued to a verified worker
// instance. It is returned to the caller and never persisted.
type Credential struct {
	// ClientID deterministically encodes provider, project and cloud
	// instance id.
	ClientID string `json:"clientId"`

	// Scopes are the permissions granted to the worker.
	Scopes []string `json:"scopes"`

	// Start and Expiry bound the validity window. Start is backdated to
	// tolerate clock skew between the worker and the issuer.
	Start  time.Time `json:"start"`
	Expiry time.Time `json:"expiry"`
}

// InstanceIdentity is the cloud-attested payload extracted from a verified
// identity token.
type InstanceIdentity struct {
	// Project is the cloud project the instance runs in.
	Project string

	// InstanceID is the cloud-assigned instance identifier.
	InstanceID string

	// ServiceAccount is the service-account subject the instance runs as.
	ServiceAccount string
}
