// Package provider implements the concrete cloud provider: the composition
// of IAM reconciliation, instance provisioning, operation tracking and
// credential issuance behind the fleet.Provider interface.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	fleet "github.com/fleetworks/fleet-provider"
	"github.com/fleetworks/fleet-provider/cloud"
	"github.com/fleetworks/fleet-provider/credentials"
	"github.com/fleetworks/fleet-provider/provision"
	"github.com/fleetworks/fleet-provider/reconcile"
	"github.com/fleetworks/fleet-provider/store"
	"github.com/fleetworks/fleet-provider/tracker"
)

// ImpersonationRole is the predefined role that lets the provider's own
// identity act as the bootstrap service account when attaching it to new
// instances.
const ImpersonationRole = "roles/iam.serviceAccountUser"

// Settings is the static identity and placement configuration of one
// provider deployment.
type Settings struct {
	// Project is the cloud project everything is provisioned into.
	Project string

	// ProvisionerID identifies the fleet-manager deployment.
	ProvisionerID string

	// ProviderID is this provider's tag, used to namespace worker ids.
	ProviderID string

	// RootURL is the fleet manager's public service URL, also the expected
	// identity-token audience.
	RootURL string

	// CredentialURL is where booted instances claim their credentials.
	CredentialURL string

	// ServiceAccountEmail is the bootstrap service account instances run as.
	ServiceAccountEmail string

	// Identity is the provider's own member string (e.g.
	// "serviceAccount:provider@project.iam.example.com"), granted
	// impersonation of the bootstrap account during Initiate.
	Identity string

	// RoleName is the custom role granting InstancePermissions.
	RoleName string

	// InstancePermissions is the exact permission set workers need.
	InstancePermissions []string
}

// Config holds the dependencies and settings of a Provider.
type Config struct {
	// Compute, IAM and Operations are the injected cloud capabilities.
	// All required.
	Compute    cloud.Compute
	IAM        cloud.IAM
	Operations cloud.Operations

	// WorkerTypes and Workers are the persistence backends. Required.
	WorkerTypes store.WorkerTypeStore
	Workers     store.WorkerStore

	// Verifier checks instance identity tokens. Required.
	Verifier credentials.TokenVerifier

	// Reporter receives domain-error events. Required.
	Reporter fleet.ErrorReporter

	// Settings is the provider's identity configuration. Required fields are
	// validated by New.
	Settings Settings

	// Logger is used for diagnostic output. Defaults to a no-op logger.
	Logger *zerolog.Logger
}

// Provider is the concrete cloud backend. It satisfies fleet.Provider.
type Provider struct {
	compute     cloud.Compute
	iam         cloud.IAM
	workerTypes store.WorkerTypeStore
	workers     store.WorkerStore
	settings    Settings
	logger      zerolog.Logger

	provisioner *provision.Provisioner
	tracker     *tracker.Tracker
	issuer      *credentials.Issuer
}

var _ fleet.Provider = (*Provider)(nil)

// New creates a Provider from config.
func New(config Config) (*Provider, error) {
	if config.Compute == nil {
		return nil, errors.New("compute capability is required")
	}
	if config.IAM == nil {
		return nil, errors.New("iam capability is required")
	}
	if config.Operations == nil {
		return nil, errors.New("operations capability is required")
	}
	if config.WorkerTypes == nil {
		return nil, errors.New("worker type store is required")
	}
	if config.Workers == nil {
		return nil, errors.New("worker store is required")
	}
	if config.Verifier == nil {
		return nil, errors.New("token verifier is required")
	}
	if config.Reporter == nil {
		return nil, errors.New("error reporter is required")
	}
	if config.Settings.Project == "" {
		return nil, errors.New("project is required")
	}
	if config.Settings.ProvisionerID == "" {
		return nil, errors.New("provisioner id is required")
	}
	if config.Settings.ProviderID == "" {
		return nil, errors.New("provider id is required")
	}
	if config.Settings.RootURL == "" {
		return nil, errors.New("root URL is required")
	}
	if config.Settings.CredentialURL == "" {
		return nil, errors.New("credential URL is required")
	}
	if config.Settings.ServiceAccountEmail == "" {
		return nil, errors.New("service account email is required")
	}
	if config.Settings.Identity == "" {
		return nil, errors.New("provider identity is required")
	}
	if config.Settings.RoleName == "" {
		return nil, errors.New("role name is required")
	}

	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = *config.Logger
	}

	opTracker, err := tracker.New(tracker.Config{
		Operations:  config.Operations,
		WorkerTypes: config.WorkerTypes,
		Reporter:    config.Reporter,
		Logger:      &logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build operation tracker: %w", err)
	}

	provisioner, err := provision.New(provision.Config{
		Compute:        config.Compute,
		WorkerTypes:    config.WorkerTypes,
		Workers:        config.Workers,
		Tracker:        opTracker,
		Reporter:       config.Reporter,
		ProvisionerID:  config.Settings.ProvisionerID,
		ProviderID:     config.Settings.ProviderID,
		RootURL:        config.Settings.RootURL,
		CredentialURL:  config.Settings.CredentialURL,
		ServiceAccount: config.Settings.ServiceAccountEmail,
		Logger:         &logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build provisioner: %w", err)
	}

	issuer, err := credentials.New(credentials.Config{
		Verifier:       config.Verifier,
		Workers:        config.Workers,
		Project:        config.Settings.Project,
		ServiceAccount: config.Settings.ServiceAccountEmail,
		ProvisionerID:  config.Settings.ProvisionerID,
		ProviderID:     config.Settings.ProviderID,
		RootURL:        config.Settings.RootURL,
		Logger:         &logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build credential issuer: %w", err)
	}

	return &Provider{
		compute:     config.Compute,
		iam:         config.IAM,
		workerTypes: config.WorkerTypes,
		workers:     config.Workers,
		settings:    config.Settings,
		logger:      logger,
		provisioner: provisioner,
		tracker:     opTracker,
		issuer:      issuer,
	}, nil
}

// Initiate idempotently brings the provider's cloud prerequisites to desired
// state: the bootstrap service account, the custom role granting exactly the
// configured instance permissions, the impersonation grant on the service
// account for the provider's own identity, and the project-level grant of the
// custom role to the service account. Each step goes through the optimistic
// reconciler, so concurrent activations of other provider replicas converge
// without clobbering each other.
func (p *Provider) Initiate(ctx context.Context) error {
	if err := p.reconcileServiceAccount(ctx); err != nil {
		return fmt.Errorf("failed to reconcile service account: %w", err)
	}
	if err := p.reconcileRole(ctx); err != nil {
		return fmt.Errorf("failed to reconcile role: %w", err)
	}

	impersonator := p.settings.Identity
	if err := p.reconcileBinding(ctx, serviceAccountResource(p.settings.ServiceAccountEmail), ImpersonationRole, impersonator); err != nil {
		return fmt.Errorf("failed to reconcile impersonation binding: %w", err)
	}

	member := "serviceAccount:" + p.settings.ServiceAccountEmail
	if err := p.reconcileBinding(ctx, projectResource(p.settings.Project), p.settings.RoleName, member); err != nil {
		return fmt.Errorf("failed to reconcile role binding: %w", err)
	}

	p.logger.Info().
		Str("service_account", p.settings.ServiceAccountEmail).
		Str("role", p.settings.RoleName).
		Msg("provider prerequisites reconciled")

	return nil
}

func (p *Provider) reconcileServiceAccount(ctx context.Context) error {
	desired := cloud.ServiceAccount{
		Email:       p.settings.ServiceAccountEmail,
		DisplayName: "Fleet workers",
		Description: fmt.Sprintf("Bootstrap account for %s workers", p.settings.ProviderID),
	}

	return reconcile.Reconcile(ctx, reconcile.Resource[*cloud.ServiceAccount]{
		Read: func(ctx context.Context) (*cloud.ServiceAccount, error) {
			return p.iam.GetServiceAccount(ctx, desired.Email)
		},
		Compare: func(current *cloud.ServiceAccount) bool {
			return current.DisplayName == desired.DisplayName &&
				current.Description == desired.Description
		},
		Modify: func(ctx context.Context, current *cloud.ServiceAccount) error {
			_, err := p.iam.UpdateServiceAccount(ctx, desired)
			return err
		},
		Set: func(ctx context.Context) error {
			_, err := p.iam.CreateServiceAccount(ctx, desired)
			return err
		},
	})
}

func (p *Provider) reconcileRole(ctx context.Context) error {
	desired := cloud.Role{
		Name:        p.settings.RoleName,
		Description: fmt.Sprintf("Permissions for %s workers", p.settings.ProviderID),
		Permissions: p.settings.InstancePermissions,
	}

	return reconcile.Reconcile(ctx, reconcile.Resource[*cloud.Role]{
		Read: func(ctx context.Context) (*cloud.Role, error) {
			return p.iam.GetRole(ctx, desired.Name)
		},
		Compare: func(current *cloud.Role) bool {
			return samePermissions(current.Permissions, desired.Permissions)
		},
		Modify: func(ctx context.Context, current *cloud.Role) error {
			_, err := p.iam.UpdateRole(ctx, desired)
			return err
		},
		Set: func(ctx context.Context) error {
			_, err := p.iam.CreateRole(ctx, desired)
			return err
		},
	})
}

// reconcileBinding ensures member is granted role on resource. The policy is
// re-read on every attempt so an etag conflict retries against the concurrent
// writer's version rather than the stale one.
func (p *Provider) reconcileBinding(ctx context.Context, resource, role, member string) error {
	return reconcile.Reconcile(ctx, reconcile.Resource[*cloud.Policy]{
		Read: func(ctx context.Context) (*cloud.Policy, error) {
			return p.iam.GetPolicy(ctx, resource)
		},
		Compare: func(current *cloud.Policy) bool {
			return policyHasBinding(current, role, member)
		},
		Modify: func(ctx context.Context, current *cloud.Policy) error {
			updated := withBinding(*current, role, member)
			return p.iam.SetPolicy(ctx, resource, updated)
		},
		Set: func(ctx context.Context) error {
			policy := withBinding(cloud.Policy{}, role, member)
			return p.iam.SetPolicy(ctx, resource, policy)
		},
	})
}

// Prepare runs before the worker types of one control-loop pass.
func (p *Provider) Prepare(ctx context.Context) error {
	p.logger.Debug().Msg("control-loop pass starting")
	return nil
}

// Provision implements fleet.Provider.
func (p *Provider) Provision(ctx context.Context, workerType *fleet.WorkerType) error {
	return p.provisioner.Provision(ctx, workerType)
}

// HandleOperations implements fleet.Provider.
func (p *Provider) HandleOperations(ctx context.Context, workerType *fleet.WorkerType) error {
	return p.tracker.HandleOperations(ctx, workerType)
}

// VerifyIdentity implements fleet.Provider.
func (p *Provider) VerifyIdentity(ctx context.Context, token string, workerType *fleet.WorkerType) (fleet.Credential, error) {
	return p.issuer.VerifyIdentity(ctx, token, workerType)
}

// ListWorkers returns the instances currently carrying the worker type's
// label, regardless of whether a Worker row exists for them.
func (p *Provider) ListWorkers(ctx context.Context, workerType *fleet.WorkerType) ([]fleet.WorkerInfo, error) {
	instances, err := p.compute.ListInstances(ctx, map[string]string{
		"worker-type": string(workerType.Name),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list instances for %s: %w", workerType.Name, err)
	}

	infos := make([]fleet.WorkerInfo, 0, len(instances))
	for _, instance := range instances {
		infos = append(infos, fleet.WorkerInfo{
			WorkerID:    fleet.WorkerID(p.settings.ProviderID, instance.ID),
			Zone:        instance.Zone,
			MachineType: instance.MachineType,
			State:       workerState(instance.Status),
		})
	}

	return infos, nil
}

// QueryWorkerState implements fleet.Provider. An instance the cloud no
// longer knows about reports WorkerStateGone, never an error.
func (p *Provider) QueryWorkerState(ctx context.Context, worker *fleet.Worker) (fleet.WorkerState, error) {
	instance, err := p.compute.GetInstance(ctx, p.instanceID(worker))
	if cloud.IsNotFound(err) {
		return fleet.WorkerStateGone, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query instance for %s: %w", worker.WorkerID, err)
	}

	return workerState(instance.Status), nil
}

// WorkerInfo implements fleet.Provider.
func (p *Provider) WorkerInfo(ctx context.Context, worker *fleet.Worker) (fleet.WorkerInfo, error) {
	instance, err := p.compute.GetInstance(ctx, p.instanceID(worker))
	if cloud.IsNotFound(err) {
		return fleet.WorkerInfo{WorkerID: worker.WorkerID, State: fleet.WorkerStateGone}, nil
	}
	if err != nil {
		return fleet.WorkerInfo{}, fmt.Errorf("failed to describe instance for %s: %w", worker.WorkerID, err)
	}

	return fleet.WorkerInfo{
		WorkerID:    worker.WorkerID,
		Zone:        instance.Zone,
		MachineType: instance.MachineType,
		State:       workerState(instance.Status),
	}, nil
}

// TerminateWorker tears down one instance and removes its Worker row. An
// already-gone instance or row is treated as terminated.
func (p *Provider) TerminateWorker(ctx context.Context, worker *fleet.Worker) error {
	if err := p.compute.DeleteInstance(ctx, p.instanceID(worker)); err != nil && !cloud.IsNotFound(err) {
		return fmt.Errorf("failed to delete instance for %s: %w", worker.WorkerID, err)
	}

	if err := p.workers.Delete(ctx, worker.WorkerType, worker.WorkerID); err != nil && !errors.Is(err, store.ErrWorkerNotFound) {
		return fmt.Errorf("failed to delete worker row %s: %w", worker.WorkerID, err)
	}

	p.logger.Info().
		Str("worker_type", string(worker.WorkerType)).
		Str("worker_id", worker.WorkerID).
		Msg("worker terminated")

	return nil
}

// TerminateWorkerType tears down every instance carrying the worker type's
// label and every Worker row for it. Failures are aggregated so one stuck
// instance does not shield the rest from deletion.
func (p *Provider) TerminateWorkerType(ctx context.Context, workerType *fleet.WorkerType) error {
	var result *multierror.Error

	instances, err := p.compute.ListInstances(ctx, map[string]string{
		"worker-type": string(workerType.Name),
	})
	if err != nil {
		return fmt.Errorf("failed to list instances for %s: %w", workerType.Name, err)
	}

	for _, instance := range instances {
		if err := p.compute.DeleteInstance(ctx, instance.ID); err != nil && !cloud.IsNotFound(err) {
			result = multierror.Append(result, fmt.Errorf("failed to delete instance %s: %w", instance.ID, err))
		}
	}

	workers, err := p.workers.ListByWorkerType(ctx, workerType.Name)
	if err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to list workers for %s: %w", workerType.Name, err))
		return result.ErrorOrNil()
	}

	for _, worker := range workers {
		if err := p.workers.Delete(ctx, worker.WorkerType, worker.WorkerID); err != nil && !errors.Is(err, store.ErrWorkerNotFound) {
			result = multierror.Append(result, fmt.Errorf("failed to delete worker row %s: %w", worker.WorkerID, err))
		}
	}

	p.logger.Info().
		Str("worker_type", string(workerType.Name)).
		Int("instances", len(instances)).
		Msg("worker type terminated")

	return result.ErrorOrNil()
}

// Terminate tears down everything this provider manages, across all worker
// types.
func (p *Provider) Terminate(ctx context.Context) error {
	workerTypes, err := p.workerTypes.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list worker types: %w", err)
	}

	var result *multierror.Error
	for i := range workerTypes {
		if err := p.TerminateWorkerType(ctx, &workerTypes[i]); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}

// Cleanup runs after the worker types of one control-loop pass.
func (p *Provider) Cleanup(ctx context.Context) error {
	p.logger.Debug().Msg("control-loop pass finished")
	return nil
}

// instanceID recovers the cloud instance id from a provider-namespaced
// worker id. Inverse of fleet.WorkerID.
func (p *Provider) instanceID(worker *fleet.Worker) string {
	return strings.TrimPrefix(worker.WorkerID, p.settings.ProviderID+"-")
}

// workerState maps a cloud instance status to the coarse lifecycle state.
func workerState(status string) fleet.WorkerState {
	switch status {
	case cloud.InstanceStatusProvisioning, cloud.InstanceStatusStaging:
		return fleet.WorkerStateRequested
	case cloud.InstanceStatusRunning:
		return fleet.WorkerStateRunning
	case cloud.InstanceStatusStopped, cloud.InstanceStatusTerminated:
		return fleet.WorkerStateStopped
	default:
		// Transitional statuses the cloud may add count as still requested.
		return fleet.WorkerStateRequested
	}
}

func serviceAccountResource(email string) string {
	return "serviceAccounts/" + email
}

func projectResource(project string) string {
	return "projects/" + project
}

// policyHasBinding reports whether policy already grants role to member.
func policyHasBinding(policy *cloud.Policy, role, member string) bool {
	for _, binding := range policy.Bindings {
		if binding.Role != role {
			continue
		}
		for _, m := range binding.Members {
			if m == member {
				return true
			}
		}
	}
	return false
}

// withBinding returns a copy of policy with member granted role. The etag is
// preserved so the write is rejected if the policy moved underneath us.
func withBinding(policy cloud.Policy, role, member string) cloud.Policy {
	bindings := make([]cloud.PolicyBinding, len(policy.Bindings))
	copy(bindings, policy.Bindings)

	for i, binding := range bindings {
		if binding.Role != role {
			continue
		}
		members := make([]string, len(binding.Members), len(binding.Members)+1)
		copy(members, binding.Members)
		bindings[i].Members = append(members, member)
		policy.Bindings = bindings
		return policy
	}

	policy.Bindings = append(bindings, cloud.PolicyBinding{
		Role:    role,
		Members: []string{member},
	})
	return policy
}

// samePermissions compares two permission sets ignoring order.
func samePermissions(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, permission := range a {
		set[permission] = true
	}
	for _, permission := range b {
		if !set[permission] {
			return false
		}
	}
	return true
}
