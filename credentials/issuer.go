package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	fleet "github.com/fleetworks/fleet-provider"
	"github.com/fleetworks/fleet-provider/store"
)

const (
	// CredentialBackdate pushes the validity start into the past to
	// tolerate clock skew between the worker and the issuer.
	CredentialBackdate = 15 * time.Minute

	// CredentialLifetime is how long an issued credential stays valid.
	CredentialLifetime = 96 * time.Hour
)

// Config holds the dependencies and identity of an Issuer.
type Config struct {
	// Verifier checks identity tokens. Required.
	Verifier TokenVerifier

	// Workers is consulted for the Worker row matching a verified
	// instance. Required.
	Workers store.WorkerStore

	// Project is the cloud project this provider provisions into. Required.
	Project string

	// ServiceAccount is the bootstrap service-account email instances run
	// as. A token attesting any other subject is rejected. Required.
	ServiceAccount string

	// ProvisionerID identifies the fleet-manager deployment. Required.
	ProvisionerID string

	// ProviderID is this provider's tag. Required.
	ProviderID string

	// RootURL is the expected token audience. Required.
	RootURL string

	// Now returns the issuance time. Defaults to time.Now.
	Now func() time.Time

	// Logger is used for diagnostic output. Defaults to a no-op logger.
	Logger *zerolog.Logger
}

// Issuer turns a verified instance identity into a scoped credential.
type Issuer struct {
	verifier TokenVerifier
	workers  store.WorkerStore
	logger   zerolog.Logger

	project        string
	serviceAccount string
	provisionerID  string
	providerID     string
	rootURL        string
	now            func() time.Time
}

// New creates an Issuer from config.
func New(config Config) (*Issuer, error) {
	if config.Verifier == nil {
		return nil, errors.New("token verifier is required")
	}
	if config.Workers == nil {
		return nil, errors.New("worker store is required")
	}
	if config.Project == "" {
		return nil, errors.New("project is required")
	}
	if config.ServiceAccount == "" {
		return nil, errors.New("service account is required")
	}
	if config.ProvisionerID == "" {
		return nil, errors.New("provisioner id is required")
	}
	if config.ProviderID == "" {
		return nil, errors.New("provider id is required")
	}
	if config.RootURL == "" {
		return nil, errors.New("root URL is required")
	}

	now := config.Now
	if now == nil {
		now = time.Now
	}

	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = *config.Logger
	}

	return &Issuer{
		verifier:       config.Verifier,
		workers:        config.Workers,
		logger:         logger,
		project:        config.Project,
		serviceAccount: config.ServiceAccount,
		provisionerID:  config.ProvisionerID,
		providerID:     config.ProviderID,
		rootURL:        config.RootURL,
		now:            now,
	}, nil
}

// VerifyIdentity validates an instance's identity token and, when every
// check passes, marks the matching Worker row credentialed and mints a
// credential for it. Each check is a hard failure: nothing is retried and
// no credential is issued on any mismatch.
func (i *Issuer) VerifyIdentity(ctx context.Context, token string, workerType *fleet.WorkerType) (fleet.Credential, error) {
	identity, err := i.verifier.Verify(ctx, token, i.rootURL)
	if err != nil {
		return fleet.Credential{}, err
	}

	if identity.Project != i.project {
		return fleet.Credential{}, &fleet.IdentityError{
			Field:    "project",
			Got:      identity.Project,
			Expected: i.project,
		}
	}

	// The attested subject must be the provider's own bootstrap service
	// account. This is the defense against an unrelated instance in the
	// same project claiming a worker's credentials.
	if identity.ServiceAccount != i.serviceAccount {
		return fleet.Credential{}, &fleet.IdentityError{
			Field:    "serviceAccount",
			Got:      identity.ServiceAccount,
			Expected: i.serviceAccount,
		}
	}

	workerID := fleet.WorkerID(i.providerID, identity.InstanceID)
	if _, err := i.workers.Get(ctx, workerType.Name, workerID); err != nil {
		if errors.Is(err, store.ErrWorkerNotFound) {
			return fleet.Credential{}, fmt.Errorf("no worker %s for worker type %s: %w", workerID, workerType.Name, fleet.ErrWorkerNotFound)
		}
		return fleet.Credential{}, fmt.Errorf("failed to load worker %s: %w", workerID, err)
	}

	if _, err := i.workers.Modify(ctx, workerType.Name, workerID, func(w *fleet.Worker) error {
		credentialed := true
		w.Credentialed = &credentialed
		return nil
	}); err != nil {
		return fleet.Credential{}, fmt.Errorf("failed to mark worker %s credentialed: %w", workerID, err)
	}

	issued := i.mint(workerType.Name, workerID, identity.InstanceID)

	i.logger.Info().
		Str("worker_type", string(workerType.Name)).
		Str("worker_id", workerID).
		Str("client_id", issued.ClientID).
		Msg("credential issued")

	return issued, nil
}

func (i *Issuer) mint(workerType fleet.WorkerTypeName, workerID, instanceID string) fleet.Credential {
	now := i.now()

	return fleet.Credential{
		ClientID: fmt.Sprintf("worker/%s/%s/%s", i.providerID, i.project, instanceID),
		Scopes: []string{
			fmt.Sprintf("assume:worker-type:%s/%s", i.provisionerID, workerType),
			fmt.Sprintf("assume:worker-id:%s", workerID),
		},
		Start:  now.Add(-CredentialBackdate),
		Expiry: now.Add(CredentialLifetime),
	}
}
