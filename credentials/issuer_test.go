package credentials

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fleet "github.com/fleetworks/fleet-provider"
	"github.com/fleetworks/fleet-provider/store"
	"github.com/fleetworks/fleet-provider/store/memory"
)

var issuedAt = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type issuerFixture struct {
	verifier *MockTokenVerifier
	workers  *memory.Workers
	issuer   *Issuer
}

func newIssuerFixture(t *testing.T) *issuerFixture {
	t.Helper()

	f := &issuerFixture{
		verifier: NewMockTokenVerifier(),
		workers:  memory.NewWorkers(),
	}

	issuer, err := New(Config{
		Verifier:       f.verifier,
		Workers:        f.workers,
		Project:        "project-1",
		ServiceAccount: "workers@project-1.iam.example.com",
		ProvisionerID:  "fleet-manager-1",
		ProviderID:     "cloud-east",
		RootURL:        "https://fleet.example.com",
		Now:            func() time.Time { return issuedAt },
	})
	require.NoError(t, err)
	f.issuer = issuer

	return f
}

func (f *issuerFixture) attest(identity fleet.InstanceIdentity) {
	f.verifier.VerifyFunc = func(ctx context.Context, token, audience string) (*fleet.InstanceIdentity, error) {
		attested := identity
		return &attested, nil
	}
}

func (f *issuerFixture) createWorker(t *testing.T, workerType fleet.WorkerTypeName, workerID string) {
	t.Helper()

	_, err := f.workers.Create(context.Background(), fleet.Worker{
		WorkerType: workerType,
		WorkerID:   workerID,
		Provider:   "cloud-east",
		Created:    issuedAt.Add(-time.Minute),
	})
	require.NoError(t, err)
}

func matchingIdentity() fleet.InstanceIdentity {
	return fleet.InstanceIdentity{
		Project:        "project-1",
		InstanceID:     "1234567",
		ServiceAccount: "workers@project-1.iam.example.com",
	}
}

func TestVerifyIdentity_IssuesCredential(t *testing.T) {
	f := newIssuerFixture(t)
	f.attest(matchingIdentity())
	f.createWorker(t, "wt1", "cloud-east-1234567")

	workerType := fleet.WorkerType{Name: "wt1"}
	credential, err := f.issuer.VerifyIdentity(context.Background(), "token", &workerType)

	require.NoError(t, err)
	assert.Equal(t, "worker/cloud-east/project-1/1234567", credential.ClientID)
	assert.Equal(t, []string{
		"assume:worker-type:fleet-manager-1/wt1",
		"assume:worker-id:cloud-east-1234567",
	}, credential.Scopes)
	assert.Equal(t, issuedAt.Add(-15*time.Minute), credential.Start)
	assert.Equal(t, issuedAt.Add(96*time.Hour), credential.Expiry)
}

func TestVerifyIdentity_VerifiesAgainstRootURLAudience(t *testing.T) {
	f := newIssuerFixture(t)
	f.attest(matchingIdentity())
	f.createWorker(t, "wt1", "cloud-east-1234567")

	workerType := fleet.WorkerType{Name: "wt1"}
	_, err := f.issuer.VerifyIdentity(context.Background(), "token", &workerType)

	require.NoError(t, err)
	require.Len(t, f.verifier.VerifyCalls, 1)
	assert.Equal(t, "https://fleet.example.com", f.verifier.VerifyCalls[0].Audience)
}

func TestVerifyIdentity_MarksWorkerCredentialed(t *testing.T) {
	f := newIssuerFixture(t)
	f.attest(matchingIdentity())
	f.createWorker(t, "wt1", "cloud-east-1234567")

	workerType := fleet.WorkerType{Name: "wt1"}
	_, err := f.issuer.VerifyIdentity(context.Background(), "token", &workerType)
	require.NoError(t, err)

	worker, err := f.workers.Get(context.Background(), "wt1", "cloud-east-1234567")
	require.NoError(t, err)
	require.NotNil(t, worker.Credentialed)
	assert.True(t, *worker.Credentialed)
}

func TestVerifyIdentity_AuthenticationFailureStopsAllChecks(t *testing.T) {
	f := newIssuerFixture(t)
	// Default mock verifier rejects every token.
	workers := store.NewMockWorkerStore()

	issuer, err := New(Config{
		Verifier:       f.verifier,
		Workers:        workers,
		Project:        "project-1",
		ServiceAccount: "workers@project-1.iam.example.com",
		ProvisionerID:  "fleet-manager-1",
		ProviderID:     "cloud-east",
		RootURL:        "https://fleet.example.com",
	})
	require.NoError(t, err)

	workerType := fleet.WorkerType{Name: "wt1"}
	_, err = issuer.VerifyIdentity(context.Background(), "bad-token", &workerType)

	require.Error(t, err)
	assert.True(t, fleet.IsAuthenticationError(err))
	assert.Empty(t, workers.GetCalls, "no worker lookup after a failed verification")
	assert.Empty(t, workers.ModifyCalls)
}

func TestVerifyIdentity_ProjectMismatchRejected(t *testing.T) {
	f := newIssuerFixture(t)
	identity := matchingIdentity()
	identity.Project = "project-2"
	f.attest(identity)
	f.createWorker(t, "wt1", "cloud-east-1234567")

	workerType := fleet.WorkerType{Name: "wt1"}
	_, err := f.issuer.VerifyIdentity(context.Background(), "token", &workerType)

	require.Error(t, err)
	var identityErr *fleet.IdentityError
	require.ErrorAs(t, err, &identityErr)
	assert.Equal(t, "project", identityErr.Field)
	assert.Equal(t, "project-2", identityErr.Got)
	assert.Equal(t, "project-1", identityErr.Expected)
}

func TestVerifyIdentity_ServiceAccountMismatchRejected(t *testing.T) {
	f := newIssuerFixture(t)
	identity := matchingIdentity()
	identity.ServiceAccount = "intruder@project-1.iam.example.com"
	f.attest(identity)
	f.createWorker(t, "wt1", "cloud-east-1234567")

	workerType := fleet.WorkerType{Name: "wt1"}
	_, err := f.issuer.VerifyIdentity(context.Background(), "token", &workerType)

	require.Error(t, err)
	var identityErr *fleet.IdentityError
	require.ErrorAs(t, err, &identityErr)
	assert.Equal(t, "serviceAccount", identityErr.Field)

	// The worker must stay uncredentialed.
	worker, getErr := f.workers.Get(context.Background(), "wt1", "cloud-east-1234567")
	require.NoError(t, getErr)
	assert.Nil(t, worker.Credentialed)
}

func TestVerifyIdentity_UnknownInstanceRejected(t *testing.T) {
	f := newIssuerFixture(t)
	f.attest(matchingIdentity())
	// No worker row created for this instance.

	workerType := fleet.WorkerType{Name: "wt1"}
	_, err := f.issuer.VerifyIdentity(context.Background(), "token", &workerType)

	require.ErrorIs(t, err, fleet.ErrWorkerNotFound)
}

func TestVerifyIdentity_WorkerOfDifferentTypeRejected(t *testing.T) {
	f := newIssuerFixture(t)
	f.attest(matchingIdentity())
	f.createWorker(t, "wt2", "cloud-east-1234567")

	workerType := fleet.WorkerType{Name: "wt1"}
	_, err := f.issuer.VerifyIdentity(context.Background(), "token", &workerType)

	require.ErrorIs(t, err, fleet.ErrWorkerNotFound)
}
