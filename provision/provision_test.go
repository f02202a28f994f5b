package provision

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fleet "github.com/fleetworks/fleet-provider"
	"github.com/fleetworks/fleet-provider/cloud"
	"github.com/fleetworks/fleet-provider/store/memory"
	"github.com/fleetworks/fleet-provider/tracker"
)

type fixture struct {
	compute     *cloud.MockCompute
	operations  *cloud.MockOperations
	workerTypes *memory.WorkerTypes
	workers     *memory.Workers
	reporter    *fleet.MockErrorReporter
	provisioner *Provisioner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		compute:     cloud.NewMockCompute(),
		operations:  cloud.NewMockOperations(),
		workerTypes: memory.NewWorkerTypes(),
		workers:     memory.NewWorkers(),
		reporter:    fleet.NewMockErrorReporter(),
	}

	opTracker, err := tracker.New(tracker.Config{
		Operations:  f.operations,
		WorkerTypes: f.workerTypes,
		Reporter:    f.reporter,
	})
	require.NoError(t, err)

	f.provisioner, err = New(Config{
		Compute:        f.compute,
		WorkerTypes:    f.workerTypes,
		Workers:        f.workers,
		Tracker:        opTracker,
		Reporter:       f.reporter,
		ProvisionerID:  "fleet-manager-1",
		ProviderID:     "cloud-east",
		RootURL:        "https://fleet.example.com",
		CredentialURL:  "https://fleet.example.com/credentials",
		ServiceAccount: "workers@project-1.iam.example.com",
	})
	require.NoError(t, err)

	return f
}

func (f *fixture) putWorkerType(t *testing.T, regions ...string) fleet.WorkerType {
	t.Helper()

	workerType := fleet.WorkerType{
		Name: "wt1",
		Config: fleet.WorkerTypeConfig{
			Regions:     regions,
			MachineType: "n2-standard-4",
			Image:       "worker-image-v3",
			Network:     "default",
		},
	}
	require.NoError(t, f.workerTypes.Put(context.Background(), workerType))
	return workerType
}

// keepPending makes tracked operations survive the immediate tracking pass.
func (f *fixture) keepPending() {
	f.operations.GetRegionOperationFunc = func(ctx context.Context, region, name string) (*cloud.Operation, error) {
		return &cloud.Operation{Name: name, Region: region, Status: cloud.OperationPending}, nil
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	f := newFixture(t)
	_, err = New(Config{
		Compute:     f.compute,
		WorkerTypes: f.workerTypes,
		Workers:     f.workers,
		Reporter:    f.reporter,
	})
	require.Error(t, err, "tracker is required")
}

func TestProvision_CreatesWorkerRowWithNilCredentialed(t *testing.T) {
	f := newFixture(t)
	f.keepPending()
	f.compute.InsertInstanceFunc = func(ctx context.Context, req cloud.InstanceRequest) (*cloud.Operation, error) {
		return &cloud.Operation{Name: "op-1", Region: req.Region, Status: cloud.OperationRunning, TargetID: "1234567"}, nil
	}

	workerType := f.putWorkerType(t, "us-east1")

	require.NoError(t, f.provisioner.Provision(context.Background(), &workerType))

	workers, err := f.workers.ListByWorkerType(context.Background(), "wt1")
	require.NoError(t, err)
	require.Len(t, workers, 1)
	assert.Equal(t, "cloud-east-1234567", workers[0].WorkerID)
	assert.Equal(t, "cloud-east", workers[0].Provider)
	assert.Nil(t, workers[0].Credentialed)
	assert.False(t, workers[0].Created.IsZero())
}

func TestProvision_RegistersExactlyOneOperation(t *testing.T) {
	f := newFixture(t)
	f.keepPending()

	workerType := f.putWorkerType(t, "us-east1")

	require.NoError(t, f.provisioner.Provision(context.Background(), &workerType))

	require.Len(t, workerType.ProviderData.TrackedOperations, 1)
	assert.Equal(t, "us-east1", workerType.ProviderData.TrackedOperations[0].Region)

	persisted, err := f.workerTypes.Get(context.Background(), "wt1")
	require.NoError(t, err)
	assert.Equal(t, workerType.ProviderData.TrackedOperations, persisted.ProviderData.TrackedOperations)
}

func TestProvision_FastOperationCompletesWithinSameTick(t *testing.T) {
	f := newFixture(t)
	// Default mock operation status is DONE with no errors: the immediate
	// tracking pass should resolve the just-registered operation.
	workerType := f.putWorkerType(t, "us-east1")

	require.NoError(t, f.provisioner.Provision(context.Background(), &workerType))

	assert.Empty(t, workerType.ProviderData.TrackedOperations)
	assert.Empty(t, f.reporter.Reports)

	workers, err := f.workers.ListByWorkerType(context.Background(), "wt1")
	require.NoError(t, err)
	assert.Len(t, workers, 1, "worker row persists after the operation completes")
}

func TestProvision_PlacementWithinConfiguredBounds(t *testing.T) {
	f := newFixture(t)
	f.keepPending()

	workerType := f.putWorkerType(t, "us-east1", "us-west1", "europe-west4")

	for i := 0; i < 20; i++ {
		require.NoError(t, f.provisioner.Provision(context.Background(), &workerType))
	}

	regions := map[string]bool{"us-east1": true, "us-west1": true, "europe-west4": true}
	for _, req := range f.compute.InsertInstanceCalls {
		assert.True(t, regions[req.Region], "region %s not in configured list", req.Region)
		// The mock zone list for a region is <region>-a and <region>-b.
		assert.Contains(t, []string{req.Region + "-a", req.Region + "-b"}, req.Zone)
	}
}

func TestProvision_ZoneListCachedPerRegion(t *testing.T) {
	f := newFixture(t)
	f.keepPending()

	workerType := f.putWorkerType(t, "us-east1")

	require.NoError(t, f.provisioner.Provision(context.Background(), &workerType))
	require.NoError(t, f.provisioner.Provision(context.Background(), &workerType))
	require.NoError(t, f.provisioner.Provision(context.Background(), &workerType))

	assert.Len(t, f.compute.ListZonesCalls, 1, "zone list is resolved once per region per process")
}

func TestProvision_RequestCarriesIdempotencyTokenAndMetadata(t *testing.T) {
	f := newFixture(t)
	f.keepPending()

	workerType := f.putWorkerType(t, "us-east1")
	workerType.Config.UserData = json.RawMessage(`{"shutdown":{"enabled":true}}`)
	require.NoError(t, f.workerTypes.Put(context.Background(), workerType))

	require.NoError(t, f.provisioner.Provision(context.Background(), &workerType))

	require.Len(t, f.compute.InsertInstanceCalls, 1)
	req := f.compute.InsertInstanceCalls[0]

	_, err := uuid.Parse(req.RequestID)
	require.NoError(t, err, "request id must be a UUID")

	assert.Equal(t, "wt1", req.Labels["worker-type"])
	assert.Equal(t, "workers@project-1.iam.example.com", req.ServiceAccount)
	assert.Equal(t, "fleet-manager-1", req.Metadata["provisioner-id"])
	assert.Equal(t, "wt1", req.Metadata["worker-type"])
	assert.Equal(t, "cloud-east-us-east1", req.Metadata["worker-group"])
	assert.Equal(t, "https://fleet.example.com/credentials", req.Metadata["credential-url"])
	assert.Equal(t, "https://fleet.example.com", req.Metadata["root-url"])
	assert.JSONEq(t, `{"shutdown":{"enabled":true}}`, req.Metadata["user-data"])
	assert.Equal(t, "n2-standard-4", req.MachineType)
	assert.Equal(t, "worker-image-v3", req.Image)
}

func TestProvision_FreshTokenPerCall(t *testing.T) {
	f := newFixture(t)
	f.keepPending()

	workerType := f.putWorkerType(t, "us-east1")

	require.NoError(t, f.provisioner.Provision(context.Background(), &workerType))
	require.NoError(t, f.provisioner.Provision(context.Background(), &workerType))

	require.Len(t, f.compute.InsertInstanceCalls, 2)
	assert.NotEqual(t, f.compute.InsertInstanceCalls[0].RequestID, f.compute.InsertInstanceCalls[1].RequestID)
}

func TestProvision_CreationFailureShortCircuits(t *testing.T) {
	f := newFixture(t)
	f.compute.InsertInstanceFunc = func(ctx context.Context, req cloud.InstanceRequest) (*cloud.Operation, error) {
		return nil, &cloud.APIError{Errors: []cloud.OperationError{
			{Code: "QUOTA_EXCEEDED", Message: "quota exceeded"},
			{Code: "ZONE_RESOURCE_POOL_EXHAUSTED", Message: "no capacity"},
		}}
	}

	workerType := f.putWorkerType(t, "us-east1")

	require.NoError(t, f.provisioner.Provision(context.Background(), &workerType), "a failed create is not a fatal error")

	reports := f.reporter.ReportsOfKind(fleet.ErrorKindCreation)
	require.Len(t, reports, 2)
	assert.Equal(t, "quota exceeded", reports[0].Description)
	assert.Equal(t, "QUOTA_EXCEEDED", reports[0].Extra["code"])
	assert.Equal(t, "no capacity", reports[1].Description)

	// Nothing below the create may have run.
	workers, err := f.workers.ListByWorkerType(context.Background(), "wt1")
	require.NoError(t, err)
	assert.Empty(t, workers)

	persisted, err := f.workerTypes.Get(context.Background(), "wt1")
	require.NoError(t, err)
	assert.Empty(t, persisted.ProviderData.TrackedOperations)
}

func TestProvision_PlainCreationErrorReportedOnce(t *testing.T) {
	f := newFixture(t)
	f.compute.InsertInstanceFunc = func(ctx context.Context, req cloud.InstanceRequest) (*cloud.Operation, error) {
		return nil, assertableError("instance insert rejected")
	}

	workerType := f.putWorkerType(t, "us-east1")

	require.NoError(t, f.provisioner.Provision(context.Background(), &workerType))

	reports := f.reporter.ReportsOfKind(fleet.ErrorKindCreation)
	require.Len(t, reports, 1)
	assert.Equal(t, "instance insert rejected", reports[0].Description)
	assert.Empty(t, reports[0].Extra["code"])
}

type assertableError string

func (e assertableError) Error() string { return string(e) }

func TestProvision_NoRegionsFails(t *testing.T) {
	f := newFixture(t)

	workerType := f.putWorkerType(t)

	err := f.provisioner.Provision(context.Background(), &workerType)

	require.ErrorIs(t, err, fleet.ErrNoRegions)
	assert.Empty(t, f.compute.InsertInstanceCalls)
}

func TestProvision_MissingImageReportedAsUnknownImage(t *testing.T) {
	f := newFixture(t)

	workerType := fleet.WorkerType{
		Name:   "wt1",
		Config: fleet.WorkerTypeConfig{Regions: []string{"us-east1"}},
	}
	require.NoError(t, f.workerTypes.Put(context.Background(), workerType))

	require.NoError(t, f.provisioner.Provision(context.Background(), &workerType))

	reports := f.reporter.ReportsOfKind(fleet.ErrorKindUnknownImage)
	require.Len(t, reports, 1)
	assert.Empty(t, f.compute.InsertInstanceCalls)
}

func TestProvision_ZoneListFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.compute.ListZonesFunc = func(ctx context.Context, region string) ([]string, error) {
		return nil, assertableError("zone listing unavailable")
	}

	workerType := f.putWorkerType(t, "us-east1")

	err := f.provisioner.Provision(context.Background(), &workerType)

	require.Error(t, err)
	assert.Empty(t, f.compute.InsertInstanceCalls)
}
