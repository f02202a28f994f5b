// Package provision implements the instance-provisioning step of the
// control loop: placement selection, the idempotent create request, the
// Worker row, and registration of the resulting cloud operation.
package provision

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	fleet "github.com/fleetworks/fleet-provider"
	"github.com/fleetworks/fleet-provider/cloud"
	"github.com/fleetworks/fleet-provider/store"
	"github.com/fleetworks/fleet-provider/tracker"
)

// Config holds the dependencies and identity of a Provisioner.
type Config struct {
	// Compute is the instance-creation capability. Required.
	Compute cloud.Compute

	// WorkerTypes persists tracked operations. Required.
	WorkerTypes store.WorkerTypeStore

	// Workers persists Worker rows. Required.
	Workers store.WorkerStore

	// Tracker advances tracked operations after registration. Required.
	Tracker *tracker.Tracker

	// Reporter receives creation-error events. Required.
	Reporter fleet.ErrorReporter

	// ProvisionerID identifies the fleet-manager deployment this provider
	// serves. Required.
	ProvisionerID string

	// ProviderID is this provider's tag, used to namespace worker ids and
	// worker groups. Required.
	ProviderID string

	// RootURL is the fleet manager's public service URL. Required.
	RootURL string

	// CredentialURL is where a booted instance calls back to claim
	// credentials. Required.
	CredentialURL string

	// ServiceAccount is the bootstrap service-account email attached to
	// every instance. Required.
	ServiceAccount string

	// Logger is used for diagnostic output. Defaults to a no-op logger.
	Logger *zerolog.Logger
}

// Provisioner creates compute instances for worker types that need
// capacity.
type Provisioner struct {
	compute     cloud.Compute
	workerTypes store.WorkerTypeStore
	workers     store.WorkerStore
	tracker     *tracker.Tracker
	reporter    fleet.ErrorReporter
	logger      zerolog.Logger

	provisionerID  string
	providerID     string
	rootURL        string
	credentialURL  string
	serviceAccount string

	// Region to zone-list cache. Populated lazily, never invalidated for
	// the life of the process.
	zonesMu sync.Mutex
	zones   map[string][]string
}

// New creates a Provisioner from config.
func New(config Config) (*Provisioner, error) {
	if config.Compute == nil {
		return nil, errors.New("compute capability is required")
	}
	if config.WorkerTypes == nil {
		return nil, errors.New("worker type store is required")
	}
	if config.Workers == nil {
		return nil, errors.New("worker store is required")
	}
	if config.Tracker == nil {
		return nil, errors.New("operation tracker is required")
	}
	if config.Reporter == nil {
		return nil, errors.New("error reporter is required")
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
	if config.CredentialURL == "" {
		return nil, errors.New("credential URL is required")
	}
	if config.ServiceAccount == "" {
		return nil, errors.New("service account is required")
	}

	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = *config.Logger
	}

	return &Provisioner{
		compute:        config.Compute,
		workerTypes:    config.WorkerTypes,
		workers:        config.Workers,
		tracker:        config.Tracker,
		reporter:       config.Reporter,
		logger:         logger,
		provisionerID:  config.ProvisionerID,
		providerID:     config.ProviderID,
		rootURL:        config.RootURL,
		credentialURL:  config.CredentialURL,
		serviceAccount: config.ServiceAccount,
		zones:          make(map[string][]string),
	}, nil
}

// Provision creates one instance for workerType. A rejected create request
// is reported through the error side channel and ends the attempt cleanly:
// no Worker row, no tracked operation. Store and placement failures
// propagate.
//
// On success workerType is updated in place with the newly tracked
// operation (minus anything the immediate tracking pass already resolved).
func (p *Provisioner) Provision(ctx context.Context, workerType *fleet.WorkerType) error {
	if workerType.Config.Image == "" {
		p.reporter.ReportError(ctx, fleet.ErrorReport{
			WorkerType:  workerType.Name,
			Kind:        fleet.ErrorKindUnknownImage,
			Title:       "Unknown Image",
			Description: "worker type has no boot image configured",
		})
		return nil
	}

	region, zone, err := p.placement(ctx, workerType.Config.Regions)
	if err != nil {
		return err
	}

	request := p.buildRequest(workerType, region, zone)

	operation, err := p.compute.InsertInstance(ctx, request)
	if err != nil {
		for _, opErr := range cloud.ErrorsOf(err) {
			p.reporter.ReportError(ctx, fleet.ErrorReport{
				WorkerType:  workerType.Name,
				Kind:        fleet.ErrorKindCreation,
				Title:       "Instance Creation Error",
				Description: opErr.Message,
				Extra: map[string]string{
					"code":   opErr.Code,
					"region": region,
					"zone":   zone,
				},
			})
		}
		// A failed create is an observability event, not a fatal error,
		// and nothing below may run for it.
		return nil
	}

	workerID := fleet.WorkerID(p.providerID, operation.TargetID)
	worker := fleet.Worker{
		WorkerType: workerType.Name,
		WorkerID:   workerID,
		Provider:   p.providerID,
		Created:    time.Now().UTC(),
	}
	if _, err := p.workers.Create(ctx, worker); err != nil {
		return fmt.Errorf("failed to create worker row for %s: %w", workerID, err)
	}

	updated, err := p.workerTypes.Modify(ctx, workerType.Name, func(wt *fleet.WorkerType) error {
		wt.ProviderData.TrackedOperations = append(wt.ProviderData.TrackedOperations, fleet.Operation{
			Name:   operation.Name,
			Region: operation.Region,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to register operation %s: %w", operation.Name, err)
	}
	*workerType = updated

	p.logger.Info().
		Str("worker_type", string(workerType.Name)).
		Str("worker_id", workerID).
		Str("region", region).
		Str("zone", zone).
		Str("operation", operation.Name).
		Msg("instance creation accepted")

	// Drive one tracking round immediately so a fast cloud can complete
	// the operation within the same tick.
	return p.tracker.HandleOperations(ctx, workerType)
}

// placement picks a region uniformly at random from regions, then a zone
// uniformly at random from that region's zone list.
func (p *Provisioner) placement(ctx context.Context, regions []string) (region, zone string, err error) {
	if len(regions) == 0 {
		return "", "", fleet.ErrNoRegions
	}
	region = regions[rand.IntN(len(regions))]

	zones, err := p.zonesFor(ctx, region)
	if err != nil {
		return "", "", err
	}
	if len(zones) == 0 {
		return "", "", fmt.Errorf("region %s has no zones", region)
	}
	zone = zones[rand.IntN(len(zones))]

	return region, zone, nil
}

func (p *Provisioner) zonesFor(ctx context.Context, region string) ([]string, error) {
	p.zonesMu.Lock()
	cached, ok := p.zones[region]
	p.zonesMu.Unlock()
	if ok {
		return cached, nil
	}

	zones, err := p.compute.ListZones(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("failed to list zones for region %s: %w", region, err)
	}

	p.zonesMu.Lock()
	p.zones[region] = zones
	p.zonesMu.Unlock()

	return zones, nil
}

func (p *Provisioner) buildRequest(workerType *fleet.WorkerType, region, zone string) cloud.InstanceRequest {
	config := workerType.Config

	metadata := map[string]string{
		"provisioner-id": p.provisionerID,
		"worker-type":    string(workerType.Name),
		"worker-group":   p.workerGroup(region),
		"credential-url": p.credentialURL,
		"root-url":       p.rootURL,
	}
	if len(config.UserData) > 0 {
		metadata["user-data"] = string(config.UserData)
	}

	return cloud.InstanceRequest{
		Name:           instanceName(p.providerID),
		Region:         region,
		Zone:           zone,
		MachineType:    config.MachineType,
		Image:          config.Image,
		Preemptible:    config.Preemptible,
		Network:        config.Network,
		Subnetwork:     config.Subnetwork,
		DiskSizeGiB:    config.DiskSizeGiB,
		DiskType:       config.DiskType,
		ServiceAccount: p.serviceAccount,
		Labels: map[string]string{
			"worker-type": string(workerType.Name),
		},
		Metadata: metadata,
		// Fresh token per call: transport-level retries of this request
		// must not create duplicate instances.
		RequestID: uuid.NewString(),
	}
}

// workerGroup names the failure domain a worker boots into.
func (p *Provisioner) workerGroup(region string) string {
	return p.providerID + "-" + region
}

func instanceName(providerID string) string {
	return providerID + "-" + uuid.NewString()
}
