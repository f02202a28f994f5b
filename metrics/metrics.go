package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// InstancesProvisionedTotal tracks the total number of accepted instance
// create requests.
var InstancesProvisionedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fleet_provider_instances_provisioned_total",
		Help: "Total accepted instance create requests",
	},
	[]string{"provider", "worker_type"},
)

// OperationsResolvedTotal tracks the total number of tracked operations
// observed in a terminal state and dropped.
var OperationsResolvedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fleet_provider_operations_resolved_total",
		Help: "Total tracked operations resolved to a terminal state",
	},
	[]string{"provider", "worker_type"},
)

// CredentialsIssuedTotal tracks the total number of credentials issued to
// verified workers.
var CredentialsIssuedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fleet_provider_credentials_issued_total",
		Help: "Total credentials issued to verified workers",
	},
	[]string{"provider", "worker_type"},
)

// WorkersTerminatedTotal tracks the total number of terminated workers.
var WorkersTerminatedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fleet_provider_workers_terminated_total",
		Help: "Total workers terminated",
	},
	[]string{"provider", "worker_type"},
)

// ErrorsReportedTotal tracks the total number of domain errors sent to the
// error side channel, by kind.
var ErrorsReportedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fleet_provider_errors_reported_total",
		Help: "Total domain errors reported, by kind",
	},
	[]string{"provider", "worker_type", "kind"},
)

// ReconcileConflictsTotal tracks the total number of write conflicts hit
// while reconciling cloud IAM resources.
var ReconcileConflictsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fleet_provider_reconcile_conflicts_total",
		Help: "Total write conflicts during IAM reconciliation",
	},
	[]string{"provider", "resource"},
)

// TrackedOperations tracks the current number of in-flight cloud operations
// per worker type.
var TrackedOperations = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "fleet_provider_tracked_operations",
		Help: "Current in-flight cloud operations",
	},
	[]string{"provider", "worker_type"},
)

// ProvisionDuration tracks the latency of one provisioning call, including
// the immediate tracking pass.
var ProvisionDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "fleet_provider_provision_duration_seconds",
		Help:    "Latency of one provisioning call",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"provider"},
)

// TickDuration tracks the latency of one full control-loop tick for a worker
// type.
var TickDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "fleet_provider_tick_duration_seconds",
		Help:    "Latency of one control-loop tick per worker type",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"provider", "worker_type"},
)
