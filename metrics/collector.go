package metrics

// Collector wraps metrics and provides helper methods with the provider
// label pre-filled.
type Collector struct {
	provider string
}

// NewCollector creates a new Collector for the given provider tag.
func NewCollector(provider string) *Collector {
	return &Collector{provider: provider}
}

// IncInstancesProvisioned increments the provisioned-instances counter.
func (c *Collector) IncInstancesProvisioned(workerType string) {
	InstancesProvisionedTotal.WithLabelValues(c.provider, workerType).Inc()
}

// IncOperationsResolved increments the resolved-operations counter.
func (c *Collector) IncOperationsResolved(workerType string) {
	OperationsResolvedTotal.WithLabelValues(c.provider, workerType).Inc()
}

// IncCredentialsIssued increments the issued-credentials counter.
func (c *Collector) IncCredentialsIssued(workerType string) {
	CredentialsIssuedTotal.WithLabelValues(c.provider, workerType).Inc()
}

// IncWorkersTerminated increments the terminated-workers counter.
func (c *Collector) IncWorkersTerminated(workerType string) {
	WorkersTerminatedTotal.WithLabelValues(c.provider, workerType).Inc()
}

// IncErrorsReported increments the reported-errors counter for a kind.
func (c *Collector) IncErrorsReported(workerType, kind string) {
	ErrorsReportedTotal.WithLabelValues(c.provider, workerType, kind).Inc()
}

// IncReconcileConflicts increments the reconcile-conflicts counter for a
// resource.
func (c *Collector) IncReconcileConflicts(resource string) {
	ReconcileConflictsTotal.WithLabelValues(c.provider, resource).Inc()
}

// SetTrackedOperations sets the in-flight operations gauge for a worker
// type.
func (c *Collector) SetTrackedOperations(workerType string, count int) {
	TrackedOperations.WithLabelValues(c.provider, workerType).Set(float64(count))
}

// ObserveProvisionDuration records one provisioning-call duration.
func (c *Collector) ObserveProvisionDuration(seconds float64) {
	ProvisionDuration.WithLabelValues(c.provider).Observe(seconds)
}

// ObserveTickDuration records one control-loop tick duration for a worker
// type.
func (c *Collector) ObserveTickDuration(workerType string, seconds float64) {
	TickDuration.WithLabelValues(c.provider, workerType).Observe(seconds)
}
