package metrics

import (
	"context"

	fleet "github.com/fleetworks/fleet-provider"
)

// Reporter decorates an ErrorReporter, counting every report by kind before
// forwarding it. Wrap the real reporter with this when wiring the provider so
// the error side channel shows up on the dashboard too.
type Reporter struct {
	next      fleet.ErrorReporter
	collector *Collector
}

// NewReporter creates a counting reporter in front of next.
func NewReporter(next fleet.ErrorReporter, collector *Collector) *Reporter {
	return &Reporter{next: next, collector: collector}
}

// ReportError implements fleet.ErrorReporter.
func (r *Reporter) ReportError(ctx context.Context, report fleet.ErrorReport) {
	r.collector.IncErrorsReported(string(report.WorkerType), string(report.Kind))
	r.next.ReportError(ctx, report)
}
