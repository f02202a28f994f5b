package fleet

import "context"

// ErrorKind classifies a reported provisioning error.
type ErrorKind string

const (
	// ErrorKindUnknownImage is reported when a worker type references an
	// image the cloud does not know.
	ErrorKindUnknownImage ErrorKind = "unknown-image"

	// ErrorKindCreation is reported when an instance create request fails.
	ErrorKindCreation ErrorKind = "creation-error"

	// ErrorKindOperation is reported when a tracked cloud operation
	// completes carrying errors.
	ErrorKindOperation ErrorKind = "operation-error"
)

// ErrorReport is a single observability event attached to a worker type.
type ErrorReport struct {
	// WorkerType names the pool the error belongs to.
	WorkerType WorkerTypeName

	// Kind classifies the error.
	Kind ErrorKind

	// Title is a short human-readable summary.
	Title string

	// Description carries the detail, typically the cloud error message.
	Description string

	// Extra holds structured diagnostic fields.
	Extra map[string]string
}

// ErrorReporter is the fire-and-forget error side channel. Reports record
// domain errors against a worker type for operators to inspect; the provider
// never retries a report and continues execution after reporting.
type ErrorReporter interface {
	ReportError(ctx context.Context, report ErrorReport)
}
