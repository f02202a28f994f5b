package cloud

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound indicates the cloud does not know the requested resource.
// Callers treat this as an expected branch, never as a failure.
var ErrNotFound = errors.New("resource not found")

// ConflictError indicates a write lost a race against a concurrent mutation
// of the same resource. The caller re-reads and retries.
type ConflictError struct {
	// Resource names the contended resource.
	Resource string

	Err error
}

func (e *ConflictError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("concurrent modification of %s: %v", e.Resource, e.Err)
	}
	return fmt.Sprintf("concurrent modification of %s", e.Resource)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// APIError is a cloud API failure that may carry several individual errors,
// e.g. a rejected instance insert listing every invalid field.
type APIError struct {
	// Errors are the individual failures. Never empty.
	Errors []OperationError
}

func (e *APIError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, opErr := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", opErr.Code, opErr.Message))
	}
	return "cloud API error: " + strings.Join(msgs, "; ")
}

// IsNotFound reports whether err means the resource does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err is a concurrent-modification conflict.
func IsConflict(err error) bool {
	var conflictErr *ConflictError
	return errors.As(err, &conflictErr)
}

// ErrorsOf extracts the individual failures from err. An APIError yields its
// error list; any other error yields a single entry with an empty code.
func ErrorsOf(err error) []OperationError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Errors
	}
	return []OperationError{{Message: err.Error()}}
}
