package fleet

import (
	"errors"
	"fmt"
)

var (
	// ErrWorkerNotFound indicates a credential request referenced an
	// instance this provider never provisioned, or one belonging to a
	// different worker type.
	ErrWorkerNotFound = errors.New("worker not found")

	// ErrNoRegions indicates a worker type has an empty region list, so
	// placement cannot be selected.
	ErrNoRegions = errors.New("worker type has no configured regions")
)

// AuthenticationError indicates an identity token failed cryptographic
// verification or audience checks. It always fails closed: no further
// identity checks run and no credential is issued.
type AuthenticationError struct {
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// IdentityError indicates a verified token carried an attested value that
// does not match what this provider expects. Got and Expected are kept for
// diagnostics.
type IdentityError struct {
	Field    string
	Got      string
	Expected string
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("identity mismatch on %s: got %q, expected %q", e.Field, e.Got, e.Expected)
}

// IsAuthenticationError reports whether err is an AuthenticationError.
func IsAuthenticationError(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr)
}

// IsIdentityError reports whether err is an IdentityError.
func IsIdentityError(err error) bool {
	var idErr *IdentityError
	return errors.As(err, &idErr)
}
