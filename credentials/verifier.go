// Package credentials verifies instance identity assertions and mints the
// scoped, time-bounded credentials a booted worker uses to join its pool.
package credentials

import (
	"context"

	"github.com/golang-jwt/jwt/v5"

	fleet "github.com/fleetworks/fleet-provider"
)

// TokenVerifier is the identity-token verification capability. Verify checks
// the token's signature and audience and returns the cloud-attested identity
// payload. A failed verification returns a fleet.AuthenticationError.
type TokenVerifier interface {
	Verify(ctx context.Context, token, audience string) (*fleet.InstanceIdentity, error)
}

// IdentityClaims is the claim set carried by a cloud instance identity
// token. The service-account subject rides in the registered sub claim.
type IdentityClaims struct {
	// Project is the cloud project the instance runs in.
	Project string `json:"project"`

	// InstanceID is the cloud-assigned instance identifier.
	InstanceID string `json:"instance_id"`

	jwt.RegisteredClaims
}

// JWTVerifier verifies identity tokens signed by the cloud platform.
type JWTVerifier struct {
	keyFunc jwt.Keyfunc
}

// NewJWTVerifier creates a verifier that resolves signing keys through
// keyFunc, typically backed by the platform's published key set.
func NewJWTVerifier(keyFunc jwt.Keyfunc) *JWTVerifier {
	return &JWTVerifier{keyFunc: keyFunc}
}

// Verify implements TokenVerifier.
func (v *JWTVerifier) Verify(ctx context.Context, token, audience string) (*fleet.InstanceIdentity, error) {
	claims := &IdentityClaims{}

	parsed, err := jwt.ParseWithClaims(token, claims, v.keyFunc,
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
	)
	if err != nil {
		return nil, &fleet.AuthenticationError{Reason: "invalid identity token", Err: err}
	}
	if !parsed.Valid {
		return nil, &fleet.AuthenticationError{Reason: "invalid identity token"}
	}

	return &fleet.InstanceIdentity{
		Project:        claims.Project,
		InstanceID:     claims.InstanceID,
		ServiceAccount: claims.Subject,
	}, nil
}

// MockTokenVerifier is a configurable mock implementation of TokenVerifier
// for use in tests.
type MockTokenVerifier struct {
	// VerifyFunc is called by Verify if set.
	VerifyFunc func(ctx context.Context, token, audience string) (*fleet.InstanceIdentity, error)

	// Call tracking
	VerifyCalls []VerifyCall
}

// VerifyCall records one Verify invocation.
type VerifyCall struct {
	Token    string
	Audience string
}

// NewMockTokenVerifier creates a new mock token verifier.
func NewMockTokenVerifier() *MockTokenVerifier {
	return &MockTokenVerifier{}
}

// Verify implements TokenVerifier.
func (m *MockTokenVerifier) Verify(ctx context.Context, token, audience string) (*fleet.InstanceIdentity, error) {
	m.VerifyCalls = append(m.VerifyCalls, VerifyCall{Token: token, Audience: audience})

	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, token, audience)
	}

	return nil, &fleet.AuthenticationError{Reason: "no identity configured"}
}
