package credentials

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fleet "github.com/fleetworks/fleet-provider"
)

const testAudience = "https://fleet.example.com"

func newSigningKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims IdentityClaims) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func validClaims() IdentityClaims {
	return IdentityClaims{
		Project:    "project-1",
		InstanceID: "1234567",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "workers@project-1.iam.example.com",
			Audience:  jwt.ClaimStrings{testAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func keyFuncFor(key *rsa.PrivateKey) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		return &key.PublicKey, nil
	}
}

func TestJWTVerifier_ValidToken(t *testing.T) {
	key := newSigningKey(t)
	verifier := NewJWTVerifier(keyFuncFor(key))

	token := signToken(t, key, validClaims())

	identity, err := verifier.Verify(context.Background(), token, testAudience)

	require.NoError(t, err)
	assert.Equal(t, "project-1", identity.Project)
	assert.Equal(t, "1234567", identity.InstanceID)
	assert.Equal(t, "workers@project-1.iam.example.com", identity.ServiceAccount)
}

func TestJWTVerifier_WrongAudienceRejected(t *testing.T) {
	key := newSigningKey(t)
	verifier := NewJWTVerifier(keyFuncFor(key))

	claims := validClaims()
	claims.Audience = jwt.ClaimStrings{"https://someone-else.example.com"}
	token := signToken(t, key, claims)

	_, err := verifier.Verify(context.Background(), token, testAudience)

	require.Error(t, err)
	assert.True(t, fleet.IsAuthenticationError(err))
}

func TestJWTVerifier_ExpiredTokenRejected(t *testing.T) {
	key := newSigningKey(t)
	verifier := NewJWTVerifier(keyFuncFor(key))

	claims := validClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	token := signToken(t, key, claims)

	_, err := verifier.Verify(context.Background(), token, testAudience)

	require.Error(t, err)
	assert.True(t, fleet.IsAuthenticationError(err))
}

func TestJWTVerifier_WrongKeyRejected(t *testing.T) {
	signingKey := newSigningKey(t)
	otherKey := newSigningKey(t)
	verifier := NewJWTVerifier(keyFuncFor(otherKey))

	token := signToken(t, signingKey, validClaims())

	_, err := verifier.Verify(context.Background(), token, testAudience)

	require.Error(t, err)
	assert.True(t, fleet.IsAuthenticationError(err))
}

func TestJWTVerifier_SymmetricAlgorithmRejected(t *testing.T) {
	key := newSigningKey(t)
	verifier := NewJWTVerifier(keyFuncFor(key))

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims()).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = verifier.Verify(context.Background(), signed, testAudience)

	require.Error(t, err)
	assert.True(t, fleet.IsAuthenticationError(err))
}

func TestJWTVerifier_GarbageTokenRejected(t *testing.T) {
	key := newSigningKey(t)
	verifier := NewJWTVerifier(keyFuncFor(key))

	_, err := verifier.Verify(context.Background(), "not-a-token", testAudience)

	require.Error(t, err)
	assert.True(t, fleet.IsAuthenticationError(err))
}
