package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sansten/memoryos/pkg/config"
)

func signToken(t *testing.T, key []byte, claims *Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString(key)
	require.NoError(t, err)
	return s
}

func TestNewVerifierFailsWhenKeyEnvUnset(t *testing.T) {
	t.Setenv("MEMORYOS_TEST_JWT_KEY", "")
	_, err := NewVerifier(&config.JWTConfig{SigningKeyEnv: "MEMORYOS_TEST_JWT_KEY"})
	assert.Error(t, err)
}

func TestVerifyRoundTrips(t *testing.T) {
	t.Setenv("MEMORYOS_TEST_JWT_KEY", "s3cr3t")
	v, err := NewVerifier(&config.JWTConfig{SigningKeyEnv: "MEMORYOS_TEST_JWT_KEY", Issuer: "memoryos", ClockSkew: time.Minute})
	require.NoError(t, err)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "memoryos",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		OrganizationID: "org-1",
		Roles:          []string{"member"},
		ClearanceLevel: 2,
	}
	raw := signToken(t, []byte("s3cr3t"), claims)

	got, err := v.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "org-1", got.OrganizationID)
	assert.Equal(t, []string{"member"}, got.Roles)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	t.Setenv("MEMORYOS_TEST_JWT_KEY", "s3cr3t")
	v, err := NewVerifier(&config.JWTConfig{SigningKeyEnv: "MEMORYOS_TEST_JWT_KEY"})
	require.NoError(t, err)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
		OrganizationID: "org-1",
	}
	raw := signToken(t, []byte("s3cr3t"), claims)

	_, err = v.Verify(raw)
	assert.Error(t, err)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	t.Setenv("MEMORYOS_TEST_JWT_KEY", "s3cr3t")
	v, err := NewVerifier(&config.JWTConfig{SigningKeyEnv: "MEMORYOS_TEST_JWT_KEY"})
	require.NoError(t, err)

	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}}
	raw := signToken(t, []byte("wrong-key"), claims)

	_, err = v.Verify(raw)
	assert.Error(t, err)
}

func TestExtractBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer abc.def.ghi")
	tok, err := ExtractBearerToken(r)
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", tok)
}

func TestExtractBearerTokenMissing(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := ExtractBearerToken(r)
	assert.ErrorIs(t, err, ErrMissingToken)
}
