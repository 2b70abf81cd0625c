// Package auth verifies bearer tokens on inbound HTTP requests and turns
// their claims into a tenant.Context. Minting tokens is out of scope —
// this package only verifies what an external identity provider already
// issued, built on golang-jwt/jwt/v5.
package auth

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sansten/memoryos/pkg/config"
)

// ErrMissingToken is returned when no bearer token is present on the request.
var ErrMissingToken = errors.New("auth: missing bearer token")

// Claims is the expected shape of the memoryOS access token. Roles and
// ClearanceLevel map directly onto tenant.Context fields.
type Claims struct {
	jwt.RegisteredClaims
	OrganizationID string   `json:"org_id"`
	Roles          []string `json:"roles"`
	ClearanceLevel int      `json:"clearance_level"`
}

// Verifier validates bearer tokens against a single HMAC signing key read
// from the environment variable named by config.JWTConfig.SigningKeyEnv.
// Constructed once at startup; stateless and safe for concurrent use.
type Verifier struct {
	key       []byte
	issuer    string
	audience  string
	clockSkew time.Duration
}

// NewVerifier reads the signing key from the environment and returns a
// Verifier. Returns an error if the env var is unset or empty — an app
// cannot start with authentication silently disabled.
func NewVerifier(cfg *config.JWTConfig) (*Verifier, error) {
	if cfg == nil {
		return nil, errors.New("auth: nil JWTConfig")
	}
	key := os.Getenv(cfg.SigningKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("auth: environment variable %s is unset or empty", cfg.SigningKeyEnv)
	}
	return &Verifier{
		key:       []byte(key),
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		clockSkew: cfg.ClockSkew,
	}, nil
}

// Verify parses and validates raw, checking signature, expiry (with the
// configured clock skew leeway), issuer, and audience. Returns the parsed
// claims on success.
func (v *Verifier) Verify(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithLeeway(v.clockSkew)}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return v.key, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("auth: token verification failed: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("auth: token invalid")
	}
	return claims, nil
}
