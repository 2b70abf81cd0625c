package auth

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/sansten/memoryos/pkg/tenant"
)

// ExtractBearerToken pulls the raw token out of an "Authorization: Bearer
// <token>" header. Returns ErrMissingToken when absent or malformed.
func ExtractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", ErrMissingToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// ContextFromClaims builds a tenant.Context from verified claims plus the
// per-request trace id header (falling back to a freshly generated one).
func ContextFromClaims(claims *Claims, traceID string) *tenant.Context {
	if traceID == "" {
		traceID = uuid.NewString()
	}
	return &tenant.Context{
		UserID:         claims.Subject,
		OrganizationID: claims.OrganizationID,
		Roles:          claims.Roles,
		ClearanceLevel: claims.ClearanceLevel,
		TraceID:        traceID,
	}
}
