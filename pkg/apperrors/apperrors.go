// Package apperrors defines the error-kind sentinels shared by every
// component, in the established sentinel-error idiom: plain errors.New
// values for matching with errors.Is, plus one typed error for field-level
// validation detail.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks a resource absent or soft-deleted. Maps to HTTP 404.
	ErrNotFound = errors.New("not found")

	// ErrTenantMismatch marks a resource that belongs to another organization.
	// Externally this collapses to the same 404 as ErrNotFound to avoid
	// information disclosure; internally the access-decision method is
	// "org_isolation".
	ErrTenantMismatch = errors.New("tenant mismatch")

	// ErrAuthorizationDenied marks a permission-kernel "allowed=false" outcome
	// surfaced to a caller that must fail the request. The kernel itself
	// never returns this as a Go error (see pkg/permission) — only HTTP
	// mapping layers raise it.
	ErrAuthorizationDenied = errors.New("authorization denied")

	// ErrConflict marks a uniqueness violation.
	ErrConflict = errors.New("conflict")

	// ErrQuotaExhausted marks a rate/capacity limit hit.
	ErrQuotaExhausted = errors.New("quota exhausted")

	// ErrUpstreamUnavailable marks a degraded but non-fatal dependency
	// failure (vector index down, cache down).
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrLegalHold marks an attempted delete of a memory under legal hold.
	ErrLegalHold = errors.New("memory is under legal hold")

	// ErrInternal marks an unexpected failure; the underlying cause is never
	// echoed to the caller.
	ErrInternal = errors.New("internal error")
)

// ValidationError is a field-scoped input validation failure. Maps to HTTP 422.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %q: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidationError reports whether err is (or wraps) a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
