package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sansten/memoryos/pkg/apperrors"
)

// errorResponse is the uniform error shape returned on every failure:
// {detail, code}.
type errorResponse struct {
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

// writeError maps a service-layer error to its HTTP status/code pair and
// writes the uniform error body, grounded on the established
// mapServiceError convention.
func writeError(c *gin.Context, err error) {
	if apperrors.IsValidationError(err) {
		c.JSON(http.StatusUnprocessableEntity, errorResponse{Detail: err.Error(), Code: "validation_error"})
		return
	}

	switch {
	case errors.Is(err, apperrors.ErrNotFound), errors.Is(err, apperrors.ErrTenantMismatch):
		c.JSON(http.StatusNotFound, errorResponse{Detail: "not found", Code: "not_found"})
	case errors.Is(err, apperrors.ErrAuthorizationDenied):
		c.JSON(http.StatusForbidden, errorResponse{Detail: "permission denied", Code: "authorization_denied"})
	case errors.Is(err, apperrors.ErrConflict):
		c.JSON(http.StatusConflict, errorResponse{Detail: err.Error(), Code: "conflict"})
	case errors.Is(err, apperrors.ErrQuotaExhausted):
		c.JSON(http.StatusTooManyRequests, errorResponse{Detail: "quota exhausted", Code: "quota_exhausted"})
	case errors.Is(err, apperrors.ErrUpstreamUnavailable):
		c.JSON(http.StatusServiceUnavailable, errorResponse{Detail: "upstream unavailable", Code: "upstream_unavailable"})
	case errors.Is(err, apperrors.ErrLegalHold):
		c.JSON(http.StatusConflict, errorResponse{Detail: err.Error(), Code: "legal_hold"})
	default:
		slog.Error("unexpected internal error", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Detail: "internal server error", Code: "internal"})
	}
}

func writeUnauthorized(c *gin.Context, detail string) {
	c.JSON(http.StatusUnauthorized, errorResponse{Detail: detail, Code: "unauthorized"})
}
