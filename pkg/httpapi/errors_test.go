package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/sansten/memoryos/pkg/apperrors"
)

func serveWriteError(err error) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	writeError(c, err)
	return w
}

func TestWriteErrorMapsNotFound(t *testing.T) {
	w := serveWriteError(apperrors.ErrNotFound)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWriteErrorMapsValidation(t *testing.T) {
	w := serveWriteError(apperrors.NewValidationError("title", "required"))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestWriteErrorMapsAuthorizationDenied(t *testing.T) {
	w := serveWriteError(apperrors.ErrAuthorizationDenied)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWriteErrorMapsConflict(t *testing.T) {
	w := serveWriteError(apperrors.ErrConflict)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestWriteErrorMapsQuotaExhausted(t *testing.T) {
	w := serveWriteError(apperrors.ErrQuotaExhausted)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestWriteErrorMapsUpstreamUnavailable(t *testing.T) {
	w := serveWriteError(apperrors.ErrUpstreamUnavailable)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestWriteErrorDefaultsToInternal(t *testing.T) {
	w := serveWriteError(assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
