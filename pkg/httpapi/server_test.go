package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestNewServerPanicsOnNilDeps(t *testing.T) {
	assert.Panics(t, func() { NewServer(nil, nil, nil, nil, nil, nil) })
}

func TestRolloutsUnavailableWritesServiceUnavailable(t *testing.T) {
	s := &Server{}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	unavailable := s.rolloutsUnavailable(c)

	assert.True(t, unavailable)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
