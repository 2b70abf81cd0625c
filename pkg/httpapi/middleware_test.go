package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sansten/memoryos/pkg/auth"
	"github.com/sansten/memoryos/pkg/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestVerifier(t *testing.T, key string) *auth.Verifier {
	t.Helper()
	t.Setenv("HTTPAPI_TEST_JWT_KEY", key)
	v, err := auth.NewVerifier(&config.JWTConfig{SigningKeyEnv: "HTTPAPI_TEST_JWT_KEY"})
	require.NoError(t, err)
	return v
}

func signTestToken(t *testing.T, key string, claims *auth.Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte(key))
	require.NoError(t, err)
	return s
}

func TestSecurityHeadersSetsExpectedHeaders(t *testing.T) {
	r := gin.New()
	r.Use(securityHeaders())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestCORSRejectsUnlistedOrigin(t *testing.T) {
	r := gin.New()
	r.Use(cors(&config.CORSConfig{AllowedOrigins: []string{"https://allowed.example"}}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSAllowsListedOrigin(t *testing.T) {
	r := gin.New()
	r.Use(cors(&config.CORSConfig{AllowedOrigins: []string{"https://allowed.example"}}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://allowed.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "https://allowed.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	v := newTestVerifier(t, "s3cr3t")
	r := gin.New()
	r.Use(requireAuth(v))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuthAcceptsValidToken(t *testing.T) {
	v := newTestVerifier(t, "s3cr3t")
	r := gin.New()
	r.Use(requireAuth(v))
	r.GET("/x", func(c *gin.Context) {
		tc := tenantFromGin(c)
		c.JSON(http.StatusOK, gin.H{"org": tc.OrganizationID})
	})

	claims := &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		OrganizationID: "org-1",
		Roles:          []string{"member"},
	}
	raw := signTestToken(t, "s3cr3t", claims)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "org-1")
}

func TestRequireRoleRejectsInsufficientRole(t *testing.T) {
	v := newTestVerifier(t, "s3cr3t")
	r := gin.New()
	r.Use(requireAuth(v))
	r.GET("/x", requireRole("org_admin"), func(c *gin.Context) { c.Status(http.StatusOK) })

	claims := &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		OrganizationID:   "org-1",
		Roles:            []string{"member"},
	}
	raw := signTestToken(t, "s3cr3t", claims)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}
