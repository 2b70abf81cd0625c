package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/sansten/memoryos/pkg/apperrors"
	"github.com/sansten/memoryos/pkg/auth"
	"github.com/sansten/memoryos/pkg/config"
	"github.com/sansten/memoryos/pkg/tenant"
)

const tenantContextKey = "memoryos.tenant"

// securityHeaders sets the standard security response headers, in the
// established securityHeaders idiom translated to gin middleware.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		c.Next()
	}
}

// cors returns CORS middleware honoring the configured allowed-origin list;
// an empty list disables cross-origin access entirely.
func cors(cfg *config.CORSConfig) gin.HandlerFunc {
	allowed := map[string]bool{}
	if cfg != nil {
		for _, o := range cfg.AllowedOrigins {
			allowed[o] = true
		}
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowed[origin] || allowed["*"]) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Vary", "Origin")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Trace-Id")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

// requireAuth verifies the bearer token on every request, injects the
// resulting tenant.Context into both the gin context and the request's
// context.Context, and aborts with 401 on any verification failure.
func requireAuth(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := auth.ExtractBearerToken(c.Request)
		if err != nil {
			writeUnauthorized(c, "missing bearer token")
			c.Abort()
			return
		}
		claims, err := verifier.Verify(raw)
		if err != nil {
			writeUnauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		tc := auth.ContextFromClaims(claims, c.GetHeader("X-Trace-Id"))
		c.Set(tenantContextKey, tc)
		c.Request = c.Request.WithContext(tenant.WithContext(c.Request.Context(), tc))
		c.Next()
	}
}

// tenantFromGin retrieves the tenant.Context injected by requireAuth.
// Panics if called on a route that does not run requireAuth first — a
// programmer error, not a request-time condition.
func tenantFromGin(c *gin.Context) *tenant.Context {
	v, ok := c.Get(tenantContextKey)
	if !ok {
		panic("httpapi: tenant context missing; route is not behind requireAuth")
	}
	return v.(*tenant.Context)
}

// requireRole aborts with 403 unless the request's tenant context carries
// at least one of the given roles.
func requireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tc := tenantFromGin(c)
		for _, r := range roles {
			if tc.HasRole(r) {
				c.Next()
				return
			}
		}
		writeError(c, apperrors.ErrAuthorizationDenied)
		c.Abort()
	}
}
