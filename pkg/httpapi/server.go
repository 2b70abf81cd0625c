// Package httpapi provides the HTTP surface over the memory-OS
// service layer: memories, search, goals, and staged-rollout administration,
// built on gin.
package httpapi

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sansten/memoryos/pkg/auth"
	"github.com/sansten/memoryos/pkg/config"
	"github.com/sansten/memoryos/pkg/database"
	"github.com/sansten/memoryos/pkg/goalgraph"
	"github.com/sansten/memoryos/pkg/memstore"
	"github.com/sansten/memoryos/pkg/permission"
	"github.com/sansten/memoryos/pkg/retrieval"
	"github.com/sansten/memoryos/pkg/rollout"
	"github.com/sansten/memoryos/pkg/version"
)

// Server is the HTTP API server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	cfg        *config.Config
	dbPool     *pgxpool.Pool
	verifier   *auth.Verifier

	memories *memstore.Service
	search   *retrieval.Engine
	kernel   *permission.Kernel
	goals    *goalgraph.Service  // nil until set
	rollouts *rollout.Service    // nil until set (rollout_enterprise builds only wire a real one)
}

// NewServer constructs a Server and registers the routes that do not
// depend on optional Set*-wired services.
func NewServer(cfg *config.Config, dbPool *pgxpool.Pool, verifier *auth.Verifier, memories *memstore.Service, search *retrieval.Engine, kernel *permission.Kernel) *Server {
	if cfg == nil || dbPool == nil || verifier == nil || memories == nil || search == nil || kernel == nil {
		panic("httpapi: NewServer requires non-nil cfg, dbPool, verifier, memories, search, and kernel")
	}
	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(gin.Recovery())

	s := &Server{
		engine:   e,
		cfg:      cfg,
		dbPool:   dbPool,
		verifier: verifier,
		memories: memories,
		search:   search,
		kernel:   kernel,
	}
	s.setupRoutes()
	return s
}

// SetGoalGraph wires the GoalGraph service, enabling /api/v1/goals routes.
func (s *Server) SetGoalGraph(svc *goalgraph.Service) {
	s.goals = svc
}

// SetRollout wires the Staged Rollout Manager, enabling
// /api/v1/rollouts routes.
func (s *Server) SetRollout(svc *rollout.Service) {
	s.rollouts = svc
}

func (s *Server) setupRoutes() {
	s.engine.Use(securityHeaders())
	s.engine.Use(cors(s.cfg.CORS))
	s.engine.MaxMultipartMemory = 2 << 20

	s.engine.GET("/health", s.healthHandler)

	v1 := s.engine.Group("/api/v1")
	v1.Use(requireAuth(s.verifier))

	v1.POST("/memories", s.createMemoryHandler)
	v1.GET("/memories/:id", s.getMemoryHandler)
	v1.DELETE("/memories/:id", s.deleteMemoryHandler)
	v1.GET("/memories/:id/explain", s.explainAccessHandler)
	v1.POST("/memories/:id/relevance", s.submitRelevanceFeedbackHandler)
	v1.POST("/search", s.searchHandler)

	v1.POST("/roles/grant", requireRole("org_admin", "system_admin"), s.grantRoleHandler)
	v1.POST("/roles/revoke", requireRole("org_admin", "system_admin"), s.revokeRoleHandler)

	v1.POST("/goals", s.createGoalHandler)
	v1.GET("/goals", s.listGoalsHandler)
	v1.GET("/goals/:id", s.getGoalHandler)
	v1.PATCH("/goals/:id/status", s.updateGoalStatusHandler)
	v1.GET("/goals/:id/progress", s.goalProgressHandler)
	v1.GET("/goals/:id/blockers", s.goalBlockersHandler)
	v1.POST("/goals/:id/nodes", s.addGoalNodeHandler)
	v1.POST("/goals/:id/edges", s.addGoalEdgeHandler)
	v1.POST("/goals/:id/links", s.linkGoalMemoryHandler)
	v1.GET("/goals/:id/activity", s.listGoalActivityHandler)

	v1.POST("/rollouts", requireRole("org_admin", "system_admin"), s.createRolloutHandler)
	v1.GET("/rollouts/:id", s.getRolloutHandler)
	v1.POST("/rollouts/:id/canary", requireRole("org_admin", "system_admin"), s.deployCanaryHandler)
	v1.POST("/rollouts/:id/staged", requireRole("org_admin", "system_admin"), s.promoteStagedHandler)
	v1.POST("/rollouts/:id/activate", requireRole("org_admin", "system_admin"), s.activateRolloutHandler)
	v1.POST("/rollouts/:id/rollback", requireRole("org_admin", "system_admin"), s.rollbackHandler)
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(reqCtx, s.dbPool)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": dbHealth})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "version": version.Full(), "database": dbHealth})
}

// Start starts the HTTP server on the given address (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.engine}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener. Used
// by test infrastructure to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.engine}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// rolloutsUnavailable writes the response for a rollout route hit on a
// server where SetRollout was never called. In builds without the
// rollout_enterprise tag SetRollout receives the stub Service, whose
// methods return ErrRolloutManagerDisabled instead.
func (s *Server) rolloutsUnavailable(c *gin.Context) bool {
	if s.rollouts != nil {
		return false
	}
	c.JSON(http.StatusServiceUnavailable, errorResponse{Detail: "rollout manager not available", Code: "rollout_unavailable"})
	return true
}
