package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"

	"github.com/sansten/memoryos/pkg/apperrors"
	"github.com/sansten/memoryos/pkg/store"
)

// explainAccessResponse is the wire shape of the "why can I see this"
// primitive: the decision CheckMemoryAccess would reach, plus the caller's
// current role list.
type explainAccessResponse struct {
	Allowed bool           `json:"allowed"`
	Reason  string         `json:"reason"`
	Method  string         `json:"method"`
	Details map[string]any `json:"details,omitempty"`
	Roles   []string       `json:"roles"`
}

// explainAccessHandler handles GET /api/v1/memories/:id/explain.
func (s *Server) explainAccessHandler(c *gin.Context) {
	tc := tenantFromGin(c)
	action := c.DefaultQuery("action", "read")

	var resp explainAccessResponse
	err := store.WithTenantSession(c.Request.Context(), s.dbPool, tc, func(ctx context.Context, tx pgx.Tx) error {
		decision, roles, err := s.kernel.ExplainAccess(ctx, tx, tc, c.Param("id"), action)
		if err != nil {
			return err
		}
		resp = explainAccessResponse{
			Allowed: decision.Allowed,
			Reason:  decision.Reason,
			Method:  string(decision.Method),
			Details: decision.Details,
			Roles:   roles,
		}
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// submitFeedbackRequest is the wire shape for POST /api/v1/memories/:id/relevance.
type submitFeedbackRequest struct {
	Sentiment string `json:"sentiment" binding:"required,oneof=positive negative neutral"`
}

func (s *Server) submitRelevanceFeedbackHandler(c *gin.Context) {
	var req submitFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.NewValidationError("body", err.Error()))
		return
	}
	tc := tenantFromGin(c)
	if err := s.memories.SubmitRelevanceFeedback(c.Request.Context(), tc, c.Param("id"), req.Sentiment); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// grantRoleRequest is the wire shape for POST /api/v1/roles/grant.
type grantRoleRequest struct {
	UserID    string     `json:"user_id" binding:"required"`
	RoleID    string     `json:"role_id" binding:"required"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (s *Server) grantRoleHandler(c *gin.Context) {
	var req grantRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.NewValidationError("body", err.Error()))
		return
	}
	tc := tenantFromGin(c)
	err := store.WithTenantSession(c.Request.Context(), s.dbPool, tc, func(ctx context.Context, tx pgx.Tx) error {
		return s.kernel.GrantRole(ctx, tx, req.UserID, tc.OrganizationID, req.RoleID, req.ExpiresAt)
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// revokeRoleRequest is the wire shape for POST /api/v1/roles/revoke.
type revokeRoleRequest struct {
	UserID string `json:"user_id" binding:"required"`
	RoleID string `json:"role_id" binding:"required"`
}

func (s *Server) revokeRoleHandler(c *gin.Context) {
	var req revokeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.NewValidationError("body", err.Error()))
		return
	}
	tc := tenantFromGin(c)
	err := store.WithTenantSession(c.Request.Context(), s.dbPool, tc, func(ctx context.Context, tx pgx.Tx) error {
		return s.kernel.RevokeRole(ctx, tx, req.UserID, tc.OrganizationID, req.RoleID)
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
