package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sansten/memoryos/pkg/apperrors"
	"github.com/sansten/memoryos/pkg/models"
)

type createRolloutRequest struct {
	PolicyName       string          `json:"policy_name" binding:"required"`
	PolicyConfig     map[string]any  `json:"policy_config"`
	ValidationSchema map[string]any  `json:"validation_schema"`
}

func (s *Server) createRolloutHandler(c *gin.Context) {
	if s.rolloutsUnavailable(c) {
		return
	}
	var req createRolloutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.NewValidationError("body", err.Error()))
		return
	}
	tc := tenantFromGin(c)
	pv, err := s.rollouts.CreatePolicyVersion(c.Request.Context(), tc, &models.PolicyVersion{
		PolicyName:       req.PolicyName,
		PolicyConfig:     req.PolicyConfig,
		ValidationSchema: req.ValidationSchema,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pv)
}

func (s *Server) getRolloutHandler(c *gin.Context) {
	if s.rolloutsUnavailable(c) {
		return
	}
	tc := tenantFromGin(c)
	pv, err := s.rollouts.Get(c.Request.Context(), tc, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pv)
}

type deployCanaryRequest struct {
	CanaryGroupIDs []string `json:"canary_group_ids"`
}

func (s *Server) deployCanaryHandler(c *gin.Context) {
	if s.rolloutsUnavailable(c) {
		return
	}
	var req deployCanaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.NewValidationError("body", err.Error()))
		return
	}
	tc := tenantFromGin(c)
	if err := s.rollouts.DeployToCanary(c.Request.Context(), tc, c.Param("id"), req.CanaryGroupIDs); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type promoteStagedRequest struct {
	Percentage float64 `json:"percentage"`
}

func (s *Server) promoteStagedHandler(c *gin.Context) {
	if s.rolloutsUnavailable(c) {
		return
	}
	var req promoteStagedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.NewValidationError("body", err.Error()))
		return
	}
	tc := tenantFromGin(c)
	if err := s.rollouts.PromoteToStaged(c.Request.Context(), tc, c.Param("id"), req.Percentage); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) activateRolloutHandler(c *gin.Context) {
	if s.rolloutsUnavailable(c) {
		return
	}
	tc := tenantFromGin(c)
	if err := s.rollouts.ActivateFully(c.Request.Context(), tc, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type rollbackRequest struct {
	Reason    string `json:"reason" binding:"required"`
	ToVersion *int   `json:"to_version"`
}

func (s *Server) rollbackHandler(c *gin.Context) {
	if s.rolloutsUnavailable(c) {
		return
	}
	var req rollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.NewValidationError("body", err.Error()))
		return
	}
	tc := tenantFromGin(c)
	if err := s.rollouts.Rollback(c.Request.Context(), tc, c.Param("id"), req.Reason, req.ToVersion); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
