package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sansten/memoryos/pkg/apperrors"
	"github.com/sansten/memoryos/pkg/models"
)

type createGoalRequest struct {
	OwnerType   models.GoalOwnerType `json:"owner_type" binding:"required"`
	OwnerID     string               `json:"owner_id" binding:"required"`
	Title       string               `json:"title" binding:"required"`
	Description string               `json:"description"`
	GoalType    models.GoalType      `json:"goal_type" binding:"required"`
	Priority    int                  `json:"priority"`
	Scope       models.Scope         `json:"scope" binding:"required"`
	ScopeID     *string              `json:"scope_id"`
	Tags        []string             `json:"tags"`
	Metadata    map[string]any       `json:"metadata"`
}

func (s *Server) createGoalHandler(c *gin.Context) {
	if s.goals == nil {
		writeError(c, apperrors.ErrUpstreamUnavailable)
		return
	}
	var req createGoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.NewValidationError("body", err.Error()))
		return
	}
	tc := tenantFromGin(c)
	g, err := s.goals.CreateGoal(c.Request.Context(), tc, &models.Goal{
		Creator:     tc.UserID,
		OwnerType:   req.OwnerType,
		OwnerID:     req.OwnerID,
		Title:       req.Title,
		Description: req.Description,
		GoalType:    req.GoalType,
		Priority:    req.Priority,
		Scope:       req.Scope,
		ScopeID:     req.ScopeID,
		Tags:        req.Tags,
		Metadata:    req.Metadata,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

func (s *Server) listGoalsHandler(c *gin.Context) {
	if s.goals == nil {
		writeError(c, apperrors.ErrUpstreamUnavailable)
		return
	}
	tc := tenantFromGin(c)
	var status *models.GoalStatus
	if q := c.Query("status"); q != "" {
		gs := models.GoalStatus(q)
		status = &gs
	}
	goals, err := s.goals.ListGoals(c.Request.Context(), tc, status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"goals": goals})
}

func (s *Server) getGoalHandler(c *gin.Context) {
	if s.goals == nil {
		writeError(c, apperrors.ErrUpstreamUnavailable)
		return
	}
	tc := tenantFromGin(c)
	g, err := s.goals.GetGoal(c.Request.Context(), tc, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

type updateGoalStatusRequest struct {
	Status models.GoalStatus `json:"status" binding:"required"`
}

func (s *Server) updateGoalStatusHandler(c *gin.Context) {
	if s.goals == nil {
		writeError(c, apperrors.ErrUpstreamUnavailable)
		return
	}
	var req updateGoalStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.NewValidationError("body", err.Error()))
		return
	}
	tc := tenantFromGin(c)
	if err := s.goals.UpdateStatus(c.Request.Context(), tc, c.Param("id"), req.Status); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) goalProgressHandler(c *gin.Context) {
	if s.goals == nil {
		writeError(c, apperrors.ErrUpstreamUnavailable)
		return
	}
	tc := tenantFromGin(c)
	result, err := s.goals.Progress(c.Request.Context(), tc, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) goalBlockersHandler(c *gin.Context) {
	if s.goals == nil {
		writeError(c, apperrors.ErrUpstreamUnavailable)
		return
	}
	tc := tenantFromGin(c)
	blockers, err := s.goals.DetectBlockers(c.Request.Context(), tc, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"blockers": blockers})
}

type addNodeRequest struct {
	ParentNodeID    *string              `json:"parent_node_id"`
	NodeType        models.GoalNodeType  `json:"node_type" binding:"required"`
	Title           string               `json:"title" binding:"required"`
	Priority        int                  `json:"priority"`
	Assignees       []string             `json:"assignees"`
	Ordering        int                  `json:"ordering"`
	ExpectedOutputs string               `json:"expected_outputs"`
	SuccessCriteria string               `json:"success_criteria"`
}

func (s *Server) addGoalNodeHandler(c *gin.Context) {
	if s.goals == nil {
		writeError(c, apperrors.ErrUpstreamUnavailable)
		return
	}
	var req addNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.NewValidationError("body", err.Error()))
		return
	}
	tc := tenantFromGin(c)
	n, err := s.goals.AddNode(c.Request.Context(), tc, &models.GoalNode{
		GoalID:          c.Param("id"),
		ParentNodeID:    req.ParentNodeID,
		NodeType:        req.NodeType,
		Title:           req.Title,
		Status:          models.GoalNodeTodo,
		Priority:        req.Priority,
		Assignees:       req.Assignees,
		Ordering:        req.Ordering,
		ExpectedOutputs: req.ExpectedOutputs,
		SuccessCriteria: req.SuccessCriteria,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, n)
}

type addEdgeRequest struct {
	FromNodeID string               `json:"from_node_id" binding:"required"`
	ToNodeID   string               `json:"to_node_id" binding:"required"`
	EdgeType   models.GoalEdgeType  `json:"edge_type" binding:"required"`
}

func (s *Server) addGoalEdgeHandler(c *gin.Context) {
	if s.goals == nil {
		writeError(c, apperrors.ErrUpstreamUnavailable)
		return
	}
	var req addEdgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.NewValidationError("body", err.Error()))
		return
	}
	tc := tenantFromGin(c)
	if err := s.goals.AddEdge(c.Request.Context(), tc, &models.GoalEdge{
		FromNodeID: req.FromNodeID,
		ToNodeID:   req.ToNodeID,
		EdgeType:   req.EdgeType,
	}); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

type linkMemoryRequest struct {
	MemoryID string                     `json:"memory_id" binding:"required"`
	NodeID   *string                    `json:"node_id"`
	LinkType models.GoalMemoryLinkType  `json:"link_type" binding:"required"`
}

func (s *Server) linkGoalMemoryHandler(c *gin.Context) {
	if s.goals == nil {
		writeError(c, apperrors.ErrUpstreamUnavailable)
		return
	}
	var req linkMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.NewValidationError("body", err.Error()))
		return
	}
	tc := tenantFromGin(c)
	if err := s.goals.LinkMemory(c.Request.Context(), tc, c.Param("id"), &models.GoalMemoryLink{
		MemoryID: req.MemoryID,
		NodeID:   req.NodeID,
		LinkType: req.LinkType,
		LinkedBy: models.GoalLinkedByUser,
	}); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listGoalActivityHandler(c *gin.Context) {
	if s.goals == nil {
		writeError(c, apperrors.ErrUpstreamUnavailable)
		return
	}
	tc := tenantFromGin(c)
	limit := 50
	if q := c.Query("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := s.goals.ListActivity(c.Request.Context(), tc, c.Param("id"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity": entries})
}
