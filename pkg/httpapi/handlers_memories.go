package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sansten/memoryos/pkg/apperrors"
	"github.com/sansten/memoryos/pkg/memstore"
	"github.com/sansten/memoryos/pkg/models"
	"github.com/sansten/memoryos/pkg/retrieval"
)

// createMemoryRequest is the wire shape for POST /api/v1/memories.
type createMemoryRequest struct {
	Scope          models.Scope           `json:"scope" binding:"required"`
	ScopeID        *string                `json:"scope_id"`
	MemoryType     models.MemoryType      `json:"memory_type" binding:"required"`
	Classification models.Classification  `json:"classification" binding:"required"`
	RequiredClear  int                    `json:"required_clearance"`
	Title          string                 `json:"title" binding:"required"`
	ContentPreview string                 `json:"content_preview"`
	Content        string                 `json:"content" binding:"required"`
	Tags           []string               `json:"tags"`
	Entities       map[string][]string    `json:"entities"`
	Metadata       map[string]any         `json:"metadata"`
	SourceType     string                 `json:"source_type"`
	Embedding      []float64              `json:"embedding"`
	EmbeddingModel string                 `json:"embedding_model"`
}

func (s *Server) createMemoryHandler(c *gin.Context) {
	var req createMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.NewValidationError("body", err.Error()))
		return
	}
	tc := tenantFromGin(c)

	m, err := s.memories.Create(c.Request.Context(), tc, memstore.CreateInput{
		Scope:          req.Scope,
		ScopeID:        req.ScopeID,
		MemoryType:     req.MemoryType,
		Classification: req.Classification,
		RequiredClear:  req.RequiredClear,
		Title:          req.Title,
		ContentPreview: req.ContentPreview,
		Content:        req.Content,
		Tags:           req.Tags,
		Entities:       req.Entities,
		Metadata:       req.Metadata,
		SourceType:     req.SourceType,
		Embedding:      req.Embedding,
		EmbeddingModel: req.EmbeddingModel,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (s *Server) getMemoryHandler(c *gin.Context) {
	tc := tenantFromGin(c)
	m, err := s.memories.Get(c.Request.Context(), tc, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) deleteMemoryHandler(c *gin.Context) {
	tc := tenantFromGin(c)
	if err := s.memories.SoftDelete(c.Request.Context(), tc, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// searchRequest is the wire shape for POST /api/v1/search.
type searchRequest struct {
	Text       string           `json:"text"`
	Embedding  []float64        `json:"embedding"`
	TopK       int              `json:"top_k"`
	Scope      models.Scope     `json:"scope"`
	ScopeID    string           `json:"scope_id"`
	Hybrid     bool             `json:"hybrid"`
	Mode       retrieval.Mode   `json:"mode"`
	ApplyDecay bool             `json:"apply_decay"`
}

func (s *Server) searchHandler(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.NewValidationError("body", err.Error()))
		return
	}
	tc := tenantFromGin(c)

	results, err := s.search.Search(c.Request.Context(), tc, retrieval.Query{
		Text:       req.Text,
		Embedding:  req.Embedding,
		TopK:       req.TopK,
		Scope:      req.Scope,
		ScopeID:    req.ScopeID,
		Hybrid:     req.Hybrid,
		Mode:       req.Mode,
		ApplyDecay: req.ApplyDecay,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}
