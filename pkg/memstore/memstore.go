// Package memstore implements memory storage: Create, SoftDelete,
// relevance feedback submission, and the dual-write to the metadata table
// and the vector index. Built in the established service idiom: a
// constructor that takes its dependencies, panics on nil, methods take a
// context plus tenant context and return typed errors.
package memstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sansten/memoryos/pkg/apperrors"
	"github.com/sansten/memoryos/pkg/audit"
	"github.com/sansten/memoryos/pkg/models"
	"github.com/sansten/memoryos/pkg/permission"
	"github.com/sansten/memoryos/pkg/store"
	"github.com/sansten/memoryos/pkg/tenant"
	"github.com/sansten/memoryos/pkg/vectorindex"
)

// promoteAccessThreshold is the default access_count crossing that
// auto-promotes a short-term memory to long-term.
const promoteAccessThreshold = 3

// Feedback deltas folded into a memory's ActivationState immediately on
// relevance feedback; distinct from the transient per-query rerank
// multiplier pkg/retrieval applies to the same memory_feedback rows.
const (
	feedbackPositiveImportanceDelta = 0.05
	feedbackPositiveConfidenceDelta = 0.05
	feedbackNegativeImportanceDelta = -0.05
	feedbackNegativeConfidenceDelta = -0.05
	feedbackNegativeRiskDelta       = 0.05
)

// Service implements memory create/soft-delete/feedback.
type Service struct {
	db         *pgxpool.Pool
	memories   *store.MemoryStore
	activation *store.ActivationStore
	kernel     *permission.Kernel
	index      vectorindex.Index
	audit      *audit.Log
}

// NewService constructs a Service. Panics if any dependency is nil.
func NewService(db *pgxpool.Pool, memories *store.MemoryStore, activation *store.ActivationStore, kernel *permission.Kernel, index vectorindex.Index, auditLog *audit.Log) *Service {
	if db == nil || memories == nil || activation == nil || kernel == nil || index == nil || auditLog == nil {
		panic("memstore: NewService requires non-nil db, memories, activation, kernel, index, and audit")
	}
	return &Service{db: db, memories: memories, activation: activation, kernel: kernel, index: index, audit: auditLog}
}

// CreateInput is the caller-supplied shape for a new memory.
type CreateInput struct {
	Scope          models.Scope
	ScopeID        *string
	MemoryType     models.MemoryType
	Classification models.Classification
	RequiredClear  int
	Title          string
	ContentPreview string
	Content        string
	Tags           []string
	Entities       map[string][]string
	Metadata       map[string]any
	SourceType     string
	Embedding      []float64
	EmbeddingModel string
}

// Create verifies memory:create:<scope>, computes content_hash, inserts the
// metadata row, upserts the vector payload, and records a memory.create
// audit event.
func (s *Service) Create(ctx context.Context, tc *tenant.Context, in CreateInput) (*models.Memory, error) {
	var created *models.Memory
	err := store.WithTenantSession(ctx, s.db, tc, func(ctx context.Context, tx pgx.Tx) error {
		if !tc.HasRole("org_admin") && !tc.HasRole("system_admin") {
			perms, err := s.kernel.EffectivePermissions(ctx, tx, tc.UserID, tc.OrganizationID)
			if err != nil {
				return fmt.Errorf("loading effective permissions: %w", err)
			}
			if !permission.HasPermission(perms, "memory", "create:"+string(in.Scope)) {
				return apperrors.ErrAuthorizationDenied
			}
		}

		m := &models.Memory{
			OrganizationID: tc.OrganizationID,
			OwnerUserID:    tc.UserID,
			Scope:          in.Scope,
			ScopeID:        in.ScopeID,
			MemoryType:     in.MemoryType,
			Classification: in.Classification,
			RequiredClear:  in.RequiredClear,
			Title:          in.Title,
			ContentPreview: in.ContentPreview,
			ContentHash:    contentHash(in.Content),
			Tags:           in.Tags,
			Entities:       in.Entities,
			Metadata:       in.Metadata,
			SourceType:     in.SourceType,
			EmbeddingModel: in.EmbeddingModel,
		}

		var err error
		created, err = s.memories.Create(ctx, tx, m)
		if err != nil {
			return fmt.Errorf("inserting memory: %w", err)
		}

		payload := vectorindex.Payload{
			MemoryID:       created.ID,
			OrganizationID: created.OrganizationID,
			OwnerID:        created.OwnerUserID,
			Scope:          string(created.Scope),
			Tags:           created.Tags,
			Classification: string(created.Classification),
			MemoryType:     string(created.MemoryType),
		}
		if created.ScopeID != nil {
			payload.ScopeID = *created.ScopeID
			if created.Scope == models.ScopeTeam {
				payload.TeamID = *created.ScopeID
			}
		}
		if err := s.index.Upsert(ctx, created.ID, in.Embedding, payload); err != nil {
			return fmt.Errorf("indexing memory: %w", err)
		}

		return s.audit.Record(ctx, tx, tc, audit.Event{
			EventType: "memory.create", ObjectType: "memory", ObjectID: created.ID, Method: "create",
		})
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Get verifies read permission and returns the memory, or ErrNotFound if it
// doesn't exist or the decision's method is org_isolation.
func (s *Service) Get(ctx context.Context, tc *tenant.Context, memoryID string) (*models.Memory, error) {
	var m *models.Memory
	err := store.WithTenantSession(ctx, s.db, tc, func(ctx context.Context, tx pgx.Tx) error {
		decision, err := s.kernel.CheckMemoryAccess(ctx, tx, tc, memoryID, "read")
		if err != nil {
			return err
		}
		if !decision.Allowed {
			return decision.ToAppError()
		}
		m, err = s.memories.GetByID(ctx, tx, memoryID)
		if err != nil {
			return err
		}
		return s.memories.RecordAccess(ctx, tx, memoryID, time.Now())
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// SoftDelete verifies delete permission, rejects memories under legal hold,
// flips is_active off, and removes the vector.
func (s *Service) SoftDelete(ctx context.Context, tc *tenant.Context, memoryID string) error {
	return store.WithTenantSession(ctx, s.db, tc, func(ctx context.Context, tx pgx.Tx) error {
		decision, err := s.kernel.CheckMemoryAccess(ctx, tx, tc, memoryID, "delete")
		if err != nil {
			return err
		}
		if !decision.Allowed {
			_ = s.audit.Record(ctx, tx, tc, audit.Event{
				EventType: "memory.delete.denied", ObjectType: "memory", ObjectID: memoryID,
				Method: string(decision.Method), Reason: decision.Reason,
			})
			return decision.ToAppError()
		}

		if err := s.memories.SoftDelete(ctx, tx, memoryID); err != nil {
			return err
		}
		if err := s.index.Delete(ctx, memoryID); err != nil {
			slog.Warn("vector index delete failed, metadata delete already committed", "memory_id", memoryID, "error", err)
		}
		return s.audit.Record(ctx, tx, tc, audit.Event{
			EventType: "memory.delete", ObjectType: "memory", ObjectID: memoryID, Method: "delete",
		})
	})
}

// SubmitRelevanceFeedback verifies read access, records a relevance
// MemoryFeedback event, and immediately folds its sentiment into the
// memory's ActivationState (base_importance/confidence/risk_factor). This
// is separate from the transient per-query rerank multiplier the retrieval
// engine applies from the same feedback rows.
func (s *Service) SubmitRelevanceFeedback(ctx context.Context, tc *tenant.Context, memoryID, sentiment string) error {
	return store.WithTenantSession(ctx, s.db, tc, func(ctx context.Context, tx pgx.Tx) error {
		decision, err := s.kernel.CheckMemoryAccess(ctx, tx, tc, memoryID, "read")
		if err != nil {
			return err
		}
		if !decision.Allowed {
			return decision.ToAppError()
		}

		feedbackID, err := s.memories.RecordFeedback(ctx, tx, tc.OrganizationID, memoryID, tc.UserID,
			models.FeedbackTypeRelevance, map[string]any{"sentiment": sentiment})
		if err != nil {
			return fmt.Errorf("recording feedback: %w", err)
		}

		var impDelta, confDelta, riskDelta float64
		switch sentiment {
		case "positive":
			impDelta, confDelta = feedbackPositiveImportanceDelta, feedbackPositiveConfidenceDelta
		case "negative":
			impDelta, confDelta, riskDelta = feedbackNegativeImportanceDelta, feedbackNegativeConfidenceDelta, feedbackNegativeRiskDelta
		}
		if err := s.activation.ApplyFeedback(ctx, tx, memoryID, impDelta, confDelta, false, riskDelta); err != nil {
			return fmt.Errorf("applying feedback to activation state: %w", err)
		}
		return s.memories.MarkFeedbackApplied(ctx, tx, feedbackID)
	})
}

// MaybePromote auto-promotes a short-term memory to long-term once
// access_count crosses promoteAccessThreshold.
func (s *Service) MaybePromote(ctx context.Context, tx pgx.Tx, m *models.Memory) error {
	if m.MemoryType != models.MemoryTypeShortTerm || m.AccessCount < promoteAccessThreshold {
		return nil
	}
	_, err := tx.Exec(ctx, `UPDATE memories SET memory_type = $2, updated_at = now() WHERE id = $1`,
		m.ID, models.MemoryTypeLongTerm)
	return err
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
