package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sansten/memoryos/pkg/apperrors"
	"github.com/sansten/memoryos/pkg/models"
)

// MemoryStore is the pgx-backed repository for memories and their sharing
// grants. Every method relies on the caller's transaction already carrying
// the tenant session GUCs (see WithTenantSession); RLS does the isolation,
// this layer only shapes the SQL and the row mapping.
type MemoryStore struct {
	pool *pgxpool.Pool
}

// NewMemoryStore constructs a MemoryStore. Panics if pool is nil, matching
// the established constructor-panics-on-nil-deps convention.
func NewMemoryStore(pool *pgxpool.Pool) *MemoryStore {
	if pool == nil {
		panic("store: NewMemoryStore requires a non-nil pool")
	}
	return &MemoryStore{pool: pool}
}

const memoryColumns = `id, organization_id, owner_user_id, scope, scope_id, memory_type,
	classification, required_clearance, title, content_preview, content_hash, tags,
	entities, metadata, source_type, vector_id, embedding_model, is_active, legal_hold,
	access_count, last_accessed_at, created_at, updated_at`

func scanMemory(row pgx.Row) (*models.Memory, error) {
	var m models.Memory
	var entities, metadata []byte
	var vectorID, embeddingModel *string
	if err := row.Scan(
		&m.ID, &m.OrganizationID, &m.OwnerUserID, &m.Scope, &m.ScopeID, &m.MemoryType,
		&m.Classification, &m.RequiredClear, &m.Title, &m.ContentPreview, &m.ContentHash, &m.Tags,
		&entities, &metadata, &m.SourceType, &vectorID, &embeddingModel, &m.IsActive, &m.LegalHold,
		&m.AccessCount, &m.LastAccessedAt, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	if vectorID != nil {
		m.VectorID = *vectorID
	}
	if embeddingModel != nil {
		m.EmbeddingModel = *embeddingModel
	}
	if len(entities) > 0 {
		if err := json.Unmarshal(entities, &m.Entities); err != nil {
			return nil, fmt.Errorf("decoding entities: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata: %w", err)
		}
	}
	return &m, nil
}

// GetByID fetches a single memory by id within tx. Returns apperrors.ErrNotFound
// if absent or filtered out by RLS (the two are indistinguishable by design).
func (s *MemoryStore) GetByID(ctx context.Context, tx pgx.Tx, id string) (*models.Memory, error) {
	row := tx.QueryRow(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = $1`, id)
	return scanMemory(row)
}

// GetManyByIDs fetches the rows visible to the caller's RLS session among
// ids, used by the retrieval engine to hydrate the candidate union before
// scoring.
func (s *MemoryStore) GetManyByIDs(ctx context.Context, tx pgx.Tx, ids []string) (map[string]*models.Memory, error) {
	if len(ids) == 0 {
		return map[string]*models.Memory{}, nil
	}
	rows, err := tx.Query(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]*models.Memory, len(ids))
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out[m.ID] = m
	}
	return out, rows.Err()
}

// Create inserts a new memory and returns it with server-assigned defaults populated.
func (s *MemoryStore) Create(ctx context.Context, tx pgx.Tx, m *models.Memory) (*models.Memory, error) {
	entities, err := json.Marshal(m.Entities)
	if err != nil {
		return nil, fmt.Errorf("encoding entities: %w", err)
	}
	metadata, err := json.Marshal(m.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO memories (
			organization_id, owner_user_id, scope, scope_id, memory_type, classification,
			required_clearance, title, content_preview, content_hash, tags, entities,
			metadata, source_type, vector_id, embedding_model, legal_hold
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		RETURNING `+memoryColumns,
		m.OrganizationID, m.OwnerUserID, m.Scope, m.ScopeID, m.MemoryType, m.Classification,
		m.RequiredClear, m.Title, m.ContentPreview, m.ContentHash, m.Tags, entities,
		metadata, m.SourceType, nullIfEmpty(m.VectorID), nullIfEmpty(m.EmbeddingModel), m.LegalHold,
	)
	return scanMemory(row)
}

// SoftDelete flips is_active off; legal-hold memories refuse deletion.
func (s *MemoryStore) SoftDelete(ctx context.Context, tx pgx.Tx, id string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE memories SET is_active = false, updated_at = now()
		WHERE id = $1 AND is_active AND NOT legal_hold`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		held, herr := s.isUnderLegalHold(ctx, tx, id)
		if herr == nil && held {
			return apperrors.ErrLegalHold
		}
		return apperrors.ErrNotFound
	}
	return nil
}

func (s *MemoryStore) isUnderLegalHold(ctx context.Context, tx pgx.Tx, id string) (bool, error) {
	var held bool
	err := tx.QueryRow(ctx, `SELECT legal_hold FROM memories WHERE id = $1`, id).Scan(&held)
	return held, err
}

// RecordAccess bumps access_count and last_accessed_at; called on every read
// that counts toward the frequency component of activation.
func (s *MemoryStore) RecordAccess(ctx context.Context, tx pgx.Tx, id string, at time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE memories SET access_count = access_count + 1, last_accessed_at = $2
		WHERE id = $1`, id, at)
	return err
}

// HardDeletePastGrace permanently removes memories that have been soft-deleted
// (is_active = false) for longer than grace, skipping anything under legal
// hold. Returns the number of rows removed.
func (s *MemoryStore) HardDeletePastGrace(ctx context.Context, tx pgx.Tx, grace time.Duration) (int64, error) {
	tag, err := tx.Exec(ctx, `
		DELETE FROM memories
		WHERE NOT is_active AND NOT legal_hold AND updated_at < now() - $1::interval`,
		fmt.Sprintf("%d seconds", int64(grace.Seconds())))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ExpireShortTermPastTTL soft-deletes short_term memories that were never
// promoted to long_term and have outlived ttl since creation, leaving legal
// holds untouched.
func (s *MemoryStore) ExpireShortTermPastTTL(ctx context.Context, tx pgx.Tx, ttl time.Duration) (int64, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE memories SET is_active = false, updated_at = now()
		WHERE is_active AND NOT legal_hold AND memory_type = 'short_term'
		  AND created_at < now() - $1::interval`,
		fmt.Sprintf("%d seconds", int64(ttl.Seconds())))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListCandidatesByScope returns active memories within an organization that
// carry one of the given tags, as a coarse pre-filter ahead of the hybrid
// retrieval scorer; RLS further restricts to what the caller may see.
func (s *MemoryStore) ListCandidatesByScope(ctx context.Context, tx pgx.Tx, tags []string, limit int) ([]*models.Memory, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+memoryColumns+` FROM memories
		WHERE is_active AND (cardinality($1::text[]) = 0 OR tags && $1)
		ORDER BY updated_at DESC
		LIMIT $2`, tags, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// LexicalHit is one candidate from the full-text leg, paired with its raw
// ts_rank score for leg-local normalization.
type LexicalHit struct {
	MemoryID string
	Score    float64
}

// FullTextSearch runs the weighted tsvector query backing the lexical half
// of hybrid retrieval, returning candidates ordered by ts_rank desc.
func (s *MemoryStore) FullTextSearch(ctx context.Context, tx pgx.Tx, query string, limit int) ([]LexicalHit, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, ts_rank(
			setweight(to_tsvector('english', title), 'A') ||
			setweight(to_tsvector('english', content_preview), 'B') ||
			setweight(to_tsvector('english', array_to_string(tags, ' ')), 'D'),
			plainto_tsquery('english', $1)
		) AS rank
		FROM memories
		WHERE is_active AND (
			setweight(to_tsvector('english', title), 'A') ||
			setweight(to_tsvector('english', content_preview), 'B') ||
			setweight(to_tsvector('english', array_to_string(tags, ' ')), 'D')
		) @@ plainto_tsquery('english', $1)
		ORDER BY rank DESC
		LIMIT $2`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []LexicalHit
	for rows.Next() {
		var h LexicalHit
		if err := rows.Scan(&h.MemoryID, &h.Score); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// RecordFeedback inserts a MemoryFeedback event and returns its id.
func (s *MemoryStore) RecordFeedback(ctx context.Context, tx pgx.Tx, orgID, memoryID, actorID string, feedbackType models.FeedbackType, payload map[string]any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding feedback payload: %w", err)
	}
	var id string
	err = tx.QueryRow(ctx, `
		INSERT INTO memory_feedback (memory_id, organization_id, actor_id, feedback_type, payload)
		VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		memoryID, orgID, actorID, feedbackType, data).Scan(&id)
	return id, err
}

// MarkFeedbackApplied flips is_applied on a feedback row once its delta has
// been folded into the memory's ActivationState.
func (s *MemoryStore) MarkFeedbackApplied(ctx context.Context, tx pgx.Tx, id string) error {
	_, err := tx.Exec(ctx, `UPDATE memory_feedback SET is_applied = true WHERE id = $1`, id)
	return err
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
