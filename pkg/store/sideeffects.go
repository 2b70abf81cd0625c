package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sansten/memoryos/pkg/models"
)

// SideEffectStore is the pgx-backed repository for the agent pipeline's
// five side-effect materializers.
type SideEffectStore struct {
	pool *pgxpool.Pool
}

// NewSideEffectStore constructs a SideEffectStore. Panics if pool is nil.
func NewSideEffectStore(pool *pgxpool.Pool) *SideEffectStore {
	if pool == nil {
		panic("store: NewSideEffectStore requires a non-nil pool")
	}
	return &SideEffectStore{pool: pool}
}

// UpsertGraphEdge upserts a memory graph edge, canonicalizing a<b to match
// the table's check constraint.
func (s *SideEffectStore) UpsertGraphEdge(ctx context.Context, tx pgx.Tx, orgID, memA, memB, relation string, confidence float64) error {
	a, b := memA, memB
	if a > b {
		a, b = b, a
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO memory_graph_edges (organization_id, memory_a, memory_b, relation, confidence)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (organization_id, memory_a, memory_b, relation) DO UPDATE SET
			confidence = $5, updated_at = now()`,
		orgID, a, b, relation, confidence)
	return err
}

// UpsertTopic upserts a scope/scope_id-aware topic assignment.
func (s *SideEffectStore) UpsertTopic(ctx context.Context, tx pgx.Tx, orgID, memoryID string, scope models.Scope, scopeID *string, topic string, weight float64) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO memory_topics (organization_id, memory_id, scope, scope_id, topic, weight)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (organization_id, memory_id, topic) DO UPDATE SET
			scope = $3, scope_id = $4, weight = $6, updated_at = now()`,
		orgID, memoryID, scope, scopeID, topic, weight)
	return err
}

// UpsertPattern upserts one detected pattern for a memory.
func (s *SideEffectStore) UpsertPattern(ctx context.Context, tx pgx.Tx, orgID, memoryID, patternKey string, details map[string]any, confidence float64) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("encoding pattern details: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO memory_patterns (organization_id, memory_id, pattern_key, details, confidence)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (organization_id, memory_id, pattern_key) DO UPDATE SET
			details = $4, confidence = $5, updated_at = now()`,
		orgID, memoryID, patternKey, payload, confidence)
	return err
}

// GetFeedbackLearningConfig loads the per-org config, returning a zero-value
// config if none exists yet (the agent only writes once a diff applies).
func (s *SideEffectStore) GetFeedbackLearningConfig(ctx context.Context, tx pgx.Tx, orgID string) (*models.FeedbackLearningConfig, error) {
	var cfg models.FeedbackLearningConfig
	var thresholds, weights []byte
	row := tx.QueryRow(ctx, `
		SELECT organization_id, stopwords, thresholds, weights, updated_at
		FROM feedback_learning_configs WHERE organization_id = $1`, orgID)
	if err := row.Scan(&cfg.OrganizationID, &cfg.Stopwords, &thresholds, &weights, &cfg.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return &models.FeedbackLearningConfig{OrganizationID: orgID}, nil
		}
		return nil, err
	}
	if len(thresholds) > 0 {
		if err := json.Unmarshal(thresholds, &cfg.Thresholds); err != nil {
			return nil, err
		}
	}
	if len(weights) > 0 {
		if err := json.Unmarshal(weights, &cfg.Weights); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// ApplyFeedbackLearningDiff upserts the per-org feedback-learning config with
// the agent's adjusted stopwords/thresholds/weights.
func (s *SideEffectStore) ApplyFeedbackLearningDiff(ctx context.Context, tx pgx.Tx, cfg *models.FeedbackLearningConfig) error {
	thresholds, err := json.Marshal(cfg.Thresholds)
	if err != nil {
		return fmt.Errorf("encoding thresholds: %w", err)
	}
	weights, err := json.Marshal(cfg.Weights)
	if err != nil {
		return fmt.Errorf("encoding weights: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO feedback_learning_configs (organization_id, stopwords, thresholds, weights)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (organization_id) DO UPDATE SET
			stopwords = $2, thresholds = $3, weights = $4, updated_at = now()`,
		cfg.OrganizationID, cfg.Stopwords, thresholds, weights)
	return err
}

// UpsertLogseqExport records one memory's Logseq export file path and
// content hash, keyed by (org, memory).
func (s *SideEffectStore) UpsertLogseqExport(ctx context.Context, tx pgx.Tx, orgID, memoryID, filePath, contentHash string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO logseq_exports (organization_id, memory_id, file_path, content_hash)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (organization_id, memory_id) DO UPDATE SET
			file_path = $3, content_hash = $4, exported_at = now()`,
		orgID, memoryID, filePath, contentHash)
	return err
}
