package store

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sansten/memoryos/pkg/apperrors"
	"github.com/sansten/memoryos/pkg/models"
)

// coactivationLambda is the decay constant in edge_weight = 1 - exp(-lambda*count).
const coactivationLambda = 0.1

// ActivationStore is the pgx-backed repository for per-memory activation
// state and the co-activation graph.
type ActivationStore struct {
	pool *pgxpool.Pool
}

// NewActivationStore constructs an ActivationStore.
func NewActivationStore(pool *pgxpool.Pool) *ActivationStore {
	if pool == nil {
		panic("store: NewActivationStore requires a non-nil pool")
	}
	return &ActivationStore{pool: pool}
}

// GetOrInit returns the activation state for a memory, creating the default
// row (0.5, 0.8, false, 0, 0) on first observation.
func (s *ActivationStore) GetOrInit(ctx context.Context, tx pgx.Tx, orgID, memoryID string) (*models.ActivationState, error) {
	row := tx.QueryRow(ctx, `
		SELECT memory_id, base_importance, confidence, contradicted, risk_factor,
			access_count, last_accessed_at, updated_at
		FROM activation_states WHERE memory_id = $1`, memoryID)

	st, err := scanActivationState(row)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	def := models.DefaultActivationState(memoryID)
	row = tx.QueryRow(ctx, `
		INSERT INTO activation_states (memory_id, organization_id, base_importance, confidence, contradicted, risk_factor, access_count)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (memory_id) DO UPDATE SET memory_id = activation_states.memory_id
		RETURNING memory_id, base_importance, confidence, contradicted, risk_factor, access_count, last_accessed_at, updated_at`,
		memoryID, orgID, def.BaseImportance, def.Confidence, def.Contradicted, def.RiskFactor, def.AccessCount)
	return scanActivationState(row)
}

func scanActivationState(row pgx.Row) (*models.ActivationState, error) {
	var st models.ActivationState
	if err := row.Scan(&st.MemoryID, &st.BaseImportance, &st.Confidence, &st.Contradicted,
		&st.RiskFactor, &st.AccessCount, &st.LastAccessedAt, &st.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &st, nil
}

// Touch records an access event: bumps access_count and last_accessed_at,
// feeding the recency/frequency components of the next activation score.
func (s *ActivationStore) Touch(ctx context.Context, tx pgx.Tx, memoryID string, at time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE activation_states
		SET access_count = access_count + 1, last_accessed_at = $2, updated_at = now()
		WHERE memory_id = $1`, memoryID, at)
	return err
}

// ApplyFeedback adjusts base_importance/confidence/contradicted/risk_factor
// in response to an applied feedback event.
func (s *ActivationStore) ApplyFeedback(ctx context.Context, tx pgx.Tx, memoryID string, importanceDelta, confidenceDelta float64, contradicted bool, riskDelta float64) error {
	_, err := tx.Exec(ctx, `
		UPDATE activation_states SET
			base_importance = LEAST(1, GREATEST(0, base_importance + $2)),
			confidence = LEAST(1, GREATEST(0, confidence + $3)),
			contradicted = contradicted OR $4,
			risk_factor = LEAST(1, GREATEST(0, risk_factor + $5)),
			updated_at = now()
		WHERE memory_id = $1`, memoryID, importanceDelta, confidenceDelta, contradicted, riskDelta)
	return err
}

// TopNeighbors returns up to limit co-activated memories for memoryID,
// ordered by edge_weight descending, for the "nbr" activation component and
// for graph-based recommendation.
func (s *ActivationStore) TopNeighbors(ctx context.Context, tx pgx.Tx, orgID, memoryID string, limit int) ([]models.CoactivationEdge, error) {
	rows, err := tx.Query(ctx, `
		SELECT organization_id, memory_a, memory_b, count, edge_weight, last_coactivated_at
		FROM coactivation_edges
		WHERE organization_id = $1 AND (memory_a = $2 OR memory_b = $2)
		ORDER BY edge_weight DESC
		LIMIT $3`, orgID, memoryID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.CoactivationEdge
	for rows.Next() {
		var e models.CoactivationEdge
		if err := rows.Scan(&e.OrganizationID, &e.MemoryA, &e.MemoryB, &e.Count, &e.EdgeWeight, &e.LastCoactivatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PruneStaleEdges removes co-activation edges both below minWeight and
// untouched since olderThan.
func (s *ActivationStore) PruneStaleEdges(ctx context.Context, tx pgx.Tx, orgID string, minWeight float64, olderThan time.Time) (int64, error) {
	tag, err := tx.Exec(ctx, `
		DELETE FROM coactivation_edges
		WHERE organization_id = $1 AND edge_weight < $2 AND last_coactivated_at < $3`, orgID, minWeight, olderThan)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// UpdateCoactivationWindowed upserts the canonicalized (a,b) edge applying
// the sliding-window decay rule: if the edge was last co-activated within
// windowHours, increment count; otherwise reset it to 1.
func (s *ActivationStore) UpdateCoactivationWindowed(ctx context.Context, tx pgx.Tx, orgID, memA, memB string, windowHours int, at time.Time) error {
	if memA == memB {
		return nil
	}
	a, b := memA, memB
	if a > b {
		a, b = b, a
	}

	var existingLast *time.Time
	var existingCount int64
	row := tx.QueryRow(ctx, `
		SELECT last_coactivated_at, count FROM coactivation_edges
		WHERE organization_id = $1 AND memory_a = $2 AND memory_b = $3`, orgID, a, b)
	err := row.Scan(&existingLast, &existingCount)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	count := int64(1)
	if err == nil && existingLast != nil && !existingLast.Before(at.Add(-time.Duration(windowHours)*time.Hour)) {
		count = existingCount + 1
	}
	weight := 1 - math.Exp(-coactivationLambda*float64(count))

	_, err = tx.Exec(ctx, `
		INSERT INTO coactivation_edges (organization_id, memory_a, memory_b, count, edge_weight, last_coactivated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (organization_id, memory_a, memory_b) DO UPDATE SET
			count = $4, edge_weight = $5, last_coactivated_at = $6`,
		orgID, a, b, count, weight, at)
	return err
}

// EnforceTopN deletes edges incident to memoryID beyond the top topN by
// edge_weight descending.
func (s *ActivationStore) EnforceTopN(ctx context.Context, tx pgx.Tx, orgID, memoryID string, topN int) (int64, error) {
	tag, err := tx.Exec(ctx, `
		DELETE FROM coactivation_edges
		WHERE organization_id = $1 AND (memory_a = $2 OR memory_b = $2)
			AND (memory_a, memory_b) NOT IN (
				SELECT memory_a, memory_b FROM coactivation_edges
				WHERE organization_id = $1 AND (memory_a = $2 OR memory_b = $2)
				ORDER BY edge_weight DESC
				LIMIT $3
			)`, orgID, memoryID, topN)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RewriteEdgeWeights recomputes edge_weight = 1-exp(-lambda*count) for every
// edge in an org, guarding against drift.
func (s *ActivationStore) RewriteEdgeWeights(ctx context.Context, tx pgx.Tx, orgID string) (int64, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE coactivation_edges
		SET edge_weight = 1 - exp(-$2 * count)
		WHERE organization_id = $1`, orgID, coactivationLambda)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ClampActivationStates clamps base_importance/confidence/risk_factor into
// [0,1] and access_count to >= 0 for every row in an org, bumping updated_at
// on any row actually changed.
func (s *ActivationStore) ClampActivationStates(ctx context.Context, tx pgx.Tx, orgID string) (int64, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE activation_states a
		SET base_importance = LEAST(1, GREATEST(0, a.base_importance)),
			confidence = LEAST(1, GREATEST(0, a.confidence)),
			risk_factor = LEAST(1, GREATEST(0, a.risk_factor)),
			access_count = GREATEST(0, a.access_count),
			updated_at = now()
		FROM memories m
		WHERE m.id = a.memory_id AND m.organization_id = $1
			AND (a.base_importance NOT BETWEEN 0 AND 1
				OR a.confidence NOT BETWEEN 0 AND 1
				OR a.risk_factor NOT BETWEEN 0 AND 1
				OR a.access_count < 0)`, orgID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// TopEdgesAbove returns up to limit co-activation edges for an org with
// edge_weight >= minWeight, highest weight first.
func (s *ActivationStore) TopEdgesAbove(ctx context.Context, tx pgx.Tx, orgID string, minWeight float64, limit int) ([]models.CoactivationEdge, error) {
	rows, err := tx.Query(ctx, `
		SELECT organization_id, memory_a, memory_b, count, edge_weight, last_coactivated_at
		FROM coactivation_edges
		WHERE organization_id = $1 AND edge_weight >= $2
		ORDER BY edge_weight DESC
		LIMIT $3`, orgID, minWeight, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.CoactivationEdge
	for rows.Next() {
		var e models.CoactivationEdge
		if err := rows.Scan(&e.OrganizationID, &e.MemoryA, &e.MemoryB, &e.Count, &e.EdgeWeight, &e.LastCoactivatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
