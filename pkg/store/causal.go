package store

import (
	"context"
	"errors"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sansten/memoryos/pkg/apperrors"
	"github.com/sansten/memoryos/pkg/models"
)

// CausalHypothesisStore is the pgx-backed repository for derived
// causal/correlational claims over memory pairs.
type CausalHypothesisStore struct {
	pool *pgxpool.Pool
}

// NewCausalHypothesisStore constructs a CausalHypothesisStore. Panics if
// pool is nil.
func NewCausalHypothesisStore(pool *pgxpool.Pool) *CausalHypothesisStore {
	if pool == nil {
		panic("store: NewCausalHypothesisStore requires a non-nil pool")
	}
	return &CausalHypothesisStore{pool: pool}
}

// findByEvidence looks for an existing hypothesis with the same (org,
// relation, evidence_ids) set. There is no unique index to ON CONFLICT
// against (evidence_ids is an array of arbitrary arity), so this does an
// explicit scan-and-match, acceptable given an org's hypothesis count is
// small relative to its memory count.
func (s *CausalHypothesisStore) findByEvidence(ctx context.Context, tx pgx.Tx, orgID string, relation models.CausalRelation, evidenceIDs []string) (*models.CausalHypothesis, error) {
	sorted := append([]string(nil), evidenceIDs...)
	sort.Strings(sorted)

	rows, err := tx.Query(ctx, `
		SELECT id, organization_id, relation, evidence_memory_ids, confidence, status, updated_at
		FROM causal_hypotheses
		WHERE organization_id = $1 AND relation = $2`, orgID, string(relation))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		h, err := scanCausalHypothesis(rows)
		if err != nil {
			return nil, err
		}
		candidate := append([]string(nil), h.EvidenceMemoryIDs...)
		sort.Strings(candidate)
		if equalStrings(candidate, sorted) {
			return h, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func scanCausalHypothesis(row pgx.Rows) (*models.CausalHypothesis, error) {
	var h models.CausalHypothesis
	var relation, status string
	if err := row.Scan(&h.ID, &h.OrganizationID, &relation, &h.EvidenceMemoryIDs, &h.Confidence, &status, &h.UpdatedAt); err != nil {
		return nil, err
	}
	h.Relation = models.CausalRelation(relation)
	h.Status = models.CausalStatus(status)
	return &h, nil
}

// UpsertFromEdge derives or refreshes a CausalHypothesis from one
// co-activation edge: if a non-rejected hypothesis already exists for the
// same evidence pair, its confidence is raised to the maximum observed and
// a contested status resurrects to proposed; otherwise a new proposed
// hypothesis is created.
func (s *CausalHypothesisStore) UpsertFromEdge(ctx context.Context, tx pgx.Tx, orgID string, evidenceIDs []string, confidence float64) error {
	existing, err := s.findByEvidence(ctx, tx, orgID, models.CausalRelationCorrelates, evidenceIDs)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return err
	}

	if existing == nil {
		_, err := tx.Exec(ctx, `
			INSERT INTO causal_hypotheses (organization_id, relation, evidence_memory_ids, confidence, status)
			VALUES ($1, $2, $3, $4, 'proposed')`,
			orgID, string(models.CausalRelationCorrelates), evidenceIDs, confidence)
		return err
	}

	if existing.Status == models.CausalStatusRejected {
		return nil
	}

	newConfidence := existing.Confidence
	if confidence > newConfidence {
		newConfidence = confidence
	}
	newStatus := existing.Status
	if newStatus == models.CausalStatusContested {
		newStatus = models.CausalStatusProposed
	}

	_, err = tx.Exec(ctx, `
		UPDATE causal_hypotheses SET confidence = $2, status = $3, updated_at = now()
		WHERE id = $1`, existing.ID, newConfidence, string(newStatus))
	return err
}
