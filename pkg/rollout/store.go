//go:build rollout_enterprise

// Package rollout implements the Staged Rollout Manager: the
// draft → canary → staged → active → (superseded | rolled_back) lifecycle
// and auto-rollback. Gated behind the rollout_enterprise build tag (see
// DESIGN.md "Staged Rollout Manager build gate"); the non-tagged build
// (stub.go) returns ErrRolloutManagerDisabled from every method.
package rollout

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sansten/memoryos/pkg/apperrors"
	"github.com/sansten/memoryos/pkg/models"
)

// Store is the pgx-backed repository for policy_versions.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store. Panics if pool is nil.
func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("rollout: NewStore requires a non-nil pool")
	}
	return &Store{pool: pool}
}

// nextVersion returns the next version number for (org, policyName).
func (s *Store) nextVersion(ctx context.Context, tx pgx.Tx, orgID, policyName string) (int, error) {
	var max int
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(version), 0) FROM policy_versions
		WHERE organization_id = $1 AND policy_name = $2`, orgID, policyName).Scan(&max)
	return max + 1, err
}

// CreateDraft assigns the next version per (org, policy_name) and inserts a
// draft row.
func (s *Store) CreateDraft(ctx context.Context, tx pgx.Tx, pv *models.PolicyVersion) error {
	version, err := s.nextVersion(ctx, tx, pv.OrganizationID, pv.PolicyName)
	if err != nil {
		return fmt.Errorf("resolving next version: %w", err)
	}
	pv.Version = version
	pv.RolloutStatus = models.RolloutDraft

	policyConfig, err := json.Marshal(pv.PolicyConfig)
	if err != nil {
		return fmt.Errorf("marshaling policy config: %w", err)
	}
	var validationSchema []byte
	if pv.ValidationSchema != nil {
		validationSchema, err = json.Marshal(pv.ValidationSchema)
		if err != nil {
			return fmt.Errorf("marshaling validation schema: %w", err)
		}
	}

	return tx.QueryRow(ctx, `
		INSERT INTO policy_versions (organization_id, policy_name, version, rollout_status,
			canary_group_ids, policy_config, validation_schema)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id, created_at, updated_at`,
		pv.OrganizationID, pv.PolicyName, pv.Version, pv.RolloutStatus,
		pv.CanaryGroupIDs, policyConfig, validationSchema,
	).Scan(&pv.ID, &pv.CreatedAt, &pv.UpdatedAt)
}

// Get loads a policy version by id.
func (s *Store) Get(ctx context.Context, tx pgx.Tx, orgID, id string) (*models.PolicyVersion, error) {
	row := tx.QueryRow(ctx, selectPolicyVersionSQL+` WHERE organization_id = $1 AND id = $2`, orgID, id)
	return scanPolicyVersion(row)
}

// GetActive returns the single active version of (org, policyName), if any.
func (s *Store) GetActive(ctx context.Context, tx pgx.Tx, orgID, policyName string) (*models.PolicyVersion, error) {
	row := tx.QueryRow(ctx, selectPolicyVersionSQL+`
		WHERE organization_id = $1 AND policy_name = $2 AND rollout_status = 'active'`, orgID, policyName)
	return scanPolicyVersion(row)
}

// GetByVersion returns a specific (org, policyName, version) row.
func (s *Store) GetByVersion(ctx context.Context, tx pgx.Tx, orgID, policyName string, version int) (*models.PolicyVersion, error) {
	row := tx.QueryRow(ctx, selectPolicyVersionSQL+`
		WHERE organization_id = $1 AND policy_name = $2 AND version = $3`, orgID, policyName, version)
	return scanPolicyVersion(row)
}

const selectPolicyVersionSQL = `
	SELECT id, organization_id, policy_name, version, rollout_status, rollout_percentage,
		canary_group_ids, policy_config, validation_schema, success_count, failure_count,
		error_rate, activated_at, superseded_by_version, rolled_back_to_version, created_at, updated_at
	FROM policy_versions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicyVersion(row rowScanner) (*models.PolicyVersion, error) {
	pv := &models.PolicyVersion{}
	var policyConfig, validationSchema []byte
	if err := row.Scan(&pv.ID, &pv.OrganizationID, &pv.PolicyName, &pv.Version, &pv.RolloutStatus, &pv.RolloutPercentage,
		&pv.CanaryGroupIDs, &policyConfig, &validationSchema, &pv.SuccessCount, &pv.FailureCount,
		&pv.ErrorRate, &pv.ActivatedAt, &pv.SupersededBy, &pv.RolledBackTo, &pv.CreatedAt, &pv.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	if len(policyConfig) > 0 {
		if err := json.Unmarshal(policyConfig, &pv.PolicyConfig); err != nil {
			return nil, fmt.Errorf("unmarshaling policy config: %w", err)
		}
	}
	if len(validationSchema) > 0 {
		if err := json.Unmarshal(validationSchema, &pv.ValidationSchema); err != nil {
			return nil, fmt.Errorf("unmarshaling validation schema: %w", err)
		}
	}
	return pv, nil
}

// setCanary moves a draft version to canary. Each lifecycle transition has
// its own small helper like this one, with its own SET clause, rather than
// one giant parameterized UPDATE, matching
// the established preference for explicit, narrowly-scoped SQL per operation.
func (s *Store) setCanary(ctx context.Context, tx pgx.Tx, orgID, id string, groupIDs []string) error {
	_, err := tx.Exec(ctx, `
		UPDATE policy_versions SET rollout_status = 'canary', canary_group_ids = $3, updated_at = now()
		WHERE organization_id = $1 AND id = $2 AND rollout_status = 'draft'`, orgID, id, groupIDs)
	return err
}

func (s *Store) setStaged(ctx context.Context, tx pgx.Tx, orgID, id string, percentage float64) error {
	tag, err := tx.Exec(ctx, `
		UPDATE policy_versions SET rollout_status = 'staged', rollout_percentage = $3, updated_at = now()
		WHERE organization_id = $1 AND id = $2 AND rollout_status IN ('canary', 'staged')`, orgID, id, percentage)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewValidationError("rollout_status", "promote_to_staged requires status canary or staged")
	}
	return nil
}

func (s *Store) setActive(ctx context.Context, tx pgx.Tx, orgID, id string) error {
	_, err := tx.Exec(ctx, `
		UPDATE policy_versions SET rollout_status = 'active', rollout_percentage = 1.0, activated_at = now(), updated_at = now()
		WHERE organization_id = $1 AND id = $2`, orgID, id)
	return err
}

func (s *Store) supersede(ctx context.Context, tx pgx.Tx, orgID, id string, supersededByVersion int) error {
	_, err := tx.Exec(ctx, `
		UPDATE policy_versions SET rollout_status = 'superseded', superseded_by_version = $3, updated_at = now()
		WHERE organization_id = $1 AND id = $2`, orgID, id, supersededByVersion)
	return err
}

func (s *Store) rollback(ctx context.Context, tx pgx.Tx, orgID, id string, toVersion *int) error {
	_, err := tx.Exec(ctx, `
		UPDATE policy_versions SET rollout_status = 'rolled_back', rolled_back_to_version = $3, updated_at = now()
		WHERE organization_id = $1 AND id = $2`, orgID, id, toVersion)
	return err
}

func (s *Store) reactivate(ctx context.Context, tx pgx.Tx, orgID, id string) error {
	_, err := tx.Exec(ctx, `
		UPDATE policy_versions SET rollout_status = 'active', activated_at = now(), updated_at = now()
		WHERE organization_id = $1 AND id = $2`, orgID, id)
	return err
}

// RecordEvaluation increments success/failure counters and recomputes
// error_rate. Reads-then-writes within the caller's
// transaction rather than a single clever UPDATE, so the arithmetic is
// plainly visible in Go rather than hidden in old-row/new-row SQL semantics.
func (s *Store) RecordEvaluation(ctx context.Context, tx pgx.Tx, orgID, id string, success bool) (*models.PolicyVersion, error) {
	pv, err := s.Get(ctx, tx, orgID, id)
	if err != nil {
		return nil, err
	}
	if success {
		pv.SuccessCount++
	} else {
		pv.FailureCount++
	}
	total := pv.SuccessCount + pv.FailureCount
	if total > 0 {
		pv.ErrorRate = float64(pv.FailureCount) / float64(total)
	}

	_, err = tx.Exec(ctx, `
		UPDATE policy_versions SET success_count = $3, failure_count = $4, error_rate = $5, updated_at = now()
		WHERE organization_id = $1 AND id = $2`, orgID, id, pv.SuccessCount, pv.FailureCount, pv.ErrorRate)
	if err != nil {
		return nil, err
	}
	return pv, nil
}
