//go:build rollout_enterprise

package rollout

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sansten/memoryos/pkg/apperrors"
	"github.com/sansten/memoryos/pkg/models"
	"github.com/sansten/memoryos/pkg/notify"
	"github.com/sansten/memoryos/pkg/store"
	"github.com/sansten/memoryos/pkg/tenant"
)

// autoRollbackErrorRateThreshold and autoRollbackMinEvaluations are the
// defaults named in "Auto-rollback": check_auto_rollback(threshold=0.1,
// min_evaluations=100).
const (
	autoRollbackErrorRateThreshold = 0.1
	autoRollbackMinEvaluations     = 100
)

// Service implements the Staged Rollout Manager, built in the
// established service idiom.
type Service struct {
	db     *pgxpool.Pool
	store  *Store
	notify *notify.Notifier
}

// NewService constructs a Service. Panics if db or st is nil.
func NewService(db *pgxpool.Pool, st *Store, notifier *notify.Notifier) *Service {
	if db == nil || st == nil {
		panic("rollout: NewService requires non-nil db and store")
	}
	return &Service{db: db, store: st, notify: notifier}
}

// CreatePolicyVersion assigns the next version and inserts a draft row.
func (s *Service) CreatePolicyVersion(ctx context.Context, tc *tenant.Context, pv *models.PolicyVersion) (*models.PolicyVersion, error) {
	if pv.PolicyName == "" {
		return nil, apperrors.NewValidationError("policy_name", "policy name is required")
	}
	pv.OrganizationID = tc.OrganizationID
	err := store.WithTenantSession(ctx, s.db, tc, func(ctx context.Context, tx pgx.Tx) error {
		return s.store.CreateDraft(ctx, tx, pv)
	})
	if err != nil {
		return nil, err
	}
	return pv, nil
}

// Get fetches a single policy version by id.
func (s *Service) Get(ctx context.Context, tc *tenant.Context, id string) (*models.PolicyVersion, error) {
	var pv *models.PolicyVersion
	err := store.WithTenantSession(ctx, s.db, tc, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		pv, err = s.store.Get(ctx, tx, tc.OrganizationID, id)
		return err
	})
	return pv, err
}

// DeployToCanary moves a draft version to canary, storing the explicit
// canary group ids; rollout_percentage remains 0.
func (s *Service) DeployToCanary(ctx context.Context, tc *tenant.Context, id string, canaryGroupIDs []string) error {
	return store.WithTenantSession(ctx, s.db, tc, func(ctx context.Context, tx pgx.Tx) error {
		return s.store.setCanary(ctx, tx, tc.OrganizationID, id, canaryGroupIDs)
	})
}

// PromoteToStaged moves a canary or staged version to staged at the given
// rollout percentage.
func (s *Service) PromoteToStaged(ctx context.Context, tc *tenant.Context, id string, percentage float64) error {
	if percentage < 0 || percentage > 1 {
		return apperrors.NewValidationError("percentage", "must be between 0 and 1")
	}
	return store.WithTenantSession(ctx, s.db, tc, func(ctx context.Context, tx pgx.Tx) error {
		return s.store.setStaged(ctx, tx, tc.OrganizationID, id, percentage)
	})
}

// ActivateFully sets status=active, rollout_percentage=1.0, activated_at=now,
// and transitions any currently active version in the same (org, name) to
// superseded.
func (s *Service) ActivateFully(ctx context.Context, tc *tenant.Context, id string) error {
	return store.WithTenantSession(ctx, s.db, tc, func(ctx context.Context, tx pgx.Tx) error {
		pv, err := s.store.Get(ctx, tx, tc.OrganizationID, id)
		if err != nil {
			return err
		}

		if current, err := s.store.GetActive(ctx, tx, tc.OrganizationID, pv.PolicyName); err == nil {
			if err := s.store.supersede(ctx, tx, tc.OrganizationID, current.ID, pv.Version); err != nil {
				return err
			}
		} else if err != apperrors.ErrNotFound {
			return err
		}

		return s.store.setActive(ctx, tx, tc.OrganizationID, id)
	})
}

// Rollback sets status=rolled_back, records reason and target, and
// reactivates a previous active/superseded version if one exists.
func (s *Service) Rollback(ctx context.Context, tc *tenant.Context, id, reason string, toVersion *int) error {
	return store.WithTenantSession(ctx, s.db, tc, func(ctx context.Context, tx pgx.Tx) error {
		pv, err := s.store.Get(ctx, tx, tc.OrganizationID, id)
		if err != nil {
			return err
		}
		if err := s.store.rollback(ctx, tx, tc.OrganizationID, id, toVersion); err != nil {
			return err
		}

		target := toVersion
		if target == nil {
			prev := pv.Version - 1
			target = &prev
		}
		if prior, err := s.store.GetByVersion(ctx, tx, tc.OrganizationID, pv.PolicyName, *target); err == nil {
			if prior.RolloutStatus == models.RolloutActive || prior.RolloutStatus == models.RolloutSuperseded {
				if err := s.store.reactivate(ctx, tx, tc.OrganizationID, prior.ID); err != nil {
					return err
				}
			}
		} else if err != apperrors.ErrNotFound {
			return err
		}

		if s.notify != nil {
			s.notify.AutoRollback(ctx, tc.OrganizationID, pv.PolicyName, pv.Version, *target, pv.ErrorRate)
		}
		return nil
	})
}

// RecordEvaluation increments success/failure counters and recomputes
// error_rate.
func (s *Service) RecordEvaluation(ctx context.Context, tc *tenant.Context, id string, success bool) (*models.PolicyVersion, error) {
	var pv *models.PolicyVersion
	err := store.WithTenantSession(ctx, s.db, tc, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		pv, err = s.store.RecordEvaluation(ctx, tx, tc.OrganizationID, id, success)
		return err
	})
	return pv, err
}

// CheckAutoRollback triggers a rollback when error_rate exceeds threshold
// and enough evaluations have accumulated. Returns
// whether a rollback was triggered.
func (s *Service) CheckAutoRollback(ctx context.Context, tc *tenant.Context, id string) (bool, error) {
	var triggered bool
	err := store.WithTenantSession(ctx, s.db, tc, func(ctx context.Context, tx pgx.Tx) error {
		pv, err := s.store.Get(ctx, tx, tc.OrganizationID, id)
		if err != nil {
			return err
		}
		total := pv.SuccessCount + pv.FailureCount
		if total < autoRollbackMinEvaluations || pv.ErrorRate <= autoRollbackErrorRateThreshold {
			return nil
		}

		if err := s.store.rollback(ctx, tx, tc.OrganizationID, id, nil); err != nil {
			return err
		}
		triggered = true

		if prev := pv.Version - 1; prev > 0 {
			if prior, err := s.store.GetByVersion(ctx, tx, tc.OrganizationID, pv.PolicyName, prev); err == nil {
				_ = s.store.reactivate(ctx, tx, tc.OrganizationID, prior.ID)
			}
		}

		if s.notify != nil {
			s.notify.AutoRollback(ctx, tc.OrganizationID, pv.PolicyName, pv.Version, pv.Version-1, pv.ErrorRate)
		}
		return nil
	})
	return triggered, err
}
