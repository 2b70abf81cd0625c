//go:build !rollout_enterprise

// Package rollout, in builds without the rollout_enterprise tag, exposes
// only ErrRolloutManagerDisabled — the Staged Rollout Manager is an
// optional component and this repository's default
// Makefile target builds with the tag enabled; a bare `go build` without it
// gets this stub instead.
package rollout

import (
	"context"
	"errors"

	"github.com/sansten/memoryos/pkg/models"
	"github.com/sansten/memoryos/pkg/tenant"
)

// ErrRolloutManagerDisabled is returned by every Service method in a build
// without the rollout_enterprise tag.
var ErrRolloutManagerDisabled = errors.New("rollout: manager disabled in this build (missing rollout_enterprise build tag)")

// Store is an empty placeholder so callers that reference rollout.Store in
// shared wiring code still compile against either build variant.
type Store struct{}

// NewStore returns a non-functional Store; pool is accepted for signature
// compatibility with the enterprise build and otherwise ignored.
func NewStore(pool any) *Store { return &Store{} }

// Service is an empty placeholder; every method returns ErrRolloutManagerDisabled.
type Service struct{}

// NewService returns a non-functional Service.
func NewService(db any, st *Store, notifier any) *Service { return &Service{} }

func (s *Service) CreatePolicyVersion(ctx context.Context, tc *tenant.Context, pv *models.PolicyVersion) (*models.PolicyVersion, error) {
	return nil, ErrRolloutManagerDisabled
}

func (s *Service) Get(ctx context.Context, tc *tenant.Context, id string) (*models.PolicyVersion, error) {
	return nil, ErrRolloutManagerDisabled
}

func (s *Service) DeployToCanary(ctx context.Context, tc *tenant.Context, id string, canaryGroupIDs []string) error {
	return ErrRolloutManagerDisabled
}

func (s *Service) PromoteToStaged(ctx context.Context, tc *tenant.Context, id string, percentage float64) error {
	return ErrRolloutManagerDisabled
}

func (s *Service) ActivateFully(ctx context.Context, tc *tenant.Context, id string) error {
	return ErrRolloutManagerDisabled
}

func (s *Service) Rollback(ctx context.Context, tc *tenant.Context, id, reason string, toVersion *int) error {
	return ErrRolloutManagerDisabled
}

func (s *Service) RecordEvaluation(ctx context.Context, tc *tenant.Context, id string, success bool) (*models.PolicyVersion, error) {
	return nil, ErrRolloutManagerDisabled
}

func (s *Service) CheckAutoRollback(ctx context.Context, tc *tenant.Context, id string) (bool, error) {
	return false, ErrRolloutManagerDisabled
}
