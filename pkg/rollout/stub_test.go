//go:build !rollout_enterprise

package rollout

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sansten/memoryos/pkg/tenant"
)

func TestStubServiceReturnsDisabledError(t *testing.T) {
	s := NewService(nil, NewStore(nil), nil)
	tc := tenant.SystemContext("org1")
	_, err := s.CreatePolicyVersion(context.Background(), tc, nil)
	assert.ErrorIs(t, err, ErrRolloutManagerDisabled)

	assert.ErrorIs(t, s.DeployToCanary(context.Background(), tc, "id", nil), ErrRolloutManagerDisabled)
	assert.ErrorIs(t, s.ActivateFully(context.Background(), tc, "id"), ErrRolloutManagerDisabled)
}
