//go:build rollout_enterprise

package rollout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStorePanicsOnNilPool(t *testing.T) {
	assert.Panics(t, func() { NewStore(nil) })
}

func TestNewServicePanicsOnNilDeps(t *testing.T) {
	assert.Panics(t, func() { NewService(nil, nil, nil) })
}

func TestAutoRollbackThresholds(t *testing.T) {
	assert.Equal(t, 0.1, autoRollbackErrorRateThreshold)
	assert.Equal(t, 100, autoRollbackMinEvaluations)
}
