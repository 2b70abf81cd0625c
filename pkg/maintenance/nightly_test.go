package maintenance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewNightlyJobPanicsOnNilDeps(t *testing.T) {
	assert.Panics(t, func() { NewNightlyJob(nil, nil, nil, nil, 0) })
}

func TestNewExecutorPanicsOnNilDeps(t *testing.T) {
	assert.Panics(t, func() { NewExecutor(nil, nil) })
}
