package cleanup

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sansten/memoryos/pkg/config"
)

func TestNewServicePanicsOnNilDeps(t *testing.T) {
	assert.Panics(t, func() { NewService(nil, nil, nil, nil) })
	assert.Panics(t, func() { NewService(config.DefaultRetentionConfig(), nil, nil, nil) })
}

func TestStopBeforeStartIsNoOp(t *testing.T) {
	// Stop before Start must not panic or block.
	s := &Service{}
	s.Stop()
}
