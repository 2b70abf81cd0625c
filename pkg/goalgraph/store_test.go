package goalgraph

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
