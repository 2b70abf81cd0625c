package taskqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sansten/memoryos/pkg/config"
)

func TestBackgroundTaskTimeout(t *testing.T) {
	assert.Equal(t, 60*time.Second, backgroundTaskTimeout(1000))
	assert.Equal(t, 100*time.Second, backgroundTaskTimeout(20000))
}

func TestRetryBackoff(t *testing.T) {
	cfg := &config.QueueConfig{RetryBackoffBase: 5 * time.Second}
	assert.Equal(t, 5*time.Second, retryBackoff(cfg, 1))
	assert.Equal(t, 20*time.Second, retryBackoff(cfg, 3))
}
