package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultSearchConfig(t *testing.T) {
	cfg := DefaultSearchConfig()
	assert.Equal(t, "hybrid", cfg.HybridModeDefault)
	assert.Greater(t, cfg.CoactivationLambda, 0.0)
	assert.Greater(t, cfg.DefaultTopK, 0)
}

func TestDefaultQueueConfig(t *testing.T) {
	cfg := DefaultQueueConfig()
	assert.GreaterOrEqual(t, cfg.WorkerCount, 1)
	assert.Greater(t, cfg.MaxRetries, 0)
	assert.Greater(t, cfg.TaskTimeout, cfg.PollInterval)
}

func TestDefaultRetentionConfig(t *testing.T) {
	cfg := DefaultRetentionConfig()
	assert.Greater(t, cfg.SoftDeleteGracePeriod, cfg.ShortTermTTL)
}

func TestConfigDir(t *testing.T) {
	cfg := &Config{configDir: "/etc/memoryos"}
	assert.Equal(t, "/etc/memoryos", cfg.ConfigDir())
}
