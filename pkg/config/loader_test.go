package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeOverlay(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "memoryos.yaml"), []byte(content), 0o644))
}

func TestInitializeWithNoOverlayUsesDefaults(t *testing.T) {
	t.Setenv("JWT_SIGNING_KEY_ENV", "")
	t.Setenv("POSTGRES_HOST", "localhost")

	dir := t.TempDir()
	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, DefaultQueueConfig().WorkerCount, cfg.Queue.WorkerCount)
	assert.Equal(t, "hybrid", cfg.Search.HybridModeDefault)
	assert.Equal(t, "JWT_SIGNING_KEY", cfg.JWT.SigningKeyEnv)
}

func TestInitializeMergesYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	writeOverlay(t, dir, `
search:
  hybrid_mode_default: vector
  default_top_k: 50
queue:
  worker_count: 12
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, "vector", cfg.Search.HybridModeDefault)
	assert.Equal(t, 50, cfg.Search.DefaultTopK)
	assert.Equal(t, 12, cfg.Queue.WorkerCount)
}

func TestEnvOverrideWinsOverYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	writeOverlay(t, dir, `
search:
  hybrid_mode_default: vector
`)
	t.Setenv("SEARCH_HYBRID_MODE_DEFAULT", "lexical")

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, "lexical", cfg.Search.HybridModeDefault)
}

func TestInitializeMissingOverlayFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	_, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
}

func TestInitializeRejectsInvalidQueueWorkerCount(t *testing.T) {
	dir := t.TempDir()
	writeOverlay(t, dir, `
queue:
  worker_count: 0
`)
	t.Setenv("QUEUE_WORKER_COUNT", "0")

	_, err := Initialize(context.Background(), dir)
	assert.Error(t, err)
}

func TestInitializeRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	writeOverlay(t, dir, "search: [this is not valid")

	_, err := Initialize(context.Background(), dir)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}
