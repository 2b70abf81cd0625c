package config

import "time"

// RetentionConfig controls background reaping behavior for short-term
// memories and soft-deleted rows.
type RetentionConfig struct {
	// ShortTermTTL is how long a short-term memory survives without being
	// promoted to long-term before the reaper considers it expired.
	ShortTermTTL time.Duration `yaml:"short_term_ttl"`

	// SoftDeleteGracePeriod is how long a soft-deleted memory (is_active
	// false) is kept before the reaper hard-deletes it, skipping anything
	// under legal hold.
	SoftDeleteGracePeriod time.Duration `yaml:"soft_delete_grace_period"`

	// CleanupInterval is how often the reaper loop runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		ShortTermTTL:          72 * time.Hour,
		SoftDeleteGracePeriod: 30 * 24 * time.Hour,
		CleanupInterval:       12 * time.Hour,
	}
}
