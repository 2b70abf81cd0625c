package config

// Defaults contains system-wide default configurations applied when a
// YAML overlay doesn't specify a value.
type Defaults struct {
	// DefaultClassification is the configured default memory classification.
	// The create path does not read it; a create request must carry one.
	DefaultClassification string `yaml:"default_classification,omitempty"`

	// DefaultMemoryType is the configured default memory type. The create
	// path does not read it; a create request must carry one.
	DefaultMemoryType string `yaml:"default_memory_type,omitempty"`

	// SystemTaskUserID is the synthetic user id maintenance workers act as,
	// overridable via SYSTEM_TASK_USER_ID.
	SystemTaskUserID string `yaml:"system_task_user_id,omitempty"`

	// MaskingDefaults holds content masking settings applied to exports and
	// to agent-pipeline content (pkg/agentrunner).
	Masking *MaskingDefaults `yaml:"masking,omitempty"`
}

// MaskingDefaults holds content masking settings for exported/outbound
// memory payloads.
type MaskingDefaults struct {
	Enabled      bool   `yaml:"enabled"`
	PatternGroup string `yaml:"pattern_group"`
}

// DefaultDefaults returns the built-in system defaults.
func DefaultDefaults() *Defaults {
	return &Defaults{
		DefaultClassification: "internal",
		DefaultMemoryType:     "episodic",
		SystemTaskUserID:      "system",
		Masking: &MaskingDefaults{
			Enabled:      true,
			PatternGroup: "pii",
		},
	}
}
