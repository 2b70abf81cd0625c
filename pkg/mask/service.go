package mask

import (
	"log/slog"

	"github.com/sansten/memoryos/pkg/config"
)

// Service applies content masking to memory payloads before they leave the
// system boundary — exports (pkg/export) and the agent pipeline
// (pkg/agentrunner) are the two call sites. Created once at startup from
// config.Defaults.Masking and safe for concurrent use; it holds no mutable
// state beyond its compiled patterns.
type Service struct {
	enabled  bool
	patterns []*CompiledPattern
	maskers  []Masker
}

// NewService builds a masking service from the resolved defaults. A nil or
// disabled MaskingDefaults yields a no-op service (Mask returns input
// unchanged) rather than an error — masking is a safety net, not a
// hard dependency wiring should fail on.
func NewService(cfg *config.MaskingDefaults) *Service {
	if cfg == nil || !cfg.Enabled {
		slog.Info("mask: service disabled")
		return &Service{enabled: false}
	}

	s := &Service{
		enabled:  true,
		patterns: compilePatternGroup(cfg.PatternGroup),
		maskers:  []Masker{&StructuredFieldMasker{}},
	}
	slog.Info("mask: service initialized", "pattern_group", cfg.PatternGroup, "patterns", len(s.patterns))
	return s
}

// Mask applies structured-field redaction followed by a regex sweep.
// Masker implementations return their input unchanged on error. Mask does
// not recover from a panicking masker; such a panic reaches the caller.
func (s *Service) Mask(content string) string {
	if !s.enabled || content == "" {
		return content
	}

	masked := content
	for _, m := range s.maskers {
		if m.AppliesTo(masked) {
			masked = m.Mask(masked)
		}
	}
	for _, p := range s.patterns {
		masked = p.Regex.ReplaceAllString(masked, p.Replacement)
	}
	return masked
}

// Enabled reports whether masking is active, so callers (e.g. export
// manifests) can record whether a payload was run through redaction.
func (s *Service) Enabled() bool {
	return s.enabled
}
