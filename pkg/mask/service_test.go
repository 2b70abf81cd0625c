package mask

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sansten/memoryos/pkg/config"
)

func TestServiceDisabledIsNoOp(t *testing.T) {
	s := NewService(nil)
	assert.False(t, s.Enabled())
	assert.Equal(t, "contact me at a@b.com", s.Mask("contact me at a@b.com"))
}

func TestServiceMasksEmail(t *testing.T) {
	s := NewService(&config.MaskingDefaults{Enabled: true, PatternGroup: "pii"})
	got := s.Mask("contact me at a@b.com please")
	assert.Contains(t, got, "[MASKED_EMAIL]")
	assert.NotContains(t, got, "a@b.com")
}

func TestServiceMasksStructuredSecretField(t *testing.T) {
	s := NewService(&config.MaskingDefaults{Enabled: true, PatternGroup: "pii"})
	got := s.Mask(`{"user":"alice","password":"hunter2"}`)
	assert.Contains(t, got, RedactedFieldValue)
	assert.NotContains(t, got, "hunter2")
}

func TestServiceUnknownGroupYieldsNoPatterns(t *testing.T) {
	s := NewService(&config.MaskingDefaults{Enabled: true, PatternGroup: "nonexistent"})
	assert.True(t, s.Enabled())
	assert.Empty(t, s.patterns)
}
