package mask

import (
	"log/slog"
	"regexp"
)

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Description string
}

// PatternSpec is the declarative form of a pattern, as loaded from the
// built-in pattern table or config overlay.
type PatternSpec struct {
	Pattern     string
	Replacement string
	Description string
}

// builtinPatterns is the fixed set of regex patterns memoryOS ships with,
// grouped under named pattern groups selectable via config.MaskingDefaults.PatternGroup.
var builtinPatterns = map[string]PatternSpec{
	"email": {
		Pattern:     `[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`,
		Replacement: "[MASKED_EMAIL]",
		Description: "Email addresses",
	},
	"credit_card": {
		Pattern:     `\b(?:\d[ -]*?){13,16}\b`,
		Replacement: "[MASKED_CARD]",
		Description: "Credit card-like digit sequences",
	},
	"ssn": {
		Pattern:     `\b\d{3}-\d{2}-\d{4}\b`,
		Replacement: "[MASKED_SSN]",
		Description: "US social security numbers",
	},
	"api_key": {
		Pattern:     `(?i)\b(?:api[_-]?key|secret|token)\b\s*[:=]\s*["']?[A-Za-z0-9_\-]{12,}["']?`,
		Replacement: "[MASKED_CREDENTIAL]",
		Description: "Inline credential-shaped key/value pairs",
	},
	"ipv4": {
		Pattern:     `\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`,
		Replacement: "[MASKED_IP]",
		Description: "IPv4 addresses",
	},
}

// patternGroups maps a named group to the pattern names it activates.
var patternGroups = map[string][]string{
	"pii":    {"email", "credit_card", "ssn", "ipv4"},
	"secret": {"api_key"},
	"all":    {"email", "credit_card", "ssn", "ipv4", "api_key"},
}

// compilePatternGroup compiles every pattern in the named group. Unknown
// pattern names and compile failures are logged and skipped, never fatal —
// a bad built-in pattern must not prevent the service from starting.
func compilePatternGroup(group string) []*CompiledPattern {
	names, ok := patternGroups[group]
	if !ok {
		slog.Warn("mask: unknown pattern group, no patterns applied", "group", group)
		return nil
	}

	var compiled []*CompiledPattern
	for _, name := range names {
		spec, ok := builtinPatterns[name]
		if !ok {
			continue
		}
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			slog.Error("mask: failed to compile built-in pattern, skipping", "pattern", name, "error", err)
			continue
		}
		compiled = append(compiled, &CompiledPattern{
			Name:        name,
			Regex:       re,
			Replacement: spec.Replacement,
			Description: spec.Description,
		})
	}
	return compiled
}
