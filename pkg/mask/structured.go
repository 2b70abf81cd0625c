package mask

import (
	"encoding/json"
	"strings"
)

// RedactedFieldValue is the replacement used for redacted structured fields.
const RedactedFieldValue = "[MASKED_FIELD]"

// sensitiveKeys names object keys that are always redacted when found inside
// a JSON object, regardless of which pattern group is active — these show up
// in memory metadata (e.g. a captured API response) and in GoalGraph/agent
// outputs pulled from external tools.
var sensitiveKeys = map[string]bool{
	"password":      true,
	"passwd":        true,
	"secret":        true,
	"api_key":       true,
	"apikey":        true,
	"access_token":  true,
	"refresh_token": true,
	"private_key":   true,
	"authorization": true,
}

// StructuredFieldMasker parses content as a JSON object and redacts any
// value whose key name is credential-shaped, recursing into nested objects
// and arrays. It never touches non-JSON content.
type StructuredFieldMasker struct{}

func (m *StructuredFieldMasker) Name() string { return "structured_field" }

// AppliesTo performs a cheap pre-check before attempting a full parse.
func (m *StructuredFieldMasker) AppliesTo(data string) bool {
	trimmed := strings.TrimSpace(data)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

// Mask parses data as JSON, redacts sensitive fields, and re-serializes.
// Returns the original data unchanged on any parse or serialization error.
func (m *StructuredFieldMasker) Mask(data string) string {
	var doc any
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return data
	}

	redacted, changed := redactValue(doc)
	if !changed {
		return data
	}

	out, err := json.Marshal(redacted)
	if err != nil {
		return data
	}
	return string(out)
}

// redactValue walks v, redacting object values under sensitive keys.
// Returns the (possibly unmodified) value and whether anything changed.
func redactValue(v any) (any, bool) {
	switch t := v.(type) {
	case map[string]any:
		changed := false
		for k, val := range t {
			if sensitiveKeys[strings.ToLower(k)] {
				if s, ok := val.(string); !ok || s != RedactedFieldValue {
					t[k] = RedactedFieldValue
					changed = true
				}
				continue
			}
			nested, nestedChanged := redactValue(val)
			if nestedChanged {
				t[k] = nested
				changed = true
			}
		}
		return t, changed
	case []any:
		changed := false
		for i, item := range t {
			nested, nestedChanged := redactValue(item)
			if nestedChanged {
				t[i] = nested
				changed = true
			}
		}
		return t, changed
	default:
		return v, false
	}
}
