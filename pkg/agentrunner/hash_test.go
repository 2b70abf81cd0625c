package agentrunner

import "testing"

func TestStableHashDeterministic(t *testing.T) {
	a := stableHash("agent", "v1", map[string]any{"b": 1, "a": 2})
	b := stableHash("agent", "v1", map[string]any{"a": 2, "b": 1})
	if a != b {
		t.Fatalf("expected stable hash regardless of map key order, got %q vs %q", a, b)
	}
}

func TestStableHashDiffersOnInput(t *testing.T) {
	a := stableHash("agent", "v1")
	b := stableHash("agent", "v2")
	if a == b {
		t.Fatalf("expected different hashes for different inputs")
	}
}
