package memstore

import "testing"

func TestContentHashDeterministic(t *testing.T) {
	a := contentHash("hello world")
	b := contentHash("hello world")
	if a != b {
		t.Fatalf("expected deterministic hash, got %q and %q", a, b)
	}
	if a == contentHash("different content") {
		t.Fatalf("expected different content to hash differently")
	}
}
