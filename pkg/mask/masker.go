package mask

// Masker is the interface for structure-aware maskers that need more than
// regex matching to redact sensitive fields (e.g. parsing a JSON/YAML blob
// stored as memory metadata and redacting only credential-shaped keys).
type Masker interface {
	// Name returns the unique identifier for this masker.
	Name() string

	// AppliesTo performs a lightweight check on whether this masker should
	// process the data. Should be fast (string contains, not full parsing).
	AppliesTo(data string) bool

	// Mask applies masking logic and returns the masked result. Must be
	// defensive: return the original data on parse/processing errors.
	Mask(data string) string
}
