package config

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnv(t *testing.T) {
	tests := []struct {
		name  string
		input string
		env   map[string]string
		want  string
	}{
		{
			name:  "braced substitution",
			input: "url: ${REDIS_URL}",
			env:   map[string]string{"REDIS_URL": "redis://cache:6379/0"},
			want:  "url: redis://cache:6379/0",
		},
		{
			name:  "bare dollar substitution",
			input: "path: $LOGSEQ_EXPORT_DIR/daily",
			env:   map[string]string{"LOGSEQ_EXPORT_DIR": "/var/export"},
			want:  "path: /var/export/daily",
		},
		{
			name:  "multiple substitutions in one line",
			input: "dsn: ${DB_HOST}:${DB_PORT}",
			env: map[string]string{
				"DB_HOST": "localhost",
				"DB_PORT": "5432",
			},
			want: "dsn: localhost:5432",
		},
		{
			name:  "missing variable expands to empty string",
			input: "key: ${MISSING_VAR}",
			env:   map[string]string{},
			want:  "key: ",
		},
		{
			name:  "no substitution when no variables present",
			input: "static: value",
			env:   map[string]string{"UNUSED": "value"},
			want:  "static: value",
		},
		{
			name:  "variables inside YAML array",
			input: "origins:\n  - ${ORIGIN_A}\n  - ${ORIGIN_B}",
			env: map[string]string{
				"ORIGIN_A": "https://a.example.com",
				"ORIGIN_B": "https://b.example.com",
			},
			want: "origins:\n  - https://a.example.com\n  - https://b.example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			result := ExpandEnv([]byte(tt.input))
			assert.Equal(t, tt.want, string(result))
		})
	}
}

func TestExpandEnvPreservesContentWithoutVariables(t *testing.T) {
	input := `
# a comment
search:
  default_top_k: 20
retention:
  short_term_ttl: 72h
`
	result := ExpandEnv([]byte(input))
	assert.Equal(t, input, string(result))
}

func TestExpandEnvWithEmptyInput(t *testing.T) {
	result := ExpandEnv([]byte(""))
	assert.Equal(t, "", string(result))
}

func TestExpandEnvThreadSafety(t *testing.T) {
	input := []byte("key: $TEST_VAR")
	t.Setenv("TEST_VAR", "value")

	const goroutines = 50
	results := make([]string, goroutines)
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(index int) {
			defer wg.Done()
			results[index] = string(ExpandEnv(input))
		}(i)
	}
	wg.Wait()

	for _, result := range results {
		assert.Equal(t, "key: value", result)
	}
}
