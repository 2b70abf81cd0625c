package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the complete memoryos.yaml overlay file structure.
// Every field is optional; Initialize merges it onto the built-in defaults
// with user values taking precedence (mergo.WithOverride).
type YAMLConfig struct {
	Defaults  *Defaults        `yaml:"defaults"`
	Search    *SearchConfig    `yaml:"search"`
	Agent     *AgentConfig     `yaml:"agent"`
	Queue     *QueueConfig     `yaml:"queue"`
	Retention *RetentionConfig `yaml:"retention"`
	Redis     *RedisConfig     `yaml:"redis"`
	Embedding *EmbeddingConfig `yaml:"embedding"`
	JWT       *JWTYAMLConfig   `yaml:"jwt"`
	CORS      *CORSConfig      `yaml:"cors"`
	Slack     *SlackYAMLConfig `yaml:"slack"`
}

// JWTYAMLConfig mirrors JWTConfig with a string duration for YAML ergonomics.
type JWTYAMLConfig struct {
	SigningKeyEnv string `yaml:"signing_key_env"`
	Issuer        string `yaml:"issuer"`
	Audience      string `yaml:"audience"`
	ClockSkew     string `yaml:"clock_skew"`
}

// SlackYAMLConfig holds Slack notification settings from YAML.
type SlackYAMLConfig struct {
	Enabled  *bool  `yaml:"enabled,omitempty"`
	TokenEnv string `yaml:"token_env,omitempty"`
	Channel  string `yaml:"channel,omitempty"`
}

// Initialize loads, merges, validates, and returns ready-to-use
// configuration. This is the primary entry point consumed by cmd/memoryosd.
//
// Steps performed:
//  1. Load memoryos.yaml from configDir (a missing overlay file is not an
//     error — built-in defaults and environment variables still apply)
//  2. Expand environment variables referenced inside the YAML
//  3. Merge the user overlay onto built-in defaults
//  4. Apply environment-variable overrides, which take precedence over
//     both the built-in defaults and the YAML overlay
//  5. Validate the assembled configuration
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.InfoContext(ctx, "initializing configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.InfoContext(ctx, "configuration initialized",
		"workers", cfg.Queue.WorkerCount,
		"hybrid_mode", cfg.Search.HybridModeDefault)
	return cfg, nil
}

func load(configDir string) (*Config, error) {
	overlay, err := loadYAMLOverlay(configDir)
	if err != nil {
		return nil, err
	}

	defaults := DefaultDefaults()
	if err := mergeOverlay(defaults, overlay.Defaults); err != nil {
		return nil, fmt.Errorf("merging defaults: %w", err)
	}

	search := DefaultSearchConfig()
	if err := mergeOverlay(search, overlay.Search); err != nil {
		return nil, fmt.Errorf("merging search config: %w", err)
	}

	agent := DefaultAgentConfig()
	if err := mergeOverlay(agent, overlay.Agent); err != nil {
		return nil, fmt.Errorf("merging agent config: %w", err)
	}

	queue := DefaultQueueConfig()
	if err := mergeOverlay(queue, overlay.Queue); err != nil {
		return nil, fmt.Errorf("merging queue config: %w", err)
	}

	retention := DefaultRetentionConfig()
	if err := mergeOverlay(retention, overlay.Retention); err != nil {
		return nil, fmt.Errorf("merging retention config: %w", err)
	}

	redis := DefaultRedisConfig()
	if err := mergeOverlay(redis, overlay.Redis); err != nil {
		return nil, fmt.Errorf("merging redis config: %w", err)
	}

	embedding := DefaultEmbeddingConfig()
	if err := mergeOverlay(embedding, overlay.Embedding); err != nil {
		return nil, fmt.Errorf("merging embedding config: %w", err)
	}

	applyEnvOverrides(defaults, search, agent, queue, redis, embedding)

	database, err := LoadDatabaseConfig()
	if err != nil {
		return nil, fmt.Errorf("loading database config: %w", err)
	}

	return &Config{
		configDir: configDir,
		Defaults:  defaults,
		Database:  database,
		Search:    search,
		Agent:     agent,
		Queue:     queue,
		Retention: retention,
		Redis:     redis,
		Embedding: embedding,
		JWT:       resolveJWTConfig(overlay.JWT),
		CORS:      resolveCORSConfig(overlay.CORS),
		Slack:     resolveSlackConfig(overlay.Slack),
	}, nil
}

// validate performs cross-field validation on the assembled configuration.
func validate(cfg *Config) error {
	if cfg.Queue.WorkerCount < 1 {
		return NewValidationError("queue", "worker_count", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if cfg.Search.CoactivationLambda <= 0 {
		return NewValidationError("search", "coactivation_lambda", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if cfg.JWT.SigningKeyEnv == "" {
		return NewValidationError("jwt", "signing_key_env", ErrMissingRequiredField)
	}
	return cfg.Database.Validate()
}

func loadYAMLOverlay(configDir string) (*YAMLConfig, error) {
	cfg := &YAMLConfig{}
	if configDir == "" {
		return cfg, nil
	}

	path := filepath.Join(configDir, "memoryos.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, NewLoadError(path, err)
	}

	data = ExpandEnv(data)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}
	return cfg, nil
}

// applyEnvOverrides layers environment variables on top of the merged
// YAML/defaults config, the established env-var-wins convention.
func applyEnvOverrides(defaults *Defaults, search *SearchConfig, agent *AgentConfig, queue *QueueConfig, redis *RedisConfig, embedding *EmbeddingConfig) {
	if v := os.Getenv("SYSTEM_TASK_USER_ID"); v != "" {
		defaults.SystemTaskUserID = v
	}
	if v := os.Getenv("SEARCH_HYBRID_MODE_DEFAULT"); v != "" {
		search.HybridModeDefault = v
	}
	if v := os.Getenv("SEARCH_TEMPORAL_DECAY_HALF_LIFE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			search.TemporalDecayHalfLife = d
		}
	}
	if v := os.Getenv("SEARCH_FEEDBACK_RERANK_ENABLED"); v != "" {
		search.FeedbackRerankEnabled = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("SEARCH_FEEDBACK_RERANK_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			search.FeedbackRerankWeight = f
		}
	}
	if v := os.Getenv("AGENT_CACHE_ENABLED"); v != "" {
		agent.CacheEnabled = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("AGENT_CACHE_TTL_SECONDS"); v != "" {
		if s, err := strconv.Atoi(v); err == nil {
			agent.CacheTTL = time.Duration(s) * time.Second
		}
	}
	if v := os.Getenv("LOGSEQ_EXPORT_DIR"); v != "" {
		agent.LogseqExportDir = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		redis.URL = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		embedding.Model = v
	}
	if v := os.Getenv("QUEUE_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			queue.WorkerCount = n
		}
	}
}

func resolveJWTConfig(overlay *JWTYAMLConfig) *JWTConfig {
	cfg := &JWTConfig{
		SigningKeyEnv: "JWT_SIGNING_KEY",
		ClockSkew:     30 * time.Second,
	}
	if overlay != nil {
		if overlay.SigningKeyEnv != "" {
			cfg.SigningKeyEnv = overlay.SigningKeyEnv
		}
		cfg.Issuer = overlay.Issuer
		cfg.Audience = overlay.Audience
		if overlay.ClockSkew != "" {
			if d, err := time.ParseDuration(overlay.ClockSkew); err == nil {
				cfg.ClockSkew = d
			} else {
				slog.Warn("invalid jwt clock_skew, using default", "value", overlay.ClockSkew, "error", err)
			}
		}
	}
	if v := os.Getenv("JWT_SIGNING_KEY_ENV"); v != "" {
		cfg.SigningKeyEnv = v
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		cfg.Issuer = v
	}
	if v := os.Getenv("JWT_AUDIENCE"); v != "" {
		cfg.Audience = v
	}
	return cfg
}

func resolveCORSConfig(overlay *CORSConfig) *CORSConfig {
	cfg := &CORSConfig{AllowedOrigins: []string{"*"}}
	if overlay != nil && len(overlay.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = overlay.AllowedOrigins
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitCSV(v)
	}
	return cfg
}

func resolveSlackConfig(overlay *SlackYAMLConfig) *SlackConfig {
	cfg := &SlackConfig{TokenEnv: "SLACK_BOT_TOKEN"}
	if overlay == nil {
		return cfg
	}
	if overlay.Enabled != nil {
		cfg.Enabled = *overlay.Enabled
	}
	if overlay.TokenEnv != "" {
		cfg.TokenEnv = overlay.TokenEnv
	}
	cfg.Channel = overlay.Channel
	return cfg
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
