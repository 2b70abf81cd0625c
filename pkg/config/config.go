package config

import "time"

// Config is the umbrella configuration object returned by Initialize and
// threaded through main() to construct every component.
type Config struct {
	configDir string

	Defaults  *Defaults
	Database  DatabaseConfig
	Search    *SearchConfig
	Agent     *AgentConfig
	Queue     *QueueConfig
	Retention *RetentionConfig
	Redis     *RedisConfig
	Embedding *EmbeddingConfig
	JWT       *JWTConfig
	CORS      *CORSConfig
	Slack     *SlackConfig
}

// ConfigDir returns the directory the YAML overlay was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// SearchConfig controls hybrid retrieval behavior.
type SearchConfig struct {
	// HybridModeDefault is the configured default retrieval mode ("hybrid",
	// "vector", "lexical") (SEARCH_HYBRID_MODE_DEFAULT). The retrieval engine
	// does not read it; a query's own Hybrid flag decides the lexical leg.
	HybridModeDefault string `yaml:"hybrid_mode_default"`

	// TemporalDecayHalfLife is loaded from SEARCH_TEMPORAL_DECAY_HALF_LIFE
	// but not read by the retrieval engine: raw-score decay uses the mode
	// half-lives below and the scorer's `rec` component uses RecencyHalfLife.
	TemporalDecayHalfLife time.Duration `yaml:"temporal_decay_half_life"`

	// FeedbackRerankEnabled toggles the feedback-weighted rerank pass
	// (SEARCH_FEEDBACK_RERANK_ENABLED).
	FeedbackRerankEnabled bool `yaml:"feedback_rerank_enabled"`

	// FeedbackRerankWeight is loaded from SEARCH_FEEDBACK_RERANK_WEIGHT but
	// not read by the retrieval engine; the feedback rerank applies only the
	// positive/negative multipliers below.
	FeedbackRerankWeight float64 `yaml:"feedback_rerank_weight"`

	// DefaultTopK is the result count returned when a request omits one.
	DefaultTopK int `yaml:"default_top_k"`

	// CoactivationLambda is the decay constant λ in the edge-weight formula
	// 1 − exp(−λ·count).
	CoactivationLambda float64 `yaml:"coactivation_lambda"`

	// CoactivationTopN is how many of a memory's strongest co-activation
	// edges the retrieval neighbor boost reads. Edge pruning after a
	// co-activation update keeps its own fixed top 10.
	CoactivationTopN int `yaml:"coactivation_top_n"`

	// PerformanceHalfLife, BalancedHalfLife, and ResearchHalfLife are the
	// mode-driven temporal decay half-lives applied to hybrid raw score
	//: performance=7d, balanced=30d, research=90d.
	PerformanceHalfLife time.Duration `yaml:"performance_half_life"`
	BalancedHalfLife    time.Duration `yaml:"balanced_half_life"`
	ResearchHalfLife    time.Duration `yaml:"research_half_life"`

	// FeedbackPositiveMultiplier and FeedbackNegativeMultiplier scale a
	// candidate's score on recent positive/negative relevance feedback.
	// Invalid (non-positive) configured values fall back to these defaults.
	FeedbackPositiveMultiplier float64 `yaml:"feedback_positive_multiplier"`
	FeedbackNegativeMultiplier float64 `yaml:"feedback_negative_multiplier"`
	FeedbackWindow             time.Duration `yaml:"feedback_window"`

	// RecencyHalfLife is the scorer-owned half-life for the activation
	// scorer's `rec` component (distinct from the raw-score temporal decay).
	RecencyHalfLife time.Duration `yaml:"recency_half_life"`

	// FrequencyAlpha is α in `freq = 1 − exp(−α·access_count)`.
	FrequencyAlpha float64 `yaml:"frequency_alpha"`

	// ProvenanceBeta is β in `prov = 1 − exp(−β·evidence_link_count)`.
	ProvenanceBeta float64 `yaml:"provenance_beta"`

	// ContradictedPenalty discounts confidence when a memory is flagged
	// contradicted: `conf = confidence · (1 − contradicted_penalty)`.
	ContradictedPenalty float64 `yaml:"contradicted_penalty"`

	// ActivationWeights is the configured weighted sum applied across the
	// scorer's eight components before the [0,1] clamp.
	ActivationWeights ActivationWeights `yaml:"activation_weights"`
}

// ActivationWeights holds the per-component weights of the final weighted
// sum.
type ActivationWeights struct {
	Relevance    float64 `yaml:"relevance"`
	Recency      float64 `yaml:"recency"`
	Frequency    float64 `yaml:"frequency"`
	Importance   float64 `yaml:"importance"`
	Confidence   float64 `yaml:"confidence"`
	Context      float64 `yaml:"context"`
	Provenance   float64 `yaml:"provenance"`
	InverseRisk  float64 `yaml:"inverse_risk"`
	NeighborBoost float64 `yaml:"neighbor_boost"`
}

// DefaultSearchConfig returns the built-in retrieval defaults.
func DefaultSearchConfig() *SearchConfig {
	return &SearchConfig{
		HybridModeDefault:          "hybrid",
		TemporalDecayHalfLife:      14 * 24 * time.Hour,
		FeedbackRerankEnabled:      true,
		FeedbackRerankWeight:       0.15,
		DefaultTopK:                20,
		CoactivationLambda:         0.1,
		CoactivationTopN:           50,
		PerformanceHalfLife:        7 * 24 * time.Hour,
		BalancedHalfLife:           30 * 24 * time.Hour,
		ResearchHalfLife:           90 * 24 * time.Hour,
		FeedbackPositiveMultiplier: 1.15,
		FeedbackNegativeMultiplier: 0.5,
		FeedbackWindow:             30 * 24 * time.Hour,
		RecencyHalfLife:            7 * 24 * time.Hour,
		FrequencyAlpha:             0.3,
		ProvenanceBeta:             0.5,
		ContradictedPenalty:        0.5,
		ActivationWeights: ActivationWeights{
			Relevance:     0.30,
			Recency:       0.15,
			Frequency:     0.10,
			Importance:    0.15,
			Confidence:    0.10,
			Context:       0.10,
			Provenance:    0.05,
			InverseRisk:   0.03,
			NeighborBoost: 0.02,
		},
	}
}

// AgentConfig controls the agent pipeline runner.
type AgentConfig struct {
	// CacheEnabled toggles the cross-memory AgentResultCache lookup
	// (AGENT_CACHE_ENABLED).
	CacheEnabled bool `yaml:"cache_enabled"`

	// CacheTTL is how long a cached agent result remains eligible for reuse
	// (AGENT_CACHE_TTL_SECONDS).
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// LogseqExportDir is the filesystem directory the Logseq export
	// materializer writes to (LOGSEQ_EXPORT_DIR).
	LogseqExportDir string `yaml:"logseq_export_dir"`
}

// DefaultAgentConfig returns the built-in agent pipeline defaults.
func DefaultAgentConfig() *AgentConfig {
	return &AgentConfig{
		CacheEnabled:    true,
		CacheTTL:        1 * time.Hour,
		LogseqExportDir: "./export/logseq",
	}
}

// RedisConfig holds the connection settings for the shared cache used by
// result and permission caching.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DefaultRedisConfig returns the built-in Redis defaults.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		URL:          "redis://localhost:6379/0",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	}
}

// EmbeddingConfig names the embedding model identifier stamped onto
// memories for reproducibility and surfaced to the vector index client.
type EmbeddingConfig struct {
	Model string `yaml:"model"`
}

// DefaultEmbeddingConfig returns the built-in embedding defaults.
func DefaultEmbeddingConfig() *EmbeddingConfig {
	return &EmbeddingConfig{Model: "text-embedding-3-small"}
}
