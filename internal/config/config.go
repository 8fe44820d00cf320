// Package config loads the engine configuration from YAML with
// environment-variable overrides. Precedence, lowest to highest:
// built-in defaults, config file, TALKIE_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungtweek/tweek.ninja-talkie/internal/contextpack"
	"github.com/yungtweek/tweek.ninja-talkie/internal/embed"
	"github.com/yungtweek/tweek.ninja-talkie/internal/search"
)

// Config is the complete engine configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" json:"retrieval"`
	Context    ContextConfig    `yaml:"context" json:"context"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// RetrievalConfig configures the hybrid retriever.
type RetrievalConfig struct {
	// TopK is the default result size.
	TopK int `yaml:"top_k" json:"top_k"`

	// Alpha is the base fusion weight (0 keyword, 1 vector) before
	// the probe policy caps it.
	Alpha float64 `yaml:"alpha" json:"alpha"`

	// TextKey is the property holding chunk text.
	TextKey string `yaml:"text_key" json:"text_key"`

	// Kind selects the retriever strategy: hybrid or semantic.
	Kind string `yaml:"kind" json:"kind"`

	// StopTokens replaces the default stop-token list when non-nil.
	StopTokens []string `yaml:"stop_tokens" json:"stop_tokens"`

	Policy PolicyConfig `yaml:"policy" json:"policy"`
}

// PolicyConfig exposes the retrieval policy knobs. Zero values fall
// back to the production defaults.
type PolicyConfig struct {
	AlphaMultiStrongMax  float64 `yaml:"alpha_multi_strong_max" json:"alpha_multi_strong_max"`
	AlphaSingleStrongMax float64 `yaml:"alpha_single_strong_max" json:"alpha_single_strong_max"`
	AlphaWeakHitMax      float64 `yaml:"alpha_weak_hit_max" json:"alpha_weak_hit_max"`
	AlphaNoHitMax        float64 `yaml:"alpha_no_hit_max" json:"alpha_no_hit_max"`
	StrongScore          float64 `yaml:"strong_score" json:"strong_score"`
	ProbeLimit           int     `yaml:"probe_limit" json:"probe_limit"`
	FilenamePenalty      float64 `yaml:"filename_penalty" json:"filename_penalty"`
	DistanceCutGuard     float64 `yaml:"distance_cut_guard" json:"distance_cut_guard"`
	DistanceCutRare      float64 `yaml:"distance_cut_rare" json:"distance_cut_rare"`
	DistanceCutDefault   float64 `yaml:"distance_cut_default" json:"distance_cut_default"`
	FallbackDistance     float64 `yaml:"fallback_distance" json:"fallback_distance"`
}

// ContextConfig configures context assembly.
type ContextConfig struct {
	// MaxContext is the packed-context character budget.
	MaxContext int `yaml:"max_context" json:"max_context"`

	// AnchorLimit caps keyword anchors kept through compression.
	AnchorLimit int `yaml:"anchor_limit" json:"anchor_limit"`

	// SimilarityThresholds is the descending adaptive ladder.
	SimilarityThresholds []float64 `yaml:"similarity_thresholds" json:"similarity_thresholds"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Backend selects the embedder: http, static or auto.
	Backend string `yaml:"backend" json:"backend"`

	// Host is the Ollama-compatible endpoint for the http backend.
	Host string `yaml:"host" json:"host"`

	Model      string        `yaml:"model" json:"model"`
	Dimensions int           `yaml:"dimensions" json:"dimensions"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`

	// CacheSize is the LRU query-embedding cache size; negative
	// disables caching.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// StoreConfig configures the local backend.
type StoreConfig struct {
	// KeywordPath persists the keyword index; empty keeps it in
	// memory.
	KeywordPath string `yaml:"keyword_path" json:"keyword_path"`

	// RRFConstant is the fusion smoothing parameter (default 60).
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Path   string `yaml:"path" json:"path"`
}

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	policy := search.DefaultPolicy()
	return &Config{
		Version: 1,
		Retrieval: RetrievalConfig{
			TopK:    search.DefaultTopK,
			Alpha:   search.DefaultAlpha,
			TextKey: "content",
			Kind:    string(search.KindHybrid),
			Policy: PolicyConfig{
				AlphaMultiStrongMax:  policy.AlphaMultiStrongMax,
				AlphaSingleStrongMax: policy.AlphaSingleStrongMax,
				AlphaWeakHitMax:      policy.AlphaWeakHitMax,
				AlphaNoHitMax:        policy.AlphaNoHitMax,
				StrongScore:          policy.StrongScore,
				ProbeLimit:           policy.ProbeLimit,
				FilenamePenalty:      policy.FilenamePenalty,
				DistanceCutGuard:     policy.DistanceCutGuard,
				DistanceCutRare:      policy.DistanceCutRare,
				DistanceCutDefault:   policy.DistanceCutDefault,
				FallbackDistance:     policy.FallbackDistance,
			},
		},
		Context: ContextConfig{
			MaxContext:           contextpack.DefaultMaxContext,
			AnchorLimit:          contextpack.DefaultAnchorLimit,
			SimilarityThresholds: []float64{0.20, 0.10, 0.0},
		},
		Embeddings: EmbeddingsConfig{
			Backend:   string(embed.BackendAuto),
			Host:      embed.DefaultHTTPHost,
			Model:     embed.DefaultHTTPModel,
			Timeout:   embed.DefaultTimeout,
			CacheSize: 512,
		},
		Store: StoreConfig{
			RRFConstant: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the effective configuration: defaults, then the YAML
// file at path (skipped when path is empty or missing), then
// environment overrides. The result is validated.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// No file is fine; defaults apply.
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies TALKIE_* environment variables, the
// highest-precedence source.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TALKIE_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Retrieval.TopK = n
		}
	}
	if v := os.Getenv("TALKIE_ALPHA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Retrieval.Alpha = f
		}
	}
	if v := os.Getenv("TALKIE_TEXT_KEY"); v != "" {
		c.Retrieval.TextKey = v
	}
	if v := os.Getenv("TALKIE_RETRIEVER"); v != "" {
		c.Retrieval.Kind = v
	}
	if v := os.Getenv("TALKIE_MAX_CONTEXT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Context.MaxContext = n
		}
	}
	if v := os.Getenv("TALKIE_EMBEDDER"); v != "" {
		c.Embeddings.Backend = v
	}
	if v := os.Getenv("TALKIE_OLLAMA_HOST"); v != "" {
		c.Embeddings.Host = v
	}
	if v := os.Getenv("TALKIE_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("TALKIE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TALKIE_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

// Validate rejects structurally invalid configurations.
func (c *Config) Validate() error {
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive: %d", c.Retrieval.TopK)
	}
	if c.Retrieval.Alpha < 0 || c.Retrieval.Alpha > 1 {
		return fmt.Errorf("retrieval.alpha out of range [0,1]: %v", c.Retrieval.Alpha)
	}
	if c.Retrieval.TextKey == "" {
		return fmt.Errorf("retrieval.text_key must not be empty")
	}
	switch search.Kind(c.Retrieval.Kind) {
	case search.KindHybrid, search.KindSemantic:
	default:
		return fmt.Errorf("retrieval.kind must be hybrid or semantic: %q", c.Retrieval.Kind)
	}
	if c.Context.MaxContext <= 0 {
		return fmt.Errorf("context.max_context must be positive: %d", c.Context.MaxContext)
	}
	if err := c.Policy().Validate(); err != nil {
		return err
	}
	switch embed.Backend(c.Embeddings.Backend) {
	case embed.BackendHTTP, embed.BackendStatic, embed.BackendAuto, "":
	default:
		return fmt.Errorf("embeddings.backend must be http, static or auto: %q", c.Embeddings.Backend)
	}
	return nil
}

// Policy converts the policy section, filling zero values with the
// production defaults.
func (c *Config) Policy() search.Policy {
	p := search.DefaultPolicy()
	pc := c.Retrieval.Policy
	if pc.AlphaMultiStrongMax > 0 {
		p.AlphaMultiStrongMax = pc.AlphaMultiStrongMax
	}
	if pc.AlphaSingleStrongMax > 0 {
		p.AlphaSingleStrongMax = pc.AlphaSingleStrongMax
	}
	if pc.AlphaWeakHitMax > 0 {
		p.AlphaWeakHitMax = pc.AlphaWeakHitMax
	}
	if pc.AlphaNoHitMax > 0 {
		p.AlphaNoHitMax = pc.AlphaNoHitMax
	}
	if pc.StrongScore > 0 {
		p.StrongScore = pc.StrongScore
	}
	if pc.ProbeLimit > 0 {
		p.ProbeLimit = pc.ProbeLimit
	}
	if pc.FilenamePenalty > 0 {
		p.FilenamePenalty = pc.FilenamePenalty
	}
	if pc.DistanceCutGuard > 0 {
		p.DistanceCutGuard = pc.DistanceCutGuard
	}
	if pc.DistanceCutRare > 0 {
		p.DistanceCutRare = pc.DistanceCutRare
	}
	if pc.DistanceCutDefault > 0 {
		p.DistanceCutDefault = pc.DistanceCutDefault
	}
	if pc.FallbackDistance > 0 {
		p.FallbackDistance = pc.FallbackDistance
	}
	return p
}

// EmbedConfig converts the embeddings section for the embed factory.
func (c *Config) EmbedConfig() embed.Config {
	return embed.Config{
		Backend:    embed.Backend(c.Embeddings.Backend),
		Host:       c.Embeddings.Host,
		Model:      c.Embeddings.Model,
		Dimensions: c.Embeddings.Dimensions,
		Timeout:    c.Embeddings.Timeout,
		CacheSize:  c.Embeddings.CacheSize,
	}
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
