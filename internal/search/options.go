package search

import (
	"log/slog"

	"github.com/yungtweek/tweek.ninja-talkie/internal/store"
)

// config carries the shared retriever settings.
type config struct {
	textKey    string
	alpha      float64
	topK       int
	policy     Policy
	stopTokens []string
	logger     *slog.Logger
}

func defaultConfig() config {
	return config{
		textKey: store.PropText,
		alpha:   DefaultAlpha,
		topK:    DefaultTopK,
		policy:  DefaultPolicy(),
		logger:  slog.Default(),
	}
}

// Option customizes retriever construction.
type Option func(*config)

// WithTextKey sets the property holding chunk text.
func WithTextKey(key string) Option {
	return func(c *config) {
		if key != "" {
			c.textKey = key
		}
	}
}

// WithAlpha sets the base fusion weight (clamped to [0,1]).
func WithAlpha(alpha float64) Option {
	return func(c *config) {
		if alpha < 0 {
			alpha = 0
		}
		if alpha > 1 {
			alpha = 1
		}
		c.alpha = alpha
	}
}

// WithTopK sets the default result size.
func WithTopK(k int) Option {
	return func(c *config) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithPolicy replaces the retrieval policy.
func WithPolicy(p Policy) Option {
	return func(c *config) { c.policy = p }
}

// WithStopTokens replaces the tokenizer stop list.
func WithStopTokens(tokens []string) Option {
	return func(c *config) { c.stopTokens = tokens }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}
