package embed

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Backend selects an embedder implementation.
type Backend string

const (
	BackendHTTP   Backend = "http"
	BackendStatic Backend = "static"
	BackendAuto   Backend = "auto"
)

// Config configures embedder construction.
type Config struct {
	// Backend selects the implementation (default: auto).
	Backend Backend

	// Host, Model, Dimensions and Timeout apply to the HTTP backend.
	Host       string
	Model      string
	Dimensions int
	Timeout    time.Duration

	// CacheSize is the LRU embedding cache size; 0 uses the default
	// and a negative value disables caching.
	CacheSize int
}

// New builds an embedder per config, wrapped in an LRU cache unless
// disabled. The auto backend tries HTTP first and falls back to the
// static embedder when the endpoint is unreachable.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	var (
		inner Embedder
		err   error
	)

	switch cfg.Backend {
	case BackendStatic:
		inner = NewStaticEmbedder()
	case BackendHTTP:
		inner, err = NewHTTPEmbedder(ctx, HTTPConfig{
			Host:       cfg.Host,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("http embedder: %w", err)
		}
	case BackendAuto, "":
		inner, err = NewHTTPEmbedder(ctx, HTTPConfig{
			Host:       cfg.Host,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		})
		if err != nil {
			slog.Warn("embedder_fallback_static", slog.String("error", err.Error()))
			inner = NewStaticEmbedder()
		}
	default:
		return nil, fmt.Errorf("unknown embedder backend: %q", cfg.Backend)
	}

	if cfg.CacheSize < 0 {
		return inner, nil
	}
	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}
