package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	// DefaultHTTPHost is the default embedding API endpoint
	// (Ollama-compatible).
	DefaultHTTPHost = "http://localhost:11434"

	// DefaultHTTPModel is the default embedding model. Multilingual
	// coverage matters here: queries and documents mix Korean and
	// English freely.
	DefaultHTTPModel = "bge-m3"

	// httpPoolSize bounds the idle connection pool.
	httpPoolSize = 4
)

// HTTPConfig configures the HTTP embedder.
type HTTPConfig struct {
	// Host is the API endpoint (default: http://localhost:11434).
	Host string

	// Model is the embedding model name (default: bge-m3).
	Model string

	// Dimensions overrides auto-detection when non-zero.
	Dimensions int

	// BatchSize bounds texts per request (default: 32).
	BatchSize int

	// Timeout applies per request (default: 60s).
	Timeout time.Duration

	// MaxRetries bounds retry attempts for transient failures.
	MaxRetries int

	// SkipHealthCheck skips the startup availability probe.
	SkipHealthCheck bool
}

// HTTPEmbedder generates embeddings via an Ollama-compatible HTTP API.
type HTTPEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    HTTPConfig
	dims      int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*HTTPEmbedder)(nil)

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewHTTPEmbedder creates an HTTP embedder. Unless SkipHealthCheck is
// set, it probes the endpoint once and auto-detects dimensions from a
// first embedding.
func NewHTTPEmbedder(ctx context.Context, cfg HTTPConfig) (*HTTPEmbedder, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultHTTPHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultHTTPModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	transport := &http.Transport{
		MaxIdleConns:        httpPoolSize,
		MaxIdleConnsPerHost: httpPoolSize,
		MaxConnsPerHost:     httpPoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	// Timeouts are applied per request via context so the health check
	// and regular requests can use different budgets.
	e := &HTTPEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		dims:      cfg.Dimensions,
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()

		vecs, err := e.request(checkCtx, []string{"ping"})
		if err != nil {
			transport.CloseIdleConnections()
			return nil, fmt.Errorf("embedding endpoint unavailable: %w", err)
		}
		if e.dims == 0 && len(vecs) > 0 {
			e.dims = len(vecs[0])
		}
	}
	if e.dims == 0 {
		e.dims = DefaultDimensions
	}

	return e, nil
}

// Embed generates an embedding for a single text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts, splitting into
// batches of BatchSize and retrying transient failures.
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, ErrClosed
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		var vecs [][]float32
		retryCfg := DefaultRetryConfig()
		retryCfg.MaxRetries = e.config.MaxRetries
		err := WithRetry(ctx, retryCfg, func() error {
			reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
			defer cancel()

			var reqErr error
			vecs, reqErr = e.request(reqCtx, texts[start:end])
			if reqErr != nil {
				slog.Debug("embed_request_failed",
					slog.String("model", e.config.Model),
					slog.Int("batch", end-start),
					slog.String("error", reqErr.Error()))
			}
			return reqErr
		})
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embedding count mismatch: want %d, got %d", end-start, len(vecs))
		}
		results = append(results, vecs...)
	}

	return results, nil
}

// request posts one embedding request and decodes the response.
func (e *HTTPEmbedder) request(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: e.config.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(raw))
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return decoded.Embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *HTTPEmbedder) Dimensions() int { return e.dims }

// ModelName returns the model identifier.
func (e *HTTPEmbedder) ModelName() string { return e.config.Model }

// Available probes the endpoint with a cheap request.
func (e *HTTPEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	e.mu.RUnlock()

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Close releases connection pool resources.
func (e *HTTPEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
