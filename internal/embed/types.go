// Package embed generates vector embeddings for queries and document
// chunks. The HTTP embedder talks to an Ollama-compatible endpoint;
// the static embedder is a deterministic hash-based fallback that
// needs no external service.
package embed

import (
	"context"
	"errors"
	"math"
	"time"
)

const (
	// DefaultBatchSize is the default batch size for embedding requests.
	DefaultBatchSize = 32

	// MaxBatchSize caps a single embedding request.
	MaxBatchSize = 256

	// DefaultTimeout is the per-request timeout for HTTP embedders.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the retry budget for transient failures.
	DefaultMaxRetries = 3

	// DefaultDimensions is the dimension of the default HTTP model.
	DefaultDimensions = 768

	// StaticDimensions is the dimension of the hash-based embedder.
	StaticDimensions = 256
)

// ErrClosed is returned by embedders after Close.
var ErrClosed = errors.New("embedder is closed")

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available reports whether the embedder is ready to serve.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector scales a vector to unit length. Zero vectors are
// returned unchanged.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	inv := float32(1.0 / magnitude)
	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = val * inv
	}
	return out
}
