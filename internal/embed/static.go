package embed

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"github.com/yungtweek/tweek.ninja-talkie/internal/query"
)

// StaticEmbedder generates deterministic hash-based embeddings with no
// external service. Semantic quality is reduced, but results are fast,
// reproducible and good enough for tests and offline fallback.
type StaticEmbedder struct {
	tokenizer *query.Tokenizer

	mu     sync.RWMutex
	closed bool
}

// Feature weights for vector generation. Tokens carry most of the
// signal; character trigrams add partial-match robustness, which
// matters for Hangul where a single token covers a whole phrase.
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var _ Embedder = (*StaticEmbedder)(nil)

// NewStaticEmbedder creates a new static embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{tokenizer: query.NewTokenizer(nil)}
}

// Embed generates an embedding for a single text.
func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, ErrClosed
	}
	e.mu.RUnlock()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, StaticDimensions), nil
	}

	return normalizeVector(e.generateVector(trimmed)), nil
}

// generateVector folds token and trigram features into a fixed-size
// vector via FNV hashing.
func (e *StaticEmbedder) generateVector(text string) []float32 {
	vector := make([]float32, StaticDimensions)

	for _, token := range e.tokenizer.Tokens(text) {
		vector[hashToIndex(token, StaticDimensions)] += tokenWeight
	}

	normalized := stripToLetters(text)
	for _, gram := range trigramsOf(normalized) {
		vector[hashToIndex(gram, StaticDimensions)] += ngramWeight
	}

	return vector
}

// stripToLetters lowercases and drops everything but letters and
// digits, so trigrams span word boundaries.
func stripToLetters(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// trigramsOf extracts rune-level sliding windows of ngramSize.
func trigramsOf(text string) []string {
	runes := []rune(text)
	if len(runes) < ngramSize {
		return nil
	}
	grams := make([]string, 0, len(runes)-ngramSize+1)
	for i := 0; i <= len(runes)-ngramSize; i++ {
		grams = append(grams, string(runes[i:i+ngramSize]))
	}
	return grams
}

// hashToIndex maps a string to a vector index via FNV-64.
func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

// EmbedBatch generates embeddings for multiple texts.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, ErrClosed
	}
	e.mu.RUnlock()

	results := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		results[i] = vec
	}
	return results, nil
}

// Dimensions returns the embedding dimension.
func (e *StaticEmbedder) Dimensions() int { return StaticDimensions }

// ModelName returns the model identifier.
func (e *StaticEmbedder) ModelName() string { return "static" }

// Available always reports true until Close.
func (e *StaticEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close releases resources.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
