// Package store provides the search backend contract plus a local
// implementation: a Bleve BM25 keyword index and an HNSW vector index
// fused into hybrid results. Retrievers talk to the Backend interface
// only, so a remote vector database can slot in behind the same
// contract.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Property names shared between indexing and querying.
const (
	// PropText is the default full-text property.
	PropText = "content"

	// PropTextTrigram is the trigram-analyzed shadow of the text
	// property, for partial Hangul matching.
	PropTextTrigram = "text_tri"

	// PropFilename is the run-tokenized filename property.
	PropFilename = "filename"

	// PropFilenameKeyword is the untokenized filename property for
	// exact matching.
	PropFilenameKeyword = "filename_kw"
)

// ErrClosed is returned by backend operations after Close.
var ErrClosed = errors.New("store is closed")

// ErrMissingTextKey indicates the requested text property does not
// exist on the collection schema. Callers holding a list of candidate
// property names retry with the next one.
var ErrMissingTextKey = errors.New("text property missing")

// Hit is a raw search result: the stored object's properties plus the
// engine's scoring metadata. Score and Distance are pointers because
// a keyword-only result has no distance and a pure vector result may
// have no keyword score.
type Hit struct {
	ID           string
	Props        map[string]any
	Score        *float64
	Distance     *float64
	ExplainScore string
}

// Properties exposes the stored object's property map.
func (h *Hit) Properties() map[string]any { return h.Props }

// ScoreMeta exposes scoring metadata in the shape the document
// normalizer consumes.
func (h *Hit) ScoreMeta() map[string]any {
	md := make(map[string]any, 3)
	if h.Score != nil {
		md["score"] = *h.Score
	}
	if h.Distance != nil {
		md["distance"] = *h.Distance
	}
	if h.ExplainScore != "" {
		md["explain_score"] = h.ExplainScore
	}
	return md
}

// ObjectID exposes the hit's object id.
func (h *Hit) ObjectID() string { return h.ID }

// HybridQuery fuses keyword and vector search with an alpha weight:
// 0 is pure keyword, 1 is pure vector.
type HybridQuery struct {
	Query string

	// VectorQuery is the text embedded for the vector leg; empty
	// falls back to Query. Callers pass the raw query here when Query
	// carries an aggressively normalized form tuned for keyword
	// matching.
	VectorQuery string

	Alpha float64
	Limit int

	// QueryProperties restricts the keyword leg to these properties;
	// a property may carry a boost suffix ("filename^2"). Empty means
	// the default text property.
	QueryProperties []string

	// ReturnProperties projects hit properties; empty returns all.
	ReturnProperties []string

	Filter *Filter
}

// KeywordQuery is a BM25-only query, used for the preflight probe.
type KeywordQuery struct {
	Query           string
	Limit           int
	QueryProperties []string
	Filter          *Filter
}

// SemanticQuery is a vector-only query with an optional distance
// ceiling (0 disables the cutoff).
type SemanticQuery struct {
	Query       string
	Limit       int
	MaxDistance float64
	Filter      *Filter
}

// Backend is the search surface retrievers depend on.
type Backend interface {
	// Hybrid runs fused keyword+vector search.
	Hybrid(ctx context.Context, q HybridQuery) ([]*Hit, error)

	// Keyword runs BM25-only search.
	Keyword(ctx context.Context, q KeywordQuery) ([]*Hit, error)

	// Semantic runs vector-only search.
	Semantic(ctx context.Context, q SemanticQuery) ([]*Hit, error)

	// Close releases backend resources.
	Close() error
}

// ErrDimensionMismatch indicates an embedding dimension mismatch
// between the index and a vector.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
