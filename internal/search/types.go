// Package search implements retrieval over the store backend: a
// hybrid retriever that probes keyword strength to pick the fusion
// weight dynamically, and a plain semantic retriever. Both return
// normalized documents ready for context assembly.
package search

import (
	"context"
	"errors"

	"github.com/yungtweek/tweek.ninja-talkie/internal/document"
)

// ErrNilDependency indicates a required collaborator was nil at
// construction time. Construction is the only place retrieval raises
// configuration errors; Retrieve degrades instead of failing.
var ErrNilDependency = errors.New("nil dependency")

// DefaultTopK is the result size when a request doesn't override it.
const DefaultTopK = 6

// DefaultAlpha is the base fusion weight before the probe policy
// caps it.
const DefaultAlpha = 0.5

// Request is a single retrieval call.
type Request struct {
	// Query is the raw user query.
	Query string

	// TopK overrides the retriever's default result size when > 0.
	TopK int

	// Filters are app-level property filters (string → substring,
	// number/bool → equal, list → or).
	Filters map[string]any

	// Alpha overrides the configured base fusion weight. The probe
	// policy may still cap it downward.
	Alpha *float64
}

// HitType classifies the keyword probe outcome, in precedence order.
type HitType string

const (
	// HitMultiFileStrong: strong keyword hits across 2+ distinct
	// files. Keyword-leaning alpha, guard on.
	HitMultiFileStrong HitType = "multi_file_strong"

	// HitStrong: at least one strong keyword hit.
	HitStrong HitType = "bm25_strong"

	// HitWeak: keyword hits without a strong one.
	HitWeak HitType = "bm25_only"

	// HitNone: the probe found nothing. Near-pure vector search.
	HitNone HitType = "no_bm25"
)

// Result is the standard retrieval return shape.
type Result struct {
	// Docs are normalized documents, best first.
	Docs []*document.Document

	// Query echoes the raw query.
	Query string

	// TopK is the effective result size used.
	TopK int

	// Filters echoes the applied app-level filters.
	Filters map[string]any

	// HitType is the probe classification (hybrid retriever only).
	HitType HitType

	// Alpha is the effective fusion weight after the policy cap.
	Alpha float64

	// FellBack reports that the topic guard replaced hybrid results
	// with pure semantic search.
	FellBack bool
}

// Retriever executes retrieval for a query.
type Retriever interface {
	// Name identifies the retriever implementation.
	Name() string

	// Retrieve runs a retrieval. Backend failures yield an empty
	// result, not an error.
	Retrieve(ctx context.Context, req Request) (*Result, error)
}
