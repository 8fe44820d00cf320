package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yungtweek/tweek.ninja-talkie/internal/document"
	"github.com/yungtweek/tweek.ninja-talkie/internal/store"
)

// SemanticRetriever runs pure vector search with a fixed distance
// ceiling. It is the simple counterpart to the hybrid retriever and
// also serves as its topic-fallback path.
type SemanticRetriever struct {
	backend store.Backend
	cfg     config
}

var _ Retriever = (*SemanticRetriever)(nil)

// NewSemanticRetriever builds a semantic retriever over the backend.
func NewSemanticRetriever(backend store.Backend, opts ...Option) (*SemanticRetriever, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: backend", ErrNilDependency)
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.policy.Validate(); err != nil {
		return nil, err
	}
	return &SemanticRetriever{backend: backend, cfg: cfg}, nil
}

// Name identifies the retriever.
func (r *SemanticRetriever) Name() string { return "semantic" }

// Retrieve runs vector search. Backend failures degrade to an empty
// result.
func (r *SemanticRetriever) Retrieve(ctx context.Context, req Request) (*Result, error) {
	k := req.TopK
	if k <= 0 {
		k = r.cfg.topK
	}

	result := &Result{Docs: []*document.Document{}, Query: req.Query, TopK: k, Filters: req.Filters}

	hits, err := r.backend.Semantic(ctx, store.SemanticQuery{
		Query:       req.Query,
		Limit:       k,
		MaxDistance: r.cfg.policy.FallbackDistance,
		Filter:      store.NormalizeFilters(req.Filters),
	})
	if err != nil {
		if errors.Is(err, store.ErrMissingTextKey) {
			return nil, err
		}
		r.cfg.logger.Warn("semantic_query_failed", slog.String("error", err.Error()))
		return result, nil
	}

	for _, h := range hits {
		result.Docs = append(result.Docs, document.FromProps(h.Props, h.ScoreMeta(), document.FromPropsOptions{
			TextKey:  r.cfg.textKey,
			ObjectID: h.ID,
		}))
	}
	return result, nil
}
