// Package rag wires retrieval and context assembly into the
// answer-preparation pipeline: retrieve documents for a question,
// compress them into the context budget, and pack the context string
// handed to the language model.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yungtweek/tweek.ninja-talkie/internal/contextpack"
	"github.com/yungtweek/tweek.ninja-talkie/internal/document"
	"github.com/yungtweek/tweek.ninja-talkie/internal/query"
	"github.com/yungtweek/tweek.ninja-talkie/internal/search"
	"github.com/yungtweek/tweek.ninja-talkie/internal/store"
)

// ErrNilDependency indicates a required collaborator was nil at
// construction time.
var ErrNilDependency = errors.New("nil dependency")

// textKeyFallbacks are tried in order when the configured text
// property is missing from the collection schema. The retry is per
// call; the pipeline stays stateless.
var textKeyFallbacks = []string{"text", "page_content", "body", "chunk"}

// Pipeline runs retrieval and context assembly for one question at a
// time. It holds only read-only dependencies, so concurrent calls are
// safe as long as the backend is.
type Pipeline struct {
	backend   store.Backend
	assembler *contextpack.Assembler
	cfg       pipelineConfig
}

type pipelineConfig struct {
	kind       search.Kind
	textKey    string
	searchOpts []search.Option
	logger     *slog.Logger
}

// Option customizes pipeline construction.
type Option func(*pipelineConfig)

// WithKind selects the retriever strategy (default hybrid).
func WithKind(kind search.Kind) Option {
	return func(c *pipelineConfig) { c.kind = kind }
}

// WithTextKey sets the primary text property.
func WithTextKey(key string) Option {
	return func(c *pipelineConfig) {
		if key != "" {
			c.textKey = key
		}
	}
}

// WithSearchOptions forwards options to every retriever the pipeline
// builds.
func WithSearchOptions(opts ...search.Option) Option {
	return func(c *pipelineConfig) { c.searchOpts = append(c.searchOpts, opts...) }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *pipelineConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewPipeline builds a pipeline over the backend and assembler.
func NewPipeline(backend store.Backend, assembler *contextpack.Assembler, opts ...Option) (*Pipeline, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: backend", ErrNilDependency)
	}
	if assembler == nil {
		return nil, fmt.Errorf("%w: assembler", ErrNilDependency)
	}
	cfg := pipelineConfig{
		kind:    search.KindHybrid,
		textKey: store.PropText,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Pipeline{backend: backend, assembler: assembler, cfg: cfg}, nil
}

// Answer is the assembled response context for a question.
type Answer struct {
	Question string
	Context  string
	Docs     []*document.Document
	// Retrieval carries the raw retrieval diagnostics (hit type,
	// effective alpha, fallback flag).
	Retrieval *search.Result
}

// Retrieve runs retrieval with the text-key retry ladder: a
// missing-text-property error moves to the next candidate key; if
// every candidate fails the original error propagates. An empty
// result retries without filters, then falls back to keyword-only
// search.
func (p *Pipeline) Retrieve(ctx context.Context, req search.Request) (*search.Result, error) {
	keys := make([]string, 0, 1+len(textKeyFallbacks))
	keys = append(keys, p.cfg.textKey)
	for _, k := range textKeyFallbacks {
		if k != p.cfg.textKey {
			keys = append(keys, k)
		}
	}

	var lastErr error
	for _, tk := range keys {
		res, err := p.retrieveWithKey(ctx, req, tk)
		if err != nil {
			if errors.Is(err, store.ErrMissingTextKey) {
				p.cfg.logger.Info("text_key_retry",
					slog.String("failed_key", tk),
					slog.String("error", err.Error()))
				lastErr = err
				continue
			}
			return nil, err
		}
		return res, nil
	}
	return nil, lastErr
}

func (p *Pipeline) retrieveWithKey(ctx context.Context, req search.Request, textKey string) (*search.Result, error) {
	opts := append([]search.Option{}, p.cfg.searchOpts...)
	opts = append(opts, search.WithTextKey(textKey), search.WithLogger(p.cfg.logger))
	r, err := search.New(p.cfg.kind, p.backend, opts...)
	if err != nil {
		return nil, err
	}

	res, err := r.Retrieve(ctx, req)
	if err != nil {
		return nil, err
	}

	// Overly restrictive filters are a common cause of empty hits:
	// retry once without them.
	if len(res.Docs) == 0 && len(req.Filters) > 0 {
		p.cfg.logger.Info("retrieve_retry_unfiltered", slog.String("query", req.Query))
		unfiltered := req
		unfiltered.Filters = nil
		res, err = r.Retrieve(ctx, unfiltered)
		if err != nil {
			return nil, err
		}
	}

	// Keyword-only safety net for exact-term queries that vector
	// search missed entirely.
	if len(res.Docs) == 0 {
		p.cfg.logger.Info("retrieve_retry_keyword", slog.String("query", req.Query))
		res.Docs = p.keywordNet(ctx, req, textKey)
	}
	return res, nil
}

// keywordNet runs a best-effort BM25-only search. Failures yield nil.
func (p *Pipeline) keywordNet(ctx context.Context, req search.Request, textKey string) []*document.Document {
	k := req.TopK
	if k <= 0 {
		k = search.DefaultTopK
	}
	hits, err := p.backend.Keyword(ctx, store.KeywordQuery{
		Query:           query.Normalize(req.Query, query.ModeLight),
		Limit:           k,
		QueryProperties: []string{textKey, store.PropTextTrigram, store.PropFilename, store.PropFilenameKeyword},
		Filter:          store.NormalizeFilters(req.Filters),
	})
	if err != nil {
		p.cfg.logger.Warn("keyword_net_failed", slog.String("error", err.Error()))
		return nil
	}
	docs := make([]*document.Document, 0, len(hits))
	for _, h := range hits {
		docs = append(docs, document.FromProps(h.Props, h.ScoreMeta(), document.FromPropsOptions{
			TextKey:  textKey,
			ObjectID: h.ID,
		}))
	}
	return docs
}

// Answer retrieves, compresses and packs context for a question.
// With no surviving documents the context is the no-context sentinel.
func (p *Pipeline) Answer(ctx context.Context, req search.Request) (*Answer, error) {
	res, err := p.Retrieve(ctx, req)
	if err != nil {
		return nil, err
	}
	kept := p.assembler.Compress(ctx, res.Docs, req.Query)
	return &Answer{
		Question:  req.Query,
		Context:   p.assembler.Pack(kept),
		Docs:      kept,
		Retrieval: res,
	}, nil
}
