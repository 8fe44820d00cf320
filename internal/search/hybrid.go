package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/yungtweek/tweek.ninja-talkie/internal/document"
	"github.com/yungtweek/tweek.ninja-talkie/internal/query"
	"github.com/yungtweek/tweek.ninja-talkie/internal/store"
)

// HybridRetriever fuses keyword and vector search with a dynamic
// fusion weight. A cheap keyword probe classifies the query first:
// strong keyword evidence pulls alpha down toward keyword search and
// may arm a guard that penalizes filename-only matches and requires a
// rare-token hit; no keyword evidence leaves near-pure vector search.
// When even the final result set has no rare-token hit, the retriever
// discards it and falls back to pure semantic search, on the theory
// that keyword matching has picked the wrong topic entirely.
type HybridRetriever struct {
	backend store.Backend
	tok     *query.Tokenizer
	cfg     config
}

var _ Retriever = (*HybridRetriever)(nil)

// NewHybridRetriever builds a hybrid retriever over the backend.
func NewHybridRetriever(backend store.Backend, opts ...Option) (*HybridRetriever, error) {
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
	return &HybridRetriever{
		backend: backend,
		tok:     query.NewTokenizer(cfg.stopTokens),
		cfg:     cfg,
	}, nil
}

// Name identifies the retriever.
func (r *HybridRetriever) Name() string { return "hybrid" }

// queryProperties are the keyword-searchable properties.
func (r *HybridRetriever) queryProperties() []string {
	return []string{r.cfg.textKey, store.PropTextTrigram, store.PropFilename, store.PropFilenameKeyword}
}

// returnProperties are the properties projected into results.
func (r *HybridRetriever) returnProperties() []string {
	return []string{"filename", "page", "chunk_index", "user_id", "file_id", "chunk_id", r.cfg.textKey}
}

// Retrieve executes the hybrid retrieval state machine. Backend
// failures degrade to an empty result.
func (r *HybridRetriever) Retrieve(ctx context.Context, req Request) (*Result, error) {
	k := req.TopK
	if k <= 0 {
		k = r.cfg.topK
	}
	filter := store.NormalizeFilters(req.Filters)

	baseAlpha := r.cfg.alpha
	if req.Alpha != nil {
		baseAlpha = *req.Alpha
	}

	nq := query.Normalize(req.Query, query.ModeFull)
	nqTokens, rareTokens := r.tok.Split(req.Query)

	empty := &Result{Docs: []*document.Document{}, Query: req.Query, TopK: k, Filters: req.Filters}

	// (1) Keyword preflight probe.
	outcome := r.probe(ctx, req.Query, k, nqTokens, rareTokens)

	// (2) Dynamic alpha and guard policy.
	hitType, alphaEff, guardOn := r.cfg.policy.classify(outcome, baseAlpha)
	empty.HitType = hitType
	empty.Alpha = alphaEff

	r.cfg.logger.Info("hybrid_policy",
		slog.String("type", string(hitType)),
		slog.Float64("alpha", alphaEff),
		slog.Bool("guard", guardOn),
		slog.String("normalized_query", nq),
		slog.Int("tokens", len(nqTokens)))

	// (3) Main hybrid query. The keyword leg gets the normalized
	// form, the vector leg the raw query.
	hits, err := r.backend.Hybrid(ctx, store.HybridQuery{
		Query:            nq,
		VectorQuery:      req.Query,
		Alpha:            alphaEff,
		Limit:            k,
		QueryProperties:  r.queryProperties(),
		ReturnProperties: r.returnProperties(),
		Filter:           filter,
	})
	if err != nil {
		// A wrong text property is a configuration problem the
		// caller can fix by retrying with another key; everything
		// else degrades to an empty result.
		if errors.Is(err, store.ErrMissingTextKey) {
			return nil, err
		}
		r.cfg.logger.Warn("hybrid_query_failed", slog.String("error", err.Error()))
		return empty, nil
	}

	// (4) Guard penalty: rare tokens matching only the filename push
	// the hit outward by a fixed distance.
	if guardOn {
		for _, h := range hits {
			if r.contentHit(h.Props, rareTokens) {
				continue
			}
			if r.filenameHit(h.Props, rareTokens) {
				d := distanceOr(h, 1.0) + r.cfg.policy.FilenamePenalty
				h.Distance = &d
			}
		}
	}

	// (5) Distance cutoff. Hits without a distance are kept.
	cut := r.cfg.policy.distanceCut(guardOn, len(rareTokens) > 0)
	kept := hits[:0]
	for _, h := range hits {
		if h.Distance == nil || *h.Distance <= cut {
			kept = append(kept, h)
		}
	}
	r.cfg.logger.Debug("hybrid_distance_cut",
		slog.Float64("cut", cut),
		slog.Int("kept", len(kept)))

	// (6) Keyword guard: require a rare-token hit, but never empty a
	// non-empty set.
	items := kept
	if guardOn {
		guarded := make([]*store.Hit, 0, len(kept))
		for _, h := range kept {
			if r.kwGuard(h.Props, rareTokens) {
				guarded = append(guarded, h)
			}
		}
		if len(guarded) > 0 {
			items = guarded
		}
	}

	// (7) Vector-first re-rank: distance ascending, score descending
	// on ties. Stable so equal hits keep fused order.
	sort.SliceStable(items, func(i, j int) bool {
		di, dj := distanceOr(items[i], 1.0), distanceOr(items[j], 1.0)
		if di != dj {
			return di < dj
		}
		return scoreOr(items[i], 0) > scoreOr(items[j], 0)
	})

	// (8) Topic guard: zero rare-token hits in the final set means
	// keyword matching latched onto the wrong topic. Replace
	// wholesale with pure semantic search.
	rareHits := 0
	for _, h := range items {
		if r.kwGuard(h.Props, rareTokens) {
			rareHits++
		}
	}
	if rareHits == 0 {
		r.cfg.logger.Info("hybrid_topic_fallback", slog.String("query", req.Query))
		fallbackHits, err := r.backend.Semantic(ctx, store.SemanticQuery{
			Query:       req.Query,
			Limit:       k,
			MaxDistance: r.cfg.policy.FallbackDistance,
			Filter:      filter,
		})
		if err != nil {
			r.cfg.logger.Warn("hybrid_fallback_failed", slog.String("error", err.Error()))
			return empty, nil
		}
		result := r.toResult(fallbackHits, req, k, hitType, alphaEff)
		result.FellBack = true
		return result, nil
	}

	r.logHits(items)
	return r.toResult(items, req, k, hitType, alphaEff), nil
}

// probe runs the lightweight keyword preflight and counts hit
// strength. Probe failures count as no keyword evidence.
func (r *HybridRetriever) probe(ctx context.Context, rawQuery string, k int, nqTokens, rareTokens []string) probeOutcome {
	probeLimit := r.cfg.policy.ProbeLimit
	if k < probeLimit {
		probeLimit = k
	}

	hits, err := r.backend.Keyword(ctx, store.KeywordQuery{
		Query:           query.Normalize(rawQuery, query.ModeLight),
		Limit:           probeLimit,
		QueryProperties: r.queryProperties(),
	})
	if err != nil {
		r.cfg.logger.Warn("hybrid_probe_failed", slog.String("error", err.Error()))
		return probeOutcome{}
	}

	var outcome probeOutcome
	strongFiles := make(map[string]struct{})
	for _, h := range hits {
		if r.kwGuard(h.Props, nqTokens) {
			outcome.hits++
		}
		if scoreOr(h, 0) >= r.cfg.policy.StrongScore && r.kwGuard(h.Props, rareTokens) {
			outcome.strongHits++
			filename := propString(h.Props, "filename")
			if filename == "" {
				filename = "unknown"
			}
			strongFiles[filename] = struct{}{}
		}
	}
	outcome.strongFiles = len(strongFiles)
	return outcome
}

// kwGuard reports whether any token appears in the hit's text or
// filename properties.
func (r *HybridRetriever) kwGuard(props map[string]any, tokens []string) bool {
	if len(tokens) == 0 || len(props) == 0 {
		return false
	}
	blob := r.contentOf(props) + " " +
		propString(props, store.PropFilename) + " " +
		propString(props, store.PropFilenameKeyword)
	return query.MatchAny(tokens, blob)
}

// contentHit checks tokens against the text content only.
func (r *HybridRetriever) contentHit(props map[string]any, tokens []string) bool {
	return query.MatchAny(tokens, r.contentOf(props))
}

// filenameHit checks tokens against the filename properties only.
func (r *HybridRetriever) filenameHit(props map[string]any, tokens []string) bool {
	blob := propString(props, store.PropFilename) + " " + propString(props, store.PropFilenameKeyword)
	return query.MatchAny(tokens, blob)
}

// contentOf resolves chunk text from the configured key with the
// standard fallbacks.
func (r *HybridRetriever) contentOf(props map[string]any) string {
	if s := propString(props, r.cfg.textKey); s != "" {
		return s
	}
	if s := propString(props, "content"); s != "" {
		return s
	}
	return propString(props, "text")
}

// toResult normalizes hits into documents.
func (r *HybridRetriever) toResult(hits []*store.Hit, req Request, k int, hitType HitType, alpha float64) *Result {
	docs := make([]*document.Document, 0, len(hits))
	for _, h := range hits {
		docs = append(docs, document.FromProps(h.Props, h.ScoreMeta(), document.FromPropsOptions{
			TextKey:  r.cfg.textKey,
			ObjectID: h.ID,
		}))
	}
	return &Result{
		Docs:    docs,
		Query:   req.Query,
		TopK:    k,
		Filters: req.Filters,
		HitType: hitType,
		Alpha:   alpha,
	}
}

// logHits logs a short diagnostic line per kept hit.
func (r *HybridRetriever) logHits(hits []*store.Hit) {
	const logLimit = 10
	for i, h := range hits {
		if i == logLimit {
			break
		}
		r.cfg.logger.Debug("hybrid_hit",
			slog.Int("rank", i),
			slog.Float64("score", scoreOr(h, 0)),
			slog.Float64("distance", distanceOr(h, -1)),
			slog.String("file", propString(h.Props, "filename")))
	}
}

func distanceOr(h *store.Hit, def float64) float64 {
	if h.Distance == nil {
		return def
	}
	return *h.Distance
}

func scoreOr(h *store.Hit, def float64) float64 {
	if h.Score == nil {
		return def
	}
	return *h.Score
}

func propString(props map[string]any, key string) string {
	v, ok := props[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
