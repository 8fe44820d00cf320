package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/yungtweek/tweek.ninja-talkie/internal/embed"
)

// ErrNilDependency indicates a required collaborator was nil at
// construction time.
var ErrNilDependency = errors.New("nil dependency")

const (
	// defaultRRFConstant is the RRF smoothing parameter. k=60 is the
	// standard choice across search engines.
	defaultRRFConstant = 60

	// legOversample widens each search leg beyond the requested limit
	// so fusion and filtering have candidates to work with.
	legOversample = 3
)

// MemoryBackendConfig configures the local backend.
type MemoryBackendConfig struct {
	// TextKey is the property holding chunk text (default "content").
	TextKey string

	// KeywordPath is the on-disk Bleve path; empty keeps the keyword
	// index in memory.
	KeywordPath string

	// RRFConstant overrides the fusion smoothing parameter.
	RRFConstant int
}

// MemoryBackend implements Backend over a Bleve keyword index and an
// HNSW vector index, fusing hybrid results with weighted Reciprocal
// Rank Fusion. Properties live in process memory.
type MemoryBackend struct {
	mu     sync.RWMutex
	props  map[string]map[string]any
	closed bool

	keyword  *KeywordIndex
	vectors  *VectorIndex
	embedder embed.Embedder
	cfg      MemoryBackendConfig
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend builds a local backend. The embedder is required;
// vector dimensions follow the embedder.
func NewMemoryBackend(embedder embed.Embedder, cfg MemoryBackendConfig) (*MemoryBackend, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder", ErrNilDependency)
	}
	if cfg.TextKey == "" {
		cfg.TextKey = PropText
	}
	if cfg.RRFConstant <= 0 {
		cfg.RRFConstant = defaultRRFConstant
	}

	keyword, err := NewKeywordIndex(cfg.KeywordPath)
	if err != nil {
		return nil, fmt.Errorf("keyword index: %w", err)
	}

	vectors, err := NewVectorIndex(DefaultVectorConfig(embedder.Dimensions()))
	if err != nil {
		_ = keyword.Close()
		return nil, fmt.Errorf("vector index: %w", err)
	}

	return &MemoryBackend{
		props:    make(map[string]map[string]any),
		keyword:  keyword,
		vectors:  vectors,
		embedder: embedder,
		cfg:      cfg,
	}, nil
}

// Put indexes objects by id. Content resolves from the configured
// text key with "content" and "text" fallbacks; the filename property
// feeds the filename fields.
func (b *MemoryBackend) Put(ctx context.Context, objects map[string]map[string]any) error {
	if len(objects) == 0 {
		return nil
	}

	ids := make([]string, 0, len(objects))
	docs := make([]*IndexDoc, 0, len(objects))
	texts := make([]string, 0, len(objects))
	stored := make(map[string]map[string]any, len(objects))
	for id, props := range objects {
		copied := make(map[string]any, len(props))
		for k, v := range props {
			copied[k] = v
		}
		stored[id] = copied

		content := propString(props, b.cfg.TextKey)
		if content == "" {
			content = propString(props, "content")
		}
		if content == "" {
			content = propString(props, "text")
		}

		ids = append(ids, id)
		docs = append(docs, &IndexDoc{
			ID:       id,
			Content:  content,
			Filename: propString(props, PropFilename),
		})
		texts = append(texts, content)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	for id, props := range stored {
		b.props[id] = props
	}
	b.mu.Unlock()

	if err := b.keyword.Index(ctx, docs); err != nil {
		return fmt.Errorf("index keyword docs: %w", err)
	}

	vecs, err := b.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}
	if err := b.vectors.Add(ctx, ids, vecs); err != nil {
		return fmt.Errorf("add vectors: %w", err)
	}
	return nil
}

// Delete removes objects from all indexes.
func (b *MemoryBackend) Delete(ctx context.Context, ids []string) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	for _, id := range ids {
		delete(b.props, id)
	}
	b.mu.Unlock()

	if err := b.keyword.Delete(ctx, ids); err != nil {
		return err
	}
	return b.vectors.Delete(ctx, ids)
}

// Count returns the number of stored objects.
func (b *MemoryBackend) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.props)
}

// fusedHit accumulates per-document fusion state.
type fusedHit struct {
	id       string
	rrf      float64
	bm25Rank int
	bm25     float64
	vecRank  int
	distance float64
	inBoth   bool
}

// Hybrid runs keyword and vector legs in parallel and fuses them with
// weighted RRF: the keyword leg contributes (1-alpha), the vector leg
// alpha. A vector-leg failure degrades to keyword-only rather than
// failing the query.
func (b *MemoryBackend) Hybrid(ctx context.Context, q HybridQuery) ([]*Hit, error) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil, ErrClosed
	}
	b.mu.RUnlock()

	if q.Limit <= 0 {
		return []*Hit{}, nil
	}
	alpha := clamp01(q.Alpha)
	legLimit := q.Limit * legOversample

	var (
		kwResults  []*KeywordResult
		vecResults []*VectorResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		kwResults, err = b.keyword.Search(gctx, q.Query, q.QueryProperties, legLimit)
		if err != nil {
			return fmt.Errorf("keyword leg: %w", err)
		}
		return nil
	})
	vectorText := q.VectorQuery
	if vectorText == "" {
		vectorText = q.Query
	}
	g.Go(func() error {
		vec, err := b.embedder.Embed(gctx, vectorText)
		if err != nil {
			slog.Warn("hybrid_vector_leg_degraded", slog.String("error", err.Error()))
			return nil
		}
		vecResults, err = b.vectors.Search(gctx, vec, legLimit)
		if err != nil {
			slog.Warn("hybrid_vector_leg_degraded", slog.String("error", err.Error()))
			vecResults = nil
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := b.fuse(kwResults, vecResults, 1.0-alpha, alpha)

	hits := make([]*Hit, 0, q.Limit)
	for _, f := range fused {
		props, ok := b.lookupProps(f.id)
		if !ok || !q.Filter.Match(props) {
			continue
		}

		score := f.rrf
		hit := &Hit{
			ID:           f.id,
			Props:        projectProps(props, q.ReturnProperties),
			Score:        &score,
			ExplainScore: fmt.Sprintf("rrf=%.4f bm25_rank=%d vec_rank=%d", f.rrf, f.bm25Rank, f.vecRank),
		}
		if f.vecRank > 0 {
			d := f.distance
			hit.Distance = &d
		}
		hits = append(hits, hit)
		if len(hits) == q.Limit {
			break
		}
	}
	return hits, nil
}

// fuse merges the two legs with weighted RRF, normalizing fused
// scores against the top result. Documents missing from one leg take
// that leg's contribution at missing rank max(len, len)+1.
func (b *MemoryBackend) fuse(kw []*KeywordResult, vec []*VectorResult, wKeyword, wVector float64) []*fusedHit {
	if len(kw) == 0 && len(vec) == 0 {
		return nil
	}

	k := float64(b.cfg.RRFConstant)
	byID := make(map[string]*fusedHit, len(kw)+len(vec))
	get := func(id string) *fusedHit {
		if f, ok := byID[id]; ok {
			return f
		}
		f := &fusedHit{id: id}
		byID[id] = f
		return f
	}

	for rank, r := range kw {
		f := get(r.ID)
		f.bm25 = r.Score
		f.bm25Rank = rank + 1
		f.rrf += wKeyword / (k + float64(rank+1))
	}
	for rank, r := range vec {
		f := get(r.ID)
		f.vecRank = rank + 1
		f.distance = r.Distance
		f.rrf += wVector / (k + float64(rank+1))
		f.inBoth = f.bm25Rank > 0
	}

	missingRank := float64(maxLen(len(kw), len(vec)) + 1)
	for _, f := range byID {
		if f.bm25Rank == 0 && f.vecRank > 0 {
			f.rrf += wKeyword / (k + missingRank)
		}
		if f.vecRank == 0 && f.bm25Rank > 0 {
			f.rrf += wVector / (k + missingRank)
		}
	}

	fused := make([]*fusedHit, 0, len(byID))
	for _, f := range byID {
		fused = append(fused, f)
	}
	sort.Slice(fused, func(i, j int) bool {
		a, c := fused[i], fused[j]
		if a.rrf != c.rrf {
			return a.rrf > c.rrf
		}
		if a.inBoth != c.inBoth {
			return a.inBoth
		}
		if a.bm25 != c.bm25 {
			return a.bm25 > c.bm25
		}
		return a.id < c.id
	})

	if top := fused[0].rrf; top > 0 {
		for _, f := range fused {
			f.rrf /= top
		}
	}
	return fused
}

// Keyword runs BM25-only search, used by the preflight probe.
func (b *MemoryBackend) Keyword(ctx context.Context, q KeywordQuery) ([]*Hit, error) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil, ErrClosed
	}
	b.mu.RUnlock()

	if q.Limit <= 0 {
		return []*Hit{}, nil
	}

	results, err := b.keyword.Search(ctx, q.Query, q.QueryProperties, q.Limit*legOversample)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	hits := make([]*Hit, 0, q.Limit)
	for _, r := range results {
		props, ok := b.lookupProps(r.ID)
		if !ok || !q.Filter.Match(props) {
			continue
		}
		score := r.Score
		hits = append(hits, &Hit{ID: r.ID, Props: props, Score: &score})
		if len(hits) == q.Limit {
			break
		}
	}
	return hits, nil
}

// Semantic runs vector-only search with an optional distance ceiling.
func (b *MemoryBackend) Semantic(ctx context.Context, q SemanticQuery) ([]*Hit, error) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil, ErrClosed
	}
	b.mu.RUnlock()

	if q.Limit <= 0 {
		return []*Hit{}, nil
	}

	vec, err := b.embedder.Embed(ctx, q.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := b.vectors.Search(ctx, vec, q.Limit*legOversample)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	hits := make([]*Hit, 0, q.Limit)
	for _, r := range results {
		if q.MaxDistance > 0 && r.Distance > q.MaxDistance {
			continue
		}
		props, ok := b.lookupProps(r.ID)
		if !ok || !q.Filter.Match(props) {
			continue
		}
		score, distance := r.Score, r.Distance
		hits = append(hits, &Hit{ID: r.ID, Props: props, Score: &score, Distance: &distance})
		if len(hits) == q.Limit {
			break
		}
	}
	return hits, nil
}

// Close closes both indexes.
func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	kwErr := b.keyword.Close()
	vecErr := b.vectors.Close()
	if kwErr != nil {
		return kwErr
	}
	return vecErr
}

func (b *MemoryBackend) lookupProps(id string) (map[string]any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	props, ok := b.props[id]
	return props, ok
}

// projectProps returns a copy restricted to the requested keys, or
// the full map when no projection is requested.
func projectProps(props map[string]any, keys []string) map[string]any {
	if len(keys) == 0 {
		return props
	}
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := props[k]; ok {
			out[k] = v
		}
	}
	return out
}

func propString(props map[string]any, key string) string {
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func maxLen(a, b int) int {
	if a > b {
		return a
	}
	return b
}
