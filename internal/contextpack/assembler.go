// Package contextpack compresses retrieved documents into a bounded,
// deduplicated context string for the language model. Compression
// keeps keyword anchors and similarity-relevant documents, ranks by
// score, and packs into a character budget without truncating
// individual documents.
package contextpack

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/yungtweek/tweek.ninja-talkie/internal/document"
	"github.com/yungtweek/tweek.ninja-talkie/internal/embed"
	"github.com/yungtweek/tweek.ninja-talkie/internal/query"
)

const (
	// DefaultMaxContext is the default character budget for packed
	// context.
	DefaultMaxContext = 3500

	// DefaultAnchorLimit caps the keyword anchors kept regardless of
	// similarity filtering.
	DefaultAnchorLimit = 3

	// DefaultMinKeep is the minimum survivor count a similarity
	// threshold must retain to be accepted.
	DefaultMinKeep = 2

	// DefaultOverflowKeep is the ranked-set prefix returned when
	// budget packing would otherwise yield nothing.
	DefaultOverflowKeep = 6
)

// NoContextSentinel is returned by Pack when no documents survive, so
// the caller can still produce a general answer.
const NoContextSentinel = "⚠️ 관련 정보를 찾지 못했습니다. 질문에 대한 일반적인 답변을 제공합니다."

// Metadata keys annotated during compression.
const (
	metaOriginalScore = "original_score"
	metaOriginalRank  = "original_rank"
)

// defaultThresholds is the descending similarity ladder: accept the
// first threshold keeping at least MinKeep documents.
var defaultThresholds = []float64{0.20, 0.10, 0.0}

// rankSentinel orders documents without a recorded original rank
// after all ranked ones.
const rankSentinel = 1 << 30

// Assembler deduplicates, filters, orders and packs documents. The
// embedder is optional: without one the similarity filter passes all
// documents through.
type Assembler struct {
	embedder embed.Embedder
	tok      *query.Tokenizer
	cfg      config
}

type config struct {
	maxContext   int
	anchorLimit  int
	minKeep      int
	overflowKeep int
	thresholds   []float64
	stopTokens   []string
	logger       *slog.Logger
}

// Option customizes assembler construction.
type Option func(*Assembler)

// WithEmbedder enables the embedding-similarity filter.
func WithEmbedder(e embed.Embedder) Option {
	return func(a *Assembler) { a.embedder = e }
}

// WithMaxContext sets the character budget.
func WithMaxContext(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.cfg.maxContext = n
		}
	}
}

// WithAnchorLimit sets the keyword-anchor cap.
func WithAnchorLimit(n int) Option {
	return func(a *Assembler) {
		if n >= 0 {
			a.cfg.anchorLimit = n
		}
	}
}

// WithThresholds replaces the similarity threshold ladder.
func WithThresholds(ts []float64) Option {
	return func(a *Assembler) {
		if len(ts) > 0 {
			a.cfg.thresholds = ts
		}
	}
}

// WithStopTokens replaces the tokenizer stop list.
func WithStopTokens(tokens []string) Option {
	return func(a *Assembler) { a.cfg.stopTokens = tokens }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assembler) {
		if logger != nil {
			a.cfg.logger = logger
		}
	}
}

// NewAssembler builds an assembler with the default budget and
// thresholds.
func NewAssembler(opts ...Option) *Assembler {
	a := &Assembler{
		cfg: config{
			maxContext:   DefaultMaxContext,
			anchorLimit:  DefaultAnchorLimit,
			minKeep:      DefaultMinKeep,
			overflowKeep: DefaultOverflowKeep,
			thresholds:   defaultThresholds,
			logger:       slog.Default(),
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.tok = query.NewTokenizer(a.cfg.stopTokens)
	return a
}

// Compress selects and orders the documents worth packing:
//
//  1. Annotate each document with its original score and rank.
//  2. Collect keyword anchors: the first few documents containing
//     any query token survive filtering unconditionally.
//  3. Similarity-filter with an adaptive threshold ladder; if no
//     threshold keeps enough documents, pass all through.
//  4. Merge first-retrieved + anchors + filtered, deduplicated.
//  5. Stable-sort by score descending, original rank ascending.
//  6. Pack into the character budget, skipping documents that would
//     overflow; if that empties the set, keep the ranked prefix.
func (a *Assembler) Compress(ctx context.Context, docs []*document.Document, q string) []*document.Document {
	if len(docs) == 0 {
		return docs
	}

	for i, d := range docs {
		if d.Meta == nil {
			d.Meta = make(map[string]any, 2)
		}
		if _, ok := d.Meta[metaOriginalRank]; !ok {
			d.Meta[metaOriginalRank] = i
		}
		if d.Score != nil {
			d.Meta[metaOriginalScore] = *d.Score
		}
	}

	tokens := a.tok.Tokens(q)
	var anchors []*document.Document
	for _, d := range docs {
		if len(anchors) == a.cfg.anchorLimit {
			break
		}
		if query.MatchAny(tokens, d.Content) {
			anchors = append(anchors, d)
		}
	}

	filtered := a.similarityFilter(ctx, docs, q)

	merged := make([]*document.Document, 0, len(docs))
	seen := make(map[string]struct{}, len(docs))
	add := func(d *document.Document) {
		key := dedupKey(d)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		merged = append(merged, d)
	}
	add(docs[0])
	for _, d := range anchors {
		add(d)
	}
	for _, d := range filtered {
		add(d)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		si, sj := resolveScore(merged[i]), resolveScore(merged[j])
		if si != sj {
			return si > sj
		}
		return resolveRank(merged[i]) < resolveRank(merged[j])
	})

	kept := make([]*document.Document, 0, len(merged))
	total := 0
	for _, d := range merged {
		n := len(d.Content)
		if total+n > a.cfg.maxContext {
			continue
		}
		kept = append(kept, d)
		total += n
	}
	if len(kept) == 0 {
		n := a.cfg.overflowKeep
		if len(merged) < n {
			n = len(merged)
		}
		kept = merged[:n]
	}

	a.cfg.logger.Debug("context_compressed",
		slog.Int("in", len(docs)),
		slog.Int("anchors", len(anchors)),
		slog.Int("filtered", len(filtered)),
		slog.Int("kept", len(kept)))
	return kept
}

// Pack renders documents as labeled blocks joined by a separator,
// stopping when the running total would exceed the budget. An empty
// result yields the no-context sentinel.
func (a *Assembler) Pack(docs []*document.Document) string {
	var blocks []string
	total := 0
	for _, d := range docs {
		txt := d.Content
		if total+len(txt) > a.cfg.maxContext {
			break
		}
		section := d.MetaString("section")
		label := ""
		if section != "" {
			label = " > " + section
		}
		blocks = append(blocks, fmt.Sprintf("[%s]%s\n%s\n", titleOf(d), label, txt))
		total += len(txt)
	}
	if len(blocks) == 0 {
		return NoContextSentinel
	}
	return strings.Join(blocks, "\n---\n")
}

// Snippets extracts highlight windows around query-token hits.
func (a *Assembler) Snippets(q, text string) []string {
	return query.Snippets(a.tok.Tokens(q), text, query.SnippetOptions{})
}

// similarityFilter keeps documents whose embedding similarity to the
// query clears a threshold, walking the ladder down until enough
// survive. Unavailable or failing embeddings pass everything through.
func (a *Assembler) similarityFilter(ctx context.Context, docs []*document.Document, q string) []*document.Document {
	if a.embedder == nil {
		return docs
	}

	qv, err := a.embedder.Embed(ctx, q)
	if err != nil {
		a.cfg.logger.Warn("similarity_filter_failed", slog.String("error", err.Error()))
		return docs
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	dvs, err := a.embedder.EmbedBatch(ctx, texts)
	if err != nil || len(dvs) != len(docs) {
		a.cfg.logger.Warn("similarity_filter_failed", slog.String("error", fmt.Sprint(err)))
		return docs
	}

	sims := make([]float64, len(docs))
	for i, dv := range dvs {
		sims[i] = cosine(qv, dv)
	}

	for _, threshold := range a.cfg.thresholds {
		var kept []*document.Document
		for i, d := range docs {
			if sims[i] >= threshold {
				kept = append(kept, d)
			}
		}
		if len(kept) >= a.cfg.minKeep {
			return kept
		}
	}
	return docs
}

// dedupKey derives a stable identity for a document: explicit id,
// then (file, chunk) pair, then metadata-embedded id, then
// (title, chunk), then pointer identity.
func dedupKey(d *document.Document) string {
	if d.ID != "" {
		return "id:" + d.ID
	}
	if d.FileID != "" && d.ChunkIndex != nil {
		return fmt.Sprintf("fc:%s:%d", d.FileID, *d.ChunkIndex)
	}
	for _, k := range []string{"id", "_id", "document_id", "doc_id", "chunk_id"} {
		if s := d.MetaString(k); s != "" {
			return "mid:" + s
		}
	}
	if d.Title != "" && d.ChunkIndex != nil {
		return fmt.Sprintf("tc:%s:%d", d.Title, *d.ChunkIndex)
	}
	return fmt.Sprintf("ptr:%p", d)
}

// resolveScore ranks a document: explicit score, recorded original
// score, generic score metadata, inverted distance, else unranked.
func resolveScore(d *document.Document) float64 {
	if d.Score != nil {
		return *d.Score
	}
	if v, ok := metaFloat(d, metaOriginalScore); ok {
		return v
	}
	if v, ok := metaFloat(d, "score"); ok {
		return v
	}
	if d.Distance != nil {
		return 1 - *d.Distance
	}
	return math.Inf(-1)
}

func resolveRank(d *document.Document) int {
	if v, ok := metaFloat(d, metaOriginalRank); ok {
		return int(v)
	}
	return rankSentinel
}

func metaFloat(d *document.Document, key string) (float64, bool) {
	if d.Meta == nil {
		return 0, false
	}
	switch v := d.Meta[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// titleOf resolves the block label with the schema fallbacks.
func titleOf(d *document.Document) string {
	if d.Title != "" {
		return d.Title
	}
	if d.Filename != "" {
		return d.Filename
	}
	if s := d.MetaString("file_name"); s != "" {
		return s
	}
	if d.Source != "" {
		return d.Source
	}
	if s := d.MetaString("source"); s != "" {
		return s
	}
	return "Untitled"
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
