package contextpack

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungtweek/tweek.ninja-talkie/internal/document"
)

// vectorFixture maps texts to fixed embeddings so similarity
// outcomes are scripted exactly.
type vectorFixture struct {
	vectors map[string][]float32
	err     error
}

func (f *vectorFixture) Embed(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0}, nil
}

func (f *vectorFixture) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *vectorFixture) Dimensions() int                  { return 2 }
func (f *vectorFixture) ModelName() string                { return "fixture" }
func (f *vectorFixture) Available(_ context.Context) bool { return true }
func (f *vectorFixture) Close() error                     { return nil }

func quiet() Option { return WithLogger(slog.New(slog.DiscardHandler)) }

func doc(id, content string, score float64) *document.Document {
	s := score
	return &document.Document{ID: id, Content: content, Score: &s}
}

func TestCompress_Empty(t *testing.T) {
	a := NewAssembler(quiet())
	assert.Empty(t, a.Compress(context.Background(), nil, "query"))
}

func TestCompress_BudgetKeepsTopByScore(t *testing.T) {
	body := func(tag string) string { return tag + strings.Repeat("x", 999) }
	docs := []*document.Document{
		doc("d-3", body("c"), 0.7),
		doc("d-1", body("a"), 0.9),
		doc("d-5", body("e"), 0.5),
		doc("d-2", body("b"), 0.8),
		doc("d-4", body("d"), 0.6),
	}
	a := NewAssembler(quiet(), WithMaxContext(3000))

	kept := a.Compress(context.Background(), docs, "unrelatedquery")

	require.Len(t, kept, 3)
	assert.Equal(t, "d-1", kept[0].ID)
	assert.Equal(t, "d-2", kept[1].ID)
	assert.Equal(t, "d-3", kept[2].ID)
}

func TestCompress_OverflowGuarantee(t *testing.T) {
	// Every document alone exceeds the budget; the ranked prefix is
	// returned anyway so output is never empty.
	big := strings.Repeat("y", 200)
	docs := []*document.Document{
		doc("d-1", big, 0.9),
		doc("d-2", big, 0.8),
	}
	a := NewAssembler(quiet(), WithMaxContext(100))

	kept := a.Compress(context.Background(), docs, "query")

	require.Len(t, kept, 2)
	assert.Equal(t, "d-1", kept[0].ID)
}

func TestCompress_DedupByID(t *testing.T) {
	docs := []*document.Document{
		doc("same", "payment gateway guide", 0.9),
		doc("same", "payment gateway guide", 0.7),
		doc("other", "refund policy", 0.8),
	}
	a := NewAssembler(quiet())

	kept := a.Compress(context.Background(), docs, "payment")

	require.Len(t, kept, 2)
	assert.Equal(t, "same", kept[0].ID)
	assert.Equal(t, "other", kept[1].ID)
}

func TestCompress_AnnotatesOriginalScoreAndRank(t *testing.T) {
	docs := []*document.Document{
		doc("d-1", "first", 0.4),
		doc("d-2", "second", 0.9),
	}
	a := NewAssembler(quiet())

	kept := a.Compress(context.Background(), docs, "query")

	require.Len(t, kept, 2)
	// Highest score first, but original rank survives in metadata.
	assert.Equal(t, "d-2", kept[0].ID)
	assert.Equal(t, 1, kept[0].Meta["original_rank"])
	assert.Equal(t, 0.9, kept[0].Meta["original_score"])
	assert.Equal(t, 0, kept[1].Meta["original_rank"])
}

func TestCompress_EqualScoresKeepOriginalOrder(t *testing.T) {
	docs := []*document.Document{
		doc("d-1", "one", 0.5),
		doc("d-2", "two", 0.5),
		doc("d-3", "three", 0.5),
	}
	a := NewAssembler(quiet())

	kept := a.Compress(context.Background(), docs, "query")

	require.Len(t, kept, 3)
	assert.Equal(t, "d-1", kept[0].ID)
	assert.Equal(t, "d-2", kept[1].ID)
	assert.Equal(t, "d-3", kept[2].ID)
}

func TestCompress_SimilarityFilterAdaptiveThreshold(t *testing.T) {
	fixture := &vectorFixture{vectors: map[string][]float32{
		"질문":       {1, 0},
		"aligned":  {1, 0},
		"nearby":   {0.9, 0.1},
		"opposite": {-1, 0},
	}}
	docs := []*document.Document{
		doc("d-1", "aligned", 0.9),
		doc("d-2", "nearby", 0.8),
		doc("d-3", "opposite", 0.7),
	}
	a := NewAssembler(quiet(), WithEmbedder(fixture))

	kept := a.Compress(context.Background(), docs, "질문")

	require.Len(t, kept, 2)
	assert.Equal(t, "d-1", kept[0].ID)
	assert.Equal(t, "d-2", kept[1].ID)
}

func TestCompress_KeywordAnchorSurvivesFilter(t *testing.T) {
	fixture := &vectorFixture{vectors: map[string][]float32{
		"payment 질문":             {1, 0},
		"aligned text":           {1, 0},
		"nearby text":            {0.9, 0.1},
		"payment but dissimilar": {-1, 0},
	}}
	docs := []*document.Document{
		doc("d-1", "aligned text", 0.9),
		doc("d-2", "nearby text", 0.8),
		doc("d-3", "payment but dissimilar", 0.7),
	}
	a := NewAssembler(quiet(), WithEmbedder(fixture))

	kept := a.Compress(context.Background(), docs, "payment 질문")

	// d-3 fails every similarity threshold but contains a query
	// token, so the anchor path keeps it.
	require.Len(t, kept, 3)
	assert.Equal(t, "d-3", kept[2].ID)
}

func TestCompress_EmbedderFailurePassesAllThrough(t *testing.T) {
	fixture := &vectorFixture{err: assert.AnError}
	docs := []*document.Document{
		doc("d-1", "one", 0.9),
		doc("d-2", "two", 0.8),
	}
	a := NewAssembler(quiet(), WithEmbedder(fixture))

	kept := a.Compress(context.Background(), docs, "query")
	assert.Len(t, kept, 2)
}

func TestPack_LabeledBlocks(t *testing.T) {
	idx := 2
	docs := []*document.Document{
		{Title: "요금제 안내", Content: "chatgpt plus는 월 20달러입니다.", Meta: map[string]any{"section": "가격"}},
		{Filename: "guide.md", Content: "api 토큰 발급 방법"},
		{Content: "무제 본문", ChunkIndex: &idx},
	}
	a := NewAssembler(quiet())

	out := a.Pack(docs)

	blocks := strings.Split(out, "\n---\n")
	require.Len(t, blocks, 3)
	assert.True(t, strings.HasPrefix(blocks[0], "[요금제 안내] > 가격\n"))
	assert.True(t, strings.HasPrefix(blocks[1], "[guide.md]\n"))
	assert.True(t, strings.HasPrefix(blocks[2], "[Untitled]\n"))
	assert.Contains(t, blocks[0], "chatgpt plus는 월 20달러입니다.")
}

func TestPack_BudgetStopsAtOverflow(t *testing.T) {
	docs := []*document.Document{
		{Title: "A", Content: strings.Repeat("a", 80)},
		{Title: "B", Content: strings.Repeat("b", 80)},
	}
	a := NewAssembler(quiet(), WithMaxContext(100))

	out := a.Pack(docs)

	assert.Contains(t, out, "[A]")
	assert.NotContains(t, out, "[B]")
}

func TestPack_EmptyYieldsSentinel(t *testing.T) {
	a := NewAssembler(quiet())
	assert.Equal(t, NoContextSentinel, a.Pack(nil))
}
