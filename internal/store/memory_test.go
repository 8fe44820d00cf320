package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungtweek/tweek.ninja-talkie/internal/embed"
)

func newTestBackend(t *testing.T) *MemoryBackend {
	t.Helper()
	b, err := NewMemoryBackend(embed.NewStaticEmbedder(), MemoryBackendConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func seedDocs(t *testing.T, b *MemoryBackend) {
	t.Helper()
	err := b.Put(context.Background(), map[string]map[string]any{
		"c-1": {
			"content":     "chatgpt 요금제 안내. chatgpt plus 는 월 20달러입니다.",
			"filename":    "chatgpt-pricing.md",
			"user_id":     "u-1",
			"file_id":     "f-1",
			"chunk_index": 0,
		},
		"c-2": {
			"content":     "사내 보안 정책과 비밀번호 규정을 설명하는 문서입니다.",
			"filename":    "security-policy.md",
			"user_id":     "u-1",
			"file_id":     "f-2",
			"chunk_index": 0,
		},
		"c-3": {
			"content":     "api 인증 토큰 발급 방법과 사용 가이드",
			"filename":    "api-guide.md",
			"user_id":     "u-2",
			"file_id":     "f-3",
			"chunk_index": 1,
		},
	})
	require.NoError(t, err)
}

func TestMemoryBackend_RequiresEmbedder(t *testing.T) {
	_, err := NewMemoryBackend(nil, MemoryBackendConfig{})
	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestMemoryBackend_KeywordSearch(t *testing.T) {
	b := newTestBackend(t)
	seedDocs(t, b)

	hits, err := b.Keyword(context.Background(), KeywordQuery{
		Query: "chatgpt 요금제",
		Limit: 3,
	})
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	// The pricing chunk is the only one mentioning either term.
	assert.Equal(t, "c-1", hits[0].ID)
	require.NotNil(t, hits[0].Score)
	assert.InDelta(t, 1.0, *hits[0].Score, 1e-9, "top keyword score is normalized to 1")
	assert.Nil(t, hits[0].Distance, "keyword hits carry no distance")
}

func TestMemoryBackend_KeywordSearchWithBoostedProperties(t *testing.T) {
	b := newTestBackend(t)
	seedDocs(t, b)

	hits, err := b.Keyword(context.Background(), KeywordQuery{
		Query:           "api",
		Limit:           3,
		QueryProperties: []string{PropText, PropTextTrigram, PropFilename + "^2", PropFilenameKeyword},
	})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "c-3", hits[0].ID)
}

func TestMemoryBackend_Hybrid(t *testing.T) {
	b := newTestBackend(t)
	seedDocs(t, b)

	hits, err := b.Hybrid(context.Background(), HybridQuery{
		Query: "chatgpt 요금제",
		Alpha: 0.5,
		Limit: 2,
	})
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	assert.Equal(t, "c-1", hits[0].ID)
	require.NotNil(t, hits[0].Score)
	assert.InDelta(t, 1.0, *hits[0].Score, 1e-9, "fused scores normalize against the top hit")
	assert.LessOrEqual(t, len(hits), 2)
	assert.NotEmpty(t, hits[0].ExplainScore)
}

func TestMemoryBackend_HybridFilter(t *testing.T) {
	b := newTestBackend(t)
	seedDocs(t, b)

	hits, err := b.Hybrid(context.Background(), HybridQuery{
		Query:  "chatgpt api 가이드",
		Alpha:  0.5,
		Limit:  5,
		Filter: NormalizeFilters(map[string]any{"user_id": "u-2"}),
	})
	require.NoError(t, err)

	for _, h := range hits {
		assert.Equal(t, "u-2", h.Props["user_id"])
	}
}

func TestMemoryBackend_HybridReturnPropertiesProjection(t *testing.T) {
	b := newTestBackend(t)
	seedDocs(t, b)

	hits, err := b.Hybrid(context.Background(), HybridQuery{
		Query:            "chatgpt",
		Alpha:            0.5,
		Limit:            1,
		ReturnProperties: []string{"filename", "user_id"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	assert.Contains(t, hits[0].Props, "filename")
	assert.Contains(t, hits[0].Props, "user_id")
	assert.NotContains(t, hits[0].Props, "content")
}

func TestMemoryBackend_HybridZeroLimit(t *testing.T) {
	b := newTestBackend(t)
	seedDocs(t, b)

	hits, err := b.Hybrid(context.Background(), HybridQuery{Query: "chatgpt", Limit: 0})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemoryBackend_Semantic(t *testing.T) {
	b := newTestBackend(t)
	seedDocs(t, b)

	hits, err := b.Semantic(context.Background(), SemanticQuery{
		Query:       "chatgpt 요금제 안내",
		Limit:       3,
		MaxDistance: 2.0,
	})
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	for _, h := range hits {
		require.NotNil(t, h.Distance)
		assert.LessOrEqual(t, *h.Distance, 2.0)
	}
	// Near-identical text lands closest.
	assert.Equal(t, "c-1", hits[0].ID)
}

func TestMemoryBackend_SemanticDistanceCeiling(t *testing.T) {
	b := newTestBackend(t)
	seedDocs(t, b)

	// An impossibly tight ceiling filters everything out.
	hits, err := b.Semantic(context.Background(), SemanticQuery{
		Query:       "완전히 무관한 질의",
		Limit:       3,
		MaxDistance: 0.0001,
	})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemoryBackend_DeleteRemovesFromAllIndexes(t *testing.T) {
	b := newTestBackend(t)
	seedDocs(t, b)
	require.Equal(t, 3, b.Count())

	require.NoError(t, b.Delete(context.Background(), []string{"c-1"}))
	assert.Equal(t, 2, b.Count())

	hits, err := b.Keyword(context.Background(), KeywordQuery{Query: "chatgpt", Limit: 3})
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, "c-1", h.ID)
	}
}

func TestMemoryBackend_ClosedBackendErrors(t *testing.T) {
	b := newTestBackend(t)
	require.NoError(t, b.Close())

	_, err := b.Hybrid(context.Background(), HybridQuery{Query: "x", Limit: 1})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = b.Keyword(context.Background(), KeywordQuery{Query: "x", Limit: 1})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = b.Semantic(context.Background(), SemanticQuery{Query: "x", Limit: 1})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHit_ScoreMeta(t *testing.T) {
	score, distance := 0.8, 0.3
	h := &Hit{ID: "c-1", Score: &score, Distance: &distance, ExplainScore: "rrf=0.8"}

	md := h.ScoreMeta()
	assert.Equal(t, 0.8, md["score"])
	assert.Equal(t, 0.3, md["distance"])
	assert.Equal(t, "rrf=0.8", md["explain_score"])

	// Absent values stay absent rather than appearing as zeros.
	bare := &Hit{ID: "c-2"}
	assert.Empty(t, bare.ScoreMeta())
}
