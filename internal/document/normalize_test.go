package document

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromProps_ContentResolution(t *testing.T) {
	tests := []struct {
		name  string
		props map[string]any
		opts  FromPropsOptions
		want  string
	}{
		{
			name:  "explicit override wins",
			props: map[string]any{"content": "prop content"},
			opts:  FromPropsOptions{Content: strPtr("override")},
			want:  "override",
		},
		{
			name:  "configured text key first",
			props: map[string]any{"body": "from body", "content": "from content"},
			opts:  FromPropsOptions{TextKey: "body"},
			want:  "from body",
		},
		{
			name:  "content fallback",
			props: map[string]any{"content": "from content", "text": "from text"},
			opts:  FromPropsOptions{TextKey: "body"},
			want:  "from content",
		},
		{
			name:  "text fallback last",
			props: map[string]any{"text": "from text"},
			opts:  FromPropsOptions{TextKey: "body"},
			want:  "from text",
		},
		{
			name:  "empty string treated as absent",
			props: map[string]any{"content": "", "text": "from text"},
			opts:  FromPropsOptions{},
			want:  "from text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := FromProps(tt.props, nil, tt.opts)
			assert.Equal(t, tt.want, d.Content)
		})
	}
}

func TestFromProps_IDResolution(t *testing.T) {
	props := map[string]any{"id": "prop-id"}
	md := map[string]any{"id": "md-id"}

	// Explicit override beats both sources.
	d := FromProps(props, md, FromPropsOptions{ObjectID: "explicit"})
	assert.Equal(t, "explicit", d.ID)

	// Metadata id beats the property id.
	d = FromProps(props, md, FromPropsOptions{})
	assert.Equal(t, "md-id", d.ID)

	// Property id is the last resort.
	d = FromProps(props, nil, FromPropsOptions{})
	assert.Equal(t, "prop-id", d.ID)

	// The resolved id is mirrored into meta for downstream dedup.
	assert.Equal(t, "prop-id", d.MetaString("id"))
}

func TestFromProps_MetaExcludesTextFields(t *testing.T) {
	props := map[string]any{
		"body":     "full text",
		"content":  "also text",
		"text":     "more text",
		"filename": "guide.pdf",
		"page":     3,
	}

	d := FromProps(props, nil, FromPropsOptions{TextKey: "body"})

	assert.NotContains(t, d.Meta, "body")
	assert.NotContains(t, d.Meta, "content")
	assert.NotContains(t, d.Meta, "text")
	assert.Equal(t, "guide.pdf", d.Meta["filename"])
}

func TestFromProps_FieldCoercion(t *testing.T) {
	props := map[string]any{
		"filename":    "report.pdf",
		"file_size":   "2048",
		"chunk_index": float64(4), // JSON numbers decode as float64
		"page":        "12",
		"labels":      []any{"work", "tax"},
	}
	md := map[string]any{
		"score":    0.81,
		"distance": 0.22,
	}

	d := FromProps(props, md, FromPropsOptions{})

	// Title falls back to filename when absent.
	assert.Equal(t, "report.pdf", d.Title)
	assert.Equal(t, int64(2048), d.FileSize)
	require.NotNil(t, d.ChunkIndex)
	assert.Equal(t, 4, *d.ChunkIndex)
	require.NotNil(t, d.Page)
	assert.Equal(t, 12, *d.Page)
	assert.Equal(t, []string{"work", "tax"}, d.Labels)
	assert.InDelta(t, 0.81, d.ScoreOr(0), 1e-9)
	assert.InDelta(t, 0.22, d.DistanceOr(1), 1e-9)
}

func TestFromProps_NonNumericIndexStaysAbsent(t *testing.T) {
	d := FromProps(map[string]any{"chunk_index": "not-a-number"}, nil, FromPropsOptions{})
	assert.Nil(t, d.ChunkIndex)
}

func TestFromMap_CamelAndSnakeCase(t *testing.T) {
	d := FromMap(map[string]any{
		"id":         "doc-1",
		"fileId":     "file-1",
		"chunkIndex": float64(2),
		"content":    "hello",
		"score":      0.5,
	})
	assert.Equal(t, "doc-1", d.ID)
	assert.Equal(t, "file-1", d.FileID)
	require.NotNil(t, d.ChunkIndex)
	assert.Equal(t, 2, *d.ChunkIndex)
	assert.Equal(t, "hello", d.Content)

	// Older producers use snake_case keys.
	d = FromMap(map[string]any{
		"file_id":     "file-2",
		"chunk_index": 7,
		"text":        "legacy",
	})
	assert.Equal(t, "file-2", d.FileID)
	require.NotNil(t, d.ChunkIndex)
	assert.Equal(t, 7, *d.ChunkIndex)
	assert.Equal(t, "legacy", d.Content)
}

func TestFromMap_MetaAsJSONString(t *testing.T) {
	d := FromMap(map[string]any{
		"content": "x",
		"meta":    `{"filename":"a.md"}`,
	})
	assert.Equal(t, "a.md", d.MetaString("filename"))

	// Malformed meta strings degrade to empty, never error.
	d = FromMap(map[string]any{"meta": `{broken`})
	assert.NotNil(t, d.Meta)
	assert.Empty(t, d.Meta)
}

type fakeHit struct {
	props map[string]any
	md    map[string]any
	id    string
}

func (h fakeHit) Properties() map[string]any { return h.props }
func (h fakeHit) ScoreMeta() map[string]any  { return h.md }
func (h fakeHit) ObjectID() string           { return h.id }

type fakeContented struct {
	content string
	md      map[string]any
}

func (c fakeContented) PageContent() string         { return c.content }
func (c fakeContented) DocMetadata() map[string]any { return c.md }

func TestFromAny_DispatchesByShape(t *testing.T) {
	// Given one value of each supported shape
	orig := &Document{ID: "orig", Content: "pass through"}
	hit := fakeHit{
		props: map[string]any{"text": "hit text", "filename": "h.md"},
		md:    map[string]any{"distance": 0.3},
		id:    "hit-1",
	}
	carrier := fakeContented{
		content: "extracted",
		md:      map[string]any{"filename": "c.md", "id": "c-1"},
	}

	// When normalized through the single entry point
	fromDoc := FromAny(orig, "text")
	fromHit := FromAny(hit, "text")
	fromCarrier := FromAny(carrier, "content")
	fromMap := FromAny(map[string]any{"content": "mapped"}, "content")
	fromUnknown := FromAny(42, "content")

	// Then each resolves by its own rules
	assert.Same(t, orig, fromDoc)

	assert.Equal(t, "hit-1", fromHit.ID)
	assert.Equal(t, "hit text", fromHit.Content)
	assert.InDelta(t, 0.3, fromHit.DistanceOr(1), 1e-9)

	assert.Equal(t, "extracted", fromCarrier.Content)
	assert.Equal(t, "c-1", fromCarrier.ID)

	assert.Equal(t, "mapped", fromMap.Content)
	assert.Equal(t, "42", fromUnknown.Content)
}

func TestNormalizeMany_DropsNils(t *testing.T) {
	docs := NormalizeMany([]any{
		map[string]any{"content": "one"},
		nil,
		map[string]any{"content": "two"},
	}, "content")

	require.Len(t, docs, 2)
	assert.Equal(t, "one", docs[0].Content)
	assert.Equal(t, "two", docs[1].Content)
}

func TestDocument_WireFormatIsCamelCase(t *testing.T) {
	idx := 3
	d := &Document{
		ID:         "doc-1",
		FileID:     "file-1",
		Title:      "Guide",
		Filename:   "guide.pdf",
		ChunkIndex: &idx,
		Content:    "body",
	}

	raw, err := d.ToJSON()
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "file-1", m["fileId"])
	assert.Equal(t, float64(3), m["chunkIndex"])
	assert.NotContains(t, m, "file_id")
}

func strPtr(s string) *string { return &s }
