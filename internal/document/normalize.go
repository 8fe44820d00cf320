package document

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DefaultTextKey is the property name that holds full chunk text when
// none is configured.
const DefaultTextKey = "content"

// Contented is a source that carries pre-extracted text alongside
// free-form metadata (the shape loaders and chain frameworks emit).
type Contented interface {
	PageContent() string
	DocMetadata() map[string]any
}

// PropertyCarrier is a raw search hit: object properties plus the
// engine's score metadata and object id.
type PropertyCarrier interface {
	Properties() map[string]any
	ScoreMeta() map[string]any
	ObjectID() string
}

// FromPropsOptions tunes FromProps resolution.
type FromPropsOptions struct {
	// TextKey is the primary content property (default "content").
	TextKey string
	// Content overrides property-based content resolution entirely.
	Content *string
	// ObjectID is an explicit id override from the hit envelope.
	ObjectID string
}

// FromProps normalizes a property map plus score metadata into a
// Document.
//
// Content resolves in priority order: explicit override, the
// configured text key, "content", "text". The id resolves explicit
// override first, then metadata, then properties. Meta keeps every
// property except the text fields so downstream consumers can reach
// source-specific keys without re-fetching.
func FromProps(props, md map[string]any, opts FromPropsOptions) *Document {
	if props == nil {
		props = map[string]any{}
	}
	if md == nil {
		md = map[string]any{}
	}
	textKey := opts.TextKey
	if textKey == "" {
		textKey = DefaultTextKey
	}

	var content string
	if opts.Content != nil {
		content = *opts.Content
	} else {
		content = pickString(props, textKey, "content", "text")
	}

	id := opts.ObjectID
	if id == "" {
		id = pickString(md, "id")
	}
	if id == "" {
		id = pickString(props, "id")
	}

	meta := make(map[string]any, len(props))
	for k, v := range props {
		if k == textKey || k == "content" || k == "text" {
			continue
		}
		meta[k] = v
	}
	if id != "" {
		meta["id"] = id
	}

	d := &Document{
		ID:     id,
		FileID: pickString(props, "file_id", "fileId"),
		UserID: pickString(props, "user_id", "userId"),

		Title:     pickString(props, "title", "filename"),
		Filename:  pickString(props, "filename"),
		Extension: pickString(props, "extension"),
		FileSize:  asInt64(pick(props, "file_size", "fileSize")),
		Labels:    asStrings(pick(props, "labels")),
		Source:    pickString(props, "source"),
		URI:       pickString(props, "uri"),

		ChunkID:    pickString(props, "chunk_id", "chunkId"),
		ChunkIndex: asIntPtr(pick(props, "chunk_index", "chunkIndex")),
		Page:       asIntPtr(pick(props, "page")),

		Content: content,

		Score:         asFloatPtr(pick(md, "score", "__score")),
		Distance:      asFloatPtr(pick(md, "distance")),
		ExplainScore:  pickString(md, "explain_score", "explainScore"),
		ScoreContrast: asFloatPtr(pick(md, "__score_contrast", "scoreContrast")),

		Meta: meta,
	}
	return d
}

// FromMap reconstructs a Document from a camelCase wire payload,
// tolerating snake_case variants from older producers. Meta may
// arrive as a JSON string; a string that fails to parse yields an
// empty meta rather than an error.
func FromMap(m map[string]any) *Document {
	if m == nil {
		m = map[string]any{}
	}

	var meta map[string]any
	switch raw := m["meta"].(type) {
	case map[string]any:
		meta = raw
	case string:
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			meta = map[string]any{}
		}
	default:
		meta = map[string]any{}
	}

	return &Document{
		ID:     pickString(m, "id", "weaviate_id"),
		FileID: pickString(m, "fileId", "file_id"),
		UserID: pickString(m, "userId", "user_id"),

		Title:     pickString(m, "title"),
		Filename:  pickString(m, "filename", "file_name"),
		Extension: pickString(m, "extension"),
		FileSize:  asInt64(pick(m, "fileSize", "file_size")),
		Labels:    asStrings(pick(m, "labels")),
		Source:    pickString(m, "source"),
		URI:       pickString(m, "uri"),

		ChunkID:    pickString(m, "chunkId", "chunk_id"),
		ChunkIndex: asIntPtr(pick(m, "chunkIndex", "chunk_index")),
		Page:       asIntPtr(pick(m, "page")),

		Content: pickString(m, "content", "text"),
		Snippet: pickString(m, "snippet"),

		Score:         asFloatPtr(pick(m, "score")),
		Distance:      asFloatPtr(pick(m, "distance")),
		ExplainScore:  pickString(m, "explainScore", "explain_score"),
		ScoreContrast: asFloatPtr(pick(m, "scoreContrast", "__score_contrast")),

		Meta: meta,
	}
}

// FromAny normalizes any supported doc-like value into a Document:
// an existing *Document passes through, Contented sources keep their
// extracted text, PropertyCarrier hits resolve via FromProps, and map
// payloads decode via FromMap. Unknown values degrade to a bare
// Document whose content is the value's string form.
func FromAny(v any, textKey string) *Document {
	switch t := v.(type) {
	case *Document:
		return t
	case Document:
		return &t
	case Contented:
		content := t.PageContent()
		md := t.DocMetadata()
		return FromProps(md, md, FromPropsOptions{
			TextKey:  textKey,
			Content:  &content,
			ObjectID: pickString(md, "id"),
		})
	case PropertyCarrier:
		return FromProps(t.Properties(), t.ScoreMeta(), FromPropsOptions{
			TextKey:  textKey,
			ObjectID: t.ObjectID(),
		})
	case map[string]any:
		return FromMap(t)
	default:
		return &Document{Content: fmt.Sprint(v)}
	}
}

// NormalizeMany converts a batch of doc-like values, dropping nils.
func NormalizeMany(items []any, textKey string) []*Document {
	docs := make([]*Document, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		docs = append(docs, FromAny(it, textKey))
	}
	return docs
}

// pick returns the first non-nil, non-empty-string value among keys.
func pick(m map[string]any, keys ...string) any {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && s == "" {
			continue
		}
		return v
	}
	return nil
}

func pickString(m map[string]any, keys ...string) string {
	v := pick(m, keys...)
	if v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}

// asIntPtr casts best-effort from int, float and numeric-string
// forms; anything else stays absent.
func asIntPtr(v any) *int {
	switch n := v.(type) {
	case nil:
		return nil
	case int:
		return &n
	case int64:
		i := int(n)
		return &i
	case float64:
		i := int(n)
		return &i
	case json.Number:
		if i64, err := n.Int64(); err == nil {
			i := int(i64)
			return &i
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return &i
		}
	}
	return nil
}

func asInt64(v any) int64 {
	if p := asIntPtr(v); p != nil {
		return int64(*p)
	}
	return 0
}

func asFloatPtr(v any) *float64 {
	switch n := v.(type) {
	case nil:
		return nil
	case float64:
		return &n
	case float32:
		f := float64(n)
		return &f
	case int:
		f := float64(n)
		return &f
	case int64:
		f := float64(n)
		return &f
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return &f
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return &f
		}
	}
	return nil
}

func asStrings(v any) []string {
	switch l := v.(type) {
	case nil:
		return nil
	case []string:
		return l
	case []any:
		out := make([]string, 0, len(l))
		for _, it := range l {
			if s, ok := it.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
