// Package document defines the canonical document model shared by
// retrieval and context assembly, and normalizes the heterogeneous
// payload shapes that reach it: raw search-hit properties, camelCase
// wire payloads, and pre-extracted content carriers.
package document

import (
	"encoding/json"
	"fmt"
)

// Document is the canonical chunk-level document. Fields split into
// identity and linkage (ID, FileID, UserID), file info (Title through
// URI), chunk info (ChunkID, ChunkIndex, Page), text (Content,
// Snippet) and scoring (Score, Distance, ExplainScore, ScoreContrast).
// Pointer fields distinguish "absent" from zero: a chunk index of 0 is
// meaningful, a missing one is not.
type Document struct {
	ID     string `json:"id,omitempty"`
	FileID string `json:"fileId,omitempty"`
	UserID string `json:"userId,omitempty"`

	Title     string   `json:"title"`
	Filename  string   `json:"filename"`
	Extension string   `json:"extension,omitempty"`
	FileSize  int64    `json:"fileSize,omitempty"`
	Labels    []string `json:"labels,omitempty"`
	Source    string   `json:"source,omitempty"`
	URI       string   `json:"uri,omitempty"`

	ChunkID    string `json:"chunkId,omitempty"`
	ChunkIndex *int   `json:"chunkIndex,omitempty"`
	Page       *int   `json:"page,omitempty"`

	Content string `json:"content"`
	Snippet string `json:"snippet,omitempty"`

	Score         *float64 `json:"score,omitempty"`
	Distance      *float64 `json:"distance,omitempty"`
	ExplainScore  string   `json:"explainScore,omitempty"`
	ScoreContrast *float64 `json:"scoreContrast,omitempty"`

	// Meta keeps the original properties minus the heavy text fields.
	Meta map[string]any `json:"meta,omitempty"`
}

func (d *Document) String() string {
	return fmt.Sprintf("Document(title=%q, id=%q, fileId=%q, len=%d, score=%v, page=%v, chunkIndex=%v)",
		d.Title, d.ID, d.FileID, len(d.Content), fmtPtr(d.Score), fmtPtr(d.Page), fmtPtr(d.ChunkIndex))
}

// ToJSON emits the camelCase wire format used between workers.
func (d *Document) ToJSON() ([]byte, error) {
	return json.Marshal(d)
}

// DistanceOr returns the distance or def when absent.
func (d *Document) DistanceOr(def float64) float64 {
	if d.Distance == nil {
		return def
	}
	return *d.Distance
}

// ScoreOr returns the score or def when absent.
func (d *Document) ScoreOr(def float64) float64 {
	if d.Score == nil {
		return def
	}
	return *d.Score
}

// MetaString returns a string-valued meta entry, or "" when absent or
// non-string.
func (d *Document) MetaString(key string) string {
	if d.Meta == nil {
		return ""
	}
	if s, ok := d.Meta[key].(string); ok {
		return s
	}
	return ""
}

func fmtPtr[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
