package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFilters_ScalarRules(t *testing.T) {
	// Strings become case-insensitive substring matches.
	f := NormalizeFilters(map[string]any{"filename": "Guide.PDF"})
	require.NotNil(t, f)
	assert.Equal(t, OpTextContains, f.Op)
	assert.Equal(t, "filename", f.Key)
	assert.Equal(t, "guide.pdf", f.Value)

	// Numbers and bools become exact matches.
	f = NormalizeFilters(map[string]any{"page": 3})
	assert.Equal(t, OpEqual, f.Op)

	f = NormalizeFilters(map[string]any{"archived": true})
	assert.Equal(t, OpEqual, f.Op)
}

func TestNormalizeFilters_ListBecomesOr(t *testing.T) {
	f := NormalizeFilters(map[string]any{"labels": []any{"work", "tax"}})
	require.NotNil(t, f)
	assert.Equal(t, OpOr, f.Op)
	require.Len(t, f.Operands, 2)
	assert.Equal(t, OpTextContains, f.Operands[0].Op)
}

func TestNormalizeFilters_MultipleKeysBecomeAnd(t *testing.T) {
	f := NormalizeFilters(map[string]any{
		"user_id": "u-1",
		"page":    2,
	})
	require.NotNil(t, f)
	assert.Equal(t, OpAnd, f.Op)
	require.Len(t, f.Operands, 2)

	// Keys are processed in sorted order, so the tree is deterministic.
	assert.Equal(t, "page", f.Operands[0].Key)
	assert.Equal(t, "user_id", f.Operands[1].Key)
}

func TestNormalizeFilters_EmptyReturnsNil(t *testing.T) {
	assert.Nil(t, NormalizeFilters(nil))
	assert.Nil(t, NormalizeFilters(map[string]any{}))
}

func TestFilter_Match(t *testing.T) {
	props := map[string]any{
		"filename": "Tax-Guide-2024.pdf",
		"user_id":  "u-1",
		"page":     3,
		"archived": false,
	}

	tests := []struct {
		name   string
		filter *Filter
		want   bool
	}{
		{"nil filter matches everything", nil, true},
		{"substring case-insensitive", TextContains("filename", "tax-guide"), true},
		{"substring miss", TextContains("filename", "invoice"), false},
		{"equal number", Equal("page", 3), true},
		{"equal number cross-type", Equal("page", float64(3)), true},
		{"equal bool", Equal("archived", false), true},
		{"absent key never matches", Equal("missing", 1), false},
		{"and requires all", And(Equal("page", 3), TextContains("user_id", "u-1")), true},
		{"and fails on one", And(Equal("page", 3), TextContains("user_id", "u-2")), false},
		{"or requires one", Or(Equal("page", 9), TextContains("filename", "guide")), true},
		{"or fails on all", Or(Equal("page", 9), TextContains("filename", "invoice")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(props))
		})
	}
}

func TestParseBoost(t *testing.T) {
	field, boost := parseBoost("filename^2")
	assert.Equal(t, "filename", field)
	assert.Equal(t, 2.0, boost)

	field, boost = parseBoost("content")
	assert.Equal(t, "content", field)
	assert.Equal(t, 1.0, boost)

	// Malformed boosts fall back to 1.0.
	field, boost = parseBoost("filename^x")
	assert.Equal(t, "filename", field)
	assert.Equal(t, 1.0, boost)
}
