package query

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchAny(t *testing.T) {
	tests := []struct {
		name   string
		tokens []string
		text   string
		want   bool
	}{
		{
			name:   "case-insensitive substring",
			tokens: []string{"ChatGPT"},
			text:   "chatgpt 요금제 안내",
			want:   true,
		},
		{
			name:   "korean token",
			tokens: []string{"요금제"},
			text:   "chatgpt 요금제 안내",
			want:   true,
		},
		{
			name:   "any token suffices",
			tokens: []string{"missing", "안내"},
			text:   "chatgpt 요금제 안내",
			want:   true,
		},
		{
			name:   "no match",
			tokens: []string{"refund"},
			text:   "chatgpt 요금제 안내",
			want:   false,
		},
		{
			name:   "empty tokens never match",
			tokens: nil,
			text:   "anything",
			want:   false,
		},
		{
			name:   "empty text never matches",
			tokens: []string{"x"},
			text:   "",
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchAny(tt.tokens, tt.text))
		})
	}
}

func TestCountHits(t *testing.T) {
	text := "pricing page lists pricing tiers and pricing caps"
	assert.Equal(t, 3, CountHits([]string{"pricing"}, text))
	assert.Equal(t, 4, CountHits([]string{"pricing", "tiers"}, text))
	assert.Equal(t, 0, CountHits([]string{"refund"}, text))
	assert.Equal(t, 0, CountHits(nil, text))
}

func TestSnippets_WindowAroundHit(t *testing.T) {
	pad := strings.Repeat("lorem ipsum dolor sit amet. ", 20)
	text := pad + "환불 정책은 구매 후 7일 이내에 적용됩니다. " + pad

	snips := Snippets([]string{"환불"}, text, SnippetOptions{MaxLen: 120})

	require.Len(t, snips, 1)
	assert.Contains(t, snips[0], "환불")
	assert.True(t, utf8.ValidString(snips[0]))
	assert.Less(t, len(snips[0]), len(text))
}

func TestSnippets_MergesOverlappingWindows(t *testing.T) {
	// Two hits close together collapse into one window.
	text := strings.Repeat("x ", 100) + "refund terms and refund limits" + strings.Repeat(" y", 100)

	snips := Snippets([]string{"refund"}, text, SnippetOptions{MaxLen: 200})

	require.Len(t, snips, 1)
	assert.Contains(t, snips[0], "refund terms and refund limits")
}

func TestSnippets_CapsSnippetCount(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 10; i++ {
		b.WriteString("token here. ")
		b.WriteString(strings.Repeat("filler words only in between sections. ", 10))
	}

	snips := Snippets([]string{"token"}, b.String(), SnippetOptions{MaxLen: 80, MaxSnippets: 2})

	assert.Len(t, snips, 2)
}

func TestSnippets_HeadFallbackWithoutHits(t *testing.T) {
	text := "첫 줄 안내문입니다.\n둘째 줄.\n셋째 줄.\n넷째 줄은 잘립니다."

	snips := Snippets([]string{"없는토큰"}, text, SnippetOptions{})

	require.Len(t, snips, 1)
	assert.Contains(t, snips[0], "첫 줄 안내문입니다.")
	assert.NotContains(t, snips[0], "넷째")
	assert.True(t, utf8.ValidString(snips[0]))
}

func TestSnippets_EmptyText(t *testing.T) {
	assert.Nil(t, Snippets([]string{"x"}, "", SnippetOptions{}))
}
