package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_FullMode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "korean acronym alias with script boundary",
			input: "챗지피티 API 요금제",
			want:  "chatgpt api 요금제",
		},
		{
			name:  "adjacent hangul and ascii get boundary space",
			input: "요금제api",
			want:  "요금제 api",
		},
		{
			name:  "adjacent ascii and hangul get boundary space",
			input: "api요금제",
			want:  "api 요금제",
		},
		{
			name:  "punctuation stripped to spaces",
			input: "what?! is... this",
			want:  "what is this",
		},
		{
			name:  "hyphens split in full mode",
			input: "text-embedding-3-small",
			want:  "text embedding 3 small",
		},
		{
			name:  "whitespace collapsed",
			input: "  hello    world  ",
			want:  "hello world",
		},
		{
			name:  "spaced-out pronunciation collapses to acronym",
			input: "에이 피 아이 사용법",
			want:  "api 사용법",
		},
		{
			name:  "empty input",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input, ModeFull))
		})
	}
}

func TestNormalize_LightMode(t *testing.T) {
	// Light mode keeps hyphens so model names survive the keyword probe.
	assert.Equal(t, "text-embedding-3-small", Normalize("text-embedding-3-small", ModeLight))

	// Punctuation other than hyphens still becomes spaces.
	assert.Equal(t, "gpt 4o mini", Normalize("gpt:4o/mini!", ModeLight))

	// No script boundary insertion in light mode.
	assert.Equal(t, "요금제api", Normalize("요금제API", ModeLight))
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"챗지피티 API 요금제",
		"에스큐엘 인젝션 방어",
		"what is RAG?",
		"text-embedding-3-small 모델",
	}
	for _, in := range inputs {
		for _, mode := range []Mode{ModeFull, ModeLight} {
			once := Normalize(in, mode)
			twice := Normalize(once, mode)
			assert.Equal(t, once, twice, "normalize(%q, %s) must be a fixed point", in, mode)
		}
	}
}

func TestApplyAliases_OrderedFirstMatchWins(t *testing.T) {
	// "챗지피티" must become "chatgpt", not "챗" + "gpt".
	assert.Equal(t, "chatgpt", ApplyAliases("챗지피티"))
	assert.Equal(t, "gpt 4", ApplyAliases("지피티 4"))

	// Case-insensitive matching applies to mixed-script compounds too.
	assert.Equal(t, "aws 배포", ApplyAliases("아마존 웹 서비스 배포"))
}

func TestTokenizer_Split(t *testing.T) {
	tok := NewTokenizer(nil)

	all, rare := tok.Split("챗지피티 API 요금제")

	// Full token set carries both scripts.
	require.Contains(t, all, "chatgpt")
	require.Contains(t, all, "api")
	require.Contains(t, all, "요금제")

	// Rare subset: ASCII length ≥ 3 qualifies.
	assert.Contains(t, rare, "chatgpt")
	assert.Contains(t, rare, "api")
	assert.Contains(t, rare, "요금제")
}

func TestTokenizer_MinimumLengths(t *testing.T) {
	tok := NewTokenizer([]string{})

	all, rare := tok.Split("x ab 가 나다")

	// Single-character runs never tokenize.
	assert.NotContains(t, all, "x")
	assert.NotContains(t, all, "가")

	// Two-character ASCII is a token but not rare.
	assert.Contains(t, all, "ab")
	assert.NotContains(t, rare, "ab")

	// Two-character Hangul qualifies for both sets.
	assert.Contains(t, all, "나다")
	assert.Contains(t, rare, "나다")
}

func TestTokenizer_StopTokensExcluded(t *testing.T) {
	tok := NewTokenizer(nil)

	all, rare := tok.Split("chatgpt 요금제에 대해 알려줘")

	for _, stop := range []string{"대해", "알려줘", "the"} {
		assert.NotContains(t, all, stop)
		assert.NotContains(t, rare, stop)
	}
	assert.Contains(t, all, "chatgpt")
}

func TestTokenizer_CustomStopList(t *testing.T) {
	tok := NewTokenizer([]string{"chatgpt"})

	all, _ := tok.Split("chatgpt api")
	assert.NotContains(t, all, "chatgpt")
	assert.Contains(t, all, "api")
}

func TestTokenizer_Deterministic(t *testing.T) {
	tok := NewTokenizer(nil)
	q := "엘엘엠 기반 검색 엔진 설계"

	first, firstRare := tok.Split(q)
	second, secondRare := tok.Split(q)

	assert.Equal(t, first, second)
	assert.Equal(t, firstRare, secondRare)
}
