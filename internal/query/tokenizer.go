package query

import (
	"regexp"
	"strings"
)

// Token length minimums. ASCII runs shorter than two characters are
// noise ("a", "i"); the rare subset requires one more character so it
// only carries terms with real topical signal. Hangul runs carry more
// information per character, so two characters qualify for both sets.
const (
	ASCIIMinLen   = 2
	ASCIIRareLen  = 3
	HangulMinLen  = 2
	HangulRareLen = 2
)

var (
	asciiRun  = regexp.MustCompile(`[a-z0-9]+`)
	hangulRun = regexp.MustCompile(`[가-힣]+`)
)

// DefaultStopTokens are query filler terms excluded from keyword
// matching. Mostly Korean question scaffolding plus a handful of
// English function words.
var DefaultStopTokens = []string{
	// Korean question scaffolding and filler
	"그리고", "하지만", "그래서", "그런데", "그러면",
	"무엇", "뭐야", "뭔가", "어떻게", "어떤", "무슨",
	"왜", "언제", "어디", "누구",
	"이것", "저것", "그것",
	"대해", "대한", "관련", "관한",
	"내용", "정보", "문서", "자료",
	"알려줘", "알려주세요", "설명해줘", "해줘", "주세요",
	"있나요", "인가요", "합니다", "있는",
	// English function words
	"the", "a", "an", "is", "are", "was", "were",
	"of", "to", "in", "for", "on", "at", "by",
	"and", "or", "not", "what", "how", "why",
	"please", "about", "with",
}

// Tokenizer extracts keyword tokens from queries with a configurable
// stop-token set. The zero value is not usable; construct with
// NewTokenizer.
type Tokenizer struct {
	stop map[string]struct{}
}

// NewTokenizer builds a tokenizer with the given stop tokens.
// A nil slice uses DefaultStopTokens; an empty non-nil slice disables
// stop filtering entirely.
func NewTokenizer(stopTokens []string) *Tokenizer {
	if stopTokens == nil {
		stopTokens = DefaultStopTokens
	}
	stop := make(map[string]struct{}, len(stopTokens))
	for _, s := range stopTokens {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			stop[s] = struct{}{}
		}
	}
	return &Tokenizer{stop: stop}
}

// Tokens extracts all keyword tokens from a query: lowercase ASCII
// alphanumeric runs (length ≥ 2) and Hangul runs (length ≥ 2), stop
// tokens removed. The query is normalized in full mode first.
func (t *Tokenizer) Tokens(q string) []string {
	nq := Normalize(q, ModeFull)
	toks := make([]string, 0, 8)
	for _, w := range asciiRun.FindAllString(nq, -1) {
		if len(w) >= ASCIIMinLen && !t.isStop(w) {
			toks = append(toks, w)
		}
	}
	for _, h := range hangulRun.FindAllString(nq, -1) {
		if len([]rune(h)) >= HangulMinLen && !t.isStop(h) {
			toks = append(toks, h)
		}
	}
	return toks
}

// Split extracts the full token list plus the rare subset used as
// strong topical anchors. Rare ASCII tokens need length ≥ 3
// ("api", "chatgpt"); rare Hangul tokens need length ≥ 2.
func (t *Tokenizer) Split(q string) (all, rare []string) {
	nq := Normalize(q, ModeFull)

	var asciiToks, hangulToks []string
	for _, w := range asciiRun.FindAllString(nq, -1) {
		if len(w) >= ASCIIMinLen && !t.isStop(w) {
			asciiToks = append(asciiToks, w)
		}
	}
	for _, h := range hangulRun.FindAllString(nq, -1) {
		if len([]rune(h)) >= HangulMinLen && !t.isStop(h) {
			hangulToks = append(hangulToks, h)
		}
	}

	all = make([]string, 0, len(asciiToks)+len(hangulToks))
	all = append(all, asciiToks...)
	all = append(all, hangulToks...)

	for _, w := range asciiToks {
		if len(w) >= ASCIIRareLen {
			rare = append(rare, w)
		}
	}
	for _, h := range hangulToks {
		if len([]rune(h)) >= HangulRareLen {
			rare = append(rare, h)
		}
	}
	return all, rare
}

func (t *Tokenizer) isStop(tok string) bool {
	_, ok := t.stop[strings.ToLower(tok)]
	return ok
}
