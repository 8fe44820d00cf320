// Package query normalizes natural-language queries and extracts
// keyword tokens for hybrid retrieval. Queries mix Hangul and ASCII
// freely ("챗지피티 API 요금제"), so normalization folds spelled-out
// Korean pronunciations of technical acronyms into the acronym itself
// and inserts boundaries between scripts so both sides tokenize.
package query

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Mode selects how aggressively Normalize rewrites the query.
type Mode string

const (
	// ModeFull lowercases, inserts Hangul/ASCII boundaries, strips all
	// punctuation (including hyphens) and collapses whitespace.
	// Used for the main hybrid query and tokenization.
	ModeFull Mode = "full"

	// ModeLight lowercases, strips punctuation except hyphens and
	// collapses whitespace. Used for the keyword preflight probe where
	// hyphenated terms ("text-embedding-3-small") must survive intact.
	ModeLight Mode = "light"
)

// alias is a single ordered rewrite rule. First match wins per
// pattern; all patterns are applied in table order.
type alias struct {
	pattern *regexp.Regexp
	to      string
}

// koTechAliases maps spelled-out Korean pronunciations of common
// technical acronyms to the acronym. Order matters: longer compounds
// ("챗지피티") must rewrite before their suffixes ("지피티").
var koTechAliases = []alias{
	{regexp.MustCompile(`(?i)(챗|쳇)\s*지\s*피\s*티`), "chatgpt"},
	{regexp.MustCompile(`(?i)(지|쥐)\s*피\s*티`), "gpt"},
	{regexp.MustCompile(`(?i)엘엘엠|엘\s*엘\s*엠`), "llm"},
	{regexp.MustCompile(`(?i)에이\s*피\s*아이`), "api"},
	{regexp.MustCompile(`(?i)에이\s*아이`), "ai"},
	{regexp.MustCompile(`(?i)유\s*아이`), "ui"},
	{regexp.MustCompile(`(?i)디\s*비`), "db"},
	{regexp.MustCompile(`(?i)에스\s*큐\s*엘`), "sql"},
	{regexp.MustCompile(`(?i)제이\s*에스\s*온|제이슨`), "json"},
	{regexp.MustCompile(`(?i)피\s*디\s*에프`), "pdf"},
	{regexp.MustCompile(`(?i)시\s*에스\s*브이`), "csv"},
	{regexp.MustCompile(`(?i)유\s*알\s*엘`), "url"},
	{regexp.MustCompile(`(?i)에이\s*더블유\s*에스|아마존\s*웹\s*서비스`), "aws"},
}

var (
	hangulThenASCII = regexp.MustCompile(`([가-힣])([a-z0-9])`)
	asciiThenHangul = regexp.MustCompile(`([a-z0-9])([가-힣])`)

	// Unicode-aware punctuation classes. Letters, digits and underscore
	// survive; everything else becomes a space. The light variant also
	// preserves hyphens.
	punctFull  = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
	punctLight = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)

	whitespace = regexp.MustCompile(`\s+`)
)

// ApplyAliases rewrites spelled-out Korean technical terms to their
// English acronyms (e.g. "챗지피티" → "chatgpt"). Exposed separately so
// callers can alias without full normalization.
func ApplyAliases(q string) string {
	for _, a := range koTechAliases {
		q = a.pattern.ReplaceAllString(q, a.to)
	}
	return q
}

// Normalize canonicalizes a query for search. The input is first
// NFC-normalized and alias-rewritten, then cleaned per mode.
// Normalize is a pure function: identical input yields identical
// output, and the result is a fixed point (idempotent).
func Normalize(q string, mode Mode) string {
	if q == "" {
		return ""
	}
	q = norm.NFC.String(q)
	q = ApplyAliases(q)

	switch mode {
	case ModeLight:
		q = strings.ToLower(q)
		q = punctLight.ReplaceAllString(q, " ")
		q = whitespace.ReplaceAllString(q, " ")
		return strings.TrimSpace(q)
	default:
		q = strings.ToLower(q)
		q = hangulThenASCII.ReplaceAllString(q, "$1 $2")
		q = asciiThenHangul.ReplaceAllString(q, "$1 $2")
		q = strings.ReplaceAll(q, "-", " ")
		q = punctFull.ReplaceAllString(q, " ")
		q = whitespace.ReplaceAllString(q, " ")
		return strings.TrimSpace(q)
	}
}
