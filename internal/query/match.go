package query

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// MatchAny reports whether any token appears in text as a
// case-insensitive substring.
func MatchAny(tokens []string, text string) bool {
	if len(tokens) == 0 || text == "" {
		return false
	}
	low := strings.ToLower(text)
	for _, t := range tokens {
		if t == "" {
			continue
		}
		if strings.Contains(low, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

// CountHits counts total case-insensitive occurrences of all tokens
// in text.
func CountHits(tokens []string, text string) int {
	if len(tokens) == 0 || text == "" {
		return 0
	}
	low := strings.ToLower(text)
	n := 0
	for _, t := range tokens {
		if t == "" {
			continue
		}
		n += strings.Count(low, strings.ToLower(t))
	}
	return n
}

// SnippetOptions bounds snippet extraction.
type SnippetOptions struct {
	// MaxLen is the target snippet window length in bytes (default 320).
	MaxLen int
	// MaxSnippets caps the number of returned windows (default 4).
	MaxSnippets int
}

// Snippets extracts context windows around token hits in text,
// merging overlapping windows and lightly trimming to sentence
// boundaries. With no hits it falls back to the head of the text, so
// the result is non-empty whenever text is non-empty.
func Snippets(tokens []string, text string, opts SnippetOptions) []string {
	if text == "" {
		return nil
	}
	if opts.MaxLen <= 0 {
		opts.MaxLen = 320
	}
	if opts.MaxSnippets <= 0 {
		opts.MaxSnippets = 4
	}

	low := strings.ToLower(text)
	var hits []int
	for _, t := range tokens {
		if t == "" {
			continue
		}
		re := regexp.MustCompile(regexp.QuoteMeta(strings.ToLower(t)))
		for _, m := range re.FindAllStringIndex(low, -1) {
			hits = append(hits, m[0])
		}
	}

	// No explicit hits: return the first few lines as one snippet.
	if len(hits) == 0 {
		lines := strings.Split(strings.TrimSpace(text), "\n")
		if len(lines) > 3 {
			lines = lines[:3]
		}
		head := strings.Join(lines, " ")
		if len(head) > opts.MaxLen {
			head = head[:runeFloor(head, opts.MaxLen)]
		}
		return []string{head}
	}

	sort.Ints(hits)

	// Build windows around hits, merging near-overlapping regions.
	type window struct{ start, end int }
	var windows []window
	half := opts.MaxLen / 2
	for _, pos := range hits {
		start := pos - half
		if start < 0 {
			start = 0
		}
		end := pos + half
		if end > len(text) {
			end = len(text)
		}
		// Hangul is multi-byte; keep window edges on rune boundaries.
		start = runeFloor(text, start)
		end = runeFloor(text, end)
		if len(windows) > 0 && start <= windows[len(windows)-1].end+10 {
			if end > windows[len(windows)-1].end {
				windows[len(windows)-1].end = end
			}
			continue
		}
		windows = append(windows, window{start, end})
	}

	if len(windows) > opts.MaxSnippets {
		windows = windows[:opts.MaxSnippets]
	}

	out := make([]string, 0, len(windows))
	for _, w := range windows {
		chunk := text[w.start:w.end]
		// Light sentence-boundary trim on both edges.
		left := maxInt(strings.Index(chunk, ". "), strings.Index(chunk, "\n"))
		right := maxInt(strings.LastIndex(chunk, ". "), strings.LastIndex(chunk, "\n"))
		if left > 0 && left < len(chunk)-1 {
			chunk = chunk[left+1:]
			right -= left + 1
		}
		if right > 0 && right < len(chunk)-1 {
			chunk = chunk[:right+1]
		}
		out = append(out, strings.TrimSpace(chunk))
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// runeFloor moves a byte offset left until it lands on a rune start.
func runeFloor(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
