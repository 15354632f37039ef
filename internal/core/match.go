package core

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Scores returned by matchScore. Exact beats prefix beats contains; a fuzzy
// match scores its similarity, capped just below prefix.
const (
	scoreExact    = 1.0
	scorePrefix   = 0.95
	scoreContains = 0.9
)

// NormalizeHeader folds a header cell for comparison: NFKC, lower case,
// ё as е, punctuation dropped and whitespace collapsed.
// "Дата операции:" and "ДАТА  ОПЕРАЦИИ" normalize to the same string.
func NormalizeHeader(s string) string {
	s = norm.NFKC.String(CleanText(s))
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "ё", "е")

	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return b.String()
}

// Levenshtein computes the edit distance between two strings, counting
// runes rather than bytes.
func Levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	// Keep ra the shorter one so the rows stay small.
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}

	prev := make([]int, len(ra)+1)
	curr := make([]int, len(ra)+1)
	for i := range prev {
		prev[i] = i
	}

	for j := 1; j <= len(rb); j++ {
		curr[0] = j
		for i := 1; i <= len(ra); i++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[i] = min(prev[i]+1, curr[i-1]+1, prev[i-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(ra)]
}

// Similarity is 1 - distance/maxLen over runes: 1 for identical strings,
// 0 for completely different ones.
func Similarity(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	if la == 0 && lb == 0 {
		return 1
	}
	return 1 - float64(Levenshtein(a, b))/float64(max(la, lb))
}

// matchScore rates how well a normalized header matches one pattern.
// It returns 0 for no match.
func matchScore(header, pattern string, fuzzy bool, threshold float64) float64 {
	if header == "" {
		return 0
	}

	if inner, ok := strings.CutPrefix(pattern, "*"); ok {
		inner = NormalizeHeader(strings.TrimSuffix(inner, "*"))
		if inner != "" && strings.Contains(header, inner) {
			return scoreContains
		}
		return 0
	}

	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		prefix = NormalizeHeader(prefix)
		if prefix != "" && strings.HasPrefix(header, prefix) {
			return scorePrefix
		}
		return 0
	}

	p := NormalizeHeader(pattern)
	if header == p {
		return scoreExact
	}
	if fuzzy {
		if s := Similarity(header, p); s >= threshold && s < scoreExact {
			return min(s, scorePrefix-0.01)
		}
	}
	return 0
}

// bestPatternScore returns the highest score any of cp's patterns gives
// header.
func bestPatternScore(header string, cp ColumnPattern, threshold float64) float64 {
	best := 0.0
	for _, p := range cp.Patterns {
		if s := matchScore(header, p, cp.Fuzzy, threshold); s > best {
			best = s
		}
	}
	return best
}
