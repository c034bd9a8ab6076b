package alignment

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	markRemover = runes.Remove(runes.In(unicode.Mn))
	tagPattern  = strings.NewReplacer("<i>", " ", "</i>", " ", "<b>", " ", "</b>", " ", "\n", " ")
)

// Normalize folds case, strips diacritics, markup and punctuation and collapses
// whitespace so transcripts and cue text compare on words only.
func Normalize(s string) string {
	s = tagPattern.Replace(s)
	t := transform.Chain(norm.NFD, markRemover, norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err == nil {
		s = stripped
	}
	s = cases.Fold().String(s)

	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		case !space:
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// Similarity is 1 minus the rune edit distance over the longer length.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
