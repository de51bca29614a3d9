// Package matching pairs line items across two versions of a model by
// name. Exact normalized matches are taken first; the remainder goes
// through fuzzy scoring with a fixed confidence floor.
package matching

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Normalize canonicalizes a line item name for comparison: lowercase,
// punctuation stripped to spaces, whitespace collapsed.
func Normalize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// tokens splits a normalized name into its word set.
func tokens(normalized string) map[string]bool {
	set := make(map[string]bool)
	for _, f := range strings.Fields(normalized) {
		set[f] = true
	}
	return set
}

// Similarity scores two raw names in [0,1] as the stronger of two
// signals: token set overlap (Jaccard) and a character level edit
// distance ratio. Token overlap is order-insensitive, which handles
// reordered names like "Revenue, Total" vs "Total Revenue"; the edit
// ratio covers inflection drift like "Revenue" vs "Revenues" where the
// token sets disagree. Averaging the two instead would sink both cases
// below any useful threshold.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	j := jaccard(tokens(na), tokens(nb))
	e := editRatio(na, nb)
	if j > e {
		return j
	}
	return e
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// editRatio maps Levenshtein distance to a [0,1] similarity.
func editRatio(a, b string) float64 {
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 0
	}
	return 1 - float64(levenshtein(a, b))/float64(maxLen)
}

// levenshtein computes the classic edit distance with a rolling two-row
// table.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
