// Package search implements approximate, diacritic-insensitive matching
// of Vietnamese product, supplier and customer text.
package search

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lower-cases s and strips diacritics so "Đầu hút" matches "dau hut".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.Map(func(r rune) rune {
		switch r {
		case 'đ', 'Đ':
			return 'd'
		}
		return unicode.ToLower(r)
	}, out)
	return strings.Join(strings.Fields(out), " ")
}

// Score rates how well query matches text; 0 means no match. Each query
// token must match somewhere in text: an exact word scores highest, then a
// word prefix, a substring, and finally an in-order subsequence.
func Score(query, text string) int {
	q := strings.Fields(Fold(query))
	if len(q) == 0 {
		return 0
	}
	t := Fold(text)
	words := strings.Fields(t)

	total := 0
	for _, tok := range q {
		best := 0
		for _, w := range words {
			switch {
			case w == tok:
				best = max(best, 100)
			case strings.HasPrefix(w, tok):
				best = max(best, 60)
			}
		}
		if best == 0 && strings.Contains(t, tok) {
			best = 40
		}
		if best == 0 && subsequence(tok, t) {
			best = 10
		}
		if best == 0 {
			return 0
		}
		total += best
	}
	return total
}

func subsequence(needle, hay string) bool {
	hr := []rune(hay)
	i := 0
	for _, r := range needle {
		for i < len(hr) && hr[i] != r {
			i++
		}
		if i == len(hr) {
			return false
		}
		i++
	}
	return true
}

// Rank returns the indexes of candidates that match query, best first.
// text extracts the searchable text for the i-th candidate. Ties keep the
// original order.
func Rank(query string, n int, text func(i int) string) []int {
	type hit struct{ idx, score int }
	var hits []hit
	for i := 0; i < n; i++ {
		if s := Score(query, text(i)); s > 0 {
			hits = append(hits, hit{i, s})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })
	out := make([]int, len(hits))
	for i, h := range hits {
		out[i] = h.idx
	}
	return out
}
