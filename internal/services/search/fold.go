package search

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// folded is a case-folded copy of a string that remembers which rune of
// the original each folded rune came from.
type folded struct {
	runes []rune
	src   []int
}

// foldText folds s rune by rune so that match offsets can be mapped back
// onto the original text. Each rune is NFKC-normalized first.
func foldText(s string) folded {
	caser := cases.Fold()
	orig := []rune(s)
	f := folded{
		runes: make([]rune, 0, len(orig)),
		src:   make([]int, 0, len(orig)),
	}
	for i, r := range orig {
		for _, fr := range caser.String(norm.NFKC.String(string(r))) {
			f.runes = append(f.runes, fr)
			f.src = append(f.src, i)
		}
	}
	return f
}

// foldQuery normalizes and folds a whole query.
func foldQuery(q string) []rune {
	return []rune(cases.Fold().String(norm.NFKC.String(q)))
}

// index returns the rune offset in the original text of the first match of
// needle, or -1.
func (f folded) index(needle []rune) int {
	if len(needle) == 0 {
		return -1
	}
	for i := 0; i+len(needle) <= len(f.runes); i++ {
		if equalRunes(f.runes[i:i+len(needle)], needle) {
			return f.src[i]
		}
	}
	return -1
}

func equalRunes(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func contains(text string, needle []rune) bool {
	return foldText(text).index(needle) >= 0
}
