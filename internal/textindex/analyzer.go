// Package textindex provides the term analyzer, HTML text extraction and the
// in-memory inverted index used to answer term queries over shard documents.
package textindex

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s and strips diacritics, so "Flotación" folds to "flotacion".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// Tokens folds s and splits it into letter/digit runs.
func Tokens(s string) []string {
	return strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// RemoveStopwords drops every token of terms found in stopwords. When nothing
// would remain the terms are returned unchanged.
func RemoveStopwords(terms string, stopwords []string) string {
	if len(stopwords) == 0 {
		return terms
	}
	stop := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		stop[Fold(strings.TrimSpace(w))] = struct{}{}
	}
	var kept []string
	for _, field := range strings.Fields(terms) {
		toks := Tokens(field)
		if len(toks) == 0 {
			continue
		}
		drop := true
		for _, tok := range toks {
			if _, ok := stop[tok]; !ok {
				drop = false
				break
			}
		}
		if !drop {
			kept = append(kept, field)
		}
	}
	if len(kept) == 0 {
		return terms
	}
	return strings.Join(kept, " ")
}
