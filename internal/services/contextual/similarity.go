// Package contextual holds the passes that look at a statement in the
// context of its neighbours: antispam, per-source rerank, keyword/entity
// enrichment and the small rules DSL.
package contextual

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// NormalizeText lower-cases and collapses whitespace.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Similarity is 1 - levenshtein(a,b)/max(len(a),len(b)) over runes of the
// normalized texts. Two empty strings are identical.
func Similarity(a, b string) float64 {
	return similarityNormalized(NormalizeText(a), NormalizeText(b))
}

func similarityNormalized(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(longest)
}
