package geo

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/mozillazg/go-unidecode"
	"github.com/xrash/smetrics"
)

// NormalizeName canonicalizes a parish or canton value: trimmed, the text
// after the last ';' (registry dumps sometimes concatenate levels), lower
// case. An empty result means the value is absent.
func NormalizeName(v string) string {
	s := strings.TrimSpace(v)
	if i := strings.LastIndex(s, ";"); i >= 0 {
		s = strings.TrimSpace(s[i+1:])
	}
	return strings.ToLower(s)
}

// Fold strips accents and collapses whitespace so that "SAN JOSÉ  DE MINAS"
// and "san jose de minas" compare equal.
func Fold(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(unidecode.Unidecode(s))), " ")
}

// Similarity is the Levenshtein ratio of the folded names, in [0, 1].
func Similarity(a, b string) float64 {
	a, b = Fold(a), Fold(b)
	if a == b {
		return 1
	}
	n := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if n == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(n)
}

// JaroWinkler scores the folded names; used to break similarity ties.
func JaroWinkler(a, b string) float64 {
	return smetrics.JaroWinkler(Fold(a), Fold(b), 0.7, 4)
}

// BestMatch returns the candidate most similar to name with a score of at
// least threshold. Equal scores are broken by Jaro-Winkler, then by
// candidate order.
func BestMatch(name string, candidates []string, threshold float64) (string, float64, bool) {
	var (
		best      string
		bestScore float64
		bestJW    float64
		found     bool
	)
	for _, c := range candidates {
		score := Similarity(name, c)
		if score < threshold {
			continue
		}
		jw := JaroWinkler(name, c)
		if !found || score > bestScore || (score == bestScore && jw > bestJW) {
			best, bestScore, bestJW, found = c, score, jw, true
		}
	}
	return best, bestScore, found
}
