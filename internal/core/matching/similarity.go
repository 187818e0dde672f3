package matching

import (
	"strings"
	"unicode"
)

// MatchThreshold is the minimum Jaccard score for a document to count as matching its reference.
const MatchThreshold = 0.70

const minTokenLength = 3

type TokenSet map[string]struct{}

func (s TokenSet) Has(token string) bool {
	_, ok := s[token]
	return ok
}

// Tokenize lowercases text and splits it on every rune outside [a-z0-9].
// Tokens shorter than three characters are dropped.
func Tokenize(text string) TokenSet {
	out := make(TokenSet)
	if strings.TrimSpace(text) == "" {
		return out
	}

	var b strings.Builder
	flush := func() {
		if b.Len() >= minTokenLength {
			out[b.String()] = struct{}{}
		}
		b.Reset()
	}
	for _, r := range text {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return out
}

// Similarity is the Jaccard index of the token sets of a and b. An empty union scores 0.
func Similarity(a, b string) float64 {
	return Jaccard(Tokenize(a), Tokenize(b))
}

func Jaccard(a, b TokenSet) float64 {
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	intersection := 0
	for token := range small {
		if large.Has(token) {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func IsMatch(score float64) bool {
	return score >= MatchThreshold
}
