package correlate

import (
	"strings"
	"unicode"
)

// TitleMatchTopic is the synthetic topic recorded when titles match but no
// keyword bucket is shared
const TitleMatchTopic = "title_match"

// TitleMatchThreshold is the minimum Jaccard similarity for a title match
const TitleMatchThreshold = 0.85

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "in": true,
	"is": true, "it": true, "its": true, "of": true, "on": true, "or": true,
	"that": true, "the": true, "to": true, "was": true, "were": true, "will": true,
	"with": true, "new": true, "says": true, "over": true, "after": true,
}

// wordSet case-folds titles and drops stop words
func wordSet(titles ...string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range titles {
		words := strings.FieldsFunc(strings.ToLower(t), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, w := range words {
			if !stopWords[w] {
				set[w] = true
			}
		}
	}
	return set
}

// Jaccard is |a∩b| / |a∪b|, zero when both sets are empty
func Jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// TitleSimilarity compares the combined titles of two event groups
func TitleSimilarity(left, right []string) float64 {
	return Jaccard(wordSet(left...), wordSet(right...))
}
