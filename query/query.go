// Package query normalizes free-text product queries into cache keys and
// key tokens used by the domain-search relevance filter.
package query

import (
	"regexp"
	"strings"

	"github.com/kljensen/snowball"
)

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"that": true, "the": true, "to": true, "was": true, "were": true,
	"with": true, "new": true, "best": true, "buy": true, "cheap": true,
	"price": true, "deal": true,
}

var (
	punct = regexp.MustCompile(`[^\w\s]`)
	space = regexp.MustCompile(`\s+`)

	// Tokens that identify a concrete product variant: model numbers,
	// capacities, screen sizes. These carry more weight than plain words.
	attributePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^\d+(gb|tb|mb)$`),
		regexp.MustCompile(`(?i)^\d+(inch|mm|cm|hz|w)$`),
		regexp.MustCompile(`(?i)^[a-z]*\d{2,}[a-z]*$`),
		regexp.MustCompile(`(?i)^(pro|max|plus|ultra|mini|ti|super|xt)$`),
	}
)

// Normalize produces a canonical form of the query used for cache keys:
// lowercased, punctuation stripped, whitespace collapsed.
func Normalize(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	q = punct.ReplaceAllString(q, " ")
	return space.ReplaceAllString(strings.TrimSpace(q), " ")
}

// KeyTokens extracts the stemmed, deduplicated tokens of a query, stop
// words removed.
func KeyTokens(q string) []string {
	var tokens []string
	seen := make(map[string]bool)

	for _, word := range strings.Fields(Normalize(q)) {
		if len(word) < 2 || stopWords[word] {
			continue
		}
		stemmed := stemWord(word)
		if !seen[stemmed] {
			tokens = append(tokens, stemmed)
			seen[stemmed] = true
		}
	}
	return tokens
}

// AttributeTokens returns the subset of query tokens that pin down a
// product variant (model numbers, capacities, variant suffixes). These
// are not stemmed: "4070" must match exactly.
func AttributeTokens(q string) []string {
	var tokens []string
	seen := make(map[string]bool)

	for _, word := range strings.Fields(Normalize(q)) {
		if seen[word] {
			continue
		}
		for _, p := range attributePatterns {
			if p.MatchString(word) {
				tokens = append(tokens, word)
				seen[word] = true
				break
			}
		}
	}
	return tokens
}

func stemWord(word string) string {
	stem, err := snowball.Stem(word, "english", true)
	if err != nil {
		return word
	}
	return stem
}
