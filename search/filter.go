package search

import (
	"strings"

	"pricewatch/query"
)

// Paths that never lead to a product record.
var skipPathPatterns = []string{
	"/blog/", "/news/", "/article/", "/forum/", "/help/", "/support/",
	"/about/", "/contact/", "/careers/", "/press/", "/legal/",
}

// URL or title tokens that mark a page as a product surface.
var productPatterns = []string{
	"/product/", "/item/", "/p/", "/dp/", "/gp/product/", "/site/",
	"buy", "shop", "purchase", "add to cart", "add to basket",
}

func isProductPage(rawURL, title string) bool {
	u := strings.ToLower(rawURL)
	t := strings.ToLower(title)

	for _, pattern := range skipPathPatterns {
		if strings.Contains(u, pattern) {
			return false
		}
	}
	for _, pattern := range productPatterns {
		if strings.Contains(u, pattern) || strings.Contains(t, pattern) {
			return true
		}
	}
	return false
}

// matchesQuery requires the hit to carry the query's identifying tokens.
// When the query pins a variant (model number, capacity), every attribute
// token must appear in the title or URL; otherwise at least one key token
// must.
func matchesQuery(rawURL, title string, q string) bool {
	haystack := strings.ToLower(title + " " + rawURL)

	attrs := query.AttributeTokens(q)
	if len(attrs) > 0 {
		for _, token := range attrs {
			if !strings.Contains(haystack, token) {
				return false
			}
		}
		return true
	}

	for _, token := range query.KeyTokens(q) {
		if strings.Contains(haystack, token) {
			return true
		}
	}
	return false
}
