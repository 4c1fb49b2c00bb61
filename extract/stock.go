package extract

import (
	"regexp"
	"strings"
)

// Stock status values.
const (
	StockIn      = "in_stock"
	StockOut     = "out_of_stock"
	StockUnknown = "unknown"
)

// Fixed availability lexicon. Out-of-stock phrases are checked first:
// "currently unavailable" must not be rescued by a nearby "add to cart".
var (
	outOfStockPhrases = []string{
		"out of stock", "sold out", "currently unavailable", "unavailable",
		"backordered", "back-ordered", "pre-order", "coming soon",
		"notify when available",
	}
	inStockPhrases = []string{
		"in stock", "add to cart", "add to basket", "buy now",
		"order now", "pickup today", "ship to store", "available",
	}

	schemaAvailability = regexp.MustCompile(`(?i)schema\.org/(\w+)`)
)

// MapStockText maps availability text through the lexicon. Unmatched
// text is unknown, never guessed.
func MapStockText(text string) string {
	if text == "" {
		return StockUnknown
	}
	lower := strings.ToLower(text)

	if m := schemaAvailability.FindStringSubmatch(lower); m != nil {
		switch strings.ToLower(m[1]) {
		case "instock", "instoreonly", "onlineonly", "limitedavailability":
			return StockIn
		case "outofstock", "soldout", "discontinued", "preorder", "backorder":
			return StockOut
		}
	}

	for _, phrase := range outOfStockPhrases {
		if strings.Contains(lower, phrase) {
			return StockOut
		}
	}
	for _, phrase := range inStockPhrases {
		if strings.Contains(lower, phrase) {
			return StockIn
		}
	}
	return StockUnknown
}
