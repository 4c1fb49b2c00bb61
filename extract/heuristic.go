package extract

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/markusmobius/go-trafilatura"

	"pricewatch/fetch"
)

// Heuristic is the visible-text tier: page metadata and content text via
// trafilatura, price by currency-pattern scan. It handles any HTML page,
// so it sits last among the rule extractors.
type Heuristic struct{}

// NewHeuristic creates the visible-text extractor.
func NewHeuristic() *Heuristic { return &Heuristic{} }

func (h *Heuristic) Name() string { return "heuristic" }

func (h *Heuristic) CanHandle(page *fetch.Page) bool {
	return len(page.Body) > 0 &&
		(page.ContentType == "" || strings.Contains(page.ContentType, "html"))
}

func (h *Heuristic) Extract(ctx context.Context, page *fetch.Page) (*Record, error) {
	parsedURL, err := url.Parse(page.URL)
	if err != nil {
		return nil, &Failure{URL: page.URL, Reason: "unparsable url"}
	}

	result, err := trafilatura.Extract(bytes.NewReader(page.Body), trafilatura.Options{
		OriginalURL: parsedURL,
	})
	if err != nil {
		return nil, &Failure{URL: page.URL, Reason: "content extraction failed"}
	}

	rec := &Record{
		Retailer:    page.Domain,
		URL:         page.URL,
		Title:       strings.TrimSpace(result.Metadata.Title),
		Description: strings.TrimSpace(result.Metadata.Description),
		ImageURL:    result.Metadata.Image,
		Method:      MethodRule,
	}

	text := result.ContentText
	if price, ok := ParsePrice(text); ok {
		rec.Price = &price
		rec.Currency, _ = DetectCurrency(text)
	}
	rec.StockText = stockPhraseIn(text)

	if rec.Title == "" && rec.Price == nil {
		return nil, &Failure{URL: page.URL, Reason: "no product signal in visible text"}
	}
	return rec, nil
}

// stockPhraseIn returns the first lexicon phrase present in the text, so
// the record carries the raw availability wording it was judged on.
func stockPhraseIn(text string) string {
	lower := strings.ToLower(text)
	for _, phrase := range outOfStockPhrases {
		if strings.Contains(lower, phrase) {
			return phrase
		}
	}
	for _, phrase := range inStockPhrases {
		if strings.Contains(lower, phrase) {
			return phrase
		}
	}
	return ""
}

var _ Extractor = (*Heuristic)(nil)
