package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"pricewatch/fetch"
)

// Amazon is a site-specific rule extractor for amazon.* product pages.
type Amazon struct{}

// NewAmazon creates the Amazon extractor.
func NewAmazon() *Amazon { return &Amazon{} }

func (a *Amazon) Name() string { return "amazon" }

func (a *Amazon) CanHandle(page *fetch.Page) bool {
	return strings.Contains(page.Domain, "amazon.")
}

func (a *Amazon) Extract(ctx context.Context, page *fetch.Page) (*Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	rec := &Record{
		Retailer: page.Domain,
		URL:      page.URL,
		Method:   MethodRule,
	}

	rec.Title = a.extractTitle(doc)
	if price, currency, ok := a.extractPrice(doc); ok {
		rec.Price = &price
		rec.Currency = currency
	}
	if original, _, ok := a.extractOriginalPrice(doc); ok {
		rec.OriginalPrice = &original
	}
	rec.StockText = a.extractAvailability(doc)
	rec.Description = a.extractDescription(doc)
	rec.ImageURL = a.extractImage(doc)

	if rec.Title == "" {
		return nil, &Failure{URL: page.URL, Reason: "no product title"}
	}
	return rec, nil
}

var amazonTitleSelectors = []string{
	"#productTitle",
	"h1.a-size-large",
	"h1.a-size-base-plus",
	`h1[data-automation-id="product-title"]`,
}

func (a *Amazon) extractTitle(doc *goquery.Document) string {
	for _, selector := range amazonTitleSelectors {
		title := strings.TrimSpace(doc.Find(selector).First().Text())
		if title != "" {
			return title
		}
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if idx := strings.Index(title, "Amazon.com"); idx > 0 {
		title = strings.TrimRight(strings.TrimSpace(title[:idx]), ":-| ")
	}
	return title
}

var amazonPriceSelectors = []string{
	".a-price .a-offscreen",
	".a-price-current .a-offscreen",
	"#priceblock_ourprice",
	"#priceblock_dealprice",
	".a-price-whole",
	".a-price-range .a-offscreen",
}

func (a *Amazon) extractPrice(doc *goquery.Document) (float64, string, bool) {
	for _, selector := range amazonPriceSelectors {
		text := strings.TrimSpace(doc.Find(selector).First().Text())
		if text == "" {
			continue
		}
		if price, ok := ParsePrice(text); ok {
			currency, _ := DetectCurrency(text)
			return price, currency, true
		}
	}
	return 0, "", false
}

var amazonStrikeSelectors = []string{
	".a-text-strike",
	".a-price.a-text-price .a-offscreen",
}

func (a *Amazon) extractOriginalPrice(doc *goquery.Document) (float64, string, bool) {
	for _, selector := range amazonStrikeSelectors {
		text := strings.TrimSpace(doc.Find(selector).First().Text())
		if text == "" {
			continue
		}
		if price, ok := ParsePrice(text); ok {
			currency, _ := DetectCurrency(text)
			return price, currency, true
		}
	}
	return 0, "", false
}

func (a *Amazon) extractAvailability(doc *goquery.Document) string {
	for _, selector := range []string{
		"#availability .a-color-state",
		"#availability .a-color-success",
		"#availability .a-color-price",
		"#availability span",
	} {
		text := strings.TrimSpace(doc.Find(selector).First().Text())
		if text != "" {
			return text
		}
	}

	// An enabled add-to-cart button is an in-stock signal by itself.
	button := doc.Find("#add-to-cart-button").First()
	if button.Length() > 0 {
		if _, disabled := button.Attr("disabled"); !disabled {
			return "add to cart"
		}
	}
	return ""
}

func (a *Amazon) extractDescription(doc *goquery.Document) string {
	desc := strings.TrimSpace(doc.Find("#productDescription p").First().Text())
	if len(desc) > 10 {
		return desc
	}

	var features []string
	doc.Find("#feature-bullets .a-list-item").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		text := strings.TrimSpace(sel.Text())
		if len(text) > 5 {
			features = append(features, text)
		}
		return len(features) < 5
	})
	if len(features) > 0 {
		return "Features: " + strings.Join(features, "; ")
	}
	return ""
}

func (a *Amazon) extractImage(doc *goquery.Document) string {
	for _, selector := range []string{"#landingImage", "#main-image", ".a-dynamic-image"} {
		sel := doc.Find(selector).First()
		if src, ok := sel.Attr("data-old-hires"); ok && strings.HasPrefix(src, "http") {
			return src
		}
		if src, ok := sel.Attr("src"); ok && strings.HasPrefix(src, "http") {
			return src
		}
	}
	return ""
}

var _ Extractor = (*Amazon)(nil)
