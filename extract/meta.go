package extract

import (
	"bytes"
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"pricewatch/fetch"
)

// Meta extracts product records from OpenGraph and product meta tags,
// the page-metadata tier of the price strategy order.
type Meta struct{}

// NewMeta creates the meta-tag extractor.
func NewMeta() *Meta { return &Meta{} }

func (m *Meta) Name() string { return "meta" }

func (m *Meta) CanHandle(page *fetch.Page) bool {
	return bytes.Contains(page.Body, []byte("<meta"))
}

func (m *Meta) Extract(ctx context.Context, page *fetch.Page) (*Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	rec := &Record{
		Retailer: page.Domain,
		URL:      page.URL,
		Method:   MethodRule,
	}

	rec.Title = metaContent(doc,
		`meta[property="og:title"]`,
		`meta[name="twitter:title"]`)
	rec.ImageURL = metaContent(doc,
		`meta[property="og:image"]`,
		`meta[name="twitter:image"]`)
	rec.Description = metaContent(doc,
		`meta[property="og:description"]`,
		`meta[name="description"]`)

	priceText := metaContent(doc,
		`meta[property="product:price:amount"]`,
		`meta[property="og:price:amount"]`,
		`meta[itemprop="price"]`)
	if price, ok := ParseNumber(priceText); ok {
		rec.Price = &price
	}
	rec.Currency = metaContent(doc,
		`meta[property="product:price:currency"]`,
		`meta[property="og:price:currency"]`,
		`meta[itemprop="priceCurrency"]`)

	rec.StockText = metaContent(doc,
		`meta[property="product:availability"]`,
		`meta[property="og:availability"]`,
		`link[itemprop="availability"]`)

	if rec.Title == "" && rec.Price == nil {
		return nil, &Failure{URL: page.URL, Reason: "no product meta tags"}
	}
	return rec, nil
}

func metaContent(doc *goquery.Document, selectors ...string) string {
	for _, selector := range selectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		if content, ok := sel.Attr("content"); ok && content != "" {
			return content
		}
		if href, ok := sel.Attr("href"); ok && href != "" {
			return href
		}
	}
	return ""
}

var _ Extractor = (*Meta)(nil)
