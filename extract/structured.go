package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"pricewatch/fetch"
)

// Structured extracts product records from schema.org JSON-LD blocks,
// the highest-trust source a page offers.
type Structured struct{}

// NewStructured creates the JSON-LD extractor.
func NewStructured() *Structured { return &Structured{} }

func (s *Structured) Name() string { return "structured" }

func (s *Structured) CanHandle(page *fetch.Page) bool {
	return bytes.Contains(page.Body, []byte("application/ld+json"))
}

func (s *Structured) Extract(ctx context.Context, page *fetch.Page) (*Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	var rec *Record
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		product := findProduct(sel.Text())
		if product == nil {
			return true
		}
		rec = productToRecord(product, page)
		return rec == nil
	})

	if rec == nil {
		return nil, &Failure{URL: page.URL, Reason: "no schema.org product block"}
	}
	return rec, nil
}

// findProduct digs a schema.org Product object out of a JSON-LD script,
// including @graph containers and top-level arrays.
func findProduct(raw string) map[string]any {
	var data any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil
	}
	return searchProduct(data)
}

func searchProduct(data any) map[string]any {
	switch v := data.(type) {
	case map[string]any:
		if isProductType(v["@type"]) {
			return v
		}
		if graph, ok := v["@graph"]; ok {
			return searchProduct(graph)
		}
	case []any:
		for _, item := range v {
			if p := searchProduct(item); p != nil {
				return p
			}
		}
	}
	return nil
}

func isProductType(t any) bool {
	switch v := t.(type) {
	case string:
		return strings.EqualFold(v, "Product")
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.EqualFold(s, "Product") {
				return true
			}
		}
	}
	return false
}

func productToRecord(product map[string]any, page *fetch.Page) *Record {
	rec := &Record{
		Retailer: page.Domain,
		URL:      page.URL,
		Title:    stringField(product, "name"),
		Method:   MethodRule,
	}
	rec.Description = stringField(product, "description")
	rec.ImageURL = imageField(product["image"])

	offer := firstOffer(product["offers"])
	if offer != nil {
		if price, ok := offerPrice(offer); ok {
			rec.Price = &price
		}
		rec.Currency = stringField(offer, "priceCurrency")
		rec.StockText = stringField(offer, "availability")
	}

	if rec.Title == "" && rec.Price == nil {
		return nil
	}
	return rec
}

func firstOffer(offers any) map[string]any {
	switch v := offers.(type) {
	case map[string]any:
		return v
	case []any:
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				return m
			}
		}
	}
	return nil
}

func offerPrice(offer map[string]any) (float64, bool) {
	for _, key := range []string{"price", "lowPrice"} {
		switch v := offer[key].(type) {
		case float64:
			if v > 0 {
				return v, true
			}
		case string:
			if price, ok := ParseNumber(v); ok {
				return price, true
			}
		}
	}
	return 0, false
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func imageField(image any) string {
	switch v := image.(type) {
	case string:
		return v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				return s
			}
		}
	case map[string]any:
		return stringField(v, "url")
	}
	return ""
}

var _ Extractor = (*Structured)(nil)
