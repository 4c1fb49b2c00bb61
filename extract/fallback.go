package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"pricewatch/fetch"
	"pricewatch/llm"
)

// maxFragmentChars bounds the markdown fragment handed to the model so
// prompts stay inside token limits.
const maxFragmentChars = 6000

const fallbackSystemPrompt = "You are a product data extraction specialist. " +
	"Extract product information from webpage content and return it as JSON."

// Selectors tried, in order, to find the product content fragment. The
// model never sees the full page.
var fragmentSelectors = []string{
	"main",
	`[role="main"]`,
	".product-content",
	".product-details",
	".product-info",
	"#content",
	"#main",
	".content",
}

// ModelFallback is the last-resort extractor: a schema-constrained model
// call over the page's main DOM fragment. Fields the model cannot ground
// in the fragment must come back null and stay absent in the record.
type ModelFallback struct {
	gen    llm.Generator
	logger *zap.Logger
}

// NewModelFallback creates the model-assisted extractor.
func NewModelFallback(gen llm.Generator, logger *zap.Logger) *ModelFallback {
	return &ModelFallback{gen: gen, logger: logger}
}

func (m *ModelFallback) Name() string { return "model_fallback" }

func (m *ModelFallback) CanHandle(page *fetch.Page) bool {
	return m.gen != nil && len(page.Body) > 0
}

func (m *ModelFallback) Extract(ctx context.Context, page *fetch.Page) (*Record, error) {
	fragment, err := m.selectFragment(page)
	if err != nil {
		return nil, err
	}

	raw, err := m.gen.GenerateJSON(ctx, fallbackSystemPrompt, buildExtractionPrompt(page.URL, fragment))
	if err != nil {
		return nil, fmt.Errorf("model extraction failed: %w", err)
	}

	return parseModelRecord(raw, page)
}

func (m *ModelFallback) selectFragment(page *fetch.Page) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return "", &Failure{URL: page.URL, Reason: "unparsable document"}
	}

	doc.Find("script, style, nav, footer, header, noscript, iframe").Remove()

	var sel *goquery.Selection
	for _, selector := range fragmentSelectors {
		found := doc.Find(selector).First()
		if found.Length() > 0 {
			sel = found
			break
		}
	}
	if sel == nil {
		sel = doc.Find("body").First()
	}
	if sel.Length() == 0 {
		return "", &Failure{URL: page.URL, Reason: "empty document"}
	}

	fragmentHTML, err := goquery.OuterHtml(sel)
	if err != nil {
		return "", &Failure{URL: page.URL, Reason: "fragment render failed"}
	}

	markdown, err := htmltomarkdown.ConvertString(fragmentHTML)
	if err != nil {
		// Plain text of the fragment still works as model input.
		markdown = sel.Text()
	}

	markdown = strings.TrimSpace(markdown)
	if len(markdown) > maxFragmentChars {
		// Back up to a rune boundary so the model never sees a torn
		// multi-byte sequence.
		cut := maxFragmentChars
		for cut > 0 && !utf8.RuneStart(markdown[cut]) {
			cut--
		}
		markdown = markdown[:cut]
	}
	if markdown == "" {
		return "", &Failure{URL: page.URL, Reason: "empty fragment"}
	}
	return markdown, nil
}

func buildExtractionPrompt(pageURL, fragment string) string {
	return fmt.Sprintf(`Extract product information from the following webpage content. Return ONLY a valid JSON object with the specified fields.

URL: %s

Content:
%s

Extract the following information and return as JSON:
{
  "product_title": "Full product name/title",
  "price": 0.00,
  "currency": "USD",
  "in_stock": "in_stock|out_of_stock|unknown",
  "original_price": 0.00,
  "availability_text": "Raw availability text found",
  "description": "Product description if available"
}

Rules:
- price: the main selling price as a number, no currency symbol
- currency: the currency code (USD, EUR, GBP, etc.)
- in_stock: determine from availability text
- original_price: only if there is a sale/discount
- availability_text: raw text about stock status
- description: brief product description if available
- Every field MUST come from the content above. If a field cannot be
  determined from the content, use null. Never invent a value.

Return ONLY the JSON object, no other text.`, pageURL, fragment)
}

type modelRecord struct {
	ProductTitle     *string  `json:"product_title"`
	Price            *float64 `json:"price"`
	Currency         *string  `json:"currency"`
	InStock          *string  `json:"in_stock"`
	OriginalPrice    *float64 `json:"original_price"`
	AvailabilityText *string  `json:"availability_text"`
	Description      *string  `json:"description"`
}

func parseModelRecord(raw json.RawMessage, page *fetch.Page) (*Record, error) {
	var mr modelRecord
	if err := json.Unmarshal(raw, &mr); err != nil {
		return nil, fmt.Errorf("model output schema mismatch: %w", err)
	}

	rec := &Record{
		Retailer: page.Domain,
		URL:      page.URL,
		Method:   MethodModelFallback,
	}
	if mr.ProductTitle != nil {
		rec.Title = strings.TrimSpace(*mr.ProductTitle)
	}
	if mr.Price != nil && *mr.Price > 0 {
		rec.Price = mr.Price
	}
	if mr.Currency != nil {
		rec.Currency = strings.ToUpper(strings.TrimSpace(*mr.Currency))
	}
	if mr.OriginalPrice != nil && *mr.OriginalPrice > 0 {
		rec.OriginalPrice = mr.OriginalPrice
	}
	if mr.AvailabilityText != nil {
		rec.StockText = strings.TrimSpace(*mr.AvailabilityText)
	} else if mr.InStock != nil {
		rec.StockText = *mr.InStock
	}
	if mr.Description != nil {
		rec.Description = strings.TrimSpace(*mr.Description)
	}

	if rec.Title == "" && rec.Price == nil {
		return nil, &Failure{URL: page.URL, Reason: "model grounded no fields"}
	}
	return rec, nil
}

var _ Extractor = (*ModelFallback)(nil)
