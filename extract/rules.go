package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"pricewatch/fetch"
)

// SiteRule is a selector table for one retailer's page structure.
type SiteRule struct {
	DomainSuffix    string
	TitleSelectors  []string
	PriceSelectors  []string
	StrikeSelectors []string
	StockSelectors  []string
	ImageSelectors  []string
}

// DefaultSiteRules covers the retailers the default channel list leans
// on. Selector tables go stale; the meta and fallback extractors pick up
// the slack when they do.
func DefaultSiteRules() []SiteRule {
	return []SiteRule{
		{
			DomainSuffix:    "bestbuy.com",
			TitleSelectors:  []string{".sku-title h1", "h1.heading-5"},
			PriceSelectors:  []string{".priceView-customer-price span", ".priceView-hero-price span"},
			StrikeSelectors: []string{".pricing-price__regular-price"},
			StockSelectors:  []string{".fulfillment-add-to-cart-button button", ".add-to-cart-button"},
			ImageSelectors:  []string{".primary-image"},
		},
		{
			DomainSuffix:    "walmart.com",
			TitleSelectors:  []string{`h1[itemprop="name"]`, "h1.prod-ProductTitle"},
			PriceSelectors:  []string{`span[itemprop="price"]`, `span[data-automation-id="product-price"]`},
			StrikeSelectors: []string{".was-price"},
			StockSelectors:  []string{`div[data-automation-id="fulfillment-section"]`},
			ImageSelectors:  []string{`img[data-testid="hero-image"]`},
		},
		{
			DomainSuffix:    "newegg.com",
			TitleSelectors:  []string{"h1.product-title"},
			PriceSelectors:  []string{".price-current"},
			StrikeSelectors: []string{".price-was"},
			StockSelectors:  []string{".product-inventory"},
			ImageSelectors:  []string{".product-view-img-original"},
		},
		{
			DomainSuffix:    "target.com",
			TitleSelectors:  []string{`h1[data-test="product-title"]`},
			PriceSelectors:  []string{`span[data-test="product-price"]`},
			StrikeSelectors: []string{`span[data-test="product-regular-price"]`},
			StockSelectors:  []string{`div[data-test="fulfillment"]`},
			ImageSelectors:  []string{`div[data-test="image-gallery-item-0"] img`},
		},
	}
}

// SiteRules applies the selector table matching the page's domain.
type SiteRules struct {
	rules []SiteRule
}

// NewSiteRules creates the table-driven extractor.
func NewSiteRules(rules []SiteRule) *SiteRules {
	return &SiteRules{rules: rules}
}

func (s *SiteRules) Name() string { return "site_rules" }

func (s *SiteRules) CanHandle(page *fetch.Page) bool {
	return s.ruleFor(page.Domain) != nil
}

func (s *SiteRules) ruleFor(domain string) *SiteRule {
	for i := range s.rules {
		if strings.HasSuffix(domain, s.rules[i].DomainSuffix) {
			return &s.rules[i]
		}
	}
	return nil
}

func (s *SiteRules) Extract(ctx context.Context, page *fetch.Page) (*Record, error) {
	rule := s.ruleFor(page.Domain)
	if rule == nil {
		return nil, &Failure{URL: page.URL, Reason: "no site rule"}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	rec := &Record{
		Retailer: page.Domain,
		URL:      page.URL,
		Method:   MethodRule,
	}

	rec.Title = firstText(doc, rule.TitleSelectors)
	if priceText := firstText(doc, rule.PriceSelectors); priceText != "" {
		if price, ok := ParsePrice(priceText); ok {
			rec.Price = &price
			rec.Currency, _ = DetectCurrency(priceText)
		}
	}
	if strikeText := firstText(doc, rule.StrikeSelectors); strikeText != "" {
		if original, ok := ParsePrice(strikeText); ok {
			rec.OriginalPrice = &original
		}
	}
	rec.StockText = firstText(doc, rule.StockSelectors)
	rec.ImageURL = firstAttr(doc, rule.ImageSelectors, "src")

	if rec.Title == "" && rec.Price == nil {
		return nil, &Failure{URL: page.URL, Reason: "selectors matched nothing"}
	}
	return rec, nil
}

func firstText(doc *goquery.Document, selectors []string) string {
	for _, selector := range selectors {
		text := strings.TrimSpace(doc.Find(selector).First().Text())
		if text != "" {
			return text
		}
	}
	return ""
}

func firstAttr(doc *goquery.Document, selectors []string, attr string) string {
	for _, selector := range selectors {
		if value, ok := doc.Find(selector).First().Attr(attr); ok && value != "" {
			return value
		}
	}
	return ""
}

var _ Extractor = (*SiteRules)(nil)
