// Package normalize turns raw extraction records into a clean, deduplicated,
// ranked result list in a single reporting currency.
package normalize

import (
	"time"

	"go.uber.org/zap"

	"pricewatch/extract"
	"pricewatch/whitelist"
)

// ProductResult is the final result shape returned by the API.
type ProductResult struct {
	Retailer         string    `json:"retailer"`
	ProductTitle     string    `json:"product_title"`
	URL              string    `json:"url"`
	Price            float64   `json:"price"`
	Currency         string    `json:"currency"`
	InStock          string    `json:"in_stock"`
	FetchedAt        time.Time `json:"fetched_at"`
	OriginalPrice    *float64  `json:"original_price,omitempty"`
	AvailabilityText string    `json:"availability_text,omitempty"`
	ImageURL         string    `json:"image_url,omitempty"`
	Description      string    `json:"description,omitempty"`

	// confidence is the whitelist confidence of the retailer's domain,
	// carried only for ranking.
	confidence float64
	// retailerDomain is the normalized source domain, carried for dedup
	// cluster identity.
	retailerDomain string
}

// Normalizer converts, cleans, deduplicates and ranks records.
type Normalizer struct {
	converter           *Converter
	similarityThreshold float64
	priceTolerance      float64
	logger              *zap.Logger
}

// New creates a Normalizer.
func New(converter *Converter, similarityThreshold, priceTolerance float64, logger *zap.Logger) *Normalizer {
	return &Normalizer{
		converter:           converter,
		similarityThreshold: similarityThreshold,
		priceTolerance:      priceTolerance,
		logger:              logger,
	}
}

// Run normalizes the records end to end. Records without both a price
// and a recognized currency are dropped, never defaulted. The result
// list is deduplicated, ranked and capped at maxResults; maxResults <= 0
// means no cap. Run is idempotent over its own output shape.
func (n *Normalizer) Run(records []*extract.Record, wl whitelist.Whitelist, maxResults int) []ProductResult {
	results := make([]ProductResult, 0, len(records))
	dropped := 0
	for _, rec := range records {
		res, ok := n.fromRecord(rec, wl)
		if !ok {
			dropped++
			continue
		}
		results = append(results, res)
	}
	if dropped > 0 {
		n.logger.Debug("dropped unpriced records", zap.Int("count", dropped))
	}

	results = n.dedupe(results)
	rank(results)

	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}
	return results
}

// fromRecord converts one extraction record. ok is false when the record
// cannot become a priced result.
func (n *Normalizer) fromRecord(rec *extract.Record, wl whitelist.Whitelist) (ProductResult, bool) {
	if rec == nil || rec.Price == nil || *rec.Price <= 0 {
		return ProductResult{}, false
	}
	if rec.Currency == "" {
		return ProductResult{}, false
	}

	domain := whitelist.NormalizeDomain(rec.Retailer)
	title := CleanTitle(rec.Title, domain)
	if title == "" {
		return ProductResult{}, false
	}

	price, currency := n.converter.Convert(*rec.Price, rec.Currency)

	res := ProductResult{
		Retailer:         PrettyRetailer(domain),
		ProductTitle:     title,
		URL:              EnsureHTTPS(rec.URL),
		Price:            round2(price),
		Currency:         currency,
		InStock:          extract.MapStockText(rec.StockText),
		FetchedAt:        time.Now().UTC(),
		AvailabilityText: CleanText(rec.StockText),
		ImageURL:         EnsureHTTPS(rec.ImageURL),
		Description:      CleanText(rec.Description),
		confidence:       wl.Confidence(domain),
		retailerDomain:   domain,
	}
	if rec.OriginalPrice != nil {
		original, _ := n.converter.Convert(*rec.OriginalPrice, rec.Currency)
		original = round2(original)
		// Compare in the reporting currency; a pre-conversion original
		// against a converted selling price is meaningless.
		if original > res.Price {
			res.OriginalPrice = &original
		}
	}
	return res, true
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
