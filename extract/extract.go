// Package extract turns fetched pages into raw product records through an
// ordered chain of rule extractors with a model-assisted fallback. A field
// an extractor cannot establish stays absent; nothing is ever filled in
// with a placeholder.
package extract

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"pricewatch/fetch"
)

// Extraction methods recorded on each Record.
const (
	MethodRule          = "rule"
	MethodModelFallback = "model-fallback"
)

// Record is a raw product record before normalization. Price and
// OriginalPrice are pointers: nil means the page did not state one.
type Record struct {
	Retailer      string
	Title         string
	URL           string
	Price         *float64
	Currency      string
	StockText     string
	ImageURL      string
	OriginalPrice *float64
	Description   string
	Method        string
}

// Complete reports whether the record carries the fields every result
// must have: a title, a positive price and a currency. A priced record
// with no currency is still a partial; the normalizer would drop it, so
// the chain keeps looking for a strategy that can ground the currency.
func (r *Record) Complete() bool {
	return r != nil && r.Title != "" && r.Price != nil && *r.Price > 0 && r.Currency != ""
}

// Failure is a typed extraction failure local to one page.
type Failure struct {
	URL    string
	Reason string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("extract %s failed: %s", f.URL, f.Reason)
}

// Extractor is one strategy in the chain.
type Extractor interface {
	Name() string
	CanHandle(page *fetch.Page) bool
	Extract(ctx context.Context, page *fetch.Page) (*Record, error)
}

// Chain tries rule extractors in priority order and falls back to the
// model extractor only when no rule yields a complete record.
type Chain struct {
	rules    []Extractor
	fallback Extractor
	logger   *zap.Logger
}

// NewChain builds the extraction chain. fallback may be nil when no
// model capability is configured.
func NewChain(rules []Extractor, fallback Extractor, logger *zap.Logger) *Chain {
	return &Chain{rules: rules, fallback: fallback, logger: logger}
}

// Run extracts a product record from page. A page that yields no price
// through any strategy is a Failure, never a zero-priced record.
func (c *Chain) Run(ctx context.Context, page *fetch.Page) (*Record, error) {
	var best *Record

	for _, ex := range c.rules {
		if !ex.CanHandle(page) {
			continue
		}
		rec, err := ex.Extract(ctx, page)
		if err != nil {
			c.logger.Debug("rule extractor failed",
				zap.String("extractor", ex.Name()),
				zap.String("url", page.URL),
				zap.Error(err))
			continue
		}
		if rec.Complete() {
			c.logger.Debug("rule extraction succeeded",
				zap.String("extractor", ex.Name()),
				zap.String("url", page.URL))
			return rec, nil
		}
		// Keep the most informative partial as a merge base.
		if best == nil || partialScore(rec) > partialScore(best) {
			best = rec
		}
	}

	if c.fallback != nil && c.fallback.CanHandle(page) {
		rec, err := c.fallback.Extract(ctx, page)
		if err != nil {
			c.logger.Debug("fallback extractor failed",
				zap.String("url", page.URL),
				zap.Error(err))
		} else {
			merged := merge(rec, best)
			if merged.Complete() {
				return merged, nil
			}
		}
	}

	return nil, &Failure{URL: page.URL, Reason: "no strategy produced a priced record"}
}

// merge fills gaps in the fallback record from the best rule partial.
// Only fields a rule extractor actually established are copied; the
// model's output never overrides grounded rule data.
func merge(model, rulePartial *Record) *Record {
	if model == nil {
		return rulePartial
	}
	if rulePartial == nil {
		return model
	}
	out := *model
	if rulePartial.Title != "" {
		out.Title = rulePartial.Title
	}
	if rulePartial.Price != nil {
		out.Price = rulePartial.Price
		if rulePartial.Currency != "" {
			out.Currency = rulePartial.Currency
		}
	}
	if out.StockText == "" {
		out.StockText = rulePartial.StockText
	}
	if out.ImageURL == "" {
		out.ImageURL = rulePartial.ImageURL
	}
	if out.Description == "" {
		out.Description = rulePartial.Description
	}
	return &out
}

func partialScore(r *Record) int {
	if r == nil {
		return -1
	}
	score := 0
	if r.Title != "" {
		score++
	}
	if r.Price != nil {
		score += 2
	}
	if r.Currency != "" {
		score++
	}
	if r.StockText != "" {
		score++
	}
	if r.ImageURL != "" {
		score++
	}
	if r.Description != "" {
		score++
	}
	return score
}
