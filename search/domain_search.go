package search

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pricewatch/whitelist"
)

// DomainSearch fans a query out across the whitelisted domains with
// bounded concurrency. A failing or throttled domain contributes nothing;
// it never aborts the stage.
type DomainSearch struct {
	engine       Engine
	concurrency  int
	maxPerDomain int
	logger       *zap.Logger
}

// NewDomainSearch creates the search stage. engine may be nil when no
// search capability is configured; Run then returns zero candidates.
func NewDomainSearch(engine Engine, concurrency, maxPerDomain int, logger *zap.Logger) *DomainSearch {
	if concurrency < 1 {
		concurrency = 1
	}
	return &DomainSearch{
		engine:       engine,
		concurrency:  concurrency,
		maxPerDomain: maxPerDomain,
		logger:       logger,
	}
}

// Run searches every whitelisted domain and returns the filtered
// candidate URLs. Results whose domain falls outside the whitelist are
// discarded: the whitelist is a closed world.
func (d *DomainSearch) Run(ctx context.Context, q, locale string, wl whitelist.Whitelist) []Candidate {
	if d.engine == nil || len(wl) == 0 {
		return nil
	}

	var (
		mu         sync.Mutex
		candidates []Candidate
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for _, ch := range wl {
		domain := ch.Domain
		g.Go(func() error {
			results, err := d.engine.Search(ctx, &Request{
				Query:      q,
				Domain:     domain,
				Locale:     locale,
				MaxResults: d.maxPerDomain,
			})
			if err != nil {
				if errors.Is(err, ErrRateLimited) {
					d.logger.Warn("search rate limited, skipping domain", zap.String("domain", domain))
				} else {
					d.logger.Warn("domain search failed",
						zap.String("domain", domain),
						zap.Error(err))
				}
				return nil
			}

			kept := filterResults(results, q, domain, wl)
			if len(kept) == 0 {
				return nil
			}

			mu.Lock()
			candidates = append(candidates, kept...)
			mu.Unlock()
			return nil
		})
	}

	// Workers swallow their own errors; Wait only synchronizes.
	_ = g.Wait()

	d.logger.Info("domain search complete",
		zap.String("query", q),
		zap.Int("domains", len(wl)),
		zap.Int("candidates", len(candidates)))

	return candidates
}

func filterResults(results []Result, q, domain string, wl whitelist.Whitelist) []Candidate {
	var kept []Candidate
	for _, r := range results {
		if r.URL == "" {
			continue
		}
		resultDomain := whitelist.NormalizeDomain(r.URL)
		if !wl.Contains(resultDomain) {
			continue
		}
		if !isProductPage(r.URL, r.Title) {
			continue
		}
		if !matchesQuery(r.URL, r.Title, q) {
			continue
		}
		kept = append(kept, Candidate{
			URL:         r.URL,
			Domain:      resultDomain,
			SourceQuery: q,
			Title:       r.Title,
			Snippet:     r.Snippet,
		})
	}
	return kept
}
