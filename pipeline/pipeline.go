// Package pipeline drives a query end to end: whitelist, search, fetch,
// extract, normalize. Each stage owns a shrinking working set; failures
// inside a stage shrink the set but never abort the query.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pricewatch/extract"
	"pricewatch/fetch"
	"pricewatch/normalize"
	"pricewatch/search"
	"pricewatch/whitelist"
)

// Query states, in order of progress.
const (
	StatePending        = "pending"
	StateWhitelistReady = "whitelist_ready"
	StateSearching      = "searching"
	StateFetching       = "fetching"
	StateExtracting     = "extracting"
	StateNormalizing    = "normalizing"
	StateDone           = "done"
	StateFailed         = "failed"
)

// ErrEmptyQuery rejects requests with no query text.
var ErrEmptyQuery = errors.New("query must not be empty")

// Options tune a single search request.
type Options struct {
	Locale            string
	MaxResults        int
	IncludeOutOfStock bool
}

// SearchResponse is the complete answer to one query.
type SearchResponse struct {
	QueryID          string                    `json:"query_id"`
	Query            string                    `json:"query"`
	Results          []normalize.ProductResult `json:"results"`
	TotalResults     int                       `json:"total_results"`
	ExecutionTime    float64                   `json:"execution_time"`
	ChannelsSearched []string                  `json:"channels_searched"`
	Partial          bool                      `json:"partial,omitempty"`
}

// Orchestrator wires the stages together.
type Orchestrator struct {
	whitelist         *whitelist.Generator
	search            *search.DomainSearch
	fetcher           *fetch.Fetcher
	chain             *extract.Chain
	normalizer        *normalize.Normalizer
	stats             *whitelist.DomainStats
	queryTimeout      time.Duration
	defaultMaxResults int
	fetchConcurrency  int
	logger            *zap.Logger
}

// NewOrchestrator creates the pipeline.
func NewOrchestrator(
	wl *whitelist.Generator,
	ds *search.DomainSearch,
	fetcher *fetch.Fetcher,
	chain *extract.Chain,
	normalizer *normalize.Normalizer,
	stats *whitelist.DomainStats,
	queryTimeout time.Duration,
	defaultMaxResults int,
	fetchConcurrency int,
	logger *zap.Logger,
) *Orchestrator {
	if fetchConcurrency < 1 {
		fetchConcurrency = 1
	}
	return &Orchestrator{
		whitelist:         wl,
		search:            ds,
		fetcher:           fetcher,
		chain:             chain,
		normalizer:        normalizer,
		stats:             stats,
		queryTimeout:      queryTimeout,
		defaultMaxResults: defaultMaxResults,
		fetchConcurrency:  fetchConcurrency,
		logger:            logger,
	}
}

// Search runs one query through every stage. The overall timeout bounds
// the whole pipeline; when it fires mid-flight the response carries
// whatever completed, marked partial. A working set exhausted mid-flight
// is not an error: the query advances straight to done with zero
// results. Only a query that cannot even produce a channel whitelist
// ends in the failed state, and even then the response is well-formed.
func (o *Orchestrator) Search(ctx context.Context, q string, opts Options) (*SearchResponse, error) {
	if q == "" {
		return nil, ErrEmptyQuery
	}
	if opts.Locale == "" {
		opts.Locale = "US"
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = o.defaultMaxResults
	}

	queryID := uuid.NewString()
	logger := o.logger.With(zap.String("query_id", queryID), zap.String("query", q))
	started := time.Now()

	ctx, cancel := context.WithTimeout(ctx, o.queryTimeout)
	defer cancel()

	st := newStateTracker(logger)

	resp := &SearchResponse{
		QueryID: queryID,
		Query:   q,
		Results: []normalize.ProductResult{},
	}
	finish := func(state string) *SearchResponse {
		st.advance(state)
		resp.TotalResults = len(resp.Results)
		resp.ExecutionTime = time.Since(started).Seconds()
		resp.Partial = errors.Is(ctx.Err(), context.DeadlineExceeded)
		return resp
	}

	wl := o.whitelist.Generate(ctx, q, opts.Locale)
	resp.ChannelsSearched = wl.Domains()
	if len(wl) == 0 {
		// No generated channels and no fallback list either: nothing
		// downstream can run. The response is still well-formed.
		logger.Warn("no channels available for query")
		return finish(StateFailed), nil
	}
	st.advance(StateWhitelistReady)

	st.advance(StateSearching)
	candidates := o.search.Run(ctx, q, opts.Locale, wl)
	if len(candidates) == 0 {
		return finish(StateDone), nil
	}

	st.advance(StateFetching)
	records := o.fetchAndExtract(ctx, candidates, st)
	if len(records) == 0 {
		return finish(StateDone), nil
	}

	st.advance(StateNormalizing)
	results := o.normalizer.Run(records, wl, opts.MaxResults)
	if !opts.IncludeOutOfStock {
		results = filterInStock(results)
	}
	resp.Results = results

	return finish(StateDone), nil
}

// fetchAndExtract runs the fetch and extract stages as one bounded
// fan-out: each candidate is fetched and extracted in the same worker so
// page bodies never pile up between stages. Per-domain outcomes feed the
// success stats that weight future whitelists.
func (o *Orchestrator) fetchAndExtract(ctx context.Context, candidates []search.Candidate, st *stateTracker) []*extract.Record {
	var (
		mu      sync.Mutex
		records []*extract.Record
	)

	extracting := sync.OnceFunc(func() { st.advance(StateExtracting) })

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.fetchConcurrency)

	for _, cand := range candidates {
		cand := cand
		g.Go(func() error {
			page, err := o.fetcher.Fetch(ctx, cand.URL)
			if err != nil {
				o.stats.RecordFailure(cand.Domain)
				o.logger.Debug("fetch failed",
					zap.String("url", cand.URL),
					zap.Error(err))
				return nil
			}

			extracting()
			rec, err := o.chain.Run(ctx, page)
			if err != nil {
				o.stats.RecordFailure(cand.Domain)
				o.logger.Debug("extraction failed",
					zap.String("url", cand.URL),
					zap.Error(err))
				return nil
			}

			o.stats.RecordSuccess(cand.Domain)
			mu.Lock()
			records = append(records, rec)
			mu.Unlock()
			return nil
		})
	}

	// Workers swallow their own failures; Wait only synchronizes.
	_ = g.Wait()
	return records
}

// ChannelInfo describes one eligible retailer channel for inspection.
type ChannelInfo struct {
	Domain             string  `json:"domain"`
	Name               string  `json:"name"`
	RelevanceScore     float64 `json:"relevance_score"`
	SearchResultsCount int     `json:"search_results_count"`
}

// Channels exposes the retailer channels for a query: the validated
// whitelist when a query is given, otherwise the static channel list.
// Result counts reflect usable records seen from each domain so far.
func (o *Orchestrator) Channels(ctx context.Context, q, locale string) []ChannelInfo {
	if locale == "" {
		locale = "US"
	}

	var wl whitelist.Whitelist
	if q == "" {
		wl = o.whitelist.FallbackFor(locale)
	} else {
		wl = o.whitelist.Generate(ctx, q, locale)
	}

	infos := make([]ChannelInfo, len(wl))
	for i, ch := range wl {
		infos[i] = ChannelInfo{
			Domain:             ch.Domain,
			Name:               normalize.PrettyRetailer(ch.Domain),
			RelevanceScore:     ch.Confidence,
			SearchResultsCount: o.stats.Successes(ch.Domain),
		}
	}
	return infos
}

// Healthy reports whether the pipeline can serve at least the static
// fallback whitelist.
func (o *Orchestrator) Healthy() bool {
	return o.whitelist.HasFallback()
}

func filterInStock(results []normalize.ProductResult) []normalize.ProductResult {
	kept := results[:0]
	for _, r := range results {
		if r.InStock != extract.StockOut {
			kept = append(kept, r)
		}
	}
	return kept
}

// stateTracker logs every state transition of one query.
type stateTracker struct {
	mu     sync.Mutex
	state  string
	logger *zap.Logger
}

func newStateTracker(logger *zap.Logger) *stateTracker {
	return &stateTracker{state: StatePending, logger: logger}
}

func (s *stateTracker) advance(next string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == next {
		return
	}
	s.logger.Debug("query state",
		zap.String("from", s.state),
		zap.String("to", next))
	s.state = next
}
