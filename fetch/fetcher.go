// Package fetch retrieves product pages under strict admission control:
// robots compliance, a global in-flight ceiling, per-domain concurrency
// and rate gates, and a short-TTL page cache keyed by normalized URL.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"pricewatch/cache"
	"pricewatch/whitelist"
)

// Failure causes.
const (
	CauseRobots    = "robots_disallowed"
	CauseTimeout   = "timeout"
	CauseStatus    = "bad_status"
	CauseTransport = "transport"
	CauseCancelled = "cancelled"
)

// Page is a fetched product page. It lives only as long as the page
// cache TTL.
type Page struct {
	URL         string    `json:"url"`
	Domain      string    `json:"domain"`
	StatusCode  int       `json:"status_code"`
	Body        []byte    `json:"body"`
	ContentType string    `json:"content_type"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Failure is a typed fetch failure local to one URL. It never aborts
// sibling fetches.
type Failure struct {
	URL   string
	Cause string
	Err   error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("fetch %s failed (%s): %v", f.URL, f.Cause, f.Err)
	}
	return fmt.Sprintf("fetch %s failed (%s)", f.URL, f.Cause)
}

func (f *Failure) Unwrap() error { return f.Err }

// Fetcher retrieves pages over HTTP, optionally rendering JS-heavy pages
// in a headless browser.
type Fetcher struct {
	client    *http.Client
	browser   *Browser
	limiter   *Limiter
	robots    *Robots
	cache     *cache.Tiered
	userAgent string
	timeout   time.Duration
	pageTTL   time.Duration
	logger    *zap.Logger
}

// NewFetcher creates a fetcher. browser may be nil to disable the
// rendered path.
func NewFetcher(
	client *http.Client,
	browser *Browser,
	limiter *Limiter,
	robots *Robots,
	tiered *cache.Tiered,
	userAgent string,
	timeout time.Duration,
	pageTTL time.Duration,
	logger *zap.Logger,
) *Fetcher {
	return &Fetcher{
		client:    client,
		browser:   browser,
		limiter:   limiter,
		robots:    robots,
		cache:     tiered,
		userAgent: userAgent,
		timeout:   timeout,
		pageTTL:   pageTTL,
		logger:    logger,
	}
}

// Fetch retrieves one URL. The page cache is consulted before any
// network access; robots policy and admission gates apply only to real
// fetches. All failures come back as *Failure.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	normalized := NormalizeURL(rawURL)
	key := cache.Key(cache.NamespacePage, normalized)

	if raw, err := f.cache.Get(ctx, key); err == nil {
		var page Page
		if err := json.Unmarshal(raw, &page); err == nil {
			f.logger.Debug("page cache hit", zap.String("url", normalized))
			return &page, nil
		}
	}

	if !f.robots.Allowed(ctx, rawURL) {
		f.logger.Info("robots policy disallows url", zap.String("url", rawURL))
		return nil, &Failure{URL: rawURL, Cause: CauseRobots}
	}

	release, err := f.limiter.Acquire(ctx, whitelist.NormalizeDomain(rawURL))
	if err != nil {
		return nil, &Failure{URL: rawURL, Cause: CauseCancelled, Err: err}
	}
	defer release()

	fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var page *Page
	if f.browser != nil {
		page, err = f.fetchWithBrowser(fetchCtx, rawURL)
	} else {
		page, err = f.fetchWithHTTP(fetchCtx, rawURL)
	}
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(page); err == nil {
		if err := f.cache.Set(ctx, key, raw, f.pageTTL); err != nil {
			f.logger.Debug("failed to cache page", zap.String("url", normalized), zap.Error(err))
		}
	}
	return page, nil
}

func (f *Fetcher) fetchWithHTTP(ctx context.Context, rawURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Failure{URL: rawURL, Cause: CauseTransport, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Failure{
			URL:   rawURL,
			Cause: CauseStatus,
			Err:   fmt.Errorf("status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, classifyTransportError(rawURL, err)
	}

	return &Page{
		URL:         rawURL,
		Domain:      whitelist.NormalizeDomain(rawURL),
		StatusCode:  resp.StatusCode,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		FetchedAt:   time.Now(),
	}, nil
}

func (f *Fetcher) fetchWithBrowser(ctx context.Context, rawURL string) (*Page, error) {
	html, err := f.browser.Render(ctx, rawURL)
	if err != nil {
		f.logger.Debug("browser fetch failed, falling back to http",
			zap.String("url", rawURL),
			zap.Error(err))
		return f.fetchWithHTTP(ctx, rawURL)
	}

	return &Page{
		URL:         rawURL,
		Domain:      whitelist.NormalizeDomain(rawURL),
		StatusCode:  http.StatusOK,
		Body:        []byte(html),
		ContentType: "text/html",
		FetchedAt:   time.Now(),
	}, nil
}

func classifyTransportError(rawURL string, err error) *Failure {
	cause := CauseTransport
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		cause = CauseTimeout
	case errors.Is(err, context.Canceled):
		cause = CauseCancelled
	}
	return &Failure{URL: rawURL, Cause: cause, Err: err}
}

// NormalizeURL produces the cache key form of a URL: lowercased host,
// no fragment, no trailing slash on the path.
func NormalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}
