package whitelist

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"
	"github.com/kljensen/snowball"
	"go.uber.org/zap"

	"pricewatch/query"
)

// ProbeResult is the outcome of the landing-page probe for one domain.
type ProbeResult struct {
	Alive       bool
	LandingText string
}

// Commerce markers that mark a landing page as a shopping surface even
// when it never mentions the queried product line.
var commerceMarkers = []string{
	"cart", "checkout", "shop", "store", "buy", "basket",
	"free shipping", "add to",
}

// CategoryMatch reports whether the landing page looks topically
// consistent with the query: either a query token appears (stem-prefix
// match) or the page carries commerce markers.
func (r ProbeResult) CategoryMatch(q string) bool {
	text := strings.ToLower(r.LandingText)
	if text == "" {
		return false
	}

	for _, marker := range commerceMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}

	for _, token := range query.KeyTokens(q) {
		if tokenAppears(text, token) {
			return true
		}
	}
	return false
}

func tokenAppears(text, token string) bool {
	prefix := token
	if len(prefix) > 4 {
		prefix = prefix[:4]
	}
	if !strings.Contains(text, prefix) {
		return false
	}
	for _, word := range strings.Fields(text) {
		stem, err := snowball.Stem(word, "english", true)
		if err != nil {
			stem = word
		}
		if strings.HasPrefix(stem, prefix) {
			return true
		}
	}
	return false
}

// Prober performs the liveness and category-consistency sweep over
// candidate domains with a bounded-parallelism async collector.
type Prober struct {
	userAgent   string
	timeout     time.Duration
	parallelism int
	logger      *zap.Logger
}

// NewProber creates a landing-page prober.
func NewProber(userAgent string, timeout time.Duration, parallelism int, logger *zap.Logger) *Prober {
	return &Prober{
		userAgent:   userAgent,
		timeout:     timeout,
		parallelism: parallelism,
		logger:      logger,
	}
}

// Probe visits each domain's landing page once. A domain that cannot be
// reached within the timeout is reported dead; reachable domains carry
// their extracted landing text for the category check.
func (p *Prober) Probe(ctx context.Context, domains []string) map[string]ProbeResult {
	results := make(map[string]ProbeResult, len(domains))
	var mu sync.Mutex

	c := colly.NewCollector(
		colly.UserAgent(p.userAgent),
		colly.MaxDepth(1),
		colly.Async(true),
	)
	c.SetRequestTimeout(p.timeout)
	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: p.parallelism,
	})
	c.Context = ctx

	c.OnResponse(func(r *colly.Response) {
		domain := NormalizeDomain(r.Request.URL.Host)
		text := landingText(r.Body, r.Request.URL)

		mu.Lock()
		results[domain] = ProbeResult{Alive: true, LandingText: text}
		mu.Unlock()
	})

	c.OnError(func(r *colly.Response, err error) {
		if r == nil || r.Request == nil {
			return
		}
		p.logger.Debug("probe failed",
			zap.String("url", r.Request.URL.String()),
			zap.Error(err))
	})

	for _, domain := range domains {
		if err := c.Visit("https://" + domain + "/"); err != nil {
			p.logger.Debug("probe visit rejected",
				zap.String("domain", domain),
				zap.Error(err))
		}
	}
	c.Wait()

	return results
}

func landingText(body []byte, pageURL *url.URL) string {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		// Raw body still carries enough signal for marker matching.
		return string(body)
	}
	text := article.TextContent
	if text == "" {
		text = article.Title
	}
	return text
}
