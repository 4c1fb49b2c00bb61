package whitelist

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pricewatch/cache"
	"pricewatch/llm"
)

type fakeGenerator struct {
	calls    int
	response string
	err      error
}

func (f *fakeGenerator) GenerateJSON(ctx context.Context, system, prompt string) (json.RawMessage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.response), nil
}

func newTestCache(t *testing.T) *cache.Tiered {
	t.Helper()
	m := cache.NewMemory(time.Minute)
	t.Cleanup(func() { m.Close() })
	return cache.NewTiered(m, nil, zap.NewNop())
}

func newTestGenerator(gen llm.Generator, tiered *cache.Tiered) *Generator {
	return NewGenerator(gen, tiered, nil, DefaultChannels(), NewDomainStats(), 20, time.Hour, zap.NewNop())
}

func TestNormalizeDomain(t *testing.T) {
	assert.Equal(t, "amazon.com", NormalizeDomain("https://www.amazon.com/dp/B0ABC"))
	assert.Equal(t, "amazon.com", NormalizeDomain("WWW.AMAZON.COM"))
	assert.Equal(t, "amazon.co.uk", NormalizeDomain("www.amazon.co.uk/gp/product"))
	assert.Equal(t, "bestbuy.com", NormalizeDomain("shop.bestbuy.com:443/site/x"))
}

func TestWhitelistContains(t *testing.T) {
	wl := Whitelist{{Domain: "amazon.com", Confidence: 0.9}}

	assert.True(t, wl.Contains("https://www.amazon.com/dp/B0ABC"))
	assert.False(t, wl.Contains("https://walmart.com/ip/123"))
	assert.InDelta(t, 0.9, wl.Confidence("www.amazon.com"), 1e-9)
	assert.Zero(t, wl.Confidence("walmart.com"))
}

func TestGenerateUsesCacheOnSecondCall(t *testing.T) {
	fake := &fakeGenerator{response: `{"channels": [
		{"domain": "amazon.com", "label": "marketplace", "locale": "US", "confidence": 0.9},
		{"domain": "bestbuy.com", "label": "big_box", "locale": "US", "confidence": 0.8}
	]}`}
	g := newTestGenerator(fake, newTestCache(t))

	first := g.Generate(context.Background(), "iPhone 15 Pro", "US")
	second := g.Generate(context.Background(), "iphone 15 pro", "US")

	assert.Equal(t, 1, fake.calls, "normalized query variants must share one model call")
	assert.Equal(t, first.Domains(), second.Domains())
}

func TestGenerateFallsBackWithoutModel(t *testing.T) {
	g := newTestGenerator(nil, newTestCache(t))

	wl := g.Generate(context.Background(), "iPhone 15 Pro", "US")

	require.NotEmpty(t, wl, "degraded mode still yields channels")
	assert.Contains(t, wl.Domains(), "amazon.com")
}

func TestGenerateFallsBackOnModelError(t *testing.T) {
	fake := &fakeGenerator{err: llm.ErrMalformedOutput}
	g := newTestGenerator(fake, newTestCache(t))

	wl := g.Generate(context.Background(), "iPhone 15 Pro", "UK")

	require.NotEmpty(t, wl)
	assert.Contains(t, wl.Domains(), "amazon.co.uk")
}

func TestValidateDropsBadCandidates(t *testing.T) {
	g := newTestGenerator(nil, newTestCache(t))

	channels := Whitelist{
		{Domain: "amazon.com", Label: "marketplace", Locale: "US", Confidence: 0.9},
		{Domain: "techforum.com", Label: "vertical", Locale: "US", Confidence: 0.8},
		{Domain: "amazon.co.jp", Label: "marketplace", Locale: "JP", Confidence: 0.9},
		{Domain: "www.amazon.com", Label: "marketplace", Locale: "US", Confidence: 0.5},
		{Domain: "notadomain", Locale: "US", Confidence: 0.7},
		{Domain: "okstore.com", Locale: "US", Confidence: 1.7},
	}

	validated := g.validate(context.Background(), channels, "iphone", "US")

	domains := validated.Domains()
	assert.Contains(t, domains, "amazon.com")
	assert.Contains(t, domains, "okstore.com")
	assert.NotContains(t, domains, "techforum.com", "negative keyword")
	assert.NotContains(t, domains, "amazon.co.jp", "locale mismatch")
	assert.NotContains(t, domains, "notadomain")
	assert.Len(t, domains, 2, "www duplicate must collapse into amazon.com")

	for _, ch := range validated {
		assert.LessOrEqual(t, ch.Confidence, 1.0, "confidence must be clamped")
		if ch.Domain == "okstore.com" {
			assert.Equal(t, LabelUncertain, ch.Label)
		}
	}
}

func TestGenerateCapsChannels(t *testing.T) {
	fake := &fakeGenerator{response: `{"channels": [
		{"domain": "a-store.com", "label": "reseller", "locale": "US", "confidence": 0.9},
		{"domain": "b-store.com", "label": "reseller", "locale": "US", "confidence": 0.8},
		{"domain": "c-store.com", "label": "reseller", "locale": "US", "confidence": 0.7}
	]}`}
	tiered := newTestCache(t)
	g := NewGenerator(fake, tiered, nil, DefaultChannels(), NewDomainStats(), 2, time.Hour, zap.NewNop())

	wl := g.Generate(context.Background(), "ssd", "US")

	assert.Len(t, wl, 2)
}

func TestDomainStatsSuccessRate(t *testing.T) {
	stats := NewDomainStats()

	assert.InDelta(t, 1.0, stats.SuccessRate("fresh.com"), 1e-9, "unknown domains start neutral")

	stats.RecordSuccess("a.com")
	stats.RecordSuccess("a.com")
	stats.RecordFailure("a.com")
	stats.RecordFailure("a.com")

	assert.InDelta(t, 0.5, stats.SuccessRate("a.com"), 1e-9)
}

func TestSortByScoreLabelDiversity(t *testing.T) {
	channels := Whitelist{
		{Domain: "r1.com", Label: LabelReseller, Confidence: 0.9},
		{Domain: "r2.com", Label: LabelReseller, Confidence: 0.89},
		{Domain: "bigbox.com", Label: LabelBigBox, Confidence: 0.6},
	}

	sortByScore(channels, nil)

	// The second reseller is halved to 0.445, below the big box 0.6.
	assert.Equal(t, "r1.com", channels[0].Domain)
	assert.Equal(t, "bigbox.com", channels[1].Domain)
	assert.Equal(t, "r2.com", channels[2].Domain)
}

func TestLoadFallbackMissingFile(t *testing.T) {
	channels, err := LoadFallback("nonexistent/channels.yaml")

	assert.Error(t, err)
	require.NotEmpty(t, channels["US"], "defaults must still be usable")
}
