package whitelist

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"pricewatch/cache"
	"pricewatch/llm"
	"pricewatch/query"
)

const whitelistSystemPrompt = "You are an expert e-commerce analyst. " +
	"Generate a list of relevant e-commerce domains for product searches."

// Generator produces whitelists: cache first, then the model, then the
// static fallback list. Generate never returns an error; it always has
// at least the fallback channels to offer.
type Generator struct {
	gen         llm.Generator
	cache       *cache.Tiered
	prober      *Prober
	fallback    map[string]Whitelist
	stats       *DomainStats
	maxChannels int
	ttl         time.Duration
	logger      *zap.Logger
}

// NewGenerator creates a whitelist generator. gen may be nil when no
// model capability is configured.
func NewGenerator(
	gen llm.Generator,
	tiered *cache.Tiered,
	prober *Prober,
	fallback map[string]Whitelist,
	stats *DomainStats,
	maxChannels int,
	ttl time.Duration,
	logger *zap.Logger,
) *Generator {
	return &Generator{
		gen:         gen,
		cache:       tiered,
		prober:      prober,
		fallback:    fallback,
		stats:       stats,
		maxChannels: maxChannels,
		ttl:         ttl,
		logger:      logger,
	}
}

// Generate returns the whitelist for (query, locale). Cached whitelists
// are reused within the TTL window; otherwise the model is invoked once
// and its candidates are validated, scored, capped and cached.
func (g *Generator) Generate(ctx context.Context, q, locale string) Whitelist {
	if locale == "" {
		locale = "US"
	}
	key := cache.Key(cache.NamespaceWhitelist, query.Normalize(q), locale)

	if raw, err := g.cache.Get(ctx, key); err == nil {
		var cached Whitelist
		if err := json.Unmarshal(raw, &cached); err == nil && len(cached) > 0 {
			g.logger.Debug("whitelist cache hit", zap.String("query", q), zap.String("locale", locale))
			return cached
		}
	}

	channels := g.fromModel(ctx, q, locale)
	if len(channels) == 0 {
		g.logger.Info("using fallback channel list",
			zap.String("query", q),
			zap.String("locale", locale))
		return g.FallbackFor(locale)
	}

	channels = g.validate(ctx, channels, q, locale)
	if len(channels) == 0 {
		return g.FallbackFor(locale)
	}

	sortByScore(channels, g.stats)
	if len(channels) > g.maxChannels {
		channels = channels[:g.maxChannels]
	}

	if raw, err := json.Marshal(channels); err == nil {
		if err := g.cache.Set(ctx, key, raw, g.ttl); err != nil {
			g.logger.Warn("failed to cache whitelist", zap.Error(err))
		}
	}

	return channels
}

func (g *Generator) fromModel(ctx context.Context, q, locale string) Whitelist {
	if g.gen == nil {
		return nil
	}

	raw, err := g.gen.GenerateJSON(ctx, whitelistSystemPrompt, buildPrompt(q, locale, g.maxChannels))
	if err != nil {
		g.logger.Warn("whitelist model call failed",
			zap.String("query", q),
			zap.Error(err))
		return nil
	}

	channels, err := parseChannels(raw)
	if err != nil {
		g.logger.Warn("whitelist model output rejected", zap.Error(err))
		return nil
	}
	return channels
}

// FallbackFor returns the static channel list for locale, defaulting to
// the US list.
func (g *Generator) FallbackFor(locale string) Whitelist {
	if wl, ok := g.fallback[locale]; ok && len(wl) > 0 {
		return wl
	}
	return g.fallback["US"]
}

// HasFallback reports whether a static channel list is available. The
// pipeline is considered healthy only while this holds: it is the floor
// every degraded mode stands on.
func (g *Generator) HasFallback() bool {
	return len(g.fallback) > 0
}

func buildPrompt(q, locale string, maxChannels int) string {
	return fmt.Sprintf(`Generate a whitelist of %d most relevant e-commerce domains for searching: %q

Requirements:
- Focus on the %s market
- Include official stores, major retailers, and specialized platforms
- Exclude content sites, review sites, or C2C platforms
- Only return valid, existing domains
- Do not make up domains

Output format (JSON only):
{
  "channels": [
    {
      "domain": "example.com",
      "label": "official|marketplace|big_box|vertical|reseller",
      "locale": %q,
      "confidence": 0.95,
      "candidate_reason": "Official brand store"
    }
  ]
}

Labels:
- official: Brand's official store
- marketplace: Amazon, eBay (if relevant)
- big_box: Major retail chains (Best Buy, Walmart, Target)
- vertical: Category specialists (Newegg, B&H Photo)
- reseller: Authorized resellers

Keyword: %s
Locale: %s
Max channels: %d`, maxChannels, q, locale, locale, q, locale, maxChannels)
}

func parseChannels(raw json.RawMessage) (Whitelist, error) {
	var payload struct {
		Channels []Channel `json:"channels"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("invalid channel list: %w", err)
	}
	if len(payload.Channels) == 0 {
		return nil, fmt.Errorf("model returned no channels")
	}
	return payload.Channels, nil
}

// sortByScore orders channels by confidence weighted by the domain's
// historical success rate, with a diversity penalty that pushes repeated
// labels down so one channel type cannot crowd out the rest.
func sortByScore(channels Whitelist, stats *DomainStats) {
	labelSeen := make(map[string]int)
	scores := make(map[string]float64, len(channels))

	sort.SliceStable(channels, func(i, j int) bool {
		return channels[i].Confidence > channels[j].Confidence
	})

	for _, ch := range channels {
		score := ch.Confidence
		if stats != nil {
			score *= stats.SuccessRate(ch.Domain)
		}
		score *= 1.0 / float64(1+labelSeen[ch.Label])
		labelSeen[ch.Label]++
		scores[ch.Domain] = score
	}

	sort.SliceStable(channels, func(i, j int) bool {
		return scores[channels[i].Domain] > scores[channels[j].Domain]
	})
}
