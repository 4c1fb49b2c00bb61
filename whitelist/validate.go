package whitelist

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Domains whose names carry these tokens are never retailers worth
// fetching; a match drops the candidate outright.
var negativeKeywords = []string{
	"forum", "wiki", "torrent", "blog", "news", "review",
	"reddit", "download", "coupon", "pinterest",
}

// categoryMismatchPenalty down-weights a live domain whose landing page
// shows no topical or commerce signal for the query.
const categoryMismatchPenalty = 0.5

// validate runs the candidate pipeline: domain normalization and dedup,
// negative-keyword filter, locale consistency, then the liveness and
// category-consistency probe. Each step drops or down-weights entries;
// none of them fails the whole set.
func (g *Generator) validate(ctx context.Context, channels Whitelist, q, locale string) Whitelist {
	validated := make(Whitelist, 0, len(channels))
	seen := make(map[string]bool)

	for _, ch := range channels {
		ch.Domain = NormalizeDomain(ch.Domain)
		if ch.Domain == "" || !strings.Contains(ch.Domain, ".") {
			continue
		}
		if seen[ch.Domain] {
			continue
		}
		if hasNegativeKeyword(ch.Domain) {
			g.logger.Debug("dropping candidate with negative keyword", zap.String("domain", ch.Domain))
			continue
		}
		if ch.Locale != "" && !strings.EqualFold(ch.Locale, locale) {
			g.logger.Debug("dropping candidate with locale mismatch",
				zap.String("domain", ch.Domain),
				zap.String("locale", ch.Locale))
			continue
		}
		if ch.Confidence < 0 {
			ch.Confidence = 0
		}
		if ch.Confidence > 1 {
			ch.Confidence = 1
		}
		if ch.Label == "" {
			ch.Label = LabelUncertain
		}

		seen[ch.Domain] = true
		validated = append(validated, ch)
	}

	if g.prober == nil || len(validated) == 0 {
		return validated
	}

	results := g.prober.Probe(ctx, domainsOf(validated))

	alive := make(Whitelist, 0, len(validated))
	for _, ch := range validated {
		probe, ok := results[ch.Domain]
		if !ok || !probe.Alive {
			g.logger.Debug("dropping unreachable candidate", zap.String("domain", ch.Domain))
			continue
		}
		if !probe.CategoryMatch(q) {
			ch.Confidence *= categoryMismatchPenalty
			g.logger.Debug("down-weighting off-category candidate",
				zap.String("domain", ch.Domain),
				zap.Float64("confidence", ch.Confidence))
		}
		alive = append(alive, ch)
	}
	return alive
}

func hasNegativeKeyword(domain string) bool {
	for _, kw := range negativeKeywords {
		if strings.Contains(domain, kw) {
			return true
		}
	}
	return false
}

func domainsOf(channels Whitelist) []string {
	domains := make([]string, len(channels))
	for i, ch := range channels {
		domains[i] = ch.Domain
	}
	return domains
}
