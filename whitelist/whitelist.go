// Package whitelist turns a product query into a ranked, validated list
// of retailer domains eligible for search and fetching.
package whitelist

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Channel labels, in rough order of trust.
const (
	LabelOfficial    = "official"
	LabelMarketplace = "marketplace"
	LabelBigBox      = "big_box"
	LabelVertical    = "vertical"
	LabelReseller    = "reseller"
	LabelUncertain   = "uncertain"
)

// Channel is a validated retailer domain candidate. Identity is the
// normalized domain; a Channel is immutable once validated.
type Channel struct {
	Domain     string  `json:"domain" yaml:"domain"`
	Label      string  `json:"label" yaml:"label"`
	Locale     string  `json:"locale" yaml:"locale"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	Reason     string  `json:"candidate_reason,omitempty" yaml:"reason,omitempty"`
}

// Whitelist is an ordered set of channels, sorted by combined score and
// capped at the configured maximum.
type Whitelist []Channel

// Domains returns the domain of every channel, in rank order.
func (w Whitelist) Domains() []string {
	domains := make([]string, len(w))
	for i, ch := range w {
		domains[i] = ch.Domain
	}
	return domains
}

// Contains reports whether the normalized domain is a member.
func (w Whitelist) Contains(domain string) bool {
	domain = NormalizeDomain(domain)
	for _, ch := range w {
		if ch.Domain == domain {
			return true
		}
	}
	return false
}

// Confidence returns the confidence of the named domain, or zero if it
// is not a member.
func (w Whitelist) Confidence(domain string) float64 {
	domain = NormalizeDomain(domain)
	for _, ch := range w {
		if ch.Domain == domain {
			return ch.Confidence
		}
	}
	return 0
}

// NormalizeDomain strips scheme, www prefix and path, lowercases, and
// reduces the host to its registrable domain (eTLD+1) where possible.
func NormalizeDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if strings.Contains(domain, "://") {
		if u, err := url.Parse(domain); err == nil && u.Host != "" {
			domain = u.Host
		}
	}
	if idx := strings.IndexAny(domain, "/?#"); idx >= 0 {
		domain = domain[:idx]
	}
	if idx := strings.Index(domain, ":"); idx >= 0 {
		domain = domain[:idx]
	}
	domain = strings.TrimPrefix(domain, "www.")

	if etld, err := publicsuffix.EffectiveTLDPlusOne(domain); err == nil {
		return etld
	}
	return domain
}
