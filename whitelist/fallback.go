package whitelist

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFallback reads the static channel list from a yaml file keyed by
// locale. A missing or unreadable file yields the built-in defaults, so
// the pipeline stays usable with zero external configuration.
func LoadFallback(path string) (map[string]Whitelist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultChannels(), fmt.Errorf("channels file unavailable, using defaults: %w", err)
	}

	var channels map[string]Whitelist
	if err := yaml.Unmarshal(data, &channels); err != nil {
		return DefaultChannels(), fmt.Errorf("channels file invalid, using defaults: %w", err)
	}
	if len(channels) == 0 {
		return DefaultChannels(), nil
	}

	for locale, wl := range channels {
		for i := range wl {
			wl[i].Domain = NormalizeDomain(wl[i].Domain)
			if wl[i].Locale == "" {
				wl[i].Locale = locale
			}
		}
	}
	return channels, nil
}

// DefaultChannels is the built-in curated channel list used when no
// channels file is configured.
func DefaultChannels() map[string]Whitelist {
	return map[string]Whitelist{
		"US": {
			{Domain: "amazon.com", Label: LabelMarketplace, Locale: "US", Confidence: 0.9},
			{Domain: "bestbuy.com", Label: LabelBigBox, Locale: "US", Confidence: 0.9},
			{Domain: "walmart.com", Label: LabelBigBox, Locale: "US", Confidence: 0.9},
			{Domain: "target.com", Label: LabelBigBox, Locale: "US", Confidence: 0.8},
			{Domain: "newegg.com", Label: LabelVertical, Locale: "US", Confidence: 0.9},
			{Domain: "bhphotovideo.com", Label: LabelVertical, Locale: "US", Confidence: 0.8},
		},
		"UK": {
			{Domain: "amazon.co.uk", Label: LabelMarketplace, Locale: "UK", Confidence: 0.9},
			{Domain: "currys.co.uk", Label: LabelBigBox, Locale: "UK", Confidence: 0.9},
			{Domain: "argos.co.uk", Label: LabelBigBox, Locale: "UK", Confidence: 0.8},
			{Domain: "johnlewis.com", Label: LabelBigBox, Locale: "UK", Confidence: 0.8},
		},
	}
}
