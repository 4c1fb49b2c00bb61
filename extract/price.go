package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// Price patterns, tried in order. Group 1 is always the numeric part.
var pricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`[$€£¥₹]\s*(\d+(?:,\d{3})*(?:\.\d{1,2})?)`),
	regexp.MustCompile(`(?i)(\d+(?:,\d{3})*(?:\.\d{1,2})?)\s*(?:USD|EUR|GBP|JPY|CAD|AUD|INR)`),
	regexp.MustCompile(`(?i)(\d+(?:,\d{3})*(?:\.\d{1,2})?)\s*dollars`),
	regexp.MustCompile(`(\d+(?:,\d{3})*(?:\.\d{1,2})?)\s*[$€£]`),
}

var currencyPatterns = []struct {
	re   *regexp.Regexp
	code string
}{
	{regexp.MustCompile(`(?i)\bUSD\b|US\$|\$`), "USD"},
	{regexp.MustCompile(`(?i)\bEUR\b|€`), "EUR"},
	{regexp.MustCompile(`(?i)\bGBP\b|£`), "GBP"},
	{regexp.MustCompile(`(?i)\bJPY\b|¥`), "JPY"},
	{regexp.MustCompile(`(?i)\bCAD\b`), "CAD"},
	{regexp.MustCompile(`(?i)\bAUD\b`), "AUD"},
	{regexp.MustCompile(`(?i)\bINR\b|₹`), "INR"},
}

// ParsePrice extracts the first parsable positive price from text.
func ParsePrice(text string) (float64, bool) {
	if text == "" {
		return 0, false
	}
	for _, pattern := range pricePatterns {
		match := pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		raw := strings.ReplaceAll(match[1], ",", "")
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil || price <= 0 {
			continue
		}
		return price, true
	}
	return 0, false
}

// ParseNumber parses a bare numeric price string such as a JSON-LD
// offer price.
func ParseNumber(text string) (float64, bool) {
	raw := strings.TrimSpace(strings.ReplaceAll(text, ",", ""))
	raw = strings.TrimLeft(raw, "$€£¥₹ ")
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil || price <= 0 {
		return 0, false
	}
	return price, true
}

// DetectCurrency returns the ISO code implied by the text, or false when
// no currency marker appears. Absence is reported, never defaulted.
func DetectCurrency(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	for _, cp := range currencyPatterns {
		if cp.re.MatchString(text) {
			return cp.code, true
		}
	}
	return "", false
}
