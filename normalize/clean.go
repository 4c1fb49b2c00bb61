package normalize

import (
	"regexp"
	"strings"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)

	// Retailer suffixes commonly appended to page titles.
	titleSuffixes = regexp.MustCompile(`(?i)\s*[\|\-–:]\s*(amazon\.com|amazon|best buy|walmart\.com|walmart|target|newegg\.com|newegg|b&h photo video|ebay)\s*$`)

	// Pretty names for retailers whose domain reads poorly.
	retailerNames = map[string]string{
		"amazon.com":       "Amazon",
		"amazon.co.uk":     "Amazon UK",
		"bestbuy.com":      "Best Buy",
		"walmart.com":      "Walmart",
		"target.com":       "Target",
		"newegg.com":       "Newegg",
		"bhphotovideo.com": "B&H Photo",
		"ebay.com":         "eBay",
		"currys.co.uk":     "Currys",
		"argos.co.uk":      "Argos",
		"johnlewis.com":    "John Lewis",
	}
)

// CleanText collapses whitespace runs and trims.
func CleanText(text string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}

// CleanTitle cleans a product title and strips a trailing retailer
// suffix, including the bare domain itself.
func CleanTitle(title, domain string) string {
	title = CleanText(title)
	title = titleSuffixes.ReplaceAllString(title, "")
	if domain != "" {
		for _, sep := range []string{" | ", " - ", " – ", ": "} {
			title = strings.TrimSuffix(title, sep+domain)
		}
	}
	return strings.TrimSpace(title)
}

// PrettyRetailer returns a display name for the normalized domain.
func PrettyRetailer(domain string) string {
	if name, ok := retailerNames[domain]; ok {
		return name
	}
	return domain
}

// EnsureHTTPS prefixes protocol-relative or schemeless URLs. Empty input
// stays empty.
func EnsureHTTPS(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	switch {
	case rawURL == "":
		return ""
	case strings.HasPrefix(rawURL, "//"):
		return "https:" + rawURL
	case strings.HasPrefix(rawURL, "http://"), strings.HasPrefix(rawURL, "https://"):
		return rawURL
	default:
		return "https://" + rawURL
	}
}
