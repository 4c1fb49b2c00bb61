package normalize

import "strings"

// Converter converts prices into the reporting currency through a static
// rate table keyed by currency code, expressed as units per USD.
type Converter struct {
	target string
	rates  map[string]float64
}

// NewConverter creates a Converter. Unknown target currencies fall back
// to USD so conversion stays well defined.
func NewConverter(target string, rates map[string]float64) *Converter {
	target = strings.ToUpper(strings.TrimSpace(target))
	if _, ok := rates[target]; !ok {
		target = "USD"
	}
	return &Converter{target: target, rates: rates}
}

// Target returns the reporting currency code.
func (c *Converter) Target() string { return c.target }

// Convert converts price from the given currency into the reporting
// currency. A currency missing from the rate table passes through
// unconverted, keeping its original code, so an unresolvable rate never
// silently distorts a price.
func (c *Converter) Convert(price float64, currency string) (float64, string) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == c.target {
		return price, c.target
	}
	rate, ok := c.rates[currency]
	if !ok || rate <= 0 {
		return price, currency
	}
	usd := price / rate
	return usd * c.rates[c.target], c.target
}
