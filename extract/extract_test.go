package extract

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pricewatch/fetch"
)

func page(domain string, body string) *fetch.Page {
	return &fetch.Page{
		URL:         "https://www." + domain + "/product/1",
		Domain:      domain,
		StatusCode:  200,
		Body:        []byte(body),
		ContentType: "text/html",
		FetchedAt:   time.Now(),
	}
}

func TestParsePrice(t *testing.T) {
	cases := []struct {
		text string
		want float64
	}{
		{"$1,299.99", 1299.99},
		{"Price: $49", 49},
		{"€899.00", 899},
		{"1299.99 USD", 1299.99},
		{"only 25 dollars", 25},
		{"1299 $", 1299},
		// No thousands separator: the whole run of digits is the price.
		{"$1299.99", 1299.99},
		{"$1299", 1299},
		{"12999 USD", 12999},
	}
	for _, tc := range cases {
		price, ok := ParsePrice(tc.text)
		require.True(t, ok, "text: %q", tc.text)
		assert.InDelta(t, tc.want, price, 1e-9, "text: %q", tc.text)
	}

	for _, text := range []string{"", "call for price", "$0.00", "free shipping"} {
		_, ok := ParsePrice(text)
		assert.False(t, ok, "text: %q", text)
	}
}

func TestDetectCurrencyNeverDefaults(t *testing.T) {
	code, ok := DetectCurrency("$999")
	require.True(t, ok)
	assert.Equal(t, "USD", code)

	code, ok = DetectCurrency("£849.00")
	require.True(t, ok)
	assert.Equal(t, "GBP", code)

	_, ok = DetectCurrency("999.00")
	assert.False(t, ok, "a bare number carries no currency")
}

func TestMapStockText(t *testing.T) {
	assert.Equal(t, StockIn, MapStockText("In Stock"))
	assert.Equal(t, StockIn, MapStockText("Add to Cart"))
	assert.Equal(t, StockOut, MapStockText("Currently unavailable"))
	assert.Equal(t, StockOut, MapStockText("Sold Out"))
	assert.Equal(t, StockIn, MapStockText("https://schema.org/InStock"))
	assert.Equal(t, StockOut, MapStockText("http://schema.org/OutOfStock"))
	assert.Equal(t, StockUnknown, MapStockText("ships from warehouse 12"))
	assert.Equal(t, StockUnknown, MapStockText(""))
}

func TestStructuredExtract(t *testing.T) {
	body := `<html><head><script type="application/ld+json">
	{
	  "@context": "https://schema.org",
	  "@type": "Product",
	  "name": "Apple iPhone 15 Pro 256GB",
	  "image": ["https://img.example.com/iphone.jpg"],
	  "description": "Titanium design.",
	  "offers": {
	    "@type": "Offer",
	    "price": "999.00",
	    "priceCurrency": "USD",
	    "availability": "https://schema.org/InStock"
	  }
	}
	</script></head><body></body></html>`

	s := NewStructured()
	p := page("bestbuy.com", body)
	require.True(t, s.CanHandle(p))

	rec, err := s.Extract(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "Apple iPhone 15 Pro 256GB", rec.Title)
	require.NotNil(t, rec.Price)
	assert.InDelta(t, 999.0, *rec.Price, 1e-9)
	assert.Equal(t, "USD", rec.Currency)
	assert.Equal(t, StockIn, MapStockText(rec.StockText))
	assert.Equal(t, "https://img.example.com/iphone.jpg", rec.ImageURL)
}

func TestStructuredExtractGraph(t *testing.T) {
	body := `<html><head><script type="application/ld+json">
	{"@graph": [
	  {"@type": "WebSite", "name": "Store"},
	  {"@type": ["Product", "Thing"], "name": "SSD 1TB", "offers": [{"price": 89.99, "priceCurrency": "USD"}]}
	]}
	</script></head></html>`

	rec, err := NewStructured().Extract(context.Background(), page("newegg.com", body))
	require.NoError(t, err)
	assert.Equal(t, "SSD 1TB", rec.Title)
	require.NotNil(t, rec.Price)
	assert.InDelta(t, 89.99, *rec.Price, 1e-9)
}

func TestStructuredExtractNoProduct(t *testing.T) {
	body := `<html><head><script type="application/ld+json">
	{"@type": "BreadcrumbList"}
	</script></head></html>`

	_, err := NewStructured().Extract(context.Background(), page("bestbuy.com", body))
	var failure *Failure
	assert.ErrorAs(t, err, &failure)
}

func TestMetaExtract(t *testing.T) {
	body := `<html><head>
	<meta property="og:title" content="Sony WH-1000XM5 Headphones">
	<meta property="og:image" content="https://img.example.com/xm5.jpg">
	<meta property="product:price:amount" content="348.00">
	<meta property="product:price:currency" content="USD">
	<meta property="og:availability" content="instock">
	</head><body></body></html>`

	m := NewMeta()
	p := page("walmart.com", body)
	require.True(t, m.CanHandle(p))

	rec, err := m.Extract(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "Sony WH-1000XM5 Headphones", rec.Title)
	require.NotNil(t, rec.Price)
	assert.InDelta(t, 348.0, *rec.Price, 1e-9)
	assert.Equal(t, "USD", rec.Currency)
	assert.True(t, rec.Complete())
}

func TestAmazonExtract(t *testing.T) {
	body := `<html><head><title>Apple AirPods Pro : Amazon.com: Electronics</title></head><body>
	<span id="productTitle"> Apple AirPods Pro (2nd Generation) </span>
	<div class="a-price"><span class="a-offscreen">$199.99</span></div>
	<span class="a-text-strike">$249.00</span>
	<div id="availability"><span class="a-color-success">In Stock</span></div>
	<div id="feature-bullets">
	  <span class="a-list-item">Active Noise Cancellation</span>
	  <span class="a-list-item">Adaptive Transparency</span>
	</div>
	<img id="landingImage" src="https://img.example.com/airpods.jpg">
	</body></html>`

	a := NewAmazon()
	p := page("amazon.com", body)
	require.True(t, a.CanHandle(p))

	rec, err := a.Extract(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "Apple AirPods Pro (2nd Generation)", rec.Title)
	require.NotNil(t, rec.Price)
	assert.InDelta(t, 199.99, *rec.Price, 1e-9)
	assert.Equal(t, "USD", rec.Currency)
	require.NotNil(t, rec.OriginalPrice)
	assert.InDelta(t, 249.0, *rec.OriginalPrice, 1e-9)
	assert.Equal(t, "In Stock", rec.StockText)
	assert.Contains(t, rec.Description, "Active Noise Cancellation")
	assert.Equal(t, "https://img.example.com/airpods.jpg", rec.ImageURL)
}

func TestAmazonTitleFallback(t *testing.T) {
	body := `<html><head><title>Samsung 980 Pro 2TB SSD : Amazon.com</title></head><body></body></html>`

	rec, err := NewAmazon().Extract(context.Background(), page("amazon.com", body))
	require.NoError(t, err)
	assert.Equal(t, "Samsung 980 Pro 2TB SSD", rec.Title)
}

func TestSiteRulesExtract(t *testing.T) {
	body := `<html><body>
	<div class="sku-title"><h1>MacBook Air 13" M3</h1></div>
	<div class="priceView-customer-price"><span>$1,099.00</span></div>
	</body></html>`

	s := NewSiteRules(DefaultSiteRules())
	p := page("bestbuy.com", body)
	require.True(t, s.CanHandle(p))
	assert.False(t, s.CanHandle(page("example.com", body)))

	rec, err := s.Extract(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, `MacBook Air 13" M3`, rec.Title)
	require.NotNil(t, rec.Price)
	assert.InDelta(t, 1099.0, *rec.Price, 1e-9)
}

type fakeModel struct {
	response string
	err      error
	called   bool
	prompt   string
}

func (f *fakeModel) GenerateJSON(ctx context.Context, system, prompt string) (json.RawMessage, error) {
	f.called = true
	f.prompt = prompt
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.response), nil
}

func TestModelFallbackExtract(t *testing.T) {
	body := `<html><body><main>
	<h1>Dell XPS 13 Laptop</h1>
	<p>The price is $1,199.99 and it ships today.</p>
	</main></body></html>`

	model := &fakeModel{response: `{
		"product_title": "Dell XPS 13 Laptop",
		"price": 1199.99,
		"currency": "usd",
		"in_stock": "in_stock",
		"original_price": null,
		"availability_text": "ships today",
		"description": null
	}`}
	m := NewModelFallback(model, zap.NewNop())

	rec, err := m.Extract(context.Background(), page("dell.com", body))
	require.NoError(t, err)
	assert.Equal(t, "Dell XPS 13 Laptop", rec.Title)
	require.NotNil(t, rec.Price)
	assert.InDelta(t, 1199.99, *rec.Price, 1e-9)
	assert.Equal(t, "USD", rec.Currency)
	assert.Equal(t, "ships today", rec.StockText)
	assert.Nil(t, rec.OriginalPrice, "null fields must stay absent")
	assert.Empty(t, rec.Description)
	assert.Equal(t, MethodModelFallback, rec.Method)
}

func TestModelFallbackTruncatesAtRuneBoundary(t *testing.T) {
	// A fragment over the size cap made of multi-byte runes, offset by one
	// ASCII byte so the cap lands mid-rune.
	body := `<html><body><main><p>x` + strings.Repeat("é", 4000) + `</p></main></body></html>`

	model := &fakeModel{response: `{"product_title": "Gadget", "price": 5.0, "currency": "EUR"}`}
	m := NewModelFallback(model, zap.NewNop())

	_, err := m.Extract(context.Background(), page("example.com", body))
	require.NoError(t, err)
	require.True(t, model.called)
	assert.True(t, utf8.ValidString(model.prompt), "truncation must not tear a rune")
}

func TestModelFallbackAllNull(t *testing.T) {
	model := &fakeModel{response: `{
		"product_title": null, "price": null, "currency": null,
		"in_stock": null, "original_price": null,
		"availability_text": null, "description": null
	}`}
	m := NewModelFallback(model, zap.NewNop())

	_, err := m.Extract(context.Background(), page("dell.com", "<html><body><main>nothing</main></body></html>"))
	var failure *Failure
	assert.ErrorAs(t, err, &failure)
}

func TestChainPrefersRules(t *testing.T) {
	body := `<html><head><script type="application/ld+json">
	{"@type": "Product", "name": "Widget", "offers": {"price": "19.99", "priceCurrency": "USD"}}
	</script></head></html>`

	model := &fakeModel{response: `{"product_title": "Wrong", "price": 1.0, "currency": "USD"}`}
	chain := NewChain(
		[]Extractor{NewStructured(), NewMeta(), NewHeuristic()},
		NewModelFallback(model, zap.NewNop()),
		zap.NewNop(),
	)

	rec, err := chain.Run(context.Background(), page("example.com", body))
	require.NoError(t, err)
	assert.Equal(t, "Widget", rec.Title)
	assert.False(t, model.called, "a complete rule record must short-circuit the model")
}

func TestChainFallsBackToModel(t *testing.T) {
	// Title-only page: no rule can establish a price.
	body := `<html><head>
	<meta property="og:title" content="Obscure Gadget">
	</head><body><main><p>Gadget costs forty dollars here.</p></main></body></html>`

	model := &fakeModel{response: `{"product_title": "Obscure Gadget", "price": 40.0, "currency": "USD"}`}
	chain := NewChain(
		[]Extractor{NewStructured(), NewMeta()},
		NewModelFallback(model, zap.NewNop()),
		zap.NewNop(),
	)

	rec, err := chain.Run(context.Background(), page("example.com", body))
	require.NoError(t, err)
	assert.True(t, model.called)
	assert.Equal(t, "Obscure Gadget", rec.Title)
	require.NotNil(t, rec.Price)
	assert.InDelta(t, 40.0, *rec.Price, 1e-9)
}

func TestChainModelSuppliesCurrency(t *testing.T) {
	// JSON-LD with a price but no priceCurrency: the rule record is a
	// partial, so the chain must still consult the model to ground the
	// currency instead of emitting a record the normalizer would drop.
	body := `<html><head><script type="application/ld+json">
	{"@type": "Product", "name": "Graphics Tablet", "offers": {"price": "59.99"}}
	</script></head><body><main><p>Graphics Tablet, $59.99</p></main></body></html>`

	model := &fakeModel{response: `{"product_title": "Graphics Tablet", "price": 60.0, "currency": "USD"}`}
	chain := NewChain(
		[]Extractor{NewStructured()},
		NewModelFallback(model, zap.NewNop()),
		zap.NewNop(),
	)

	rec, err := chain.Run(context.Background(), page("example.com", body))
	require.NoError(t, err)
	assert.True(t, model.called, "a priced record without a currency is not complete")
	assert.Equal(t, "USD", rec.Currency)
	require.NotNil(t, rec.Price)
	assert.InDelta(t, 59.99, *rec.Price, 1e-9, "the rule price outranks the model price")
	assert.True(t, rec.Complete())
}

func TestChainNoPriceIsFailure(t *testing.T) {
	body := `<html><head><meta property="og:title" content="Mystery Item"></head><body></body></html>`

	chain := NewChain([]Extractor{NewMeta()}, nil, zap.NewNop())

	_, err := chain.Run(context.Background(), page("example.com", body))
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.True(t, errors.As(err, &failure))
}
