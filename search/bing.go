package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Bing is an Engine backed by the Bing Web Search API.
type Bing struct {
	client    *http.Client
	apiKey    string
	userAgent string
}

type bingResponse struct {
	WebPages struct {
		Value []struct {
			Name    string `json:"name"`
			URL     string `json:"url"`
			Snippet string `json:"snippet"`
		} `json:"value"`
	} `json:"webPages"`
}

// NewBing creates a Bing search engine.
func NewBing(apiKey, userAgent string, timeout time.Duration) *Bing {
	return &Bing{
		client:    &http.Client{Timeout: timeout},
		apiKey:    apiKey,
		userAgent: userAgent,
	}
}

func (b *Bing) Search(ctx context.Context, req *Request) ([]Result, error) {
	params := url.Values{}
	params.Set("q", req.Query+" site:"+req.Domain)
	params.Set("count", strconv.Itoa(capResults(req.MaxResults)))
	if req.Locale != "" {
		params.Set("mkt", "en-"+req.Locale)
	}
	params.Set("responseFilter", "Webpages")

	apiURL := "https://api.bing.microsoft.com/v7.0/search?" + params.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", b.apiKey)
	httpReq.Header.Set("User-Agent", b.userAgent)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bing returned status %d", resp.StatusCode)
	}

	var searchResp bingResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	results := make([]Result, 0, len(searchResp.WebPages.Value))
	for _, page := range searchResp.WebPages.Value {
		results = append(results, Result{
			URL:     page.URL,
			Title:   page.Name,
			Snippet: page.Snippet,
		})
	}
	return results, nil
}

var _ Engine = (*Bing)(nil)
