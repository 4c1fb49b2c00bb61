package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SerpAPI is an Engine backed by serpapi.com's Google engine, restricted
// per request with a site: operator.
type SerpAPI struct {
	client *http.Client
	apiKey string
}

type serpAPIResponse struct {
	OrganicResults []struct {
		Position int    `json:"position"`
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
	} `json:"organic_results"`
	SearchMetadata struct {
		Status string `json:"status"`
	} `json:"search_metadata"`
}

// NewSerpAPI creates a SerpAPI engine.
func NewSerpAPI(apiKey string, timeout time.Duration) *SerpAPI {
	return &SerpAPI{
		client: &http.Client{Timeout: timeout},
		apiKey: apiKey,
	}
}

func (s *SerpAPI) Search(ctx context.Context, req *Request) ([]Result, error) {
	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", req.Query+" site:"+req.Domain)
	params.Set("api_key", s.apiKey)
	params.Set("num", strconv.Itoa(capResults(req.MaxResults)))
	if req.Locale != "" {
		params.Set("gl", strings.ToLower(req.Locale))
	}
	params.Set("hl", "en")

	apiURL := "https://serpapi.com/search?" + params.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serpapi returned status %d", resp.StatusCode)
	}

	var searchResp serpAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	results := make([]Result, 0, len(searchResp.OrganicResults))
	for _, item := range searchResp.OrganicResults {
		results = append(results, Result{
			URL:     item.Link,
			Title:   item.Title,
			Snippet: item.Snippet,
		})
	}
	return results, nil
}

func capResults(n int) int {
	if n <= 0 || n > 10 {
		return 10
	}
	return n
}

var _ Engine = (*SerpAPI)(nil)
