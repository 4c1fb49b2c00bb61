// Package search issues domain-restricted product searches against an
// external search capability and filters the hits down to candidate
// product page URLs.
package search

import (
	"context"
	"errors"
)

// ErrRateLimited marks upstream throttling; the affected domain is
// skipped for this query rather than retried.
var ErrRateLimited = errors.New("search: rate limited")

// Request is a single domain-restricted search.
type Request struct {
	Query      string
	Domain     string
	Locale     string
	MaxResults int
}

// Result is one raw search hit before filtering.
type Result struct {
	URL     string
	Title   string
	Snippet string
}

// Engine is the external search capability, restricted per call to one
// domain.
type Engine interface {
	Search(ctx context.Context, req *Request) ([]Result, error)
}

// Candidate is a filtered product-page URL. Its domain is always a
// member of the whitelist the search ran against.
type Candidate struct {
	URL         string
	Domain      string
	SourceQuery string
	Title       string
	Snippet     string
}
