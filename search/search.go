// Package search provides web search providers behind a small Provider
// interface. Tavily is the primary backend; Serper serves as an alternative
// for deployments without a Tavily key.
package search

import "context"

// Result is one web search hit.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Provider executes a single web search.
type Provider interface {
	// Name identifies the backend for logging.
	Name() string

	// Search returns up to maxResults hits for the query.
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}
