package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const serperEndpoint = "https://google.serper.dev/search"

// Serper calls the serper.dev Google search API.
type Serper struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// SerperOption customizes the Serper provider.
type SerperOption func(*Serper)

// WithSerperHTTPClient overrides the HTTP client.
func WithSerperHTTPClient(c *http.Client) SerperOption {
	return func(s *Serper) { s.client = c }
}

// WithSerperEndpoint overrides the API URL for tests.
func WithSerperEndpoint(url string) SerperOption {
	return func(s *Serper) { s.endpoint = url }
}

// NewSerper constructs a Serper search provider.
func NewSerper(apiKey string, opts ...SerperOption) *Serper {
	s := &Serper{
		apiKey:   apiKey,
		endpoint: serperEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Provider.
func (s *Serper) Name() string { return "serper" }

// Search implements Provider.
func (s *Serper) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if strings.TrimSpace(s.apiKey) == "" {
		return nil, errors.New("serper: API key is missing")
	}
	if maxResults <= 0 {
		maxResults = 5
	}

	payload, err := json.Marshal(map[string]any{"q": query, "num": maxResults})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serper http %d", resp.StatusCode)
	}

	var raw struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(raw.Organic))
	for _, r := range raw.Organic {
		results = append(results, Result{Title: r.Title, URL: r.Link, Snippet: r.Snippet})
		if len(results) >= maxResults {
			break
		}
	}
	return results, nil
}
