package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const tavilyEndpoint = "https://api.tavily.com/search"

// Tavily calls the Tavily search API.
type Tavily struct {
	apiKey   string
	endpoint string
	client   *http.Client
	// depth controls Tavily's search_depth parameter (basic or advanced).
	depth string
}

// TavilyOption customizes the Tavily provider.
type TavilyOption func(*Tavily)

// WithTavilyDepth sets the search depth (basic or advanced).
func WithTavilyDepth(depth string) TavilyOption {
	return func(t *Tavily) { t.depth = depth }
}

// WithTavilyHTTPClient overrides the HTTP client, mainly for timeouts.
func WithTavilyHTTPClient(c *http.Client) TavilyOption {
	return func(t *Tavily) { t.client = c }
}

// WithTavilyEndpoint overrides the API URL. Tests point this at a local
// server.
func WithTavilyEndpoint(url string) TavilyOption {
	return func(t *Tavily) { t.endpoint = url }
}

// NewTavily constructs a Tavily search provider.
func NewTavily(apiKey string, opts ...TavilyOption) *Tavily {
	t := &Tavily{
		apiKey:   apiKey,
		endpoint: tavilyEndpoint,
		depth:    "basic",
		client:   &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name implements Provider.
func (t *Tavily) Name() string { return "tavily" }

// Search implements Provider. On HTTP 429 it backs off and retries, doubling
// the delay up to 30s, until the context expires.
func (t *Tavily) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if strings.TrimSpace(t.apiKey) == "" {
		return nil, errors.New("tavily: API key is missing")
	}
	if maxResults <= 0 {
		maxResults = 5
	}

	payload, err := json.Marshal(map[string]any{
		"query":        query,
		"api_key":      t.apiKey,
		"search_depth": t.depth,
		"max_results":  maxResults,
	})
	if err != nil {
		return nil, err
	}

	var resp *http.Response
	delay := 1 * time.Second
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err = t.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			break
		}
		resp.Body.Close()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if delay < 30*time.Second {
			delay *= 2
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tavily http %d", resp.StatusCode)
	}

	var response struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(response.Results))
	for _, r := range response.Results {
		results = append(results, Result{Title: r.Title, URL: r.URL, Snippet: r.Content})
		if len(results) >= maxResults {
			break
		}
	}
	return results, nil
}
