// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pdiddy/feasibility-engine/pkg/types"
)

// tavilyAPIBase is the Tavily search endpoint. Declared as a var so tests
// can substitute an httptest server.
var tavilyAPIBase = "https://api.tavily.com/search"

// TavilyProvider queries the Tavily search API (R2.1). The API key travels
// in the request body per Tavily's contract.
type TavilyProvider struct {
	Client *http.Client
	APIKey string
}

// Name returns the provider identifier.
func (p *TavilyProvider) Name() string { return "tavily" }

type tavilyRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search posts the query to Tavily and maps the response to raw results,
// stamping FetchedAt on arrival.
func (p *TavilyProvider) Search(ctx context.Context, query string, cfg types.SearchConfig) ([]types.RawSearchResult, error) {
	if strings.TrimSpace(p.APIKey) == "" {
		return nil, fmt.Errorf("tavily: API key is missing")
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	payload, err := json.Marshal(tavilyRequest{
		APIKey:      p.APIKey,
		Query:       query,
		MaxResults:  maxResults,
		SearchDepth: "basic",
	})
	if err != nil {
		return nil, fmt.Errorf("encoding tavily request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tavilyAPIBase, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.UserAgent != "" {
		req.Header.Set("User-Agent", cfg.UserAgent)
	}

	resp, err := p.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tavily API returned HTTP %d", resp.StatusCode)
	}

	var tr tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decoding tavily response: %w", err)
	}

	fetchedAt := time.Now().UTC()
	results := make([]types.RawSearchResult, 0, len(tr.Results))
	for _, r := range tr.Results {
		results = append(results, types.RawSearchResult{
			Title:     r.Title,
			URL:       r.URL,
			Snippet:   r.Content,
			FetchedAt: fetchedAt,
		})
		if len(results) >= maxResults {
			break
		}
	}
	return results, nil
}

func (p *TavilyProvider) httpClient() *http.Client {
	if p.Client != nil {
		return p.Client
	}
	return http.DefaultClient
}
