// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

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

	"github.com/pdiddy/feasibility-engine/pkg/types"
)

// braveAPIBase is the Brave web search endpoint. Declared as a var so
// tests can substitute an httptest server.
var braveAPIBase = "https://api.search.brave.com/res/v1/web/search"

// BraveProvider queries the Brave Search API (R2.2). Authentication is the
// X-Subscription-Token header.
type BraveProvider struct {
	Client *http.Client
	APIKey string
}

// Name returns the provider identifier.
func (p *BraveProvider) Name() string { return "brave" }

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// Search issues the query to Brave and maps the response to raw results,
// stamping FetchedAt on arrival.
func (p *BraveProvider) Search(ctx context.Context, query string, cfg types.SearchConfig) ([]types.RawSearchResult, error) {
	if strings.TrimSpace(p.APIKey) == "" {
		return nil, fmt.Errorf("brave: API key is missing")
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	params := url.Values{
		"q":     {query},
		"count": {strconv.Itoa(maxResults)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, braveAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", p.APIKey)
	if cfg.UserAgent != "" {
		req.Header.Set("User-Agent", cfg.UserAgent)
	}

	resp, err := p.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave API returned HTTP %d", resp.StatusCode)
	}

	var br braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return nil, fmt.Errorf("decoding brave response: %w", err)
	}

	fetchedAt := time.Now().UTC()
	results := make([]types.RawSearchResult, 0, len(br.Web.Results))
	for _, r := range br.Web.Results {
		results = append(results, types.RawSearchResult{
			Title:     r.Title,
			URL:       r.URL,
			Snippet:   r.Description,
			FetchedAt: fetchedAt,
		})
		if len(results) >= maxResults {
			break
		}
	}
	return results, nil
}

func (p *BraveProvider) httpClient() *http.Client {
	if p.Client != nil {
		return p.Client
	}
	return http.DefaultClient
}
