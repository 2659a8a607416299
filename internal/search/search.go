// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search turns research queries into raw web results through
// pluggable providers. Implements: prd003-search (R1-R4);
//
//	docs/ARCHITECTURE § Search Client.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pdiddy/feasibility-engine/pkg/types"
)

// ErrUnavailable marks a query no provider could serve: the attempt and its
// single retry both failed. Callers treat it as zero results for the
// iteration, never as a run-fatal error (R3.3).
var ErrUnavailable = errors.New("search provider unavailable")

// retryBase is the wait before the single retry. Tests override this to
// avoid real sleeps.
var retryBase = 2 * time.Second

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxResults = 5
)

// Provider is a search backend. Each provider (Tavily, Brave) implements
// this interface per the Strategy pattern (R1.1). Implementations must
// honor ctx and return results in the provider's ranking order.
type Provider interface {
	// Name identifies the provider in logs and error messages.
	Name() string

	// Search runs one query and returns raw results, at most
	// cfg.MaxResults of them.
	Search(ctx context.Context, query string, cfg types.SearchConfig) ([]types.RawSearchResult, error)
}

// Client wraps a Provider with the engine's fetch policy: a per-attempt
// timeout and at most one retry with backoff (R3.1-R3.3). An empty result
// set is a valid answer, not an error.
type Client struct {
	provider Provider
	cfg      types.SearchConfig
	log      *slog.Logger
}

// NewClient builds a Client, filling config defaults (30 s timeout, 5
// results). A nil logger falls back to slog.Default().
func NewClient(provider Provider, cfg types.SearchConfig, log *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{provider: provider, cfg: cfg, log: log}
}

// Search resolves one query against the provider. The first failure is
// retried once after a backoff wait; a second failure wraps ErrUnavailable
// so callers can branch with errors.Is. The parent ctx caps the whole
// exchange, each attempt additionally by cfg.Timeout.
func (c *Client) Search(ctx context.Context, query string) ([]types.RawSearchResult, error) {
	results, err := c.attempt(ctx, query)
	if err == nil {
		return results, nil
	}

	c.log.Warn("search attempt failed, retrying once",
		"provider", c.provider.Name(), "query", query, "err", err)

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, c.provider.Name(), ctx.Err())
	case <-time.After(retryBase):
	}

	results, err = c.attempt(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, c.provider.Name(), err)
	}
	return results, nil
}

func (c *Client) attempt(ctx context.Context, query string) ([]types.RawSearchResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	return c.provider.Search(attemptCtx, query, c.cfg)
}
