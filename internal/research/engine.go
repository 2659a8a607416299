// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package research orchestrates the full feasibility pipeline: query
// generation, cache-aware search, benchmark extraction, gap analysis, and
// synthesis, concurrently across categories. Component failures degrade
// the affected finding; nothing below this package aborts a run.
// Implements: prd007-orchestration (R1-R5);
//
//	docs/ARCHITECTURE § Orchestration.
package research

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/pdiddy/feasibility-engine/internal/completion"
	"github.com/pdiddy/feasibility-engine/internal/extract"
	"github.com/pdiddy/feasibility-engine/internal/gap"
	"github.com/pdiddy/feasibility-engine/internal/query"
	"github.com/pdiddy/feasibility-engine/internal/synthesis"
	"github.com/pdiddy/feasibility-engine/pkg/types"
)

// CacheStore is the slice of the cache the engine needs.
type CacheStore interface {
	Get(ctx context.Context, hash string) (types.CacheEntry, bool)
	Put(ctx context.Context, entry types.CacheEntry) error
	SetSynthesis(ctx context.Context, hash, synthesis string) error
}

// Searcher resolves one query text into raw results. *search.Client
// satisfies this; tests substitute scripted fakes.
type Searcher interface {
	Search(ctx context.Context, queryText string) ([]types.RawSearchResult, error)
}

const (
	defaultMaxConcurrent    = 4
	defaultIterationTimeout = 2 * time.Minute
	defaultSlack            = 30 * time.Second
)

// defaultCategories are researched when the config names none.
var defaultCategories = []string{"pricing", "market_size", "growth_rate", "operational_costs"}

// Engine runs research reports. Safe for a single Run at a time; the
// issued-query set resets per Run via a fresh generator.
type Engine struct {
	cache     CacheStore
	searcher  Searcher
	completer completion.Client // optional
	analyzer  *gap.Analyzer
	cfg       types.ResearchConfig
	sem       *semaphore.Weighted
	log       *slog.Logger
}

// NewEngine wires the orchestrator. completer may be nil, disabling
// assisted refinement and narrative write-back. Config zero values take
// the stock defaults (4 categories, 4 concurrent calls, 2 m iteration
// timeout, 30 s slack).
func NewEngine(cache CacheStore, searcher Searcher, completer completion.Client, cfg types.ResearchConfig, log *slog.Logger) *Engine {
	if len(cfg.Categories) == 0 {
		cfg.Categories = defaultCategories
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.IterationTimeout <= 0 {
		cfg.IterationTimeout = defaultIterationTimeout
	}
	if cfg.Slack <= 0 {
		cfg.Slack = defaultSlack
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cache:     cache,
		searcher:  searcher,
		completer: completer,
		analyzer:  gap.NewAnalyzer(cfg, log),
		cfg:       cfg,
		sem:       semaphore.NewWeighted(cfg.MaxConcurrent),
		log:       log,
	}
}

// RunStats counts a run's fetch activity.
type RunStats struct {
	// QueriesIssued is the number of distinct queries generated.
	QueriesIssued int64 `json:"queries_issued" yaml:"queries_issued"`

	// ExternalCalls is the number of live provider searches attempted.
	ExternalCalls int64 `json:"external_calls" yaml:"external_calls"`

	// CacheHits is the number of queries served by fresh cache entries.
	CacheHits int64 `json:"cache_hits" yaml:"cache_hits"`

	// StaleHits is the number of queries served by stale entries after a
	// live fetch failed.
	StaleHits int64 `json:"stale_hits" yaml:"stale_hits"`
}

// counters is the concurrent-update form of RunStats.
type counters struct {
	queriesIssued atomic.Int64
	externalCalls atomic.Int64
	cacheHits     atomic.Int64
	staleHits     atomic.Int64
}

func (c *counters) snapshot() RunStats {
	return RunStats{
		QueriesIssued: c.queriesIssued.Load(),
		ExternalCalls: c.externalCalls.Load(),
		CacheHits:     c.cacheHits.Load(),
		StaleHits:     c.staleHits.Load(),
	}
}

// Run produces a research report for the business context. Categories are
// researched concurrently, one goroutine each, under a shared deadline of
// IterationTimeout x MaxIterations + Slack; categories still running at
// the deadline finalize as exhausted with whatever they accumulated
// (R1.1-R1.3). Run never fails for component-level errors; the returned
// error is reserved for a cancelled parent context.
func (e *Engine) Run(ctx context.Context, biz types.BusinessContext) (*Report, error) {
	budget := e.cfg.IterationTimeout*time.Duration(e.analyzer.MaxIterations) + e.cfg.Slack
	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	runID := uuid.NewString()
	log := e.log.With("run_id", runID)
	log.Info("research run starting",
		"partner_type", biz.PartnerType, "industry", biz.Industry,
		"location", biz.Location, "categories", e.cfg.Categories,
		"deadline", budget)

	report := &Report{
		RunID:     runID,
		Context:   biz,
		StartedAt: time.Now().UTC(),
		Findings:  make([]types.ResearchFinding, len(e.cfg.Categories)),
	}

	gen := query.NewGenerator(e.completer, log)
	var stats counters

	g, gctx := errgroup.WithContext(runCtx)
	for i, category := range e.cfg.Categories {
		i, category := i, category
		g.Go(func() error {
			report.Findings[i] = e.researchCategory(gctx, log, gen, category, biz, &stats)
			return nil
		})
	}
	_ = g.Wait() // category goroutines never return errors

	report.CompletedAt = time.Now().UTC()
	report.Summary = synthesis.Summarize(report.Findings)
	report.Stats = stats.snapshot()

	log.Info("research run finished",
		"findings", report.Summary.TotalFindings,
		"degraded", report.Summary.DegradedCategories,
		"mean_confidence", report.Summary.MeanConfidence,
		"external_calls", report.Stats.ExternalCalls,
		"cache_hits", report.Stats.CacheHits,
		"duration", report.CompletedAt.Sub(report.StartedAt))

	// The run deadline expiring is a normal, degraded outcome; only the
	// caller's own context ending is reported as an error.
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// researchCategory drives one category's iteration loop to a terminal
// state and synthesizes its finding. Iterations are strictly sequential
// within the category (R1.2).
func (e *Engine) researchCategory(ctx context.Context, log *slog.Logger, gen *query.Generator, category string, biz types.BusinessContext, stats *counters) types.ResearchFinding {
	state := gap.NewState(category)

	queries := gen.Initial(category, biz)
	stats.queriesIssued.Add(int64(len(queries)))

	// lastHash remembers the freshest cache entry that served the
	// category; converged narratives are written back onto it.
	var lastHash string
	var freshEvidence, staleEvidence bool

	for ctx.Err() == nil && e.analyzer.BeginIteration(state) {
		var results []types.RawSearchResult
		for _, q := range queries {
			outcome := e.fetch(ctx, log, q, stats)
			if len(outcome.Results) > 0 {
				lastHash = q.Hash()
				if outcome.Status == types.OutcomeDegraded {
					staleEvidence = true
				} else {
					freshEvidence = true
				}
			}
			results = append(results, outcome.Results...)
		}

		candidates, skipped := extract.Extract(category, results)
		for _, reason := range skipped {
			log.Debug("extraction skipped record", "category", category, "reason", reason)
		}

		e.analyzer.Evaluate(state, candidates)
		if state.Status.Terminal() {
			break
		}

		queries = gen.Refine(ctx, category, biz, state.Reason, state.Iterations)
		stats.queriesIssued.Add(int64(len(queries)))
		if len(queries) == 0 {
			log.Warn("no fresh queries left, closing category", "category", category)
			break
		}
	}

	// Deadline expiry or a dry generator can leave the loop mid-flight.
	e.analyzer.Exhaust(state)

	finding := synthesis.Synthesize(category, state, e.cfg)
	if staleEvidence && !freshEvidence && len(finding.Benchmarks) > 0 && !finding.DefaultUsed {
		finding.Degraded = true
	}

	e.writeNarrative(ctx, log, state, finding, lastHash)
	return finding
}

// writeNarrative stores a completion-written summary on the category's
// freshest cache entry. Best-effort garnish: every failure is logged and
// ignored (R5.2).
func (e *Engine) writeNarrative(ctx context.Context, log *slog.Logger, state *gap.State, finding types.ResearchFinding, lastHash string) {
	if e.completer == nil || state.Status != gap.StatusConverged || lastHash == "" {
		return
	}

	narrative, err := completion.Narrative(ctx, e.completer, state.Category, finding.Benchmarks)
	if err != nil {
		log.Warn("narrative synthesis failed", "category", state.Category, "err", err)
		return
	}
	if err := e.cache.SetSynthesis(ctx, lastHash, narrative); err != nil {
		log.Warn("narrative write-back failed", "category", state.Category, "err", err)
	}
}

// fetch resolves one query through cache-then-live and classifies the
// outcome (R2.1-R2.4): fresh hit → success without an external call;
// miss or stale → live search under the concurrency semaphore, cached on
// success; live failure with a stale entry → the stale results, degraded;
// otherwise unavailable, and the iteration proceeds with zero results.
func (e *Engine) fetch(ctx context.Context, log *slog.Logger, q types.ResearchQuery, stats *counters) types.SearchOutcome {
	hash := q.Hash()

	entry, found := e.cache.Get(ctx, hash)
	if found && !entry.Stale {
		stats.cacheHits.Add(1)
		log.Debug("cache hit", "category", q.Category, "hash", hash)
		return types.FetchSuccess(entry.Results, true)
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		// Deadline expired while queued for a slot.
		return e.fallback(log, q, entry, found, stats, err)
	}
	results, err := e.searcher.Search(ctx, q.Text)
	e.sem.Release(1)
	stats.externalCalls.Add(1)

	if err != nil {
		return e.fallback(log, q, entry, found, stats, err)
	}

	if putErr := e.cache.Put(ctx, types.CacheEntry{
		QueryHash: hash,
		Category:  q.Category,
		QueryText: q.Text,
		Results:   results,
	}); putErr != nil {
		log.Warn("cache write failed, continuing uncached",
			"category", q.Category, "hash", hash, "err", putErr)
	}

	return types.FetchSuccess(results, false)
}

// fallback serves a failed live fetch from the stale entry when one
// exists, otherwise reports the query unavailable.
func (e *Engine) fallback(log *slog.Logger, q types.ResearchQuery, entry types.CacheEntry, found bool, stats *counters, err error) types.SearchOutcome {
	if found {
		stats.staleHits.Add(1)
		log.Warn("live search failed, serving stale cache",
			"category", q.Category, "query", q.Text, "err", err)
		return types.FetchDegraded(entry.Results, "stale_cache")
	}
	log.Warn("live search failed with no cached fallback",
		"category", q.Category, "query", q.Text, "err", err)
	return types.FetchUnavailable("search_unavailable")
}
