// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package query turns a business context into category-targeted search
// queries and refines them between research iterations. A generator never
// reissues a query it has already produced for a category, so a failed
// search is not repeated verbatim on the next round.
// Implements: prd002-queries (R1-R4);
//
//	docs/ARCHITECTURE § Query Generation.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/pdiddy/feasibility-engine/internal/completion"
	"github.com/pdiddy/feasibility-engine/pkg/types"
)

const (
	// initialPerCategory is how many templated queries open a category.
	initialPerCategory = 3

	// refinedPerIteration is how many queries each refinement round adds.
	refinedPerIteration = 2
)

// Generator produces research queries for one run. The issued set is
// shared across categories and guarded by a mutex because categories are
// researched concurrently. Identity matches the cache key: the category
// plus the normalized text (prd002 R3.1).
type Generator struct {
	completer completion.Client // optional; nil disables assisted refinement
	log       *slog.Logger

	mu     sync.Mutex
	issued map[uint64]struct{}
}

// NewGenerator returns a Generator. completer may be nil, in which case
// refinement is purely template-based. A nil logger uses slog.Default().
func NewGenerator(completer completion.Client, log *slog.Logger) *Generator {
	if log == nil {
		log = slog.Default()
	}
	return &Generator{
		completer: completer,
		log:       log,
		issued:    make(map[uint64]struct{}),
	}
}

// Initial generates the category's opening queries from templates filled
// with the business context (R1.1). All returned queries are registered in
// the issued set at iteration 0.
func (g *Generator) Initial(category string, biz types.BusinessContext) []types.ResearchQuery {
	texts := initialTemplates(category, biz)

	out := make([]types.ResearchQuery, 0, initialPerCategory)
	for _, text := range texts {
		if q, ok := g.issue(category, text, 0); ok {
			out = append(out, q)
		}
		if len(out) == initialPerCategory {
			break
		}
	}
	return out
}

// Refine generates the next round of queries for a category whose evidence
// fell short, steered by the gap reason (R2.1). Candidates that collide
// with any previously issued query for the category are salted with
// iteration-specific modifiers until unique (R3.1); candidates that stay
// duplicates are dropped rather than reissued. When a completion client is
// configured each candidate is passed through it first; any failure or
// duplicate reply falls back to the template text (R4.2).
func (g *Generator) Refine(ctx context.Context, category string, biz types.BusinessContext, reason types.GapReason, iteration int) []types.ResearchQuery {
	candidates := refinedTemplates(category, biz, reason)

	out := make([]types.ResearchQuery, 0, refinedPerIteration)
	for _, text := range candidates {
		if len(out) == refinedPerIteration {
			break
		}

		if g.completer != nil {
			if assisted, err := completion.RefineQuery(ctx, g.completer, text, reason, biz); err != nil {
				g.log.Warn("assisted refinement failed, using template",
					"category", category, "error", err)
			} else if !g.seen(category, assisted) {
				text = assisted
			}
		}

		q, ok := g.issue(category, text, iteration)
		if !ok {
			q, ok = g.issueSalted(category, text, iteration)
		}
		if ok {
			out = append(out, q)
		}
	}
	return out
}

// issue registers the query text for the category and returns the built
// query. ok is false when the text was already issued.
func (g *Generator) issue(category, text string, iteration int) (types.ResearchQuery, bool) {
	key := issuedKey(category, text)

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, dup := g.issued[key]; dup {
		return types.ResearchQuery{}, false
	}
	g.issued[key] = struct{}{}
	return types.ResearchQuery{Category: category, Text: text, Iteration: iteration}, true
}

// issueSalted retries a colliding candidate with iteration-salted
// modifiers appended, so later rounds phrase the same intent differently.
func (g *Generator) issueSalted(category, text string, iteration int) (types.ResearchQuery, bool) {
	for i := range saltModifiers {
		salt := saltModifiers[(iteration+i)%len(saltModifiers)]
		if q, ok := g.issue(category, text+" "+salt, iteration); ok {
			return q, true
		}
	}
	g.log.Warn("query candidate exhausted all salted variants",
		"category", category, "text", text, "iteration", iteration)
	return types.ResearchQuery{}, false
}

// seen reports whether the text was already issued for the category,
// without registering it.
func (g *Generator) seen(category, text string) bool {
	key := issuedKey(category, text)
	g.mu.Lock()
	defer g.mu.Unlock()
	_, dup := g.issued[key]
	return dup
}

// issuedKey hashes the same identity the cache keys on, but with xxhash:
// the set is in-memory only and never persisted, so a fast 64-bit digest
// is enough.
func issuedKey(category, text string) uint64 {
	h := xxhash.New()
	h.WriteString(category)
	h.Write([]byte{0})
	h.WriteString(types.NormalizeQuery(text))
	return h.Sum64()
}

// initialTemplates returns the opening query texts for a category. The
// known categories carry curated templates; anything else gets generic
// ones built from the category name.
func initialTemplates(category string, biz types.BusinessContext) []string {
	p, i, l := biz.PartnerType, biz.Industry, biz.Location

	switch category {
	case "pricing":
		return []string{
			fmt.Sprintf("%s %s pricing %s 2025", i, p, l),
			fmt.Sprintf("average revenue %s services %s", i, l),
			fmt.Sprintf("%s pricing benchmarks %s %s", p, i, l),
		}
	case "market_size":
		return []string{
			fmt.Sprintf("market size %s %s forecast", i, l),
			fmt.Sprintf("%s market value %s 2025", i, l),
			fmt.Sprintf("total addressable market %s %s", i, l),
		}
	case "growth_rate":
		return []string{
			fmt.Sprintf("%s market growth rate %s 2025", i, l),
			fmt.Sprintf("%s industry trends %s", p, l),
			fmt.Sprintf("%s annual growth forecast %s", i, l),
		}
	case "operational_costs":
		return []string{
			fmt.Sprintf("%s operational costs %s %s", p, i, l),
			fmt.Sprintf("business expenses %s %s", i, l),
			fmt.Sprintf("%s overhead costs %s", p, l),
		}
	default:
		topic := strings.ReplaceAll(category, "_", " ")
		return []string{
			fmt.Sprintf("%s %s %s", topic, i, l),
			fmt.Sprintf("%s %s %s benchmarks", p, topic, i),
			fmt.Sprintf("%s %s %s 2025", topic, i, l),
		}
	}
}

// refinedTemplates returns refinement candidates steered by the gap
// reason: thin evidence reaches for authority sources, empty rounds
// broaden the phrasing, and conflicting numbers look for corroboration.
func refinedTemplates(category string, biz types.BusinessContext, reason types.GapReason) []string {
	p, i, l := biz.PartnerType, biz.Industry, biz.Location
	topic := strings.ReplaceAll(category, "_", " ")

	switch reason {
	case types.GapNoResults:
		// Broaden: drop the partner type, widen the geography.
		return []string{
			fmt.Sprintf("%s %s industry overview", i, topic),
			fmt.Sprintf("%s %s statistics", topic, i),
			fmt.Sprintf("%s market data %s", i, l),
		}
	case types.GapConflictingValues:
		return []string{
			fmt.Sprintf("%s %s %s verified industry survey", i, topic, l),
			fmt.Sprintf("%s %s authoritative data %s", i, topic, l),
			fmt.Sprintf("%s %s %s industry association report", p, topic, l),
		}
	default: // low_confidence and anything unrecognized
		return []string{
			fmt.Sprintf("%s %s %s industry report", i, topic, l),
			fmt.Sprintf("%s %s market research report %s", i, topic, l),
			fmt.Sprintf("official %s %s statistics %s", i, topic, l),
		}
	}
}

// saltModifiers rephrase a colliding candidate. Indexed by iteration so
// consecutive rounds pick different variants first.
var saltModifiers = []string{
	"latest data",
	"detailed analysis",
	"2025 report",
	"recent figures",
}
