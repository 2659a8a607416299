// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package query

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/pdiddy/feasibility-engine/pkg/types"
)

var testBiz = types.BusinessContext{
	PartnerType: "coffee roaster",
	Industry:    "specialty coffee",
	Location:    "Portland, Oregon",
}

// fakeCompleter implements completion.Client with scripted replies.
type fakeCompleter struct {
	reply string
	err   error
	calls int
}

func (f *fakeCompleter) Complete(_ context.Context, _ string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func TestInitialKnownCategories(t *testing.T) {
	for _, category := range []string{"pricing", "market_size", "growth_rate", "operational_costs"} {
		t.Run(category, func(t *testing.T) {
			g := NewGenerator(nil, nil)
			queries := g.Initial(category, testBiz)

			if len(queries) != 3 {
				t.Fatalf("len(queries) = %d, want 3", len(queries))
			}
			for _, q := range queries {
				if q.Category != category {
					t.Errorf("Category = %q, want %q", q.Category, category)
				}
				if q.Iteration != 0 {
					t.Errorf("Iteration = %d, want 0", q.Iteration)
				}
				if q.Text == "" {
					t.Error("empty query text")
				}
			}
		})
	}
}

func TestInitialFillsContext(t *testing.T) {
	g := NewGenerator(nil, nil)
	queries := g.Initial("pricing", testBiz)

	joined := ""
	for _, q := range queries {
		joined += q.Text + "\n"
	}
	for _, want := range []string{"coffee roaster", "specialty coffee", "Portland, Oregon"} {
		if !strings.Contains(joined, want) {
			t.Errorf("initial queries missing context %q:\n%s", want, joined)
		}
	}
}

func TestInitialUnknownCategoryGeneric(t *testing.T) {
	g := NewGenerator(nil, nil)
	queries := g.Initial("labor_availability", testBiz)

	if len(queries) != 3 {
		t.Fatalf("len(queries) = %d, want 3", len(queries))
	}
	// The category name, underscores swapped for spaces, seeds the topic.
	for _, q := range queries {
		if !strings.Contains(q.Text, "labor availability") {
			t.Errorf("generic query %q missing topic", q.Text)
		}
	}
}

func TestRefineCountAndIteration(t *testing.T) {
	g := NewGenerator(nil, nil)
	g.Initial("pricing", testBiz)

	queries := g.Refine(context.Background(), "pricing", testBiz, types.GapLowConfidence, 1)
	if len(queries) != 2 {
		t.Fatalf("len(queries) = %d, want 2", len(queries))
	}
	for _, q := range queries {
		if q.Iteration != 1 {
			t.Errorf("Iteration = %d, want 1", q.Iteration)
		}
	}
}

func TestRefineExcludesPriorQueries(t *testing.T) {
	g := NewGenerator(nil, nil)

	prior := make(map[string]bool)
	for _, q := range g.Initial("pricing", testBiz) {
		prior[types.NormalizeQuery(q.Text)] = true
	}

	// Three refinement rounds with varying reasons; no text may repeat.
	reasons := []types.GapReason{types.GapLowConfidence, types.GapNoResults, types.GapConflictingValues}
	for round, reason := range reasons {
		for _, q := range g.Refine(context.Background(), "pricing", testBiz, reason, round+1) {
			norm := types.NormalizeQuery(q.Text)
			if prior[norm] {
				t.Errorf("round %d reissued query %q", round+1, q.Text)
			}
			prior[norm] = true
		}
	}
}

func TestRefineSameReasonTwiceSaltsCandidates(t *testing.T) {
	g := NewGenerator(nil, nil)
	g.Initial("pricing", testBiz)

	first := g.Refine(context.Background(), "pricing", testBiz, types.GapLowConfidence, 1)
	second := g.Refine(context.Background(), "pricing", testBiz, types.GapLowConfidence, 2)

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("rounds = %d, %d queries, want 2 each", len(first), len(second))
	}

	seen := map[string]bool{}
	for _, q := range append(first, second...) {
		norm := types.NormalizeQuery(q.Text)
		if seen[norm] {
			t.Errorf("duplicate across rounds: %q", q.Text)
		}
		seen[norm] = true
	}
}

func TestRefineReasonSteering(t *testing.T) {
	tests := []struct {
		reason types.GapReason
		want   string
	}{
		{types.GapLowConfidence, "report"},
		{types.GapNoResults, "overview"},
		{types.GapConflictingValues, "survey"},
	}
	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			g := NewGenerator(nil, nil)
			queries := g.Refine(context.Background(), "pricing", testBiz, tt.reason, 1)
			if len(queries) == 0 {
				t.Fatal("no queries")
			}
			joined := ""
			for _, q := range queries {
				joined += q.Text + "\n"
			}
			if !strings.Contains(joined, tt.want) {
				t.Errorf("reason %q queries missing steering term %q:\n%s", tt.reason, tt.want, joined)
			}
		})
	}
}

func TestRefineUsesCompleter(t *testing.T) {
	fc := &fakeCompleter{reply: "wholesale specialty coffee roaster pricing pacific northwest"}
	g := NewGenerator(fc, nil)

	queries := g.Refine(context.Background(), "pricing", testBiz, types.GapLowConfidence, 1)
	if len(queries) != 2 {
		t.Fatalf("len(queries) = %d, want 2", len(queries))
	}
	if fc.calls == 0 {
		t.Error("completer never consulted")
	}
	if queries[0].Text != "wholesale specialty coffee roaster pricing pacific northwest" {
		t.Errorf("first query = %q, want assisted text", queries[0].Text)
	}
	// The assisted reply is now issued; the second candidate must fall back
	// to its template rather than reuse the duplicate reply.
	if queries[1].Text == queries[0].Text {
		t.Error("duplicate assisted reply was issued twice")
	}
}

func TestRefineCompleterFailureFallsBack(t *testing.T) {
	fc := &fakeCompleter{err: fmt.Errorf("service down")}
	g := NewGenerator(fc, nil)

	queries := g.Refine(context.Background(), "pricing", testBiz, types.GapLowConfidence, 1)
	if len(queries) != 2 {
		t.Fatalf("len(queries) = %d, want 2 (template fallback)", len(queries))
	}
	for _, q := range queries {
		if q.Text == "" {
			t.Error("empty fallback query")
		}
	}
}

func TestRefineCompleterDuplicateReplyFallsBack(t *testing.T) {
	// Completer always replies with a text that the first round already
	// issued; later candidates must not adopt it again.
	fc := &fakeCompleter{reply: "one true query"}
	g := NewGenerator(fc, nil)

	first := g.Refine(context.Background(), "pricing", testBiz, types.GapLowConfidence, 1)
	second := g.Refine(context.Background(), "pricing", testBiz, types.GapLowConfidence, 2)

	issued := map[string]bool{}
	for _, q := range append(first, second...) {
		norm := types.NormalizeQuery(q.Text)
		if issued[norm] {
			t.Fatalf("query %q issued twice", q.Text)
		}
		issued[norm] = true
	}
}

func TestIssueNormalizesIdentity(t *testing.T) {
	g := NewGenerator(nil, nil)

	if _, ok := g.issue("pricing", "Coffee  Roaster   Pricing", 0); !ok {
		t.Fatal("first issue rejected")
	}
	// Same text modulo case and whitespace is a duplicate.
	if _, ok := g.issue("pricing", "coffee roaster pricing", 0); ok {
		t.Error("normalized duplicate accepted")
	}
	// Same text under a different category is a distinct identity.
	if _, ok := g.issue("operational_costs", "coffee roaster pricing", 0); !ok {
		t.Error("same text in another category rejected")
	}
}
