// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package gap

import (
	"testing"
	"time"

	"github.com/pdiddy/feasibility-engine/pkg/types"
)

func bench(field string, value, confidence float64, age time.Duration) types.ExtractedBenchmark {
	return types.ExtractedBenchmark{
		FieldName:   field,
		Category:    "pricing",
		Value:       value,
		Unit:        "USD",
		Confidence:  confidence,
		SourceURL:   "https://example.com/src",
		ExtractedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).Add(-age),
	}
}

func testAnalyzer() *Analyzer {
	return NewAnalyzer(types.ResearchConfig{}, nil)
}

func TestNewAnalyzerDefaults(t *testing.T) {
	a := testAnalyzer()
	if a.Threshold != 0.70 {
		t.Errorf("Threshold = %v, want 0.70", a.Threshold)
	}
	if a.MaxIterations != 3 {
		t.Errorf("MaxIterations = %d, want 3", a.MaxIterations)
	}
	if a.Tolerance != 0.05 {
		t.Errorf("Tolerance = %v, want 0.05", a.Tolerance)
	}
}

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, false},
		{StatusSearching, false},
		{StatusEvaluating, false},
		{StatusIterating, false},
		{StatusConverged, true},
		{StatusExhausted, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestBeginIterationLifecycle(t *testing.T) {
	a := testAnalyzer()
	s := NewState("pricing")

	if s.Status != StatusPending {
		t.Fatalf("new state status = %s, want pending", s.Status)
	}

	for want := 1; want <= 3; want++ {
		if !a.BeginIteration(s) {
			t.Fatalf("BeginIteration %d refused", want)
		}
		if s.Status != StatusSearching {
			t.Errorf("status = %s, want searching", s.Status)
		}
		if s.Iterations != want {
			t.Errorf("Iterations = %d, want %d", s.Iterations, want)
		}
		s.Status = StatusIterating // simulate a non-converging evaluation
	}

	// Budget spent: the fourth round must be refused and the state closed.
	if a.BeginIteration(s) {
		t.Error("BeginIteration allowed a fourth round")
	}
	if s.Status != StatusExhausted {
		t.Errorf("status = %s, want exhausted", s.Status)
	}
	if s.Iterations != 3 {
		t.Errorf("Iterations = %d, want 3 (never exceeds budget)", s.Iterations)
	}
}

func TestBeginIterationRefusedWhenTerminal(t *testing.T) {
	a := testAnalyzer()
	for _, status := range []Status{StatusConverged, StatusExhausted} {
		s := NewState("pricing")
		s.Status = status
		if a.BeginIteration(s) {
			t.Errorf("BeginIteration allowed on %s state", status)
		}
		if s.Iterations != 0 {
			t.Errorf("Iterations moved to %d on %s state", s.Iterations, status)
		}
	}
}

func TestEvaluateConverges(t *testing.T) {
	a := testAnalyzer()
	s := NewState("pricing")
	a.BeginIteration(s)

	a.Evaluate(s, []types.ExtractedBenchmark{
		bench("price_range", 12.5, 0.8, 0),
		bench("average_price", 11.0, 0.7, 0),
	})

	if s.Status != StatusConverged {
		t.Fatalf("status = %s, want converged", s.Status)
	}
	if s.Reason != types.GapNone {
		t.Errorf("reason = %q, want none", s.Reason)
	}
	if len(s.Accepted) != 2 {
		t.Errorf("accepted = %d, want 2", len(s.Accepted))
	}
}

func TestEvaluateLowConfidenceIterates(t *testing.T) {
	// Mean of 0.4 and 0.5 is 0.45, below the 0.70 threshold.
	a := testAnalyzer()
	s := NewState("pricing")
	a.BeginIteration(s)

	a.Evaluate(s, []types.ExtractedBenchmark{
		bench("price_range", 12.5, 0.4, 0),
		bench("average_price", 11.0, 0.5, 0),
	})

	if s.Status != StatusIterating {
		t.Fatalf("status = %s, want iterating", s.Status)
	}
	if s.Reason != types.GapLowConfidence {
		t.Errorf("reason = %q, want low_confidence", s.Reason)
	}
	if len(s.Accepted) != 2 {
		t.Errorf("accepted = %d, want 2 (kept for later rounds)", len(s.Accepted))
	}
}

func TestEvaluateNoResults(t *testing.T) {
	a := testAnalyzer()
	s := NewState("pricing")
	a.BeginIteration(s)

	a.Evaluate(s, nil)

	if s.Status != StatusIterating {
		t.Fatalf("status = %s, want iterating", s.Status)
	}
	if s.Reason != types.GapNoResults {
		t.Errorf("reason = %q, want no_results", s.Reason)
	}
}

func TestEvaluateReasonPriority(t *testing.T) {
	// Conflicting values outrank low confidence, but an empty accepted set
	// outranks both.
	a := testAnalyzer()
	s := NewState("pricing")
	a.BeginIteration(s)

	a.Evaluate(s, []types.ExtractedBenchmark{
		bench("price_range", 10.0, 0.5, 0),
		bench("price_range", 20.0, 0.4, 0), // conflicts with the first
	})

	if s.Reason != types.GapConflictingValues {
		t.Errorf("reason = %q, want conflicting_values", s.Reason)
	}
	if s.Status != StatusIterating {
		t.Errorf("status = %s, want iterating", s.Status)
	}
}

func TestEvaluateExhaustsAtBudget(t *testing.T) {
	a := testAnalyzer()
	s := NewState("pricing")

	weak := []types.ExtractedBenchmark{bench("price_range", 12.5, 0.3, 0)}
	for i := 0; i < 3; i++ {
		if !a.BeginIteration(s) {
			t.Fatalf("round %d refused", i+1)
		}
		a.Evaluate(s, weak[:min(1, i)]) // first round empty, later rounds weak
	}

	if s.Status != StatusExhausted {
		t.Fatalf("status = %s, want exhausted after 3 rounds", s.Status)
	}
	if s.Iterations != 3 {
		t.Errorf("Iterations = %d, want 3", s.Iterations)
	}
	// Best-so-far evidence survives exhaustion.
	if len(s.Accepted) == 0 {
		t.Error("accepted evidence dropped on exhaustion")
	}
	if s.Reason == types.GapNone {
		t.Error("exhausted state carries no gap reason")
	}
}

func TestEvaluateConflictHigherConfidenceWins(t *testing.T) {
	a := testAnalyzer()
	s := NewState("pricing")
	a.BeginIteration(s)

	low := bench("price_range", 10.0, 0.5, 0)
	high := bench("price_range", 20.0, 0.9, time.Hour) // older but stronger

	a.Evaluate(s, []types.ExtractedBenchmark{low, high})

	if len(s.Accepted) != 1 {
		t.Fatalf("accepted = %d, want 1", len(s.Accepted))
	}
	if s.Accepted[0].Value != 20.0 {
		t.Errorf("winner value = %v, want 20.0 (higher confidence)", s.Accepted[0].Value)
	}
	if len(s.Discarded) != 1 {
		t.Fatalf("discarded = %d, want 1", len(s.Discarded))
	}
	if s.Discarded[0].Benchmark.Value != 10.0 {
		t.Errorf("discarded value = %v, want 10.0", s.Discarded[0].Benchmark.Value)
	}
	if s.Discarded[0].Reason == "" {
		t.Error("discard carries no provenance reason")
	}
}

func TestEvaluateConflictTieGoesToRecent(t *testing.T) {
	a := testAnalyzer()
	s := NewState("pricing")
	a.BeginIteration(s)

	older := bench("price_range", 10.0, 0.6, 48*time.Hour)
	newer := bench("price_range", 20.0, 0.6, 0)

	a.Evaluate(s, []types.ExtractedBenchmark{older, newer})

	if len(s.Accepted) != 1 {
		t.Fatalf("accepted = %d, want 1", len(s.Accepted))
	}
	if s.Accepted[0].Value != 20.0 {
		t.Errorf("winner value = %v, want 20.0 (more recent)", s.Accepted[0].Value)
	}
}

func TestEvaluateNearIdenticalValuesCoexist(t *testing.T) {
	// Within tolerance the values corroborate; both stay accepted and the
	// synthesizer deduplicates later.
	a := testAnalyzer()
	s := NewState("pricing")
	a.BeginIteration(s)

	a.Evaluate(s, []types.ExtractedBenchmark{
		bench("price_range", 100.0, 0.8, 0),
		bench("price_range", 102.0, 0.75, 0), // 2% off, inside 5% tolerance
	})

	if len(s.Accepted) != 2 {
		t.Errorf("accepted = %d, want 2 (corroborating values)", len(s.Accepted))
	}
	if len(s.Discarded) != 0 {
		t.Errorf("discarded = %d, want 0", len(s.Discarded))
	}
	if s.Status != StatusConverged {
		t.Errorf("status = %s, want converged (mean 0.775)", s.Status)
	}
}

func TestEvaluateRejectsOutOfRangeConfidence(t *testing.T) {
	a := testAnalyzer()
	s := NewState("pricing")
	a.BeginIteration(s)

	a.Evaluate(s, []types.ExtractedBenchmark{
		bench("price_range", 10.0, 1.5, 0),
		bench("average_price", 11.0, -0.1, 0),
	})

	if len(s.Accepted) != 0 {
		t.Errorf("accepted = %d, want 0 (both out of range)", len(s.Accepted))
	}
	if s.Reason != types.GapNoResults {
		t.Errorf("reason = %q, want no_results", s.Reason)
	}
}

func TestEvaluateAccumulatesAcrossRounds(t *testing.T) {
	a := testAnalyzer()
	s := NewState("pricing")

	a.BeginIteration(s)
	a.Evaluate(s, []types.ExtractedBenchmark{bench("price_range", 12.0, 0.5, 0)})
	if s.Status != StatusIterating {
		t.Fatalf("round 1 status = %s, want iterating", s.Status)
	}

	a.BeginIteration(s)
	a.Evaluate(s, []types.ExtractedBenchmark{bench("average_price", 11.0, 0.95, 0)})

	// Mean of 0.5 and 0.95 is 0.725, over the threshold.
	if s.Status != StatusConverged {
		t.Fatalf("round 2 status = %s, want converged", s.Status)
	}
	if len(s.Accepted) != 2 {
		t.Errorf("accepted = %d, want 2 (first round evidence retained)", len(s.Accepted))
	}
	if s.Iterations != 2 {
		t.Errorf("Iterations = %d, want 2", s.Iterations)
	}
}

func TestExhaustForcesTerminal(t *testing.T) {
	a := testAnalyzer()

	t.Run("with evidence", func(t *testing.T) {
		s := NewState("pricing")
		a.BeginIteration(s)
		a.Evaluate(s, []types.ExtractedBenchmark{bench("price_range", 12.0, 0.5, 0)})

		a.Exhaust(s)
		if s.Status != StatusExhausted {
			t.Errorf("status = %s, want exhausted", s.Status)
		}
		if s.Reason != types.GapLowConfidence {
			t.Errorf("reason = %q, want low_confidence", s.Reason)
		}
		if len(s.Accepted) != 1 {
			t.Error("accepted evidence dropped")
		}
	})

	t.Run("without evidence", func(t *testing.T) {
		s := NewState("pricing")
		a.BeginIteration(s)

		a.Exhaust(s)
		if s.Status != StatusExhausted {
			t.Errorf("status = %s, want exhausted", s.Status)
		}
		if s.Reason != types.GapNoResults {
			t.Errorf("reason = %q, want no_results", s.Reason)
		}
	})

	t.Run("converged state untouched", func(t *testing.T) {
		s := NewState("pricing")
		s.Status = StatusConverged
		a.Exhaust(s)
		if s.Status != StatusConverged {
			t.Errorf("Exhaust overwrote converged state: %s", s.Status)
		}
	})
}

func TestRelativeDiff(t *testing.T) {
	tests := []struct {
		name string
		a, b float64
		want float64
	}{
		{"identical", 10, 10, 0},
		{"both zero", 0, 0, 0},
		{"five percent", 100, 95, 0.05},
		{"doubled", 10, 20, 0.5},
		{"order independent", 20, 10, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := relativeDiff(tt.a, tt.b)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("relativeDiff(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
