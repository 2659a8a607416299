// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package gap decides, per research category, whether gathered evidence is
// sufficient or another search iteration is needed. Each category moves
// through an explicit state machine:
//
//	pending → searching → evaluating → converged
//	                                 → iterating (back to searching)
//	                                 → exhausted
//
// Implements: prd005-gap-analysis (R1-R4);
//
//	docs/ARCHITECTURE § Gap Analysis.
package gap

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/pdiddy/feasibility-engine/pkg/types"
)

// Status is the lifecycle state of one category's research.
type Status string

const (
	// StatusPending means no queries have been issued yet.
	StatusPending Status = "pending"
	// StatusSearching means an iteration's queries are being fetched.
	StatusSearching Status = "searching"
	// StatusEvaluating means fetched evidence is being judged.
	StatusEvaluating Status = "evaluating"
	// StatusConverged means evidence met the confidence threshold.
	StatusConverged Status = "converged"
	// StatusIterating means evidence fell short and another round follows.
	StatusIterating Status = "iterating"
	// StatusExhausted means the iteration budget ran out before
	// convergence. A normal outcome, not an error.
	StatusExhausted Status = "exhausted"
)

// Terminal reports whether no further iterations will run for the category.
func (s Status) Terminal() bool {
	switch s {
	case StatusConverged, StatusExhausted:
		return true
	default:
		return false
	}
}

// Discard records a benchmark rejected during conflict resolution. Losers
// are retained for provenance, never silently dropped (R2.3).
type Discard struct {
	Benchmark types.ExtractedBenchmark
	Reason    string
}

// State is one category's research progress across iterations.
type State struct {
	Category string
	Status   Status

	// Accepted holds the benchmarks that survived conflict resolution.
	// Near-identical values for the same field may coexist here; the
	// synthesizer deduplicates them.
	Accepted []types.ExtractedBenchmark

	// Iterations counts completed search rounds. It never decreases and
	// never exceeds the analyzer's budget.
	Iterations int

	// Reason explains the most recent shortfall; GapNone once converged.
	Reason types.GapReason

	Discarded []Discard
}

// NewState returns a pending state for the category.
func NewState(category string) *State {
	return &State{Category: category, Status: StatusPending}
}

const (
	defaultThreshold     = 0.70
	defaultMaxIterations = 3
	defaultTolerance     = 0.05
)

// Analyzer applies the convergence policy to category states.
type Analyzer struct {
	// Threshold is the mean accepted confidence needed to converge.
	Threshold float64

	// MaxIterations bounds search rounds per category.
	MaxIterations int

	// Tolerance is the relative difference above which two values for the
	// same field are in conflict rather than corroborating.
	Tolerance float64

	log *slog.Logger
}

// NewAnalyzer builds an Analyzer from the research config, falling back to
// the stock thresholds (0.70 confidence, 3 iterations, 0.05 tolerance)
// where the config is zero. A nil logger uses slog.Default().
func NewAnalyzer(cfg types.ResearchConfig, log *slog.Logger) *Analyzer {
	a := &Analyzer{
		Threshold:     cfg.GapThreshold,
		MaxIterations: cfg.MaxIterations,
		Tolerance:     cfg.DedupTolerance,
		log:           log,
	}
	if a.Threshold <= 0 {
		a.Threshold = defaultThreshold
	}
	if a.MaxIterations <= 0 {
		a.MaxIterations = defaultMaxIterations
	}
	if a.Tolerance <= 0 {
		a.Tolerance = defaultTolerance
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	return a
}

// BeginIteration moves the state into searching and spends one round of
// the iteration budget. It returns false, leaving the state terminal, when
// the category is already decided or the budget is spent.
func (a *Analyzer) BeginIteration(s *State) bool {
	if s.Status.Terminal() {
		return false
	}
	if s.Iterations >= a.MaxIterations {
		s.Status = StatusExhausted
		return false
	}
	s.Iterations++
	s.Status = StatusSearching
	a.log.Debug("iteration started",
		"category", s.Category, "iteration", s.Iterations)
	return true
}

// Evaluate folds a round's extracted benchmarks into the state and decides
// the next transition: converged when the mean accepted confidence reaches
// the threshold, exhausted when the budget is spent, iterating otherwise.
//
// Conflicting values for the same field (relative difference beyond the
// tolerance) are resolved toward higher confidence, ties toward the more
// recent extraction; the loser goes to Discarded (R2.2-R2.3). Candidates
// with a confidence outside [0,1] are rejected with a warning.
func (a *Analyzer) Evaluate(s *State, candidates []types.ExtractedBenchmark) {
	s.Status = StatusEvaluating

	conflicted := false
	for _, cand := range candidates {
		if cand.Confidence < 0 || cand.Confidence > 1 {
			a.log.Warn("rejecting benchmark with out-of-range confidence",
				"category", s.Category, "field", cand.FieldName,
				"confidence", cand.Confidence)
			continue
		}
		if a.merge(s, cand) {
			conflicted = true
		}
	}

	agg := meanConfidence(s.Accepted)
	if len(s.Accepted) > 0 && agg >= a.Threshold {
		s.Status = StatusConverged
		s.Reason = types.GapNone
		a.log.Info("category converged",
			"category", s.Category, "iterations", s.Iterations,
			"confidence", agg, "benchmarks", len(s.Accepted))
		return
	}

	// Shortfall. The reason steers the next refinement round: an empty
	// evidence set outranks conflicts, conflicts outrank thin confidence.
	switch {
	case len(s.Accepted) == 0:
		s.Reason = types.GapNoResults
	case conflicted:
		s.Reason = types.GapConflictingValues
	default:
		s.Reason = types.GapLowConfidence
	}

	if s.Iterations >= a.MaxIterations {
		s.Status = StatusExhausted
		a.log.Info("category exhausted iteration budget",
			"category", s.Category, "iterations", s.Iterations,
			"confidence", agg, "reason", s.Reason)
		return
	}

	s.Status = StatusIterating
	a.log.Debug("category needs another round",
		"category", s.Category, "iteration", s.Iterations,
		"confidence", agg, "reason", s.Reason)
}

// Exhaust forces a non-terminal state to exhausted, keeping whatever was
// accepted so far. Used when the run deadline expires mid-category.
func (a *Analyzer) Exhaust(s *State) {
	if s.Status.Terminal() {
		return
	}
	s.Status = StatusExhausted
	if s.Reason == types.GapNone {
		if len(s.Accepted) == 0 {
			s.Reason = types.GapNoResults
		} else {
			s.Reason = types.GapLowConfidence
		}
	}
	a.log.Warn("category research cut off",
		"category", s.Category, "iterations", s.Iterations,
		"reason", s.Reason)
}

// merge folds one candidate into the accepted set, resolving conflicts.
// It reports whether the candidate conflicted with any accepted benchmark.
func (a *Analyzer) merge(s *State, cand types.ExtractedBenchmark) bool {
	conflicted := false
	candAlive := true
	kept := make([]types.ExtractedBenchmark, 0, len(s.Accepted)+1)

	for _, b := range s.Accepted {
		if !candAlive || b.FieldName != cand.FieldName ||
			relativeDiff(b.Value, cand.Value) <= a.Tolerance {
			kept = append(kept, b)
			continue
		}

		conflicted = true
		if beats(cand, b) {
			s.Discarded = append(s.Discarded, Discard{
				Benchmark: b,
				Reason:    displacedBy(cand),
			})
			continue // b dropped; cand keeps fighting
		}
		s.Discarded = append(s.Discarded, Discard{
			Benchmark: cand,
			Reason:    displacedBy(b),
		})
		candAlive = false
		kept = append(kept, b)
	}

	if candAlive {
		kept = append(kept, cand)
	}
	s.Accepted = kept
	return conflicted
}

// beats decides a conflict between two benchmarks for the same field:
// higher confidence wins, equal confidence goes to the more recent
// extraction.
func beats(x, y types.ExtractedBenchmark) bool {
	if x.Confidence != y.Confidence {
		return x.Confidence > y.Confidence
	}
	return x.ExtractedAt.After(y.ExtractedAt)
}

func displacedBy(winner types.ExtractedBenchmark) string {
	return fmt.Sprintf("conflicts with %s=%v (confidence %.2f, %s)",
		winner.FieldName, winner.Value, winner.Confidence, winner.SourceURL)
}

// relativeDiff is |a-b| scaled by the larger magnitude; two zeros are
// identical.
func relativeDiff(a, b float64) float64 {
	den := math.Max(math.Abs(a), math.Abs(b))
	if den == 0 {
		return 0
	}
	return math.Abs(a-b) / den
}

// meanConfidence is the aggregate used against the convergence threshold.
func meanConfidence(benchmarks []types.ExtractedBenchmark) float64 {
	if len(benchmarks) == 0 {
		return 0
	}
	var sum float64
	for _, b := range benchmarks {
		sum += b.Confidence
	}
	return sum / float64(len(benchmarks))
}
