// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package synthesis turns a category's final research state into a
// ResearchFinding. Aggregation is deterministic: the same state always
// yields the same finding, so warm-cache reruns reproduce reports exactly.
// Implements: prd006-synthesis (R1-R4);
//
//	docs/ARCHITECTURE § Synthesis.
package synthesis

import (
	"fmt"
	"math"
	"os"
	"sort"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/feasibility-engine/internal/gap"
	"github.com/pdiddy/feasibility-engine/pkg/types"
)

const defaultTolerance = 0.05

// Synthesize builds the finding for one finished category. Near-identical
// values for the same field are deduplicated keeping the highest
// confidence; OverallConfidence is the MINIMUM over the final benchmarks,
// so a finding is never more confident than its weakest data point (R2.2).
//
// A category with nothing accepted falls back to the configured default
// benchmark when one exists, otherwise an empty finding; both are flagged
// Degraded with reason no_data_available and zero confidence (R3.1-R3.3).
func Synthesize(category string, state *gap.State, cfg types.ResearchConfig) types.ResearchFinding {
	tolerance := cfg.DedupTolerance
	if tolerance <= 0 {
		tolerance = defaultTolerance
	}

	benchmarks := dedupe(state.Accepted, tolerance)
	if len(benchmarks) == 0 {
		return noDataFinding(category, cfg)
	}

	finding := types.ResearchFinding{
		Category:          category,
		Benchmarks:        benchmarks,
		OverallConfidence: minConfidence(benchmarks),
		Sources:           citations(benchmarks),
		GapReason:         state.Reason,
	}
	if state.Status == gap.StatusExhausted {
		finding.Degraded = true
	}
	return finding
}

// noDataFinding is the fallback for a category that produced no usable
// benchmark across all its iterations.
func noDataFinding(category string, cfg types.ResearchConfig) types.ResearchFinding {
	finding := types.ResearchFinding{
		Category:  category,
		Degraded:  true,
		GapReason: types.GapNoData,
	}

	def, ok := cfg.Defaults[category]
	if !ok {
		return finding
	}

	finding.DefaultUsed = true
	finding.Benchmarks = []types.ExtractedBenchmark{{
		FieldName: def.FieldName,
		Category:  category,
		Value:     def.Value,
		Unit:      def.Unit,
		SourceURL: def.SourceURL,
	}}
	return finding
}

// dedupe collapses near-identical values for the same field, keeping the
// highest-confidence one (ties go to the more recent extraction). Output
// order is field name then value, so findings are stable across runs.
func dedupe(benchmarks []types.ExtractedBenchmark, tolerance float64) []types.ExtractedBenchmark {
	ranked := make([]types.ExtractedBenchmark, len(benchmarks))
	copy(ranked, benchmarks)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Confidence != ranked[j].Confidence {
			return ranked[i].Confidence > ranked[j].Confidence
		}
		return ranked[i].ExtractedAt.After(ranked[j].ExtractedAt)
	})

	kept := make([]types.ExtractedBenchmark, 0, len(ranked))
	for _, cand := range ranked {
		dup := false
		for _, k := range kept {
			if k.FieldName == cand.FieldName && relativeDiff(k.Value, cand.Value) <= tolerance {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, cand)
		}
	}

	sort.Slice(kept, func(i, j int) bool {
		if kept[i].FieldName != kept[j].FieldName {
			return kept[i].FieldName < kept[j].FieldName
		}
		return kept[i].Value < kept[j].Value
	})
	return kept
}

// citations lists the distinct source URLs behind the benchmarks, each
// carrying the strongest confidence it contributed. Benchmarks whose
// source URL was unusable are already confidence-penalized; an empty URL
// is not worth citing.
func citations(benchmarks []types.ExtractedBenchmark) []types.Citation {
	byURL := make(map[string]types.Citation)
	for _, b := range benchmarks {
		if b.SourceURL == "" {
			continue
		}
		c, ok := byURL[b.SourceURL]
		if !ok || b.Confidence > c.Confidence {
			byURL[b.SourceURL] = types.Citation{
				SourceURL:   b.SourceURL,
				Confidence:  b.Confidence,
				ExtractedAt: b.ExtractedAt,
			}
		}
	}

	out := make([]types.Citation, 0, len(byURL))
	for _, c := range byURL {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceURL < out[j].SourceURL })
	return out
}

func minConfidence(benchmarks []types.ExtractedBenchmark) float64 {
	low := math.Inf(1)
	for _, b := range benchmarks {
		if b.Confidence < low {
			low = b.Confidence
		}
	}
	if math.IsInf(low, 1) {
		return 0
	}
	return low
}

func relativeDiff(a, b float64) float64 {
	den := math.Max(math.Abs(a), math.Abs(b))
	if den == 0 {
		return 0
	}
	return math.Abs(a-b) / den
}

// LoadDefaults reads a YAML file mapping category names to fallback
// benchmarks, e.g.:
//
//	pricing:
//	  field_name: average_price
//	  value: 75
//	  unit: USD
//	  source_url: https://example.com/2024-industry-report
func LoadDefaults(path string) (map[string]types.DefaultBenchmark, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading defaults file: %w", err)
	}
	defaults := make(map[string]types.DefaultBenchmark)
	if err := yaml.Unmarshal(data, &defaults); err != nil {
		return nil, fmt.Errorf("parsing defaults file: %w", err)
	}
	for category, def := range defaults {
		d := def
		d.FieldName = firstNonEmpty(d.FieldName, category)
		defaults[category] = d
	}
	return defaults, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Summarize aggregates the per-category findings for the report header:
// finding count, distinct sources, degraded categories, and the mean
// overall confidence (R4.3).
func Summarize(findings []types.ResearchFinding) types.ReportSummary {
	summary := types.ReportSummary{TotalFindings: len(findings)}

	urls := make(map[string]struct{})
	var confidenceSum float64
	for _, f := range findings {
		for _, c := range f.Sources {
			urls[c.SourceURL] = struct{}{}
		}
		if f.Degraded {
			summary.DegradedCategories++
		}
		confidenceSum += f.OverallConfidence
	}

	summary.UniqueSources = len(urls)
	if len(findings) > 0 {
		summary.MeanConfidence = confidenceSum / float64(len(findings))
	}
	return summary
}
