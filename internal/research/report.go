// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package research

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pdiddy/feasibility-engine/pkg/types"
)

// Report is the finished product of one research run.
type Report struct {
	// RunID is a fresh UUID identifying the run in logs and output.
	RunID string `json:"run_id" yaml:"run_id"`

	// Context is the business context the run researched.
	Context types.BusinessContext `json:"context" yaml:"context"`

	StartedAt   time.Time `json:"started_at" yaml:"started_at"`
	CompletedAt time.Time `json:"completed_at" yaml:"completed_at"`

	// Findings holds one entry per configured category, in config order.
	Findings []types.ResearchFinding `json:"findings" yaml:"findings"`

	Summary types.ReportSummary `json:"summary" yaml:"summary"`
	Stats   RunStats            `json:"stats" yaml:"stats"`
}

// FormatTable writes the report as a human-readable table, one row per
// benchmark, with degraded findings flagged inline.
func FormatTable(r *Report, w io.Writer) {
	fmt.Fprintf(w, "Run %s  %s / %s / %s\n\n",
		r.RunID, r.Context.PartnerType, r.Context.Industry, r.Context.Location)

	if len(r.Findings) == 0 {
		fmt.Fprintln(w, "No findings.")
		return
	}

	fmt.Fprintf(w, "%-20s  %-26s  %12s  %-8s  %-5s  %s\n",
		"Category", "Field", "Value", "Unit", "Conf", "Flags")
	fmt.Fprintln(w, strings.Repeat("-", 90))

	for _, f := range r.Findings {
		if len(f.Benchmarks) == 0 {
			fmt.Fprintf(w, "%-20s  %-26s  %12s  %-8s  %-5s  %s\n",
				f.Category, "(no data)", "", "", "", findingFlags(f))
			continue
		}
		for i, b := range f.Benchmarks {
			flags := ""
			if i == 0 {
				flags = findingFlags(f)
			}
			fmt.Fprintf(w, "%-20s  %-26s  %12s  %-8s  %-5.2f  %s\n",
				f.Category, truncate(b.FieldName, 26), formatValue(b.Value),
				truncate(b.Unit, 8), b.Confidence, flags)
		}
	}

	fmt.Fprintf(w, "\n%d findings, %d sources, %d degraded; mean confidence %.2f\n",
		r.Summary.TotalFindings, r.Summary.UniqueSources,
		r.Summary.DegradedCategories, r.Summary.MeanConfidence)
	fmt.Fprintf(w, "%d queries issued, %d external calls, %d cache hits, %d stale hits\n",
		r.Stats.QueriesIssued, r.Stats.ExternalCalls,
		r.Stats.CacheHits, r.Stats.StaleHits)
}

// FormatJSON writes the whole report as indented JSON.
func FormatJSON(r *Report, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func findingFlags(f types.ResearchFinding) string {
	var flags []string
	if f.DefaultUsed {
		flags = append(flags, "default")
	} else if f.Degraded {
		flags = append(flags, "degraded")
	}
	if f.GapReason != types.GapNone {
		flags = append(flags, string(f.GapReason))
	}
	return strings.Join(flags, " ")
}

// formatValue keeps small numbers readable and large ones compact.
func formatValue(v float64) string {
	if v == float64(int64(v)) && v < 1e12 {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
