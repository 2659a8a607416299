// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// BusinessContext describes the partnership under evaluation. Its fields
// fill the query templates for every research category.
// Per prd002-queries R1.2.
type BusinessContext struct {
	// PartnerType is the kind of partner being evaluated (e.g. "logistics provider").
	PartnerType string `json:"partner_type" yaml:"partner_type"`

	// Industry is the market vertical (e.g. "specialty coffee").
	Industry string `json:"industry" yaml:"industry"`

	// Location is the geographic scope (e.g. "Pacific Northwest").
	Location string `json:"location" yaml:"location"`
}

// ResearchQuery is a single search issued for a category during a run.
// Per prd002-queries R1.1.
type ResearchQuery struct {
	// Category is the research category the query serves (e.g. "pricing").
	Category string `json:"category" yaml:"category"`

	// Text is the query as sent to the search provider.
	Text string `json:"text" yaml:"text"`

	// Iteration is the zero-based iteration the query was generated in.
	Iteration int `json:"iteration" yaml:"iteration"`
}

// NormalizeQuery lowercases text and collapses runs of whitespace so that
// trivially different spellings of the same query share an identity.
// Per prd001-cache R2.1.
func NormalizeQuery(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// Hash returns the query's stable identity: the hex sha256 of the category
// and the normalized text. The same text under two categories hashes
// differently. Per prd001-cache R2.1, prd002-queries R3.1.
func (q ResearchQuery) Hash() string {
	sum := sha256.Sum256([]byte(q.Category + ":" + NormalizeQuery(q.Text)))
	return hex.EncodeToString(sum[:])
}

// RawSearchResult is one untouched result from a search provider.
// Per prd003-search R1.2.
type RawSearchResult struct {
	// Title is the result title as returned by the provider.
	Title string `json:"title" yaml:"title"`

	// URL is the result link. May be empty for malformed provider records.
	URL string `json:"url" yaml:"url"`

	// Snippet is the provider's text excerpt for the result.
	Snippet string `json:"snippet" yaml:"snippet"`

	// FetchedAt is when the result was retrieved, in UTC.
	FetchedAt time.Time `json:"fetched_at" yaml:"fetched_at"`
}

// ExtractedBenchmark is a numeric data point pulled out of a search result.
// Confidence is always within [0,1]; producers clamp or reject out-of-range
// values before a benchmark leaves the extraction stage.
// Per prd004-extraction R1.1, R2.4.
type ExtractedBenchmark struct {
	// FieldName identifies the metric (e.g. "price_range", "growth_rate").
	FieldName string `json:"field_name" yaml:"field_name"`

	// Category is the research category the benchmark belongs to.
	Category string `json:"category" yaml:"category"`

	// Value is the parsed numeric value. Rates are decimals (0.12 for 12%).
	Value float64 `json:"value" yaml:"value"`

	// Unit is the currency code or unit of measure ("USD", "percent").
	Unit string `json:"unit" yaml:"unit"`

	// Confidence scores how trustworthy the extraction is, in [0,1].
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// SourceURL is the URL of the result the benchmark came from.
	SourceURL string `json:"source_url" yaml:"source_url"`

	// ExtractedAt is the FetchedAt of the originating result, in UTC.
	ExtractedAt time.Time `json:"extracted_at" yaml:"extracted_at"`
}

// GapReason explains why a category's evidence was judged insufficient.
// It steers the next refinement round and is carried on degraded findings.
// Per prd005-gap-analysis R3.2.
type GapReason string

const (
	// GapNone marks a category whose evidence was sufficient.
	GapNone GapReason = ""

	// GapNoResults means no benchmark at all was accepted this round.
	GapNoResults GapReason = "no_results"

	// GapConflictingValues means sources disagreed on the same field
	// beyond tolerance; refinement seeks corroboration.
	GapConflictingValues GapReason = "conflicting_values"

	// GapLowConfidence means benchmarks exist but their aggregate
	// confidence is below the gap threshold.
	GapLowConfidence GapReason = "low_confidence"

	// GapNoData marks a finalized category that produced no usable
	// benchmark; the finding carries a configured default or is empty.
	GapNoData GapReason = "no_data_available"
)

// Citation records one source that contributed to a finding.
// Per prd006-synthesis R4.1.
type Citation struct {
	// SourceURL is the cited page.
	SourceURL string `json:"source_url" yaml:"source_url"`

	// Confidence is the highest confidence of any benchmark from this source.
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// ExtractedAt is when the cited result was fetched, in UTC.
	ExtractedAt time.Time `json:"extracted_at" yaml:"extracted_at"`
}

// ResearchFinding is the synthesized answer for one category.
// Per prd006-synthesis R1-R3.
type ResearchFinding struct {
	// Category is the research category the finding answers.
	Category string `json:"category" yaml:"category"`

	// Benchmarks are the deduplicated data points backing the finding.
	// Empty only when GapReason is "no_data_available".
	Benchmarks []ExtractedBenchmark `json:"benchmarks" yaml:"benchmarks"`

	// OverallConfidence is the weakest confidence among Benchmarks, so a
	// finding is only as strong as its least-supported data point.
	OverallConfidence float64 `json:"overall_confidence" yaml:"overall_confidence"`

	// Sources lists the distinct URLs the benchmarks came from.
	Sources []Citation `json:"sources" yaml:"sources"`

	// Degraded marks findings produced without convergence (budget
	// exhaustion, no data, stale-cache-only evidence).
	Degraded bool `json:"degraded" yaml:"degraded"`

	// DefaultUsed marks findings backed by a configured default benchmark
	// rather than extracted data.
	DefaultUsed bool `json:"default_used,omitempty" yaml:"default_used,omitempty"`

	// GapReason explains why the category did not converge, if it didn't.
	GapReason GapReason `json:"gap_reason,omitempty" yaml:"gap_reason,omitempty"`
}

// ReportSummary aggregates a finished run.
// Per prd007-orchestration R4.3.
type ReportSummary struct {
	// TotalFindings counts categories that produced a finding (all of them).
	TotalFindings int `json:"total_findings" yaml:"total_findings"`

	// UniqueSources counts distinct source URLs across all findings.
	UniqueSources int `json:"unique_sources" yaml:"unique_sources"`

	// DegradedCategories counts findings flagged Degraded.
	DegradedCategories int `json:"degraded_categories" yaml:"degraded_categories"`

	// MeanConfidence is the average OverallConfidence across findings.
	MeanConfidence float64 `json:"mean_confidence" yaml:"mean_confidence"`
}
