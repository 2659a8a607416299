package types

// OutcomeStatus tags how a fetch was satisfied. Callers branch on the tag
// instead of probing magic values. Per prd003-search R4.1.
type OutcomeStatus string

const (
	// OutcomeSuccess means fresh results: a live fetch or a fresh cache hit.
	OutcomeSuccess OutcomeStatus = "success"

	// OutcomeDegraded means usable but second-rate results, e.g. a stale
	// cache entry served because the live fetch failed.
	OutcomeDegraded OutcomeStatus = "degraded"

	// OutcomeUnavailable means no results could be produced at all.
	OutcomeUnavailable OutcomeStatus = "unavailable"
)

// SearchOutcome is the tagged result of resolving one query through the
// cache-then-live pipeline. Per prd003-search R4.1-R4.3.
type SearchOutcome struct {
	// Status tags the outcome variant.
	Status OutcomeStatus `json:"status" yaml:"status"`

	// Reason qualifies degraded and unavailable outcomes
	// (e.g. "stale_cache", "search_unavailable").
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`

	// Results are the search results, possibly empty. Empty results under
	// OutcomeSuccess are a valid answer, not an error.
	Results []RawSearchResult `json:"results" yaml:"results"`

	// Cached reports whether Results came from the cache.
	Cached bool `json:"cached" yaml:"cached"`
}

// FetchSuccess builds a success outcome.
func FetchSuccess(results []RawSearchResult, cached bool) SearchOutcome {
	return SearchOutcome{Status: OutcomeSuccess, Results: results, Cached: cached}
}

// FetchDegraded builds a degraded outcome carrying fallback results.
func FetchDegraded(results []RawSearchResult, reason string) SearchOutcome {
	return SearchOutcome{Status: OutcomeDegraded, Reason: reason, Results: results, Cached: true}
}

// FetchUnavailable builds an empty outcome for a query nothing could serve.
func FetchUnavailable(reason string) SearchOutcome {
	return SearchOutcome{Status: OutcomeUnavailable, Reason: reason}
}
