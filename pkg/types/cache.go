// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// CacheEntry is one cached search, keyed by the query's stable hash.
// Entries are upserted, never deleted; staleness is computed when an entry
// is read, so writing never rewrites history. Per prd001-cache R1.1, R2.2.
type CacheEntry struct {
	// QueryHash is the ResearchQuery.Hash of the originating query.
	QueryHash string `json:"query_hash" yaml:"query_hash"`

	// Category is the research category the query belonged to.
	Category string `json:"category" yaml:"category"`

	// QueryText is the original (unnormalized) query text, kept for
	// inspection and narrative synthesis.
	QueryText string `json:"query_text" yaml:"query_text"`

	// CachedAt is when the entry was last written, in UTC.
	CachedAt time.Time `json:"cached_at" yaml:"cached_at"`

	// TTLDays is the entry's time-to-live in days (default 30).
	TTLDays int `json:"ttl_days" yaml:"ttl_days"`

	// Results are the raw search results captured at fetch time.
	Results []RawSearchResult `json:"results" yaml:"results"`

	// Synthesis is an optional narrative written back after a run.
	Synthesis string `json:"synthesis,omitempty" yaml:"synthesis,omitempty"`

	// Stale reports whether the entry is past its TTL or was explicitly
	// marked stale. Stale entries are still served, flagged.
	Stale bool `json:"stale" yaml:"stale"`
}

// ExpiredAt reports whether the entry's age exceeds its TTL as of now.
// A zero or negative TTL means the entry never expires by age.
func (e CacheEntry) ExpiredAt(now time.Time) bool {
	if e.TTLDays <= 0 {
		return false
	}
	return now.Sub(e.CachedAt) > time.Duration(e.TTLDays)*24*time.Hour
}
