package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout (default 30s).
	// Per prd003-search R3.1.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "feasibility-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// SearchConfig holds settings for the search provider client.
// Per prd003-search R1.3, R3.1-R3.3.
type SearchConfig struct {
	HTTPConfig `yaml:",inline"`

	// Provider selects the search backend: tavily or brave (default tavily).
	Provider string `json:"provider" yaml:"provider"`

	// MaxResults is the maximum number of results per query (default 5).
	MaxResults int `json:"max_results" yaml:"max_results"`

	// APIKey is the provider API key.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
}

// CacheConfig holds settings for the persistent research cache.
// Per prd001-cache R1.1-R1.3.
type CacheConfig struct {
	// Path is the sqlite database file (e.g. "research-cache.db").
	Path string `json:"path" yaml:"path"`

	// TTLDays is the default time-to-live for new entries (default 30).
	TTLDays int `json:"ttl_days" yaml:"ttl_days"`
}

// AIConfig holds shared settings for stages that call a Generative AI API.
type AIConfig struct {
	// Model is the AI model identifier (e.g. "claude-sonnet-4-5-20250929").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxRetries is the number of retry attempts for failed API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// DefaultBenchmark is a configured fallback emitted when a category yields
// no data at all. Per prd006-synthesis R3.2.
type DefaultBenchmark struct {
	// FieldName identifies the metric the default stands in for.
	FieldName string `json:"field_name" yaml:"field_name"`

	// Value is the fallback value.
	Value float64 `json:"value" yaml:"value"`

	// Unit is the currency code or unit of measure.
	Unit string `json:"unit" yaml:"unit"`

	// SourceURL names where the default came from (a report, a config note).
	SourceURL string `json:"source_url,omitempty" yaml:"source_url,omitempty"`
}

// ResearchConfig holds settings for the research run itself.
// Per prd005-gap-analysis R4.1, prd007-orchestration R1-R2.
type ResearchConfig struct {
	// Categories are the research categories to investigate. Defaults to
	// pricing, market_size, growth_rate, operational_costs.
	Categories []string `json:"categories" yaml:"categories"`

	// GapThreshold is the aggregate confidence a category must reach to
	// converge (default 0.70).
	GapThreshold float64 `json:"gap_threshold" yaml:"gap_threshold"`

	// MaxIterations bounds refinement rounds per category (default 3).
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`

	// MaxConcurrent bounds simultaneous external calls across all
	// categories (default 4, keep within 3-5).
	MaxConcurrent int64 `json:"max_concurrent" yaml:"max_concurrent"`

	// IterationTimeout is the time allotted to one iteration when sizing
	// the per-report deadline (default 2m).
	IterationTimeout time.Duration `json:"iteration_timeout" yaml:"iteration_timeout"`

	// Slack is added to the per-report deadline on top of
	// IterationTimeout * MaxIterations (default 30s).
	Slack time.Duration `json:"slack" yaml:"slack"`

	// DedupTolerance is the relative difference under which two values for
	// the same field count as the same value (default 0.05).
	DedupTolerance float64 `json:"dedup_tolerance" yaml:"dedup_tolerance"`

	// Defaults maps category names to fallback benchmarks for the
	// no-data-available case.
	Defaults map[string]DefaultBenchmark `json:"defaults,omitempty" yaml:"defaults,omitempty"`
}

// PipelineConfig groups all stage configurations for a run.
type PipelineConfig struct {
	Cache    CacheConfig    `json:"cache" yaml:"cache"`
	Search   SearchConfig   `json:"search" yaml:"search"`
	Research ResearchConfig `json:"research" yaml:"research"`
	AI       AIConfig       `json:"ai" yaml:"ai"`
}
