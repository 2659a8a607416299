package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/feasibility-engine/internal/cache"
	"github.com/pdiddy/feasibility-engine/internal/completion"
	"github.com/pdiddy/feasibility-engine/internal/research"
	"github.com/pdiddy/feasibility-engine/internal/search"
	"github.com/pdiddy/feasibility-engine/internal/synthesis"
	"github.com/pdiddy/feasibility-engine/pkg/types"
)

var researchCmd = &cobra.Command{
	Use:   "research",
	Short: "Run a full feasibility research report",
	Long: `Research generates search queries for each category, resolves them through
the TTL cache or the live search provider, extracts numeric benchmarks,
iterates on categories below the confidence threshold, and prints the
synthesized report with citations.

Degraded findings (exhausted iteration budget, stale-only evidence,
configured defaults) are flagged in the output rather than failing the run.`,
	RunE: runResearch,
}

func init() {
	f := researchCmd.Flags()
	f.String("partner-type", "", "partner type under evaluation (required)")
	f.String("industry", "", "industry vertical (required)")
	f.String("location", "", "geographic scope (required)")
	f.StringSlice("categories", nil, "research categories (default: pricing, market_size, growth_rate, operational_costs)")
	f.String("cache", "research-cache.db", "sqlite cache file")
	f.Int("ttl-days", 30, "cache entry time-to-live in days")
	f.String("provider", "tavily", "search provider: tavily or brave")
	f.String("api-key", "", "search provider API key (default: .secrets/<provider>-api-key)")
	f.Int("max-results", 5, "maximum results per query")
	f.Duration("timeout", 30*time.Second, "per-request search timeout")
	f.Float64("gap-threshold", 0.70, "aggregate confidence a category needs to converge")
	f.Int("max-iterations", 3, "maximum research rounds per category")
	f.Int("max-concurrent", 4, "maximum simultaneous external searches")
	f.String("defaults", "", "YAML file of per-category fallback benchmarks")
	f.Bool("refine", false, "use the Claude API for query refinement and narratives")
	f.String("model", "", "Claude model for --refine")
	f.Bool("json", false, "output the report as JSON")

	_ = researchCmd.MarkFlagRequired("partner-type")
	_ = researchCmd.MarkFlagRequired("industry")
	_ = researchCmd.MarkFlagRequired("location")

	rootCmd.AddCommand(researchCmd)
}

func runResearch(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	partnerType, _ := flags.GetString("partner-type")
	industry, _ := flags.GetString("industry")
	location, _ := flags.GetString("location")
	biz := types.BusinessContext{PartnerType: partnerType, Industry: industry, Location: location}

	store, err := cache.NewStore(types.CacheConfig{
		Path:    settingString(cmd, "cache", "cache.path"),
		TTLDays: settingInt(cmd, "ttl-days", "cache.ttl_days"),
	}, cliLog, nil)
	if err != nil {
		return err
	}
	defer store.Close()

	searchCfg := types.SearchConfig{
		Provider:   settingString(cmd, "provider", "search.provider"),
		MaxResults: settingInt(cmd, "max-results", "search.max_results"),
	}
	searchCfg.Timeout = settingDuration(cmd, "timeout", "search.timeout")

	provider, err := buildProvider(searchCfg.Provider, settingString(cmd, "api-key", "search.api_key"))
	if err != nil {
		return err
	}
	client := search.NewClient(provider, searchCfg, cliLog)

	var completer completion.Client
	if refine, _ := flags.GetBool("refine"); refine {
		key := secretDefault("anthropic-api-key", viper.GetString("ai.api_key"))
		if key == "" {
			return fmt.Errorf("--refine needs an Anthropic API key in .secrets/anthropic-api-key or $ANTHROPIC_API_KEY")
		}
		completer = &completion.ClaudeClient{
			APIKey:     key,
			Model:      settingString(cmd, "model", "ai.model"),
			MaxRetries: viper.GetInt("ai.max_retries"),
		}
	}

	researchCfg := types.ResearchConfig{
		GapThreshold:  settingFloat(cmd, "gap-threshold", "research.gap_threshold"),
		MaxIterations: settingInt(cmd, "max-iterations", "research.max_iterations"),
		MaxConcurrent: int64(settingInt(cmd, "max-concurrent", "research.max_concurrent")),
	}
	researchCfg.Categories, _ = flags.GetStringSlice("categories")

	// Deadline sizing and dedup tolerance have no flags; the config file
	// can still tune them.
	researchCfg.IterationTimeout = viper.GetDuration("research.iteration_timeout")
	researchCfg.Slack = viper.GetDuration("research.slack")
	researchCfg.DedupTolerance = viper.GetFloat64("research.dedup_tolerance")

	if path := settingString(cmd, "defaults", "research.defaults_file"); path != "" {
		defaults, err := synthesis.LoadDefaults(path)
		if err != nil {
			return err
		}
		researchCfg.Defaults = defaults
	}

	engine := research.NewEngine(store, client, completer, researchCfg, cliLog)
	report, err := engine.Run(cmd.Context(), biz)
	if err != nil {
		return err
	}

	if jsonOut, _ := flags.GetBool("json"); jsonOut {
		return research.FormatJSON(report, os.Stdout)
	}
	research.FormatTable(report, os.Stdout)
	return nil
}

// buildProvider selects the search backend and resolves its API key from
// the flag or config, then .secrets/<provider>-api-key, then the environment.
func buildProvider(name, apiKey string) (search.Provider, error) {
	switch name {
	case "tavily":
		return &search.TavilyProvider{APIKey: secretDefault("tavily-api-key", apiKey)}, nil
	case "brave":
		return &search.BraveProvider{APIKey: secretDefault("brave-api-key", apiKey)}, nil
	default:
		return nil, fmt.Errorf("unknown search provider %q (want tavily or brave)", name)
	}
}
