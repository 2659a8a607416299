package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	yaml "go.yaml.in/yaml/v3"

	"github.com/pdiddy/feasibility-engine/internal/cache"
	"github.com/pdiddy/feasibility-engine/pkg/types"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the research cache",
	Long: `Cache inspects the sqlite research cache: stats summarizes entries by
category and freshness, show prints one entry by query hash, and mark-stale
forces an entry to be re-fetched on its next use.`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize cache entries by category and freshness",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.Stats(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("%d entries: %d fresh, %d stale, %d with synthesis\n",
			stats.Total, stats.Fresh(), stats.Stale, stats.WithSynthesis)

		categories := make([]string, 0, len(stats.ByCategory))
		for c := range stats.ByCategory {
			categories = append(categories, c)
		}
		sort.Strings(categories)
		for _, c := range categories {
			fmt.Printf("  %-20s %d\n", c, stats.ByCategory[c])
		}
		return nil
	},
}

var cacheShowCmd = &cobra.Command{
	Use:   "show <hash>",
	Short: "Print one cache entry by query hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		entry, found := store.Get(cmd.Context(), args[0])
		if !found {
			return fmt.Errorf("no cache entry for hash %s", args[0])
		}

		if yamlOut, _ := cmd.Flags().GetBool("yaml"); yamlOut {
			data, err := yaml.Marshal(entry)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(data)
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entry)
	},
}

var cacheMarkStaleCmd = &cobra.Command{
	Use:   "mark-stale <hash>",
	Short: "Force an entry to re-fetch on its next use",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.MarkStale(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("marked %s stale\n", args[0])
		return nil
	},
}

func openStore(cmd *cobra.Command) (*cache.Store, error) {
	return cache.NewStore(types.CacheConfig{
		Path:    settingString(cmd, "cache", "cache.path"),
		TTLDays: settingInt(cmd, "ttl-days", "cache.ttl_days"),
	}, cliLog, nil)
}

func init() {
	cacheCmd.PersistentFlags().String("cache", "research-cache.db", "sqlite cache file")
	cacheCmd.PersistentFlags().Int("ttl-days", 30, "default time-to-live for new entries in days")

	cacheShowCmd.Flags().Bool("yaml", false, "output the entry as YAML instead of JSON")

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheShowCmd)
	cacheCmd.AddCommand(cacheMarkStaleCmd)
	rootCmd.AddCommand(cacheCmd)
}
