// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the feasibility-engine CLI.
// Implements: prd008-cli (research, cache, version surfaces).
// See docs/ARCHITECTURE § Pipeline Interface, § Project Structure.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/feasibility-engine/internal/logger"
	"github.com/pdiddy/feasibility-engine/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// cliLog is the process logger; level comes from LOG_LEVEL (default info).
var cliLog *slog.Logger

// secretDefault returns fallback when it is set, otherwise the named
// secret from .secrets/ or the environment, otherwise "".
func secretDefault(name, fallback string) string {
	if fallback != "" {
		return fallback
	}
	return secrets.Lookup(loadedSecrets, name)
}

// rootCmd is the base command for the feasibility-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "feasibility-engine",
	Short: "Iterative market research for partnership feasibility",
	Long: `feasibility-engine evaluates partnership feasibility through iterative market
research. For each research category (pricing, market size, growth rate,
operational costs) it generates search queries, resolves them through a
TTL sqlite cache or a live search provider, extracts numeric benchmarks,
re-queries categories whose evidence is weak, and synthesizes findings
with citations.

The research subcommand runs a full report; cache inspects and maintains
the store.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cliLog = logger.New("feasibility-engine")

		s, err := secrets.Load(".secrets/", cliLog)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./feasibility-engine.yaml or ~/.config/feasibility-engine/config.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("feasibility-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "feasibility-engine"))
		}
	}

	viper.SetEnvPrefix("FEASIBILITY_ENGINE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// Flag-else-config resolution: an explicitly set flag wins, then a set
// config-file key, then the flag's default.

func settingString(cmd *cobra.Command, flag, key string) string {
	if !cmd.Flags().Changed(flag) && viper.IsSet(key) {
		return viper.GetString(key)
	}
	v, _ := cmd.Flags().GetString(flag)
	return v
}

func settingInt(cmd *cobra.Command, flag, key string) int {
	if !cmd.Flags().Changed(flag) && viper.IsSet(key) {
		return viper.GetInt(key)
	}
	v, _ := cmd.Flags().GetInt(flag)
	return v
}

func settingFloat(cmd *cobra.Command, flag, key string) float64 {
	if !cmd.Flags().Changed(flag) && viper.IsSet(key) {
		return viper.GetFloat64(key)
	}
	v, _ := cmd.Flags().GetFloat64(flag)
	return v
}

func settingDuration(cmd *cobra.Command, flag, key string) time.Duration {
	if !cmd.Flags().Changed(flag) && viper.IsSet(key) {
		return viper.GetDuration(key)
	}
	v, _ := cmd.Flags().GetDuration(flag)
	return v
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
