package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lueurxax/gnews-link-resolver/internal/app"
	"github.com/lueurxax/gnews-link-resolver/internal/platform/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	flagLogLevel     string
	flagCacheBackend string
	flagCachePath    string
	flagSources      string
)

var rootCmd = &cobra.Command{
	Use:   "gnews-resolver",
	Short: "Resolve Google News redirect links to publisher URLs",
	Long: `gnews-resolver turns news.google.com/rss/articles/... redirect links into the
URLs of the original articles. It decodes the identifier offline when it can,
falls back to the aggregator's RPC endpoint, and finally to following the
redirect. Results are cached.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagCacheBackend, "cache-backend", "", "override GNEWS_CACHE_BACKEND (file, postgres)")
	rootCmd.PersistentFlags().StringVar(&flagCachePath, "cache-path", "", "override GNEWS_CACHE_PATH")
	rootCmd.PersistentFlags().StringVar(&flagSources, "sources", "", "override GNEWS_SOURCES_FILE")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(feedCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(migrateCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "gnews-resolver %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}

	if flagCacheBackend != "" {
		cfg.CacheBackend = flagCacheBackend
	}

	if flagCachePath != "" {
		cfg.CachePath = flagCachePath
	}

	if flagSources != "" {
		cfg.SourcesFile = flagSources
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return cfg, nil
}

// openApp loads the configuration, sets up logging and opens the cache.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	setLogLevel(cfg.LogLevel)

	logger := newLogger(cfg.AppEnv)

	application, err := app.New(ctx, cfg, &logger)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	return application, nil
}
