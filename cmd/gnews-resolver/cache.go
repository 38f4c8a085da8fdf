package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lueurxax/gnews-link-resolver/internal/platform/config"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the result cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		application, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer application.Close()

		st, err := application.CacheStats(cmd.Context())
		if err != nil {
			return fmt.Errorf("reading stats: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Backend: %s\n", st.Backend)
		fmt.Fprintf(out, "Location: %s\n", st.Location)
		fmt.Fprintf(out, "Entries: %d/%d\n", st.Entries, st.MaxEntries)
		fmt.Fprintf(out, "TTL: %s\n", st.TTL)

		if st.Oldest != nil && st.Newest != nil {
			fmt.Fprintf(out, "Oldest: %s\n", st.Oldest.Format(time.RFC3339))
			fmt.Fprintf(out, "Newest: %s\n", st.Newest.Format(time.RFC3339))
		}

		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached resolution",
	RunE: func(cmd *cobra.Command, _ []string) error {
		application, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer application.Close()

		if err := application.ClearCache(cmd.Context()); err != nil {
			return fmt.Errorf("clearing cache: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared.")

		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations for the postgres cache backend",
	RunE: func(cmd *cobra.Command, _ []string) error {
		flagCacheBackend = config.CacheBackendPostgres

		application, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer application.Close()

		fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied.")

		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
