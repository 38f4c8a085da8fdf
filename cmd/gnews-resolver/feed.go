package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lueurxax/gnews-link-resolver/internal/feed"
)

var (
	flagSource    string
	flagFeedSince string
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Process the configured feed sources once",
	Long: `Fetch every source marked clean in the sources file and print its items as
JSON, with redirect links replaced by publisher URLs.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var since time.Time

		if flagFeedSince != "" {
			t, err := feed.ParseSince(flagFeedSince, time.Now())
			if err != nil {
				return fmt.Errorf("invalid --since value: %w", err)
			}

			since = t
		}

		application, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer application.Close()

		results, err := application.RunFeeds(cmd.Context(), flagSource, since)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")

		if encErr := enc.Encode(results); encErr != nil {
			return encErr
		}

		if err != nil {
			return fmt.Errorf("processing feeds: %w", err)
		}

		return nil
	},
}

func init() {
	feedCmd.Flags().StringVar(&flagSource, "source", "", "process only the source with this id or url")
	feedCmd.Flags().StringVar(&flagFeedSince, "since", "", "skip items published before (e.g., 7d, 24h, 2024-05-01)")
}
