package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var errNoLinks = errors.New("no links given; pass urls or --stdin")

var (
	flagStdin bool
	flagJSON  bool
)

type resolveOutput struct {
	URL      string `json:"url"`
	Link     string `json:"link"`
	Resolved bool   `json:"resolved"`
}

var resolveCmd = &cobra.Command{
	Use:   "resolve [url...]",
	Short: "Resolve redirect links",
	Long: `Print the publisher URL for each redirect link given as an argument. Links
that cannot be resolved are printed unchanged.

With --stdin, read free text from standard input and rewrite every redirect
link found in it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !flagStdin && len(args) == 0 {
			return errNoLinks
		}

		application, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer application.Close()

		out := cmd.OutOrStdout()

		if flagStdin {
			text, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}

			_, err = io.WriteString(out, application.ResolveText(cmd.Context(), string(text)))

			return err
		}

		enc := json.NewEncoder(out)
		enc.SetEscapeHTML(false)

		for _, link := range args {
			resolved, ok := application.Resolve(cmd.Context(), link)
			if !ok {
				resolved = link
			}

			if flagJSON {
				if err := enc.Encode(resolveOutput{URL: link, Link: resolved, Resolved: ok}); err != nil {
					return err
				}

				continue
			}

			fmt.Fprintln(out, resolved)
		}

		return nil
	},
}

func init() {
	resolveCmd.Flags().BoolVar(&flagStdin, "stdin", false, "rewrite links in text read from stdin")
	resolveCmd.Flags().BoolVar(&flagJSON, "json", false, "print one JSON object per link")
}
