package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <file>...",
		Short: "Add documents to the corpus",
		Long: `Add one or more documents to the corpus.

Supported formats: plain text (.txt), Markdown (.md), and PDF (.pdf).
Re-adding an unchanged file is a no-op; a changed file replaces its
previous version. Identical passages across documents are stored once.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer app.Close()

			reports, failures := app.ingestor.IngestPaths(cmd.Context(), args)

			out := cmd.OutOrStdout()
			for _, r := range reports {
				switch {
				case r.Skipped:
					fmt.Fprintf(out, "unchanged  %s\n", r.Filename)
				case r.Superseded != "":
					fmt.Fprintf(out, "updated    %s (%d passages, %d shared)\n",
						r.Filename, r.Passages, r.Deduplicated)
				default:
					fmt.Fprintf(out, "added      %s (%d passages, %d shared)\n",
						r.Filename, r.Passages, r.Deduplicated)
				}
			}
			for path, ferr := range failures {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed     %s: %v\n", path, ferr)
			}
			if len(failures) > 0 {
				return fmt.Errorf("%d of %d files failed", len(failures), len(args))
			}
			return nil
		},
	}
}
