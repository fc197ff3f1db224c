package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/askdocs/askdocs/internal/ingest"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <directory>",
		Short: "Keep a directory in sync with the corpus",
		Long: `Watch a directory and keep the corpus in sync with it.

Existing supported files are ingested on start. New and modified files
are ingested as they appear; deleted files are removed from the corpus.
Runs until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer app.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl-C to stop)\n", args[0])

			watcher := ingest.NewWatcher(app.ingestor, args[0], nil)
			err = watcher.Run(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
