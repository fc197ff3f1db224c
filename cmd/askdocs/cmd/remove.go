package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <filename-or-id>...",
		Short: "Remove documents from the corpus",
		Long: `Remove previously added documents by filename or document ID.

Passages shared with other documents stay in the corpus; passages unique
to the removed document are deleted.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer app.Close()

			var failed int
			for _, ref := range args {
				if err := app.ingestor.Remove(cmd.Context(), ref); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "failed   %s: %v\n", ref, err)
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed  %s\n", ref)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d documents could not be removed", failed, len(args))
			}
			return nil
		},
	}
}
