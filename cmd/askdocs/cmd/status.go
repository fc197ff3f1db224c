package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/askdocs/askdocs/internal/store"
)

// statusInfo is the status command's output shape.
type statusInfo struct {
	DataDir   string           `json:"data_dir"`
	Stats     store.Stats      `json:"stats"`
	Documents []store.Document `json:"documents"`
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show corpus contents and health",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer app.Close()

			info := statusInfo{
				DataDir:   cfg.DataDir,
				Stats:     app.corpus.Stats(),
				Documents: app.corpus.Documents(),
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}

			fmt.Fprintf(out, "Data directory: %s\n", info.DataDir)
			fmt.Fprintf(out, "Documents:      %d\n", info.Stats.Documents)
			fmt.Fprintf(out, "Passages:       %d unique (%d total occurrences)\n",
				info.Stats.Entries, info.Stats.Provenances)
			fmt.Fprintf(out, "Corpus version: %d\n", info.Stats.CorpusVersion)
			if len(info.Documents) > 0 {
				fmt.Fprintln(out)
				for _, doc := range info.Documents {
					fmt.Fprintf(out, "  %-30s %4d passages  %s  %s\n",
						doc.Filename, doc.Passages, doc.Format,
						doc.IngestedAt.Format("2006-01-02 15:04"))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
