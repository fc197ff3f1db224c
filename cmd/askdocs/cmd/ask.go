package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAskCmd() *cobra.Command {
	var jsonOutput bool
	var showSources bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about your documents",
		Long: `Ask a question in plain language.

The answer is generated strictly from your documents. When nothing
relevant is found, AskDocs says so instead of guessing.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")

			app, err := openApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.pipeline.Query(cmd.Context(), question)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			fmt.Fprintln(out, result.Answer)
			if showSources && len(result.Sources) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Sources:")
				for i, src := range result.Sources {
					fmt.Fprintf(out, "  %d. %s (passage %d, relevance %.2f)\n",
						i+1, src.Filename, src.Ordinal+1, src.Score)
					if len(src.Occurrences) > 1 {
						var others []string
						for _, occ := range src.Occurrences[1:] {
							others = append(others, occ.Filename)
						}
						fmt.Fprintf(out, "     also in: %s\n", strings.Join(others, ", "))
					}
					fmt.Fprintf(out, "     %s\n", src.Excerpt)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&showSources, "sources", true, "Show source passages with the answer")

	return cmd
}
