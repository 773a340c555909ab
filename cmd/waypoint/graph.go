package main

import (
	"context"
	"encoding/json"
	"fmt"

	diagram "github.com/aretw0/waypoint/internal/presentation/graph"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the workflow steps",
	Long: `Prints the workflow steps as JSON, or as a Mermaid flowchart with --format mermaid.
With --thread the flowchart highlights the steps that thread has run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		threadID, _ := cmd.Flags().GetString("thread")

		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close(context.Background())

		steps := app.Workflow.Graph().Describe()
		switch format {
		case "json":
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(steps)
		case "mermaid":
			var overlay *diagram.Overlay
			if threadID != "" {
				res, err := app.Workflow.Inspect(cmd.Context(), threadID)
				if err != nil {
					return fmt.Errorf("loading thread '%s': %w", threadID, err)
				}
				overlay = diagram.OverlayFor(res.Checkpoint)
			}
			fmt.Fprint(cmd.OutOrStdout(), diagram.Mermaid(steps, overlay))
			return nil
		default:
			return fmt.Errorf("unknown format: %s. Supported: json, mermaid", format)
		}
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringP("format", "f", "json", "Output format: 'json' or 'mermaid'")
	graphCmd.Flags().StringP("thread", "t", "", "Highlight the path of this thread (mermaid only)")
}
