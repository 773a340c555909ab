package main

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/aretw0/waypoint"
	"github.com/spf13/cobra"
)

// runOutput is what the run command prints.
type runOutput struct {
	ThreadID         string `json:"thread_id"`
	Status           string `json:"status"`
	Response         string `json:"response"`
	ProposedResponse string `json:"proposed_response,omitempty"`
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start or resume a thread once and print the result",
	Long: `Starts a thread with --query, or resumes --thread with --input.
Combine --query and --input to review and finalize in a single call.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		query, _ := cmd.Flags().GetString("query")
		input, _ := cmd.Flags().GetString("input")
		threadID, _ := cmd.Flags().GetString("thread")
		if query == "" && threadID == "" {
			return errors.New("either --query or --thread is required")
		}

		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close(context.Background())

		res, err := app.Workflow.Run(cmd.Context(), waypoint.RunRequest{
			Query:      query,
			HumanInput: input,
			ThreadID:   threadID,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(runOutput{
			ThreadID:         res.ThreadID,
			Status:           string(res.Status),
			Response:         res.Response,
			ProposedResponse: res.ProposedResponse,
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringP("query", "q", "", "Query that starts a new thread")
	runCmd.Flags().StringP("input", "i", "", "Human feedback for a suspended thread")
	runCmd.Flags().StringP("thread", "t", "", "Existing thread to resume")
}
