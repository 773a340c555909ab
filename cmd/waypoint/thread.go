package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var threadCmd = &cobra.Command{
	Use:   "thread",
	Short: "Manage persisted threads",
	Long:  `List, inspect, and remove threads in the configured store.`,
}

var threadLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all threads",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close(context.Background())

		threads, err := app.Workflow.Threads(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing threads: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(threads) == 0 {
			fmt.Fprintln(out, "No threads found.")
			return nil
		}
		for _, id := range threads {
			fmt.Fprintln(out, "- "+id)
		}
		return nil
	},
}

var threadInspectCmd = &cobra.Command{
	Use:   "inspect <thread-id>",
	Short: "Print the checkpoint of a thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close(context.Background())

		res, err := app.Workflow.Inspect(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("loading thread '%s': %w", args[0], err)
		}

		data, err := json.MarshalIndent(app.Redactor.Checkpoint(res.Checkpoint), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var threadRmCmd = &cobra.Command{
	Use:   "rm <thread-id>...",
	Short: "Remove one or more threads",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close(context.Background())

		failed := 0
		for _, id := range args {
			if err := app.Workflow.Delete(cmd.Context(), id); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error removing '%s': %v\n", id, err)
				failed++
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed thread '%s'\n", id)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d threads could not be removed", failed, len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(threadCmd)
	threadCmd.AddCommand(threadLsCmd, threadInspectCmd, threadRmCmd)
}
