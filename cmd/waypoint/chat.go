package main

import (
	"context"
	"errors"

	"github.com/aretw0/waypoint/internal/cli"
	"github.com/aretw0/waypoint/internal/presentation/tui"
	"github.com/aretw0/waypoint/pkg/runner"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Review proposals interactively",
	Long: `Reads queries and feedback from stdin and drives threads to completion.
An empty feedback line accepts the proposal. Type 'exit' or 'quit' to leave.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		threadID, _ := cmd.Flags().GetString("thread")
		asJSON, _ := cmd.Flags().GetBool("json")

		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close(context.Background())

		var handler interface {
			runner.IOHandler
			Close() error
		}
		if asJSON {
			handler = runner.NewJSONHandler(cmd.InOrStdin(), cmd.OutOrStdout())
		} else {
			var opts []runner.TextHandlerOption
			// Markdown only on a terminal; pipes and files get plain text.
			if render := tui.RendererFor(cmd.OutOrStdout()); render != nil {
				opts = append(opts, runner.WithTextHandlerRenderer(render))
			}
			handler = runner.NewTextHandler(cmd.InOrStdin(), cmd.OutOrStdout(), opts...)
		}
		defer handler.Close()

		sc := cli.NewSignalContext(cmd.Context())
		defer sc.Cancel()

		r := runner.New(app.Workflow,
			runner.WithInputHandler(handler),
			runner.WithLogger(app.Logger),
			runner.WithThreadID(threadID),
		)
		err = r.Run(sc)
		if errors.Is(err, context.Canceled) && sc.Signal() != nil {
			app.Logger.Info("chat interrupted", "signal", sc.Signal())
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringP("thread", "t", "", "Resume this thread first")
	chatCmd.Flags().Bool("json", false, "Exchange JSON Lines instead of text")
}
