/*
Package runner implements an interactive review loop on top of a Workflow.

It reads queries and feedback through a pluggable IOHandler, drives the workflow
one request at a time, and presents each result. A thread that is suspended for
review is resumed with the next line of input; an empty line accepts the proposal.

# Key Components

  - Runner: The loop. It returns nil on EOF or when the user types exit/quit.
  - IOHandler: Decouples how input is read and results are shown.
  - TextHandler: Prompts and plain text for terminals.
  - JSONHandler: JSON Lines for scripted callers.

# Usage

	r := runner.New(wf,
		runner.WithInputHandler(runner.NewTextHandler(os.Stdin, os.Stdout)),
		runner.WithThreadID("thread-1"),
	)

	if err := r.Run(ctx); err != nil {
		log.Fatal(err)
	}
*/
package runner
