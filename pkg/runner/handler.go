package runner

import (
	"context"

	"github.com/aretw0/waypoint"
)

// Prompt tells the handler what the runner is waiting for.
type Prompt string

const (
	// PromptQuery asks for a query that starts a new thread.
	PromptQuery Prompt = "query"
	// PromptFeedback asks for feedback on a suspended thread.
	PromptFeedback Prompt = "feedback"
	// PromptRetry offers to retry a thread whose last step failed.
	// An empty line or "retry" retries it; any other text starts a new query.
	PromptRetry Prompt = "retry"
)

// ContentRenderer transforms response text before it is shown, e.g. markdown for a terminal.
type ContentRenderer func(string) (string, error)

// IOHandler defines the strategy for interacting with the user.
// This allows switching between Text (CLI) and JSON (Structured) modes.
type IOHandler interface {
	// Output presents a thread result.
	Output(ctx context.Context, res *waypoint.Result) error

	// Input reads the next line. It returns io.EOF when input is exhausted.
	Input(ctx context.Context, prompt Prompt) (string, error)

	// SystemOutput presents a meta-message (errors, status) distinct from results.
	SystemOutput(ctx context.Context, msg string) error
}
