package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aretw0/waypoint"
	"github.com/aretw0/waypoint/internal/logging"
	"github.com/aretw0/waypoint/pkg/domain"
)

// Workflow is the part of waypoint.Workflow the runner drives.
type Workflow interface {
	Run(ctx context.Context, req waypoint.RunRequest) (*waypoint.Result, error)
	Inspect(ctx context.Context, threadID string) (*waypoint.Result, error)
}

// Runner handles the review loop using the provided IO.
type Runner struct {
	Workflow Workflow
	Handler  IOHandler
	Logger   *slog.Logger
	ThreadID string
}

// New creates a Runner. Without WithInputHandler it talks text over stdin and stdout.
func New(wf Workflow, opts ...Option) *Runner {
	r := &Runner{Workflow: wf}
	for _, opt := range opts {
		opt(r)
	}
	if r.Handler == nil {
		r.Handler = NewTextHandler(nil, nil)
	}
	if r.Logger == nil {
		r.Logger = logging.NewNop()
	}
	return r
}

// Run loops until input is exhausted, the user quits, or ctx is cancelled.
// Step failures and invalid input are reported and the loop continues;
// any other workflow error ends it.
func (r *Runner) Run(ctx context.Context) error {
	current := ""
	if r.ThreadID != "" {
		res, err := r.Workflow.Inspect(ctx, r.ThreadID)
		if err != nil {
			return fmt.Errorf("resume thread %q: %w", r.ThreadID, err)
		}
		if res.Status == domain.StatusIdle || res.Status == domain.StatusRunning {
			// Interrupted before its first suspension; drive it forward.
			if res, err = r.Workflow.Run(ctx, waypoint.RunRequest{ThreadID: r.ThreadID}); err != nil {
				return err
			}
		}
		if err := r.Handler.Output(ctx, res); err != nil {
			return fmt.Errorf("output error: %w", err)
		}
		if res.Status != domain.StatusTerminal {
			current = res.ThreadID
		}
	}

	// failed holds a new thread whose first step failed; it keeps its checkpoint.
	failed := ""
	for {
		prompt := PromptQuery
		switch {
		case failed != "":
			prompt = PromptRetry
		case current != "":
			prompt = PromptFeedback
		}

		text, err := r.Handler.Input(ctx, prompt)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if isExit(text) {
			return nil
		}

		var req waypoint.RunRequest
		switch {
		case failed != "" && isRetry(text):
			req = waypoint.RunRequest{ThreadID: failed}
		case current != "":
			req = waypoint.RunRequest{ThreadID: current, HumanInput: text}
		case text == "":
			continue
		default:
			req = waypoint.RunRequest{Query: text}
		}
		failed = ""

		res, err := r.Workflow.Run(ctx, req)
		if err != nil {
			if !recoverable(err) {
				return err
			}
			msg := err.Error()
			var runErr *waypoint.RunError
			if current == "" && errors.As(err, &runErr) {
				failed = runErr.ThreadID
				msg = fmt.Sprintf("%s (thread %s kept; press enter to retry it)", msg, failed)
			}
			r.Logger.Warn("request failed", "thread_id", req.ThreadID, "err", err)
			if err := r.Handler.SystemOutput(ctx, msg); err != nil {
				return fmt.Errorf("output error: %w", err)
			}
			continue
		}

		if err := r.Handler.Output(ctx, res); err != nil {
			return fmt.Errorf("output error: %w", err)
		}
		current = res.ThreadID
		if res.Status == domain.StatusTerminal {
			current = ""
		}
	}
}

func isExit(text string) bool {
	switch strings.ToLower(text) {
	case "exit", "quit":
		return true
	}
	return false
}

func isRetry(text string) bool {
	return text == "" || strings.EqualFold(text, "retry")
}

func recoverable(err error) bool {
	return errors.Is(err, waypoint.ErrInvalidInput) ||
		errors.Is(err, domain.ErrStepFailed) ||
		errors.Is(err, domain.ErrConcurrentAccess)
}
