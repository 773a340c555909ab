package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/waypoint/pkg/domain"
)

// LogHooks returns lifecycle hooks that write one record per event.
// Step entry and exit are logged at debug level, failures at warn.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepEnter: func(ctx context.Context, e *domain.StepEvent) {
			logger.DebugContext(ctx, "step_enter", "thread_id", e.ThreadID, "step", e.Step)
		},
		OnStepLeave: func(ctx context.Context, e *domain.StepEvent) {
			logger.DebugContext(ctx, "step_leave",
				"thread_id", e.ThreadID,
				"step", e.Step,
				"duration", e.Duration,
				"fields", len(e.Update),
			)
		},
		OnStepError: func(ctx context.Context, e *domain.StepEvent) {
			logger.WarnContext(ctx, "step_error",
				"thread_id", e.ThreadID,
				"step", e.Step,
				"duration", e.Duration,
				"err", e.Err,
			)
		},
		OnSuspend: func(ctx context.Context, e *domain.ThreadEvent) {
			logger.InfoContext(ctx, "thread_suspended", "thread_id", e.ThreadID, "before", e.Cursor)
		},
		OnTerminal: func(ctx context.Context, e *domain.ThreadEvent) {
			logger.InfoContext(ctx, "thread_terminal", "thread_id", e.ThreadID)
		},
	}
}
