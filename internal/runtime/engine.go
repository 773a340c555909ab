package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/waypoint/internal/logging"
	"github.com/aretw0/waypoint/internal/tracing"
	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/graph"
	"github.com/aretw0/waypoint/pkg/session"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Engine drives threads through a graph, one burst at a time.
// A burst runs steps until the next interrupt target or End and persists a
// checkpoint after every step.
type Engine struct {
	graph    *graph.Graph
	sessions *session.Manager
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
	now      func() time.Time
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates a new engine with dependencies.
func NewEngine(g *graph.Graph, sessions *session.Manager, opts ...EngineOption) *Engine {
	e := &Engine{
		graph:    g,
		sessions: sessions,
		logger:   logging.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Graph returns the graph the engine runs.
func (e *Engine) Graph() *graph.Graph {
	return e.graph
}

// Start creates an idle thread positioned at the entry step.
// It fails with domain.ErrThreadExists if the thread already has a checkpoint.
func (e *Engine) Start(ctx context.Context, threadID string, initial domain.Update) (*domain.Checkpoint, error) {
	var cp *domain.Checkpoint
	err := e.sessions.WithLock(ctx, threadID, func(ctx context.Context, tx *session.Tx) error {
		var err error
		cp, err = tx.Create(ctx, initial, e.graph.Entry())
		return err
	})
	if err != nil {
		return nil, err
	}
	e.logger.Debug("thread started", "thread_id", threadID, "cursor", cp.Cursor)
	return cp, nil
}

// Inspect returns the current checkpoint of a thread.
func (e *Engine) Inspect(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	return e.sessions.Load(ctx, threadID)
}

// Advance runs one burst on a thread.
//
// A non-empty update is merged into the checkpoint first; this is how external
// input reaches the state. The burst then executes steps until it is about to
// enter an interrupt target (status suspended) or reaches End (status terminal).
// A thread that starts the burst suspended runs its interrupt target.
// Advancing a terminal thread returns its checkpoint unchanged.
//
// When a step fails the returned error is a *domain.StepError and the returned
// checkpoint is the last one persisted, from which Advance can be retried.
func (e *Engine) Advance(ctx context.Context, threadID string, update domain.Update) (cp *domain.Checkpoint, err error) {
	ctx, span := tracing.Tracer().Start(ctx, "waypoint.advance",
		trace.WithAttributes(attribute.String("thread.id", threadID)))
	defer func() {
		if cp != nil {
			span.SetAttributes(
				attribute.String("thread.status", string(cp.Status)),
				attribute.String("thread.cursor", cp.Cursor),
			)
		}
		tracing.End(span, err)
	}()

	err = e.sessions.WithLock(ctx, threadID, func(ctx context.Context, tx *session.Tx) error {
		current, err := tx.Load(ctx)
		if err != nil {
			return err
		}

		if current.Terminal() {
			if len(update) > 0 {
				e.logger.Debug("ignoring update on terminal thread", "thread_id", threadID)
			}
			cp = current
			return nil
		}

		if len(update) > 0 {
			current, err = tx.Merge(ctx, update)
			if err != nil {
				return fmt.Errorf("failed to merge external update: %w", err)
			}
			e.logger.Debug("external update merged", "thread_id", threadID, "fields", len(update))
		}

		cp, err = e.run(ctx, tx, current)
		return err
	})
	return cp, err
}

func (e *Engine) run(ctx context.Context, tx *session.Tx, cp *domain.Checkpoint) (*domain.Checkpoint, error) {
	resuming := cp.Status == domain.StatusSuspended

	for {
		if cp.Cursor == domain.End {
			final := cp.Snapshot()
			final.Status = domain.StatusTerminal
			if err := e.persist(ctx, tx, final); err != nil {
				return cp, err
			}
			cp = final
			e.logger.Info("thread terminated", "thread_id", cp.ThreadID, "steps", len(cp.History))
			if e.hooks.OnTerminal != nil {
				e.hooks.OnTerminal(ctx, e.threadEvent(domain.EventTerminal, cp))
			}
			return cp, nil
		}

		if e.graph.IsInterrupt(cp.Cursor) && !resuming {
			paused := cp.Snapshot()
			paused.Status = domain.StatusSuspended
			if err := e.persist(ctx, tx, paused); err != nil {
				return cp, err
			}
			cp = paused
			e.logger.Info("thread suspended", "thread_id", cp.ThreadID, "before", cp.Cursor)
			if e.hooks.OnSuspend != nil {
				e.hooks.OnSuspend(ctx, e.threadEvent(domain.EventSuspend, cp))
			}
			return cp, nil
		}
		resuming = false

		step, ok := e.graph.Step(cp.Cursor)
		if !ok {
			return cp, fmt.Errorf("%w: cursor %q does not name a step", domain.ErrInvalidGraph, cp.Cursor)
		}

		update, err := e.execute(ctx, cp.ThreadID, step, cp.State)
		if err != nil {
			return cp, err
		}

		state, err := e.sessions.Schema().Apply(cp.State, update)
		if err != nil {
			return cp, &domain.StepError{Step: step.Name, Cause: err}
		}
		next, err := e.graph.Next(step.Name, state)
		if err != nil {
			return cp, err
		}

		// Work on a copy so a failed save leaves cp as the last persisted checkpoint.
		advanced := cp.Snapshot()
		advanced.State = state
		advanced.History = append(advanced.History, step.Name)
		advanced.Cursor = next
		advanced.Status = domain.StatusRunning
		if err := e.persist(ctx, tx, advanced); err != nil {
			return cp, err
		}
		cp = advanced
	}
}

// execute runs a single step, converting errors and panics into *domain.StepError.
func (e *Engine) execute(ctx context.Context, threadID string, step graph.Step, state domain.State) (update domain.Update, err error) {
	ctx, span := tracing.Tracer().Start(ctx, "waypoint.step",
		trace.WithAttributes(
			attribute.String("thread.id", threadID),
			attribute.String("step.name", step.Name),
		))
	defer func() { tracing.End(span, err) }()

	if e.hooks.OnStepEnter != nil {
		e.hooks.OnStepEnter(ctx, e.stepEvent(domain.EventStepEnter, threadID, step.Name))
	}
	e.logger.Debug("step enter", "thread_id", threadID, "step", step.Name)

	started := e.now()
	defer func() {
		if r := recover(); r != nil {
			err = &domain.StepError{Step: step.Name, Cause: fmt.Errorf("panic: %v", r)}
		}

		ev := e.stepEvent(domain.EventStepLeave, threadID, step.Name)
		ev.Duration = e.now().Sub(started)
		if err != nil {
			ev.Type = domain.EventStepError
			ev.Err = err
			e.logger.Warn("step failed", "thread_id", threadID, "step", step.Name, "err", err)
			if e.hooks.OnStepError != nil {
				e.hooks.OnStepError(ctx, ev)
			}
			return
		}
		ev.Update = update
		e.logger.Debug("step leave", "thread_id", threadID, "step", step.Name, "duration", ev.Duration)
		if e.hooks.OnStepLeave != nil {
			e.hooks.OnStepLeave(ctx, ev)
		}
	}()

	// Steps get a private copy so they cannot reach into the checkpoint.
	update, err = step.Run(ctx, state.Clone())
	if err != nil {
		return nil, &domain.StepError{Step: step.Name, Cause: err}
	}
	return update, nil
}

func (e *Engine) persist(ctx context.Context, tx *session.Tx, cp *domain.Checkpoint) error {
	if err := tx.Save(ctx, cp); err != nil {
		return fmt.Errorf("failed to persist checkpoint: %w", err)
	}
	return nil
}

func (e *Engine) stepEvent(t domain.EventType, threadID, step string) *domain.StepEvent {
	return &domain.StepEvent{
		EventBase: domain.EventBase{Timestamp: e.now(), Type: t, ThreadID: threadID},
		Step:      step,
	}
}

func (e *Engine) threadEvent(t domain.EventType, cp *domain.Checkpoint) *domain.ThreadEvent {
	return &domain.ThreadEvent{
		EventBase: domain.EventBase{Timestamp: e.now(), Type: t, ThreadID: cp.ThreadID},
		Cursor:    cp.Cursor,
		Status:    cp.Status,
	}
}
