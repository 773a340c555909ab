package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventStepEnter EventType = "step_enter"
	EventStepLeave EventType = "step_leave"
	EventStepError EventType = "step_error"
	EventSuspend   EventType = "suspend"
	EventTerminal  EventType = "terminal"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	ThreadID  string    `json:"thread_id"`
}

// StepEvent represents entry into, exit from or failure of a step.
type StepEvent struct {
	EventBase
	Step     string        `json:"step"`
	Update   Update        `json:"update,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Err      error         `json:"-"`
}

// ThreadEvent represents a thread reaching a suspension point or End.
type ThreadEvent struct {
	EventBase
	Cursor string `json:"cursor"`
	Status Status `json:"status"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnStepEnter func(context.Context, *StepEvent)
	OnStepLeave func(context.Context, *StepEvent)
	OnStepError func(context.Context, *StepEvent)
	OnSuspend   func(context.Context, *ThreadEvent)
	OnTerminal  func(context.Context, *ThreadEvent)
}

// Combine returns hooks that call every set callback of each argument in order.
func Combine(all ...LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnStepEnter: func(ctx context.Context, e *StepEvent) {
			for _, h := range all {
				if h.OnStepEnter != nil {
					h.OnStepEnter(ctx, e)
				}
			}
		},
		OnStepLeave: func(ctx context.Context, e *StepEvent) {
			for _, h := range all {
				if h.OnStepLeave != nil {
					h.OnStepLeave(ctx, e)
				}
			}
		},
		OnStepError: func(ctx context.Context, e *StepEvent) {
			for _, h := range all {
				if h.OnStepError != nil {
					h.OnStepError(ctx, e)
				}
			}
		},
		OnSuspend: func(ctx context.Context, e *ThreadEvent) {
			for _, h := range all {
				if h.OnSuspend != nil {
					h.OnSuspend(ctx, e)
				}
			}
		},
		OnTerminal: func(ctx context.Context, e *ThreadEvent) {
			for _, h := range all {
				if h.OnTerminal != nil {
					h.OnTerminal(ctx, e)
				}
			}
		},
	}
}
