package observability

import (
	"context"

	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors fed by the engine.
type Metrics struct {
	StepRuns     *prometheus.CounterVec
	StepErrors   *prometheus.CounterVec
	StepDuration *prometheus.HistogramVec
	Suspensions  *prometheus.CounterVec
	Completions  prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg.
// A nil registerer leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "waypoint",
			Name:      "step_runs_total",
			Help:      "Total number of step executions that completed.",
		}, []string{"step"}),
		StepErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "waypoint",
			Name:      "step_errors_total",
			Help:      "Total number of step executions that failed.",
		}, []string{"step"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "waypoint",
			Name:      "step_duration_seconds",
			Help:      "Duration of step executions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step"}),
		Suspensions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "waypoint",
			Name:      "thread_suspensions_total",
			Help:      "Total number of threads suspended before an interrupt target.",
		}, []string{"before"}),
		Completions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "waypoint",
			Name:      "thread_completions_total",
			Help:      "Total number of threads that reached the end.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.StepRuns, m.StepErrors, m.StepDuration, m.Suspensions, m.Completions)
	}
	return m
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepLeave: func(_ context.Context, e *domain.StepEvent) {
			m.StepRuns.WithLabelValues(e.Step).Inc()
			m.StepDuration.WithLabelValues(e.Step).Observe(e.Duration.Seconds())
		},
		OnStepError: func(_ context.Context, e *domain.StepEvent) {
			m.StepErrors.WithLabelValues(e.Step).Inc()
			m.StepDuration.WithLabelValues(e.Step).Observe(e.Duration.Seconds())
		},
		OnSuspend: func(_ context.Context, e *domain.ThreadEvent) {
			m.Suspensions.WithLabelValues(e.Cursor).Inc()
		},
		OnTerminal: func(context.Context, *domain.ThreadEvent) {
			m.Completions.Inc()
		},
	}
}
