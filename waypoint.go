package waypoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/waypoint/internal/idgen"
	"github.com/aretw0/waypoint/internal/logging"
	"github.com/aretw0/waypoint/internal/runtime"
	"github.com/aretw0/waypoint/pkg/adapters/memory"
	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/graph"
	"github.com/aretw0/waypoint/pkg/ports"
	"github.com/aretw0/waypoint/pkg/review"
	"github.com/aretw0/waypoint/pkg/session"
)

// Version is the release of the library and the binaries built from it.
var Version = "0.1.0"

// Workflow is the high-level entry point of the library.
// It runs human review threads on top of the execution engine.
type Workflow struct {
	engine   *runtime.Engine
	sessions *session.Manager
	store    ports.CheckpointStore
	locker   ports.DistributedLocker
	lockTTL  time.Duration
	proposer review.Proposer
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
	newID    func() string
}

// Option defines a functional option for configuring the Workflow.
type Option func(*Workflow)

// WithStore sets where checkpoints are persisted (default: in memory).
func WithStore(store ports.CheckpointStore) Option {
	return func(w *Workflow) {
		w.store = store
	}
}

// WithLocker adds a distributed lock around every advance, for stores shared across processes.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(w *Workflow) {
		w.locker = locker
	}
}

// WithLockTTL overrides how long a distributed lock is held before it expires.
func WithLockTTL(ttl time.Duration) Option {
	return func(w *Workflow) {
		w.lockTTL = ttl
	}
}

// WithProposer replaces the stub agent that drafts responses.
func WithProposer(p review.Proposer) Option {
	return func(w *Workflow) {
		w.proposer = p
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(w *Workflow) {
		w.hooks = hooks
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workflow) {
		w.logger = logger
	}
}

// WithIDGenerator replaces the random thread id source.
func WithIDGenerator(fn func() string) Option {
	return func(w *Workflow) {
		w.newID = fn
	}
}

// New builds a Workflow. Without options it keeps threads in memory and drafts
// responses with review.StubProposer.
func New(opts ...Option) (*Workflow, error) {
	w := &Workflow{}
	for _, opt := range opts {
		opt(w)
	}

	if w.store == nil {
		w.store = memory.NewStore()
	}
	if w.logger == nil {
		w.logger = logging.NewNop()
	}
	if w.newID == nil {
		w.newID = idgen.New
	}

	g, err := review.Graph(w.proposer)
	if err != nil {
		return nil, fmt.Errorf("failed to build review graph: %w", err)
	}

	sessionOpts := []session.Option{session.WithLogger(w.logger)}
	if w.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(w.locker))
	}
	if w.lockTTL > 0 {
		sessionOpts = append(sessionOpts, session.WithLockTTL(w.lockTTL))
	}
	w.sessions = session.NewManager(w.store, review.Schema(), sessionOpts...)

	w.engine = runtime.NewEngine(g, w.sessions,
		runtime.WithLifecycleHooks(w.hooks),
		runtime.WithLogger(w.logger),
	)
	return w, nil
}

// RunRequest is one call into the review workflow.
type RunRequest struct {
	// Query starts a new thread. It is ignored when ThreadID names an existing thread.
	Query string
	// HumanInput, when set, resumes the thread with a reviewer's answer.
	HumanInput string
	// ThreadID selects the thread. Empty means a new thread with a generated id.
	ThreadID string
}

// Result is the outcome of a Run.
type Result struct {
	ThreadID string
	Status   domain.Status
	// Response is the final response, or domain.NoResponse while the thread is not terminal.
	Response         string
	ProposedResponse string
	Checkpoint       *domain.Checkpoint
}

// RunError reports a failure that happened after the thread was created or loaded.
// The thread keeps its last checkpoint, so calling Run again with ThreadID retries it.
type RunError struct {
	ThreadID string
	Err      error
}

func (e *RunError) Error() string { return e.Err.Error() }

func (e *RunError) Unwrap() error { return e.Err }

// Run creates or resumes a thread.
//
// A thread that does not exist yet is started with the query and advanced until
// it suspends for review. HumanInput is then recorded and the thread is resumed
// to completion. An existing thread without HumanInput is resumed as is, which
// accepts the proposal unchanged.
func (w *Workflow) Run(ctx context.Context, req RunRequest) (*Result, error) {
	query, err := SanitizeInput(req.Query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	humanInput, err := SanitizeInput(req.HumanInput)
	if err != nil {
		return nil, fmt.Errorf("human_input: %w", err)
	}

	threadID := req.ThreadID
	if threadID == "" {
		threadID = w.newID()
	}
	logger := w.logger.With("thread_id", threadID)

	created, err := w.ensureThread(ctx, threadID, query)
	if err != nil {
		return nil, err
	}

	var cp *domain.Checkpoint
	switch {
	case humanInput != "":
		if created {
			// The fresh thread must reach the review point before input can resume it.
			if _, err := w.engine.Advance(ctx, threadID, nil); err != nil {
				return nil, &RunError{ThreadID: threadID, Err: err}
			}
		}
		logger.Debug("resuming with human input")
		cp, err = w.engine.Advance(ctx, threadID, humanUpdate(humanInput))
	default:
		cp, err = w.engine.Advance(ctx, threadID, nil)
	}
	if err != nil {
		return nil, &RunError{ThreadID: threadID, Err: err}
	}

	logger.Info("run finished", "status", cp.Status, "cursor", cp.Cursor)
	return newResult(cp), nil
}

// ensureThread starts the thread if it has no checkpoint yet and reports whether it did.
func (w *Workflow) ensureThread(ctx context.Context, threadID, query string) (bool, error) {
	_, err := w.engine.Inspect(ctx, threadID)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, domain.ErrThreadNotFound) {
		return false, err
	}

	_, err = w.engine.Start(ctx, threadID, domain.Update{domain.FieldQuery: query})
	if errors.Is(err, domain.ErrThreadExists) {
		// Another caller created it between Inspect and Start.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func humanUpdate(input string) domain.Update {
	return domain.Update{
		domain.FieldHumanInput: []string{input},
		domain.FieldMessages:   []domain.Message{domain.NewMessage(domain.RoleHuman, input)},
	}
}

// Advance runs one burst on an existing thread with an optional raw update.
func (w *Workflow) Advance(ctx context.Context, threadID string, update domain.Update) (*Result, error) {
	cp, err := w.engine.Advance(ctx, threadID, update)
	if err != nil {
		return nil, err
	}
	return newResult(cp), nil
}

// Inspect returns the current state of a thread without advancing it.
func (w *Workflow) Inspect(ctx context.Context, threadID string) (*Result, error) {
	cp, err := w.engine.Inspect(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return newResult(cp), nil
}

// Threads lists the ids of all persisted threads.
func (w *Workflow) Threads(ctx context.Context) ([]string, error) {
	return w.sessions.List(ctx)
}

// Delete removes a thread's checkpoint.
func (w *Workflow) Delete(ctx context.Context, threadID string) error {
	return w.sessions.Delete(ctx, threadID)
}

// Graph returns the step graph the workflow runs.
func (w *Workflow) Graph() *graph.Graph {
	return w.engine.Graph()
}

// Store returns the underlying checkpoint store.
func (w *Workflow) Store() ports.CheckpointStore {
	return w.store
}

func newResult(cp *domain.Checkpoint) *Result {
	response := cp.State.String(domain.FieldFinalResponse)
	if response == "" {
		response = domain.NoResponse
	}
	return &Result{
		ThreadID:         cp.ThreadID,
		Status:           cp.Status,
		Response:         response,
		ProposedResponse: cp.State.String(domain.FieldProposedResponse),
		Checkpoint:       cp,
	}
}
