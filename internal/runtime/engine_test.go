package runtime_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aretw0/waypoint/internal/runtime"
	"github.com/aretw0/waypoint/pkg/adapters/memory"
	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/graph"
	"github.com/aretw0/waypoint/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSchema = domain.MustSchema(
	domain.Field{Name: "input", Policy: domain.Replace},
	domain.Field{Name: "draft", Policy: domain.Replace},
	domain.Field{Name: "notes", Policy: domain.Append},
	domain.Field{Name: "result", Policy: domain.Replace},
)

// fixture is a three step graph whose last step is an interrupt target.
type fixture struct {
	engine *runtime.Engine
	store  *memory.Store
	calls  map[string]*atomic.Int32
	// failAgent makes the agent step fail while it is > 0, decrementing each time.
	failAgent atomic.Int32
}

func newFixture(t *testing.T, opts ...runtime.EngineOption) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.NewStore(),
		calls: map[string]*atomic.Int32{"prepare": {}, "agent": {}, "finalize": {}},
	}

	g, err := graph.Define([]graph.Step{
		{Name: "prepare", Run: func(ctx context.Context, s domain.State) (domain.Update, error) {
			f.calls["prepare"].Add(1)
			return domain.Update{"notes": "prepared " + s.String("input")}, nil
		}},
		{Name: "agent", Run: func(ctx context.Context, s domain.State) (domain.Update, error) {
			f.calls["agent"].Add(1)
			if f.failAgent.Load() > 0 {
				f.failAgent.Add(-1)
				return nil, errors.New("model unavailable")
			}
			return domain.Update{"draft": "draft for " + s.String("input")}, nil
		}},
		{Name: "finalize", Interrupt: true, Run: func(ctx context.Context, s domain.State) (domain.Update, error) {
			f.calls["finalize"].Add(1)
			notes, err := s.Strings("notes")
			if err != nil {
				return nil, err
			}
			result := s.String("draft")
			if len(notes) > 1 {
				result = notes[len(notes)-1]
			}
			return domain.Update{"result": result}, nil
		}},
	})
	require.NoError(t, err)

	f.engine = runtime.NewEngine(g, session.NewManager(f.store, testSchema), opts...)
	return f
}

func (f *fixture) count(step string) int32 { return f.calls[step].Load() }

func (f *fixture) start(t *testing.T, id string) {
	t.Helper()
	_, err := f.engine.Start(context.Background(), id, domain.Update{"input": "Hello"})
	require.NoError(t, err)
}

func TestEngine_SuspendsBeforeInterruptTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.start(t, "t1")

	cp, err := f.engine.Advance(ctx, "t1", nil)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusSuspended, cp.Status)
	assert.Equal(t, "finalize", cp.Cursor)
	assert.Equal(t, []string{"prepare", "agent"}, cp.History)
	assert.Equal(t, "draft for Hello", cp.State.String("draft"))
	assert.Equal(t, int32(0), f.count("finalize"), "the interrupt target must not run before resume")

	stored, err := f.store.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, cp.Version, stored.Version, "suspension is persisted")
	assert.Equal(t, domain.StatusSuspended, stored.Status)
}

func TestEngine_ResumeWithUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.start(t, "t1")
	_, err := f.engine.Advance(ctx, "t1", nil)
	require.NoError(t, err)

	cp, err := f.engine.Advance(ctx, "t1", domain.Update{"notes": "Use this instead"})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusTerminal, cp.Status)
	assert.Equal(t, domain.End, cp.Cursor)
	assert.Equal(t, "Use this instead", cp.State.String("result"))
	assert.Equal(t, int32(1), f.count("finalize"))
	assert.Equal(t, []string{"prepare", "agent", "finalize"}, cp.History)
}

func TestEngine_ResumeWithoutUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.start(t, "t1")
	_, err := f.engine.Advance(ctx, "t1", nil)
	require.NoError(t, err)

	cp, err := f.engine.Advance(ctx, "t1", nil)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusTerminal, cp.Status)
	assert.Equal(t, "draft for Hello", cp.State.String("result"))
}

func TestEngine_TerminalAdvanceIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.start(t, "t1")
	_, err := f.engine.Advance(ctx, "t1", nil)
	require.NoError(t, err)
	done, err := f.engine.Advance(ctx, "t1", domain.Update{"notes": "final"})
	require.NoError(t, err)

	again, err := f.engine.Advance(ctx, "t1", nil)
	require.NoError(t, err)
	withInput, err := f.engine.Advance(ctx, "t1", domain.Update{"notes": "late"})
	require.NoError(t, err)

	assert.Equal(t, done, again)
	assert.Equal(t, done, withInput)
	assert.Equal(t, int32(1), f.count("finalize"))
	assert.Equal(t, int32(1), f.count("prepare"))
}

func TestEngine_UnknownThread(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Advance(context.Background(), "ghost", nil)
	assert.ErrorIs(t, err, domain.ErrThreadNotFound)

	_, err = f.engine.Advance(context.Background(), "ghost", domain.Update{"notes": "x"})
	assert.ErrorIs(t, err, domain.ErrThreadNotFound)
}

func TestEngine_StartTwice(t *testing.T) {
	f := newFixture(t)
	f.start(t, "t1")

	_, err := f.engine.Start(context.Background(), "t1", nil)
	assert.ErrorIs(t, err, domain.ErrThreadExists)
}

func TestEngine_StepFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.failAgent.Store(1)
	f.start(t, "t1")

	cp, err := f.engine.Advance(ctx, "t1", nil)

	var stepErr *domain.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "agent", stepErr.Step)
	assert.ErrorIs(t, err, domain.ErrStepFailed)
	assert.Equal(t, "agent", cp.Cursor, "returned checkpoint points at the failing step")

	stored, err := f.store.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "agent", stored.Cursor)
	assert.Equal(t, []string{"prepare"}, stored.History)
	assert.Equal(t, []any{"prepared Hello"}, stored.State["notes"])

	cp, err = f.engine.Advance(ctx, "t1", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuspended, cp.Status)
	assert.Equal(t, int32(1), f.count("prepare"), "completed steps are not re-executed")
	assert.Equal(t, int32(2), f.count("agent"))
}

func TestEngine_StepPanicBecomesStepError(t *testing.T) {
	g, err := graph.Define([]graph.Step{
		{Name: "boom", Run: func(context.Context, domain.State) (domain.Update, error) {
			panic("kaboom")
		}},
	})
	require.NoError(t, err)
	engine := runtime.NewEngine(g, session.NewManager(memory.NewStore(), testSchema))
	ctx := context.Background()
	_, err = engine.Start(ctx, "t", nil)
	require.NoError(t, err)

	_, err = engine.Advance(ctx, "t", nil)

	var stepErr *domain.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "boom", stepErr.Step)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestEngine_StepWritingUnknownField(t *testing.T) {
	g, err := graph.Define([]graph.Step{
		{Name: "bad", Run: func(context.Context, domain.State) (domain.Update, error) {
			return domain.Update{"surprise": true}, nil
		}},
	})
	require.NoError(t, err)
	engine := runtime.NewEngine(g, session.NewManager(memory.NewStore(), testSchema))
	ctx := context.Background()
	_, err = engine.Start(ctx, "t", nil)
	require.NoError(t, err)

	_, err = engine.Advance(ctx, "t", nil)
	assert.ErrorIs(t, err, domain.ErrStepFailed)
	assert.ErrorIs(t, err, domain.ErrUnknownField)
}

func TestEngine_StepCannotMutateCheckpoint(t *testing.T) {
	g, err := graph.Define([]graph.Step{
		{Name: "sneaky", Run: func(_ context.Context, s domain.State) (domain.Update, error) {
			s["input"] = "tampered"
			return nil, nil
		}},
	})
	require.NoError(t, err)
	engine := runtime.NewEngine(g, session.NewManager(memory.NewStore(), testSchema))
	ctx := context.Background()
	_, err = engine.Start(ctx, "t", domain.Update{"input": "original"})
	require.NoError(t, err)

	cp, err := engine.Advance(ctx, "t", nil)
	require.NoError(t, err)
	assert.Equal(t, "original", cp.State.String("input"))
}

func TestEngine_LifecycleHooks(t *testing.T) {
	var (
		mu     sync.Mutex
		events []string
	)
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, s)
	}
	hooks := domain.LifecycleHooks{
		OnStepEnter: func(_ context.Context, e *domain.StepEvent) { record("enter:" + e.Step) },
		OnStepLeave: func(_ context.Context, e *domain.StepEvent) { record("leave:" + e.Step) },
		OnStepError: func(_ context.Context, e *domain.StepEvent) { record("error:" + e.Step) },
		OnSuspend:   func(_ context.Context, e *domain.ThreadEvent) { record("suspend:" + e.Cursor) },
		OnTerminal:  func(_ context.Context, e *domain.ThreadEvent) { record("terminal") },
	}
	f := newFixture(t, runtime.WithLifecycleHooks(hooks))
	f.failAgent.Store(1)
	ctx := context.Background()
	f.start(t, "t1")

	_, _ = f.engine.Advance(ctx, "t1", nil)
	_, _ = f.engine.Advance(ctx, "t1", nil)
	_, _ = f.engine.Advance(ctx, "t1", nil)

	assert.Equal(t, []string{
		"enter:prepare", "leave:prepare",
		"enter:agent", "error:agent",
		"enter:agent", "leave:agent",
		"suspend:finalize",
		"enter:finalize", "leave:finalize",
		"terminal",
	}, events)
}

func TestEngine_ConcurrentAdvancesAreSerialized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.start(t, "t1")
	_, err := f.engine.Advance(ctx, "t1", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cp, err := f.engine.Advance(ctx, "t1", domain.Update{"notes": "reviewed"})
			if assert.NoError(t, err) {
				assert.Equal(t, domain.StatusTerminal, cp.Status)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.count("finalize"), "only the first queued advance resumes the thread")
	cp, err := f.engine.Inspect(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []any{"prepared Hello", "reviewed"}, cp.State["notes"])
}

func TestEngine_ThreadsAreIsolated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.start(t, "a")
	_, err := f.engine.Start(ctx, "b", domain.Update{"input": "Other"})
	require.NoError(t, err)

	_, err = f.engine.Advance(ctx, "a", nil)
	require.NoError(t, err)
	_, err = f.engine.Advance(ctx, "a", domain.Update{"notes": "only for a"})
	require.NoError(t, err)

	b, err := f.engine.Inspect(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIdle, b.Status)
	assert.Equal(t, "Other", b.State.String("input"))
	assert.Equal(t, []any{}, b.State["notes"])
}

func TestEngine_BranchingSuccessor(t *testing.T) {
	var ran []string
	stepFn := func(name string) graph.StepFunc {
		return func(context.Context, domain.State) (domain.Update, error) {
			ran = append(ran, name)
			return nil, nil
		}
	}
	g, err := graph.Define([]graph.Step{
		{Name: "route", Run: stepFn("route")},
		{Name: "long", Run: stepFn("long")},
		{Name: "short", Run: stepFn("short")},
	}, graph.WithSuccessor(func(cursor string, s domain.State) string {
		if cursor == "route" && s.String("input") == "quick" {
			return "short"
		}
		if cursor == "route" {
			return "long"
		}
		return domain.End
	}))
	require.NoError(t, err)
	engine := runtime.NewEngine(g, session.NewManager(memory.NewStore(), testSchema))
	ctx := context.Background()
	_, err = engine.Start(ctx, "t", domain.Update{"input": "quick"})
	require.NoError(t, err)

	cp, err := engine.Advance(ctx, "t", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"route", "short"}, ran)
	assert.Equal(t, domain.StatusTerminal, cp.Status)
}
