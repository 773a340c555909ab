package graph

import (
	"context"
	"fmt"

	"github.com/aretw0/waypoint/pkg/domain"
)

// StepFunc computes a partial update from the current state.
// It must not mutate the state it receives; the engine merges the returned update.
type StepFunc func(ctx context.Context, state domain.State) (domain.Update, error)

// Step is a named unit of work.
type Step struct {
	Name string
	Run  StepFunc
	// Interrupt marks the step as an interrupt-before target: execution pauses
	// right before it until the thread is advanced again.
	Interrupt bool
}

// SuccessorFunc returns the step that follows cursor, or domain.End.
// The default is the linear order of the definition.
type SuccessorFunc func(cursor string, state domain.State) string

// DefinitionError describes why a graph definition was rejected.
type DefinitionError struct {
	Reason string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("invalid graph: %s", e.Reason)
}

// Is makes errors.Is(err, domain.ErrInvalidGraph) true.
func (e *DefinitionError) Is(target error) bool {
	return target == domain.ErrInvalidGraph
}

func invalid(format string, args ...any) error {
	return &DefinitionError{Reason: fmt.Sprintf(format, args...)}
}

// Graph is an immutable, validated sequence of steps.
type Graph struct {
	steps      []Step
	index      map[string]int
	interrupts map[string]bool
	successor  SuccessorFunc
}

// Option configures a Graph during Define.
type Option func(*options)

type options struct {
	interrupts []string
	successor  SuccessorFunc
}

// WithInterruptBefore flags additional steps as interrupt-before targets.
func WithInterruptBefore(names ...string) Option {
	return func(o *options) {
		o.interrupts = append(o.interrupts, names...)
	}
}

// WithSuccessor replaces the linear successor, allowing branching graphs.
func WithSuccessor(fn SuccessorFunc) Option {
	return func(o *options) {
		o.successor = fn
	}
}

// Define validates steps and builds a Graph. The first step is the entry step.
func Define(steps []Step, opts ...Option) (*Graph, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if len(steps) == 0 {
		return nil, invalid("no entry step")
	}

	g := &Graph{
		steps:      make([]Step, len(steps)),
		index:      make(map[string]int, len(steps)),
		interrupts: make(map[string]bool),
	}
	copy(g.steps, steps)

	for i, s := range g.steps {
		switch {
		case s.Name == "":
			return nil, invalid("step %d has no name", i)
		case s.Name == domain.End:
			return nil, invalid("step name %q is reserved", domain.End)
		case s.Run == nil:
			return nil, invalid("step %q has no function", s.Name)
		}
		if _, dup := g.index[s.Name]; dup {
			return nil, invalid("duplicate step name %q", s.Name)
		}
		g.index[s.Name] = i
		if s.Interrupt {
			g.interrupts[s.Name] = true
		}
	}

	for _, name := range o.interrupts {
		if _, ok := g.index[name]; !ok {
			return nil, invalid("interrupt target %q does not exist", name)
		}
		g.interrupts[name] = true
		g.steps[g.index[name]].Interrupt = true
	}

	g.successor = o.successor
	if g.successor == nil {
		g.successor = g.linear
	}
	return g, nil
}

func (g *Graph) linear(cursor string, _ domain.State) string {
	i, ok := g.index[cursor]
	if !ok || i+1 >= len(g.steps) {
		return domain.End
	}
	return g.steps[i+1].Name
}

// Entry returns the name of the first step.
func (g *Graph) Entry() string {
	return g.steps[0].Name
}

// Next returns the successor of cursor, or domain.End.
// It fails with domain.ErrInvalidGraph when a custom successor names an unknown step.
func (g *Graph) Next(cursor string, state domain.State) (string, error) {
	if cursor == domain.End {
		return domain.End, nil
	}
	next := g.successor(cursor, state)
	if next == domain.End {
		return next, nil
	}
	if _, ok := g.index[next]; !ok {
		return "", invalid("successor of %q is unknown step %q", cursor, next)
	}
	return next, nil
}

// Step looks up a step by name.
func (g *Graph) Step(name string) (Step, bool) {
	i, ok := g.index[name]
	if !ok {
		return Step{}, false
	}
	return g.steps[i], true
}

// IsInterrupt reports whether execution must pause before name.
func (g *Graph) IsInterrupt(name string) bool {
	return g.interrupts[name]
}

// Names returns step names in definition order.
func (g *Graph) Names() []string {
	names := make([]string, len(g.steps))
	for i, s := range g.steps {
		names[i] = s.Name
	}
	return names
}

// Descriptor is a serializable view of a step, used for introspection.
type Descriptor struct {
	Name      string `json:"name"`
	Next      string `json:"next"`
	Interrupt bool   `json:"interrupt_before"`
}

// Describe returns the linear layout of the graph. Custom successors are evaluated
// against an empty state, so branching graphs only show their default path.
func (g *Graph) Describe() []Descriptor {
	out := make([]Descriptor, len(g.steps))
	for i, s := range g.steps {
		next, err := g.Next(s.Name, domain.State{})
		if err != nil {
			next = "?"
		}
		out[i] = Descriptor{Name: s.Name, Next: next, Interrupt: g.interrupts[s.Name]}
	}
	return out
}
