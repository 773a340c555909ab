package dsl

import (
	"fmt"

	"github.com/aretw0/waypoint/pkg/graph"
)

// Builder manages the graph construction.
// Steps run in the order they were first added.
type Builder struct {
	order     []string
	steps     map[string]*StepBuilder
	successor graph.SuccessorFunc
}

// New creates a new graph builder.
func New() *Builder {
	return &Builder{
		steps: make(map[string]*StepBuilder),
	}
}

// Add creates a new step in the graph.
// If the step already exists, it returns the existing builder.
func (b *Builder) Add(name string) *StepBuilder {
	if sb, ok := b.steps[name]; ok {
		return sb
	}
	sb := &StepBuilder{
		step:    graph.Step{Name: name},
		builder: b,
	}
	b.steps[name] = sb
	b.order = append(b.order, name)
	return sb
}

// Successor installs a branching successor function.
func (b *Builder) Successor(fn graph.SuccessorFunc) *Builder {
	b.successor = fn
	return b
}

// Build validates and compiles the graph.
func (b *Builder) Build() (*graph.Graph, error) {
	steps := make([]graph.Step, 0, len(b.order))
	for _, name := range b.order {
		steps = append(steps, b.steps[name].step)
	}

	var opts []graph.Option
	if b.successor != nil {
		opts = append(opts, graph.WithSuccessor(b.successor))
	}

	g, err := graph.Define(steps, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build graph: %w", err)
	}
	return g, nil
}
