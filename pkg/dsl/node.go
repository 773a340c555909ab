package dsl

import "github.com/aretw0/waypoint/pkg/graph"

// StepBuilder provides a fluent API for configuring a step.
type StepBuilder struct {
	step    graph.Step
	builder *Builder
}

// Do sets the function executed by the step.
func (s *StepBuilder) Do(fn graph.StepFunc) *StepBuilder {
	s.step.Run = fn
	return s
}

// InterruptBefore pauses execution right before this step until the thread is resumed.
func (s *StepBuilder) InterruptBefore() *StepBuilder {
	s.step.Interrupt = true
	return s
}

// Add continues the chain with the next step.
func (s *StepBuilder) Add(name string) *StepBuilder {
	return s.builder.Add(name)
}

// Build is a shortcut to the parent Builder's Build.
func (s *StepBuilder) Build() (*graph.Graph, error) {
	return s.builder.Build()
}
