package domain

import (
	"errors"
	"fmt"
)

// ErrThreadNotFound is returned when a thread ID has no checkpoint in the store.
var ErrThreadNotFound = errors.New("thread not found")

// ErrThreadExists is returned when starting a thread whose ID already has a checkpoint.
var ErrThreadExists = errors.New("thread already exists")

// ErrInvalidGraph is returned when a graph definition violates its structural invariants.
var ErrInvalidGraph = errors.New("invalid graph")

// ErrStepFailed is matched by every StepError.
var ErrStepFailed = errors.New("step execution failed")

// ErrConcurrentAccess is returned when a checkpoint was written by someone else
// between our Load and our Save.
var ErrConcurrentAccess = errors.New("concurrent access conflict")

// ErrUnknownField is returned when an update names a field the schema does not declare.
var ErrUnknownField = errors.New("unknown state field")

// StepError reports a step function that failed during an advance.
// The checkpoint persisted before the step remains valid.
type StepError struct {
	Step  string
	Cause error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.Step, e.Cause)
}

func (e *StepError) Unwrap() error { return e.Cause }

// Is makes errors.Is(err, ErrStepFailed) true for any StepError.
func (e *StepError) Is(target error) bool {
	return target == ErrStepFailed
}
