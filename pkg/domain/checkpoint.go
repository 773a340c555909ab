package domain

import "time"

// Status is the position of a thread in the execution lifecycle.
type Status string

const (
	StatusIdle      Status = "idle"      // Created, no step executed yet
	StatusRunning   Status = "running"   // A burst is executing steps
	StatusSuspended Status = "suspended" // Paused before an interrupt target, waiting for input
	StatusTerminal  Status = "terminal"  // End reached, no further transitions
)

// Checkpoint is the persisted snapshot of a thread.
type Checkpoint struct {
	ThreadID string `json:"thread_id"`

	// State holds the field values at the time of the snapshot.
	State State `json:"state"`

	// Cursor names the next step to execute, or End.
	Cursor string `json:"cursor"`

	Status Status `json:"status"`

	// Version is the optimistic concurrency stamp. Stores bump it on every Save.
	Version int64 `json:"version"`

	// History lists executed steps in order.
	History []string `json:"history,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewCheckpoint creates an idle checkpoint positioned at the entry step.
func NewCheckpoint(threadID string, state State, entry string) *Checkpoint {
	now := time.Now().UTC()
	return &Checkpoint{
		ThreadID:  threadID,
		State:     state,
		Cursor:    entry,
		Status:    StatusIdle,
		History:   []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Snapshot creates a deep copy of the checkpoint.
func (c *Checkpoint) Snapshot() *Checkpoint {
	if c == nil {
		return nil
	}
	cp := *c
	cp.State = c.State.Clone()
	if c.History != nil {
		cp.History = make([]string, len(c.History))
		copy(cp.History, c.History)
	}
	return &cp
}

// Terminal reports whether the thread reached End.
func (c *Checkpoint) Terminal() bool {
	return c.Status == StatusTerminal
}
