/*
Package domain contains the core domain models of the Waypoint engine.

It defines the execution state of a thread, the per-field merge rules that combine
partial updates into that state, and the persisted checkpoint. This package is kept
pure and free of I/O or persistence concerns.

# Key Entities

  - Schema: The declared fields of a State, each with a MergePolicy (Replace or Append).
  - State: The field values of one thread.
  - Update: A partial State produced by a step or injected by a human.
  - Checkpoint: The persisted snapshot of a thread (State, Cursor, Status, Version).
*/
package domain
