package ports

import (
	"context"

	"github.com/aretw0/waypoint/pkg/domain"
)

// CheckpointStore defines the interface for persisting thread checkpoints.
// This allows for durable execution, enabling "Suspend & Resume" workflows.
type CheckpointStore interface {
	// Save fully replaces the checkpoint for a thread.
	// cp.Version must match the stored version (0 for a new thread), otherwise
	// domain.ErrConcurrentAccess is returned. On success cp.Version is bumped.
	Save(ctx context.Context, threadID string, cp *domain.Checkpoint) error

	// Load retrieves the checkpoint for a thread.
	// Returns domain.ErrThreadNotFound if the thread does not exist.
	Load(ctx context.Context, threadID string) (*domain.Checkpoint, error)

	// Delete removes the checkpoint for a thread. Deleting an unknown thread is not an error.
	Delete(ctx context.Context, threadID string) error

	// List returns the IDs of all stored threads.
	List(ctx context.Context) ([]string, error)
}
