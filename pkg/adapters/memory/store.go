package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/waypoint/pkg/domain"
)

// Store implements ports.CheckpointStore in memory.
// Safe for concurrent use. Nothing survives a process restart.
type Store struct {
	data map[string]*domain.Checkpoint
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.Checkpoint),
	}
}

// Save persists the checkpoint in memory.
func (s *Store) Save(ctx context.Context, threadID string, cp *domain.Checkpoint) error {
	if threadID == "" {
		return fmt.Errorf("threadID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if existing, ok := s.data[threadID]; ok {
		current = existing.Version
	}
	if cp.Version != current {
		return fmt.Errorf("%w: thread %s at version %d, write based on %d",
			domain.ErrConcurrentAccess, threadID, current, cp.Version)
	}

	// Deep copy to ensure isolation, similar to serialization
	stored := cp.Snapshot()
	stored.Version = current + 1
	stored.UpdatedAt = time.Now().UTC()
	s.data[threadID] = stored

	cp.Version = stored.Version
	cp.UpdatedAt = stored.UpdatedAt
	return nil
}

// Load retrieves the checkpoint from memory.
func (s *Store) Load(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.data[threadID]
	if !ok {
		return nil, domain.ErrThreadNotFound
	}

	// Copy on read so the caller can't mutate store state through the pointer
	return cp.Snapshot(), nil
}

// Delete removes the checkpoint.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, threadID)
	return nil
}

// List returns stored threads in lexical order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	threads := make([]string, 0, len(s.data))
	for id := range s.data {
		threads = append(threads, id)
	}
	sort.Strings(threads)
	return threads, nil
}
