package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/waypoint/internal/logging"
	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed lock survives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates thread access, ensuring safe concurrent operations.
// It owns the schema used to merge updates and serializes every operation
// on a thread ID. It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	store  ports.CheckpointStore
	schema *domain.Schema

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides DefaultLockTTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a new thread Manager over the given store and schema.
func NewManager(store ports.CheckpointStore, schema *domain.Schema, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		schema:  schema,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(threadID) after unlocking.
func (m *Manager) acquire(threadID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[threadID]
	if !exists {
		entry = &lockEntry{}
		m.locks[threadID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(threadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[threadID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, threadID)
	}
}

// Tx gives unlocked access to one thread while its lock is held.
// It is only valid inside the WithLock callback that produced it.
type Tx struct {
	m        *Manager
	threadID string
}

// ThreadID returns the thread this transaction is bound to.
func (tx *Tx) ThreadID() string { return tx.threadID }

// Load returns the current checkpoint or domain.ErrThreadNotFound.
func (tx *Tx) Load(ctx context.Context) (*domain.Checkpoint, error) {
	return tx.m.store.Load(ctx, tx.threadID)
}

// Save replaces the checkpoint. cp.Version must be the version that was loaded.
func (tx *Tx) Save(ctx context.Context, cp *domain.Checkpoint) error {
	cp.ThreadID = tx.threadID
	return tx.m.store.Save(ctx, tx.threadID, cp)
}

// Merge loads the checkpoint, applies update using the schema's merge policies and saves it.
func (tx *Tx) Merge(ctx context.Context, update domain.Update) (*domain.Checkpoint, error) {
	cp, err := tx.Load(ctx)
	if err != nil {
		return nil, err
	}
	state, err := tx.m.schema.Apply(cp.State, update)
	if err != nil {
		return nil, err
	}
	cp.State = state
	if err := tx.Save(ctx, cp); err != nil {
		return nil, err
	}
	return cp, nil
}

// Create initializes a thread at the entry step. Fails with domain.ErrThreadExists.
func (tx *Tx) Create(ctx context.Context, initial domain.Update, entry string) (*domain.Checkpoint, error) {
	_, err := tx.Load(ctx)
	if err == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrThreadExists, tx.threadID)
	}
	if !errors.Is(err, domain.ErrThreadNotFound) {
		return nil, fmt.Errorf("failed to check thread existence: %w", err)
	}

	state, err := tx.m.schema.Init(initial)
	if err != nil {
		return nil, err
	}
	cp := domain.NewCheckpoint(tx.threadID, state, entry)
	if err := tx.Save(ctx, cp); err != nil {
		return nil, fmt.Errorf("failed to initialize thread: %w", err)
	}
	return cp, nil
}

// WithLock executes fn while holding the lock for the thread.
// Calls for the same thread ID are queued, never interleaved.
func (m *Manager) WithLock(ctx context.Context, threadID string, fn func(context.Context, *Tx) error) error {
	entry := m.acquire(threadID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(threadID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, threadID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"thread_id", threadID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx, &Tx{m: m, threadID: threadID})
}

// Load retrieves an existing thread from the store.
func (m *Manager) Load(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	var cp *domain.Checkpoint
	err := m.WithLock(ctx, threadID, func(ctx context.Context, tx *Tx) error {
		var err error
		cp, err = tx.Load(ctx)
		return err
	})
	return cp, err
}

// Save persists the checkpoint.
func (m *Manager) Save(ctx context.Context, threadID string, cp *domain.Checkpoint) error {
	return m.WithLock(ctx, threadID, func(ctx context.Context, tx *Tx) error {
		return tx.Save(ctx, cp)
	})
}

// Merge applies a partial update to a stored thread.
// Fails with domain.ErrThreadNotFound if the thread does not exist.
func (m *Manager) Merge(ctx context.Context, threadID string, update domain.Update) (*domain.Checkpoint, error) {
	var cp *domain.Checkpoint
	err := m.WithLock(ctx, threadID, func(ctx context.Context, tx *Tx) error {
		var err error
		cp, err = tx.Merge(ctx, update)
		return err
	})
	return cp, err
}

// Delete removes the thread from the store.
func (m *Manager) Delete(ctx context.Context, threadID string) error {
	return m.WithLock(ctx, threadID, func(ctx context.Context, tx *Tx) error {
		return m.store.Delete(ctx, threadID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying checkpoint store.
func (m *Manager) Store() ports.CheckpointStore {
	return m.store
}

// Schema returns the schema used for merges.
func (m *Manager) Schema() *domain.Schema {
	return m.schema
}
