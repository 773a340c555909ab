package session_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/waypoint/pkg/adapters/memory"
	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/ports"
	"github.com/aretw0/waypoint/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SlowStore simulates latency to provoke race conditions if locking is missing.
type SlowStore struct {
	*memory.Store
}

func (s *SlowStore) Save(ctx context.Context, threadID string, cp *domain.Checkpoint) error {
	time.Sleep(2 * time.Millisecond) // Simulate IO
	return s.Store.Save(ctx, threadID, cp)
}

func (s *SlowStore) Load(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	time.Sleep(2 * time.Millisecond) // Simulate IO
	return s.Store.Load(ctx, threadID)
}

var schema = domain.MustSchema(
	domain.Field{Name: "query", Policy: domain.Replace},
	domain.Field{Name: "log", Policy: domain.Append},
)

func TestManager_MergeSerializesWriters(t *testing.T) {
	manager := session.NewManager(&SlowStore{memory.NewStore()}, schema)
	ctx := context.Background()
	id := "race-test"

	err := manager.WithLock(ctx, id, func(ctx context.Context, tx *session.Tx) error {
		_, err := tx.Create(ctx, domain.Update{"query": "q"}, "start")
		return err
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	concurrentWrites := 20

	// Read-Modify-Write without locking would lose appends (or hit version conflicts).
	for i := 0; i < concurrentWrites; i++ {
		wg.Add(1)
		go func(val int) {
			defer wg.Done()
			_, err := manager.Merge(ctx, id, domain.Update{"log": fmt.Sprintf("entry-%d", val)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	cp, err := manager.Load(ctx, id)
	require.NoError(t, err)
	assert.Len(t, cp.State["log"], concurrentWrites)
	assert.Equal(t, "q", cp.State.String("query"))
}

func TestManager_MergeUnknownThread(t *testing.T) {
	manager := session.NewManager(memory.NewStore(), schema)

	_, err := manager.Merge(context.Background(), "ghost", domain.Update{"log": "x"})
	assert.ErrorIs(t, err, domain.ErrThreadNotFound)
}

func TestManager_MergeUnknownField(t *testing.T) {
	manager := session.NewManager(memory.NewStore(), schema)
	ctx := context.Background()
	require.NoError(t, manager.WithLock(ctx, "t", func(ctx context.Context, tx *session.Tx) error {
		_, err := tx.Create(ctx, nil, "start")
		return err
	}))

	_, err := manager.Merge(ctx, "t", domain.Update{"nope": "x"})
	assert.ErrorIs(t, err, domain.ErrUnknownField)

	cp, err := manager.Load(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cp.Version, "a rejected merge must not write")
}

func TestManager_CreateTwice(t *testing.T) {
	manager := session.NewManager(memory.NewStore(), schema)
	ctx := context.Background()

	create := func() error {
		return manager.WithLock(ctx, "dup", func(ctx context.Context, tx *session.Tx) error {
			_, err := tx.Create(ctx, domain.Update{"query": "q"}, "start")
			return err
		})
	}

	require.NoError(t, create())
	assert.ErrorIs(t, create(), domain.ErrThreadExists)
}

func TestManager_CreateFillsDefaults(t *testing.T) {
	manager := session.NewManager(memory.NewStore(), schema)
	ctx := context.Background()

	var cp *domain.Checkpoint
	require.NoError(t, manager.WithLock(ctx, "t", func(ctx context.Context, tx *session.Tx) error {
		var err error
		cp, err = tx.Create(ctx, domain.Update{"query": "q"}, "start")
		return err
	}))

	assert.Equal(t, "start", cp.Cursor)
	assert.Equal(t, domain.StatusIdle, cp.Status)
	assert.Equal(t, []any{}, cp.State["log"])
}

type countingLocker struct {
	mu       sync.Mutex
	locked   int
	unlocked int
}

func (l *countingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	l.mu.Lock()
	l.locked++
	l.mu.Unlock()
	return func(context.Context) error {
		l.mu.Lock()
		l.unlocked++
		l.mu.Unlock()
		return nil
	}, nil
}

func TestManager_DistributedLocker(t *testing.T) {
	locker := &countingLocker{}
	manager := session.NewManager(memory.NewStore(), schema, session.WithLocker(locker))
	ctx := context.Background()

	_, _ = manager.Load(ctx, "any")
	_ = manager.Delete(ctx, "any")

	assert.Equal(t, 2, locker.locked)
	assert.Equal(t, 2, locker.unlocked)
}

func TestManager_ThreadsAreIsolated(t *testing.T) {
	manager := session.NewManager(memory.NewStore(), schema)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		require.NoError(t, manager.WithLock(ctx, id, func(ctx context.Context, tx *session.Tx) error {
			_, err := tx.Create(ctx, domain.Update{"query": id}, "start")
			return err
		}))
	}

	_, err := manager.Merge(ctx, "a", domain.Update{"log": "only-a", "query": "changed"})
	require.NoError(t, err)

	b, err := manager.Load(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "b", b.State.String("query"))
	assert.Equal(t, []any{}, b.State["log"])
}
