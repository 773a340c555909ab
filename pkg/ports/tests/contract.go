// Package tests holds shared conformance suites for port implementations.
package tests

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunCheckpointStoreContract runs a suite of tests to verify that a CheckpointStore
// implementation adheres to the defined interface contract.
func RunCheckpointStoreContract(t *testing.T, store ports.CheckpointStore) {
	ctx := context.Background()
	threadID := "contract-test-thread-" + time.Now().Format("20060102150405")

	newCheckpoint := func(id string) *domain.Checkpoint {
		return domain.NewCheckpoint(id, domain.State{
			"query":    "hello",
			"messages": []any{"a", "b"},
		}, "start")
	}

	t.Run("Save and Load", func(t *testing.T) {
		cp := newCheckpoint(threadID)
		cp.History = []string{"start"}

		require.NoError(t, store.Save(ctx, threadID, cp), "Save should not return error")
		assert.Equal(t, int64(1), cp.Version, "Save should bump the version")

		loaded, err := store.Load(ctx, threadID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, threadID, loaded.ThreadID)
		assert.Equal(t, "start", loaded.Cursor)
		assert.Equal(t, domain.StatusIdle, loaded.Status)
		assert.Equal(t, int64(1), loaded.Version)
		assert.Equal(t, "hello", loaded.State.String("query"))
		assert.Equal(t, []any{"a", "b"}, loaded.State["messages"])
		assert.Equal(t, []string{"start"}, loaded.History)
	})

	t.Run("Save replaces the checkpoint", func(t *testing.T) {
		loaded, err := store.Load(ctx, threadID)
		require.NoError(t, err)

		loaded.Cursor = "agent"
		loaded.Status = domain.StatusSuspended
		loaded.State["query"] = "changed"
		require.NoError(t, store.Save(ctx, threadID, loaded))

		again, err := store.Load(ctx, threadID)
		require.NoError(t, err)
		assert.Equal(t, "agent", again.Cursor)
		assert.Equal(t, domain.StatusSuspended, again.Status)
		assert.Equal(t, "changed", again.State.String("query"))
		assert.Equal(t, loaded.Version, again.Version)
	})

	t.Run("Stale version is rejected", func(t *testing.T) {
		first, err := store.Load(ctx, threadID)
		require.NoError(t, err)
		second, err := store.Load(ctx, threadID)
		require.NoError(t, err)

		require.NoError(t, store.Save(ctx, threadID, first))
		err = store.Save(ctx, threadID, second)
		assert.ErrorIs(t, err, domain.ErrConcurrentAccess)
	})

	t.Run("Loaded checkpoint is isolated from the store", func(t *testing.T) {
		loaded, err := store.Load(ctx, threadID)
		require.NoError(t, err)
		loaded.State["query"] = "mutated locally"

		again, err := store.Load(ctx, threadID)
		require.NoError(t, err)
		assert.NotEqual(t, "mutated locally", again.State.String("query"))
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+threadID)
		assert.ErrorIs(t, err, domain.ErrThreadNotFound)
	})

	t.Run("Concurrent Load sees whole checkpoints", func(t *testing.T) {
		id := threadID + "-torn"
		cp := newCheckpoint(id)
		require.NoError(t, store.Save(ctx, id, cp))
		defer func() { _ = store.Delete(ctx, id) }()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				cp.Cursor = "agent"
				cp.State["query"] = "agent"
				_ = store.Save(ctx, id, cp)
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				loaded, err := store.Load(ctx, id)
				if assert.NoError(t, err) {
					// Cursor and query are always written together.
					assert.Equal(t, loaded.Cursor == "agent", loaded.State.String("query") == "agent")
				}
			}
		}()
		wg.Wait()
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, threadID), "Delete should not return error")

		_, err := store.Load(ctx, threadID)
		assert.ErrorIs(t, err, domain.ErrThreadNotFound, "Load after Delete should return ErrThreadNotFound")

		assert.NoError(t, store.Delete(ctx, threadID), "Deleting twice is not an error")
	})

	t.Run("List", func(t *testing.T) {
		id1 := threadID + "-1"
		id2 := threadID + "-2"
		require.NoError(t, store.Save(ctx, id1, newCheckpoint(id1)))
		require.NoError(t, store.Save(ctx, id2, newCheckpoint(id2)))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		threads, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, threads, id1)
		assert.Contains(t, threads, id2)
	})
}
