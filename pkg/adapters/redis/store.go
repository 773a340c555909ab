package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/waypoint/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Store implements ports.CheckpointStore using Redis.
// Saves run inside WATCH/MULTI so a concurrent writer makes the transaction fail
// instead of silently overwriting the checkpoint.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for threads.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for threads.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromURL creates a Redis store from a redis:// or rediss:// URL.
func NewFromURL(url string, opts ...Option) (*Store, error) {
	o, err := backend.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewFromClient(backend.NewClient(o), opts...), nil
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "waypoint:",
		ttl:    0, // No expiration by default
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Client exposes the underlying client so a Locker can share the connection pool.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(threadID string) string {
	return s.prefix + "thread:" + threadID
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Save persists the checkpoint to Redis.
func (s *Store) Save(ctx context.Context, threadID string, cp *domain.Checkpoint) error {
	if threadID == "" {
		return fmt.Errorf("threadID cannot be empty")
	}
	key := s.key(threadID)

	stored := cp.Snapshot()
	stored.Version = cp.Version + 1
	stored.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	err = s.client.Watch(ctx, func(tx *backend.Tx) error {
		current, err := s.version(ctx, tx, key)
		if err != nil {
			return err
		}
		if current != cp.Version {
			return fmt.Errorf("%w: thread %s at version %d, write based on %d",
				domain.ErrConcurrentAccess, threadID, current, cp.Version)
		}

		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			// Use 0 for no expiration if ttl is not set.
			pipe.Set(ctx, key, data, s.ttl)

			// Score = Now + TTL. If TTL = 0, Score = +Inf (approx).
			score := float64(time.Now().Add(s.ttl).Unix())
			if s.ttl == 0 {
				score = 4102444800 // 2100-01-01
			}
			pipe.ZAdd(ctx, s.indexKey(), backend.Z{
				Score:  score,
				Member: threadID,
			})
			return nil
		})
		return err
	}, key)

	if errors.Is(err, backend.TxFailedErr) {
		return fmt.Errorf("%w: thread %s changed during save", domain.ErrConcurrentAccess, threadID)
	}
	if err != nil {
		if errors.Is(err, domain.ErrConcurrentAccess) {
			return err
		}
		return fmt.Errorf("failed to save to redis: %w", err)
	}

	cp.Version = stored.Version
	cp.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *Store) version(ctx context.Context, tx *backend.Tx, key string) (int64, error) {
	raw, err := tx.Get(ctx, key).Bytes()
	if err == backend.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read current checkpoint: %w", err)
	}
	var head struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return 0, fmt.Errorf("failed to unmarshal current checkpoint: %w", err)
	}
	return head.Version, nil
}

// Load retrieves the checkpoint from Redis.
func (s *Store) Load(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	val, err := s.client.Get(ctx, s.key(threadID)).Bytes()
	if err != nil {
		if err == backend.Nil {
			return nil, domain.ErrThreadNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var cp domain.Checkpoint
	if err := json.Unmarshal(val, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}

	return &cp, nil
}

// Delete removes the thread.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	pipe := s.client.Pipeline()

	pipe.Del(ctx, s.key(threadID))
	pipe.ZRem(ctx, s.indexKey(), threadID)

	_, err := pipe.Exec(ctx)
	return err
}

// List returns live threads, pruning expired entries from the index first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())

	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired threads: %w", err)
	}

	threads, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}

	return threads, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
