package repositories

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sohanagashimani/playlist-converter/internal/shared"
)

// DefaultActiveJobsKey is the sorted set holding active job markers.
const DefaultActiveJobsKey = "playlist-converter:active-jobs"

const connectionTimeout = 5 * time.Second

// NewRedisClient creates a Redis client from cfg and verifies the connection.
func NewRedisClient(cfg shared.RedisConfig) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// RedisActiveJobIndex keeps active job markers in a Redis sorted set scored by expiry.
//
// Several server processes pointed at the same key share one capacity pool.
type RedisActiveJobIndex struct {
	client redis.Cmdable
	key    string
	now    func() time.Time
}

// NewRedisActiveJobIndex creates an index stored under key, or [DefaultActiveJobsKey] when key is empty.
func NewRedisActiveJobIndex(client redis.Cmdable, key string) *RedisActiveJobIndex {
	if key == "" {
		key = DefaultActiveJobsKey
	}
	return &RedisActiveJobIndex{client: client, key: key, now: defaultClock}
}

// Add writes a marker for id that lives for ttl, replacing any existing one.
func (r *RedisActiveJobIndex) Add(ctx context.Context, id string, ttl time.Duration) error {
	expires := r.now().Add(ttl).UnixMilli()
	if err := r.client.ZAdd(ctx, r.key, redis.Z{Score: float64(expires), Member: id}).Err(); err != nil {
		return fmt.Errorf("failed to add active job: %w", err)
	}
	return nil
}

// Remove deletes the marker for id.
func (r *RedisActiveJobIndex) Remove(ctx context.Context, id string) error {
	if err := r.client.ZRem(ctx, r.key, id).Err(); err != nil {
		return fmt.Errorf("failed to remove active job: %w", err)
	}
	return nil
}

// Count returns the number of live markers.
func (r *RedisActiveJobIndex) Count(ctx context.Context) (int, error) {
	if err := r.sweep(ctx); err != nil {
		return 0, err
	}

	n, err := r.client.ZCard(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count active jobs: %w", err)
	}
	return int(n), nil
}

// IDs returns the job ids of live markers, soonest to expire first.
func (r *RedisActiveJobIndex) IDs(ctx context.Context) ([]string, error) {
	if err := r.sweep(ctx); err != nil {
		return nil, err
	}

	ids, err := r.client.ZRange(ctx, r.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list active jobs: %w", err)
	}
	return ids, nil
}

func (r *RedisActiveJobIndex) sweep(ctx context.Context) error {
	cutoff := strconv.FormatInt(r.now().UnixMilli(), 10)
	if err := r.client.ZRemRangeByScore(ctx, r.key, "-inf", cutoff).Err(); err != nil {
		return fmt.Errorf("failed to sweep active jobs: %w", err)
	}
	return nil
}
