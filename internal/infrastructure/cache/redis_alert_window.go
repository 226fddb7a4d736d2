package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marketsync/backend/internal/domain/shared"
)

// RedisAlertWindowStore implements AlertWindowStore using Redis.
// This is suitable for distributed deployments where multiple instances
// must share the rolling alert window.
type RedisAlertWindowStore struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisAlertWindowStore creates a new Redis-based alert window store
func NewRedisAlertWindowStore(cfg RedisConfig) (*RedisAlertWindowStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisAlertWindowStore{
		client:    client,
		keyPrefix: "alert:window:",
	}, nil
}

// NewRedisAlertWindowStoreWithClient creates a store with an existing Redis client
// This is useful for testing or when sharing a client across components
func NewRedisAlertWindowStoreWithClient(client *redis.Client, keyPrefix string) *RedisAlertWindowStore {
	if keyPrefix == "" {
		keyPrefix = "alert:window:"
	}
	return &RedisAlertWindowStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Acquire claims the alert slot for a key within the rolling window.
// Returns true if the slot was newly claimed, false if an alert already fired
// inside the window. Uses SETNX with TTL in a single atomic operation.
func (s *RedisAlertWindowStore) Acquire(ctx context.Context, key string, window time.Duration) (bool, error) {
	fresh, err := s.client.SetNX(ctx, s.keyPrefix+key, "1", window).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire alert window: %w", err)
	}
	return fresh, nil
}

// Close closes the Redis client
func (s *RedisAlertWindowStore) Close() error {
	return s.client.Close()
}

// GetClient returns the underlying Redis client (for testing/monitoring)
func (s *RedisAlertWindowStore) GetClient() *redis.Client {
	return s.client
}

// Ensure RedisAlertWindowStore implements AlertWindowStore
var _ shared.AlertWindowStore = (*RedisAlertWindowStore)(nil)
