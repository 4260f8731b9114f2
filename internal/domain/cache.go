package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU plus Redis.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// IncrementCounter atomically increments a windowed counter and
	// returns the new value. Used to track claim-filing frequency.
	IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error)

	// CounterValue reads a windowed counter without incrementing it.
	// Returns zero when the counter is absent or its window elapsed.
	CounterValue(ctx context.Context, key string) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `envconfig:"CACHE_TYPE"`

	// Local LRU cache settings
	LocalMaxSize int           `envconfig:"CACHE_LOCAL_MAX_SIZE"`
	LocalTTL     time.Duration `envconfig:"CACHE_LOCAL_TTL"`

	// Redis settings
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB"`

	// Two-phase settings
	EnableTwoPhase bool `envconfig:"CACHE_TWO_PHASE"` // check local first, then Redis
}
