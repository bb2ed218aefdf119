package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	errs "github.com/sweetpotato0/toolbridge/errors"
)

// RedisStore reads credentials from Redis string keys
type RedisStore struct {
	client  *redis.Client
	prefix  string // Key prefix for namespacing
	timeout time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string        // Redis server address (e.g., "localhost:6379")
	Password string        // Redis password (if any)
	DB       int           // Redis database number
	Prefix   string        // Key prefix for namespacing
	Timeout  time.Duration // Per-lookup timeout (0 means none)
}

// NewRedisStore creates a new Redis-backed credential store
func NewRedisStore(config *RedisConfig) *RedisStore {
	if config == nil {
		config = &RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "toolbridge:credential:",
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	return &RedisStore{
		client:  client,
		prefix:  config.Prefix,
		timeout: config.Timeout,
	}
}

// Lookup returns the secret stored under the prefixed ref
func (s *RedisStore) Lookup(ctx context.Context, ref string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	secret, err := s.client.Get(ctx, s.prefix+ref).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("credential %q: %w", ref, errs.ErrNotFound)
		}
		return "", fmt.Errorf("failed to read credential from Redis: %w", err)
	}
	return secret, nil
}

// Put stores a secret, expiring it after ttl when ttl > 0
func (s *RedisStore) Put(ctx context.Context, ref, secret string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+ref, secret, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store credential in Redis: %w", err)
	}
	return nil
}

// Delete removes a secret
func (s *RedisStore) Delete(ctx context.Context, ref string) error {
	return s.client.Del(ctx, s.prefix+ref).Err()
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis connection is alive
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
