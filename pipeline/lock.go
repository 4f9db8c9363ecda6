package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultLockTTL bounds how long a crashed run can keep its agent
// locked out.
const defaultLockTTL = 10 * time.Minute

// Locker serializes runs of one agent. Keys are agent IDs.
type Locker interface {
	// TryAcquire takes the lock for key if it is free. It returns
	// false when another run already holds it.
	TryAcquire(ctx context.Context, key string) (bool, error)

	// Release frees the lock for key.
	Release(ctx context.Context, key string) error
}

// LocalLocker is an in-process lock for single-instance deployments.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

var _ Locker = (*LocalLocker)(nil)

// NewLocalLocker creates an empty in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]bool)}
}

// TryAcquire takes the lock if free.
func (l *LocalLocker) TryAcquire(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

// Release frees the lock.
func (l *LocalLocker) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

// RedisLocker is a Redis-backed advisory lock shared across service
// instances. Acquisition is SET NX with a TTL so a crashed holder
// cannot lock its agent out forever.
type RedisLocker struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

var _ Locker = (*RedisLocker)(nil)

// NewRedisLocker connects to Redis at redisURL. A zero ttl uses the
// 10-minute default.
//
// Example:
//
//	locker, err := pipeline.NewRedisLocker("redis://localhost:6379", 0)
func NewRedisLocker(redisURL string, ttl time.Duration) (*RedisLocker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}

	return &RedisLocker{
		client:    redis.NewClient(opts),
		keyPrefix: "relay:agents:lock",
		ttl:       ttl,
	}, nil
}

func (l *RedisLocker) lockKey(key string) string {
	return fmt.Sprintf("%s:%s", l.keyPrefix, key)
}

// TryAcquire takes the lock if free.
func (l *RedisLocker) TryAcquire(ctx context.Context, key string) (bool, error) {
	acquired, err := l.client.SetNX(ctx, l.lockKey(key), "1", l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	return acquired, nil
}

// Release frees the lock.
func (l *RedisLocker) Release(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.lockKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to release run lock: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
