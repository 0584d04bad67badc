package settle

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker guards the settlement sweep so at most one runs at a time.
// TryLock returns false when another sweep holds the lock; the caller
// skips the run instead of queueing behind it.
type Locker interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// LocalLocker is a single-process locker backed by an atomic flag.
type LocalLocker struct {
	held atomic.Bool
}

func NewLocalLocker() *LocalLocker { return &LocalLocker{} }

func (l *LocalLocker) TryLock(ctx context.Context) (bool, error) {
	return l.held.CompareAndSwap(false, true), nil
}

func (l *LocalLocker) Unlock(ctx context.Context) error {
	l.held.Store(false)
	return nil
}

// RedisLocker is a cross-process locker using SET NX with a TTL, so a
// crashed holder releases the lock after at most TTL.
type RedisLocker struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisLocker creates a locker on the given key. A zero ttl defaults
// to two minutes.
func NewRedisLocker(client *redis.Client, key string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisLocker{client: client, key: key, ttl: ttl}
}

func (l *RedisLocker) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, "held", l.ttl).Result()
}

func (l *RedisLocker) Unlock(ctx context.Context) error {
	return l.client.Del(ctx, l.key).Err()
}
