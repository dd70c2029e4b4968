package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// UserLocker serializes critical sections scoped to a single key, so the
// count-then-evict-then-insert sequence of session admission can never
// observe a stale count. Production uses the Redis implementation; the
// local one covers single-process deployments and tests.
type UserLocker interface {
	// Acquire blocks until the lock is held or ctx is done. The returned
	// release function must be called exactly once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// RedisLocker implements UserLocker with SetNX + TTL on the shared cache
type RedisLocker struct {
	cache      *RedisCache
	ttl        time.Duration
	retryEvery time.Duration
}

// NewRedisLocker creates a distributed locker. The TTL bounds how long a
// crashed holder can block other workers.
func NewRedisLocker(cache *RedisCache) *RedisLocker {
	return &RedisLocker{
		cache:      cache,
		ttl:        10 * time.Second,
		retryEvery: 25 * time.Millisecond,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lockKey := "lock:" + key
	token := uuid.NewString()

	for {
		ok, err := l.cache.SetNX(ctx, lockKey, token, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			release := func() {
				// Only drop the lock if we still own it; an expired lock
				// may have been re-acquired by someone else.
				var current string
				if err := l.cache.Get(context.Background(), lockKey, &current); err == nil && current == token {
					_ = l.cache.Delete(context.Background(), lockKey)
				}
			}
			return release, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryEvery):
		}
	}
}

// LocalLocker implements UserLocker with in-process mutexes
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocalLocker creates an in-process locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}
