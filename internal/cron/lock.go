package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/pokecard-storefront/pkg/redis"
)

const defaultLockTTL = 10 * time.Minute

// Lock makes sure one worker runs a cycle at a time.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// lockStore is the subset of *pkg/redis.Client the lock needs.
type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLock stores a random owner token under key with a TTL so a crashed
// worker never holds the cycle forever.
type RedisLock struct {
	store lockStore
	key   string
	ttl   time.Duration
	owner string
}

// NewRedisLock builds a lock; ttl <= 0 uses ten minutes.
func NewRedisLock(store lockStore, key string, ttl time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("lock store required")
	}
	if key == "" {
		return nil, errors.New("lock key required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if ok {
		l.owner = token
	}
	return ok, nil
}

// Release deletes the key only while it still carries our token.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	current, err := l.store.Get(ctx, l.key)
	switch {
	case errors.Is(err, redis.Nil):
		l.owner = ""
		return nil
	case err != nil:
		return fmt.Errorf("read %s owner: %w", l.key, err)
	}
	if current != l.owner {
		l.owner = ""
		return nil
	}
	if err := l.store.Del(ctx, l.key); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	l.owner = ""
	return nil
}
