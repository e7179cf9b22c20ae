package storage

import (
	"context"
	"errors"
	"time"

	pkgredis "github.com/angelmondragon/pokecard-storefront/pkg/redis"
)

// RedisKV is the subset of pkg/redis.Client the Redis store needs.
type RedisKV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	ShopperKey(key string) string
}

// Redis keeps shopper state in Redis so several shopper processes can share
// one session.
type Redis struct {
	kv RedisKV
}

func NewRedis(kv RedisKV) (*Redis, error) {
	if kv == nil {
		return nil, errors.New("redis client required")
	}
	return &Redis{kv: kv}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.kv.Get(ctx, r.kv.ShopperKey(key))
	if errors.Is(err, pkgredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return r.kv.Set(ctx, r.kv.ShopperKey(key), string(value), ttl)
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.kv.Del(ctx, r.kv.ShopperKey(key))
}
