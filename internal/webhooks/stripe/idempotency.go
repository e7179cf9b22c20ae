package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/pokecard-storefront/pkg/redis"
)

const guardScope = "stripe-webhook"

// IdempotencyGuard remembers processed provider event ids in Redis.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

// NewIdempotencyGuard builds a guard; an empty scope uses the stripe default.
func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	if scope == "" {
		scope = guardScope
	}
	return &IdempotencyGuard{store: store, ttl: ttl, scope: scope}, nil
}

// CheckAndMark claims eventID. It reports true when the event was already seen.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	set, err := g.store.SetNX(ctx, g.store.IdempotencyKey(g.scope, eventID), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Delete releases eventID so a provider retry is processed again.
func (g *IdempotencyGuard) Delete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(g.scope, eventID))
}
