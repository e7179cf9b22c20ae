// Package storage holds the shopper's client-side state: the cart, the
// checkout draft, the idempotency record, the checkout intent and tokens.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("storage: key not found")

// Namespaced keys. Each is read and written independently.
const (
	cartKeyPrefix  = "pokecard:cart:"
	KeyDraft       = "pokecard:checkout:draft"
	KeyIdempotency = "pokecard:checkout:idempotency"
	KeyIntent      = "pokecard:checkout:intent"
	KeyAuthToken   = "pokecard:auth:token"

	GuestOwner = "guest"
)

// Store is a small key/value surface with optional expiry. A ttl <= 0 keeps
// the value until it is overwritten or deleted.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// CartKey returns the key holding the cart of owner (a user id or guest).
func CartKey(owner string) string {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		owner = GuestOwner
	}
	return cartKeyPrefix + owner
}

// GetJSON decodes the value at key into dest.
func GetJSON(ctx context.Context, s Store, key string, dest any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes value and stores it at key.
func SetJSON(ctx context.Context, s Store, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw, ttl)
}
