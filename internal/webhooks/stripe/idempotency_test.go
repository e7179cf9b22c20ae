package stripewebhook

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = fmt.Sprint(value)
	return true, nil
}

func (s *memoryStore) IdempotencyKey(scope, id string) string {
	return "pokecard:idempotency:" + scope + ":" + id
}

func (s *memoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func TestIdempotencyGuard(t *testing.T) {
	store := &memoryStore{data: map[string]string{}}
	guard, err := NewIdempotencyGuard(store, time.Hour, "")
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	ctx := context.Background()

	seen, err := guard.CheckAndMark(ctx, "evt_1")
	if err != nil || seen {
		t.Fatalf("first delivery should be new, seen=%v err=%v", seen, err)
	}
	if _, ok := store.data["pokecard:idempotency:stripe-webhook:evt_1"]; !ok {
		t.Fatalf("expected default scope key, got %v", store.data)
	}
	seen, _ = guard.CheckAndMark(ctx, "evt_1")
	if !seen {
		t.Fatal("second delivery should be reported as seen")
	}
	if err := guard.Delete(ctx, "evt_1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	seen, _ = guard.CheckAndMark(ctx, "evt_1")
	if seen {
		t.Fatal("released event should be processed again")
	}

	if _, err := guard.CheckAndMark(ctx, ""); err == nil {
		t.Fatal("expected error for empty event id")
	}
	if _, err := NewIdempotencyGuard(nil, time.Hour, ""); err == nil {
		t.Fatal("expected error for nil store")
	}
}
