package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	pkgredis "github.com/angelmondragon/pokecard-storefront/pkg/redis"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func TestMemoryExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	c := &clock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryWithClock(c.Now)

	if err := store.Set(ctx, KeyDraft, []byte(`{"a":1}`), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	c.now = c.now.Add(59 * time.Second)
	if _, err := store.Get(ctx, KeyDraft); err != nil {
		t.Fatalf("expected value before ttl, got %v", err)
	}
	c.now = c.now.Add(time.Second)
	if _, err := store.Get(ctx, KeyDraft); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after ttl, got %v", err)
	}
}

func TestMemoryReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	_ = store.Set(ctx, "k", []byte(`"abc"`), 0)
	got, _ := store.Get(ctx, "k")
	got[1] = 'z'
	again, _ := store.Get(ctx, "k")
	if string(again) != `"abc"` {
		t.Fatalf("stored value mutated through Get: %s", again)
	}
}

func TestFileRoundTripAndDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}

	type payload struct {
		Lines []string `json:"lines"`
	}
	if err := SetJSON(ctx, store, CartKey("user-1"), payload{Lines: []string{"v1", "v2"}}, 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	reopened, err := NewFile(store.dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	var got payload
	if err := GetJSON(ctx, reopened, CartKey("user-1"), &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Lines) != 2 || got.Lines[1] != "v2" {
		t.Fatalf("unexpected payload %+v", got)
	}

	if err := reopened.Delete(ctx, CartKey("user-1")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := reopened.Delete(ctx, CartKey("user-1")); err != nil {
		t.Fatalf("second delete should be a no-op, got %v", err)
	}
	if _, err := reopened.Get(ctx, CartKey("user-1")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFileHonoursTTL(t *testing.T) {
	ctx := context.Background()
	store, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	c := &clock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	store.now = c.Now

	if err := store.Set(ctx, KeyIntent, []byte(`true`), 10*time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	c.now = c.now.Add(11 * time.Minute)
	if _, err := store.Get(ctx, KeyIntent); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired intent, got %v", err)
	}
}

func TestFileRejectsNonJSON(t *testing.T) {
	store, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if err := store.Set(context.Background(), "k", []byte("not json"), 0); err == nil {
		t.Fatal("expected error for non-json value")
	}
}

type fakeKV struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func (f *fakeKV) Get(_ context.Context, key string) (string, error) {
	v, ok := f.values[key]
	if !ok {
		return "", pkgredis.Nil
	}
	return v, nil
}

func (f *fakeKV) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.values[key] = value.(string)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeKV) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.values, k)
	}
	return nil
}

func (f *fakeKV) ShopperKey(key string) string { return "ns:" + key }

func TestRedisNamespacesAndMapsNil(t *testing.T) {
	ctx := context.Background()
	kv := &fakeKV{values: map[string]string{}, ttls: map[string]time.Duration{}}
	store, err := NewRedis(kv)
	if err != nil {
		t.Fatalf("new redis store: %v", err)
	}

	if _, err := store.Get(ctx, KeyAuthToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Set(ctx, KeyAuthToken, []byte(`"tok"`), time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	if kv.values["ns:"+KeyAuthToken] != `"tok"` || kv.ttls["ns:"+KeyAuthToken] != time.Hour {
		t.Fatalf("unexpected redis state %+v %+v", kv.values, kv.ttls)
	}
	if err := store.Delete(ctx, KeyAuthToken); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(kv.values) != 0 {
		t.Fatalf("expected key removed, got %+v", kv.values)
	}
}

func TestCartKeyDefaultsToGuest(t *testing.T) {
	if got := CartKey("  "); got != "pokecard:cart:guest" {
		t.Fatalf("unexpected guest key %q", got)
	}
	if got := CartKey("u1"); got != "pokecard:cart:u1" {
		t.Fatalf("unexpected user key %q", got)
	}
}
