package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/pokecard-storefront/pkg/config"
)

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	allowed, count, err := client.FixedWindowAllow(ctx, "test-scope", 2, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Fatalf("expected allowed on first request")
	}
	if count != 1 {
		t.Fatalf("expected counter 1 got %d", count)
	}
	if len(mock.expireCalls) != 1 {
		t.Fatalf("expected expire for first increment")
	}

	allowed, count, err = client.FixedWindowAllow(ctx, "test-scope", 2, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed || count != 2 {
		t.Fatalf("unexpected second call state allowed=%v count=%d", allowed, count)
	}
	if len(mock.expireCalls) != 1 {
		t.Fatalf("expire should not be set again")
	}

	allowed, _, err = client.FixedWindowAllow(ctx, "test-scope", 2, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatalf("expected limit reached")
	}
}

func TestSetGetDelLifecycle(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	key := client.ShopperKey("cart:guest")
	if err := client.Set(ctx, key, `{"lines":[]}`, 10*time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	value, err := client.Get(ctx, key)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if value != `{"lines":[]}` {
		t.Fatalf("unexpected stored value %q", value)
	}

	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, key); err != Nil {
		t.Fatalf("expected Nil after delete, got %v", err)
	}
}

func TestSetNXOnlyOnce(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	key := client.IdempotencyKey("stripe-webhook", "evt_1")
	first, err := client.SetNX(ctx, key, "1", time.Hour)
	if err != nil || !first {
		t.Fatalf("expected first SetNX to win, got %v %v", first, err)
	}
	second, err := client.SetNX(ctx, key, "1", time.Hour)
	if err != nil || second {
		t.Fatalf("expected second SetNX to lose, got %v %v", second, err)
	}
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
	if _, err := client.Get(context.Background(), "k"); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close on nil raw should be a no-op, got %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	cases := map[string]string{
		client.IdempotencyKey("scope", "id"):  "pokecard:idempotency:scope:id",
		client.RateLimitKey("scope"):          "pokecard:rate_limit:scope",
		client.AccessSessionKey("jti"):        "pokecard:session:access:jti",
		client.LockKey("cron-worker", ""):     "pokecard:lock:cron-worker",
		client.LockKey("cron-worker", "prod"): "pokecard:lock:cron-worker:prod",
		client.ShopperKey("checkout:draft"):   "pokecard:shopper:checkout:draft",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("unexpected key %s, want %s", got, want)
		}
	}
}

func TestOptionsFromConfig(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("expected error without url or address")
	}
	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/3", PoolSize: 7, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.DB != 3 || opts.PoolSize != 7 || opts.DialTimeout != time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}
}

type mockCmdable struct {
	data        map[string]string
	incr        map[string]int64
	expireCalls []expireCall
}

type expireCall struct {
	key string
	ttl time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data: make(map[string]string),
		incr: make(map[string]int64),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Incr(ctx context.Context, key string) *redis.IntCmd {
	m.incr[key]++
	return redis.NewIntResult(m.incr[key], nil)
}

func (m *mockCmdable) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	m.expireCalls = append(m.expireCalls, expireCall{key: key, ttl: expiration})
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}
