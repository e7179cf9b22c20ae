package routes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/pokecard-storefront/internal/checkout"
	pkgAuth "github.com/angelmondragon/pokecard-storefront/pkg/auth"
	"github.com/angelmondragon/pokecard-storefront/pkg/auth/session"
	"github.com/angelmondragon/pokecard-storefront/pkg/config"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
	pkgredis "github.com/angelmondragon/pokecard-storefront/pkg/redis"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type memoryCache struct {
	stubPinger
	data map[string]string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string]string{}}
}

func (m *memoryCache) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", pkgredis.Nil
}

func (m *memoryCache) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryCache) IdempotencyKey(scope, id string) string { return "idem:" + scope + ":" + id }

func (m *memoryCache) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryCache) FixedWindowAllow(context.Context, string, int64, time.Duration) (bool, int64, error) {
	return true, 1, nil
}

type liveSessions struct{}

func (liveSessions) HasSession(context.Context, string) (bool, error) { return true, nil }

type countingCheckout struct {
	creates int
}

func (c *countingCheckout) CreateSession(_ context.Context, input checkout.CreateSessionInput) (*checkout.SessionResult, error) {
	c.creates++
	return &checkout.SessionResult{CheckoutID: uuid.NewString(), SessionID: "cs_test_" + input.IdempotencyKey, URL: "https://checkout.stripe.com/pay"}, nil
}

func (c *countingCheckout) GetSession(context.Context, uuid.UUID, string) (*checkout.SessionStatusDTO, error) {
	return &checkout.SessionStatusDTO{}, nil
}

var routerJWT = config.JWTConfig{Secret: "router-secret", Issuer: "pokecard", ExpirationMinutes: 15}

func newTestRouter(t *testing.T, svc *countingCheckout) http.Handler {
	t.Helper()
	cfg := &config.Config{JWT: routerJWT}
	cfg.App.Env = "test"
	return NewRouter(Params{
		Config:   cfg,
		Logger:   logger.Nop(),
		DB:       stubPinger{},
		Cache:    newMemoryCache(),
		Sessions: liveSessions{},
		Gatherer: prometheus.NewRegistry(),
		Checkout: svc,
	})
}

func bearer(t *testing.T) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(routerJWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: uuid.New(),
		Email:  "sacha@example.com",
		JTI:    session.NewAccessID(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return "Bearer " + token
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	router := newTestRouter(t, &countingCheckout{})
	for _, path := range []string{"/health/live", "/health/ready", "/metrics", "/api/v1/shipping-methods"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, rec.Code)
		}
	}
}

func TestCheckoutRequiresAuthentication(t *testing.T) {
	router := newTestRouter(t, &countingCheckout{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/checkout/sessions", strings.NewReader(`{}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestCheckoutReplaysSameIdempotencyKey(t *testing.T) {
	svc := &countingCheckout{}
	router := newTestRouter(t, svc)
	auth := bearer(t)
	body := `{"items":[{"variantId":"3f1c2b9e-8a62-4c7e-9a55-0f1e2d3c4b5a","quantity":1}],
"shipping":{"fullName":"Sacha Ketchum","addressLine1":"1 rue du Bourg","postalCode":"75001","city":"Paris","country":"FR"}}`

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/sessions", strings.NewReader(body))
		req.Header.Set("Authorization", auth)
		req.Header.Set("Idempotency-Key", "checkout-key-1")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	first := send()
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", first.Code, first.Body.String())
	}
	second := send()
	if second.Code != http.StatusCreated || second.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("expected stored replay, got %d %v", second.Code, second.Header())
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("replayed body differs")
	}
	if svc.creates != 1 {
		t.Fatalf("expected one create, got %d", svc.creates)
	}
}
