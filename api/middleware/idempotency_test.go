package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	pkgerrors "github.com/angelmondragon/pokecard-storefront/pkg/errors"
	pkgredis "github.com/angelmondragon/pokecard-storefront/pkg/redis"
)

const checkoutPattern = "/api/v1/checkout/sessions"

type fakeStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", pkgredis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key], _ = value.(string)
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func checkoutRequest(userID, key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, checkoutPattern, strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{checkoutPattern}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	return req.WithContext(WithUser(ctx, userID, "dresseur@example.com"))
}

func TestIdempotencyRequiresHeaderOnCheckout(t *testing.T) {
	called := false
	handler := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, checkoutRequest("u1", "", `{}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if called {
		t.Fatal("handler should not run without idempotency key")
	}
}

func TestIdempotencyReplaysSuccessfulResponse(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"items":[]}` {
			t.Fatalf("body not restored for handler: %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"sessionId":"cs_1"}}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, checkoutRequest("u1", "k1", `{"items":[]}`))
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, checkoutRequest("u1", "k1", `{"items":[]}`))
	if second.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201 got %d", second.Code)
	}
	if second.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatal("expected replay header")
	}
	if strings.TrimSpace(second.Body.String()) != `{"data":{"sessionId":"cs_1"}}` {
		t.Fatalf("unexpected replay body %s", second.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
	for key, ttl := range store.ttls {
		if ttl != checkoutReplayTTL {
			t.Fatalf("key %s stored with ttl %v", key, ttl)
		}
	}
}

func TestIdempotencyScopesKeysPerUser(t *testing.T) {
	calls := 0
	handler := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest("u1", "shared", `{}`))
	handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest("u2", "shared", `{}`))
	if calls != 2 {
		t.Fatalf("expected both users to reach the handler, got %d", calls)
	}
}

func TestIdempotencyDoesNotStoreFailures(t *testing.T) {
	store := newFakeStore()
	status := http.StatusConflict
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(status)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest("u1", "retry", `{}`))
	if len(store.data) != 0 {
		t.Fatalf("failed response must not be stored: %v", store.data)
	}
	status = http.StatusCreated
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, checkoutRequest("u1", "retry", `{}`))
	if rec.Code != http.StatusCreated || calls != 2 {
		t.Fatalf("expected retry to run the handler, code=%d calls=%d", rec.Code, calls)
	}
}

func TestIdempotencyDetectsBodyChange(t *testing.T) {
	handler := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest("u1", "xyz", `{"items":[1]}`))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, checkoutRequest("u1", "xyz", `{"items":[2]}`))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	if payload.Error.Code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected %s got %s", pkgerrors.CodeIdempotency, payload.Error.Code)
	}
}

func TestIdempotencyIgnoresUnlistedRoutes(t *testing.T) {
	called := false
	handler := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{}`))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if !called {
		t.Fatal("unlisted route should pass through")
	}
}
