package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	stripewebhook "github.com/angelmondragon/pokecard-storefront/internal/webhooks/stripe"
	pkgerrors "github.com/angelmondragon/pokecard-storefront/pkg/errors"
)

const testSecret = "whsec_test"

func TestStripeWebhook_SuccessAndIdempotent(t *testing.T) {
	payload, header := buildSignedEvent(t)
	service := &fakeStripeWebhookService{}
	handler := StripeWebhook(service, signingVerifier{secret: testSecret}, newGuard(t), nil)

	rec := post(handler, payload, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if service.calls != 1 {
		t.Fatalf("expected service called once, got %d", service.calls)
	}

	rec2 := post(handler, payload, header)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 on duplicate, got %d (%s)", rec2.Code, rec2.Body.String())
	}
	if service.calls != 1 {
		t.Fatalf("expected duplicate not processed, call count %d", service.calls)
	}
}

func TestStripeWebhook_FailureReleasesGuard(t *testing.T) {
	payload, header := buildSignedEvent(t)
	service := &fakeStripeWebhookService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "stock no longer covers the paid session")}
	handler := StripeWebhook(service, signingVerifier{secret: testSecret}, newGuard(t), nil)

	rec := post(handler, payload, header)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d (%s)", rec.Code, rec.Body.String())
	}

	service.err = nil
	rec = post(handler, payload, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected retry to succeed, got %d", rec.Code)
	}
	if service.calls != 2 {
		t.Fatalf("expected retry to reach the service, got %d calls", service.calls)
	}
}

func TestStripeWebhook_InvalidSignature(t *testing.T) {
	payload, _ := buildSignedEvent(t)
	service := &fakeStripeWebhookService{}
	handler := StripeWebhook(service, signingVerifier{secret: testSecret}, newGuard(t), nil)

	rec := post(handler, payload, "t=1,v1=invalid")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid signature, got %d", rec.Code)
	}
	rec = post(handler, payload, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing signature, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatalf("service should not be invoked on invalid signature")
	}
}

func post(handler http.Handler, payload []byte, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	if header != "" {
		req.Header.Set("Stripe-Signature", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func newGuard(t *testing.T) *stripewebhook.IdempotencyGuard {
	t.Helper()
	guard, err := stripewebhook.NewIdempotencyGuard(newInMemoryStore(), time.Minute, "")
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	return guard
}

func buildSignedEvent(t *testing.T) ([]byte, string) {
	t.Helper()
	rawSession, err := json.Marshal(map[string]any{
		"id":             "cs_test_" + uuid.NewString(),
		"object":         "checkout.session",
		"payment_status": "paid",
	})
	if err != nil {
		t.Fatalf("marshal session: %v", err)
	}
	event := &stripe.Event{
		ID:         "evt_" + uuid.NewString(),
		Type:       stripe.EventTypeCheckoutSessionCompleted,
		Object:     "event",
		APIVersion: stripe.APIVersion,
		Data:       &stripe.EventData{Raw: rawSession},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload, buildStripeSignatureHeader(payload, testSecret, time.Now().Unix())
}

func buildStripeSignatureHeader(payload []byte, secret string, ts int64) string {
	signedPayload := fmt.Sprintf("%d.%s", ts, payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

type signingVerifier struct {
	secret string
}

func (v signingVerifier) ConstructEvent(payload []byte, signature string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
}

type fakeStripeWebhookService struct {
	calls int
	err   error
}

func (f *fakeStripeWebhookService) HandleEvent(ctx context.Context, event *stripe.Event) error {
	f.calls++
	if event == nil {
		return errors.New("nil event")
	}
	return f.err
}

type inMemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{data: make(map[string]string)}
}

func (s *inMemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *inMemoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (s *inMemoryStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("pokecard:idempotency:%s:%s", scope, id)
}

func (s *inMemoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}
