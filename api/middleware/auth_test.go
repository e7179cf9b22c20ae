package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/pokecard-storefront/pkg/auth"
	"github.com/angelmondragon/pokecard-storefront/pkg/auth/session"
	"github.com/angelmondragon/pokecard-storefront/pkg/config"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "pokecard", ExpirationMinutes: 60}

type stubSessionVerifier struct {
	ok  bool
	err error
}

func (s stubSessionVerifier) HasSession(context.Context, string) (bool, error) {
	return s.ok, s.err
}

func mintTestToken(t *testing.T, userID uuid.UUID) (string, string) {
	t.Helper()
	accessID := session.NewAccessID()
	token, err := auth.MintAccessToken(testJWT, time.Now(), auth.AccessTokenPayload{
		UserID: userID,
		Email:  "sacha@example.com",
		JTI:    accessID,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token, accessID
}

func serveAuth(verifier session.AccessSessionChecker, header string, next http.HandlerFunc) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/verify", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	Auth(testJWT, verifier, nil)(next).ServeHTTP(rec, req)
	return rec
}

func TestAuthRejectsMissingAndInvalidTokens(t *testing.T) {
	next := func(w http.ResponseWriter, r *http.Request) { t.Fatal("handler must not run") }
	for _, header := range []string{"", "Bearer ", "Bearer not-a-jwt"} {
		if rec := serveAuth(stubSessionVerifier{ok: true}, header, next); rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401 got %d", header, rec.Code)
		}
	}
}

func TestAuthPopulatesContext(t *testing.T) {
	userID := uuid.New()
	token, accessID := mintTestToken(t, userID)

	var gotUser, gotEmail, gotAccess string
	rec := serveAuth(stubSessionVerifier{ok: true}, "Bearer "+token, func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		gotEmail = EmailFromContext(r.Context())
		gotAccess = AccessIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if gotUser != userID.String() || gotEmail != "sacha@example.com" || gotAccess != accessID {
		t.Fatalf("unexpected context user=%q email=%q access=%q", gotUser, gotEmail, gotAccess)
	}
}

func TestAuthRejectsRevokedSession(t *testing.T) {
	token, _ := mintTestToken(t, uuid.New())
	next := func(w http.ResponseWriter, r *http.Request) { t.Fatal("handler must not run") }

	if rec := serveAuth(stubSessionVerifier{ok: false}, "Bearer "+token, next); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for revoked session got %d", rec.Code)
	}
	if rec := serveAuth(stubSessionVerifier{err: errors.New("redis down")}, "bearer "+token, next); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when session store fails got %d", rec.Code)
	}
}

func TestOptionalAuthFallsBackToAnonymous(t *testing.T) {
	userID := uuid.New()
	token, _ := mintTestToken(t, userID)

	cases := map[string]string{
		"":                 "",
		"Bearer not-a-jwt": "",
		"Bearer " + token:  userID.String(),
	}
	for header, want := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/products/variants/stock", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		var got string
		rec := httptest.NewRecorder()
		OptionalAuth(testJWT, stubSessionVerifier{ok: true}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = UserIDFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		})).ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("header %q: expected 200 got %d", header, rec.Code)
		}
		if got != want {
			t.Fatalf("header %q: expected user %q got %q", header, want, got)
		}
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"abc":          "abc",
		"":             "",
	}
	for in, want := range cases {
		if got := BearerToken(in); got != want {
			t.Fatalf("BearerToken(%q) = %q, want %q", in, got, want)
		}
	}
}
