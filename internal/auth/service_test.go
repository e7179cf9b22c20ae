package auth

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/pokecard-storefront/internal/users"
	pkgAuth "github.com/angelmondragon/pokecard-storefront/pkg/auth"
	"github.com/angelmondragon/pokecard-storefront/pkg/auth/session"
	"github.com/angelmondragon/pokecard-storefront/pkg/config"
	"github.com/angelmondragon/pokecard-storefront/pkg/db"
	"github.com/angelmondragon/pokecard-storefront/pkg/db/dbtest"
	pkgerrors "github.com/angelmondragon/pokecard-storefront/pkg/errors"
)

var (
	testJWT = config.JWTConfig{
		Secret:                 "secret",
		Issuer:                 "pokecard",
		ExpirationMinutes:      15,
		RefreshTokenTTLMinutes: 60,
	}
	testPassword = config.PasswordConfig{
		ArgonMemoryKB:    64,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
		MinLength:        8,
	}
)

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]session.Issued
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: map[string]session.Issued{}}
}

func (f *fakeSessions) Start(_ context.Context, userID uuid.UUID) (session.Issued, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	issued := session.Issued{AccessID: uuid.NewString(), RefreshToken: uuid.NewString(), UserID: userID}
	f.sessions[issued.AccessID] = issued
	return issued, nil
}

func (f *fakeSessions) Rotate(_ context.Context, oldAccessID, provided string) (session.Issued, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.sessions[oldAccessID]
	if !ok || current.RefreshToken != provided {
		return session.Issued{}, session.ErrInvalidRefreshToken
	}
	delete(f.sessions, oldAccessID)
	next := session.Issued{AccessID: uuid.NewString(), RefreshToken: uuid.NewString(), UserID: current.UserID}
	f.sessions[next.AccessID] = next
	return next, nil
}

func (f *fakeSessions) Revoke(_ context.Context, accessID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if accessID == "" {
		return fmt.Errorf("access id is required")
	}
	delete(f.sessions, accessID)
	return nil
}

func (f *fakeSessions) has(accessID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sessions[accessID]
	return ok
}

type fixture struct {
	login    Service
	register RegisterService
	sessions *fakeSessions
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	sessions := newFakeSessions()
	login, err := NewService(ServiceParams{UserRepo: users.NewRepository(conn), SessionManager: sessions, JWTConfig: testJWT})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	register, err := NewRegisterService(RegisterServiceParams{
		DB:             db.Wrap(conn),
		SessionManager: sessions,
		PasswordConfig: testPassword,
		JWTConfig:      testJWT,
	})
	if err != nil {
		t.Fatalf("new register service: %v", err)
	}
	return fixture{login: login, register: register, sessions: sessions}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(ServiceParams{SessionManager: newFakeSessions()}); err == nil {
		t.Fatal("expected error without user repo")
	}
	if _, err := NewRegisterService(RegisterServiceParams{}); err == nil {
		t.Fatal("expected error without db")
	}
}

func TestRegisterThenLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	registered, err := f.register.Register(ctx, RegisterRequest{
		Email:     " Ondine@Example.com ",
		Password:  "psykokwak",
		FirstName: "Ondine",
		LastName:  "Azuria",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if registered.User == nil || registered.User.Email != "ondine@example.com" {
		t.Fatalf("expected normalized email, got %+v", registered.User)
	}
	claims, err := pkgAuth.ParseAccessToken(testJWT, registered.AccessToken)
	if err != nil {
		t.Fatalf("parse registered token: %v", err)
	}
	if !f.sessions.has(claims.ID) {
		t.Fatal("expected register to open a refresh session keyed by jti")
	}

	loggedIn, err := f.login.Login(ctx, LoginRequest{Email: "ONDINE@example.com", Password: "psykokwak"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if loggedIn.User.LastLoginAt == nil {
		t.Fatal("expected last login to be recorded")
	}
	if loggedIn.ExpiresIn != 900 {
		t.Fatalf("expected 900s expiry, got %d", loggedIn.ExpiresIn)
	}
}

func TestRegisterRejectsDuplicateAndWeakPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := RegisterRequest{Email: "pierre@example.com", Password: "onix-onix", FirstName: "Pierre", LastName: "Argenta"}
	if _, err := f.register.Register(ctx, req); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := f.register.Register(ctx, req); !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict on duplicate email, got %v", err)
	}

	weak := req
	weak.Email = "other@example.com"
	weak.Password = "short"
	if _, err := f.register.Register(ctx, weak); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for short password, got %v", err)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.register.Register(ctx, RegisterRequest{Email: "red@example.com", Password: "pikachu-1", FirstName: "Red", LastName: "Bourg"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := f.login.Login(ctx, LoginRequest{Email: "red@example.com", Password: "wrong-pass"}); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for wrong password, got %v", err)
	}
	if _, err := f.login.Login(ctx, LoginRequest{Email: "blue@example.com", Password: "pikachu-1"}); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for unknown email, got %v", err)
	}
}

func TestRefreshRotatesAndLogoutRevokes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.register.Register(ctx, RegisterRequest{Email: "blue@example.com", Password: "evoli-evoli", FirstName: "Blue", LastName: "Chen"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	rotated, err := f.login.Refresh(ctx, first.AccessToken, first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.RefreshToken == first.RefreshToken {
		t.Fatal("expected refresh token to rotate")
	}

	if _, err := f.login.Refresh(ctx, first.AccessToken, first.RefreshToken); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected replayed refresh to fail, got %v", err)
	}

	claims, err := pkgAuth.ParseAccessToken(testJWT, rotated.AccessToken)
	if err != nil {
		t.Fatalf("parse rotated token: %v", err)
	}
	if err := f.login.Logout(ctx, rotated.AccessToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if f.sessions.has(claims.ID) {
		t.Fatal("expected logout to revoke the session")
	}

	me, err := f.login.Me(ctx, claims.UserID)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if me.Email != "blue@example.com" {
		t.Fatalf("unexpected user %+v", me)
	}
	if _, err := f.login.Me(ctx, uuid.New()); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for unknown user, got %v", err)
	}
}
