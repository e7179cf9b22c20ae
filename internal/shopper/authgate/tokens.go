package authgate

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/pokecard-storefront/internal/shopper/apiclient"
	"github.com/angelmondragon/pokecard-storefront/internal/shopper/storage"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
)

// Session is the signed-in shopper as stored client side.
type Session struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	UserID       string    `json:"userId"`
	Email        string    `json:"email"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Tokens persists the session and serves the bearer token to the API client.
type Tokens struct {
	kv   storage.Store
	now  func() time.Time
	logg *logger.Logger
}

func NewTokens(kv storage.Store, logg *logger.Logger) (*Tokens, error) {
	if kv == nil {
		return nil, errors.New("token storage required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Tokens{kv: kv, now: time.Now, logg: logg}, nil
}

func (t *Tokens) Save(ctx context.Context, tok *apiclient.Tokens) (Session, error) {
	if tok == nil || tok.AccessToken == "" {
		return Session{}, errors.New("empty token response")
	}
	s := Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    t.now().Add(time.Duration(tok.ExpiresIn) * time.Second).UTC(),
	}
	if tok.User != nil {
		s.UserID = tok.User.ID.String()
		s.Email = tok.User.Email
	}
	if err := storage.SetJSON(ctx, t.kv, storage.KeyAuthToken, s, 0); err != nil {
		return Session{}, err
	}
	return s, nil
}

// Load returns the stored session or nil.
func (t *Tokens) Load(ctx context.Context) (*Session, error) {
	var s Session
	err := storage.GetJSON(ctx, t.kv, storage.KeyAuthToken, &s)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// AccessToken implements apiclient.TokenSource.
func (t *Tokens) AccessToken(ctx context.Context) string {
	s, err := t.Load(ctx)
	if err != nil {
		t.logg.Error(ctx, "auth.token.load.failed", err)
		return ""
	}
	if s == nil {
		return ""
	}
	return s.AccessToken
}

func (t *Tokens) Clear(ctx context.Context) error {
	return t.kv.Delete(ctx, storage.KeyAuthToken)
}
