package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/pokecard-storefront/pkg/config"
	redisclient "github.com/angelmondragon/pokecard-storefront/pkg/redis"
	"github.com/google/uuid"
)

const refreshTokenBytes = 32

var ErrInvalidRefreshToken = errors.New("invalid refresh token")

type sessionStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

type sessionKeyer interface {
	AccessSessionKey(accessID string) string
}

// record is what lives under the access-session key.
type record struct {
	UserID       uuid.UUID `json:"userId"`
	RefreshToken string    `json:"refreshToken"`
}

// Issued is a freshly stored access/refresh pairing.
type Issued struct {
	AccessID     string
	RefreshToken string
	UserID       uuid.UUID
}

// Manager handles refresh token creation, storage, and rotation.
type Manager struct {
	store sessionStore
	keyer sessionKeyer
	ttl   time.Duration
}

// AccessSessionChecker exposes the read-only surface needed by middleware.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

// NewManager constructs a session manager backed by Redis.
func NewManager(client *redisclient.Client, cfg config.JWTConfig) (*Manager, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return newManager(client, client, cfg)
}

func newManager(store sessionStore, keyer sessionKeyer, cfg config.JWTConfig) (*Manager, error) {
	ttl := cfg.RefreshTokenTTL()
	if ttl <= 0 {
		return nil, fmt.Errorf("refresh token ttl must be positive")
	}
	accessTTL := time.Duration(cfg.ExpirationMinutes) * time.Minute
	if ttl <= accessTTL {
		return nil, fmt.Errorf("refresh token ttl (%s) must exceed access token ttl (%s)", ttl, accessTTL)
	}
	return &Manager{store: store, keyer: keyer, ttl: ttl}, nil
}

// Start opens a new session for the user and returns its access id and refresh token.
func (m *Manager) Start(ctx context.Context, userID uuid.UUID) (Issued, error) {
	if userID == uuid.Nil {
		return Issued{}, fmt.Errorf("user id is required")
	}
	issued := Issued{AccessID: NewAccessID(), UserID: userID}
	token, err := m.persist(ctx, issued.AccessID, userID)
	if err != nil {
		return Issued{}, err
	}
	issued.RefreshToken = token
	return issued, nil
}

// Rotate validates the provided refresh token, invalidates the prior session, and issues a new pair.
func (m *Manager) Rotate(ctx context.Context, oldAccessID, provided string) (Issued, error) {
	if strings.TrimSpace(oldAccessID) == "" || strings.TrimSpace(provided) == "" {
		return Issued{}, ErrInvalidRefreshToken
	}

	key := m.keyer.AccessSessionKey(oldAccessID)
	rec, err := m.load(ctx, key)
	if err != nil {
		return Issued{}, err
	}
	if subtle.ConstantTimeCompare([]byte(rec.RefreshToken), []byte(provided)) != 1 {
		return Issued{}, ErrInvalidRefreshToken
	}

	next := Issued{AccessID: NewAccessID(), UserID: rec.UserID}
	token, err := m.persist(ctx, next.AccessID, rec.UserID)
	if err != nil {
		return Issued{}, err
	}
	next.RefreshToken = token

	if err := m.store.Del(ctx, key); err != nil {
		return Issued{}, err
	}
	return next, nil
}

// Revoke deletes the refresh mapping tied to the access identifier.
func (m *Manager) Revoke(ctx context.Context, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return fmt.Errorf("access id is required")
	}
	return m.store.Del(ctx, m.keyer.AccessSessionKey(accessID))
}

// HasSession reports whether the provided access ID still has an active refresh session.
func (m *Manager) HasSession(ctx context.Context, accessID string) (bool, error) {
	if strings.TrimSpace(accessID) == "" {
		return false, fmt.Errorf("access id is required")
	}
	if _, err := m.store.Get(ctx, m.keyer.AccessSessionKey(accessID)); err != nil {
		if errors.Is(err, redisclient.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// NewAccessID produces the identifier used as the JWT jti and Redis key.
func NewAccessID() string {
	return uuid.NewString()
}

func (m *Manager) persist(ctx context.Context, accessID string, userID uuid.UUID) (string, error) {
	token, err := generateRefreshToken()
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(record{UserID: userID, RefreshToken: token})
	if err != nil {
		return "", fmt.Errorf("encoding session: %w", err)
	}
	if err := m.store.Set(ctx, m.keyer.AccessSessionKey(accessID), string(raw), m.ttl); err != nil {
		return "", err
	}
	return token, nil
}

func (m *Manager) load(ctx context.Context, key string) (record, error) {
	raw, err := m.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redisclient.Nil) {
			return record{}, ErrInvalidRefreshToken
		}
		return record{}, err
	}
	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.RefreshToken == "" {
		return record{}, ErrInvalidRefreshToken
	}
	return rec, nil
}

func generateRefreshToken() (string, error) {
	bytes := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generating refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
