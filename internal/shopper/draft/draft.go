// Package draft keeps the in-progress checkout form alive across detours
// such as the sign-in redirect.
package draft

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/pokecard-storefront/internal/shopper/storage"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
	"github.com/angelmondragon/pokecard-storefront/pkg/types"
)

const DefaultTTL = 30 * time.Minute

// Draft is the checkout form as last edited.
type Draft struct {
	Email              string                `json:"email"`
	PromoCode          string                `json:"promoCode,omitempty"`
	Shipping           types.ShippingAddress `json:"shipping"`
	ShippingMethodCode string                `json:"shippingMethodCode"`
	CreatedAt          time.Time             `json:"createdAt"`
}

type Manager struct {
	kv   storage.Store
	ttl  time.Duration
	now  func() time.Time
	logg *logger.Logger
}

func NewManager(kv storage.Store, ttl time.Duration, logg *logger.Logger) (*Manager, error) {
	if kv == nil {
		return nil, errors.New("draft storage required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Manager{kv: kv, ttl: ttl, now: time.Now, logg: logg}, nil
}

// WithClock swaps the time source.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	if now != nil {
		m.now = now
	}
	return m
}

func (m *Manager) TTL() time.Duration { return m.ttl }

// Save overwrites the stored draft and stamps it with the current time.
func (m *Manager) Save(ctx context.Context, d Draft) (Draft, error) {
	d.CreatedAt = m.now().UTC()
	if err := storage.SetJSON(ctx, m.kv, storage.KeyDraft, d, m.ttl); err != nil {
		m.logg.Error(ctx, "checkout.draft.save.failed", err)
		return d, err
	}
	return d, nil
}

// Load returns the stored draft, or nil when there is none or it is older
// than the TTL. An expired draft is deleted.
func (m *Manager) Load(ctx context.Context) (*Draft, error) {
	var d Draft
	err := storage.GetJSON(ctx, m.kv, storage.KeyDraft, &d)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		m.logg.Error(ctx, "checkout.draft.load.failed", err)
		return nil, err
	}
	if m.now().Sub(d.CreatedAt) > m.ttl {
		m.logg.Info(m.logg.WithField(ctx, "draft_created_at", d.CreatedAt), "checkout.draft.expired")
		if err := m.kv.Delete(ctx, storage.KeyDraft); err != nil {
			m.logg.Error(ctx, "checkout.draft.delete.failed", err)
		}
		return nil, nil
	}
	return &d, nil
}

// Clear removes the draft once a new checkout attempt supersedes it.
func (m *Manager) Clear(ctx context.Context) error {
	return m.kv.Delete(ctx, storage.KeyDraft)
}
