package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pokecard-storefront/pkg/enums"
	"github.com/angelmondragon/pokecard-storefront/pkg/types"
)

// CheckoutItem snapshots one purchased line at session-creation time.
type CheckoutItem struct {
	VariantID      uuid.UUID `json:"variantId"`
	ProductName    string    `json:"productName"`
	VariantName    string    `json:"variantName"`
	ImageURL       string    `json:"imageUrl,omitempty"`
	UnitPriceCents int       `json:"unitPriceCents"`
	Quantity       int       `json:"quantity"`
}

// CheckoutSession records one payment-provider checkout session.
type CheckoutSession struct {
	ID                uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	UserID            uuid.UUID                   `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_checkout_sessions_user_key"`
	IdempotencyKey    string                      `gorm:"column:idempotency_key;not null;uniqueIndex:ux_checkout_sessions_user_key"`
	ProviderSessionID *string                     `gorm:"column:provider_session_id;uniqueIndex"`
	ProviderURL       string                      `gorm:"column:provider_url;not null"`
	Status            enums.CheckoutSessionStatus `gorm:"column:status;type:text;not null;index"`
	Email             string                      `gorm:"column:email;not null"`
	Items             []CheckoutItem              `gorm:"column:items;type:jsonb;serializer:json;not null"`
	SubtotalCents     int                         `gorm:"column:subtotal_cents;not null"`
	DiscountCents     int                         `gorm:"column:discount_cents;not null;default:0"`
	ShippingCents     int                         `gorm:"column:shipping_cents;not null;default:0"`
	TotalCents        int                         `gorm:"column:total_cents;not null"`
	Currency          string                      `gorm:"column:currency;not null"`
	PromoCode         *string                     `gorm:"column:promo_code"`
	ShippingMethod    string                      `gorm:"column:shipping_method;not null"`
	ShippingAddress   types.ShippingAddress       `gorm:"column:shipping_address;type:jsonb;not null"`
	ExpiresAt         time.Time                   `gorm:"column:expires_at;not null;index"`
	CompletedAt       *time.Time                  `gorm:"column:completed_at"`
	CreatedAt         time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *CheckoutSession) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
