package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pokecard-storefront/pkg/enums"
)

// PromoCode is a discount redeemable at checkout. Code is stored upper-case.
type PromoCode struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Code             string          `gorm:"column:code;not null;uniqueIndex"`
	Type             enums.PromoType `gorm:"column:type;type:text;not null"`
	Value            int             `gorm:"column:value;not null"`
	MinPurchaseCents *int            `gorm:"column:min_purchase_cents"`
	MaxDiscountCents *int            `gorm:"column:max_discount_cents"`
	UsageLimit       *int            `gorm:"column:usage_limit"`
	UsedCount        int             `gorm:"column:used_count;not null;default:0"`
	ValidFrom        *time.Time      `gorm:"column:valid_from"`
	ValidUntil       *time.Time      `gorm:"column:valid_until"`
	IsActive         bool            `gorm:"column:is_active;not null"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *PromoCode) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
