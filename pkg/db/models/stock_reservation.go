package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StockReservation holds units of a variant for one owner until ExpiresAt.
// An owner has at most one row per variant.
type StockReservation struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	VariantID uuid.UUID       `gorm:"column:variant_id;type:uuid;not null;uniqueIndex:ux_stock_reservations_variant_owner"`
	OwnerKey  string          `gorm:"column:owner_key;not null;uniqueIndex:ux_stock_reservations_variant_owner;index"`
	Quantity  int             `gorm:"column:quantity;not null"`
	ExpiresAt time.Time       `gorm:"column:expires_at;not null;index"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
	Variant   *ProductVariant `gorm:"foreignKey:VariantID"`
}

func (r *StockReservation) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
