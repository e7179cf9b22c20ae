package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pokecard-storefront/pkg/enums"
)

// Product is a catalog listing; stock and price live on its variants.
type Product struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	Slug        string                `gorm:"column:slug;not null;uniqueIndex"`
	Name        string                `gorm:"column:name;not null"`
	Description string                `gorm:"column:description;not null"`
	Category    enums.ProductCategory `gorm:"column:category;type:text;not null"`
	SetName     string                `gorm:"column:set_name;not null"`
	ImageURL    string                `gorm:"column:image_url;not null"`
	IsActive    bool                  `gorm:"column:is_active;not null"`
	Variants    []ProductVariant      `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// ProductVariant is the unit of stock and pricing (language, edition).
type ProductVariant struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID  uuid.UUID `gorm:"column:product_id;type:uuid;not null;index"`
	Name       string    `gorm:"column:name;not null"`
	Language   string    `gorm:"column:language;not null"`
	Edition    string    `gorm:"column:edition;not null"`
	SKU        string    `gorm:"column:sku;not null;uniqueIndex"`
	PriceCents int       `gorm:"column:price_cents;not null"`
	Stock      int       `gorm:"column:stock;not null;default:0"`
	IsActive   bool      `gorm:"column:is_active;not null"`
	Product    *Product  `gorm:"foreignKey:ProductID"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *ProductVariant) BeforeCreate(*gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
