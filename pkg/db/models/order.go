package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pokecard-storefront/pkg/enums"
	"github.com/angelmondragon/pokecard-storefront/pkg/types"
)

// Order is created once a checkout session is paid.
type Order struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber       string                `gorm:"column:order_number;not null;uniqueIndex"`
	UserID            uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	CheckoutSessionID uuid.UUID             `gorm:"column:checkout_session_id;type:uuid;not null;uniqueIndex"`
	Status            enums.OrderStatus     `gorm:"column:status;type:text;not null"`
	Email             string                `gorm:"column:email;not null"`
	SubtotalCents     int                   `gorm:"column:subtotal_cents;not null"`
	DiscountCents     int                   `gorm:"column:discount_cents;not null;default:0"`
	ShippingCents     int                   `gorm:"column:shipping_cents;not null;default:0"`
	TotalCents        int                   `gorm:"column:total_cents;not null"`
	Currency          string                `gorm:"column:currency;not null"`
	PromoCode         *string               `gorm:"column:promo_code"`
	ShippingMethod    string                `gorm:"column:shipping_method;not null"`
	ShippingAddress   types.ShippingAddress `gorm:"column:shipping_address;type:jsonb;not null"`
	PaymentReference  string                `gorm:"column:payment_reference;not null"`
	Items             []OrderItem           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrderItem is one purchased line of an order.
type OrderItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	VariantID      uuid.UUID `gorm:"column:variant_id;type:uuid;not null"`
	ProductName    string    `gorm:"column:product_name;not null"`
	VariantName    string    `gorm:"column:variant_name;not null"`
	UnitPriceCents int       `gorm:"column:unit_price_cents;not null"`
	Quantity       int       `gorm:"column:quantity;not null"`
	LineTotalCents int       `gorm:"column:line_total_cents;not null"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
