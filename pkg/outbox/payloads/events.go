package payloads

import (
	"time"

	"github.com/google/uuid"
)

// OrderPaidLine is one purchased line.
type OrderPaidLine struct {
	VariantID      uuid.UUID `json:"variantId"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int       `json:"unitPriceCents"`
}

// OrderPaidEvent is emitted once a checkout session is paid and stock is taken.
type OrderPaidEvent struct {
	OrderID           uuid.UUID       `json:"orderId"`
	OrderNumber       string          `json:"orderNumber"`
	UserID            uuid.UUID       `json:"userId"`
	CheckoutSessionID uuid.UUID       `json:"checkoutSessionId"`
	Email             string          `json:"email"`
	TotalCents        int             `json:"totalCents"`
	Currency          string          `json:"currency"`
	PromoCode         *string         `json:"promoCode,omitempty"`
	ShippingMethod    string          `json:"shippingMethod"`
	Lines             []OrderPaidLine `json:"lines"`
	PaidAt            time.Time       `json:"paidAt"`
}

// CheckoutExpiredEvent is emitted when an open session lapses unpaid.
type CheckoutExpiredEvent struct {
	CheckoutSessionID uuid.UUID `json:"checkoutSessionId"`
	UserID            uuid.UUID `json:"userId"`
	ExpiredAt         time.Time `json:"expiredAt"`
	Source            string    `json:"source"`
}
