package checkout

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/pokecard-storefront/pkg/db/models"
	"github.com/angelmondragon/pokecard-storefront/pkg/enums"
	"github.com/angelmondragon/pokecard-storefront/pkg/types"
)

// ItemRequest is one requested line of the create payload.
type ItemRequest struct {
	VariantID string `json:"variantId" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

// ShippingRequest is the delivery address of the create payload.
type ShippingRequest struct {
	FullName     string `json:"fullName" validate:"required,max=200"`
	AddressLine1 string `json:"addressLine1" validate:"required,max=200"`
	AddressLine2 string `json:"addressLine2,omitempty" validate:"max=200"`
	PostalCode   string `json:"postalCode" validate:"required,max=20"`
	City         string `json:"city" validate:"required,max=100"`
	Country      string `json:"country" validate:"required,max=2"`
	Phone        string `json:"phone,omitempty" validate:"max=30"`
}

// CreateSessionRequest is the body of POST /checkout/sessions.
type CreateSessionRequest struct {
	Items              []ItemRequest   `json:"items" validate:"required,min=1,dive"`
	Email              string          `json:"email,omitempty" validate:"omitempty,email"`
	PromoCode          string          `json:"promoCode,omitempty" validate:"max=64"`
	Shipping           ShippingRequest `json:"shipping"`
	ShippingMethodCode string          `json:"shippingMethodCode,omitempty"`
	SuccessURL         string          `json:"successUrl,omitempty"`
	CancelURL          string          `json:"cancelUrl,omitempty"`
}

// Address converts the request block into the stored address type.
func (s ShippingRequest) Address() types.ShippingAddress {
	return types.ShippingAddress{
		FullName:     s.FullName,
		AddressLine1: s.AddressLine1,
		AddressLine2: s.AddressLine2,
		PostalCode:   s.PostalCode,
		City:         s.City,
		Country:      s.Country,
		Phone:        s.Phone,
	}
}

// CreateSessionInput is the service-level create command.
type CreateSessionInput struct {
	UserID         uuid.UUID
	UserEmail      string
	IdempotencyKey string
	Request        CreateSessionRequest
}

// SessionResult is returned by a successful create.
type SessionResult struct {
	CheckoutID string `json:"checkoutId"`
	SessionID  string `json:"sessionId"`
	URL        string `json:"url"`
	Replayed   bool   `json:"-"`
}

// SessionStatusDTO is what the success page polls.
type SessionStatusDTO struct {
	CheckoutID     string                      `json:"checkoutId"`
	SessionID      string                      `json:"sessionId,omitempty"`
	Status         enums.CheckoutSessionStatus `json:"status"`
	SubtotalCents  int                         `json:"subtotalCents"`
	DiscountCents  int                         `json:"discountCents"`
	ShippingCents  int                         `json:"shippingCents"`
	TotalCents     int                         `json:"totalCents"`
	Currency       string                      `json:"currency"`
	PromoCode      *string                     `json:"promoCode,omitempty"`
	ShippingMethod string                      `json:"shippingMethod"`
	Items          []models.CheckoutItem       `json:"items"`
	ExpiresAt      time.Time                   `json:"expiresAt"`
	CompletedAt    *time.Time                  `json:"completedAt,omitempty"`
	OrderNumber    string                      `json:"orderNumber,omitempty"`
}

func resultFromModel(session *models.CheckoutSession, replayed bool) *SessionResult {
	result := &SessionResult{
		CheckoutID: session.ID.String(),
		URL:        session.ProviderURL,
		Replayed:   replayed,
	}
	if session.ProviderSessionID != nil {
		result.SessionID = *session.ProviderSessionID
	}
	return result
}

func statusFromModel(session *models.CheckoutSession, orderNumber string) *SessionStatusDTO {
	dto := &SessionStatusDTO{
		CheckoutID:     session.ID.String(),
		Status:         session.Status,
		SubtotalCents:  session.SubtotalCents,
		DiscountCents:  session.DiscountCents,
		ShippingCents:  session.ShippingCents,
		TotalCents:     session.TotalCents,
		Currency:       session.Currency,
		PromoCode:      session.PromoCode,
		ShippingMethod: session.ShippingMethod,
		Items:          session.Items,
		ExpiresAt:      session.ExpiresAt,
		CompletedAt:    session.CompletedAt,
		OrderNumber:    orderNumber,
	}
	if session.ProviderSessionID != nil {
		dto.SessionID = *session.ProviderSessionID
	}
	return dto
}
