package orders

import (
	"time"

	"github.com/angelmondragon/pokecard-storefront/pkg/db/models"
	"github.com/angelmondragon/pokecard-storefront/pkg/enums"
	"github.com/angelmondragon/pokecard-storefront/pkg/pagination"
	"github.com/angelmondragon/pokecard-storefront/pkg/types"
)

// FinalizeInput identifies a paid provider session.
type FinalizeInput struct {
	ProviderSessionID string
	PaymentReference  string
}

// FinalizeResult reports the order backing a paid session.
type FinalizeResult struct {
	OrderID          string
	OrderNumber      string
	AlreadyFinalized bool
}

// ExpireInput identifies a session to expire. One of the two ids is set.
type ExpireInput struct {
	ProviderSessionID string
	CheckoutID        string
	Source            string
}

// OrderItemDTO is one line of an order.
type OrderItemDTO struct {
	VariantID      string `json:"variantId"`
	ProductName    string `json:"productName"`
	VariantName    string `json:"variantName"`
	UnitPriceCents int    `json:"unitPriceCents"`
	Quantity       int    `json:"quantity"`
	LineTotalCents int    `json:"lineTotalCents"`
}

// OrderDTO is the shopper-facing view of an order.
type OrderDTO struct {
	ID              string                `json:"id"`
	OrderNumber     string                `json:"orderNumber"`
	Status          enums.OrderStatus     `json:"status"`
	SubtotalCents   int                   `json:"subtotalCents"`
	DiscountCents   int                   `json:"discountCents"`
	ShippingCents   int                   `json:"shippingCents"`
	TotalCents      int                   `json:"totalCents"`
	Currency        string                `json:"currency"`
	PromoCode       *string               `json:"promoCode,omitempty"`
	ShippingMethod  string                `json:"shippingMethod"`
	ShippingAddress types.ShippingAddress `json:"shippingAddress"`
	Items           []OrderItemDTO        `json:"items"`
	CreatedAt       time.Time             `json:"createdAt"`
}

// ListResult is one page of a shopper's orders.
type ListResult struct {
	Orders     []OrderDTO      `json:"orders"`
	Pagination pagination.Meta `json:"pagination"`
}

func fromModel(o models.Order) OrderDTO {
	dto := OrderDTO{
		ID:              o.ID.String(),
		OrderNumber:     o.OrderNumber,
		Status:          o.Status,
		SubtotalCents:   o.SubtotalCents,
		DiscountCents:   o.DiscountCents,
		ShippingCents:   o.ShippingCents,
		TotalCents:      o.TotalCents,
		Currency:        o.Currency,
		PromoCode:       o.PromoCode,
		ShippingMethod:  o.ShippingMethod,
		ShippingAddress: o.ShippingAddress,
		Items:           make([]OrderItemDTO, 0, len(o.Items)),
		CreatedAt:       o.CreatedAt,
	}
	for _, item := range o.Items {
		dto.Items = append(dto.Items, OrderItemDTO{
			VariantID:      item.VariantID.String(),
			ProductName:    item.ProductName,
			VariantName:    item.VariantName,
			UnitPriceCents: item.UnitPriceCents,
			Quantity:       item.Quantity,
			LineTotalCents: item.LineTotalCents,
		})
	}
	return dto
}
