package reservations

import (
	"time"

	"github.com/angelmondragon/pokecard-storefront/pkg/db/models"
)

type ReservationDTO struct {
	ID             string              `json:"id"`
	VariantID      string              `json:"variantId"`
	Quantity       int                 `json:"quantity"`
	ExpiresAt      time.Time           `json:"expiresAt"`
	CreatedAt      time.Time           `json:"createdAt"`
	AvailableAfter int                 `json:"availableAfter,omitempty"`
	Variant        *ReservedVariantDTO `json:"variant,omitempty"`
}

type ReservedVariantDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PriceCents  int    `json:"priceCents"`
	Stock       int    `json:"stock"`
	ProductName string `json:"productName,omitempty"`
	ProductSlug string `json:"productSlug,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
}

// AvailabilityDTO splits a variant's stock into held and purchasable units.
type AvailabilityDTO struct {
	VariantID string `json:"variantId"`
	Stock     int    `json:"stock"`
	Reserved  int    `json:"reserved"`
	Available int    `json:"available"`
}

func FromModel(row models.StockReservation) ReservationDTO {
	dto := ReservationDTO{
		ID:        row.ID.String(),
		VariantID: row.VariantID.String(),
		Quantity:  row.Quantity,
		ExpiresAt: row.ExpiresAt,
		CreatedAt: row.CreatedAt,
	}
	if v := row.Variant; v != nil {
		dto.Variant = &ReservedVariantDTO{ID: v.ID.String(), Name: v.Name, PriceCents: v.PriceCents, Stock: v.Stock}
		if p := v.Product; p != nil {
			dto.Variant.ProductName = p.Name
			dto.Variant.ProductSlug = p.Slug
			dto.Variant.ImageURL = p.ImageURL
		}
	}
	return dto
}
