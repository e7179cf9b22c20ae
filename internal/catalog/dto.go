package catalog

import (
	"github.com/angelmondragon/pokecard-storefront/pkg/db/models"
	"github.com/angelmondragon/pokecard-storefront/pkg/enums"
	"github.com/angelmondragon/pokecard-storefront/pkg/pagination"
)

// VariantDTO is the public view of a purchasable variant.
type VariantDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Language   string `json:"language"`
	Edition    string `json:"edition,omitempty"`
	SKU        string `json:"sku"`
	PriceCents int    `json:"priceCents"`
	Stock      int    `json:"stock"`
}

// ProductDTO is the public view of a catalog product.
type ProductDTO struct {
	ID            string                `json:"id"`
	Slug          string                `json:"slug"`
	Name          string                `json:"name"`
	Description   string                `json:"description"`
	Category      enums.ProductCategory `json:"category"`
	SetName       string                `json:"setName"`
	ImageURL      string                `json:"imageUrl"`
	MinPriceCents int                   `json:"minPriceCents"`
	InStock       bool                  `json:"inStock"`
	Variants      []VariantDTO          `json:"variants"`
}

// ListResult is the browse page payload.
type ListResult struct {
	Products   []ProductDTO    `json:"products"`
	Pagination pagination.Meta `json:"pagination"`
}

// StockDTO is the server truth for one variant.
type StockDTO struct {
	Stock      int `json:"stock"`
	PriceCents int `json:"priceCents"`
}

// FromModel maps a product with preloaded variants.
func FromModel(p models.Product) ProductDTO {
	dto := ProductDTO{
		ID:          p.ID.String(),
		Slug:        p.Slug,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		SetName:     p.SetName,
		ImageURL:    p.ImageURL,
		Variants:    make([]VariantDTO, 0, len(p.Variants)),
	}
	for i, v := range p.Variants {
		dto.Variants = append(dto.Variants, VariantDTO{
			ID:         v.ID.String(),
			Name:       v.Name,
			Language:   v.Language,
			Edition:    v.Edition,
			SKU:        v.SKU,
			PriceCents: v.PriceCents,
			Stock:      v.Stock,
		})
		if i == 0 || v.PriceCents < dto.MinPriceCents {
			dto.MinPriceCents = v.PriceCents
		}
		if v.Stock > 0 {
			dto.InStock = true
		}
	}
	return dto
}
