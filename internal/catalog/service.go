package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/pokecard-storefront/pkg/db"
	"github.com/angelmondragon/pokecard-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/pokecard-storefront/pkg/errors"
	"github.com/angelmondragon/pokecard-storefront/pkg/pagination"
)

// MaxStockLookup bounds one batched stock request.
const MaxStockLookup = 100

// Service exposes the read side of the catalog to controllers.
type Service interface {
	ListProducts(ctx context.Context, input ListInput) (*ListResult, error)
	GetProduct(ctx context.Context, slug string) (*ProductDTO, error)
	VariantStocks(ctx context.Context, ids []uuid.UUID, owner string) (map[string]StockDTO, error)
}

// HoldCounter reports units other shoppers are holding. The reservations
// service satisfies it.
type HoldCounter interface {
	HeldByOthers(ctx context.Context, variantIDs []uuid.UUID, owner string) (map[uuid.UUID]int, error)
}

// ListInput is the validated browse request.
type ListInput struct {
	Category   string
	Search     string
	Pagination pagination.Params
}

type service struct {
	repo  *Repository
	holds HoldCounter
}

// NewService constructs a catalog service. holds may be nil, in which case
// stock lookups report raw stock.
func NewService(repo *Repository, holds HoldCounter) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{repo: repo, holds: holds}, nil
}

func (s *service) ListProducts(ctx context.Context, input ListInput) (*ListResult, error) {
	filters := ListFilters{Search: input.Search}
	if raw := strings.TrimSpace(input.Category); raw != "" {
		category, err := enums.ParseProductCategory(raw)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid category")
		}
		filters.Category = &category
	}

	params := input.Pagination.Normalize()
	products, total, err := s.repo.List(ctx, filters, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list products")
	}

	result := &ListResult{
		Products:   make([]ProductDTO, 0, len(products)),
		Pagination: pagination.NewMeta(params, total),
	}
	for _, product := range products {
		result.Products = append(result.Products, FromModel(product))
	}
	return result, nil
}

func (s *service) GetProduct(ctx context.Context, slug string) (*ProductDTO, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "slug is required")
	}
	product, err := s.repo.FindBySlug(ctx, slug)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	dto := FromModel(*product)
	return &dto, nil
}

// VariantStocks answers the batched stock lookup. Unknown or inactive
// variants are left out of the map so callers can tell them apart from
// variants that merely ran out. Stock is net of active holds owned by anyone
// other than owner.
func (s *service) VariantStocks(ctx context.Context, ids []uuid.UUID, owner string) (map[string]StockDTO, error) {
	if len(ids) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variantIds must not be empty")
	}
	if len(ids) > MaxStockLookup {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d variantIds per request", MaxStockLookup))
	}

	seen := make(map[uuid.UUID]struct{}, len(ids))
	unique := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	variants, err := s.repo.FindVariants(ctx, unique)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load variant stock")
	}
	held := map[uuid.UUID]int{}
	if s.holds != nil {
		held, err = s.holds.HeldByOthers(ctx, unique, owner)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load stock holds")
		}
	}

	stocks := make(map[string]StockDTO, len(variants))
	for _, variant := range variants {
		if !variant.IsActive || variant.Product == nil || !variant.Product.IsActive {
			continue
		}
		stocks[variant.ID.String()] = StockDTO{Stock: max(variant.Stock-held[variant.ID], 0), PriceCents: variant.PriceCents}
	}
	return stocks, nil
}
