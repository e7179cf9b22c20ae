package catalog

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pokecard-storefront/pkg/db/models"
	"github.com/angelmondragon/pokecard-storefront/pkg/enums"
	"github.com/angelmondragon/pokecard-storefront/pkg/pagination"
)

// ListFilters narrows the browse query.
type ListFilters struct {
	Category *enums.ProductCategory
	Search   string
}

const activeVariantExists = `EXISTS (SELECT 1 FROM product_variants pv WHERE pv.product_id = products.id AND pv.is_active = ?)`

// Repository reads and mutates catalog rows.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) activeProducts(ctx context.Context, filters ListFilters) *gorm.DB {
	query := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("products.is_active = ?", true).
		Where(activeVariantExists, true)
	if filters.Category != nil {
		query = query.Where("products.category = ?", *filters.Category)
	}
	if search := strings.ToLower(strings.TrimSpace(filters.Search)); search != "" {
		like := "%" + search + "%"
		query = query.Where("(LOWER(products.name) LIKE ? OR LOWER(products.set_name) LIKE ?)", like, like)
	}
	return query
}

func preloadActiveVariants(db *gorm.DB) *gorm.DB {
	return db.Where("is_active = ?", true).Order("price_cents ASC, name ASC")
}

// List returns one page of purchasable products and the total match count.
func (r *Repository) List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Product, int64, error) {
	params = params.Normalize()

	var total int64
	if err := r.activeProducts(ctx, filters).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var products []models.Product
	err := r.activeProducts(ctx, filters).
		Preload("Variants", preloadActiveVariants).
		Order("products.created_at DESC, products.id ASC").
		Limit(params.Limit).
		Offset(params.Offset()).
		Find(&products).Error
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// FindBySlug loads an active product and its active variants.
func (r *Repository) FindBySlug(ctx context.Context, slug string) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Variants", preloadActiveVariants).
		Where("slug = ? AND is_active = ?", slug, true).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// FindVariants loads the requested variants with their product in a single
// round trip. Inactive rows are returned too; callers decide availability.
func (r *Repository) FindVariants(ctx context.Context, ids []uuid.UUID) ([]models.ProductVariant, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var variants []models.ProductVariant
	err := r.db.WithContext(ctx).
		Preload("Product").
		Where("id IN ?", ids).
		Find(&variants).Error
	if err != nil {
		return nil, err
	}
	return variants, nil
}

// DecrementStock removes qty units only if that many remain. It reports
// false when the guard rejected the update.
func (r *Repository) DecrementStock(ctx context.Context, variantID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ProductVariant{}).
		Where("id = ? AND stock >= ?", variantID, qty).
		UpdateColumn("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
