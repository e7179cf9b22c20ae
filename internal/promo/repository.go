package promo

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/pokecard-storefront/pkg/db/models"
)

// Repository persists promo codes.
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

// Create inserts a promo code, upper-casing its code.
func (r *Repository) Create(ctx context.Context, promo *models.PromoCode) error {
	promo.Code = NormalizeCode(promo.Code)
	return r.db.WithContext(ctx).Create(promo).Error
}

// FindByCode looks a promo up case-insensitively.
func (r *Repository) FindByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	var promo models.PromoCode
	if err := r.db.WithContext(ctx).Where("code = ?", NormalizeCode(code)).First(&promo).Error; err != nil {
		return nil, err
	}
	return &promo, nil
}

// IncrementUsage records one redemption.
func (r *Repository) IncrementUsage(ctx context.Context, code string) error {
	return r.db.WithContext(ctx).
		Model(&models.PromoCode{}).
		Where("code = ?", NormalizeCode(code)).
		UpdateColumn("used_count", gorm.Expr("used_count + 1")).Error
}

// DeactivateExpired flags every active promo whose window closed before now.
func (r *Repository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PromoCode{}).
		Where("is_active = ? AND valid_until IS NOT NULL AND valid_until < ?", true, now).
		Updates(map[string]any{"is_active": false, "updated_at": now})
	return res.RowsAffected, res.Error
}

// NormalizeCode trims and upper-cases a promo code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
