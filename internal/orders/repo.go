package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pokecard-storefront/pkg/db/models"
	"github.com/angelmondragon/pokecard-storefront/pkg/pagination"
)

// Repository persists orders and their items.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs an orders repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// Create inserts the order together with its items.
func (r *Repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// FindByCheckoutSession loads the order created for a checkout session.
func (r *Repository) FindByCheckoutSession(ctx context.Context, sessionID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("checkout_session_id = ?", sessionID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByNumberForUser loads one of a user's orders by its public number.
func (r *Repository) FindByNumberForUser(ctx context.Context, userID uuid.UUID, number string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ? AND order_number = ?", userID, number).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListByUser returns a page of the user's orders, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, int64, error) {
	params = params.Normalize()
	base := r.db.WithContext(ctx).Model(&models.Order{}).Where("user_id = ?", userID)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC, id ASC").
		Limit(params.Limit).
		Offset(params.Offset()).
		Find(&orders).Error
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}
