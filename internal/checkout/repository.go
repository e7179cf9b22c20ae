package checkout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pokecard-storefront/pkg/db/models"
	"github.com/angelmondragon/pokecard-storefront/pkg/enums"
)

// Repository persists checkout session rows.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a checkout repository backed by the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create inserts a new session row.
func (r *Repository) Create(ctx context.Context, session *models.CheckoutSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

// FindByUserKey returns the session a user already opened under key.
func (r *Repository) FindByUserKey(ctx context.Context, userID uuid.UUID, key string) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// FindByID loads a session by primary key.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	if err := r.db.WithContext(ctx).First(&session, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// FindByProviderID loads a session by the payment provider's identifier.
func (r *Repository) FindByProviderID(ctx context.Context, providerID string) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	if err := r.db.WithContext(ctx).First(&session, "provider_session_id = ?", providerID).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// ListExpiredOpen returns up to limit open sessions whose deadline passed.
func (r *Repository) ListExpiredOpen(ctx context.Context, now time.Time, limit int) ([]models.CheckoutSession, error) {
	var sessions []models.CheckoutSession
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", enums.CheckoutSessionOpen, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// MarkExpired moves an open session to expired. It reports false when the
// row had already left the open state.
func (r *Repository) MarkExpired(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ? AND status = ?", id, enums.CheckoutSessionOpen).
		Updates(map[string]any{"status": enums.CheckoutSessionExpired, "updated_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkCompleted flags a session as paid unless it already was.
func (r *Repository) MarkCompleted(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ? AND status <> ?", id, enums.CheckoutSessionCompleted).
		Updates(map[string]any{"status": enums.CheckoutSessionCompleted, "completed_at": now, "updated_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// OrderNumberFor returns the order number created for a session, if any.
func (r *Repository) OrderNumberFor(ctx context.Context, sessionID uuid.UUID) (string, error) {
	var numbers []string
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("checkout_session_id = ?", sessionID).
		Limit(1).
		Pluck("order_number", &numbers).Error
	if err != nil || len(numbers) == 0 {
		return "", err
	}
	return numbers[0], nil
}
