package reservations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/pokecard-storefront/pkg/db/models"
)

// Repository persists stock reservations.
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

type heldRow struct {
	VariantID uuid.UUID
	Held      int
}

// ReservedQuantities sums active holds per variant. Holds of excludeOwner
// are left out when it is set.
func (r *Repository) ReservedQuantities(ctx context.Context, variantIDs []uuid.UUID, excludeOwner string, now time.Time) (map[uuid.UUID]int, error) {
	out := make(map[uuid.UUID]int, len(variantIDs))
	if len(variantIDs) == 0 {
		return out, nil
	}
	query := r.db.WithContext(ctx).
		Model(&models.StockReservation{}).
		Select("variant_id, COALESCE(SUM(quantity), 0) AS held").
		Where("variant_id IN ? AND expires_at > ?", variantIDs, now)
	if excludeOwner != "" {
		query = query.Where("owner_key <> ?", excludeOwner)
	}
	var rows []heldRow
	if err := query.Group("variant_id").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.VariantID] = row.Held
	}
	return out, nil
}

// LockVariant loads a variant, taking a row lock on Postgres so concurrent
// holds on the same variant serialize.
func (r *Repository) LockVariant(ctx context.Context, variantID uuid.UUID) (*models.ProductVariant, error) {
	query := r.db.WithContext(ctx).Preload("Product")
	if r.db.Dialector != nil && r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var variant models.ProductVariant
	if err := query.First(&variant, "id = ?", variantID).Error; err != nil {
		return nil, err
	}
	return &variant, nil
}

func (r *Repository) FindVariant(ctx context.Context, variantID uuid.UUID) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	if err := r.db.WithContext(ctx).First(&variant, "id = ?", variantID).Error; err != nil {
		return nil, err
	}
	return &variant, nil
}

func (r *Repository) Find(ctx context.Context, variantID uuid.UUID, owner string) (*models.StockReservation, error) {
	var row models.StockReservation
	err := r.db.WithContext(ctx).
		Where("variant_id = ? AND owner_key = ?", variantID, owner).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Upsert creates the hold or replaces its quantity and expiry.
func (r *Repository) Upsert(ctx context.Context, row *models.StockReservation) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "variant_id"}, {Name: "owner_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"quantity", "expires_at", "updated_at"}),
		}).
		Create(row).Error
}

func (r *Repository) UpdateQuantity(ctx context.Context, id uuid.UUID, quantity int) error {
	return r.db.WithContext(ctx).
		Model(&models.StockReservation{}).
		Where("id = ?", id).
		Update("quantity", quantity).Error
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.StockReservation{}, "id = ?", id).Error
}

// DeleteForOwner drops the owner's holds, limited to variantIDs when given.
func (r *Repository) DeleteForOwner(ctx context.Context, owner string, variantIDs ...uuid.UUID) (int64, error) {
	query := r.db.WithContext(ctx).Where("owner_key = ?", owner)
	if len(variantIDs) > 0 {
		query = query.Where("variant_id IN ?", variantIDs)
	}
	res := query.Delete(&models.StockReservation{})
	return res.RowsAffected, res.Error
}

// ListActiveForOwner returns the owner's live holds, newest first.
func (r *Repository) ListActiveForOwner(ctx context.Context, owner string, now time.Time) ([]models.StockReservation, error) {
	var rows []models.StockReservation
	err := r.db.WithContext(ctx).
		Preload("Variant").
		Preload("Variant.Product").
		Where("owner_key = ? AND expires_at > ?", owner, now).
		Order("created_at DESC, id ASC").
		Find(&rows).Error
	return rows, err
}

// DeleteExpired removes holds whose deadline passed and reports how many.
func (r *Repository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&models.StockReservation{})
	return res.RowsAffected, res.Error
}
