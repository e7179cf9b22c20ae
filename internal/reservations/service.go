// Package reservations keeps short-lived stock holds. The stock a shopper can
// buy is the variant stock minus every active hold owned by someone else.
package reservations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pokecard-storefront/pkg/db/models"
	pkgerrors "github.com/angelmondragon/pokecard-storefront/pkg/errors"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
	"github.com/angelmondragon/pokecard-storefront/pkg/types"
)

const (
	DefaultTTL = 15 * time.Minute
	MaxTTL     = 24 * time.Hour
)

// OwnerForUser is the owner key of a signed-in shopper's holds.
func OwnerForUser(userID uuid.UUID) string {
	return "user:" + userID.String()
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service manages holds for the API, the checkout flow and the catalog.
type Service interface {
	Reserve(ctx context.Context, input ReserveInput) (*ReservationDTO, error)
	Release(ctx context.Context, owner string, variantID uuid.UUID, quantity int) error
	ReleaseAll(ctx context.Context, owner string) (int64, error)
	ListActive(ctx context.Context, owner string) ([]ReservationDTO, error)
	Availability(ctx context.Context, variantID uuid.UUID) (*AvailabilityDTO, error)
	HeldByOthers(ctx context.Context, variantIDs []uuid.UUID, owner string) (map[uuid.UUID]int, error)
	HoldItems(ctx context.Context, owner string, quantities map[uuid.UUID]int, expiresAt time.Time) error
}

// ReserveInput sets the owner's hold on one variant to Quantity.
type ReserveInput struct {
	Owner     string
	VariantID uuid.UUID
	Quantity  int
	TTL       time.Duration
}

type ServiceParams struct {
	DB     txRunner
	Repo   *Repository
	Logger *logger.Logger
}

type service struct {
	db   txRunner
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("reservation repository required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		db:   params.DB,
		repo: params.Repo,
		logg: logg,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Reserve(ctx context.Context, input ReserveInput) (*ReservationDTO, error) {
	owner := strings.TrimSpace(input.Owner)
	if owner == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "reservation owner required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	ttl := input.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if ttl > MaxTTL {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "hold duration is too long")
	}

	var out *ReservationDTO
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.now()
		available, err := s.availableFor(ctx, repo, input.VariantID, owner, now)
		if err != nil {
			return err
		}
		if available < input.Quantity {
			reason := types.StockReasonInsufficientStock
			if available <= 0 {
				reason = types.StockReasonOutOfStock
			}
			return pkgerrors.New(pkgerrors.CodeStock, "insufficient stock").WithDetails([]types.StockConflict{{
				VariantID: input.VariantID.String(), Reason: reason, Available: max(available, 0),
			}})
		}

		row := &models.StockReservation{
			VariantID: input.VariantID,
			OwnerKey:  owner,
			Quantity:  input.Quantity,
			ExpiresAt: now.Add(ttl),
		}
		if err := repo.Upsert(ctx, row); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save reservation")
		}
		saved, err := repo.Find(ctx, input.VariantID, owner)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload reservation")
		}
		dto := FromModel(*saved)
		dto.AvailableAfter = available - input.Quantity
		out = &dto
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"variant_id": input.VariantID.String(),
		"quantity":   input.Quantity,
	}), "reservation.held")
	return out, nil
}

// availableFor is the stock owner could hold: variant stock minus the
// active holds of everyone else.
func (s *service) availableFor(ctx context.Context, repo *Repository, variantID uuid.UUID, owner string, now time.Time) (int, error) {
	variant, err := repo.LockVariant(ctx, variantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load variant")
	}
	if !variant.IsActive || variant.Product == nil || !variant.Product.IsActive {
		return 0, pkgerrors.New(pkgerrors.CodeStock, "variant is no longer available").WithDetails([]types.StockConflict{{
			VariantID: variantID.String(), Reason: types.StockReasonNotAvailable,
		}})
	}
	held, err := repo.ReservedQuantities(ctx, []uuid.UUID{variantID}, owner, now)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sum reservations")
	}
	return variant.Stock - held[variantID], nil
}

// Release lowers the owner's hold by quantity, or drops it when quantity is
// zero or covers the whole hold. Releasing a missing hold is a no-op.
func (s *service) Release(ctx context.Context, owner string, variantID uuid.UUID, quantity int) error {
	if quantity < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must not be negative")
	}
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		row, err := repo.Find(ctx, variantID, owner)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load reservation")
		}
		if quantity == 0 || quantity >= row.Quantity {
			if err := repo.Delete(ctx, row.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete reservation")
			}
			return nil
		}
		if err := repo.UpdateQuantity(ctx, row.ID, row.Quantity-quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "shrink reservation")
		}
		return nil
	})
}

func (s *service) ReleaseAll(ctx context.Context, owner string) (int64, error) {
	count, err := s.repo.DeleteForOwner(ctx, owner)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "release reservations")
	}
	return count, nil
}

func (s *service) ListActive(ctx context.Context, owner string) ([]ReservationDTO, error) {
	rows, err := s.repo.ListActiveForOwner(ctx, owner, s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list reservations")
	}
	out := make([]ReservationDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromModel(row))
	}
	return out, nil
}

func (s *service) Availability(ctx context.Context, variantID uuid.UUID) (*AvailabilityDTO, error) {
	variant, err := s.repo.FindVariant(ctx, variantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load variant")
	}
	held, err := s.repo.ReservedQuantities(ctx, []uuid.UUID{variantID}, "", s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sum reservations")
	}
	reserved := held[variantID]
	return &AvailabilityDTO{
		VariantID: variantID.String(),
		Stock:     variant.Stock,
		Reserved:  reserved,
		Available: max(variant.Stock-reserved, 0),
	}, nil
}

func (s *service) HeldByOthers(ctx context.Context, variantIDs []uuid.UUID, owner string) (map[uuid.UUID]int, error) {
	return s.repo.ReservedQuantities(ctx, variantIDs, owner, s.now())
}

// HoldItems replaces the owner's holds on the given variants so they last
// until expiresAt. Quantities are not checked against stock; callers have
// already priced the lines against available stock.
func (s *service) HoldItems(ctx context.Context, owner string, quantities map[uuid.UUID]int, expiresAt time.Time) error {
	if len(quantities) == 0 {
		return nil
	}
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for variantID, quantity := range quantities {
			if quantity <= 0 {
				continue
			}
			row := &models.StockReservation{VariantID: variantID, OwnerKey: owner, Quantity: quantity, ExpiresAt: expiresAt}
			if err := repo.Upsert(ctx, row); err != nil {
				return fmt.Errorf("hold %s: %w", variantID, err)
			}
		}
		return nil
	})
}
