package promo

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pokecard-storefront/pkg/db"
	"github.com/angelmondragon/pokecard-storefront/pkg/db/models"
	"github.com/angelmondragon/pokecard-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/pokecard-storefront/pkg/errors"
)

// Result is what callers learn about a code. Rejections carry no reason.
type Result struct {
	Valid         bool   `json:"valid"`
	Code          string `json:"code"`
	DiscountCents int    `json:"discountCents"`
}

// Service validates promo codes against a subtotal.
type Service interface {
	Validate(ctx context.Context, code string, subtotalCents int) (Result, error)
}

type service struct {
	repo *Repository
	now  func() time.Time
}

// NewService constructs a promo service.
func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("promo repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

// Validate returns an error only when the lookup itself failed.
func (s *service) Validate(ctx context.Context, code string, subtotalCents int) (Result, error) {
	normalized := NormalizeCode(code)
	result := Result{Code: normalized}
	if normalized == "" || subtotalCents < 0 {
		return result, nil
	}

	promo, err := s.repo.FindByCode(ctx, normalized)
	if err != nil {
		if db.IsNotFound(err) {
			return result, nil
		}
		return result, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load promo code")
	}

	if !Eligible(*promo, subtotalCents, s.now()) {
		return result, nil
	}
	result.Valid = true
	result.DiscountCents = Discount(*promo, subtotalCents)
	return result, nil
}

// Eligible checks activity, validity window, minimum purchase and usage limit.
func Eligible(promo models.PromoCode, subtotalCents int, now time.Time) bool {
	if !promo.IsActive || !promo.Type.IsValid() {
		return false
	}
	if promo.ValidFrom != nil && now.Before(*promo.ValidFrom) {
		return false
	}
	if promo.ValidUntil != nil && !now.Before(*promo.ValidUntil) {
		return false
	}
	if promo.MinPurchaseCents != nil && subtotalCents < *promo.MinPurchaseCents {
		return false
	}
	if promo.UsageLimit != nil && promo.UsedCount >= *promo.UsageLimit {
		return false
	}
	return true
}

// Discount computes the amount off a subtotal; it never exceeds the subtotal.
func Discount(promo models.PromoCode, subtotalCents int) int {
	if subtotalCents <= 0 || promo.Value <= 0 {
		return 0
	}
	var discount int64
	switch promo.Type {
	case enums.PromoTypePercentage:
		discount = decimal.NewFromInt(int64(subtotalCents)).
			Mul(decimal.NewFromInt(int64(promo.Value))).
			Div(decimal.NewFromInt(100)).
			Floor().
			IntPart()
		if promo.MaxDiscountCents != nil && discount > int64(*promo.MaxDiscountCents) {
			discount = int64(*promo.MaxDiscountCents)
		}
	case enums.PromoTypeFixed:
		discount = int64(promo.Value)
	}
	if discount > int64(subtotalCents) {
		discount = int64(subtotalCents)
	}
	return int(discount)
}
