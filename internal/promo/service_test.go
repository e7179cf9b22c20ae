package promo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/pokecard-storefront/pkg/db/dbtest"
	"github.com/angelmondragon/pokecard-storefront/pkg/db/models"
	"github.com/angelmondragon/pokecard-storefront/pkg/enums"
)

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*service, *Repository) {
	t.Helper()
	repo := NewRepository(dbtest.Open(t))
	svc, err := NewService(repo)
	require.NoError(t, err)
	impl := svc.(*service)
	impl.now = func() time.Time { return fixedNow }
	return impl, repo
}

func timePtr(v time.Time) *time.Time { return &v }

func TestDiscount(t *testing.T) {
	cases := []struct {
		name     string
		promo    models.PromoCode
		subtotal int
		want     int
	}{
		{"percentage floors", models.PromoCode{Type: enums.PromoTypePercentage, Value: 10}, 999, 99},
		{"percentage capped", models.PromoCode{Type: enums.PromoTypePercentage, Value: 10, MaxDiscountCents: dbtest.IntPtr(500)}, 10000, 500},
		{"fixed", models.PromoCode{Type: enums.PromoTypeFixed, Value: 500}, 3000, 500},
		{"fixed capped at subtotal", models.PromoCode{Type: enums.PromoTypeFixed, Value: 500}, 300, 300},
		{"over one hundred percent", models.PromoCode{Type: enums.PromoTypePercentage, Value: 150}, 1000, 1000},
		{"empty subtotal", models.PromoCode{Type: enums.PromoTypeFixed, Value: 500}, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Discount(tc.promo, tc.subtotal); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestEligible(t *testing.T) {
	base := models.PromoCode{Type: enums.PromoTypeFixed, Value: 100, IsActive: true}

	if !Eligible(base, 1000, fixedNow) {
		t.Fatal("expected base promo to be eligible")
	}

	inactive := base
	inactive.IsActive = false
	notYet := base
	notYet.ValidFrom = timePtr(fixedNow.Add(time.Hour))
	expired := base
	expired.ValidUntil = timePtr(fixedNow)
	minimum := base
	minimum.MinPurchaseCents = dbtest.IntPtr(2000)
	exhausted := base
	exhausted.UsageLimit = dbtest.IntPtr(3)
	exhausted.UsedCount = 3

	for name, promo := range map[string]models.PromoCode{
		"inactive":  inactive,
		"not yet":   notYet,
		"expired":   expired,
		"minimum":   minimum,
		"exhausted": exhausted,
	} {
		if Eligible(promo, 1000, fixedNow) {
			t.Fatalf("%s: expected promo to be rejected", name)
		}
	}
}

func TestValidateSave10(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &models.PromoCode{
		Code:             "save10",
		Type:             enums.PromoTypePercentage,
		Value:            10,
		MinPurchaseCents: dbtest.IntPtr(2000),
		MaxDiscountCents: dbtest.IntPtr(5000),
		IsActive:         true,
	}))

	got, err := svc.Validate(ctx, " Save10 ", 10000)
	require.NoError(t, err)
	assert.Equal(t, Result{Valid: true, Code: "SAVE10", DiscountCents: 1000}, got)

	below, err := svc.Validate(ctx, "SAVE10", 1500)
	require.NoError(t, err)
	assert.Equal(t, Result{Code: "SAVE10"}, below)

	unknown, err := svc.Validate(ctx, "PIKACHU", 10000)
	require.NoError(t, err)
	assert.False(t, unknown.Valid)
	assert.Zero(t, unknown.DiscountCents)
}

func TestIncrementUsageExhaustsPromo(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &models.PromoCode{
		Code: "ONCE", Type: enums.PromoTypeFixed, Value: 200, UsageLimit: dbtest.IntPtr(1), IsActive: true,
	}))

	first, err := svc.Validate(ctx, "once", 1000)
	require.NoError(t, err)
	require.True(t, first.Valid)

	require.NoError(t, repo.IncrementUsage(ctx, "once"))

	second, err := svc.Validate(ctx, "ONCE", 1000)
	require.NoError(t, err)
	assert.False(t, second.Valid)
}

func TestDeactivateExpired(t *testing.T) {
	_, repo := newService(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &models.PromoCode{
		Code: "OLD", Type: enums.PromoTypeFixed, Value: 100, ValidUntil: timePtr(fixedNow.Add(-time.Hour)), IsActive: true,
	}))
	require.NoError(t, repo.Create(ctx, &models.PromoCode{
		Code: "NEW", Type: enums.PromoTypeFixed, Value: 100, ValidUntil: timePtr(fixedNow.Add(time.Hour)), IsActive: true,
	}))

	affected, err := repo.DeactivateExpired(ctx, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	old, err := repo.FindByCode(ctx, "old")
	require.NoError(t, err)
	assert.False(t, old.IsActive)
	fresh, err := repo.FindByCode(ctx, "new")
	require.NoError(t, err)
	assert.True(t, fresh.IsActive)
}
