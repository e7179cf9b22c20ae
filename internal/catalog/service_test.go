package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/pokecard-storefront/pkg/db/dbtest"
	"github.com/angelmondragon/pokecard-storefront/pkg/db/models"
	pkgerrors "github.com/angelmondragon/pokecard-storefront/pkg/errors"
	"github.com/angelmondragon/pokecard-storefront/pkg/pagination"
)

func newTestService(t *testing.T) (Service, *Repository) {
	t.Helper()
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc, err := NewService(repo, nil)
	require.NoError(t, err)
	return svc, repo
}

func TestNewServiceRequiresRepository(t *testing.T) {
	if _, err := NewService(nil, nil); err == nil {
		t.Fatal("expected error for nil repository")
	}
}

func TestListProductsOnlyReturnsPurchasable(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc, err := NewService(repo, nil)
	require.NoError(t, err)

	dbtest.MustCreateProduct(t, conn, "Booster Évolutions Prismatiques",
		dbtest.VariantSpec{Name: "FR", PriceCents: 650, Stock: 10},
		dbtest.VariantSpec{Name: "JP", PriceCents: 400, Stock: 0},
		dbtest.VariantSpec{Name: "EN", PriceCents: 300, Stock: 3, Inactive: true},
	)
	dbtest.MustCreateProduct(t, conn, "Display retirée",
		dbtest.VariantSpec{Name: "FR", PriceCents: 19900, Stock: 1, Inactive: true},
	)
	hidden := dbtest.MustCreateProduct(t, conn, "Coffret caché",
		dbtest.VariantSpec{Name: "FR", PriceCents: 5999, Stock: 2},
	)
	require.NoError(t, conn.Model(&models.Product{}).Where("id = ?", hidden.ID).Update("is_active", false).Error)

	result, err := svc.ListProducts(context.Background(), ListInput{Pagination: pagination.Params{Page: 1, Limit: 10}})
	require.NoError(t, err)
	require.Len(t, result.Products, 1)

	product := result.Products[0]
	assert.Equal(t, "Booster Évolutions Prismatiques", product.Name)
	require.Len(t, product.Variants, 2)
	assert.Equal(t, 400, product.MinPriceCents)
	assert.True(t, product.InStock)
	assert.Equal(t, int64(1), result.Pagination.Total)
	assert.Equal(t, 1, result.Pagination.TotalPages)
}

func TestListProductsFiltersAndPaginates(t *testing.T) {
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn), nil)
	require.NoError(t, err)

	for _, name := range []string{"Booster Flammes Obsidiennes", "Booster Couronne Stellaire", "Booster Mascarade Crépusculaire"} {
		dbtest.MustCreateProduct(t, conn, name, dbtest.VariantSpec{Name: "FR", PriceCents: 550, Stock: 5})
	}

	page, err := svc.ListProducts(context.Background(), ListInput{Pagination: pagination.Params{Page: 2, Limit: 2}})
	require.NoError(t, err)
	assert.Len(t, page.Products, 1)
	assert.Equal(t, 2, page.Pagination.TotalPages)

	found, err := svc.ListProducts(context.Background(), ListInput{Search: "stellaire", Pagination: pagination.Params{}})
	require.NoError(t, err)
	require.Len(t, found.Products, 1)
	assert.Equal(t, "Booster Couronne Stellaire", found.Products[0].Name)
	assert.Equal(t, pagination.DefaultLimit, found.Pagination.Limit)

	none, err := svc.ListProducts(context.Background(), ListInput{Category: "etb"})
	require.NoError(t, err)
	assert.Empty(t, none.Products)

	_, err = svc.ListProducts(context.Background(), ListInput{Category: "plushie"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestGetProductNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GetProduct(context.Background(), "missing")
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetProductBySlug(t *testing.T) {
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn), nil)
	require.NoError(t, err)
	product := dbtest.MustCreateProduct(t, conn, "ETB Flammes Obsidiennes", dbtest.VariantSpec{Name: "FR", PriceCents: 5499, Stock: 5})

	got, err := svc.GetProduct(context.Background(), product.Slug)
	require.NoError(t, err)
	assert.Equal(t, product.ID.String(), got.ID)
	require.Len(t, got.Variants, 1)
	assert.Equal(t, 5, got.Variants[0].Stock)
}

func TestVariantStocksOmitsUnknownAndInactive(t *testing.T) {
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn), nil)
	require.NoError(t, err)
	product := dbtest.MustCreateProduct(t, conn, "Booster",
		dbtest.VariantSpec{Name: "FR", PriceCents: 550, Stock: 3},
		dbtest.VariantSpec{Name: "JP", PriceCents: 400, Stock: 0},
		dbtest.VariantSpec{Name: "EN", PriceCents: 500, Stock: 8, Inactive: true},
	)
	fr, jp, en := product.Variants[0].ID, product.Variants[1].ID, product.Variants[2].ID
	unknown := uuid.New()

	stocks, err := svc.VariantStocks(context.Background(), []uuid.UUID{fr, jp, en, unknown, fr}, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]StockDTO{
		fr.String(): {Stock: 3, PriceCents: 550},
		jp.String(): {Stock: 0, PriceCents: 400},
	}, stocks)
}

type fixedHolds struct {
	held  map[uuid.UUID]int
	owner string
}

func (f *fixedHolds) HeldByOthers(_ context.Context, _ []uuid.UUID, owner string) (map[uuid.UUID]int, error) {
	f.owner = owner
	return f.held, nil
}

func TestVariantStocksSubtractsOtherShoppersHolds(t *testing.T) {
	conn := dbtest.Open(t)
	product := dbtest.MustCreateProduct(t, conn, "Booster",
		dbtest.VariantSpec{Name: "FR", PriceCents: 550, Stock: 3},
		dbtest.VariantSpec{Name: "JP", PriceCents: 400, Stock: 2},
	)
	fr, jp := product.Variants[0].ID, product.Variants[1].ID
	holds := &fixedHolds{held: map[uuid.UUID]int{fr: 1, jp: 5}}
	svc, err := NewService(NewRepository(conn), holds)
	require.NoError(t, err)

	stocks, err := svc.VariantStocks(context.Background(), []uuid.UUID{fr, jp}, "user:sacha")
	require.NoError(t, err)
	assert.Equal(t, "user:sacha", holds.owner)
	assert.Equal(t, map[string]StockDTO{
		fr.String(): {Stock: 2, PriceCents: 550},
		jp.String(): {Stock: 0, PriceCents: 400},
	}, stocks)
}

func TestVariantStocksBounds(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.VariantStocks(context.Background(), nil, ""); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for empty ids, got %v", err)
	}
	ids := make([]uuid.UUID, MaxStockLookup+1)
	for i := range ids {
		ids[i] = uuid.New()
	}
	if _, err := svc.VariantStocks(context.Background(), ids, ""); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for oversized batch, got %v", err)
	}
}

func TestDecrementStockGuard(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	product := dbtest.MustCreateProduct(t, conn, "Booster", dbtest.VariantSpec{Name: "FR", PriceCents: 550, Stock: 2})
	id := product.Variants[0].ID

	ok, err := repo.DecrementStock(context.Background(), id, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.DecrementStock(context.Background(), id, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	var variant models.ProductVariant
	require.NoError(t, conn.First(&variant, "id = ?", id).Error)
	assert.Equal(t, 0, variant.Stock)
}
