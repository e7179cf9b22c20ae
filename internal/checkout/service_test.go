package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/pokecard-storefront/internal/catalog"
	"github.com/angelmondragon/pokecard-storefront/internal/promo"
	"github.com/angelmondragon/pokecard-storefront/internal/reservations"
	"github.com/angelmondragon/pokecard-storefront/pkg/config"
	"github.com/angelmondragon/pokecard-storefront/pkg/db"
	"github.com/angelmondragon/pokecard-storefront/pkg/db/dbtest"
	"github.com/angelmondragon/pokecard-storefront/pkg/db/models"
	"github.com/angelmondragon/pokecard-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/pokecard-storefront/pkg/errors"
	pkgstripe "github.com/angelmondragon/pokecard-storefront/pkg/stripe"
	"github.com/angelmondragon/pokecard-storefront/pkg/types"
)

type fakeProvider struct {
	mu       sync.Mutex
	requests []pkgstripe.CheckoutRequest
	err      error
	entered  chan struct{}
	release  chan struct{}
}

func (f *fakeProvider) CreateCheckoutSession(_ context.Context, req pkgstripe.CheckoutRequest) (*pkgstripe.CheckoutResult, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	id := "cs_test_" + uuid.NewString()[:8]
	return &pkgstripe.CheckoutResult{ID: id, URL: "https://checkout.stripe.test/c/pay/" + id}, nil
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

var testCheckoutConfig = config.CheckoutConfig{
	Currency:           "EUR",
	SuccessURL:         "http://localhost:5173/checkout/success?session_id={CHECKOUT_SESSION_ID}",
	CancelURL:          "http://localhost:5173/cart",
	AllowedOrigins:     []string{"http://localhost:5173"},
	SessionTTL:         30 * time.Minute,
	MaxItems:           50,
	MaxQuantityPerItem: 100,
	MaxTotalQuantity:   500,
}

type fixture struct {
	conn     *gorm.DB
	svc      Service
	provider *fakeProvider
	user     *models.User
	product  *models.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	promoSvc, err := promo.NewService(promo.NewRepository(conn))
	require.NoError(t, err)
	require.NoError(t, promo.NewRepository(conn).Create(context.Background(), &models.PromoCode{
		Code: "SAVE10", Type: enums.PromoTypePercentage, Value: 10, MaxDiscountCents: dbtest.IntPtr(5000), IsActive: true,
	}))

	provider := &fakeProvider{}
	svc, err := NewService(ServiceParams{
		Sessions: NewRepository(conn),
		Variants: catalog.NewRepository(conn),
		Promos:   promoSvc,
		Provider: provider,
		Config:   testCheckoutConfig,
	})
	require.NoError(t, err)

	return &fixture{
		conn:     conn,
		svc:      svc,
		provider: provider,
		user:     dbtest.MustCreateUser(t, conn),
		product: dbtest.MustCreateProduct(t, conn, "Booster Écarlate et Violet",
			dbtest.VariantSpec{Name: "FR", PriceCents: 1000, Stock: 5},
			dbtest.VariantSpec{Name: "JP", PriceCents: 400, Stock: 0},
		),
	}
}

func validShipping() ShippingRequest {
	return ShippingRequest{
		FullName:     "Sacha Ketchum",
		AddressLine1: "1 allée du Bourg",
		PostalCode:   "75001",
		City:         "Paris",
		Country:      "fr",
	}
}

func (f *fixture) input(key string, items ...ItemRequest) CreateSessionInput {
	return CreateSessionInput{
		UserID:         f.user.ID,
		UserEmail:      f.user.Email,
		IdempotencyKey: key,
		Request: CreateSessionRequest{
			Items:    items,
			Shipping: validShipping(),
		},
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestCreateSessionPricesFromServer(t *testing.T) {
	f := newFixture(t)
	fr := f.product.Variants[0]

	in := f.input("1741957200000-a", ItemRequest{VariantID: fr.ID.String(), Quantity: 2})
	in.Request.PromoCode = "save10"
	in.Request.ShippingMethodCode = "colissimo_home"

	result, err := f.svc.CreateSession(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, result.Replayed)
	assert.NotEmpty(t, result.URL)

	var row models.CheckoutSession
	require.NoError(t, f.conn.First(&row, "id = ?", result.CheckoutID).Error)
	assert.Equal(t, enums.CheckoutSessionOpen, row.Status)
	assert.Equal(t, 2000, row.SubtotalCents)
	assert.Equal(t, 200, row.DiscountCents)
	assert.Equal(t, 790, row.ShippingCents)
	assert.Equal(t, 2590, row.TotalCents)
	assert.Equal(t, "eur", row.Currency)
	assert.Equal(t, "FR", row.ShippingAddress.Country)
	require.NotNil(t, row.PromoCode)
	assert.Equal(t, "SAVE10", *row.PromoCode)
	require.Len(t, row.Items, 1)
	assert.Equal(t, 1000, row.Items[0].UnitPriceCents)

	require.Equal(t, 1, f.provider.calls())
	req := f.provider.requests[0]
	require.Len(t, req.Lines, 2)
	assert.Equal(t, int64(790), req.Lines[1].UnitAmountCents)
	assert.Equal(t, int64(200), req.DiscountCents)
	assert.Equal(t, row.ID.String(), req.Metadata["checkoutSessionId"])
	assert.Equal(t, f.user.Email, req.CustomerEmail)
	assert.Equal(t, testCheckoutConfig.SuccessURL, req.SuccessURL)
}

func TestCreateSessionReplaysSameKey(t *testing.T) {
	f := newFixture(t)
	in := f.input("key-1", ItemRequest{VariantID: f.product.Variants[0].ID.String(), Quantity: 1})

	first, err := f.svc.CreateSession(context.Background(), in)
	require.NoError(t, err)
	second, err := f.svc.CreateSession(context.Background(), in)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, first.URL, second.URL)
	assert.Equal(t, 1, f.provider.calls())

	other, err := f.svc.CreateSession(context.Background(), f.input("key-2", ItemRequest{VariantID: f.product.Variants[0].ID.String(), Quantity: 1}))
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, other.SessionID)
	assert.Equal(t, 2, f.provider.calls())
}

func TestCreateSessionCoalescesConcurrentRequests(t *testing.T) {
	f := newFixture(t)
	f.provider.entered = make(chan struct{}, 1)
	f.provider.release = make(chan struct{})
	in := f.input("double-click", ItemRequest{VariantID: f.product.Variants[0].ID.String(), Quantity: 1})

	results := make([]*SessionResult, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = f.svc.CreateSession(context.Background(), in)
	}()
	<-f.provider.entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = f.svc.CreateSession(context.Background(), in)
	}()
	time.Sleep(20 * time.Millisecond)
	close(f.provider.release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, results[0].SessionID, results[1].SessionID)
	assert.Equal(t, 1, f.provider.calls())
}

func TestCreateSessionStockConflicts(t *testing.T) {
	f := newFixture(t)
	fr, jp := f.product.Variants[0], f.product.Variants[1]
	missing := uuid.New()

	_, err := f.svc.CreateSession(context.Background(), f.input("k",
		ItemRequest{VariantID: fr.ID.String(), Quantity: 6},
		ItemRequest{VariantID: jp.ID.String(), Quantity: 1},
		ItemRequest{VariantID: missing.String(), Quantity: 1},
	))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStock), "got %v", err)
	conflicts, ok := pkgerrors.As(err).Details().([]types.StockConflict)
	require.True(t, ok)
	assert.Equal(t, []types.StockConflict{
		{VariantID: fr.ID.String(), Reason: types.StockReasonInsufficientStock, Available: 5},
		{VariantID: jp.ID.String(), Reason: types.StockReasonOutOfStock},
		{VariantID: missing.String(), Reason: types.StockReasonNotAvailable},
	}, conflicts)
	assert.Zero(t, f.provider.calls())
}

func TestCreateSessionRespectsOtherShoppersHolds(t *testing.T) {
	f := newFixture(t)
	fr := f.product.Variants[0]
	holds, err := reservations.NewService(reservations.ServiceParams{DB: db.Wrap(f.conn), Repo: reservations.NewRepository(f.conn)})
	require.NoError(t, err)
	promoSvc, err := promo.NewService(promo.NewRepository(f.conn))
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Sessions: NewRepository(f.conn),
		Variants: catalog.NewRepository(f.conn),
		Holds:    holds,
		Promos:   promoSvc,
		Provider: f.provider,
		Config:   testCheckoutConfig,
	})
	require.NoError(t, err)

	rival := dbtest.MustCreateUser(t, f.conn)
	_, err = holds.Reserve(context.Background(), reservations.ReserveInput{Owner: reservations.OwnerForUser(rival.ID), VariantID: fr.ID, Quantity: 4})
	require.NoError(t, err)

	_, err = svc.CreateSession(context.Background(), f.input("held-1", ItemRequest{VariantID: fr.ID.String(), Quantity: 2}))
	require.Error(t, err)
	var typed *pkgerrors.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, pkgerrors.CodeStock, typed.Code())
	assert.Equal(t, []types.StockConflict{{VariantID: fr.ID.String(), Reason: types.StockReasonInsufficientStock, Available: 1}}, typed.Details())

	result, err := svc.CreateSession(context.Background(), f.input("held-2", ItemRequest{VariantID: fr.ID.String(), Quantity: 1}))
	require.NoError(t, err)

	var row models.CheckoutSession
	require.NoError(t, f.conn.First(&row, "id = ?", result.CheckoutID).Error)
	mine, err := holds.ListActive(context.Background(), reservations.OwnerForUser(f.user.ID))
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, 1, mine[0].Quantity)
	assert.True(t, mine[0].ExpiresAt.Equal(row.ExpiresAt))

	_, err = holds.Reserve(context.Background(), reservations.ReserveInput{Owner: reservations.OwnerForUser(rival.ID), VariantID: fr.ID, Quantity: 5})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStock))
}

func TestCreateSessionValidation(t *testing.T) {
	f := newFixture(t)
	line := ItemRequest{VariantID: f.product.Variants[0].ID.String(), Quantity: 1}

	cases := map[string]func(in *CreateSessionInput){
		"missing key":      func(in *CreateSessionInput) { in.IdempotencyKey = " " },
		"missing city":     func(in *CreateSessionInput) { in.Request.Shipping.City = "" },
		"unknown method":   func(in *CreateSessionInput) { in.Request.ShippingMethodCode = "DRONE" },
		"foreign redirect": func(in *CreateSessionInput) { in.Request.SuccessURL = "https://evil.example/ok" },
		"bad variant":      func(in *CreateSessionInput) { in.Request.Items = []ItemRequest{{VariantID: "nope", Quantity: 1}} },
		"invalid promo":    func(in *CreateSessionInput) { in.Request.PromoCode = "MEWTWO" },
		"no email at all":  func(in *CreateSessionInput) { in.UserEmail = "" },
		"quantity over limit": func(in *CreateSessionInput) {
			in.Request.Items = []ItemRequest{{VariantID: line.VariantID, Quantity: 101}}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := f.input("k-"+name, line)
			mutate(&in)
			_, err := f.svc.CreateSession(context.Background(), in)
			if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	assert.Zero(t, f.provider.calls())
}

func TestCreateSessionProviderFailure(t *testing.T) {
	f := newFixture(t)
	f.provider.err = errors.New("stripe down")

	_, err := f.svc.CreateSession(context.Background(), f.input("k", ItemRequest{VariantID: f.product.Variants[0].ID.String(), Quantity: 1}))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency), "got %v", err)

	var count int64
	require.NoError(t, f.conn.Model(&models.CheckoutSession{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateSessionRejectsKeyOfFinishedSession(t *testing.T) {
	f := newFixture(t)
	in := f.input("k", ItemRequest{VariantID: f.product.Variants[0].ID.String(), Quantity: 1})
	first, err := f.svc.CreateSession(context.Background(), in)
	require.NoError(t, err)
	require.NoError(t, f.conn.Model(&models.CheckoutSession{}).Where("id = ?", first.CheckoutID).Update("status", enums.CheckoutSessionExpired).Error)

	_, err = f.svc.CreateSession(context.Background(), in)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIdempotency), "got %v", err)
}

func TestGetSessionScopedToOwner(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.CreateSession(context.Background(), f.input("k", ItemRequest{VariantID: f.product.Variants[0].ID.String(), Quantity: 1}))
	require.NoError(t, err)

	byProvider, err := f.svc.GetSession(context.Background(), f.user.ID, created.SessionID)
	require.NoError(t, err)
	assert.Equal(t, enums.CheckoutSessionOpen, byProvider.Status)
	assert.Empty(t, byProvider.OrderNumber)

	byID, err := f.svc.GetSession(context.Background(), f.user.ID, created.CheckoutID)
	require.NoError(t, err)
	assert.Equal(t, byProvider.SessionID, byID.SessionID)

	stranger := dbtest.MustCreateUser(t, f.conn)
	_, err = f.svc.GetSession(context.Background(), stranger.ID, created.SessionID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)
}
