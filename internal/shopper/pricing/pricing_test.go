package pricing

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/angelmondragon/pokecard-storefront/internal/shipping"
	"github.com/angelmondragon/pokecard-storefront/internal/shopper/apiclient"
	"github.com/stretchr/testify/require"
)

type fakePromoAPI struct {
	discounts map[string]int
	minimum   int
	err       error
	calls     int
}

func (f *fakePromoAPI) ValidatePromo(_ context.Context, code string, subtotal int) (*apiclient.PromoResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	discount, ok := f.discounts[code]
	if !ok || subtotal < f.minimum {
		return &apiclient.PromoResult{Valid: false}, nil
	}
	return &apiclient.PromoResult{Valid: true, Code: code, DiscountCents: discount}, nil
}

func newResolver(t *testing.T, api *fakePromoAPI) *Resolver {
	t.Helper()
	r, err := NewResolver(api, nil)
	require.NoError(t, err)
	return r
}

func TestPromoScenarioTotal(t *testing.T) {
	r := newResolver(t, &fakePromoAPI{discounts: map[string]int{"SAVE10": 1000}})
	app, ok, err := r.ValidatePromoCode(context.Background(), " save10 ", 10000)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Application{Code: "SAVE10", DiscountCents: 1000}, app)
	require.Equal(t, 9500, Total(10000, app.DiscountCents, 500))
}

func TestTotalNeverBelowShipping(t *testing.T) {
	cases := []struct{ subtotal, discount, ship int }{
		{0, 0, 490},
		{1000, 5000, 490},
		{1000, 1000, 0},
		{2500, 100, 790},
	}
	for _, tc := range cases {
		got := Total(tc.subtotal, tc.discount, tc.ship)
		if got < tc.ship {
			t.Fatalf("total %d below shipping %d for %+v", got, tc.ship, tc)
		}
	}
	if got := Total(1000, 5000, 490); got != 490 {
		t.Fatalf("expected discount to floor at zero, got %d", got)
	}
}

func TestRejectedCodeHasNoReason(t *testing.T) {
	api := &fakePromoAPI{discounts: map[string]int{"SAVE10": 1000}, minimum: 5000}
	state := NewPromoState(newResolver(t, api))

	_, err := state.Apply(context.Background(), "SAVE10", 100)
	require.ErrorIs(t, err, ErrPromoRejected)
	_, err = state.Apply(context.Background(), "NOPE", 10000)
	require.ErrorIs(t, err, ErrPromoRejected)
	_, ok := state.Current()
	require.False(t, ok)
}

func TestClientErrorsCountAsRejection(t *testing.T) {
	api := &fakePromoAPI{err: &apiclient.Error{Status: http.StatusBadRequest, Code: "VALIDATION_ERROR"}}
	_, ok, err := newResolver(t, api).ValidatePromoCode(context.Background(), "X", 100)
	require.NoError(t, err)
	require.False(t, ok)

	api.err = errors.Join(apiclient.ErrTransport, errors.New("dial tcp"))
	_, _, err = newResolver(t, api).ValidatePromoCode(context.Background(), "X", 100)
	require.ErrorIs(t, err, apiclient.ErrTransport)
}

func TestRecomputeDropsCodeBelowMinimum(t *testing.T) {
	ctx := context.Background()
	api := &fakePromoAPI{discounts: map[string]int{"BIG": 2000}, minimum: 5000}
	state := NewPromoState(newResolver(t, api))

	_, err := state.Apply(ctx, "BIG", 6000)
	require.NoError(t, err)

	app, ok, err := state.Recompute(ctx, 6000)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2000, app.DiscountCents)
	require.Equal(t, 1, api.calls, "unchanged subtotal should not hit the server")

	_, ok, err = state.Recompute(ctx, 4000)
	require.NoError(t, err)
	require.False(t, ok)
	_, ok = state.Current()
	require.False(t, ok)
}

func TestRecomputeKeepsCodeOnTransportFailure(t *testing.T) {
	ctx := context.Background()
	api := &fakePromoAPI{discounts: map[string]int{"BIG": 2000}}
	state := NewPromoState(newResolver(t, api))
	_, err := state.Apply(ctx, "BIG", 6000)
	require.NoError(t, err)

	api.err = apiclient.ErrTransport
	app, ok, err := state.Recompute(ctx, 7000)
	require.Error(t, err)
	require.True(t, ok)
	require.Equal(t, "BIG", app.Code)
}

func TestResolveShippingFallsBackToFirstEnabled(t *testing.T) {
	require.Equal(t, shipping.Default(), ResolveShippingMethod("TELEPORT"))
	require.Equal(t, shipping.CodeColissimoHome, ResolveShippingMethod("colissimo_home").Code)
}

func TestPriceCapsDiscount(t *testing.T) {
	b := Price(800, &Application{Code: "HUGE", DiscountCents: 5000}, shipping.CodeMondialRelay)
	require.Equal(t, 800, b.DiscountCents)
	require.Equal(t, b.Shipping.PriceCents, b.TotalCents)
}
