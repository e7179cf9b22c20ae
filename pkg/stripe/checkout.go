package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/coupon"
)

// Stripe rejects checkout sessions that expire less than 30 minutes out.
const minSessionLifetime = 30 * time.Minute

// CheckoutLine is one priced line of a hosted checkout page.
type CheckoutLine struct {
	Name            string
	Description     string
	ImageURL        string
	UnitAmountCents int64
	Quantity        int64
}

// CheckoutRequest describes a payment-mode checkout session.
type CheckoutRequest struct {
	IdempotencyKey    string
	Currency          string
	CustomerEmail     string
	ClientReferenceID string
	Lines             []CheckoutLine
	DiscountCents     int64
	DiscountLabel     string
	SuccessURL        string
	CancelURL         string
	ExpiresAt         time.Time
	Metadata          map[string]string
}

// CheckoutResult is what callers need back from the provider.
type CheckoutResult struct {
	ID  string
	URL string
}

// CreateCheckoutSession creates a one-off coupon for the discount (when any)
// and then the checkout session, both under the caller's idempotency key.
func (c *Client) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if c == nil {
		return nil, errAPIKeyRequired
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return nil, errors.New("idempotency key is required")
	}

	couponID := ""
	if req.DiscountCents > 0 {
		params := BuildCouponParams(req)
		params.Context = ctx
		params.SetIdempotencyKey(req.IdempotencyKey + ":coupon")
		created, err := coupon.New(params)
		if err != nil {
			return nil, fmt.Errorf("create stripe coupon: %w", err)
		}
		couponID = created.ID
	}

	params, err := BuildCheckoutSessionParams(req, couponID, time.Now())
	if err != nil {
		return nil, err
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	created, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("create stripe checkout session: %w", err)
	}
	return &CheckoutResult{ID: created.ID, URL: created.URL}, nil
}

// BuildCouponParams returns a single-use amount-off coupon for the discount.
func BuildCouponParams(req CheckoutRequest) *stripe.CouponParams {
	name := strings.TrimSpace(req.DiscountLabel)
	if name == "" {
		name = "Discount"
	}
	return &stripe.CouponParams{
		AmountOff:      stripe.Int64(req.DiscountCents),
		Currency:       stripe.String(strings.ToLower(req.Currency)),
		Duration:       stripe.String(string(stripe.CouponDurationOnce)),
		MaxRedemptions: stripe.Int64(1),
		Name:           stripe.String(name),
	}
}

// BuildCheckoutSessionParams maps the request onto Stripe's params.
func BuildCheckoutSessionParams(req CheckoutRequest, couponID string, now time.Time) (*stripe.CheckoutSessionParams, error) {
	if len(req.Lines) == 0 {
		return nil, errors.New("at least one line is required")
	}
	if req.SuccessURL == "" || req.CancelURL == "" {
		return nil, errors.New("success and cancel urls are required")
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		return nil, errors.New("currency is required")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if req.ClientReferenceID != "" {
		params.ClientReferenceID = stripe.String(req.ClientReferenceID)
	}

	for _, line := range req.Lines {
		if line.Quantity <= 0 || line.UnitAmountCents < 0 {
			return nil, fmt.Errorf("invalid line %q", line.Name)
		}
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(line.Name),
		}
		if line.Description != "" {
			product.Description = stripe.String(line.Description)
		}
		if line.ImageURL != "" && strings.HasPrefix(line.ImageURL, "http") {
			product.Images = stripe.StringSlice([]string{line.ImageURL})
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(currency),
				UnitAmount:  stripe.Int64(line.UnitAmountCents),
				ProductData: product,
			},
			Quantity: stripe.Int64(line.Quantity),
		})
	}

	if couponID != "" {
		params.Discounts = []*stripe.CheckoutSessionDiscountParams{{Coupon: stripe.String(couponID)}}
	}

	if !req.ExpiresAt.IsZero() {
		expiresAt := req.ExpiresAt
		if floor := now.Add(minSessionLifetime + time.Minute); expiresAt.Before(floor) {
			expiresAt = floor
		}
		params.ExpiresAt = stripe.Int64(expiresAt.Unix())
	}

	for k, v := range req.Metadata {
		if v == "" {
			continue
		}
		params.AddMetadata(k, v)
	}
	return params, nil
}
