// Package pricing resolves the discount and shipping inputs of an order total.
// Discounts always come from the server; the client never computes one.
package pricing

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/angelmondragon/pokecard-storefront/internal/shipping"
	"github.com/angelmondragon/pokecard-storefront/internal/shopper/apiclient"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
)

// ErrPromoRejected is the only reason ever given for a refused code.
var ErrPromoRejected = errors.New("promo code is not valid")

type PromoAPI interface {
	ValidatePromo(ctx context.Context, code string, subtotalCents int) (*apiclient.PromoResult, error)
}

// Application is a code accepted for a given subtotal.
type Application struct {
	Code          string `json:"code"`
	DiscountCents int    `json:"discountCents"`
}

type Resolver struct {
	api  PromoAPI
	logg *logger.Logger
}

func NewResolver(api PromoAPI, logg *logger.Logger) (*Resolver, error) {
	if api == nil {
		return nil, errors.New("promo api required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Resolver{api: api, logg: logg}, nil
}

// ValidatePromoCode asks the server about code. A refused code returns
// valid=false and no error; err is reserved for transport problems.
func (r *Resolver) ValidatePromoCode(ctx context.Context, code string, subtotalCents int) (Application, bool, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return Application{}, false, nil
	}
	result, err := r.api.ValidatePromo(ctx, code, subtotalCents)
	if err != nil {
		if apiErr, ok := apiclient.AsError(err); ok && apiErr.Status < 500 {
			r.logg.Warn(r.logg.WithField(ctx, "status", apiErr.Status), "promo.validate.rejected")
			return Application{}, false, nil
		}
		return Application{}, false, err
	}
	if result == nil || !result.Valid {
		return Application{}, false, nil
	}
	discount := max(result.DiscountCents, 0)
	resolved := result.Code
	if resolved == "" {
		resolved = code
	}
	return Application{Code: resolved, DiscountCents: discount}, true, nil
}

// ResolveShippingMethod looks code up among the enabled methods and falls
// back to the first one.
func ResolveShippingMethod(code string) shipping.Method {
	return shipping.Resolve(code)
}

// Total is max(0, subtotal - discount) + shipping.
func Total(subtotalCents, discountCents, shippingCents int) int {
	return max(subtotalCents-discountCents, 0) + shippingCents
}

// PromoState tracks the applied code and recomputes it when the subtotal
// moves.
type PromoState struct {
	resolver *Resolver

	mu       sync.Mutex
	applied  *Application
	subtotal int
}

func NewPromoState(resolver *Resolver) *PromoState {
	return &PromoState{resolver: resolver}
}

// Apply validates code against subtotal and keeps it on success. A refused
// code leaves any previous application in place.
func (p *PromoState) Apply(ctx context.Context, code string, subtotalCents int) (Application, error) {
	app, ok, err := p.resolver.ValidatePromoCode(ctx, code, subtotalCents)
	if err != nil {
		return Application{}, err
	}
	if !ok {
		return Application{}, ErrPromoRejected
	}
	p.mu.Lock()
	p.applied = &app
	p.subtotal = subtotalCents
	p.mu.Unlock()
	return app, nil
}

func (p *PromoState) Clear() {
	p.mu.Lock()
	p.applied = nil
	p.subtotal = 0
	p.mu.Unlock()
}

// Current returns the applied code, if any.
func (p *PromoState) Current() (Application, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.applied == nil {
		return Application{}, false
	}
	return *p.applied, true
}

// Recompute revalidates the applied code for a new subtotal. A code that no
// longer qualifies is dropped. Transport failures keep the previous state.
func (p *PromoState) Recompute(ctx context.Context, subtotalCents int) (Application, bool, error) {
	p.mu.Lock()
	if p.applied == nil {
		p.mu.Unlock()
		return Application{}, false, nil
	}
	current := *p.applied
	if p.subtotal == subtotalCents {
		p.mu.Unlock()
		return current, true, nil
	}
	p.mu.Unlock()

	app, ok, err := p.resolver.ValidatePromoCode(ctx, current.Code, subtotalCents)
	if err != nil {
		return current, true, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.applied == nil || p.applied.Code != current.Code {
		// cleared or replaced while we were waiting
		if p.applied == nil {
			return Application{}, false, nil
		}
		return *p.applied, true, nil
	}
	if !ok {
		p.applied = nil
		p.subtotal = 0
		return Application{}, false, nil
	}
	p.applied = &app
	p.subtotal = subtotalCents
	return app, true, nil
}

// Breakdown is the priced view of an order.
type Breakdown struct {
	SubtotalCents int             `json:"subtotalCents"`
	DiscountCents int             `json:"discountCents"`
	Shipping      shipping.Method `json:"shipping"`
	TotalCents    int             `json:"totalCents"`
}

// Price assembles a breakdown with the discount capped at the subtotal.
func Price(subtotalCents int, promo *Application, shippingCode string) Breakdown {
	method := ResolveShippingMethod(shippingCode)
	discount := 0
	if promo != nil {
		discount = min(promo.DiscountCents, max(subtotalCents, 0))
	}
	return Breakdown{
		SubtotalCents: subtotalCents,
		DiscountCents: discount,
		Shipping:      method,
		TotalCents:    Total(subtotalCents, discount, method.PriceCents),
	}
}
