// Package checkout turns the cart and the checkout draft into exactly one
// provider session per logical submission.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/angelmondragon/pokecard-storefront/internal/shopper/apiclient"
	"github.com/angelmondragon/pokecard-storefront/internal/shopper/cart"
	"github.com/angelmondragon/pokecard-storefront/internal/shopper/draft"
	"github.com/angelmondragon/pokecard-storefront/internal/shopper/pricing"
	"github.com/angelmondragon/pokecard-storefront/internal/shopper/reconcile"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
)

type SessionAPI interface {
	CreateCheckoutSession(ctx context.Context, req apiclient.CheckoutRequest, idempotencyKey string) (*apiclient.CheckoutSession, error)
}

// StockGuard revalidates the cart before payment and schedules a fresh pass
// after a conflict.
type StockGuard interface {
	Revalidate(ctx context.Context) (reconcile.View, error)
	Trigger()
}

// AuthDetour sends an anonymous shopper to sign in with cart and draft kept.
type AuthDetour interface {
	Authenticated(ctx context.Context) bool
	Require(ctx context.Context, d *draft.Draft) (string, error)
}

// Redirector hands a URL to whatever plays the browser.
type Redirector interface {
	Redirect(ctx context.Context, url string) error
}

// State is the submission status shown next to the pay button.
type State string

const (
	StateIdle         State = "idle"
	StateInFlight     State = "in_flight"
	StateRedirected   State = "redirected"
	StateAuthRequired State = "auth_required"
	StateFailed       State = "failed"
)

type Status struct {
	State     State
	Err       *Error
	URL       string
	SessionID string
	Key       string
}

// Skip explains why Start did nothing.
type Skip string

const (
	SkipNone      Skip = ""
	SkipInFlight  Skip = "in_flight"
	SkipEmptyCart Skip = "empty_cart"
)

// Outcome is what one Start call did.
type Outcome struct {
	Skipped   Skip
	URL       string
	SessionID string
	Key       string
	LoginURL  string
}

type Params struct {
	Cart       *cart.Store
	Drafts     *draft.Manager
	Keys       *KeyStore
	API        SessionAPI
	Stock      StockGuard
	Auth       AuthDetour
	Redirect   Redirector
	Logger     *logger.Logger
	SuccessURL string
	CancelURL  string
}

type Initiator struct {
	cart       *cart.Store
	drafts     *draft.Manager
	keys       *KeyStore
	api        SessionAPI
	stock      StockGuard
	auth       AuthDetour
	redirect   Redirector
	logg       *logger.Logger
	successURL string
	cancelURL  string

	inFlight atomic.Bool
	mu       sync.Mutex
	status   Status
}

func NewInitiator(p Params) (*Initiator, error) {
	switch {
	case p.Cart == nil:
		return nil, errors.New("cart required")
	case p.Drafts == nil:
		return nil, errors.New("draft manager required")
	case p.Keys == nil:
		return nil, errors.New("key store required")
	case p.API == nil:
		return nil, errors.New("session api required")
	case p.Stock == nil:
		return nil, errors.New("stock guard required")
	case p.Auth == nil:
		return nil, errors.New("auth detour required")
	case p.Redirect == nil:
		return nil, errors.New("redirector required")
	}
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Initiator{
		cart:       p.Cart,
		drafts:     p.Drafts,
		keys:       p.Keys,
		api:        p.API,
		stock:      p.Stock,
		auth:       p.Auth,
		redirect:   p.Redirect,
		logg:       logg,
		successURL: p.SuccessURL,
		cancelURL:  p.CancelURL,
		status:     Status{State: StateIdle},
	}, nil
}

// Status returns the last submission status.
func (i *Initiator) Status() Status {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status
}

// Start submits the checkout once. A call made while another is outstanding,
// or with an empty cart, does nothing.
func (i *Initiator) Start(ctx context.Context) (Outcome, error) {
	if !i.inFlight.CompareAndSwap(false, true) {
		return Outcome{Skipped: SkipInFlight}, nil
	}
	defer i.inFlight.Store(false)

	if i.cart.Len() == 0 {
		return Outcome{Skipped: SkipEmptyCart}, nil
	}
	i.setStatus(Status{State: StateInFlight})

	d, err := i.drafts.Load(ctx)
	if err != nil {
		return i.fail(ctx, &Error{Kind: KindTransport, Message: "Your checkout details could not be read.", Err: err})
	}
	if verr := validateDraft(d); verr != nil {
		return i.fail(ctx, verr)
	}

	if !i.auth.Authenticated(ctx) {
		return i.detour(ctx, d)
	}

	view, err := i.stock.Revalidate(ctx)
	if errors.Is(err, reconcile.ErrSuperseded) {
		return i.fail(ctx, &Error{Kind: KindStaleness, Message: "Your cart changed. Review it and try again.", Err: err})
	}
	if err != nil {
		return i.fail(ctx, &Error{Kind: KindTransport, Message: msgTransport, Err: err})
	}
	if blocking := view.Blocking(); len(blocking) > 0 {
		return i.fail(ctx, blockingError(view.Lines, blocking))
	}

	items := PurchaseItems(view.Lines)
	if len(items) == 0 {
		return i.fail(ctx, &Error{Kind: KindStaleness, Message: "None of your items can be purchased right now."})
	}

	method := pricing.ResolveShippingMethod(d.ShippingMethodCode)
	address := d.Shipping.Normalized()
	promo := strings.ToUpper(strings.TrimSpace(d.PromoCode))
	key := i.keys.KeyFor(ctx, Signature(items, promo, method.Code, address))
	ctx = i.logg.WithFields(ctx, map[string]any{"idempotency_key": key, "items": len(items)})

	req := apiclient.CheckoutRequest{
		Items:     items,
		Email:     strings.TrimSpace(d.Email),
		PromoCode: promo,
		Shipping: apiclient.ShippingInfo{
			FullName:     address.FullName,
			AddressLine1: address.AddressLine1,
			AddressLine2: address.AddressLine2,
			PostalCode:   address.PostalCode,
			City:         address.City,
			Country:      address.Country,
			Phone:        address.Phone,
		},
		ShippingMethodCode: method.Code,
		SuccessURL:         i.successURL,
		CancelURL:          i.cancelURL,
	}

	session, err := i.api.CreateCheckoutSession(ctx, req, key)
	if err != nil {
		cerr := classify(err)
		switch cerr.Kind {
		case KindAuthRequired:
			return i.detour(ctx, d)
		case KindConflict:
			i.stock.Trigger()
		}
		if isKeyReused(err) {
			if ferr := i.keys.Forget(ctx); ferr != nil {
				i.logg.Error(ctx, "checkout.idempotency.forget.failed", ferr)
			}
		}
		return i.fail(ctx, cerr)
	}
	if session == nil || session.URL == "" {
		return i.fail(ctx, &Error{Kind: KindTransport, Message: msgGeneric})
	}

	// The draft stays: the shopper may cancel on the provider page and return.
	if err := i.redirect.Redirect(ctx, session.URL); err != nil {
		i.logg.Error(ctx, "checkout.redirect.failed", err)
	}
	outcome := Outcome{URL: session.URL, SessionID: session.SessionID, Key: key}
	i.setStatus(Status{State: StateRedirected, URL: session.URL, SessionID: session.SessionID, Key: key})
	i.logg.Info(i.logg.WithCheckoutSessionID(ctx, session.SessionID), "checkout.session.redirect")
	return outcome, nil
}

func (i *Initiator) detour(ctx context.Context, d *draft.Draft) (Outcome, error) {
	loginURL, err := i.auth.Require(ctx, d)
	if err != nil {
		return i.fail(ctx, &Error{Kind: KindAuthRequired, Message: msgAuthRequired, Err: err})
	}
	if err := i.redirect.Redirect(ctx, loginURL); err != nil {
		i.logg.Error(ctx, "checkout.redirect.failed", err)
	}
	i.setStatus(Status{State: StateAuthRequired, URL: loginURL})
	i.logg.Info(ctx, "checkout.auth.detour")
	return Outcome{LoginURL: loginURL}, nil
}

func (i *Initiator) fail(ctx context.Context, cerr *Error) (Outcome, error) {
	i.setStatus(Status{State: StateFailed, Err: cerr})
	logCtx := i.logg.WithField(ctx, "kind", string(cerr.Kind))
	if cerr.Kind == KindTransport {
		i.logg.Error(logCtx, "checkout.session.failed", cerr.Err)
	} else {
		i.logg.Warn(logCtx, "checkout.session.rejected")
	}
	return Outcome{}, cerr
}

func (i *Initiator) setStatus(s Status) {
	i.mu.Lock()
	i.status = s
	i.mu.Unlock()
}

// PurchaseItems clamps every line to its known stock and drops lines that
// clamp to zero.
func PurchaseItems(lines []cart.Line) []apiclient.CheckoutItem {
	items := make([]apiclient.CheckoutItem, 0, len(lines))
	for _, line := range lines {
		q := min(line.Quantity, line.Stock)
		if q <= 0 {
			continue
		}
		items = append(items, apiclient.CheckoutItem{VariantID: line.VariantID, Quantity: q})
	}
	return items
}

func validateDraft(d *draft.Draft) *Error {
	if d == nil {
		return &Error{Kind: KindValidation, Message: "Please fill in your contact and shipping details."}
	}
	fields := d.Shipping.Missing()
	if !strings.Contains(d.Email, "@") {
		fields = append(fields, "email")
	}
	if len(fields) > 0 {
		return &Error{
			Kind:    KindValidation,
			Message: fmt.Sprintf("Please complete: %s.", strings.Join(fields, ", ")),
			Fields:  fields,
		}
	}
	return nil
}

func blockingError(lines []cart.Line, blocking map[string]reconcile.LineError) *Error {
	names := make(map[string]string, len(lines))
	for _, line := range lines {
		names[line.VariantID] = strings.TrimSpace(line.ProductName + " " + line.VariantName)
	}
	parts := make([]string, 0, len(blocking))
	for id, e := range blocking {
		name := names[id]
		if name == "" {
			name = id
		}
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Message()))
	}
	sort.Strings(parts)
	return &Error{
		Kind:    KindStaleness,
		Message: "Remove unavailable items before paying (" + strings.Join(parts, "; ") + ").",
	}
}
