// Package shopper assembles the client-side cart and checkout core into one
// application-state container.
package shopper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/multierr"

	"github.com/angelmondragon/pokecard-storefront/internal/shopper/apiclient"
	"github.com/angelmondragon/pokecard-storefront/internal/shopper/authgate"
	"github.com/angelmondragon/pokecard-storefront/internal/shopper/cart"
	"github.com/angelmondragon/pokecard-storefront/internal/shopper/checkout"
	"github.com/angelmondragon/pokecard-storefront/internal/shopper/draft"
	"github.com/angelmondragon/pokecard-storefront/internal/shopper/pricing"
	"github.com/angelmondragon/pokecard-storefront/internal/shopper/reconcile"
	"github.com/angelmondragon/pokecard-storefront/internal/shopper/storage"
	"github.com/angelmondragon/pokecard-storefront/pkg/config"
	"github.com/angelmondragon/pokecard-storefront/pkg/enums"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
	pkgredis "github.com/angelmondragon/pokecard-storefront/pkg/redis"
)

type Options struct {
	Config *config.ShopperConfig
	Logger *logger.Logger
	// Store overrides the backend selected by Config.Storage.
	Store      storage.Store
	HTTPClient *http.Client
	Redirect   checkout.Redirector
}

// App is created once per shopper session and owns every component.
type App struct {
	Config   *config.ShopperConfig
	Logger   *logger.Logger
	Store    storage.Store
	API      *apiclient.Client
	Tokens   *authgate.Tokens
	Cart     *cart.Store
	Watcher  *reconcile.Watcher
	Pricing  *pricing.Resolver
	Promo    *pricing.PromoState
	Drafts   *draft.Manager
	Keys     *checkout.KeyStore
	Gate     *authgate.Gate
	Checkout *checkout.Initiator

	closers []func() error
}

func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("shopper config required")
	}
	if opts.Redirect == nil {
		return nil, errors.New("redirector required")
	}
	logg := opts.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	app := &App{Config: cfg, Logger: logg}

	app.Store = opts.Store
	if app.Store == nil {
		store, closer, err := OpenStore(ctx, cfg, logg)
		if err != nil {
			return nil, err
		}
		app.Store = store
		if closer != nil {
			app.closers = append(app.closers, closer)
		}
	}

	var err error
	if app.Tokens, err = authgate.NewTokens(app.Store, logg); err != nil {
		return nil, err
	}
	if app.API, err = apiclient.New(apiclient.Options{
		BaseURL:    cfg.APIURL,
		HTTPClient: opts.HTTPClient,
		Timeout:    cfg.RequestTimeout,
		Tokens:     app.Tokens,
		Logger:     logg,
	}); err != nil {
		return nil, err
	}

	owner := storage.GuestOwner
	if session, err := app.Tokens.Load(ctx); err == nil && session != nil && session.UserID != "" {
		owner = session.UserID
	}
	if app.Cart, err = cart.New(ctx, app.Store, owner, logg); err != nil {
		return nil, err
	}

	rec, err := reconcile.NewReconciler(app.API)
	if err != nil {
		return nil, err
	}
	if app.Watcher, err = reconcile.NewWatcher(rec, app.Cart, cfg.ReconcileDebounce, logg); err != nil {
		return nil, err
	}
	if app.Pricing, err = pricing.NewResolver(app.API, logg); err != nil {
		return nil, err
	}
	app.Promo = pricing.NewPromoState(app.Pricing)

	if app.Drafts, err = draft.NewManager(app.Store, cfg.DraftTTL, logg); err != nil {
		return nil, err
	}
	// the idempotency record lives exactly as long as a draft
	if app.Keys, err = checkout.NewKeyStore(app.Store, cfg.DraftTTL, logg); err != nil {
		return nil, err
	}
	if app.Gate, err = authgate.New(authgate.Params{
		Store:        app.Store,
		Cart:         app.Cart,
		Drafts:       app.Drafts,
		Tokens:       app.Tokens,
		LoginURL:     cfg.LoginURL,
		CheckoutPath: cfg.CheckoutPath,
		IntentTTL:    cfg.IntentTTL,
		Logger:       logg,
	}); err != nil {
		return nil, err
	}
	if app.Checkout, err = checkout.NewInitiator(checkout.Params{
		Cart:     app.Cart,
		Drafts:   app.Drafts,
		Keys:     app.Keys,
		API:      app.API,
		Stock:    app.Watcher,
		Auth:     app.Gate,
		Redirect: opts.Redirect,
		Logger:   logg,
	}); err != nil {
		return nil, err
	}

	app.Watcher.Start(ctx)
	app.closers = append(app.closers, func() error {
		app.Watcher.Stop()
		return nil
	})
	return app, nil
}

// OpenStore builds the storage backend named by cfg.Storage.
func OpenStore(ctx context.Context, cfg *config.ShopperConfig, logg *logger.Logger) (storage.Store, func() error, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		return storage.NewMemory(), nil, nil
	case config.StorageFile, "":
		store, err := storage.NewFile(cfg.StorageDir)
		return store, nil, err
	case config.StorageRedis:
		client, err := pkgredis.NewFromURL(ctx, cfg.RedisURL, logg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect shopper redis: %w", err)
		}
		store, err := storage.NewRedis(client)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, client.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown shopper storage %q", cfg.Storage)
}

// Close releases the storage connection and pending timers.
func (a *App) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i]())
	}
	return err
}

// AddToCart looks a variant up in the catalog and adds one unit.
func (a *App) AddToCart(ctx context.Context, slug, variantID string) (cart.Line, error) {
	product, err := a.API.Product(ctx, slug)
	if err != nil {
		return cart.Line{}, err
	}
	for _, v := range product.Variants {
		if v.ID != variantID && !strings.EqualFold(v.SKU, variantID) {
			continue
		}
		a.Cart.Add(ctx,
			cart.Variant{ID: v.ID, Name: v.Name, PriceCents: v.PriceCents, Stock: v.Stock},
			cart.Product{ID: product.ID, Name: product.Name, ImageURL: product.ImageURL},
		)
		for _, line := range a.Cart.Lines() {
			if line.VariantID == v.ID {
				return line, nil
			}
		}
		return cart.Line{}, fmt.Errorf("%s is out of stock", v.Name)
	}
	return cart.Line{}, fmt.Errorf("variant %s not found on %s", variantID, slug)
}

// Summary is the cart page: lines, annotations and the priced total.
type Summary struct {
	View          reconcile.View
	Draft         *draft.Draft
	Promo         *pricing.Application
	PromoRejected bool
	Breakdown     pricing.Breakdown
}

// Summary revalidates the cart and prices it with the draft's promo and
// shipping choice. A stock lookup failure keeps the previous view.
func (a *App) Summary(ctx context.Context) (Summary, error) {
	view, err := a.Watcher.Revalidate(ctx)
	if err != nil {
		view = a.Watcher.View()
	}
	d, derr := a.Drafts.Load(ctx)
	if derr != nil {
		return Summary{}, derr
	}

	subtotal := cart.Subtotal(view.Lines)
	out := Summary{View: view, Draft: d}

	shippingCode := ""
	if d != nil {
		shippingCode = d.ShippingMethodCode
		if d.PromoCode != "" {
			app, perr := a.currentPromo(ctx, d.PromoCode, subtotal)
			switch {
			case errors.Is(perr, pricing.ErrPromoRejected):
				out.PromoRejected = true
			case perr != nil:
				a.Logger.Error(ctx, "promo.recompute.failed", perr)
			default:
				out.Promo = &app
			}
		}
	}
	out.Breakdown = pricing.Price(subtotal, out.Promo, shippingCode)
	return out, err
}

func (a *App) currentPromo(ctx context.Context, code string, subtotal int) (pricing.Application, error) {
	if current, ok := a.Promo.Current(); ok && strings.EqualFold(current.Code, code) {
		app, ok, err := a.Promo.Recompute(ctx, subtotal)
		if err != nil {
			return pricing.Application{}, err
		}
		if !ok {
			return pricing.Application{}, pricing.ErrPromoRejected
		}
		return app, nil
	}
	return a.Promo.Apply(ctx, code, subtotal)
}

// ApplyPromo validates code against the cart subtotal and records it on
// the draft.
func (a *App) ApplyPromo(ctx context.Context, code string) (pricing.Application, error) {
	app, err := a.Promo.Apply(ctx, code, a.Cart.TotalCents())
	if err != nil {
		return pricing.Application{}, err
	}
	d, err := a.Drafts.Load(ctx)
	if err != nil {
		return app, err
	}
	if d == nil {
		d = &draft.Draft{}
	}
	d.PromoCode = app.Code
	_, err = a.Drafts.Save(ctx, *d)
	return app, err
}

// RemovePromo clears the applied code.
func (a *App) RemovePromo(ctx context.Context) error {
	a.Promo.Clear()
	d, err := a.Drafts.Load(ctx)
	if err != nil || d == nil {
		return err
	}
	d.PromoCode = ""
	_, err = a.Drafts.Save(ctx, *d)
	return err
}

// SaveDetails stores the checkout form, keeping the promo already applied.
func (a *App) SaveDetails(ctx context.Context, d draft.Draft) (draft.Draft, error) {
	if d.PromoCode == "" {
		if existing, err := a.Drafts.Load(ctx); err == nil && existing != nil {
			d.PromoCode = existing.PromoCode
		}
	}
	d.ShippingMethodCode = pricing.ResolveShippingMethod(d.ShippingMethodCode).Code
	return a.Drafts.Save(ctx, d)
}

// CheckoutStatus reports a provider session. Once the session is completed
// the purchase is over: the cart, the draft, the applied promo and the
// idempotency record are cleared so the next purchase starts fresh.
func (a *App) CheckoutStatus(ctx context.Context, sessionID string) (*apiclient.CheckoutStatus, error) {
	st, err := a.API.CheckoutSessionStatus(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if st.Status == enums.CheckoutSessionCompleted {
		if err := a.finishCheckout(ctx); err != nil {
			return st, err
		}
		a.Logger.Info(a.Logger.WithCheckoutSessionID(ctx, sessionID), "checkout.session.completed")
	}
	return st, nil
}

func (a *App) finishCheckout(ctx context.Context) error {
	a.Cart.Clear(ctx)
	a.Promo.Clear()
	return multierr.Combine(a.Drafts.Clear(ctx), a.Keys.Forget(ctx))
}

// Login signs the shopper in, moves the guest cart over and resumes an
// interrupted checkout if one is waiting.
func (a *App) Login(ctx context.Context, email, password string) (checkout.Outcome, bool, error) {
	tokens, err := a.API.Login(ctx, apiclient.LoginRequest{Email: email, Password: password})
	if err != nil {
		return checkout.Outcome{}, false, err
	}
	return a.signedIn(ctx, tokens)
}

func (a *App) Register(ctx context.Context, req apiclient.RegisterRequest) (checkout.Outcome, bool, error) {
	tokens, err := a.API.Register(ctx, req)
	if err != nil {
		return checkout.Outcome{}, false, err
	}
	return a.signedIn(ctx, tokens)
}

func (a *App) signedIn(ctx context.Context, tokens *apiclient.Tokens) (checkout.Outcome, bool, error) {
	session, err := a.Tokens.Save(ctx, tokens)
	if err != nil {
		return checkout.Outcome{}, false, err
	}
	a.Gate.AdoptUser(ctx, session.UserID)
	return a.Gate.Resume(ctx, a.Checkout)
}

// Resume runs a pending checkout intent, if any.
func (a *App) Resume(ctx context.Context) (checkout.Outcome, bool, error) {
	return a.Gate.Resume(ctx, a.Checkout)
}

// Logout ends the session and falls back to the guest cart.
func (a *App) Logout(ctx context.Context) error {
	var err error
	if a.Gate.Authenticated(ctx) {
		if lerr := a.API.Logout(ctx); lerr != nil {
			a.Logger.Warn(a.Logger.WithField(ctx, "error", lerr.Error()), "auth.logout.failed")
		}
	}
	err = multierr.Append(err, a.Tokens.Clear(ctx))
	a.Cart.SwitchOwner(ctx, storage.GuestOwner)
	return err
}
