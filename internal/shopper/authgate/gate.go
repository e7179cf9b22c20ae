// Package authgate sends an anonymous shopper through sign-in without
// losing the cart or the checkout draft, and resumes checkout afterwards.
package authgate

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"runtime"
	"time"

	"github.com/angelmondragon/pokecard-storefront/internal/shopper/cart"
	"github.com/angelmondragon/pokecard-storefront/internal/shopper/checkout"
	"github.com/angelmondragon/pokecard-storefront/internal/shopper/draft"
	"github.com/angelmondragon/pokecard-storefront/internal/shopper/storage"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
)

const (
	DefaultIntentTTL = 10 * time.Minute
	ResumeParam      = "resume"
	ResumeCheckout   = "checkout"
	redirectParam    = "redirect"
)

// Intent marks a checkout interrupted by sign-in.
type Intent struct {
	ReturnTo  string    `json:"returnTo"`
	CreatedAt time.Time `json:"createdAt"`
}

// Starter re-runs checkout once the shopper is back.
type Starter interface {
	Start(ctx context.Context) (checkout.Outcome, error)
}

type Params struct {
	Store        storage.Store
	Cart         *cart.Store
	Drafts       *draft.Manager
	Tokens       *Tokens
	LoginURL     string
	CheckoutPath string
	IntentTTL    time.Duration
	Logger       *logger.Logger
}

type Gate struct {
	kv           storage.Store
	cart         *cart.Store
	drafts       *draft.Manager
	tokens       *Tokens
	loginURL     string
	checkoutPath string
	ttl          time.Duration
	now          func() time.Time
	tick         func()
	logg         *logger.Logger
}

func New(p Params) (*Gate, error) {
	switch {
	case p.Store == nil:
		return nil, errors.New("gate storage required")
	case p.Cart == nil:
		return nil, errors.New("cart required")
	case p.Drafts == nil:
		return nil, errors.New("draft manager required")
	case p.Tokens == nil:
		return nil, errors.New("token store required")
	}
	ttl := p.IntentTTL
	if ttl <= 0 {
		ttl = DefaultIntentTTL
	}
	loginURL := p.LoginURL
	if loginURL == "" {
		loginURL = "/login"
	}
	checkoutPath := p.CheckoutPath
	if checkoutPath == "" {
		checkoutPath = "/checkout"
	}
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Gate{
		kv:           p.Store,
		cart:         p.Cart,
		drafts:       p.Drafts,
		tokens:       p.Tokens,
		loginURL:     loginURL,
		checkoutPath: checkoutPath,
		ttl:          ttl,
		now:          time.Now,
		tick:         runtime.Gosched,
		logg:         logg,
	}, nil
}

// Authenticated reports whether a session token is stored.
func (g *Gate) Authenticated(ctx context.Context) bool {
	s, err := g.tokens.Load(ctx)
	if err != nil {
		g.logg.Error(ctx, "auth.session.load.failed", err)
		return false
	}
	return s != nil && s.AccessToken != ""
}

// Require persists cart, draft and a checkout intent, then returns the
// sign-in URL carrying the resume instruction.
func (g *Gate) Require(ctx context.Context, d *draft.Draft) (string, error) {
	g.cart.Persist(ctx)
	// a token the API just refused is useless for the resumed attempt
	if err := g.tokens.Clear(ctx); err != nil {
		g.logg.Error(ctx, "auth.token.clear.failed", err)
	}
	if d != nil {
		if _, err := g.drafts.Save(ctx, *d); err != nil {
			return "", fmt.Errorf("save draft before sign-in: %w", err)
		}
	}
	returnTo := g.returnTo()
	intent := Intent{ReturnTo: returnTo, CreatedAt: g.now().UTC()}
	if err := storage.SetJSON(ctx, g.kv, storage.KeyIntent, intent, g.ttl); err != nil {
		return "", fmt.Errorf("save checkout intent: %w", err)
	}
	g.logg.Info(g.logg.WithField(ctx, "return_to", returnTo), "checkout.intent.saved")
	return g.signInURL(returnTo)
}

// Pending reports whether an unexpired checkout intent is waiting.
func (g *Gate) Pending(ctx context.Context) bool {
	intent, err := g.loadIntent(ctx)
	return err == nil && intent != nil
}

// AdoptUser moves the live cart to owner and folds any stored guest cart
// into it. Calling it again is harmless: the guest cart is gone afterwards.
func (g *Gate) AdoptUser(ctx context.Context, owner string) {
	if owner == "" {
		return
	}
	var guest []cart.Line
	if g.cart.Owner() == storage.GuestOwner {
		guest = g.cart.Lines()
	} else {
		guest = g.cart.LoadOwner(ctx, storage.GuestOwner)
	}
	g.cart.SwitchOwner(ctx, owner)
	g.cart.Merge(ctx, guest)
	g.cart.Discard(ctx, storage.GuestOwner)
}

// Resume re-runs checkout after sign-in. The intent is cleared before the
// run so a later reload cannot fire it again. It reports whether a resume
// happened.
func (g *Gate) Resume(ctx context.Context, starter Starter) (checkout.Outcome, bool, error) {
	if starter == nil {
		return checkout.Outcome{}, false, errors.New("starter required")
	}
	session, err := g.tokens.Load(ctx)
	if err != nil {
		return checkout.Outcome{}, false, err
	}
	if session == nil || session.AccessToken == "" {
		return checkout.Outcome{}, false, nil
	}
	intent, err := g.loadIntent(ctx)
	if err != nil {
		return checkout.Outcome{}, false, err
	}
	if intent == nil {
		return checkout.Outcome{}, false, nil
	}
	if err := g.kv.Delete(ctx, storage.KeyIntent); err != nil {
		return checkout.Outcome{}, false, fmt.Errorf("clear checkout intent: %w", err)
	}

	g.AdoptUser(ctx, session.UserID)
	g.tick()

	g.logg.Info(g.logg.WithUserID(ctx, session.UserID), "checkout.resume")
	out, err := starter.Start(ctx)
	return out, true, err
}

func (g *Gate) loadIntent(ctx context.Context) (*Intent, error) {
	var intent Intent
	err := storage.GetJSON(ctx, g.kv, storage.KeyIntent, &intent)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if g.now().Sub(intent.CreatedAt) > g.ttl {
		_ = g.kv.Delete(ctx, storage.KeyIntent)
		return nil, nil
	}
	return &intent, nil
}

func (g *Gate) returnTo() string {
	q := url.Values{}
	q.Set(ResumeParam, ResumeCheckout)
	return g.checkoutPath + "?" + q.Encode()
}

func (g *Gate) signInURL(returnTo string) (string, error) {
	u, err := url.Parse(g.loginURL)
	if err != nil {
		return "", fmt.Errorf("parse login url: %w", err)
	}
	q := u.Query()
	q.Set(redirectParam, returnTo)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
