package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/pokecard-storefront/api/controllers"
	webhookcontrollers "github.com/angelmondragon/pokecard-storefront/api/controllers/webhooks"
	"github.com/angelmondragon/pokecard-storefront/api/middleware"
	"github.com/angelmondragon/pokecard-storefront/internal/auth"
	"github.com/angelmondragon/pokecard-storefront/internal/catalog"
	checkoutsvc "github.com/angelmondragon/pokecard-storefront/internal/checkout"
	"github.com/angelmondragon/pokecard-storefront/internal/orders"
	"github.com/angelmondragon/pokecard-storefront/internal/promo"
	"github.com/angelmondragon/pokecard-storefront/internal/reservations"
	"github.com/angelmondragon/pokecard-storefront/pkg/auth/session"
	"github.com/angelmondragon/pokecard-storefront/pkg/config"
	"github.com/angelmondragon/pokecard-storefront/pkg/db"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
	pkgredis "github.com/angelmondragon/pokecard-storefront/pkg/redis"
)

// Cache is the slice of the redis client the HTTP layer needs.
type Cache interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

// Params carries everything NewRouter mounts.
type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       db.Pinger
	Cache    Cache
	Sessions session.AccessSessionChecker
	Gatherer prometheus.Gatherer

	Auth     auth.Service
	Register auth.RegisterService
	Catalog  catalog.Service
	Promo    promo.Service
	Checkout checkoutsvc.Service
	Orders   orders.Service
	Holds    reservations.Service

	StripeVerifier webhookcontrollers.EventVerifier
	StripeWebhook  webhookcontrollers.StripeWebhookService
	WebhookGuard   webhookcontrollers.StripeWebhookGuard
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.Checkout.AllowedOrigins),
	)

	var cache pkgredis.IdempotencyStore
	var readinessCache interface{ Ping(context.Context) error }
	if p.Cache != nil {
		cache = p.Cache
		readinessCache = p.Cache
	}
	idempotent := middleware.Idempotency(cache, logg)
	authenticated := middleware.Auth(cfg.JWT, p.Sessions, logg)
	optionalAuth := middleware.OptionalAuth(cfg.JWT, p.Sessions, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg.App.Env))
		r.Get("/ready", controllers.HealthReady(cfg.App.Env, controllers.ReadinessDeps(p.DB, readinessCache), logg))
	})
	if p.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ProductList(p.Catalog, logg))
			r.With(optionalAuth).Post("/variants/stock", controllers.VariantStock(p.Catalog, logg))
			r.Get("/{slug}", controllers.ProductBySlug(p.Catalog, logg))
		})
		r.Get("/reservations/availability/{variantId}", controllers.ReservationAvailability(p.Holds, logg))
		r.Post("/promo/validate", controllers.PromoValidate(p.Promo, logg))
		r.Get("/shipping-methods", controllers.ShippingMethods())

		r.Route("/auth", func(r chi.Router) {
			if p.Cache != nil {
				r.With(middleware.AuthRateLimit(middleware.LoginPolicy(cfg.AuthRateLimit), p.Cache, logg)).
					Post("/login", controllers.AuthLogin(p.Auth, logg))
				r.With(middleware.AuthRateLimit(middleware.RegisterPolicy(cfg.AuthRateLimit), p.Cache, logg), idempotent).
					Post("/register", controllers.AuthRegister(p.Register, logg))
			} else {
				r.Post("/login", controllers.AuthLogin(p.Auth, logg))
				r.Post("/register", controllers.AuthRegister(p.Register, logg))
			}
			r.Post("/refresh", controllers.AuthRefresh(p.Auth, logg))
			r.Post("/logout", controllers.AuthLogout(p.Auth, logg))
			r.With(authenticated).Get("/verify", controllers.AuthVerify(p.Auth, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticated)
			r.With(idempotent).Post("/checkout/sessions", controllers.CheckoutCreateSession(p.Checkout, logg))
			r.Get("/checkout/sessions/{sessionId}", controllers.CheckoutGetSession(p.Checkout, logg))
			r.Get("/orders", controllers.OrderList(p.Orders, logg))
			r.Get("/orders/{orderNumber}", controllers.OrderByNumber(p.Orders, logg))
			r.Post("/reservations", controllers.ReservationCreate(p.Holds, logg))
			r.Post("/reservations/release", controllers.ReservationRelease(p.Holds, logg))
			r.Post("/reservations/release-all", controllers.ReservationReleaseAll(p.Holds, logg))
			r.Get("/reservations/mine", controllers.ReservationListMine(p.Holds, logg))
		})

		r.Post("/webhooks/stripe", webhookcontrollers.StripeWebhook(p.StripeWebhook, p.StripeVerifier, p.WebhookGuard, logg))
	})

	return r
}
