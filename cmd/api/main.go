package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/pokecard-storefront/api/routes"
	"github.com/angelmondragon/pokecard-storefront/internal/auth"
	"github.com/angelmondragon/pokecard-storefront/internal/catalog"
	"github.com/angelmondragon/pokecard-storefront/internal/checkout"
	"github.com/angelmondragon/pokecard-storefront/internal/orders"
	"github.com/angelmondragon/pokecard-storefront/internal/promo"
	"github.com/angelmondragon/pokecard-storefront/internal/reservations"
	"github.com/angelmondragon/pokecard-storefront/internal/users"
	stripewebhook "github.com/angelmondragon/pokecard-storefront/internal/webhooks/stripe"
	"github.com/angelmondragon/pokecard-storefront/pkg/auth/session"
	"github.com/angelmondragon/pokecard-storefront/pkg/config"
	"github.com/angelmondragon/pokecard-storefront/pkg/db"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
	"github.com/angelmondragon/pokecard-storefront/pkg/metrics"
	"github.com/angelmondragon/pokecard-storefront/pkg/migrate"
	"github.com/angelmondragon/pokecard-storefront/pkg/outbox"
	"github.com/angelmondragon/pokecard-storefront/pkg/redis"
	pkgstripe "github.com/angelmondragon/pokecard-storefront/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)

	router, err := buildRouter(cfg, logg, dbClient, redisClient, stripeClient, registry, checkoutMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to wire api", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"stripe_env": stripeClient.Environment(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server stopped")
	}
}

func buildRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	stripeClient *pkgstripe.Client,
	registry *prometheus.Registry,
	checkoutMetrics *metrics.CheckoutMetrics,
) (http.Handler, error) {
	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return nil, err
	}

	usersRepo := users.NewRepository(dbClient.DB())
	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       usersRepo,
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
	})
	if err != nil {
		return nil, err
	}
	registerService, err := auth.NewRegisterService(auth.RegisterServiceParams{
		DB:             dbClient,
		SessionManager: sessionManager,
		PasswordConfig: cfg.Password,
		JWTConfig:      cfg.JWT,
	})
	if err != nil {
		return nil, err
	}

	holdService, err := reservations.NewService(reservations.ServiceParams{
		DB:     dbClient,
		Repo:   reservations.NewRepository(dbClient.DB()),
		Logger: logg,
	})
	if err != nil {
		return nil, err
	}

	catalogRepo := catalog.NewRepository(dbClient.DB())
	catalogService, err := catalog.NewService(catalogRepo, holdService)
	if err != nil {
		return nil, err
	}
	promoService, err := promo.NewService(promo.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, err
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Sessions: checkout.NewRepository(dbClient.DB()),
		Variants: catalogRepo,
		Holds:    holdService,
		Promos:   promoService,
		Provider: stripeClient,
		Config:   cfg.Checkout,
		Metrics:  checkoutMetrics,
		Logger:   logg,
	})
	if err != nil {
		return nil, err
	}

	orderService, err := orders.NewService(orders.ServiceParams{
		DB:      dbClient,
		Orders:  orders.NewRepository(dbClient.DB()),
		Outbox:  outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Metrics: checkoutMetrics,
		Logger:  logg,
	})
	if err != nil {
		return nil, err
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{Orders: orderService, Logger: logg})
	if err != nil {
		return nil, err
	}
	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Checkout.WebhookIdempotencyTTL, "")
	if err != nil {
		return nil, err
	}

	return routes.NewRouter(routes.Params{
		Config:         cfg,
		Logger:         logg,
		DB:             dbClient,
		Cache:          redisClient,
		Sessions:       sessionManager,
		Gatherer:       registry,
		Auth:           authService,
		Register:       registerService,
		Catalog:        catalogService,
		Promo:          promoService,
		Checkout:       checkoutService,
		Orders:         orderService,
		Holds:          holdService,
		StripeVerifier: stripeClient,
		StripeWebhook:  webhookService,
		WebhookGuard:   webhookGuard,
	}), nil
}
