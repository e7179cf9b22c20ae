package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/pokecard-storefront/internal/checkout"
	"github.com/angelmondragon/pokecard-storefront/internal/cron"
	"github.com/angelmondragon/pokecard-storefront/internal/orders"
	"github.com/angelmondragon/pokecard-storefront/internal/promo"
	"github.com/angelmondragon/pokecard-storefront/internal/reservations"
	"github.com/angelmondragon/pokecard-storefront/pkg/config"
	"github.com/angelmondragon/pokecard-storefront/pkg/db"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
	"github.com/angelmondragon/pokecard-storefront/pkg/metrics"
	"github.com/angelmondragon/pokecard-storefront/pkg/migrate"
	"github.com/angelmondragon/pokecard-storefront/pkg/outbox"
	"github.com/angelmondragon/pokecard-storefront/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker", lockEnv(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry, err := buildRegistry(cfg, logg, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"jobs":        registry.Names(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	orderService, err := orders.NewService(orders.ServiceParams{
		DB:     dbClient,
		Orders: orders.NewRepository(dbClient.DB()),
		Outbox: outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Logger: logg,
	})
	if err != nil {
		return nil, err
	}

	expiry, err := cron.NewCheckoutExpiryJob(cron.CheckoutExpiryJobParams{
		Logger:    logg,
		Sessions:  checkout.NewRepository(dbClient.DB()),
		Expirer:   orderService,
		BatchSize: cfg.Cron.ExpiryBatchSize,
	})
	if err != nil {
		return nil, err
	}
	promos, err := cron.NewPromoExpiryJob(logg, promo.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, err
	}
	holds, err := cron.NewReservationExpiryJob(logg, reservations.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		Retention:  cfg.Cron.OutboxRetention,
	})
	if err != nil {
		return nil, err
	}

	registry := cron.NewRegistry()
	for _, job := range []cron.Job{expiry, promos, holds, retention} {
		if err := registry.Register(job); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func lockEnv(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
