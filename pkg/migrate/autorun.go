package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/pokecard-storefront/pkg/config"
	"github.com/angelmondragon/pokecard-storefront/pkg/db"
	"github.com/angelmondragon/pokecard-storefront/pkg/db/models"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
)

// MaybeRunDev executes migrations automatically when the app is running in dev mode and
// the feature flag is enabled. SQLite databases are created from the models.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	if cfg.FeatureFlags.UseSQLite || cfg.DB.Driver == "sqlite" {
		ctx = logg.WithField(ctx, "env", cfg.App.Env)
		logg.Info(ctx, "auto-migrating sqlite schema from models")
		if err := AutoMigrateModels(ctx, client); err != nil {
			return err
		}
		logg.Info(ctx, "sqlite schema ready")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	meta := map[string]any{"env": cfg.App.Env, "dir": DefaultDir}
	ctx = logg.WithFields(ctx, meta)
	logg.Info(ctx, "running Goose migrations (dev auto-run)")

	if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	logg.Info(ctx, "Goose migrations completed")
	return nil
}

// AutoMigrateModels creates every table from the gorm models.
func AutoMigrateModels(ctx context.Context, client *db.Client) error {
	if client == nil {
		return fmt.Errorf("db client is required")
	}
	if err := client.DB().WithContext(ctx).AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto-migrate models: %w", err)
	}
	return nil
}
