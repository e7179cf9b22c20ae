package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/pokecard-storefront/pkg/config"
	"github.com/angelmondragon/pokecard-storefront/pkg/db"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
	"github.com/angelmondragon/pokecard-storefront/pkg/migrate"
)

type options struct {
	dir     string
	name    string
	version string
}

// fileCommands work on the migrations directory alone and never load config.
var fileCommands = map[string]func(options) (string, error){
	"create": func(o options) (string, error) {
		if o.name == "" {
			return "", fmt.Errorf("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(o.dir, o.name)
		if err != nil {
			return "", err
		}
		return "created migration: " + path, nil
	},
	"validate": func(o options) (string, error) {
		if err := migrate.ValidateDir(o.dir); err != nil {
			return "", err
		}
		return "migration validation passed", nil
	},
}

var dbCommands = map[string]func(context.Context, *sql.DB, options) error{
	"up":   func(ctx context.Context, conn *sql.DB, o options) error { return migrate.Run(ctx, conn, o.dir, "up") },
	"down": func(ctx context.Context, conn *sql.DB, o options) error { return migrate.Run(ctx, conn, o.dir, "down") },
	"status": func(ctx context.Context, conn *sql.DB, o options) error {
		return migrate.Run(ctx, conn, o.dir, "status")
	},
	"version": func(ctx context.Context, conn *sql.DB, o options) error {
		if o.version == "" {
			return fmt.Errorf("missing -version for version command")
		}
		return migrate.MigrateToVersion(ctx, conn, o.dir, o.version)
	},
}

func main() {
	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate")
	var opts options
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&opts.name, "name", "", "migration name (for create)")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	if run, ok := fileCommands[*cmd]; ok {
		out, err := run(opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migrate %s failed: %v\n", *cmd, err)
			os.Exit(1)
		}
		fmt.Println(out)
		return
	}
	run, ok := dbCommands[*cmd]
	if !ok {
		fmt.Fprintln(os.Stderr, "unknown -cmd value:", *cmd)
		os.Exit(1)
	}

	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()
	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
		"dir": opts.dir,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)

	logg.Info(ctx, "migrate ready")
	if err := run(ctx, sqlDB, opts); err != nil {
		logg.Error(ctx, "migrate command failed", err)
		dbClient.Close()
		os.Exit(1)
	}
	logg.Info(ctx, "migrate done")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
