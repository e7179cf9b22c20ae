package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/pokecard-storefront/internal/shopper"
	"github.com/angelmondragon/pokecard-storefront/pkg/config"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
)

const usage = `usage: shopper <command> [flags] [args]

commands:
  products [-search s] [-category c] [-page n] [-limit n]
  product <slug>
  add <slug> <variant-id|sku>
  remove <variant-id>
  qty <variant-id> <quantity>
  cart
  promo <code> | promo -remove
  details -email e -name n -line1 l [-line2 l] -postal p -city c -country cc [-phone p] [-shipping code]
  checkout
  status <session-id>
  login -email e -password p
  register -email e -password p -first f -last l
  resume
  logout
  orders [-page n]
`

type stdoutRedirect struct {
	out io.Writer
}

func (r stdoutRedirect) Redirect(_ context.Context, url string) error {
	_, err := fmt.Fprintf(r.out, "open: %s\n", url)
	return err
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.LoadShopper()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logg := logger.New(logger.Options{
		ServiceName: "shopper",
		Level:       logger.ParseLevel(cfg.LogLevel),
		Output:      os.Stderr,
		Format:      "console",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := shopper.New(ctx, shopper.Options{
		Config:   cfg,
		Logger:   logg,
		Redirect: stdoutRedirect{out: os.Stdout},
	})
	if err != nil {
		logg.Error(ctx, "shopper.init.failed", err)
		fmt.Fprintf(os.Stderr, "shopper: %v\n", err)
		os.Exit(1)
	}

	cli := &cli{app: app, out: os.Stdout}
	runErr := cli.run(ctx, os.Args[1], os.Args[2:])
	if err := app.Close(); err != nil {
		logg.Error(ctx, "shopper.close.failed", err)
	}
	if runErr != nil {
		if errors.Is(runErr, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}
}
