package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/pokecard-storefront/internal/orders"
	"github.com/angelmondragon/pokecard-storefront/pkg/db/models"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
)

const defaultExpiryBatch = 200

type expiredSessionLister interface {
	ListExpiredOpen(ctx context.Context, now time.Time, limit int) ([]models.CheckoutSession, error)
}

type sessionExpirer interface {
	Expire(ctx context.Context, input orders.ExpireInput) (bool, error)
}

// CheckoutExpiryJobParams configure the stale checkout-session sweep.
type CheckoutExpiryJobParams struct {
	Logger    *logger.Logger
	Sessions  expiredSessionLister
	Expirer   sessionExpirer
	BatchSize int
}

// NewCheckoutExpiryJob expires open sessions whose deadline has passed. Each
// expiry emits checkout.expired through the order service.
func NewCheckoutExpiryJob(params CheckoutExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session lister required")
	}
	if params.Expirer == nil {
		return nil, fmt.Errorf("session expirer required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatch
	}
	return &checkoutExpiryJob{
		logg:     params.Logger,
		sessions: params.Sessions,
		expirer:  params.Expirer,
		batch:    batch,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

type checkoutExpiryJob struct {
	logg     *logger.Logger
	sessions expiredSessionLister
	expirer  sessionExpirer
	batch    int
	now      func() time.Time
}

func (j *checkoutExpiryJob) Name() string { return "expire-checkout-sessions" }

func (j *checkoutExpiryJob) Run(ctx context.Context) error {
	stale, err := j.sessions.ListExpiredOpen(ctx, j.now(), j.batch)
	if err != nil {
		return fmt.Errorf("list expired sessions: %w", err)
	}

	var errs error
	expired := 0
	for _, session := range stale {
		ok, err := j.expirer.Expire(ctx, orders.ExpireInput{
			CheckoutID: session.ID.String(),
			Source:     orders.ExpireSourceSweep,
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire %s: %w", session.ID, err))
			continue
		}
		if ok {
			expired++
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"candidates": len(stale),
		"expired":    expired,
		"failed":     len(multierr.Errors(errs)),
	}), "cron.checkout_expiry.done")
	return errs
}
