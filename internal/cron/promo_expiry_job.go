package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
)

type promoDeactivator interface {
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

// NewPromoExpiryJob flags promo codes past valid_until as inactive.
func NewPromoExpiryJob(logg *logger.Logger, promos promoDeactivator) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if promos == nil {
		return nil, fmt.Errorf("promo repository required")
	}
	return &promoExpiryJob{logg: logg, promos: promos, now: func() time.Time { return time.Now().UTC() }}, nil
}

type promoExpiryJob struct {
	logg   *logger.Logger
	promos promoDeactivator
	now    func() time.Time
}

func (j *promoExpiryJob) Name() string { return "deactivate-expired-promos" }

func (j *promoExpiryJob) Run(ctx context.Context) error {
	count, err := j.promos.DeactivateExpired(ctx, j.now())
	if err != nil {
		return fmt.Errorf("deactivate expired promos: %w", err)
	}
	if count > 0 {
		j.logg.Info(j.logg.WithField(ctx, "deactivated", count), "cron.promo_expiry.done")
	}
	return nil
}
