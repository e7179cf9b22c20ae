package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
)

type holdPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// NewReservationExpiryJob deletes stock holds whose deadline has passed.
func NewReservationExpiryJob(logg *logger.Logger, holds holdPurger) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if holds == nil {
		return nil, fmt.Errorf("reservation repository required")
	}
	return &reservationExpiryJob{logg: logg, holds: holds, now: func() time.Time { return time.Now().UTC() }}, nil
}

type reservationExpiryJob struct {
	logg  *logger.Logger
	holds holdPurger
	now   func() time.Time
}

func (j *reservationExpiryJob) Name() string { return "expire-stock-reservations" }

func (j *reservationExpiryJob) Run(ctx context.Context) error {
	count, err := j.holds.DeleteExpired(ctx, j.now())
	if err != nil {
		return fmt.Errorf("delete expired reservations: %w", err)
	}
	if count > 0 {
		j.logg.Info(j.logg.WithField(ctx, "released", count), "cron.reservation_expiry.done")
	}
	return nil
}
