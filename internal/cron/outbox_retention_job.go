package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
)

const defaultOutboxRetention = 14 * 24 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPruner interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
}

// OutboxRetentionJobParams configure pruning of relayed outbox rows.
type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxPruner
	Retention  time.Duration
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultOutboxRetention
	}
	return &outboxRetentionJob{
		logg:      params.Logger,
		db:        params.DB,
		repo:      params.Repository,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

type outboxRetentionJob struct {
	logg      *logger.Logger
	db        txRunner
	repo      outboxPruner
	retention time.Duration
	now       func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.retention)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := j.repo.DeletePublishedBefore(tx, cutoff)
		deleted = n
		return err
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{"cutoff": cutoff, "rows_deleted": deleted}), "cron.outbox_retention.done")
	return nil
}
