package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/jasoncmcclain/mcpmp-api/pkg/logger"
)

const defaultOutboxRetention = 30 * 24 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB) error) error
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
	DeleteExhaustedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, maxAttempts int) (int64, error)
}

// OutboxRetentionJobParams configures the outbox purge. MaxAttempts should
// match the relay so that rows it abandoned are purged on the same window.
type OutboxRetentionJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Repository  outboxRetentionRepo
	Retention   time.Duration
	MaxAttempts int
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	var errs error
	if params.Logger == nil {
		errs = multierr.Append(errs, errors.New("logger required"))
	}
	if params.DB == nil {
		errs = multierr.Append(errs, errors.New("db runner required"))
	}
	if params.Repository == nil {
		errs = multierr.Append(errs, errors.New("outbox repository required"))
	}
	if errs != nil {
		return nil, errs
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultOutboxRetention
	}
	attempts := params.MaxAttempts
	if attempts <= 0 {
		attempts = defaultRelayMaxAttempts
	}
	return &outboxRetentionJob{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repository,
		retention:   retention,
		maxAttempts: attempts,
		now:         time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	repo        outboxRetentionRepo
	retention   time.Duration
	maxAttempts int
	now         func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run deletes published rows and relay-abandoned rows older than the
// retention window in a single transaction.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var published, exhausted int64
	err := j.db.WithTx(ctx, func(ctx context.Context, tx *gorm.DB) error {
		var err error
		if published, err = j.repo.DeletePublishedBefore(ctx, tx, cutoff); err != nil {
			return err
		}
		exhausted, err = j.repo.DeleteExhaustedBefore(ctx, tx, cutoff, j.maxAttempts)
		return err
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	if published+exhausted == 0 {
		return nil
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":           cutoff,
		"retention":        j.retention.String(),
		"published_purged": published,
		"exhausted_purged": exhausted,
	})
	j.logg.Info(logCtx, "outbox retention cleanup complete")
	return nil
}
