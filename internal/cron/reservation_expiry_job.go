package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/jasoncmcclain/mcpmp-api/internal/allocation"
	"github.com/jasoncmcclain/mcpmp-api/pkg/logger"
)

const defaultExpiryBatchSize = 100

type reservationExpirer interface {
	ExpireReservations(ctx context.Context, now time.Time, limit int) (allocation.ExpirySummary, error)
}

type ReservationExpiryJobParams struct {
	Logger    *logger.Logger
	Expirer   reservationExpirer
	BatchSize int
}

// NewReservationExpiryJob releases reservations whose expires_at has passed.
func NewReservationExpiryJob(params ReservationExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Expirer == nil {
		return nil, fmt.Errorf("reservation expirer required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatchSize
	}
	return &reservationExpiryJob{
		logg:    params.Logger,
		expirer: params.Expirer,
		batch:   batch,
		now:     time.Now,
	}, nil
}

type reservationExpiryJob struct {
	logg    *logger.Logger
	expirer reservationExpirer
	batch   int
	now     func() time.Time
}

func (j *reservationExpiryJob) Name() string { return "reservation-expiry" }

func (j *reservationExpiryJob) Run(ctx context.Context) error {
	summary, err := j.expirer.ExpireReservations(ctx, j.now().UTC(), j.batch)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned":  summary.Scanned,
		"expired":  summary.Expired,
		"failed":   summary.Failed,
		"unbacked": summary.Unbacked,
	})
	if err != nil {
		return fmt.Errorf("reservation expiry: %w", err)
	}
	if summary.Expired > 0 {
		j.logg.Info(logCtx, "expired reservations released")
	}
	return nil
}
