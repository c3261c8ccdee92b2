package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/jasoncmcclain/mcpmp-api/pkg/db/models"
	"github.com/jasoncmcclain/mcpmp-api/pkg/logger"
	"github.com/jasoncmcclain/mcpmp-api/pkg/outbox"
)

const (
	defaultRelayBatchSize   = 100
	defaultRelayMaxAttempts = 10
)

// EventSink is where relayed outbox events are delivered.
type EventSink interface {
	Publish(ctx context.Context, row models.OutboxEvent, envelope outbox.PayloadEnvelope) error
}

type outboxRelayRepo interface {
	FetchUnpublished(ctx context.Context, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
}

type OutboxRelayJobParams struct {
	Logger      *logger.Logger
	Repository  outboxRelayRepo
	Sink        EventSink
	BatchSize   int
	MaxAttempts int
}

// NewOutboxRelayJob drains unpublished outbox rows into the sink. Delivery is at
// least once: a row is marked published only after the sink accepts it.
func NewOutboxRelayJob(params OutboxRelayJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	if params.Sink == nil {
		return nil, fmt.Errorf("event sink required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultRelayBatchSize
	}
	attempts := params.MaxAttempts
	if attempts <= 0 {
		attempts = defaultRelayMaxAttempts
	}
	return &outboxRelayJob{
		logg:        params.Logger,
		repo:        params.Repository,
		sink:        params.Sink,
		batch:       batch,
		maxAttempts: attempts,
	}, nil
}

type outboxRelayJob struct {
	logg        *logger.Logger
	repo        outboxRelayRepo
	sink        EventSink
	batch       int
	maxAttempts int
}

func (j *outboxRelayJob) Name() string { return "outbox-relay" }

func (j *outboxRelayJob) Run(ctx context.Context) error {
	rows, err := j.repo.FetchUnpublished(ctx, j.batch, j.maxAttempts)
	if err != nil {
		return fmt.Errorf("fetch outbox rows: %w", err)
	}

	var errs error
	published := 0
	for _, row := range rows {
		if err := j.deliver(ctx, row); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		published++
	}

	if len(rows) > 0 {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"fetched":   len(rows),
			"published": published,
		})
		j.logg.Info(logCtx, "outbox relay pass complete")
	}
	return errs
}

func (j *outboxRelayJob) deliver(ctx context.Context, row models.OutboxEvent) error {
	envelope, err := outbox.Decode(row)
	if err == nil {
		err = j.sink.Publish(ctx, row, envelope)
	}
	if err != nil {
		if markErr := j.repo.MarkFailed(ctx, row.ID, err); markErr != nil {
			return multierr.Combine(err, fmt.Errorf("mark outbox %s failed: %w", row.ID, markErr))
		}
		if row.FinalAttempt(j.maxAttempts) {
			j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
				"event_id":   row.ID.String(),
				"event_type": string(row.EventType),
				"attempts":   row.AttemptCount + 1,
			}), "outbox event parked after final delivery attempt")
		}
		return fmt.Errorf("publish outbox %s: %w", row.ID, err)
	}
	if err := j.repo.MarkPublished(ctx, row.ID); err != nil {
		return fmt.Errorf("mark outbox %s published: %w", row.ID, err)
	}
	return nil
}

// LogSink writes each event as a structured log line.
type LogSink struct {
	Logger *logger.Logger
}

func (s LogSink) Publish(ctx context.Context, row models.OutboxEvent, envelope outbox.PayloadEnvelope) error {
	if s.Logger == nil {
		return nil
	}
	logCtx := s.Logger.WithFields(ctx, map[string]any{
		"event_id":       envelope.EventID,
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"occurred_at":    envelope.OccurredAt,
		"data":           string(envelope.Data),
	})
	s.Logger.Info(logCtx, "domain event")
	return nil
}
