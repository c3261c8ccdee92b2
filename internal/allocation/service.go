package allocation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/jasoncmcclain/mcpmp-api/internal/compliance"
	"github.com/jasoncmcclain/mcpmp-api/internal/inventory"
	dbpkg "github.com/jasoncmcclain/mcpmp-api/pkg/db"
	"github.com/jasoncmcclain/mcpmp-api/pkg/db/models"
	"github.com/jasoncmcclain/mcpmp-api/pkg/enums"
	pkgerrors "github.com/jasoncmcclain/mcpmp-api/pkg/errors"
	"github.com/jasoncmcclain/mcpmp-api/pkg/logger"
	"github.com/jasoncmcclain/mcpmp-api/pkg/metrics"
	"github.com/jasoncmcclain/mcpmp-api/pkg/outbox"
	"github.com/jasoncmcclain/mcpmp-api/pkg/outbox/payloads"
)

var (
	hundred          = decimal.NewFromInt(100)
	percentTolerance = decimal.RequireFromString("0.01")
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type allocationMetrics interface {
	ObserveAllocation(outcome string)
	AddReserved(gallons float64)
	AddReleased(status string, gallons float64)
}

// Params wires the coordinator.
type Params struct {
	Repo   Repository
	Ledger inventory.Ledger
	Tx     txRunner
	Outbox outboxPublisher
	// Metrics may be nil.
	Metrics allocationMetrics
	Logger  *logger.Logger
	Now     func() time.Time
	// ReservationTTL applies to run reservations created without an explicit expiry. Zero means none.
	ReservationTTL time.Duration
	// HoldTTL applies to standing holds created without an explicit expiry. Zero means none.
	HoldTTL time.Duration
}

// Service coordinates every multi-row allocation change. Each public mutation
// is one database transaction.
type Service struct {
	repo           Repository
	ledger         inventory.Ledger
	tx             txRunner
	outbox         outboxPublisher
	metrics        allocationMetrics
	logg           *logger.Logger
	now            func() time.Time
	reservationTTL time.Duration
	holdTTL        time.Duration
}

func NewService(p Params) (*Service, error) {
	switch {
	case p.Repo == nil:
		return nil, fmt.Errorf("allocation repository required")
	case p.Ledger == nil:
		return nil, fmt.Errorf("inventory ledger required")
	case p.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case p.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	if p.Metrics == nil {
		p.Metrics = (*metrics.AllocationMetrics)(nil)
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &Service{
		repo:           p.Repo,
		ledger:         p.Ledger,
		tx:             p.Tx,
		outbox:         p.Outbox,
		metrics:        p.Metrics,
		logg:           p.Logger,
		now:            p.Now,
		reservationTTL: p.ReservationTTL,
		holdTTL:        p.HoldTTL,
	}, nil
}

// CreateBottlingRun plans a run and reserves every assigned lot atomically.
// Either the run, all its blend lots and all reservations commit, or nothing does.
func (s *Service) CreateBottlingRun(ctx context.Context, input CreateRunInput) (uuid.UUID, error) {
	if err := validateRunInput(input); err != nil {
		s.metrics.ObserveAllocation(metrics.OutcomeInvalid)
		return uuid.Nil, err
	}

	now := s.now().UTC()
	size := NormalizeBottleSize(input.BottleSize)
	run := &models.BottlingRun{
		ID:                 uuid.New(),
		RunName:            strings.TrimSpace(input.RunName),
		CoreBlendID:        input.CoreBlendID,
		PlannedCases:       input.PlannedCases,
		PlannedGallons:     PlannedGallons(input.PlannedCases, size).Round(models.GallonsScale),
		BottleSize:         size,
		TargetBottlingDate: utcPtr(input.TargetBottlingDate),
		Status:             enums.BottlingRunPlanning,
	}
	expiresAt := s.expiry(input.ReservationExpiresAt, s.reservationTTL, now)

	total := decimal.Zero
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateRun(ctx, run); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert bottling run")
		}

		lines := make([]payloads.AllocationLine, 0, len(input.Lots))
		for i, assignment := range input.Lots {
			reservationID, err := s.allocateLot(ctx, tx, repo, run.ID, assignment, expiresAt)
			if err != nil {
				if typed := pkgerrors.As(err); typed != nil && typed.Details() == nil {
					typed.WithDetails(map[string]any{"lot_index": i, "grape_lot_id": assignment.GrapeLotID})
				}
				return err
			}
			total = total.Add(assignment.GallonsAllocated)
			lines = append(lines, payloads.AllocationLine{
				GrapeLotID:       assignment.GrapeLotID,
				ReservationID:    reservationID,
				GallonsAllocated: assignment.GallonsAllocated,
			})
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBottlingRunCreated,
			AggregateType: enums.AggregateBottlingRun,
			AggregateID:   run.ID,
			Data: payloads.BottlingRunCreatedEvent{
				BottlingRunID:  run.ID,
				RunName:        run.RunName,
				PlannedCases:   run.PlannedCases,
				PlannedGallons: run.PlannedGallons,
				BottleSize:     run.BottleSize,
				Lines:          lines,
			},
		})
	})
	if err != nil {
		s.metrics.ObserveAllocation(outcomeFor(err))
		return uuid.Nil, pkgerrors.Persistence(err, "create bottling run")
	}

	s.metrics.ObserveAllocation(metrics.OutcomeCommitted)
	s.metrics.AddReserved(total.InexactFloat64())
	logCtx := s.logg.WithFields(s.logg.WithRunID(ctx, run.ID.String()), map[string]any{
		"lot_count":       len(input.Lots),
		"planned_gallons": run.PlannedGallons.String(),
		"gallons_held":    total.String(),
	})
	s.logg.Info(logCtx, "bottling run created")
	return run.ID, nil
}

func (s *Service) allocateLot(
	ctx context.Context,
	tx *gorm.DB,
	repo Repository,
	runID uuid.UUID,
	assignment LotAssignment,
	expiresAt *time.Time,
) (uuid.UUID, error) {
	snap := assignment.Snapshot
	blendLot := &models.BlendLot{
		BottlingRunID:     runID,
		GrapeLotID:        assignment.GrapeLotID,
		GallonsAllocated:  assignment.GallonsAllocated,
		PercentageOfBlend: assignment.PercentageOfBlend,
		LotCode:           snap.LotCode,
		Varietal:          snap.Varietal,
		Vintage:           snap.Vintage,
		Appellation:       snap.Appellation,
		Vineyard:          snap.Vineyard,
	}
	if err := repo.CreateBlendLot(ctx, blendLot); err != nil {
		if dbpkg.IsForeignKeyViolation(err) {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "grape lot not found")
		}
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert blend lot")
	}

	if err := s.ledger.Reserve(ctx, tx, assignment.GrapeLotID, assignment.GallonsAllocated); err != nil {
		return uuid.Nil, err
	}

	reservation := &models.Reservation{
		GrapeLotID:      assignment.GrapeLotID,
		BottlingRunID:   &runID,
		GallonsReserved: assignment.GallonsAllocated,
		Status:          enums.ReservationActive,
		ExpiresAt:       expiresAt,
	}
	if err := repo.CreateReservation(ctx, reservation); err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert reservation")
	}
	return reservation.ID, nil
}

func validateRunInput(input CreateRunInput) error {
	if strings.TrimSpace(input.RunName) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "run_name is required")
	}
	if input.PlannedCases <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "planned_cases must be greater than zero")
	}
	if len(input.Lots) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one lot assignment is required")
	}
	for i, lot := range input.Lots {
		details := map[string]any{"lot_index": i}
		switch {
		case lot.GrapeLotID == uuid.Nil:
			return pkgerrors.New(pkgerrors.CodeValidation, "grape_lot_id is required").WithDetails(details)
		case !lot.GallonsAllocated.IsPositive():
			return pkgerrors.New(pkgerrors.CodeValidation, "gallons_allocated must be greater than zero").WithDetails(details)
		case !models.FitsGallonsScale(lot.GallonsAllocated):
			return pkgerrors.New(pkgerrors.CodeValidation, scaleMessage("gallons_allocated")).WithDetails(details)
		case lot.PercentageOfBlend.IsNegative() || lot.PercentageOfBlend.GreaterThan(hundred):
			return pkgerrors.New(pkgerrors.CodeValidation, "percentage_of_blend must be between 0 and 100").WithDetails(details)
		}
	}
	return nil
}

func scaleMessage(field string) string {
	return fmt.Sprintf("%s must have at most %d decimal places", field, models.GallonsScale)
}

func outcomeFor(err error) string {
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientInventory):
		return metrics.OutcomeInsufficient
	case pkgerrors.IsCode(err, pkgerrors.CodeValidation), pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeFailed
	}
}

// CancelBottlingRun releases every active reservation of the run back to
// inventory and marks the run Canceled.
func (s *Service) CancelBottlingRun(ctx context.Context, runID uuid.UUID) (*models.BottlingRun, error) {
	var released decimal.Decimal
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		run, err := s.loadRun(ctx, repo, runID)
		if err != nil {
			return err
		}
		if err := s.transition(ctx, tx, repo, run, enums.BottlingRunCanceled, nil); err != nil {
			return err
		}
		released, err = s.closeRunReservations(ctx, tx, repo, runID, enums.ReservationReleased)
		return err
	})
	if err != nil {
		return nil, pkgerrors.Persistence(err, "cancel bottling run")
	}
	s.metrics.AddReleased(string(enums.ReservationReleased), released.InexactFloat64())
	s.logg.Info(s.logg.WithRunID(ctx, runID.String()), "bottling run canceled")
	return s.GetBottlingRun(ctx, runID)
}

// ScheduleBottlingRun finalizes the blend. The percentages must sum to 100 and
// every blend lot must carry a vintage; the compliance result is recorded on
// the run whether or not it passes.
func (s *Service) ScheduleBottlingRun(ctx context.Context, runID uuid.UUID) (*ScheduleResult, error) {
	var result compliance.Result
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		run, err := s.loadRun(ctx, repo, runID)
		if err != nil {
			return err
		}
		if !run.Status.CanTransitionTo(enums.BottlingRunScheduled) {
			return stateConflict(run.Status, enums.BottlingRunScheduled)
		}
		shares, err := sharesFor(run.BlendLots)
		if err != nil {
			return err
		}
		result, err = compliance.Check(shares)
		if err != nil {
			return err
		}
		fields := map[string]any{
			"ttb_compliant": result.Compliant,
			"ttb_notes":     compliance.Notes(result),
		}
		return s.transition(ctx, tx, repo, run, enums.BottlingRunScheduled, fields)
	})
	if err != nil {
		return nil, pkgerrors.Persistence(err, "schedule bottling run")
	}

	logCtx := s.logg.WithFields(s.logg.WithRunID(ctx, runID.String()), map[string]any{
		"ttb_compliant":   result.Compliant,
		"primary_vintage": result.PrimaryVintage,
	})
	if result.Compliant {
		s.logg.Info(logCtx, "bottling run scheduled")
	} else {
		s.logg.Warn(logCtx, "bottling run scheduled with ttb violations")
	}

	run, err := s.GetBottlingRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &ScheduleResult{Run: run, Compliance: result}, nil
}

func sharesFor(lots []models.BlendLot) ([]compliance.LotShare, error) {
	if len(lots) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "bottling run has no blend lots")
	}
	sum := decimal.Zero
	shares := make([]compliance.LotShare, 0, len(lots))
	for _, lot := range lots {
		if lot.Vintage == nil {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "every blend lot needs a vintage before scheduling").
				WithDetails(map[string]any{"blend_lot_id": lot.ID})
		}
		sum = sum.Add(lot.PercentageOfBlend)
		shares = append(shares, compliance.LotShare{Vintage: *lot.Vintage, PercentageOfBlend: lot.PercentageOfBlend})
	}
	if sum.Sub(hundred).Abs().GreaterThan(percentTolerance) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "blend percentages must sum to 100").
			WithDetails(map[string]any{"percentage_total": sum.StringFixed(4)})
	}
	return shares, nil
}

// CompleteBottlingRun records the bottling and consumes the reserved wine.
func (s *Service) CompleteBottlingRun(ctx context.Context, runID uuid.UUID, bottledAt *time.Time) (*models.BottlingRun, error) {
	at := s.now().UTC()
	if bottledAt != nil && !bottledAt.IsZero() {
		at = bottledAt.UTC()
	}
	var consumed decimal.Decimal
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		run, err := s.loadRun(ctx, repo, runID)
		if err != nil {
			return err
		}
		if err := s.transition(ctx, tx, repo, run, enums.BottlingRunCompleted, map[string]any{"actual_bottling_date": at}); err != nil {
			return err
		}
		consumed, err = s.closeRunReservations(ctx, tx, repo, runID, enums.ReservationFulfilled)
		return err
	})
	if err != nil {
		return nil, pkgerrors.Persistence(err, "complete bottling run")
	}
	s.metrics.AddReleased(string(enums.ReservationFulfilled), consumed.InexactFloat64())
	logCtx := s.logg.WithFields(s.logg.WithRunID(ctx, runID.String()), map[string]any{"gallons_consumed": consumed.String()})
	s.logg.Info(logCtx, "bottling run completed")
	return s.GetBottlingRun(ctx, runID)
}

// closeRunReservations closes all active reservations of a run. Fulfilled
// consumes the gallons, any other status returns them to available.
func (s *Service) closeRunReservations(
	ctx context.Context,
	tx *gorm.DB,
	repo Repository,
	runID uuid.UUID,
	status enums.ReservationStatus,
) (decimal.Decimal, error) {
	reservations, err := repo.ActiveReservationsForRun(ctx, runID)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load run reservations")
	}
	total := decimal.Zero
	for i := range reservations {
		if err := s.closeReservation(ctx, tx, repo, &reservations[i], status); err != nil {
			return decimal.Zero, err
		}
		total = total.Add(reservations[i].GallonsReserved)
	}
	return total, nil
}

func (s *Service) closeReservation(
	ctx context.Context,
	tx *gorm.DB,
	repo Repository,
	reservation *models.Reservation,
	status enums.ReservationStatus,
) error {
	closedAt := s.now().UTC()
	rows, err := repo.CloseReservation(ctx, reservation.ID, status, closedAt)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close reservation")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation is no longer active").
			WithDetails(map[string]any{"reservation_id": reservation.ID})
	}

	if status == enums.ReservationFulfilled {
		err = s.ledger.Consume(ctx, tx, reservation.GrapeLotID, reservation.GallonsReserved)
	} else {
		err = s.ledger.Release(ctx, tx, reservation.GrapeLotID, reservation.GallonsReserved)
	}
	if err != nil {
		return err
	}
	reservation.Status = status
	reservation.ClosedAt = &closedAt

	eventType, ok := closeEvents[status]
	if !ok {
		return nil
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateReservation,
		AggregateID:   reservation.ID,
		Data:          reservationEvent(*reservation),
	})
}

var closeEvents = map[enums.ReservationStatus]enums.OutboxEventType{
	enums.ReservationReleased: enums.EventReservationReleased,
	enums.ReservationExpired:  enums.EventReservationExpired,
}

func (s *Service) transition(
	ctx context.Context,
	tx *gorm.DB,
	repo Repository,
	run *models.BottlingRun,
	to enums.BottlingRunStatus,
	fields map[string]any,
) error {
	if !run.Status.CanTransitionTo(to) {
		return stateConflict(run.Status, to)
	}
	rows, err := repo.TransitionRun(ctx, run.ID, run.Status, to, fields)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update bottling run status")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "bottling run changed concurrently").
			WithDetails(map[string]any{"bottling_run_id": run.ID})
	}

	event := payloads.BottlingRunStatusChangedEvent{BottlingRunID: run.ID, From: run.Status, To: to}
	if v, ok := fields["ttb_compliant"].(bool); ok {
		event.TTBCompliant = &v
	}
	run.Status = to
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventBottlingRunStatusChanged,
		AggregateType: enums.AggregateBottlingRun,
		AggregateID:   run.ID,
		Data:          event,
	})
}

func stateConflict(from, to enums.BottlingRunStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict,
		fmt.Sprintf("bottling run cannot move from %s to %s", from, to)).
		WithDetails(map[string]any{"from": from, "to": to})
}

// PlaceHold reserves gallons on a lot outside of run creation.
func (s *Service) PlaceHold(ctx context.Context, input HoldInput) (*models.Reservation, error) {
	if input.GrapeLotID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "grape_lot_id is required")
	}
	reservation, err := s.newHold(input)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if input.BottlingRunID != nil {
			run, err := s.loadRun(ctx, s.repo.WithTx(tx), *input.BottlingRunID)
			if err != nil {
				return err
			}
			if run.Status.IsTerminal() {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "cannot hold wine for a closed bottling run").
					WithDetails(map[string]any{"status": run.Status})
			}
		}
		return s.holdTx(ctx, tx, reservation)
	})
	if err != nil {
		return nil, pkgerrors.Persistence(err, "place hold")
	}

	s.logHold(ctx, reservation)
	return reservation, nil
}

// IntakeWithHold registers a lot and holds reserved gallons of it in one
// transaction. A failed hold leaves no lot behind.
func (s *Service) IntakeWithHold(ctx context.Context, input inventory.IntakeInput, hold HoldInput) (*models.GrapeLot, *models.Reservation, error) {
	if hold.BottlingRunID != nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "intake holds cannot reference a bottling run")
	}
	reservation, err := s.newHold(hold)
	if err != nil {
		return nil, nil, err
	}

	var lot *models.GrapeLot
	err = s.tx.WithTx(ctx, func(ctx context.Context, tx *gorm.DB) error {
		var err error
		if lot, err = s.ledger.IntakeTx(ctx, tx, input); err != nil {
			return err
		}
		reservation.GrapeLotID = lot.ID
		return s.holdTx(ctx, tx, reservation)
	})
	if err != nil {
		return nil, nil, pkgerrors.Persistence(err, "intake grape lot with hold")
	}

	s.logHold(ctx, reservation)
	return lot, reservation, nil
}

func (s *Service) newHold(input HoldInput) (*models.Reservation, error) {
	if !input.Gallons.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gallons must be greater than zero")
	}
	if !models.FitsGallonsScale(input.Gallons) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, scaleMessage("gallons"))
	}
	now := s.now().UTC()
	if input.ExpiresAt != nil && !input.ExpiresAt.After(now) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "expires_at must be in the future")
	}

	ttl := s.holdTTL
	if input.NoExpiry {
		ttl = 0
	}
	return &models.Reservation{
		GrapeLotID:      input.GrapeLotID,
		BottlingRunID:   input.BottlingRunID,
		GallonsReserved: input.Gallons,
		Status:          enums.ReservationActive,
		Note:            trimmedPtr(input.Note),
		ExpiresAt:       s.expiry(input.ExpiresAt, ttl, now),
	}, nil
}

// holdTx moves the reservation's gallons to reserved, stores it and emits
// reservation_placed.
func (s *Service) holdTx(ctx context.Context, tx *gorm.DB, reservation *models.Reservation) error {
	if err := s.ledger.Reserve(ctx, tx, reservation.GrapeLotID, reservation.GallonsReserved); err != nil {
		return err
	}
	if err := s.repo.WithTx(tx).CreateReservation(ctx, reservation); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert reservation")
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventReservationPlaced,
		AggregateType: enums.AggregateReservation,
		AggregateID:   reservation.ID,
		Data:          reservationEvent(*reservation),
	})
}

func (s *Service) logHold(ctx context.Context, reservation *models.Reservation) {
	s.metrics.AddReserved(reservation.GallonsReserved.InexactFloat64())
	logCtx := s.logg.WithFields(s.logg.WithLotID(ctx, reservation.GrapeLotID.String()), map[string]any{
		"reservation_id": reservation.ID.String(),
		"gallons":        reservation.GallonsReserved.String(),
	})
	s.logg.Info(logCtx, "hold placed")
}

// ReleaseReservation returns an active reservation's gallons to available.
func (s *Service) ReleaseReservation(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error) {
	var reservation *models.Reservation
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		reservation, err = s.loadReservation(ctx, repo, reservationID)
		if err != nil {
			return err
		}
		if reservation.Status != enums.ReservationActive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation is not active").
				WithDetails(map[string]any{"status": reservation.Status})
		}
		return s.closeReservation(ctx, tx, repo, reservation, enums.ReservationReleased)
	})
	if err != nil {
		return nil, pkgerrors.Persistence(err, "release reservation")
	}
	s.metrics.AddReleased(string(enums.ReservationReleased), reservation.GallonsReserved.InexactFloat64())
	s.logg.Info(s.logg.WithLotID(ctx, reservation.GrapeLotID.String()), "reservation released")
	return reservation, nil
}

// ExpireReservations releases active reservations whose expiry has passed.
// Each one commits on its own so a single failure does not hold back the rest.
func (s *Service) ExpireReservations(ctx context.Context, now time.Time, limit int) (ExpirySummary, error) {
	ids, err := s.repo.ExpiredReservationIDs(ctx, now.UTC(), limit)
	if err != nil {
		return ExpirySummary{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired reservations")
	}

	summary := ExpirySummary{Scanned: len(ids)}
	var errs error
	var touched []uuid.UUID
	seen := make(map[uuid.UUID]struct{})
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}
		var gallons decimal.Decimal
		var lotID uuid.UUID
		err := s.tx.WithTx(ctx, func(ctx context.Context, tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			reservation, err := s.loadReservation(ctx, repo, id)
			if err != nil {
				return err
			}
			gallons = reservation.GallonsReserved
			lotID = reservation.GrapeLotID
			return s.closeReservation(ctx, tx, repo, reservation, enums.ReservationExpired)
		})
		if err != nil {
			// someone else closed it between the scan and our update
			if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
				continue
			}
			summary.Failed++
			errs = multierr.Append(errs, fmt.Errorf("expire reservation %s: %w", id, err))
			continue
		}
		summary.Expired++
		s.metrics.AddReleased(string(enums.ReservationExpired), gallons.InexactFloat64())
		if _, ok := seen[lotID]; !ok {
			seen[lotID] = struct{}{}
			touched = append(touched, lotID)
		}
	}

	for _, lotID := range touched {
		if ctx.Err() != nil {
			break
		}
		if err := s.VerifyLotBacking(ctx, lotID); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeInvariantViolation) {
				summary.Unbacked++
			}
			errs = multierr.Append(errs, fmt.Errorf("verify lot %s: %w", lotID, err))
		}
	}
	return summary, errs
}

// VerifyLotBacking checks that the lot's reserved balance equals the sum of its
// active reservations. A mismatch is logged and returned as an invariant violation.
func (s *Service) VerifyLotBacking(ctx context.Context, lotID uuid.UUID) error {
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		reserved, err := repo.LockLotReserved(ctx, lotID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "grape lot not found").
					WithDetails(map[string]any{"lot_id": lotID})
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load lot reserved balance")
		}
		held, err := repo.SumActiveForLot(ctx, lotID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum active reservations")
		}
		if held.Equal(reserved) {
			return nil
		}
		violation := pkgerrors.New(pkgerrors.CodeInvariantViolation,
			fmt.Sprintf("lot reserves %s gallons but active reservations hold %s", reserved.String(), held.String())).
			WithDetails(map[string]any{
				"lot_id":           lotID,
				"gallons_reserved": reserved,
				"gallons_held":     held,
			})
		s.logg.Error(s.logg.WithLotID(ctx, lotID.String()), "reservation backing mismatch", violation)
		return violation
	})
	return pkgerrors.Persistence(err, "verify lot backing")
}

func (s *Service) GetBottlingRun(ctx context.Context, runID uuid.UUID) (*models.BottlingRun, error) {
	return s.loadRun(ctx, s.repo, runID)
}

func (s *Service) ListBottlingRuns(ctx context.Context, filter RunFilter) ([]models.BottlingRun, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid bottling run status")
	}
	runs, err := s.repo.ListRuns(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bottling runs")
	}
	return runs, nil
}

func (s *Service) ListReservationsForLot(ctx context.Context, lotID uuid.UUID) ([]models.Reservation, error) {
	rows, err := s.repo.ReservationsForLot(ctx, lotID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reservations")
	}
	return rows, nil
}

func (s *Service) GetReservation(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	return s.loadReservation(ctx, s.repo, id)
}

func (s *Service) loadRun(ctx context.Context, repo Repository, id uuid.UUID) (*models.BottlingRun, error) {
	run, err := repo.FindRun(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bottling run not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bottling run")
	}
	return run, nil
}

func (s *Service) loadReservation(ctx context.Context, repo Repository, id uuid.UUID) (*models.Reservation, error) {
	reservation, err := repo.FindReservation(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation")
	}
	return reservation, nil
}

func (s *Service) expiry(explicit *time.Time, ttl time.Duration, now time.Time) *time.Time {
	if explicit != nil && !explicit.IsZero() {
		return utcPtr(explicit)
	}
	if ttl <= 0 {
		return nil
	}
	at := now.Add(ttl)
	return &at
}

func reservationEvent(r models.Reservation) payloads.ReservationEvent {
	return payloads.ReservationEvent{
		ReservationID:   r.ID,
		GrapeLotID:      r.GrapeLotID,
		BottlingRunID:   r.BottlingRunID,
		GallonsReserved: r.GallonsReserved,
		Status:          r.Status,
		ExpiresAt:       r.ExpiresAt,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.UTC()
	return &v
}

func trimmedPtr(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
