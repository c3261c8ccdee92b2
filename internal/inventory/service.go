package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/jasoncmcclain/mcpmp-api/pkg/db"
	"github.com/jasoncmcclain/mcpmp-api/pkg/db/models"
	"github.com/jasoncmcclain/mcpmp-api/pkg/enums"
	pkgerrors "github.com/jasoncmcclain/mcpmp-api/pkg/errors"
	"github.com/jasoncmcclain/mcpmp-api/pkg/logger"
	"github.com/jasoncmcclain/mcpmp-api/pkg/outbox"
	"github.com/jasoncmcclain/mcpmp-api/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Ledger is the balance authority other packages depend on. Mutations take the
// caller's transaction so they commit with the rest of the caller's unit of work.
type Ledger interface {
	AvailableLots(ctx context.Context, filter Filter) ([]models.GrapeLot, error)
	Reserve(ctx context.Context, tx *gorm.DB, lotID uuid.UUID, gallons decimal.Decimal) error
	Release(ctx context.Context, tx *gorm.DB, lotID uuid.UUID, gallons decimal.Decimal) error
	Consume(ctx context.Context, tx *gorm.DB, lotID uuid.UUID, gallons decimal.Decimal) error
	IntakeTx(ctx context.Context, tx *gorm.DB, input IntakeInput) (*models.GrapeLot, error)
}

type Service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
}

func NewService(repo Repository, tx txRunner, outbox outboxPublisher, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{repo: repo, tx: tx, outbox: outbox, logg: logg}, nil
}

// AvailableLots returns lots with gallons available that satisfy filter,
// oldest vintage first, then earliest intake.
func (s *Service) AvailableLots(ctx context.Context, filter Filter) ([]models.GrapeLot, error) {
	filter = filter.normalized()
	if !filter.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid lot status").
			WithDetails(map[string]any{"status": filter.Status})
	}
	lots, err := s.repo.Search(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "search grape lots")
	}
	return lots, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.GrapeLot, error) {
	lot, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "grape lot not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load grape lot")
	}
	return lot, nil
}

func (s *Service) GetByCode(ctx context.Context, lotCode string) (*models.GrapeLot, error) {
	lot, err := s.repo.FindByCode(ctx, strings.TrimSpace(lotCode))
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "grape lot not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load grape lot")
	}
	return lot, nil
}

// Reserve holds gallons against a lot inside tx. It fails with
// INSUFFICIENT_INVENTORY without touching the lot when not enough is available.
func (s *Service) Reserve(ctx context.Context, tx *gorm.DB, lotID uuid.UUID, gallons decimal.Decimal) error {
	if !gallons.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "gallons to reserve must be positive")
	}
	repo := s.repo.WithTx(tx)
	rows, err := repo.Reserve(ctx, lotID, gallons)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve grape lot")
	}
	if rows > 0 {
		return nil
	}

	lot, err := repo.FindByID(ctx, lotID)
	if err != nil {
		if isNotFound(err) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "grape lot not found").
				WithDetails(map[string]any{"lot_id": lotID})
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load grape lot")
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientInventory,
		fmt.Sprintf("lot %s has %s gallons available, %s requested", lot.LotCode, lot.GallonsAvailable.String(), gallons.String())).
		WithDetails(map[string]any{
			"lot_id":            lot.ID,
			"lot_code":          lot.LotCode,
			"requested_gallons": gallons,
			"available_gallons": lot.GallonsAvailable,
		})
}

// Release returns reserved gallons to the available pool. Releasing more than
// is reserved is an invariant violation, never clamped.
func (s *Service) Release(ctx context.Context, tx *gorm.DB, lotID uuid.UUID, gallons decimal.Decimal) error {
	return s.drawDown(ctx, tx, lotID, gallons, "release", s.repo.WithTx(tx).Release)
}

// Consume removes gallons that were reserved for a run that has now been bottled.
func (s *Service) Consume(ctx context.Context, tx *gorm.DB, lotID uuid.UUID, gallons decimal.Decimal) error {
	return s.drawDown(ctx, tx, lotID, gallons, "consume", s.repo.WithTx(tx).Consume)
}

func (s *Service) drawDown(
	ctx context.Context,
	tx *gorm.DB,
	lotID uuid.UUID,
	gallons decimal.Decimal,
	op string,
	apply func(context.Context, uuid.UUID, decimal.Decimal) (int64, error),
) error {
	if !gallons.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("gallons to %s must be positive", op))
	}
	rows, err := apply(ctx, lotID, gallons)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op+" grape lot")
	}
	if rows > 0 {
		return nil
	}

	lot, err := s.repo.WithTx(tx).FindByID(ctx, lotID)
	if err != nil {
		if isNotFound(err) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "grape lot not found").
				WithDetails(map[string]any{"lot_id": lotID})
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load grape lot")
	}
	violation := pkgerrors.New(pkgerrors.CodeInvariantViolation,
		fmt.Sprintf("%s of %s gallons would drive lot %s reserved balance below zero", op, gallons.String(), lot.LotCode)).
		WithDetails(map[string]any{
			"lot_id":           lot.ID,
			"lot_code":         lot.LotCode,
			"gallons":          gallons,
			"gallons_reserved": lot.GallonsReserved,
		})
	s.logg.Error(s.logg.WithLotID(ctx, lot.ID.String()), "inventory invariant violation", violation)
	return violation
}

// Intake records a newly received lot with its full volume available.
func (s *Service) Intake(ctx context.Context, input IntakeInput) (*models.GrapeLot, error) {
	var lot *models.GrapeLot
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx *gorm.DB) error {
		var err error
		lot, err = s.IntakeTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, pkgerrors.Persistence(err, "intake grape lot")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"grape_lot_id":  lot.ID.String(),
		"lot_code":      lot.LotCode,
		"gallons_total": lot.GallonsTotal.String(),
	})
	s.logg.Info(logCtx, "grape lot received")
	return lot, nil
}

// IntakeTx inserts the lot and its grape_lot_received event on tx. Callers that
// need more work in the same unit, such as a standing hold, use it directly.
func (s *Service) IntakeTx(ctx context.Context, tx *gorm.DB, input IntakeInput) (*models.GrapeLot, error) {
	lot, err := buildLot(input)
	if err != nil {
		return nil, err
	}
	if err := s.repo.WithTx(tx).Create(ctx, lot); err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "lot code already exists").
				WithDetails(map[string]any{"lot_code": lot.LotCode})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert grape lot")
	}
	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventGrapeLotReceived,
		AggregateType: enums.AggregateGrapeLot,
		AggregateID:   lot.ID,
		Data: payloads.GrapeLotReceivedEvent{
			GrapeLotID:   lot.ID,
			LotCode:      lot.LotCode,
			Varietal:     lot.Varietal,
			Vintage:      lot.Vintage,
			GallonsTotal: lot.GallonsTotal,
		},
	})
	if err != nil {
		return nil, err
	}
	return lot, nil
}

func buildLot(input IntakeInput) (*models.GrapeLot, error) {
	lotCode := strings.TrimSpace(input.LotCode)
	varietal := strings.TrimSpace(input.Varietal)
	switch {
	case lotCode == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lot_code is required")
	case varietal == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "varietal is required")
	case input.Vintage <= 0:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vintage must be a positive year")
	case input.GallonsTotal.IsNegative():
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gallons_total must not be negative")
	case !models.FitsGallonsScale(input.GallonsTotal):
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("gallons_total must have at most %d decimal places", models.GallonsScale))
	}

	status := input.Status
	if status == "" {
		status = enums.LotStatusAvailable
	}
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid lot status").
			WithDetails(map[string]any{"status": status})
	}
	if input.GallonsTotal.IsZero() {
		status = enums.LotStatusDepleted
	}

	receivedAt := time.Now().UTC()
	if input.ReceivedAt != nil && !input.ReceivedAt.IsZero() {
		receivedAt = input.ReceivedAt.UTC()
	}

	p := input.Provenance
	return &models.GrapeLot{
		ID:                 uuid.New(),
		LotCode:            lotCode,
		Varietal:           varietal,
		Appellation:        blankToNil(input.Appellation),
		Vineyard:           blankToNil(input.Vineyard),
		Vintage:            input.Vintage,
		GallonsTotal:       input.GallonsTotal,
		GallonsReserved:    decimal.Zero,
		GallonsAvailable:   input.GallonsTotal,
		Status:             status,
		Bond:               blankToNil(p.Bond),
		TankLocation:       blankToNil(p.TankLocation),
		AlcoholByVolume:    p.AlcoholByVolume,
		PH:                 p.PH,
		TA:                 p.TA,
		InnovintLotID:      blankToNil(p.InnovintLotID),
		InnovintVendorID:   blankToNil(p.InnovintVendorID),
		InnovintVineyardID: blankToNil(p.InnovintVineyardID),
		ExternalID:         blankToNil(p.ExternalID),
		ReceivedAt:         receivedAt,
	}, nil
}
