package allocation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jasoncmcclain/mcpmp-api/pkg/db/models"
	"github.com/jasoncmcclain/mcpmp-api/pkg/enums"
)

// Repository persists bottling runs, blend lots and reservations. It never
// writes grape lot balances.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateRun(ctx context.Context, run *models.BottlingRun) error
	FindRun(ctx context.Context, id uuid.UUID) (*models.BottlingRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]models.BottlingRun, error)
	TransitionRun(ctx context.Context, id uuid.UUID, from, to enums.BottlingRunStatus, fields map[string]any) (int64, error)
	CreateBlendLot(ctx context.Context, lot *models.BlendLot) error
	CreateReservation(ctx context.Context, reservation *models.Reservation) error
	FindReservation(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	ActiveReservationsForRun(ctx context.Context, runID uuid.UUID) ([]models.Reservation, error)
	ReservationsForLot(ctx context.Context, lotID uuid.UUID) ([]models.Reservation, error)
	SumActiveForLot(ctx context.Context, lotID uuid.UUID) (decimal.Decimal, error)
	LockLotReserved(ctx context.Context, lotID uuid.UUID) (decimal.Decimal, error)
	CloseReservation(ctx context.Context, id uuid.UUID, status enums.ReservationStatus, closedAt time.Time) (int64, error)
	ExpiredReservationIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateRun(ctx context.Context, run *models.BottlingRun) error {
	return r.db.WithContext(ctx).Omit("BlendLots").Create(run).Error
}

func (r *repository) FindRun(ctx context.Context, id uuid.UUID) (*models.BottlingRun, error) {
	var run models.BottlingRun
	err := r.db.WithContext(ctx).
		Preload("BlendLots", func(db *gorm.DB) *gorm.DB {
			return db.Order("percentage_of_blend DESC").Order("created_at ASC")
		}).
		Where("id = ?", id).
		First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *repository) ListRuns(ctx context.Context, filter RunFilter) ([]models.BottlingRun, error) {
	query := r.db.WithContext(ctx).Model(&models.BottlingRun{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var runs []models.BottlingRun
	if err := query.Order("created_at DESC").Order("id ASC").Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// TransitionRun moves a run from one status to another only if it is still in
// from, so two racing transitions cannot both apply.
func (r *repository) TransitionRun(ctx context.Context, id uuid.UUID, from, to enums.BottlingRunStatus, fields map[string]any) (int64, error) {
	updates := map[string]any{"status": to, "updated_at": time.Now().UTC()}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).Model(&models.BottlingRun{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) CreateBlendLot(ctx context.Context, lot *models.BlendLot) error {
	return r.db.WithContext(ctx).Create(lot).Error
}

func (r *repository) CreateReservation(ctx context.Context, reservation *models.Reservation) error {
	return r.db.WithContext(ctx).Create(reservation).Error
}

func (r *repository) FindReservation(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&reservation).Error; err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *repository) ActiveReservationsForRun(ctx context.Context, runID uuid.UUID) ([]models.Reservation, error) {
	var rows []models.Reservation
	err := r.db.WithContext(ctx).
		Where("bottling_run_id = ? AND status = ?", runID, enums.ReservationActive).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ReservationsForLot(ctx context.Context, lotID uuid.UUID) ([]models.Reservation, error) {
	var rows []models.Reservation
	err := r.db.WithContext(ctx).
		Where("grape_lot_id = ?", lotID).
		Order("created_at DESC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// LockLotReserved reads the lot's reserved balance under a share lock so no
// reserve or release can land until the caller's transaction ends.
func (r *repository) LockLotReserved(ctx context.Context, lotID uuid.UUID) (decimal.Decimal, error) {
	var lot models.GrapeLot
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "SHARE"}).
		Select("id", "gallons_reserved").
		First(&lot, "id = ?", lotID).Error
	if err != nil {
		return decimal.Zero, err
	}
	return lot.GallonsReserved, nil
}

func (r *repository) SumActiveForLot(ctx context.Context, lotID uuid.UUID) (decimal.Decimal, error) {
	var rows []models.Reservation
	if err := r.db.WithContext(ctx).
		Select("gallons_reserved").
		Where("grape_lot_id = ? AND status = ?", lotID, enums.ReservationActive).
		Find(&rows).Error; err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, row := range rows {
		sum = sum.Add(row.GallonsReserved)
	}
	return sum, nil
}

// CloseReservation ends an Active reservation. Zero rows means another caller
// already closed it.
func (r *repository) CloseReservation(ctx context.Context, id uuid.UUID, status enums.ReservationStatus, closedAt time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, enums.ReservationActive).
		Updates(map[string]any{"status": status, "closed_at": closedAt})
	return res.RowsAffected, res.Error
}

func (r *repository) ExpiredReservationIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := r.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", enums.ReservationActive, now).
		Order("expires_at ASC").
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
