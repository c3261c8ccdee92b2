package inventory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/jasoncmcclain/mcpmp-api/pkg/db/models"
	"github.com/jasoncmcclain/mcpmp-api/pkg/enums"
)

// Repository owns every read and balance write against grape_lots.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, lot *models.GrapeLot) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.GrapeLot, error)
	FindByCode(ctx context.Context, lotCode string) (*models.GrapeLot, error)
	Search(ctx context.Context, filter Filter) ([]models.GrapeLot, error)
	Reserve(ctx context.Context, id uuid.UUID, gallons decimal.Decimal) (int64, error)
	Release(ctx context.Context, id uuid.UUID, gallons decimal.Decimal) (int64, error)
	Consume(ctx context.Context, id uuid.UUID, gallons decimal.Decimal) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a grape lot repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, lot *models.GrapeLot) error {
	return r.db.WithContext(ctx).Create(lot).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.GrapeLot, error) {
	var lot models.GrapeLot
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&lot).Error; err != nil {
		return nil, err
	}
	return &lot, nil
}

func (r *repository) FindByCode(ctx context.Context, lotCode string) (*models.GrapeLot, error) {
	var lot models.GrapeLot
	if err := r.db.WithContext(ctx).Where("lot_code = ?", lotCode).First(&lot).Error; err != nil {
		return nil, err
	}
	return &lot, nil
}

func (r *repository) Search(ctx context.Context, filter Filter) ([]models.GrapeLot, error) {
	query := r.db.WithContext(ctx).Model(&models.GrapeLot{}).
		Where("gallons_available > 0").
		Where("status = ?", filter.Status)

	if filter.Varietal != "" {
		query = textClause(query, "varietal", filter.Varietal, filter.Match)
	}
	if filter.Appellation != nil {
		query = textClause(query, "appellation", *filter.Appellation, filter.Match)
	}
	if filter.Vineyard != nil {
		query = textClause(query, "vineyard", *filter.Vineyard, filter.Match)
	}
	if filter.MinGallons.IsPositive() {
		query = query.Where("gallons_available >= ?", filter.MinGallons)
	}

	query = query.Order("vintage ASC").Order("received_at ASC").Order("lot_code ASC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var lots []models.GrapeLot
	if err := query.Find(&lots).Error; err != nil {
		return nil, err
	}
	return lots, nil
}

func textClause(query *gorm.DB, column, value string, match TextMatch) *gorm.DB {
	lowered := strings.ToLower(value)
	if match == MatchPartial {
		return query.Where("LOWER("+column+") LIKE ? ESCAPE '\\'", "%"+escapeLike(lowered)+"%")
	}
	return query.Where("LOWER("+column+") = ?", lowered)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(value string) string {
	return likeEscaper.Replace(value)
}

// Reserve moves gallons from available to reserved only while enough is
// available. The guard lives in the WHERE clause so concurrent callers cannot
// both pass it.
func (r *repository) Reserve(ctx context.Context, id uuid.UUID, gallons decimal.Decimal) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.GrapeLot{}).
		Where("id = ? AND gallons_available >= ?", id, gallons).
		Updates(map[string]any{
			"gallons_reserved":  gorm.Expr("gallons_reserved + ?", gallons),
			"gallons_available": gorm.Expr("gallons_available - ?", gallons),
			"updated_at":        time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) Release(ctx context.Context, id uuid.UUID, gallons decimal.Decimal) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.GrapeLot{}).
		Where("id = ? AND gallons_reserved >= ?", id, gallons).
		Updates(map[string]any{
			"gallons_reserved":  gorm.Expr("gallons_reserved - ?", gallons),
			"gallons_available": gorm.Expr("gallons_available + ?", gallons),
			"updated_at":        time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// Consume removes reserved gallons from the lot entirely, as happens when a
// run is bottled. A lot left with nothing is marked Depleted.
func (r *repository) Consume(ctx context.Context, id uuid.UUID, gallons decimal.Decimal) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.GrapeLot{}).
		Where("id = ? AND gallons_reserved >= ?", id, gallons).
		Updates(map[string]any{
			"gallons_reserved": gorm.Expr("gallons_reserved - ?", gallons),
			"gallons_total":    gorm.Expr("gallons_total - ?", gallons),
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil || res.RowsAffected == 0 {
		return res.RowsAffected, res.Error
	}
	if err := r.db.WithContext(ctx).Model(&models.GrapeLot{}).
		Where("id = ? AND gallons_total <= 0", id).
		Update("status", enums.LotStatusDepleted).Error; err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
