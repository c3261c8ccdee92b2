package blends

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jasoncmcclain/mcpmp-api/pkg/db/models"
)

// Repository manages persistence for core blends.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, blend *models.CoreBlend) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.CoreBlend, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.CoreBlend, error)
	ListActive(ctx context.Context) ([]models.CoreBlend, error)
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

func (r *repository) Create(ctx context.Context, blend *models.CoreBlend) error {
	return r.db.WithContext(ctx).Create(blend).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CoreBlend, error) {
	var blend models.CoreBlend
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&blend).Error; err != nil {
		return nil, err
	}
	return &blend, nil
}

func (r *repository) FindByExternalID(ctx context.Context, externalID string) (*models.CoreBlend, error) {
	var blend models.CoreBlend
	if err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&blend).Error; err != nil {
		return nil, err
	}
	return &blend, nil
}

func (r *repository) ListActive(ctx context.Context) ([]models.CoreBlend, error) {
	var blends []models.CoreBlend
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("name ASC").
		Find(&blends).Error; err != nil {
		return nil, err
	}
	return blends, nil
}
