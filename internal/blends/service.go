package blends

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/jasoncmcclain/mcpmp-api/pkg/db/models"
	pkgerrors "github.com/jasoncmcclain/mcpmp-api/pkg/errors"
)

// DefaultBottleSize applies when a blend does not name one.
const DefaultBottleSize = "750ml"

var (
	hundred          = decimal.NewFromInt(100)
	profileTolerance = decimal.RequireFromString("0.01")
)

// CreateInput describes a new core blend.
type CreateInput struct {
	Name               string
	Bond               *string
	WineType           *string
	ProductCategory    *string
	CoreAppellation    *string
	Vintage            *int
	DefaultBottleSize  string
	CompositionProfile []models.CompositionComponent
	IsActive           bool
	ExternalID         *string
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("blend repository required")
	}
	return &Service{repo: repo}, nil
}

func (s *Service) ListActive(ctx context.Context) ([]models.CoreBlend, error) {
	blends, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list core blends")
	}
	return blends, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.CoreBlend, error) {
	blend, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "core blend not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load core blend")
	}
	return blend, nil
}

// GetByExternalID returns nil without error when no blend carries the id.
func (s *Service) GetByExternalID(ctx context.Context, externalID string) (*models.CoreBlend, error) {
	blend, err := s.repo.FindByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load core blend")
	}
	return blend, nil
}

func (s *Service) Create(ctx context.Context, input CreateInput) (*models.CoreBlend, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if err := ValidateProfile(input.CompositionProfile); err != nil {
		return nil, err
	}
	size := strings.TrimSpace(input.DefaultBottleSize)
	if size == "" {
		size = DefaultBottleSize
	}
	blend := &models.CoreBlend{
		ID:                 uuid.New(),
		Name:               name,
		Bond:               input.Bond,
		WineType:           input.WineType,
		ProductCategory:    input.ProductCategory,
		CoreAppellation:    input.CoreAppellation,
		Vintage:            input.Vintage,
		DefaultBottleSize:  size,
		CompositionProfile: input.CompositionProfile,
		IsActive:           input.IsActive,
		ExternalID:         input.ExternalID,
	}
	if err := s.repo.Create(ctx, blend); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert core blend")
	}
	return blend, nil
}

// ValidateProfile requires at least one component, a varietal and a share in
// (0, 100] on each, and shares summing to 100 within 0.01.
func ValidateProfile(profile []models.CompositionComponent) error {
	if len(profile) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "composition_profile must contain at least one component")
	}
	sum := decimal.Zero
	for i, c := range profile {
		if strings.TrimSpace(c.Varietal) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "component varietal is required").
				WithDetails(map[string]any{"component": i})
		}
		if !c.Percentage.IsPositive() || c.Percentage.GreaterThan(hundred) {
			return pkgerrors.New(pkgerrors.CodeValidation, "component percentage must be greater than 0 and at most 100").
				WithDetails(map[string]any{"component": i})
		}
		sum = sum.Add(c.Percentage)
	}
	if sum.Sub(hundred).Abs().GreaterThan(profileTolerance) {
		return pkgerrors.New(pkgerrors.CodeValidation, "composition percentages must sum to 100").
			WithDetails(map[string]any{"sum": sum})
	}
	return nil
}
