package blends

import (
	"time"

	"github.com/google/uuid"

	"github.com/jasoncmcclain/mcpmp-api/pkg/db/models"
)

// BlendDTO is the wire shape of a core blend.
type BlendDTO struct {
	ID                 uuid.UUID                     `json:"id"`
	Name               string                        `json:"name"`
	Bond               *string                       `json:"bond,omitempty"`
	WineType           *string                       `json:"wine_type,omitempty"`
	ProductCategory    *string                       `json:"product_category,omitempty"`
	CoreAppellation    *string                       `json:"core_appellation,omitempty"`
	Vintage            *int                          `json:"vintage,omitempty"`
	DefaultBottleSize  string                        `json:"default_bottle_size"`
	CompositionProfile []models.CompositionComponent `json:"composition_profile"`
	IsActive           bool                          `json:"is_active"`
	CreatedAt          time.Time                     `json:"created_at"`
}

func ToDTO(blend models.CoreBlend) BlendDTO {
	profile := blend.CompositionProfile
	if profile == nil {
		profile = []models.CompositionComponent{}
	}
	return BlendDTO{
		ID:                 blend.ID,
		Name:               blend.Name,
		Bond:               blend.Bond,
		WineType:           blend.WineType,
		ProductCategory:    blend.ProductCategory,
		CoreAppellation:    blend.CoreAppellation,
		Vintage:            blend.Vintage,
		DefaultBottleSize:  blend.DefaultBottleSize,
		CompositionProfile: profile,
		IsActive:           blend.IsActive,
		CreatedAt:          blend.CreatedAt,
	}
}
