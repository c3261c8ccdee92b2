package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CompositionComponent is one entry of a core blend's composition profile.
type CompositionComponent struct {
	Varietal    string          `json:"varietal"`
	Appellation *string         `json:"appellation,omitempty"`
	Vineyard    *string         `json:"vineyard,omitempty"`
	Percentage  decimal.Decimal `json:"percentage"`
}

// CoreBlend is a named wine product with its target composition.
type CoreBlend struct {
	ID                 uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	Name               string                 `gorm:"column:name;not null"`
	Bond               *string                `gorm:"column:bond"`
	WineType           *string                `gorm:"column:wine_type"`
	ProductCategory    *string                `gorm:"column:product_category"`
	CoreAppellation    *string                `gorm:"column:core_appellation"`
	Vintage            *int                   `gorm:"column:vintage"`
	DefaultBottleSize  string                 `gorm:"column:default_bottle_size;not null;default:'750ml'"`
	CompositionProfile []CompositionComponent `gorm:"column:composition_profile;serializer:json;type:jsonb"`
	IsActive           bool                   `gorm:"column:is_active;not null"`
	ExternalID         *string                `gorm:"column:external_id"`
	CreatedAt          time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (CoreBlend) TableName() string { return "core_blends" }
