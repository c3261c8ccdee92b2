package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jasoncmcclain/mcpmp-api/pkg/enums"
)

// BottlingRun is a planned or executed bottling event. It owns its blend lots.
type BottlingRun struct {
	ID                 uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	RunName            string                  `gorm:"column:run_name;not null"`
	CoreBlendID        *uuid.UUID              `gorm:"column:core_blend_id;type:uuid"`
	PlannedCases       int                     `gorm:"column:planned_cases;not null"`
	PlannedGallons     decimal.Decimal         `gorm:"column:planned_gallons;type:numeric(14,4);not null"`
	BottleSize         string                  `gorm:"column:bottle_size;not null"`
	TargetBottlingDate *time.Time              `gorm:"column:target_bottling_date"`
	ActualBottlingDate *time.Time              `gorm:"column:actual_bottling_date"`
	Status             enums.BottlingRunStatus `gorm:"column:status;type:text;not null"`
	TTBCompliant       *bool                   `gorm:"column:ttb_compliant"`
	TTBNotes           *string                 `gorm:"column:ttb_notes"`
	CreatedAt          time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time               `gorm:"column:updated_at;autoUpdateTime"`

	BlendLots []BlendLot `gorm:"foreignKey:BottlingRunID;constraint:OnDelete:CASCADE"`
}

func (BottlingRun) TableName() string { return "bottling_runs" }
