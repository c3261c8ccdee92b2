package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BlendLot records what was allocated from one grape lot into one run. The
// descriptive columns are a snapshot taken at allocation time.
type BlendLot struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	BottlingRunID     uuid.UUID       `gorm:"column:bottling_run_id;type:uuid;not null;index"`
	GrapeLotID        uuid.UUID       `gorm:"column:grape_lot_id;type:uuid;not null;index"`
	GallonsAllocated  decimal.Decimal `gorm:"column:gallons_allocated;type:numeric(14,4);not null"`
	PercentageOfBlend decimal.Decimal `gorm:"column:percentage_of_blend;type:numeric(7,4);not null"`
	LotCode           *string         `gorm:"column:lot_code"`
	Varietal          *string         `gorm:"column:varietal"`
	Vintage           *int            `gorm:"column:vintage"`
	Appellation       *string         `gorm:"column:appellation"`
	Vineyard          *string         `gorm:"column:vineyard"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (BlendLot) TableName() string { return "blend_lots" }
