package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jasoncmcclain/mcpmp-api/pkg/enums"
)

// Reservation is a hold against a grape lot. BottlingRunID is nil for
// standing holds not yet tied to a run.
type Reservation struct {
	ID              uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	GrapeLotID      uuid.UUID               `gorm:"column:grape_lot_id;type:uuid;not null;index"`
	BottlingRunID   *uuid.UUID              `gorm:"column:bottling_run_id;type:uuid;index"`
	GallonsReserved decimal.Decimal         `gorm:"column:gallons_reserved;type:numeric(14,4);not null"`
	Status          enums.ReservationStatus `gorm:"column:status;type:text;not null"`
	Note            *string                 `gorm:"column:note"`
	CreatedAt       time.Time               `gorm:"column:created_at;autoCreateTime"`
	ExpiresAt       *time.Time              `gorm:"column:expires_at"`
	ClosedAt        *time.Time              `gorm:"column:closed_at"`
}

func (Reservation) TableName() string { return "reservations" }
