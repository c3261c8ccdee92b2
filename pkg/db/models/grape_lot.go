package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jasoncmcclain/mcpmp-api/pkg/enums"
)

// GrapeLot is one row of the inventory ledger. Balance columns are only
// written by the inventory package.
type GrapeLot struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	LotCode     string    `gorm:"column:lot_code;not null;uniqueIndex"`
	Varietal    string    `gorm:"column:varietal;not null"`
	Appellation *string   `gorm:"column:appellation"`
	Vineyard    *string   `gorm:"column:vineyard"`
	Vintage     int       `gorm:"column:vintage;not null"`

	GallonsTotal     decimal.Decimal `gorm:"column:gallons_total;type:numeric(14,4);not null;check:gallons_total >= 0"`
	GallonsReserved  decimal.Decimal `gorm:"column:gallons_reserved;type:numeric(14,4);not null;default:0;check:gallons_reserved >= 0"`
	GallonsAvailable decimal.Decimal `gorm:"column:gallons_available;type:numeric(14,4);not null;check:gallons_available >= 0"`

	Status enums.LotStatus `gorm:"column:status;type:text;not null;default:'Available'"`

	Bond               *string          `gorm:"column:bond"`
	TankLocation       *string          `gorm:"column:tank_location"`
	AlcoholByVolume    *decimal.Decimal `gorm:"column:alcohol_by_volume;type:numeric(6,3)"`
	PH                 *decimal.Decimal `gorm:"column:ph;type:numeric(5,3)"`
	TA                 *decimal.Decimal `gorm:"column:ta;type:numeric(6,3)"`
	InnovintLotID      *string          `gorm:"column:innovint_lot_id"`
	InnovintVendorID   *string          `gorm:"column:innovint_vendor_id"`
	InnovintVineyardID *string          `gorm:"column:innovint_vineyard_id"`
	ExternalID         *string          `gorm:"column:external_id"`

	ReceivedAt time.Time `gorm:"column:received_at;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (GrapeLot) TableName() string { return "grape_lots" }
