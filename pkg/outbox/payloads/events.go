package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jasoncmcclain/mcpmp-api/pkg/enums"
)

// AllocationLine is one lot drawn into a bottling run.
type AllocationLine struct {
	GrapeLotID       uuid.UUID       `json:"grape_lot_id"`
	ReservationID    uuid.UUID       `json:"reservation_id"`
	GallonsAllocated decimal.Decimal `json:"gallons_allocated"`
}

// BottlingRunCreatedEvent is emitted once a run and its reservations commit.
type BottlingRunCreatedEvent struct {
	BottlingRunID  uuid.UUID        `json:"bottling_run_id"`
	RunName        string           `json:"run_name"`
	PlannedCases   int              `json:"planned_cases"`
	PlannedGallons decimal.Decimal  `json:"planned_gallons"`
	BottleSize     string           `json:"bottle_size"`
	Lines          []AllocationLine `json:"lines"`
}

// BottlingRunStatusChangedEvent records a run lifecycle transition.
type BottlingRunStatusChangedEvent struct {
	BottlingRunID uuid.UUID               `json:"bottling_run_id"`
	From          enums.BottlingRunStatus `json:"from"`
	To            enums.BottlingRunStatus `json:"to"`
	TTBCompliant  *bool                   `json:"ttb_compliant,omitempty"`
}

// ReservationEvent covers placed, released and expired reservations.
type ReservationEvent struct {
	ReservationID   uuid.UUID               `json:"reservation_id"`
	GrapeLotID      uuid.UUID               `json:"grape_lot_id"`
	BottlingRunID   *uuid.UUID              `json:"bottling_run_id,omitempty"`
	GallonsReserved decimal.Decimal         `json:"gallons_reserved"`
	Status          enums.ReservationStatus `json:"status"`
	ExpiresAt       *time.Time              `json:"expires_at,omitempty"`
}

// GrapeLotReceivedEvent is emitted on lot intake.
type GrapeLotReceivedEvent struct {
	GrapeLotID   uuid.UUID       `json:"grape_lot_id"`
	LotCode      string          `json:"lot_code"`
	Varietal     string          `json:"varietal"`
	Vintage      int             `json:"vintage"`
	GallonsTotal decimal.Decimal `json:"gallons_total"`
}
