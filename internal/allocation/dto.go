package allocation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jasoncmcclain/mcpmp-api/internal/compliance"
	"github.com/jasoncmcclain/mcpmp-api/pkg/db/models"
	"github.com/jasoncmcclain/mcpmp-api/pkg/enums"
)

// LotSnapshot is the descriptive data recorded on a blend lot as supplied by
// the caller. It is stored as given and never re-read from the grape lot.
type LotSnapshot struct {
	LotCode     *string `json:"lot_code,omitempty"`
	Varietal    *string `json:"varietal,omitempty"`
	Vintage     *int    `json:"vintage,omitempty"`
	Appellation *string `json:"appellation,omitempty"`
	Vineyard    *string `json:"vineyard,omitempty"`
}

// LotAssignment commits gallons from one grape lot to the run.
type LotAssignment struct {
	GrapeLotID        uuid.UUID
	GallonsAllocated  decimal.Decimal
	PercentageOfBlend decimal.Decimal
	Snapshot          LotSnapshot
}

// CreateRunInput is everything needed to plan a bottling run and hold its wine.
type CreateRunInput struct {
	RunName              string
	CoreBlendID          *uuid.UUID
	PlannedCases         int
	BottleSize           string
	TargetBottlingDate   *time.Time
	ReservationExpiresAt *time.Time
	Lots                 []LotAssignment
}

// HoldInput places a standing reservation, optionally tied to a run.
// NoExpiry skips the default hold TTL when ExpiresAt is nil.
type HoldInput struct {
	GrapeLotID    uuid.UUID
	BottlingRunID *uuid.UUID
	Gallons       decimal.Decimal
	ExpiresAt     *time.Time
	NoExpiry      bool
	Note          *string
}

// RunFilter narrows bottling run listings.
type RunFilter struct {
	Status *enums.BottlingRunStatus
	Limit  int
}

// ScheduleResult carries the run after scheduling and its compliance evaluation.
type ScheduleResult struct {
	Run        *models.BottlingRun
	Compliance compliance.Result
}

// ExpirySummary reports one sweep of expired reservations.
type ExpirySummary struct {
	Scanned int
	Expired int
	Failed  int
	// Unbacked counts touched lots whose reserved balance no longer equals
	// the sum of their active reservations.
	Unbacked int
}

// BlendLotDTO is the wire shape of a blend lot.
type BlendLotDTO struct {
	ID                uuid.UUID       `json:"id"`
	GrapeLotID        uuid.UUID       `json:"grape_lot_id"`
	GallonsAllocated  decimal.Decimal `json:"gallons_allocated"`
	PercentageOfBlend decimal.Decimal `json:"percentage_of_blend"`
	LotSnapshot
}

// RunDTO is the wire shape of a bottling run with its blend lots.
type RunDTO struct {
	ID                 uuid.UUID               `json:"id"`
	RunName            string                  `json:"run_name"`
	CoreBlendID        *uuid.UUID              `json:"core_blend_id,omitempty"`
	PlannedCases       int                     `json:"planned_cases"`
	PlannedGallons     decimal.Decimal         `json:"planned_gallons"`
	BottleSize         string                  `json:"bottle_size"`
	TargetBottlingDate *time.Time              `json:"target_bottling_date,omitempty"`
	ActualBottlingDate *time.Time              `json:"actual_bottling_date,omitempty"`
	Status             enums.BottlingRunStatus `json:"status"`
	TTBCompliant       *bool                   `json:"ttb_compliant,omitempty"`
	TTBNotes           *string                 `json:"ttb_notes,omitempty"`
	CreatedAt          time.Time               `json:"created_at"`
	Lots               []BlendLotDTO           `json:"lots,omitempty"`
}

// ReservationDTO is the wire shape of a reservation.
type ReservationDTO struct {
	ID              uuid.UUID               `json:"id"`
	GrapeLotID      uuid.UUID               `json:"grape_lot_id"`
	BottlingRunID   *uuid.UUID              `json:"bottling_run_id,omitempty"`
	GallonsReserved decimal.Decimal         `json:"gallons_reserved"`
	Status          enums.ReservationStatus `json:"status"`
	Note            *string                 `json:"note,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
	ExpiresAt       *time.Time              `json:"expires_at,omitempty"`
	ClosedAt        *time.Time              `json:"closed_at,omitempty"`
}

func ToRunDTO(run models.BottlingRun) RunDTO {
	out := RunDTO{
		ID:                 run.ID,
		RunName:            run.RunName,
		CoreBlendID:        run.CoreBlendID,
		PlannedCases:       run.PlannedCases,
		PlannedGallons:     run.PlannedGallons,
		BottleSize:         run.BottleSize,
		TargetBottlingDate: run.TargetBottlingDate,
		ActualBottlingDate: run.ActualBottlingDate,
		Status:             run.Status,
		TTBCompliant:       run.TTBCompliant,
		TTBNotes:           run.TTBNotes,
		CreatedAt:          run.CreatedAt,
	}
	for _, bl := range run.BlendLots {
		out.Lots = append(out.Lots, BlendLotDTO{
			ID:                bl.ID,
			GrapeLotID:        bl.GrapeLotID,
			GallonsAllocated:  bl.GallonsAllocated,
			PercentageOfBlend: bl.PercentageOfBlend,
			LotSnapshot: LotSnapshot{
				LotCode:     bl.LotCode,
				Varietal:    bl.Varietal,
				Vintage:     bl.Vintage,
				Appellation: bl.Appellation,
				Vineyard:    bl.Vineyard,
			},
		})
	}
	return out
}

func ToReservationDTO(r models.Reservation) ReservationDTO {
	return ReservationDTO{
		ID:              r.ID,
		GrapeLotID:      r.GrapeLotID,
		BottlingRunID:   r.BottlingRunID,
		GallonsReserved: r.GallonsReserved,
		Status:          r.Status,
		Note:            r.Note,
		CreatedAt:       r.CreatedAt,
		ExpiresAt:       r.ExpiresAt,
		ClosedAt:        r.ClosedAt,
	}
}
