package controllers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jasoncmcclain/mcpmp-api/internal/allocation"
	"github.com/jasoncmcclain/mcpmp-api/internal/blends"
	"github.com/jasoncmcclain/mcpmp-api/internal/inventory"
	"github.com/jasoncmcclain/mcpmp-api/internal/matcher"
	"github.com/jasoncmcclain/mcpmp-api/pkg/db/models"
)

// InventoryService is the ledger surface the inventory routes need.
type InventoryService interface {
	AvailableLots(ctx context.Context, filter inventory.Filter) ([]models.GrapeLot, error)
	Get(ctx context.Context, id uuid.UUID) (*models.GrapeLot, error)
	Intake(ctx context.Context, input inventory.IntakeInput) (*models.GrapeLot, error)
}

type BlendService interface {
	ListActive(ctx context.Context) ([]models.CoreBlend, error)
	Get(ctx context.Context, id uuid.UUID) (*models.CoreBlend, error)
}

type MatchService interface {
	Match(ctx context.Context, components []matcher.Component, targetGallons decimal.Decimal) ([]matcher.ComponentMatch, error)
	MatchBlend(ctx context.Context, blend *models.CoreBlend, targetGallons decimal.Decimal) ([]matcher.ComponentMatch, error)
}

// AllocationService covers bottling runs and reservations.
type AllocationService interface {
	CreateBottlingRun(ctx context.Context, input allocation.CreateRunInput) (uuid.UUID, error)
	GetBottlingRun(ctx context.Context, runID uuid.UUID) (*models.BottlingRun, error)
	ListBottlingRuns(ctx context.Context, filter allocation.RunFilter) ([]models.BottlingRun, error)
	ScheduleBottlingRun(ctx context.Context, runID uuid.UUID) (*allocation.ScheduleResult, error)
	CompleteBottlingRun(ctx context.Context, runID uuid.UUID, bottledAt *time.Time) (*models.BottlingRun, error)
	CancelBottlingRun(ctx context.Context, runID uuid.UUID) (*models.BottlingRun, error)
	PlaceHold(ctx context.Context, input allocation.HoldInput) (*models.Reservation, error)
	GetReservation(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error)
	ReleaseReservation(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error)
	ListReservationsForLot(ctx context.Context, lotID uuid.UUID) ([]models.Reservation, error)
}

var (
	_ InventoryService  = (*inventory.Service)(nil)
	_ BlendService      = (*blends.Service)(nil)
	_ MatchService      = (*matcher.Matcher)(nil)
	_ AllocationService = (*allocation.Service)(nil)
)
