package allocation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/jasoncmcclain/mcpmp-api/internal/inventory"
	dbpkg "github.com/jasoncmcclain/mcpmp-api/pkg/db"
	"github.com/jasoncmcclain/mcpmp-api/pkg/db/models"
	"github.com/jasoncmcclain/mcpmp-api/pkg/enums"
	pkgerrors "github.com/jasoncmcclain/mcpmp-api/pkg/errors"
	"github.com/jasoncmcclain/mcpmp-api/pkg/metrics"
	"github.com/jasoncmcclain/mcpmp-api/pkg/outbox"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db      *gorm.DB
	svc     *Service
	metrics *recordingMetrics
}

type recordingMetrics struct {
	outcomes map[string]int
	reserved float64
	released map[string]float64
}

func (r *recordingMetrics) ObserveAllocation(outcome string) { r.outcomes[outcome]++ }
func (r *recordingMetrics) AddReserved(gallons float64)      { r.reserved += gallons }
func (r *recordingMetrics) AddReleased(status string, gallons float64) {
	r.released[status] += gallons
}

func newFixture(t *testing.T, opts ...func(*Params)) *fixture {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:allocation_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(models.All()...))

	client := dbpkg.NewFromConn(conn, 0)
	events := outbox.NewService(outbox.NewRepository(conn), nil)
	ledger, err := inventory.NewService(inventory.NewRepository(conn), client, events, nil)
	require.NoError(t, err)

	m := &recordingMetrics{outcomes: map[string]int{}, released: map[string]float64{}}
	params := Params{
		Repo:    NewRepository(conn),
		Ledger:  ledger,
		Tx:      client,
		Outbox:  events,
		Metrics: m,
		Now:     func() time.Time { return testNow },
	}
	for _, opt := range opts {
		opt(&params)
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	return &fixture{db: conn, svc: svc, metrics: m}
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func (f *fixture) seedLot(t *testing.T, code string, vintage int, total string) models.GrapeLot {
	t.Helper()
	lot := models.GrapeLot{
		LotCode:          code,
		Varietal:         "Cabernet Sauvignon",
		Vintage:          vintage,
		GallonsTotal:     d(total),
		GallonsAvailable: d(total),
		Status:           enums.LotStatusAvailable,
		ReceivedAt:       testNow.Add(-24 * time.Hour),
	}
	require.NoError(t, f.db.Create(&lot).Error)
	return lot
}

func (f *fixture) lot(t *testing.T, id uuid.UUID) models.GrapeLot {
	t.Helper()
	var lot models.GrapeLot
	require.NoError(t, f.db.First(&lot, "id = ?", id).Error)
	return lot
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

// assertLedger checks the balance equation and that active reservations add
// up to the reserved column.
func (f *fixture) assertLedger(t *testing.T, id uuid.UUID, reserved, available string) {
	t.Helper()
	lot := f.lot(t, id)
	assert.True(t, lot.GallonsReserved.Equal(d(reserved)), "reserved: want %s got %s", reserved, lot.GallonsReserved)
	assert.True(t, lot.GallonsAvailable.Equal(d(available)), "available: want %s got %s", available, lot.GallonsAvailable)
	assert.True(t, lot.GallonsAvailable.Add(lot.GallonsReserved).Equal(lot.GallonsTotal))

	assert.NoError(t, f.svc.VerifyLotBacking(context.Background(), id))
}

func assignment(lot models.GrapeLot, gallons, pct string) LotAssignment {
	return LotAssignment{
		GrapeLotID:        lot.ID,
		GallonsAllocated:  d(gallons),
		PercentageOfBlend: d(pct),
		Snapshot: LotSnapshot{
			LotCode:  strPtr(lot.LotCode),
			Varietal: strPtr(lot.Varietal),
			Vintage:  intPtr(lot.Vintage),
		},
	}
}

func TestPlannedGallonsUsesBottleTable(t *testing.T) {
	assert.True(t, PlannedGallons(100, "750ml").Equal(d("237.753")))
	assert.True(t, PlannedGallons(10, "375ML").Equal(d("11.88765")))
	assert.True(t, PlannedGallons(2, "1.5 L").Equal(d("4.75506")))

	perCase, known := GallonsPerCase("3l")
	assert.False(t, known)
	assert.True(t, perCase.Equal(d("2.37753")))
	assert.Equal(t, "750ml", NormalizeBottleSize("  "))
}

func TestCreateBottlingRunCommitsEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cab := f.seedLot(t, "CS-22-01", 2022, "1000")
	mer := f.seedLot(t, "ME-22-04", 2022, "400")

	runID, err := f.svc.CreateBottlingRun(ctx, CreateRunInput{
		RunName:      "Estate Red 2022",
		PlannedCases: 100,
		Lots: []LotAssignment{
			assignment(cab, "200", "84.1"),
			assignment(mer, "37.753", "15.9"),
		},
	})
	require.NoError(t, err)

	run, err := f.svc.GetBottlingRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, enums.BottlingRunPlanning, run.Status)
	assert.Equal(t, "750ml", run.BottleSize)
	assert.True(t, run.PlannedGallons.Equal(d("237.753")))
	require.Len(t, run.BlendLots, 2)
	assert.Equal(t, "CS-22-01", *run.BlendLots[0].LotCode)
	assert.Equal(t, 2022, *run.BlendLots[1].Vintage)

	f.assertLedger(t, cab.ID, "200", "800")
	f.assertLedger(t, mer.ID, "37.753", "362.247")

	events, err := outbox.NewRepository(f.db).ListForAggregate(ctx, enums.AggregateBottlingRun, runID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventBottlingRunCreated, events[0].EventType)

	assert.Equal(t, 1, f.metrics.outcomes[metrics.OutcomeCommitted])
	assert.InDelta(t, 237.753, f.metrics.reserved, 1e-9)
}

func TestCreateBottlingRunRollsBackOnInsufficientLot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.seedLot(t, "CS-21-01", 2021, "500")
	second := f.seedLot(t, "CS-21-02", 2021, "50")
	third := f.seedLot(t, "CS-21-03", 2021, "500")

	_, err := f.svc.CreateBottlingRun(ctx, CreateRunInput{
		RunName:      "Reserve Cab",
		PlannedCases: 50,
		Lots: []LotAssignment{
			assignment(first, "100", "50"),
			assignment(second, "60", "30"),
			assignment(third, "40", "20"),
		},
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientInventory, typed.Code())
	details := typed.Details().(map[string]any)
	assert.Equal(t, "CS-21-02", details["lot_code"])

	f.assertLedger(t, first.ID, "0", "500")
	f.assertLedger(t, second.ID, "0", "50")
	f.assertLedger(t, third.ID, "0", "500")
	assert.Zero(t, f.count(t, &models.BottlingRun{}))
	assert.Zero(t, f.count(t, &models.BlendLot{}))
	assert.Zero(t, f.count(t, &models.Reservation{}))
	assert.Zero(t, f.count(t, &models.OutboxEvent{}))

	assert.Equal(t, 1, f.metrics.outcomes[metrics.OutcomeInsufficient])
	assert.Zero(t, f.metrics.reserved)
}

func TestCreateBottlingRunValidatesBeforePersisting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.seedLot(t, "PN-23-01", 2023, "100")

	cases := []CreateRunInput{
		{RunName: " ", PlannedCases: 1, Lots: []LotAssignment{assignment(lot, "1", "100")}},
		{RunName: "x", PlannedCases: 0, Lots: []LotAssignment{assignment(lot, "1", "100")}},
		{RunName: "x", PlannedCases: 1},
		{RunName: "x", PlannedCases: 1, Lots: []LotAssignment{assignment(lot, "0", "100")}},
		{RunName: "x", PlannedCases: 1, Lots: []LotAssignment{assignment(lot, "1", "100.5")}},
		{RunName: "x", PlannedCases: 1, Lots: []LotAssignment{{GallonsAllocated: d("1"), PercentageOfBlend: d("1")}}},
	}
	for i, input := range cases {
		_, err := f.svc.CreateBottlingRun(ctx, input)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "case %d: %v", i, err)
	}
	assert.Zero(t, f.count(t, &models.BottlingRun{}))
	f.assertLedger(t, lot.ID, "0", "100")
}

func TestCreateBottlingRunAppliesReservationTTL(t *testing.T) {
	f := newFixture(t, func(p *Params) { p.ReservationTTL = 48 * time.Hour })
	ctx := context.Background()
	lot := f.seedLot(t, "GR-22-01", 2022, "100")

	_, err := f.svc.CreateBottlingRun(ctx, CreateRunInput{
		RunName: "Rosé", PlannedCases: 10, BottleSize: "375ml",
		Lots: []LotAssignment{assignment(lot, "11.8877", "100")},
	})
	require.NoError(t, err)

	reservations, err := f.svc.ListReservationsForLot(ctx, lot.ID)
	require.NoError(t, err)
	require.Len(t, reservations, 1)
	require.NotNil(t, reservations[0].ExpiresAt)
	assert.True(t, reservations[0].ExpiresAt.Equal(testNow.Add(48*time.Hour)))
}

func TestCancelBottlingRunReleasesReservations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.seedLot(t, "SY-20-01", 2020, "300")

	runID, err := f.svc.CreateBottlingRun(ctx, CreateRunInput{
		RunName: "Syrah", PlannedCases: 10,
		Lots: []LotAssignment{assignment(lot, "23.7753", "100")},
	})
	require.NoError(t, err)

	run, err := f.svc.CancelBottlingRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, enums.BottlingRunCanceled, run.Status)
	f.assertLedger(t, lot.ID, "0", "300")
	assert.InDelta(t, 23.7753, f.metrics.released[string(enums.ReservationReleased)], 1e-9)

	reservations, err := f.svc.ListReservationsForLot(ctx, lot.ID)
	require.NoError(t, err)
	require.Len(t, reservations, 1)
	assert.Equal(t, enums.ReservationReleased, reservations[0].Status)
	require.NotNil(t, reservations[0].ClosedAt)

	_, err = f.svc.CancelBottlingRun(ctx, runID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestScheduleRecordsComplianceAndCompleteConsumes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	young := f.seedLot(t, "CS-22-09", 2022, "500")
	old := f.seedLot(t, "CS-21-09", 2021, "500")

	runID, err := f.svc.CreateBottlingRun(ctx, CreateRunInput{
		RunName: "Cab blend", PlannedCases: 10,
		Lots: []LotAssignment{
			assignment(young, "19", "80"),
			assignment(old, "4.7753", "20"),
		},
	})
	require.NoError(t, err)

	scheduled, err := f.svc.ScheduleBottlingRun(ctx, runID)
	require.NoError(t, err)
	assert.False(t, scheduled.Compliance.Compliant)
	assert.Equal(t, 2022, scheduled.Compliance.PrimaryVintage)
	assert.Equal(t, enums.BottlingRunScheduled, scheduled.Run.Status)
	require.NotNil(t, scheduled.Run.TTBCompliant)
	assert.False(t, *scheduled.Run.TTBCompliant)
	require.NotNil(t, scheduled.Run.TTBNotes)
	assert.Contains(t, *scheduled.Run.TTBNotes, "2021")

	bottledAt := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	completed, err := f.svc.CompleteBottlingRun(ctx, runID, &bottledAt)
	require.NoError(t, err)
	assert.Equal(t, enums.BottlingRunCompleted, completed.Status)
	require.NotNil(t, completed.ActualBottlingDate)
	assert.True(t, completed.ActualBottlingDate.Equal(bottledAt))

	youngLot := f.lot(t, young.ID)
	assert.True(t, youngLot.GallonsTotal.Equal(d("481")))
	f.assertLedger(t, young.ID, "0", "481")
	f.assertLedger(t, old.ID, "0", "495.2247")

	reservations, err := f.svc.ListReservationsForLot(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ReservationFulfilled, reservations[0].Status)
}

func TestScheduleRequiresCompleteBlend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.seedLot(t, "ZN-21-01", 2021, "100")

	partial, err := f.svc.CreateBottlingRun(ctx, CreateRunInput{
		RunName: "Zin", PlannedCases: 1,
		Lots: []LotAssignment{assignment(lot, "2", "90")},
	})
	require.NoError(t, err)
	_, err = f.svc.ScheduleBottlingRun(ctx, partial)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	noVintage := assignment(lot, "2", "100")
	noVintage.Snapshot.Vintage = nil
	unknown, err := f.svc.CreateBottlingRun(ctx, CreateRunInput{RunName: "Zin 2", PlannedCases: 1, Lots: []LotAssignment{noVintage}})
	require.NoError(t, err)
	_, err = f.svc.ScheduleBottlingRun(ctx, unknown)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = f.svc.CompleteBottlingRun(ctx, partial, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "planning run cannot complete")

	_, err = f.svc.ScheduleBottlingRun(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestHoldReleaseAndExpiry(t *testing.T) {
	f := newFixture(t, func(p *Params) { p.HoldTTL = time.Hour })
	ctx := context.Background()
	lot := f.seedLot(t, "CF-22-02", 2022, "200")

	explicit := testNow.Add(10 * time.Minute)
	first, err := f.svc.PlaceHold(ctx, HoldInput{GrapeLotID: lot.ID, Gallons: d("50"), ExpiresAt: &explicit, Note: strPtr(" tasting ")})
	require.NoError(t, err)
	assert.Equal(t, "tasting", *first.Note)
	second, err := f.svc.PlaceHold(ctx, HoldInput{GrapeLotID: lot.ID, Gallons: d("25")})
	require.NoError(t, err)
	require.NotNil(t, second.ExpiresAt)
	assert.True(t, second.ExpiresAt.Equal(testNow.Add(time.Hour)))
	f.assertLedger(t, lot.ID, "75", "125")

	_, err = f.svc.PlaceHold(ctx, HoldInput{GrapeLotID: lot.ID, Gallons: d("126")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientInventory))

	summary, err := f.svc.ExpireReservations(ctx, testNow.Add(30*time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, ExpirySummary{Scanned: 1, Expired: 1}, summary)
	f.assertLedger(t, lot.ID, "25", "175")

	expired, err := f.svc.GetReservation(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ReservationExpired, expired.Status)

	released, err := f.svc.ReleaseReservation(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ReservationReleased, released.Status)
	f.assertLedger(t, lot.ID, "0", "200")

	_, err = f.svc.ReleaseReservation(ctx, second.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	summary, err = f.svc.ExpireReservations(ctx, testNow.Add(48*time.Hour), 10)
	require.NoError(t, err)
	assert.Zero(t, summary.Scanned)
}

func TestExpiryFlagsLotsWhoseReservedBalanceDrifted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.seedLot(t, "PV-21-01", 2021, "100")

	soon := testNow.Add(10 * time.Minute)
	_, err := f.svc.PlaceHold(ctx, HoldInput{GrapeLotID: lot.ID, Gallons: d("30"), ExpiresAt: &soon})
	require.NoError(t, err)
	_, err = f.svc.PlaceHold(ctx, HoldInput{GrapeLotID: lot.ID, Gallons: d("20"), NoExpiry: true})
	require.NoError(t, err)

	// an out-of-band write leaves 10 reserved gallons with no reservation behind them
	require.NoError(t, f.db.Model(&models.GrapeLot{}).Where("id = ?", lot.ID).
		Updates(map[string]any{"gallons_reserved": d("60"), "gallons_available": d("40")}).Error)

	summary, err := f.svc.ExpireReservations(ctx, testNow.Add(30*time.Minute), 10)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvariantViolation))
	assert.Equal(t, ExpirySummary{Scanned: 1, Expired: 1, Unbacked: 1}, summary)

	err = f.svc.VerifyLotBacking(ctx, lot.ID)
	violation := pkgerrors.As(err)
	require.NotNil(t, violation)
	assert.Equal(t, pkgerrors.CodeInvariantViolation, violation.Code())
	assert.Contains(t, violation.Message(), "lot reserves 30 gallons but active reservations hold 20")

	err = f.svc.VerifyLotBacking(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestPlaceHoldRejectsClosedRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.seedLot(t, "ML-23-01", 2023, "100")

	runID, err := f.svc.CreateBottlingRun(ctx, CreateRunInput{
		RunName: "Malbec", PlannedCases: 1,
		Lots: []LotAssignment{assignment(lot, "2.3775", "100")},
	})
	require.NoError(t, err)
	_, err = f.svc.CancelBottlingRun(ctx, runID)
	require.NoError(t, err)

	_, err = f.svc.PlaceHold(ctx, HoldInput{GrapeLotID: lot.ID, BottlingRunID: &runID, Gallons: d("5")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	f.assertLedger(t, lot.ID, "0", "100")
}

func TestIntakeWithHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	input := inventory.IntakeInput{LotCode: "CS-1", Varietal: "Cabernet Sauvignon", Vintage: 2021, GallonsTotal: d("1000")}

	lot, hold, err := f.svc.IntakeWithHold(ctx, input, HoldInput{Gallons: d("200"), NoExpiry: true, Note: strPtr("reserved at import")})
	require.NoError(t, err)
	assert.Equal(t, lot.ID, hold.GrapeLotID)
	assert.Nil(t, hold.ExpiresAt)
	f.assertLedger(t, lot.ID, "200", "800")
	assert.Equal(t, int64(2), f.count(t, &models.OutboxEvent{}))
	assert.InDelta(t, 200, f.metrics.reserved, 1e-9)
}

func TestIntakeWithHoldRollsBackLotWhenHoldFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	input := inventory.IntakeInput{LotCode: "CS-1", Varietal: "Cabernet Sauvignon", Vintage: 2021, GallonsTotal: d("100")}

	_, _, err := f.svc.IntakeWithHold(ctx, input, HoldInput{Gallons: d("150"), NoExpiry: true})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientInventory))
	assert.Zero(t, f.count(t, &models.GrapeLot{}))
	assert.Zero(t, f.count(t, &models.Reservation{}))
	assert.Zero(t, f.count(t, &models.OutboxEvent{}))

	_, _, err = f.svc.IntakeWithHold(ctx, input, HoldInput{Gallons: d("100"), NoExpiry: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.count(t, &models.GrapeLot{}))
}

func TestGallonsBeyondStoredScaleAreRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.seedLot(t, "ZI-22-01", 2022, "100")

	_, err := f.svc.PlaceHold(ctx, HoldInput{GrapeLotID: lot.ID, Gallons: d("1.00001")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.CreateBottlingRun(ctx, CreateRunInput{
		RunName: "Zin", PlannedCases: 1,
		Lots: []LotAssignment{assignment(lot, "2.377531", "100")},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	f.assertLedger(t, lot.ID, "0", "100")

	_, err = f.svc.PlaceHold(ctx, HoldInput{GrapeLotID: lot.ID, Gallons: d("1.2500")})
	require.NoError(t, err)
}

func TestListBottlingRunsFiltersByStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.seedLot(t, "TE-22-01", 2022, "100")

	keep, err := f.svc.CreateBottlingRun(ctx, CreateRunInput{RunName: "A", PlannedCases: 1, Lots: []LotAssignment{assignment(lot, "1", "100")}})
	require.NoError(t, err)
	drop, err := f.svc.CreateBottlingRun(ctx, CreateRunInput{RunName: "B", PlannedCases: 1, Lots: []LotAssignment{assignment(lot, "1", "100")}})
	require.NoError(t, err)
	_, err = f.svc.CancelBottlingRun(ctx, drop)
	require.NoError(t, err)

	planning := enums.BottlingRunPlanning
	runs, err := f.svc.ListBottlingRuns(ctx, RunFilter{Status: &planning})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, keep, runs[0].ID)

	bogus := enums.BottlingRunStatus("Bottled")
	_, err = f.svc.ListBottlingRuns(ctx, RunFilter{Status: &bogus})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
