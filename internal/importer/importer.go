// Package importer loads CSV exports of grape lots and core blends. Each row is
// applied on its own; a bad row is counted and reported without stopping the file.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/jasoncmcclain/mcpmp-api/internal/allocation"
	"github.com/jasoncmcclain/mcpmp-api/internal/blends"
	"github.com/jasoncmcclain/mcpmp-api/internal/inventory"
	"github.com/jasoncmcclain/mcpmp-api/pkg/db/models"
	"github.com/jasoncmcclain/mcpmp-api/pkg/enums"
	pkgerrors "github.com/jasoncmcclain/mcpmp-api/pkg/errors"
	"github.com/jasoncmcclain/mcpmp-api/pkg/logger"
)

const importedHoldNote = "reserved at import"

type lotIntake interface {
	Intake(ctx context.Context, input inventory.IntakeInput) (*models.GrapeLot, error)
}

type heldIntake interface {
	IntakeWithHold(ctx context.Context, input inventory.IntakeInput, hold allocation.HoldInput) (*models.GrapeLot, *models.Reservation, error)
}

type blendStore interface {
	GetByExternalID(ctx context.Context, externalID string) (*models.CoreBlend, error)
	Create(ctx context.Context, input blends.CreateInput) (*models.CoreBlend, error)
}

// Summary counts the outcome of one file. Err aggregates every row failure.
type Summary struct {
	Applied int
	Skipped int
	Failed  int
	Err     error
}

func (s *Summary) fail(line int, err error) {
	s.Failed++
	s.Err = multierr.Append(s.Err, fmt.Errorf("line %d: %w", line, err))
}

type Params struct {
	Lots   lotIntake
	Holds  heldIntake
	Blends blendStore
	Logger *logger.Logger
}

type Importer struct {
	lots   lotIntake
	holds  heldIntake
	blends blendStore
	logg   *logger.Logger
}

func New(p Params) (*Importer, error) {
	if p.Lots == nil || p.Holds == nil || p.Blends == nil {
		return nil, fmt.Errorf("lot intake, held intake and blend store are required")
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	return &Importer{lots: p.Lots, holds: p.Holds, blends: p.Blends, logg: p.Logger}, nil
}

// ImportLots registers each row as a new grape lot. Rows whose lot code already
// exists are skipped. A non-zero gallons_reserved column becomes a standing hold
// so reserved balances stay backed by reservations.
func (im *Importer) ImportLots(ctx context.Context, r io.Reader) Summary {
	var summary Summary
	for rec, err := range Records(r) {
		if ctx.Err() != nil {
			summary.Err = multierr.Append(summary.Err, ctx.Err())
			break
		}
		if err != nil {
			summary.fail(rec.Line, err)
			continue
		}
		input, reserved, err := parseLot(rec)
		if err != nil {
			summary.fail(rec.Line, err)
			continue
		}
		if err := im.intakeLot(ctx, input, reserved); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
				summary.Skipped++
				continue
			}
			summary.fail(rec.Line, err)
			continue
		}
		summary.Applied++
	}
	im.logSummary(ctx, "grape lots", summary)
	return summary
}

// intakeLot stores the lot and its standing hold together so a failed hold
// leaves nothing behind and the row can be re-imported.
func (im *Importer) intakeLot(ctx context.Context, input inventory.IntakeInput, reserved decimal.Decimal) error {
	if !reserved.IsPositive() {
		_, err := im.lots.Intake(ctx, input)
		return err
	}
	note := importedHoldNote
	_, _, err := im.holds.IntakeWithHold(ctx, input, allocation.HoldInput{
		Gallons:  reserved,
		NoExpiry: true,
		Note:     &note,
	})
	return err
}

// ImportBlends creates core blends, skipping rows whose external id is already present.
func (im *Importer) ImportBlends(ctx context.Context, r io.Reader) Summary {
	var summary Summary
	for rec, err := range Records(r) {
		if ctx.Err() != nil {
			summary.Err = multierr.Append(summary.Err, ctx.Err())
			break
		}
		if err != nil {
			summary.fail(rec.Line, err)
			continue
		}
		input, err := parseBlend(rec)
		if err != nil {
			summary.fail(rec.Line, err)
			continue
		}
		if input.ExternalID != nil {
			existing, err := im.blends.GetByExternalID(ctx, *input.ExternalID)
			if err != nil {
				summary.fail(rec.Line, err)
				continue
			}
			if existing != nil {
				summary.Skipped++
				continue
			}
		}
		if _, err := im.blends.Create(ctx, input); err != nil {
			summary.fail(rec.Line, err)
			continue
		}
		summary.Applied++
	}
	im.logSummary(ctx, "core blends", summary)
	return summary
}

func (im *Importer) logSummary(ctx context.Context, kind string, summary Summary) {
	logCtx := im.logg.WithFields(ctx, map[string]any{
		"kind":    kind,
		"applied": summary.Applied,
		"skipped": summary.Skipped,
		"failed":  summary.Failed,
	})
	if summary.Err != nil {
		im.logg.Error(logCtx, "import finished with failures", summary.Err)
		return
	}
	im.logg.Info(logCtx, "import finished")
}

func parseLot(rec Record) (inventory.IntakeInput, decimal.Decimal, error) {
	var input inventory.IntakeInput
	input.LotCode = rec.Get("lot_code", "id")
	input.Varietal = rec.Get("varietal")
	input.Appellation = rec.Ptr("appellation")
	input.Vineyard = rec.Ptr("vineyard")

	vintage, err := rec.Int("vintage")
	if err != nil {
		return input, decimal.Zero, err
	}
	if vintage == nil {
		return input, decimal.Zero, fmt.Errorf("vintage is required")
	}
	input.Vintage = *vintage

	total, err := rec.Decimal("gallons_total")
	if err == nil && total == nil {
		total, err = rec.Decimal("gallons")
	}
	if err != nil {
		return input, decimal.Zero, err
	}
	if total != nil {
		input.GallonsTotal = *total
	}
	reserved, err := rec.Decimal("gallons_reserved")
	if err != nil {
		return input, decimal.Zero, err
	}
	held := decimal.Zero
	if reserved != nil {
		held = *reserved
	}
	if held.IsNegative() || held.GreaterThan(input.GallonsTotal) {
		return input, decimal.Zero, fmt.Errorf("gallons_reserved %s is outside [0, %s]", held, input.GallonsTotal)
	}

	if raw := rec.Get("status"); raw != "" {
		status, err := enums.ParseLotStatus(raw)
		if err != nil {
			return input, decimal.Zero, err
		}
		input.Status = status
	}
	if input.ReceivedAt, err = rec.Time("created_date"); err != nil {
		return input, decimal.Zero, err
	}

	p := &input.Provenance
	p.Bond = rec.Ptr("bond")
	p.TankLocation = rec.Ptr("tank_location")
	p.InnovintLotID = rec.Ptr("innovint_lot_id")
	p.InnovintVendorID = rec.Ptr("innovint_vendor_id")
	p.InnovintVineyardID = rec.Ptr("innovint_vineyard_id")
	if rec.Get("lot_code") != "" {
		p.ExternalID = rec.Ptr("id")
	}
	if p.AlcoholByVolume, err = rec.Decimal("alcohol_by_volume"); err != nil {
		return input, decimal.Zero, err
	}
	if p.PH, err = rec.Decimal("ph"); err != nil {
		return input, decimal.Zero, err
	}
	if p.TA, err = rec.Decimal("ta"); err != nil {
		return input, decimal.Zero, err
	}
	return input, held, nil
}

func parseBlend(rec Record) (blends.CreateInput, error) {
	input := blends.CreateInput{
		Name:              rec.Get("name"),
		Bond:              rec.Ptr("bond"),
		WineType:          rec.Ptr("wine_type"),
		ProductCategory:   rec.Ptr("product_category"),
		CoreAppellation:   rec.Ptr("core_appellation"),
		DefaultBottleSize: rec.Get("default_bottle_size"),
		IsActive:          rec.Bool("is_active"),
		ExternalID:        rec.Ptr("external_id", "id"),
	}
	vintage, err := rec.Int("vintage")
	if err != nil {
		return input, err
	}
	input.Vintage = vintage

	raw := rec.Get("composition_profile")
	if raw == "" {
		return input, fmt.Errorf("composition_profile is required")
	}
	var profile []models.CompositionComponent
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		return input, fmt.Errorf("composition_profile: %w", err)
	}
	for i := range profile {
		profile[i].Varietal = strings.TrimSpace(profile[i].Varietal)
	}
	input.CompositionProfile = profile
	return input, nil
}
