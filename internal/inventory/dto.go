package inventory

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jasoncmcclain/mcpmp-api/pkg/db/models"
	"github.com/jasoncmcclain/mcpmp-api/pkg/enums"
)

// TextMatch selects how varietal, appellation and vineyard are compared.
type TextMatch int

const (
	// MatchExact compares case-insensitively on the whole value.
	MatchExact TextMatch = iota
	// MatchPartial is a case-insensitive substring match.
	MatchPartial
)

// Filter describes an availability query. Nil or blank text fields place no constraint.
type Filter struct {
	Varietal    string
	Appellation *string
	Vineyard    *string
	MinGallons  decimal.Decimal
	Status      enums.LotStatus
	Match       TextMatch
	Limit       int
}

func (f Filter) normalized() Filter {
	f.Varietal = strings.TrimSpace(f.Varietal)
	f.Appellation = blankToNil(f.Appellation)
	f.Vineyard = blankToNil(f.Vineyard)
	if f.Status == "" {
		f.Status = enums.LotStatusAvailable
	}
	if f.MinGallons.IsNegative() {
		f.MinGallons = decimal.Zero
	}
	return f
}

// Provenance carries external cross references. The engine does not interpret them.
type Provenance struct {
	Bond               *string          `json:"bond,omitempty"`
	TankLocation       *string          `json:"tank_location,omitempty"`
	AlcoholByVolume    *decimal.Decimal `json:"alcohol_by_volume,omitempty"`
	PH                 *decimal.Decimal `json:"ph,omitempty"`
	TA                 *decimal.Decimal `json:"ta,omitempty"`
	InnovintLotID      *string          `json:"innovint_lot_id,omitempty"`
	InnovintVendorID   *string          `json:"innovint_vendor_id,omitempty"`
	InnovintVineyardID *string          `json:"innovint_vineyard_id,omitempty"`
	ExternalID         *string          `json:"external_id,omitempty"`
}

// IntakeInput registers a new lot. Balances start fully available.
type IntakeInput struct {
	LotCode      string
	Varietal     string
	Appellation  *string
	Vineyard     *string
	Vintage      int
	GallonsTotal decimal.Decimal
	Status       enums.LotStatus
	ReceivedAt   *time.Time
	Provenance   Provenance
}

// LotDTO is the wire shape of a grape lot.
type LotDTO struct {
	ID               uuid.UUID       `json:"id"`
	LotCode          string          `json:"lot_code"`
	Varietal         string          `json:"varietal"`
	Appellation      *string         `json:"appellation,omitempty"`
	Vineyard         *string         `json:"vineyard,omitempty"`
	Vintage          int             `json:"vintage"`
	GallonsTotal     decimal.Decimal `json:"gallons_total"`
	GallonsReserved  decimal.Decimal `json:"gallons_reserved"`
	GallonsAvailable decimal.Decimal `json:"gallons_available"`
	Status           enums.LotStatus `json:"status"`
	Provenance
	ReceivedAt time.Time `json:"received_at"`
}

// ToDTO maps a stored lot onto its wire shape.
func ToDTO(lot models.GrapeLot) LotDTO {
	return LotDTO{
		ID:               lot.ID,
		LotCode:          lot.LotCode,
		Varietal:         lot.Varietal,
		Appellation:      lot.Appellation,
		Vineyard:         lot.Vineyard,
		Vintage:          lot.Vintage,
		GallonsTotal:     lot.GallonsTotal,
		GallonsReserved:  lot.GallonsReserved,
		GallonsAvailable: lot.GallonsAvailable,
		Status:           lot.Status,
		Provenance: Provenance{
			Bond:               lot.Bond,
			TankLocation:       lot.TankLocation,
			AlcoholByVolume:    lot.AlcoholByVolume,
			PH:                 lot.PH,
			TA:                 lot.TA,
			InnovintLotID:      lot.InnovintLotID,
			InnovintVendorID:   lot.InnovintVendorID,
			InnovintVineyardID: lot.InnovintVineyardID,
			ExternalID:         lot.ExternalID,
		},
		ReceivedAt: lot.ReceivedAt,
	}
}

// ToDTOs maps a slice of lots.
func ToDTOs(lots []models.GrapeLot) []LotDTO {
	out := make([]LotDTO, 0, len(lots))
	for _, lot := range lots {
		out = append(out, ToDTO(lot))
	}
	return out
}

func blankToNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
