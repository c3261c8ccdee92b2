package controllers

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/jasoncmcclain/mcpmp-api/api/responses"
	"github.com/jasoncmcclain/mcpmp-api/api/validators"
	"github.com/jasoncmcclain/mcpmp-api/internal/allocation"
	"github.com/jasoncmcclain/mcpmp-api/internal/inventory"
	"github.com/jasoncmcclain/mcpmp-api/pkg/enums"
	pkgerrors "github.com/jasoncmcclain/mcpmp-api/pkg/errors"
	"github.com/jasoncmcclain/mcpmp-api/pkg/logger"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// InventoryList returns every available lot, oldest vintage first.
func InventoryList(svc InventoryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", defaultListLimit, 1, maxListLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lots, err := svc.AvailableLots(r.Context(), inventory.Filter{Limit: limit})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteList(w, inventory.ToDTOs(lots))
	}
}

// InventorySearch matches varietal, appellation and vineyard as case-insensitive substrings.
func InventorySearch(svc InventoryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := searchFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lots, err := svc.AvailableLots(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteList(w, inventory.ToDTOs(lots))
	}
}

func searchFilter(r *http.Request) (inventory.Filter, error) {
	limit, err := validators.ParseQueryInt(r, "limit", defaultListLimit, 1, maxListLimit)
	if err != nil {
		return inventory.Filter{}, err
	}
	minGallons, err := validators.ParseQueryDecimal(r, "min_gallons")
	if err != nil {
		return inventory.Filter{}, err
	}
	filter := inventory.Filter{
		Appellation: validators.QueryString(r, "appellation"),
		Vineyard:    validators.QueryString(r, "vineyard"),
		MinGallons:  minGallons,
		Match:       inventory.MatchPartial,
		Limit:       limit,
	}
	if v := validators.QueryString(r, "varietal"); v != nil {
		filter.Varietal = *v
	}
	if raw := validators.QueryString(r, "status"); raw != nil {
		status, err := enums.ParseLotStatus(*raw)
		if err != nil {
			return inventory.Filter{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status")
		}
		filter.Status = status
	}
	return filter, nil
}

// InventoryByVarietal returns available lots whose varietal equals the path value.
func InventoryByVarietal(svc InventoryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		varietal, err := url.PathUnescape(chi.URLParam(r, "varietal"))
		if err != nil || strings.TrimSpace(varietal) == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "varietal is required"))
			return
		}
		lots, err := svc.AvailableLots(r.Context(), inventory.Filter{Varietal: varietal, Limit: maxListLimit})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteList(w, inventory.ToDTOs(lots))
	}
}

type intakeRequest struct {
	LotCode      string           `json:"lot_code" validate:"required"`
	Varietal     string           `json:"varietal" validate:"required"`
	Appellation  *string          `json:"appellation,omitempty"`
	Vineyard     *string          `json:"vineyard,omitempty"`
	Vintage      int              `json:"vintage" validate:"required,gte=1800,lte=2200"`
	GallonsTotal decimal.Decimal  `json:"gallons_total" validate:"gt=0"`
	Status       *string          `json:"status,omitempty"`
	ReceivedAt   *time.Time       `json:"received_at,omitempty"`
	Bond         *string          `json:"bond,omitempty"`
	TankLocation *string          `json:"tank_location,omitempty"`
	ABV          *decimal.Decimal `json:"alcohol_by_volume,omitempty"`
	PH           *decimal.Decimal `json:"ph,omitempty"`
	TA           *decimal.Decimal `json:"ta,omitempty"`
	ExternalID   *string          `json:"external_id,omitempty"`
}

func (req intakeRequest) toInput() (inventory.IntakeInput, error) {
	input := inventory.IntakeInput{
		LotCode:      req.LotCode,
		Varietal:     req.Varietal,
		Appellation:  req.Appellation,
		Vineyard:     req.Vineyard,
		Vintage:      req.Vintage,
		GallonsTotal: req.GallonsTotal,
		ReceivedAt:   req.ReceivedAt,
		Provenance: inventory.Provenance{
			Bond:            req.Bond,
			TankLocation:    req.TankLocation,
			AlcoholByVolume: req.ABV,
			PH:              req.PH,
			TA:              req.TA,
			ExternalID:      req.ExternalID,
		},
	}
	if req.Status != nil {
		status, err := enums.ParseLotStatus(*req.Status)
		if err != nil {
			return inventory.IntakeInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status")
		}
		input.Status = status
	}
	return input, nil
}

// InventoryIntake registers a newly received lot.
func InventoryIntake(svc InventoryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload intakeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lot, err := svc.Intake(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, inventory.ToDTO(*lot))
	}
}

// InventoryReservations lists every reservation ever placed on a lot, newest first.
func InventoryReservations(lots InventoryService, svc AllocationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lotID, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if _, err := lots.Get(r.Context(), lotID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListReservationsForLot(r.Context(), lotID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]allocation.ReservationDTO, 0, len(rows))
		for _, row := range rows {
			out = append(out, allocation.ToReservationDTO(row))
		}
		responses.WriteList(w, out)
	}
}
