package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jasoncmcclain/mcpmp-api/api/responses"
	"github.com/jasoncmcclain/mcpmp-api/api/validators"
	"github.com/jasoncmcclain/mcpmp-api/internal/allocation"
	"github.com/jasoncmcclain/mcpmp-api/pkg/logger"
)

type holdRequest struct {
	GrapeLotID    uuid.UUID       `json:"grape_lot_id" validate:"required"`
	BottlingRunID *uuid.UUID      `json:"bottling_run_id,omitempty"`
	Gallons       decimal.Decimal `json:"gallons" validate:"gt=0"`
	ExpiresAt     *time.Time      `json:"expires_at,omitempty"`
	NoExpiry      bool            `json:"no_expiry,omitempty"`
	Note          *string         `json:"note,omitempty" validate:"omitempty,max=500"`
}

// ReservationHold places a standing hold on a lot.
func ReservationHold(svc AllocationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload holdRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reservation, err := svc.PlaceHold(r.Context(), allocation.HoldInput{
			GrapeLotID:    payload.GrapeLotID,
			BottlingRunID: payload.BottlingRunID,
			Gallons:       payload.Gallons,
			ExpiresAt:     payload.ExpiresAt,
			NoExpiry:      payload.NoExpiry,
			Note:          payload.Note,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, allocation.ToReservationDTO(*reservation))
	}
}

// ReservationGet returns one reservation in any status.
func ReservationGet(svc AllocationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reservation, err := svc.GetReservation(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, allocation.ToReservationDTO(*reservation))
	}
}

func ReservationRelease(svc AllocationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reservation, err := svc.ReleaseReservation(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, allocation.ToReservationDTO(*reservation))
	}
}
