package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jasoncmcclain/mcpmp-api/api/responses"
	"github.com/jasoncmcclain/mcpmp-api/api/validators"
	"github.com/jasoncmcclain/mcpmp-api/internal/compliance"
	"github.com/jasoncmcclain/mcpmp-api/internal/matcher"
	"github.com/jasoncmcclain/mcpmp-api/pkg/logger"
)

type matchRequest struct {
	CompositionProfile []matcher.Component `json:"composition_profile" validate:"required,min=1"`
	TargetGallons      decimal.Decimal     `json:"target_gallons" validate:"gt=0"`
}

type matchResponse struct {
	BlendID       *uuid.UUID               `json:"blend_id,omitempty"`
	TargetGallons decimal.Decimal          `json:"target_gallons"`
	Components    []matcher.ComponentMatch `json:"components"`
}

// MatchLots proposes candidate lots for an ad hoc composition. Nothing is reserved.
func MatchLots(svc MatchService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload matchRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		matches, err := svc.Match(r.Context(), payload.CompositionProfile, payload.TargetGallons)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, matchResponse{TargetGallons: payload.TargetGallons, Components: matches})
	}
}

type ttbCheckRequest struct {
	Lots []compliance.LotShare `json:"lots" validate:"required,min=1"`
}

type ttbCheckResponse struct {
	Rule  string `json:"rule"`
	Notes string `json:"notes"`
	compliance.Result
}

// TTBCheck evaluates the cross-vintage rule for a proposed blend.
func TTBCheck(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload ttbCheckRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := compliance.Check(payload.Lots)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ttbCheckResponse{
			Rule:   compliance.RuleName,
			Notes:  compliance.Notes(result),
			Result: result,
		})
	}
}
