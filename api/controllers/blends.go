package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/jasoncmcclain/mcpmp-api/api/responses"
	"github.com/jasoncmcclain/mcpmp-api/api/validators"
	"github.com/jasoncmcclain/mcpmp-api/internal/blends"
	"github.com/jasoncmcclain/mcpmp-api/pkg/logger"
)

func BlendList(svc BlendService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := svc.ListActive(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]blends.BlendDTO, 0, len(rows))
		for _, row := range rows {
			out = append(out, blends.ToDTO(row))
		}
		responses.WriteList(w, out)
	}
}

func BlendDetail(svc BlendService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		blend, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, blends.ToDTO(*blend))
	}
}

type blendMatchRequest struct {
	TargetGallons decimal.Decimal `json:"target_gallons" validate:"gt=0"`
}

// BlendMatch proposes lots for every component of a stored core blend.
func BlendMatch(svc BlendService, match MatchService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload blendMatchRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		blend, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		matches, err := match.MatchBlend(r.Context(), blend, payload.TargetGallons)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, matchResponse{
			BlendID:       &blend.ID,
			TargetGallons: payload.TargetGallons,
			Components:    matches,
		})
	}
}
