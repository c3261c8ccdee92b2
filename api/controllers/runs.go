package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jasoncmcclain/mcpmp-api/api/responses"
	"github.com/jasoncmcclain/mcpmp-api/api/validators"
	"github.com/jasoncmcclain/mcpmp-api/internal/allocation"
	"github.com/jasoncmcclain/mcpmp-api/internal/compliance"
	"github.com/jasoncmcclain/mcpmp-api/pkg/enums"
	pkgerrors "github.com/jasoncmcclain/mcpmp-api/pkg/errors"
	"github.com/jasoncmcclain/mcpmp-api/pkg/logger"
)

type runLotRequest struct {
	GrapeLotID        uuid.UUID       `json:"grape_lot_id" validate:"required"`
	GallonsAllocated  decimal.Decimal `json:"gallons_allocated" validate:"gt=0"`
	PercentageOfBlend decimal.Decimal `json:"percentage_of_blend" validate:"gte=0,lte=100"`
	allocation.LotSnapshot
}

type createRunRequest struct {
	RunName              string          `json:"run_name" validate:"required"`
	CoreBlendID          *uuid.UUID      `json:"core_blend_id,omitempty"`
	PlannedCases         int             `json:"planned_cases" validate:"gt=0"`
	BottleSize           string          `json:"bottle_size,omitempty"`
	TargetBottlingDate   *time.Time      `json:"target_bottling_date,omitempty"`
	ReservationExpiresAt *time.Time      `json:"reservation_expires_at,omitempty"`
	Lots                 []runLotRequest `json:"lots" validate:"required,min=1,dive"`
}

func (req createRunRequest) toInput() allocation.CreateRunInput {
	input := allocation.CreateRunInput{
		RunName:              req.RunName,
		CoreBlendID:          req.CoreBlendID,
		PlannedCases:         req.PlannedCases,
		BottleSize:           req.BottleSize,
		TargetBottlingDate:   req.TargetBottlingDate,
		ReservationExpiresAt: req.ReservationExpiresAt,
		Lots:                 make([]allocation.LotAssignment, 0, len(req.Lots)),
	}
	for _, lot := range req.Lots {
		input.Lots = append(input.Lots, allocation.LotAssignment{
			GrapeLotID:        lot.GrapeLotID,
			GallonsAllocated:  lot.GallonsAllocated,
			PercentageOfBlend: lot.PercentageOfBlend,
			Snapshot:          lot.LotSnapshot,
		})
	}
	return input
}

// RunCreate plans a bottling run and reserves every lot in one commit.
func RunCreate(svc AllocationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createRunRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		runID, err := svc.CreateBottlingRun(r.Context(), payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		run, err := svc.GetBottlingRun(r.Context(), runID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, allocation.ToRunDTO(*run))
	}
}

func RunList(svc AllocationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", defaultListLimit, 1, maxListLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter := allocation.RunFilter{Limit: limit}
		if raw := validators.QueryString(r, "status"); raw != nil {
			status, err := enums.ParseBottlingRunStatus(*raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			filter.Status = &status
		}
		runs, err := svc.ListBottlingRuns(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]allocation.RunDTO, 0, len(runs))
		for _, run := range runs {
			out = append(out, allocation.ToRunDTO(run))
		}
		responses.WriteList(w, out)
	}
}

func RunDetail(svc AllocationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		run, err := svc.GetBottlingRun(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, allocation.ToRunDTO(*run))
	}
}

type scheduleResponse struct {
	Run        allocation.RunDTO `json:"run"`
	Compliance compliance.Result `json:"compliance"`
}

func RunSchedule(svc AllocationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ScheduleBottlingRun(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, scheduleResponse{Run: allocation.ToRunDTO(*result.Run), Compliance: result.Compliance})
	}
}

type completeRunRequest struct {
	BottledAt *time.Time `json:"bottled_at,omitempty"`
}

// RunComplete accepts an empty body; bottled_at defaults to now.
func RunComplete(svc AllocationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload completeRunRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		run, err := svc.CompleteBottlingRun(r.Context(), id, payload.BottledAt)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, allocation.ToRunDTO(*run))
	}
}

func RunCancel(svc AllocationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		run, err := svc.CancelBottlingRun(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, allocation.ToRunDTO(*run))
	}
}
