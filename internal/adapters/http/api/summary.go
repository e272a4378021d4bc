package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	service "github.com/okian/sitestats/internal/app"
	"github.com/okian/sitestats/internal/domain/model"
)

// SummaryDependencies defines the read side used by SummaryHandler.
type SummaryDependencies interface {
	GenerateAnalyticsSummary(ctx context.Context, projectID string, r *model.DateRange) (model.AnalyticsSummary, error)
	RealTime(ctx context.Context, projectID string) (model.RealTime, error)
}

// SummaryHandler serves the aggregated views of a project.
type SummaryHandler struct {
	deps SummaryDependencies
}

// NewSummaryHandler creates a new summary handler.
func NewSummaryHandler(deps SummaryDependencies) *SummaryHandler {
	return &SummaryHandler{deps: deps}
}

// HandleSummary handles GET /v1/projects/{projectID}/summary requests.
func (h *SummaryHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	const op = "api.summary"
	dr, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	summary, err := h.deps.GenerateAnalyticsSummary(r.Context(), chi.URLParam(r, "projectID"), dr)
	if err != nil {
		writeReadError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// HandleRealTime handles GET /v1/projects/{projectID}/realtime requests.
func (h *SummaryHandler) HandleRealTime(w http.ResponseWriter, r *http.Request) {
	const op = "api.realtime"
	rt, err := h.deps.RealTime(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		writeReadError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

func writeReadError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", NewKind(op, ErrUnavailable))
	default:
		writeError(w, http.StatusInternalServerError, "internal", WrapKind(op, ErrInternal, err))
	}
}
