// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/okian/sitestats/internal/adapters/mq/queue"
	service "github.com/okian/sitestats/internal/app"
	"github.com/okian/sitestats/internal/domain/dedupe"
	"github.com/okian/sitestats/internal/domain/model"
)

// EventDependencies defines the interface for event processing dependencies.
type EventDependencies interface {
	Ingest(ctx context.Context, cmd model.TrackCommand) error
	ClearAll(ctx context.Context) error
}

// EventsHandler handles track and clear requests.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// HandleTrack handles POST /v1/projects/{projectID}/track requests.
func (h *EventsHandler) HandleTrack(w http.ResponseWriter, r *http.Request) {
	const op = "api.track"
	var req model.TrackRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	// The browser is the visitor; the body cannot speak for another one.
	req.ProjectID = chi.URLParam(r, "projectID")
	req.UserAgent = r.UserAgent()
	req.IP = clientIP(r)
	if req.Referrer == "" {
		req.Referrer = r.Referer()
	}

	err := h.deps.Ingest(r.Context(), req.Command(time.Now().UTC()))
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
	case errors.Is(err, dedupe.ErrDuplicate):
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
	case errors.Is(err, model.ErrInvalidCommand):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, queue.ErrFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
	case errors.Is(err, queue.ErrClosed), errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", NewKind(op, ErrUnavailable))
	default:
		writeError(w, http.StatusInternalServerError, "internal", WrapKind(op, ErrInternal, err))
	}
}

// HandleClear handles DELETE /v1/events requests.
func (h *EventsHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	const op = "api.clear"
	if err := h.deps.ClearAll(r.Context()); err != nil {
		if errors.Is(err, service.ErrNotStarted) {
			writeError(w, http.StatusServiceUnavailable, "unavailable", NewKind(op, ErrUnavailable))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", WrapKind(op, ErrInternal, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
