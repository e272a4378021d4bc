// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"maps"
	"net/http"
)

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	GetStats() map[string]any
	// CollectionCounts scans storage and is only called on demand.
	CollectionCounts(ctx context.Context) map[string]int
}

// StatsHandler handles stats requests.
type StatsHandler struct {
	statsProvider StatsProvider
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatsProvider) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider}
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats := maps.Clone(h.statsProvider.GetStats())
	if stats == nil {
		stats = map[string]any{}
	}
	if counts := h.statsProvider.CollectionCounts(r.Context()); counts != nil {
		stats["collections"] = counts
	}
	writeJSON(w, http.StatusOK, stats)
}
