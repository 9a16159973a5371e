// Package gateway - stats.go exposes aggregated metrics as JSON.
//
// GET /stats returns operational counters plus the persisted request
// history summary. Restricted to localhost.
package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/geminiweb/gemini-gateway/internal/config"
	"github.com/geminiweb/gemini-gateway/internal/monitoring"
)

// statsPayload is the JSON response for GET /stats.
type statsPayload struct {
	monitoring.StatsResponse
	EventSubscribers int                        `json:"event_subscribers"`
	History          *monitoring.HistorySummary `json:"history,omitempty"`
	Recent           []monitoring.HistoryRow    `json:"recent,omitempty"`
}

// handleStats returns aggregated metrics as JSON.
// Restricted to localhost to prevent external access to operational metrics.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	payload := statsPayload{
		StatsResponse:    g.metrics.FullStats(),
		EventSubscribers: g.events.SubscriberCount(),
	}

	if g.history != nil {
		summary, err := g.history.Summary()
		if err != nil {
			log.Warn().Err(err).Msg("failed to summarize request history")
		} else {
			payload.History = &summary
		}

		limit := config.DefaultHistoryLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = n
			}
		}
		if recent, err := g.history.Recent(limit); err == nil {
			payload.Recent = recent
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
