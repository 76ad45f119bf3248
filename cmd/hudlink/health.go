package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/rickgao/hudlink/internal/recorder"
	"github.com/rickgao/hudlink/internal/subscription"
	"github.com/rickgao/hudlink/internal/version"
)

// streamStatus is one subscription as reported by /debug/subscriptions.
type streamStatus struct {
	Name      string `json:"name"`
	ID        string `json:"id"`
	Pending   int    `json:"pending"`
	Errors    int    `json:"errors"`
	LastError string `json:"last_error,omitempty"`
	Ended     string `json:"ended,omitempty"`
}

// healthSources supplies the state the health handler reports. recorder and
// pingDB are nil when recording is disabled.
type healthSources struct {
	transport func() subscription.Stats
	streams   func() []streamStatus
	recorder  func() recorder.Metrics
	pingDB    func(ctx context.Context) error
}

func statusOf(s *subscription.Stream) streamStatus {
	st := streamStatus{
		Name:    s.Name(),
		ID:      s.ID(),
		Pending: s.Pending(),
	}
	lastErr, count := s.LastError()
	st.Errors = count
	if lastErr != nil {
		st.LastError = lastErr.Error()
	}
	if err := s.Err(); err != nil {
		st.Ended = err.Error()
	}
	return st
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(src healthSources, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	router := mux.NewRouter()

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Version    version.Info   `json:"version"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Version:    version.Get(),
			Components: make(map[string]any),
		}

		// Check transport
		stats := src.transport()
		health.Components["transport"] = map[string]any{
			"state":               stats.State.String(),
			"subscriptions":       stats.Subscriptions,
			"acks":                stats.Acks,
			"keep_alive_timeouts": stats.KeepAliveTimeouts,
			"malformed_frames":    stats.MalformedFrames,
		}
		if stats.State != subscription.StateReady {
			health.Status = "degraded"
		}

		// Check database
		if src.pingDB != nil {
			if err := src.pingDB(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["database"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["database"] = "connected"
			}
		}
		if src.recorder != nil {
			health.Components["recorder"] = src.recorder()
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(health); err != nil {
			logger.Debug("write health response", "error", err)
		}
	}).Methods(http.MethodGet)

	debug := router.PathPrefix("/debug").Subrouter()

	debug.HandleFunc("/subscriptions", func(w http.ResponseWriter, r *http.Request) {
		streams := src.streams()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"count":         len(streams),
			"subscriptions": streams,
		})
	}).Methods(http.MethodGet)

	debug.HandleFunc("/subscriptions/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		for _, st := range src.streams() {
			if st.Name == name {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(st)
				return
			}
		}
		http.Error(w, "unknown subscription", http.StatusNotFound)
	}).Methods(http.MethodGet)

	return router
}
