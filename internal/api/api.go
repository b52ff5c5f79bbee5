// Package api exposes the ingestion pipeline over HTTP: trigger, stats,
// health and Prometheus metrics.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"city_ingest/internal/app"
)

// NewRouter builds the chi router around an orchestrator.
func NewRouter(orch *app.Orchestrator) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/ingest", func(r chi.Router) {
		r.Post("/trigger", handleTrigger(orch))
		r.Get("/stats", handleStats(orch))
	})

	return r
}

func handleTrigger(orch *app.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var opts app.Options
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
				writeError(w, http.StatusBadRequest, "invalid options: "+err.Error())
				return
			}
		}

		summary, err := orch.Trigger(r.Context(), opts)
		if err != nil {
			// Only configuration mistakes land here; expected error kinds
			// come back inside the summary.
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func handleStats(orch *app.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := orch.Stats(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		slog.Error("response encode failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
