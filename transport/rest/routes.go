// Package rest exposes the operator surface next to the socket: liveness,
// delivery counters and the message history. Read-only by construction.
package rest

import (
	"chat-relay/contract"
	"chat-relay/observability"
	"chat-relay/projection"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(router chi.Router, stats *observability.Stats, timeline *projection.Timeline, messages contract.IMessageLog) {
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	router.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, stats.Latest())
	})

	// /history serves the durable log from an offset; without one it falls
	// back to the in-memory timeline window, which is cheaper than a scan.
	router.Get("/history", func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("offset")
		if raw == "" {
			writeJSON(w, http.StatusOK, timeline.Recent())
			return
		}
		offset, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid offset", http.StatusBadRequest)
			return
		}
		history, err := messages.QuerySince(offset)
		if err != nil {
			http.Error(w, "history unavailable", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, history)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
