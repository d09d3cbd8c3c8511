package handler

import (
	"net/http"

	"github.com/estatehub/realtime/internal/application/realtime"
	"github.com/go-chi/chi/v5"
)

// StatsEnvelope summarizes live delivery state.
type StatsEnvelope struct {
	Connections int                    `json:"connections"`
	Rooms       int                    `json:"rooms"`
	Events      realtime.DispatchStats `json:"events"`
}

// HealthHandler handles health-check and live statistics endpoints.
type HealthHandler struct {
	dispatcher *realtime.Dispatcher
}

func NewHealthHandler(d *realtime.Dispatcher) *HealthHandler { return &HealthHandler{dispatcher: d} }

func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	if action == "ping" {
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "pong"})
		return
	}
	writeError(w, http.StatusBadRequest, "unknown action")
}

func (h *HealthHandler) Stats(w http.ResponseWriter, _ *http.Request) {
	reg := h.dispatcher.Registry()
	writeJSON(w, http.StatusOK, StatsEnvelope{
		Connections: reg.Len(),
		Rooms:       reg.RoomCount(),
		Events:      h.dispatcher.Stats(),
	})
}
