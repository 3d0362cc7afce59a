package handler

import (
	"context"
	"net/http"
	"time"
)

// brokerStatus reports messaging broker connectivity.
type brokerStatus interface {
	IsConnected() bool
}

// storePinger reports datastore reachability.
type storePinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	broker brokerStatus
	store  storePinger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(broker brokerStatus, store storePinger) *HealthHandler {
	return &HealthHandler{
		broker: broker,
		store:  store,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
// Not ready until both the broker and the datastore answer: a pod that can
// serve reads but cannot schedule reversions must not take traffic.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.broker == nil || !h.broker.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "datastore unreachable",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
