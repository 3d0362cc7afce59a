package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/autoline-ai/handoff-platform/internal/middleware"
	natsclient "github.com/autoline-ai/handoff-platform/internal/nats"
	"github.com/autoline-ai/handoff-platform/pkg/logger"
	"github.com/autoline-ai/handoff-platform/pkg/metrics"
)

// LiveHandler streams live chat updates to operator dashboards over SSE.
type LiveHandler struct {
	broadcaster *natsclient.NATSBroadcaster
	logger      *logger.Logger
}

// NewLiveHandler creates a new live update handler.
func NewLiveHandler(broadcaster *natsclient.NATSBroadcaster, log *logger.Logger) *LiveHandler {
	return &LiveHandler{
		broadcaster: broadcaster,
		logger:      log.Named("live"),
	}
}

type liveEvent struct {
	name string
	data []byte
}

// Stream handles GET /api/v1/chats/live
// Relays every message and mode change on the tenant's chats until the
// client disconnects.
func (h *LiveHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Buffered so a slow client drops updates instead of blocking the NATS
	// callback; the dashboard reconciles through the REST endpoints.
	events := make(chan liveEvent, 64)
	sub, err := h.broadcaster.SubscribeTenant(tenantID, func(subject string, data []byte) {
		select {
		case events <- liveEvent{name: eventName(subject), data: data}:
		default:
		}
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "live updates unavailable")
		return
	}
	defer sub.Unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	metrics.LiveConnections.Inc()
	defer metrics.LiveConnections.Dec()

	fmt.Fprint(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("live stream closed", zap.String("tenant_id", tenantID))
			return
		case ev := <-events:
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.data)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

// eventName maps a broadcast subject to its SSE event name, the suffix after
// the chat ID ("message" or "mode").
func eventName(subject string) string {
	if i := strings.LastIndex(subject, "."); i >= 0 {
		return subject[i+1:]
	}
	return "update"
}
