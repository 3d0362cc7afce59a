package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/autoline-ai/handoff-platform/internal/jobs"
	"github.com/autoline-ai/handoff-platform/internal/model"
	"github.com/autoline-ai/handoff-platform/internal/store"
	"github.com/autoline-ai/handoff-platform/pkg/logger"
	"github.com/autoline-ai/handoff-platform/pkg/metrics"
)

// requiredEventFields maps known event names to the property keys they must
// carry. Unknown event names pass through unchecked for forward compatibility.
var requiredEventFields = map[string][]string{
	model.EventTakeoverStarted:    {"taken_by_id", "timeout_minutes"},
	model.EventTakeoverEnded:      {"taken_by_id", "reason", "duration_minutes"},
	model.EventManagerMessageSent: {"taken_by_id"},
}

// Analytics emits structured events for asynchronous recording. It is
// fail-safe by construction: every validation, serialization, or submission
// problem is absorbed and logged, so emission can never break the caller.
type Analytics struct {
	queue   jobs.Queue
	enabled bool
	secret  string
	logger  *logger.Logger
	now     func() time.Time
}

// NewAnalytics creates the emitter. With enabled=false every Track call is a
// no-op.
func NewAnalytics(queue jobs.Queue, enabled bool, sessionSecret string, log *logger.Logger) *Analytics {
	return &Analytics{
		queue:   queue,
		enabled: enabled,
		secret:  sessionSecret,
		logger:  log.Named("analytics"),
		now:     time.Now,
	}
}

// Track emits one event. Always returns normally.
func (a *Analytics) Track(ctx context.Context, tenantID, eventName, chatID string, properties map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Warn("analytics emission panicked",
				zap.String("event_name", eventName),
				zap.String("chat_id", chatID),
				zap.Any("panic", r),
			)
			metrics.AnalyticsEventsTotal.WithLabelValues(eventName, "failed").Inc()
		}
	}()

	if !a.enabled || tenantID == "" {
		return
	}

	if required, known := requiredEventFields[eventName]; known {
		for _, field := range required {
			if _, ok := properties[field]; !ok {
				a.logger.Debug("analytics event discarded: missing field",
					zap.String("event_name", eventName),
					zap.String("missing", field),
				)
				metrics.AnalyticsEventsTotal.WithLabelValues(eventName, "discarded").Inc()
				return
			}
		}
	}

	occurredAt := a.now().UTC()

	props, err := json.Marshal(properties)
	if err != nil {
		a.logger.Warn("analytics event discarded: properties not serializable",
			zap.String("event_name", eventName),
			zap.Error(err),
		)
		metrics.AnalyticsEventsTotal.WithLabelValues(eventName, "discarded").Inc()
		return
	}

	event := model.AnalyticsEvent{
		ID:         uuid.Must(uuid.NewV7()).String(),
		EventName:  eventName,
		ChatID:     chatID,
		TenantID:   tenantID,
		SessionID:  a.sessionID(chatID, occurredAt),
		Props:      props,
		OccurredAt: occurredAt,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		a.logger.Warn("analytics event discarded: not serializable",
			zap.String("event_name", eventName),
			zap.Error(err),
		)
		metrics.AnalyticsEventsTotal.WithLabelValues(eventName, "discarded").Inc()
		return
	}

	if err := a.queue.Enqueue(ctx, jobs.TaskRecordAnalytics, payload); err != nil {
		a.logger.Warn("analytics event submission failed",
			zap.String("event_name", eventName),
			zap.String("chat_id", chatID),
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		metrics.AnalyticsEventsTotal.WithLabelValues(eventName, "failed").Inc()
		return
	}

	metrics.AnalyticsEventsTotal.WithLabelValues(eventName, "emitted").Inc()
}

// sessionID derives one stable session id per chat per calendar day, without
// a session table.
func (a *Analytics) sessionID(chatID string, at time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", chatID, at.Format("2006-01-02"), a.secret)))
	return hex.EncodeToString(sum[:])
}

// AnalyticsRecorder is the worker-side handler that persists emitted events.
type AnalyticsRecorder struct {
	store  store.AnalyticsStore
	logger *logger.Logger
}

// NewAnalyticsRecorder creates the recorder.
func NewAnalyticsRecorder(s store.AnalyticsStore, log *logger.Logger) *AnalyticsRecorder {
	return &AnalyticsRecorder{store: s, logger: log.Named("analytics-recorder")}
}

// HandleRecordTask processes one queued analytics event.
func (r *AnalyticsRecorder) HandleRecordTask(ctx context.Context, payload []byte) error {
	var event model.AnalyticsEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		// A payload that cannot parse will never parse; drop it.
		r.logger.Warn("dropping malformed analytics payload", zap.Error(err))
		return nil
	}
	return r.store.InsertAnalyticsEvent(ctx, &event)
}
