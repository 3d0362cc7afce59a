package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/autoline-ai/handoff-platform/internal/model"
	"github.com/autoline-ai/handoff-platform/internal/store"
	"github.com/autoline-ai/handoff-platform/pkg/logger"
)

func newAnalytics(queue *fakeQueue, enabled bool) *Analytics {
	a := NewAnalytics(queue, enabled, "test-secret", logger.NewNop())
	a.now = func() time.Time { return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC) }
	return a
}

func TestTrackEnqueuesEvent(t *testing.T) {
	queue := &fakeQueue{}
	a := newAnalytics(queue, true)
	chatID := uuid.NewString()
	tenantID := uuid.NewString()

	a.Track(context.Background(), tenantID, model.EventManagerMessageSent, chatID, map[string]any{
		"taken_by_id": "op-1",
	})

	events := queue.recordedEvents(t)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	event := events[0]
	if event.EventName != model.EventManagerMessageSent || event.ChatID != chatID || event.TenantID != tenantID {
		t.Fatalf("event fields wrong: %+v", event)
	}
	if event.SessionID == "" {
		t.Fatal("session id missing")
	}
	var props map[string]any
	if err := json.Unmarshal([]byte(event.Props), &props); err != nil {
		t.Fatalf("unmarshal props: %v", err)
	}
	if props["taken_by_id"] != "op-1" {
		t.Fatalf("props = %v", props)
	}
}

func TestTrackDisabled(t *testing.T) {
	queue := &fakeQueue{}
	a := newAnalytics(queue, false)

	a.Track(context.Background(), uuid.NewString(), model.EventManagerMessageSent, uuid.NewString(), map[string]any{
		"taken_by_id": "op-1",
	})

	if len(queue.enqueued) != 0 {
		t.Fatalf("disabled emitter enqueued %d events", len(queue.enqueued))
	}
}

func TestTrackRequiresTenant(t *testing.T) {
	queue := &fakeQueue{}
	a := newAnalytics(queue, true)

	a.Track(context.Background(), "", model.EventManagerMessageSent, uuid.NewString(), map[string]any{
		"taken_by_id": "op-1",
	})

	if len(queue.enqueued) != 0 {
		t.Fatalf("tenantless event enqueued")
	}
}

func TestTrackDiscardsIncompleteEvent(t *testing.T) {
	queue := &fakeQueue{}
	a := newAnalytics(queue, true)

	// takeover_started requires taken_by_id and timeout_minutes.
	a.Track(context.Background(), uuid.NewString(), model.EventTakeoverStarted, uuid.NewString(), map[string]any{
		"taken_by_id": "op-1",
	})

	if len(queue.enqueued) != 0 {
		t.Fatalf("incomplete event enqueued")
	}
}

func TestTrackPassesUnknownEvent(t *testing.T) {
	queue := &fakeQueue{}
	a := newAnalytics(queue, true)

	a.Track(context.Background(), uuid.NewString(), "booking_created", uuid.NewString(), map[string]any{
		"service": "oil change",
	})

	events := queue.recordedEvents(t)
	if len(events) != 1 || events[0].EventName != "booking_created" {
		t.Fatalf("unknown event not passed through: %+v", events)
	}
}

func TestTrackAbsorbsQueueFailure(t *testing.T) {
	queue := &fakeQueue{enqueueErr: errors.New("queue down")}
	a := newAnalytics(queue, true)

	// Must return normally.
	a.Track(context.Background(), uuid.NewString(), model.EventManagerMessageSent, uuid.NewString(), map[string]any{
		"taken_by_id": "op-1",
	})
}

func TestSessionIDStableWithinDay(t *testing.T) {
	a := newAnalytics(&fakeQueue{}, true)
	chatID := uuid.NewString()

	morning := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 3, 14, 22, 30, 0, 0, time.UTC)
	nextDay := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

	if a.sessionID(chatID, morning) != a.sessionID(chatID, evening) {
		t.Fatal("session id changed within the same day")
	}
	if a.sessionID(chatID, morning) == a.sessionID(chatID, nextDay) {
		t.Fatal("session id identical across days")
	}
	if a.sessionID(chatID, morning) == a.sessionID(uuid.NewString(), morning) {
		t.Fatal("session id identical across chats")
	}
}

func TestSessionIDDependsOnSecret(t *testing.T) {
	queue := &fakeQueue{}
	a := NewAnalytics(queue, true, "secret-a", logger.NewNop())
	b := NewAnalytics(queue, true, "secret-b", logger.NewNop())
	chatID := uuid.NewString()
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	if a.sessionID(chatID, at) == b.sessionID(chatID, at) {
		t.Fatal("session id does not depend on the secret")
	}
}

func TestRecorderPersistsEvent(t *testing.T) {
	st := store.NewMemoryStore()
	r := NewAnalyticsRecorder(st, logger.NewNop())

	event := model.AnalyticsEvent{
		ID:         uuid.NewString(),
		EventName:  model.EventTakeoverStarted,
		ChatID:     uuid.NewString(),
		TenantID:   uuid.NewString(),
		SessionID:  "abc",
		Props:      []byte(`{"taken_by_id":"op-1","timeout_minutes":30}`),
		OccurredAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if err := r.HandleRecordTask(context.Background(), payload); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	recorded := st.AnalyticsEvents()
	if len(recorded) != 1 || recorded[0].ID != event.ID {
		t.Fatalf("recorded = %+v", recorded)
	}
}

func TestRecorderDropsMalformedPayload(t *testing.T) {
	st := store.NewMemoryStore()
	r := NewAnalyticsRecorder(st, logger.NewNop())

	if err := r.HandleRecordTask(context.Background(), []byte("not json")); err != nil {
		t.Fatalf("malformed payload should be dropped, got %v", err)
	}
	if len(st.AnalyticsEvents()) != 0 {
		t.Fatal("malformed payload recorded")
	}
}
