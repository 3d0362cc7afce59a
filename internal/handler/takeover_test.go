package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/autoline-ai/handoff-platform/internal/middleware"
	"github.com/autoline-ai/handoff-platform/internal/model"
	"github.com/autoline-ai/handoff-platform/internal/service"
	"github.com/autoline-ai/handoff-platform/internal/store"
	"github.com/autoline-ai/handoff-platform/internal/telegram"
	"github.com/autoline-ai/handoff-platform/pkg/logger"
)

type nopQueue struct{}

func (nopQueue) Enqueue(ctx context.Context, taskType string, payload []byte) error {
	return nil
}

func (nopQueue) Schedule(ctx context.Context, taskType string, payload []byte, delay time.Duration) error {
	return nil
}

type okMessenger struct{}

func (okMessenger) SendMessage(ctx context.Context, botToken string, chatID int64, text string) (*telegram.SendResult, error) {
	return &telegram.SendResult{OK: true, MessageID: 1}, nil
}

type handlerEnv struct {
	router *chi.Mux
	store  *store.MemoryStore
	tenant *model.Tenant
	chat   *model.Chat
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	return newHandlerEnvNotify(t, true)
}

func newHandlerEnvNotify(t *testing.T, notifyDefault bool) *handlerEnv {
	t.Helper()

	st := store.NewMemoryStore()
	tenant := &model.Tenant{ID: uuid.NewString(), Name: "Garage One", TelegramBotToken: "111:token"}
	st.PutTenant(tenant)

	chat := &model.Chat{
		ID:             uuid.NewString(),
		TenantID:       tenant.ID,
		ClientID:       uuid.NewString(),
		TelegramChatID: 9000,
		Mode:           model.ModeAI,
	}
	if err := st.CreateChat(context.Background(), chat); err != nil {
		t.Fatalf("create chat: %v", err)
	}

	log := logger.NewNop()
	queue := nopQueue{}
	messenger := okMessenger{}
	analytics := service.NewAnalytics(queue, true, "secret", log)
	notifier := service.NewNotifier(messenger, log)
	takeoverSvc := service.NewTakeoverService(st, notifier, analytics, nil, queue, 30*time.Minute, log)
	managerSvc := service.NewManagerService(st, messenger, takeoverSvc, analytics, nil, 60, time.Hour, log)

	h := NewTakeoverHandler(takeoverSvc, managerSvc, notifyDefault, log)

	r := chi.NewRouter()
	r.Route("/chats/{id}", func(r chi.Router) {
		r.Post("/takeover", h.Takeover)
		r.Post("/release", h.Release)
		r.Post("/extend", h.Extend)
		r.Post("/messages", h.SendMessage)
	})

	return &handlerEnv{router: r, store: st, tenant: tenant, chat: chat}
}

// do issues a request as an authenticated operator.
func (e *handlerEnv) do(t *testing.T, operator model.Operator, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	ctx := context.WithValue(req.Context(), middleware.OperatorKey, operator)
	ctx = context.WithValue(ctx, middleware.TenantIDKey, e.tenant.ID)
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestTakeoverEndpoint(t *testing.T) {
	env := newHandlerEnv(t)
	op := model.Operator{ID: uuid.NewString(), DisplayName: "Dana"}

	rec := env.do(t, op, http.MethodPost, "/chats/"+env.chat.ID+"/takeover", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var result model.TakeoverResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Chat.Mode != model.ModeManager || *result.Chat.TakenBy != op.ID {
		t.Fatalf("unexpected result: %+v", result.Chat)
	}
}

func TestTakeoverEndpointNotifyDefault(t *testing.T) {
	// Notification defaults on when the request leaves it out.
	env := newHandlerEnv(t)
	op := model.Operator{ID: uuid.NewString()}

	rec := env.do(t, op, http.MethodPost, "/chats/"+env.chat.ID+"/takeover", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result model.TakeoverResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !result.NotificationSent {
		t.Fatal("notification not sent with notify default on")
	}

	// A deployment configured for silent takeovers sends nothing.
	quiet := newHandlerEnvNotify(t, false)
	rec = quiet.do(t, op, http.MethodPost, "/chats/"+quiet.chat.ID+"/takeover", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.NotificationSent {
		t.Fatal("notification sent despite notify default off")
	}
}

func TestTakeoverEndpointConflict(t *testing.T) {
	env := newHandlerEnv(t)
	first := model.Operator{ID: uuid.NewString()}
	second := model.Operator{ID: uuid.NewString()}

	if rec := env.do(t, first, http.MethodPost, "/chats/"+env.chat.ID+"/takeover", nil); rec.Code != http.StatusOK {
		t.Fatalf("first takeover status = %d", rec.Code)
	}

	rec := env.do(t, second, http.MethodPost, "/chats/"+env.chat.ID+"/takeover", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestTakeoverEndpointUnknownChat(t *testing.T) {
	env := newHandlerEnv(t)
	op := model.Operator{ID: uuid.NewString()}

	rec := env.do(t, op, http.MethodPost, "/chats/"+uuid.NewString()+"/takeover", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestTakeoverEndpointInvalidChatID(t *testing.T) {
	env := newHandlerEnv(t)
	op := model.Operator{ID: uuid.NewString()}

	rec := env.do(t, op, http.MethodPost, "/chats/not-a-uuid/takeover", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestReleaseEndpointWithoutTakeover(t *testing.T) {
	env := newHandlerEnv(t)
	op := model.Operator{ID: uuid.NewString()}

	rec := env.do(t, op, http.MethodPost, "/chats/"+env.chat.ID+"/release", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestSendMessageEndpoint(t *testing.T) {
	env := newHandlerEnv(t)
	op := model.Operator{ID: uuid.NewString()}

	if rec := env.do(t, op, http.MethodPost, "/chats/"+env.chat.ID+"/takeover", nil); rec.Code != http.StatusOK {
		t.Fatalf("takeover status = %d", rec.Code)
	}

	rec := env.do(t, op, http.MethodPost, "/chats/"+env.chat.ID+"/messages", model.SendManagerMessageRequest{Content: "on my way"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var msg model.Message
	if err := json.NewDecoder(rec.Body).Decode(&msg); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if msg.Content != "on my way" || msg.SenderType != model.SenderManager {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestSendMessageEndpointGuards(t *testing.T) {
	env := newHandlerEnv(t)
	owner := model.Operator{ID: uuid.NewString()}
	other := model.Operator{ID: uuid.NewString()}
	path := "/chats/" + env.chat.ID + "/messages"
	body := model.SendManagerMessageRequest{Content: "hello"}

	// AI mode: the takeover must come first.
	if rec := env.do(t, owner, http.MethodPost, path, body); rec.Code != http.StatusConflict {
		t.Fatalf("AI-mode send status = %d, want 409", rec.Code)
	}

	if rec := env.do(t, owner, http.MethodPost, "/chats/"+env.chat.ID+"/takeover", nil); rec.Code != http.StatusOK {
		t.Fatalf("takeover status = %d", rec.Code)
	}

	// Another operator may not message the owner's chat.
	if rec := env.do(t, other, http.MethodPost, path, body); rec.Code != http.StatusForbidden {
		t.Fatalf("non-owner send status = %d, want 403", rec.Code)
	}

	// Empty content is rejected before the service runs.
	if rec := env.do(t, owner, http.MethodPost, path, model.SendManagerMessageRequest{Content: ""}); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty send status = %d, want 400", rec.Code)
	}
}

func TestExtendEndpoint(t *testing.T) {
	env := newHandlerEnv(t)
	op := model.Operator{ID: uuid.NewString()}

	if rec := env.do(t, op, http.MethodPost, "/chats/"+env.chat.ID+"/takeover", nil); rec.Code != http.StatusOK {
		t.Fatalf("takeover status = %d", rec.Code)
	}

	rec := env.do(t, op, http.MethodPost, "/chats/"+env.chat.ID+"/extend", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}
