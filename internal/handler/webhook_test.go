package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/autoline-ai/handoff-platform/internal/model"
	"github.com/autoline-ai/handoff-platform/internal/service"
	"github.com/autoline-ai/handoff-platform/internal/store"
	"github.com/autoline-ai/handoff-platform/pkg/logger"
)

func newWebhookEnv(t *testing.T) (*chi.Mux, *store.MemoryStore, *model.Tenant) {
	t.Helper()

	st := store.NewMemoryStore()
	tenant := &model.Tenant{ID: uuid.NewString(), Name: "Garage One", TelegramBotToken: "111:webhook-token"}
	st.PutTenant(tenant)

	log := logger.NewNop()
	assistant := service.NewAssistantService(st, nil, okMessenger{}, nil, log)
	h := NewWebhookHandler(st, assistant, log)

	r := chi.NewRouter()
	r.Post("/webhook/telegram/{token}", h.Receive)
	return r, st, tenant
}

func postUpdate(t *testing.T, router *chi.Mux, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/telegram/"+token, strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

const sampleUpdate = `{
	"update_id": 1,
	"message": {
		"message_id": 10,
		"from": {"id": 7001, "first_name": "Ada", "last_name": "Lovelace"},
		"chat": {"id": 5001},
		"text": "is my car ready?"
	}
}`

func TestWebhookCreatesChatAndStoresMessage(t *testing.T) {
	router, st, tenant := newWebhookEnv(t)

	rec := postUpdate(t, router, tenant.TelegramBotToken, sampleUpdate)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	ctx := context.Background()
	chat, err := st.GetChatByTelegramID(ctx, tenant.ID, 5001)
	if err != nil {
		t.Fatalf("chat not created: %v", err)
	}
	if chat.Mode != model.ModeAI {
		t.Fatalf("mode = %q, want %q", chat.Mode, model.ModeAI)
	}

	msgs, total, err := st.ListMessages(ctx, tenant.ID, chat.ID, 10, 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if total != 1 || msgs[0].Content != "is my car ready?" || msgs[0].Role != model.RoleUser {
		t.Fatalf("messages = %+v", msgs)
	}
}

func TestWebhookReusesExistingChat(t *testing.T) {
	router, st, tenant := newWebhookEnv(t)
	ctx := context.Background()

	postUpdate(t, router, tenant.TelegramBotToken, sampleUpdate)
	postUpdate(t, router, tenant.TelegramBotToken, sampleUpdate)

	chat, err := st.GetChatByTelegramID(ctx, tenant.ID, 5001)
	if err != nil {
		t.Fatalf("chat lookup: %v", err)
	}
	_, total, err := st.ListMessages(ctx, tenant.ID, chat.ID, 10, 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if total != 2 {
		t.Fatalf("got %d messages, want 2 in one chat", total)
	}
}

func TestWebhookUnknownTokenAcknowledged(t *testing.T) {
	router, st, tenant := newWebhookEnv(t)

	rec := postUpdate(t, router, "999:wrong-token", sampleUpdate)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if _, err := st.GetChatByTelegramID(context.Background(), tenant.ID, 5001); err == nil {
		t.Fatal("chat created for unknown token")
	}
}

func TestWebhookIgnoresNonMessageUpdate(t *testing.T) {
	router, st, tenant := newWebhookEnv(t)

	rec := postUpdate(t, router, tenant.TelegramBotToken, `{"update_id": 2}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if _, err := st.GetChatByTelegramID(context.Background(), tenant.ID, 5001); err == nil {
		t.Fatal("chat created for empty update")
	}
}
