package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/autoline-ai/handoff-platform/internal/model"
	"github.com/autoline-ai/handoff-platform/internal/service"
	"github.com/autoline-ai/handoff-platform/internal/store"
	"github.com/autoline-ai/handoff-platform/pkg/logger"
)

// telegramUpdate is the subset of the Bot API update we consume.
type telegramUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		MessageID int64 `json:"message_id"`
		From      *struct {
			ID        int64  `json:"id"`
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
		} `json:"from"`
		Chat *struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text string `json:"text"`
	} `json:"message"`
}

// WebhookHandler receives inbound Telegram updates. The tenant is resolved
// from the bot token in the URL, which only Telegram and the tenant know.
type WebhookHandler struct {
	store     store.Store
	assistant *service.AssistantService
	logger    *logger.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(s store.Store, assistant *service.AssistantService, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		store:     s,
		assistant: assistant,
		logger:    log,
	}
}

// Receive handles POST /webhook/telegram/:token
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := chi.URLParam(r, "token")

	tenant, err := h.store.GetTenantByBotToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		// Do not reveal whether the token exists.
		w.WriteHeader(http.StatusOK)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	var update telegramUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid update")
		return
	}

	// Telegram retries on non-2xx; acknowledge updates we cannot use.
	if update.Message == nil || update.Message.Chat == nil || update.Message.From == nil || update.Message.Text == "" {
		w.WriteHeader(http.StatusOK)
		return
	}

	name := update.Message.From.FirstName
	if update.Message.From.LastName != "" {
		name += " " + update.Message.From.LastName
	}

	client, err := h.store.GetOrCreateClient(ctx, tenant.ID, update.Message.From.ID, name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "client lookup failed")
		return
	}

	chat, err := h.store.GetChatByTelegramID(ctx, tenant.ID, update.Message.Chat.ID)
	if errors.Is(err, store.ErrNotFound) {
		chat = &model.Chat{
			ID:             uuid.Must(uuid.NewV7()).String(),
			TenantID:       tenant.ID,
			ClientID:       client.ID,
			TelegramChatID: update.Message.Chat.ID,
			Mode:           model.ModeAI,
			CreatedAt:      time.Now().UTC(),
		}
		if err := h.store.CreateChat(ctx, chat); err != nil {
			writeError(w, http.StatusInternalServerError, "chat creation failed")
			return
		}
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, "chat lookup failed")
		return
	}

	if err := h.assistant.HandleInbound(ctx, tenant, chat, update.Message.Text); err != nil {
		h.logger.Warn("inbound message handling failed",
			zap.String("tenant_id", tenant.ID),
			zap.String("chat_id", chat.ID),
			zap.Error(err),
		)
		// Acknowledge anyway: the user message is stored and a Telegram
		// retry would duplicate it.
	}

	w.WriteHeader(http.StatusOK)
}
