package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/autoline-ai/handoff-platform/internal/middleware"
	"github.com/autoline-ai/handoff-platform/internal/model"
	"github.com/autoline-ai/handoff-platform/internal/service"
	"github.com/autoline-ai/handoff-platform/internal/store"
	"github.com/autoline-ai/handoff-platform/pkg/logger"
)

// TakeoverHandler handles takeover lifecycle and manager messaging endpoints.
type TakeoverHandler struct {
	takeover      *service.TakeoverService
	manager       *service.ManagerService
	notifyDefault bool
	logger        *logger.Logger
}

// NewTakeoverHandler creates a new takeover handler. notifyDefault applies
// when a takeover request does not say whether to notify the client.
func NewTakeoverHandler(takeover *service.TakeoverService, manager *service.ManagerService, notifyDefault bool, log *logger.Logger) *TakeoverHandler {
	return &TakeoverHandler{
		takeover:      takeover,
		manager:       manager,
		notifyDefault: notifyDefault,
		logger:        log,
	}
}

// Takeover handles POST /api/v1/chats/:id/takeover
func (h *TakeoverHandler) Takeover(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	operator := middleware.GetOperator(ctx)
	chatID := chi.URLParam(r, "id")

	if err := middleware.ValidateChatID(chatID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := model.TakeoverRequest{NotifyClient: h.notifyDefault}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if err := middleware.ValidateTimeoutMinutes(req.TimeoutMinutes); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.takeover.Takeover(ctx, tenantID, chatID, operator, service.TakeoverOptions{
		Timeout:      time.Duration(req.TimeoutMinutes) * time.Minute,
		NotifyClient: req.NotifyClient,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Release handles POST /api/v1/chats/:id/release
func (h *TakeoverHandler) Release(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	chatID := chi.URLParam(r, "id")

	if err := middleware.ValidateChatID(chatID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	chat, err := h.takeover.Release(ctx, tenantID, chatID, false)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chat)
}

// Extend handles POST /api/v1/chats/:id/extend
func (h *TakeoverHandler) Extend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	chatID := chi.URLParam(r, "id")

	if err := middleware.ValidateChatID(chatID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.takeover.ExtendTimeout(ctx, tenantID, chatID); err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SendMessage handles POST /api/v1/chats/:id/messages
func (h *TakeoverHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	operator := middleware.GetOperator(ctx)
	chatID := chi.URLParam(r, "id")

	if err := middleware.ValidateChatID(chatID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.SendManagerMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.manager.SendMessage(ctx, tenantID, chatID, operator, req.Content)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

func (h *TakeoverHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "chat not found")
	case errors.Is(err, service.ErrAlreadyTaken):
		writeError(w, http.StatusConflict, "this chat is already being handled")
	case errors.Is(err, service.ErrNotTaken):
		writeError(w, http.StatusConflict, "this chat is not being handled")
	case errors.Is(err, service.ErrNotInManagerMode):
		writeError(w, http.StatusConflict, "take the chat over before messaging")
	case errors.Is(err, service.ErrNotTakenByUser):
		writeError(w, http.StatusForbidden, "this chat is handled by another operator")
	case errors.Is(err, service.ErrRateLimitExceeded):
		writeError(w, http.StatusTooManyRequests, "you've reached the hourly message limit")
	default:
		h.logger.Error("takeover operation failed")
		writeError(w, http.StatusInternalServerError, "operation failed")
	}
}
