// Package handler provides HTTP handlers for the API.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/autoline-ai/handoff-platform/internal/middleware"
	"github.com/autoline-ai/handoff-platform/internal/model"
	"github.com/autoline-ai/handoff-platform/internal/store"
	"github.com/autoline-ai/handoff-platform/pkg/logger"
)

// ChatHandler handles chat and booking read endpoints.
type ChatHandler struct {
	store  store.Store
	logger *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(s store.Store, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		store:  s,
		logger: log,
	}
}

func pagination(r *http.Request) (limit, offset int) {
	limit = 20
	offset = 0

	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}

// List handles GET /api/v1/chats
func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	limit, offset := pagination(r)

	chats, total, err := h.store.ListChats(ctx, tenantID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list chats")
		writeError(w, http.StatusInternalServerError, "failed to list chats")
		return
	}

	writeJSON(w, http.StatusOK, model.ListChatsResponse{
		Chats:   chats,
		Total:   total,
		HasMore: offset+len(chats) < total,
	})
}

// Get handles GET /api/v1/chats/:id
func (h *ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	chatID := chi.URLParam(r, "id")

	if err := middleware.ValidateChatID(chatID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	chat, err := h.store.GetChat(ctx, tenantID, chatID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "chat not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load chat")
		return
	}

	writeJSON(w, http.StatusOK, chat)
}

// Messages handles GET /api/v1/chats/:id/messages
func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	chatID := chi.URLParam(r, "id")

	if err := middleware.ValidateChatID(chatID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit, offset := pagination(r)

	msgs, total, err := h.store.ListMessages(ctx, tenantID, chatID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	writeJSON(w, http.StatusOK, model.ListMessagesResponse{
		Messages: msgs,
		Total:    total,
		HasMore:  offset+len(msgs) < total,
	})
}

// Bookings handles GET /api/v1/bookings
func (h *ChatHandler) Bookings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	limit, offset := pagination(r)

	var bookings []model.Booking
	var total int
	var err error
	if clientID := r.URL.Query().Get("client_id"); clientID != "" {
		bookings, total, err = h.store.ListBookingsByClient(ctx, tenantID, clientID, limit, offset)
	} else {
		bookings, total, err = h.store.ListBookings(ctx, tenantID, limit, offset)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list bookings")
		return
	}

	writeJSON(w, http.StatusOK, model.ListBookingsResponse{
		Bookings: bookings,
		Total:    total,
		HasMore:  offset+len(bookings) < total,
	})
}
