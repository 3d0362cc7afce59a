package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/autoline-ai/handoff-platform/internal/model"
	natsclient "github.com/autoline-ai/handoff-platform/internal/nats"
	"github.com/autoline-ai/handoff-platform/internal/store"
	"github.com/autoline-ai/handoff-platform/internal/telegram"
	"github.com/autoline-ai/handoff-platform/pkg/logger"
	"github.com/autoline-ai/handoff-platform/pkg/metrics"
)

// ManagerService is the messaging gate for human operators. It validates
// takeover ownership and enforces the per-(chat, operator) sliding-window
// rate limit before a message is persisted and forwarded.
type ManagerService struct {
	store       store.Store
	messenger   telegram.Messenger
	takeover    *TakeoverService
	analytics   *Analytics
	broadcaster natsclient.Broadcaster
	rateLimit   int
	rateWindow  time.Duration
	logger      *logger.Logger
	now         func() time.Time
}

// NewManagerService creates the messaging gate.
func NewManagerService(
	s store.Store,
	messenger telegram.Messenger,
	takeover *TakeoverService,
	analytics *Analytics,
	broadcaster natsclient.Broadcaster,
	rateLimit int,
	rateWindow time.Duration,
	log *logger.Logger,
) *ManagerService {
	return &ManagerService{
		store:       s,
		messenger:   messenger,
		takeover:    takeover,
		analytics:   analytics,
		broadcaster: broadcaster,
		rateLimit:   rateLimit,
		rateWindow:  rateWindow,
		logger:      log.Named("manager"),
		now:         time.Now,
	}
}

// SendMessage persists and forwards one operator message. Preconditions are
// checked in order: manager mode, ownership, rate limit. A Telegram dispatch
// failure propagates — the operator must see their message did not reach the
// client — while the persisted message stands.
func (m *ManagerService) SendMessage(ctx context.Context, tenantID, chatID string, operator model.Operator, text string) (*model.Message, error) {
	chat, err := m.store.GetChat(ctx, tenantID, chatID)
	if err != nil {
		return nil, err
	}

	if !chat.IsManagerMode() {
		return nil, ErrNotInManagerMode
	}
	if chat.TakenBy == nil || *chat.TakenBy != operator.ID {
		return nil, ErrNotTakenByUser
	}

	msg := &model.Message{
		ID:         uuid.Must(uuid.NewV7()).String(),
		ChatID:     chatID,
		TenantID:   tenantID,
		Role:       model.RoleAssistant,
		SenderType: model.SenderManager,
		Sender:     &operator.ID,
		Content:    text,
		CreatedAt:  m.now().UTC(),
	}

	// The store re-checks mode and ownership on the locked row, so a release
	// landing after the guards above still rejects the write.
	if err := m.store.InsertManagerMessage(ctx, msg, m.rateLimit, m.rateWindow); err != nil {
		switch {
		case errors.Is(err, store.ErrRateLimited):
			metrics.RateLimitRejections.WithLabelValues(tenantID).Inc()
			return nil, ErrRateLimitExceeded
		case errors.Is(err, store.ErrNotManagerMode):
			return nil, ErrNotInManagerMode
		case errors.Is(err, store.ErrWrongOperator):
			return nil, ErrNotTakenByUser
		}
		return nil, err
	}

	tenant, err := m.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("tenant lookup failed: %w", err)
	}

	res, err := m.messenger.SendMessage(ctx, tenant.TelegramBotToken, chat.TelegramChatID, text)
	if err != nil {
		return nil, fmt.Errorf("manager message dispatch failed: %w", err)
	}
	if !res.OK {
		return nil, fmt.Errorf("manager message not delivered: %s", res.Description)
	}

	if err := m.takeover.ExtendTimeout(ctx, tenantID, chatID); err != nil {
		m.logger.Warn("failed to extend takeover timeout",
			zap.String("chat_id", chatID),
			zap.Error(err),
		)
	}

	if m.broadcaster != nil {
		if err := m.broadcaster.BroadcastMessage(msg); err != nil {
			m.logger.Debug("message broadcast failed", zap.String("chat_id", chatID), zap.Error(err))
		}
	}

	m.analytics.Track(ctx, tenantID, model.EventManagerMessageSent, chatID, map[string]any{
		"taken_by_id": operator.ID,
	})

	metrics.ManagerMessagesTotal.WithLabelValues(tenantID).Inc()

	return msg, nil
}

// RemainingQuota reports how many messages the operator may still send on
// this chat within the current window. Used by the dashboard.
func (m *ManagerService) RemainingQuota(ctx context.Context, chatID, operatorID string) (int, error) {
	since := m.now().UTC().Add(-m.rateWindow)
	count, err := m.store.CountManagerMessagesSince(ctx, chatID, operatorID, since)
	if err != nil {
		return 0, err
	}
	remaining := m.rateLimit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
