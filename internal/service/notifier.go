package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/autoline-ai/handoff-platform/internal/model"
	"github.com/autoline-ai/handoff-platform/internal/telegram"
	"github.com/autoline-ai/handoff-platform/pkg/logger"
	"github.com/autoline-ai/handoff-platform/pkg/metrics"
)

// NotificationKind selects the handoff notification template.
type NotificationKind string

const (
	NotifyTakeover NotificationKind = "takeover"
	NotifyRelease  NotificationKind = "release"
	NotifyTimeout  NotificationKind = "timeout"
)

const (
	takeoverTemplate      = "A specialist has joined the conversation and will assist you personally."
	takeoverNamedTemplate = "%s has joined the conversation and will assist you personally."
	releaseTemplate       = "The specialist has left the conversation. Our assistant will continue helping you."
	timeoutTemplate       = "The specialist session has ended. Our assistant is back to help you."
)

// Notifier sends short templated handoff notifications to the end user.
// Delivery failures never propagate: the state transition that triggered the
// notification has already committed, so failures degrade to sent=false.
type Notifier struct {
	messenger telegram.Messenger
	logger    *logger.Logger
}

// NewNotifier creates a notifier.
func NewNotifier(messenger telegram.Messenger, log *logger.Logger) *Notifier {
	return &Notifier{
		messenger: messenger,
		logger:    log.Named("notifier"),
	}
}

// Notify sends the templated message for kind to the chat's client. Returns
// whether delivery succeeded.
func (n *Notifier) Notify(ctx context.Context, tenant *model.Tenant, chat *model.Chat, kind NotificationKind, operator *model.Operator) bool {
	text := n.render(kind, operator)

	res, err := n.messenger.SendMessage(ctx, tenant.TelegramBotToken, chat.TelegramChatID, text)
	sent := err == nil && res != nil && res.OK
	if !sent {
		fields := []zap.Field{
			zap.String("operation", string(kind)),
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		} else if res != nil {
			fields = append(fields, zap.String("reason", res.Description))
		}
		n.logger.WithChat(tenant.ID, chat.ID).Warn("handoff notification not delivered", fields...)
	}

	metrics.RecordNotification(string(kind), sent)
	return sent
}

func (n *Notifier) render(kind NotificationKind, operator *model.Operator) string {
	switch kind {
	case NotifyTakeover:
		if operator != nil && operator.DisplayName != "" {
			return fmt.Sprintf(takeoverNamedTemplate, operator.DisplayName)
		}
		return takeoverTemplate
	case NotifyTimeout:
		return timeoutTemplate
	default:
		return releaseTemplate
	}
}
