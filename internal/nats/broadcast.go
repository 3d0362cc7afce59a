package nats

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/autoline-ai/handoff-platform/internal/model"
	"github.com/autoline-ai/handoff-platform/pkg/logger"
)

const (
	// BroadcastPrefix is the subject prefix for live chat updates.
	BroadcastPrefix = "chat"
)

// Broadcaster publishes chat updates for live subscribers (operator
// dashboards). Delivery is best effort; durable history lives in the store.
type Broadcaster interface {
	BroadcastMessage(msg *model.Message) error
	BroadcastModeChange(chat *model.Chat) error
}

// NATSBroadcaster is a core-NATS Broadcaster.
type NATSBroadcaster struct {
	client *Client
	logger *logger.Logger
}

// NewBroadcaster creates a broadcaster on an existing connection.
func NewBroadcaster(client *Client, log *logger.Logger) *NATSBroadcaster {
	return &NATSBroadcaster{client: client, logger: log.Named("broadcast")}
}

// MessageSubject returns the subject new messages are broadcast on.
func MessageSubject(tenantID, chatID string) string {
	return fmt.Sprintf("%s.%s.%s.message", BroadcastPrefix, tenantID, chatID)
}

// ModeSubject returns the subject mode changes are broadcast on.
func ModeSubject(tenantID, chatID string) string {
	return fmt.Sprintf("%s.%s.%s.mode", BroadcastPrefix, tenantID, chatID)
}

// TenantFilter returns the wildcard subject covering all of a tenant's chats.
func TenantFilter(tenantID string) string {
	return fmt.Sprintf("%s.%s.>", BroadcastPrefix, tenantID)
}

// BroadcastMessage publishes a new message to live subscribers.
func (b *NATSBroadcaster) BroadcastMessage(msg *model.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return b.client.Conn().Publish(MessageSubject(msg.TenantID, msg.ChatID), data)
}

// BroadcastModeChange publishes a chat's new mode to live subscribers.
func (b *NATSBroadcaster) BroadcastModeChange(chat *model.Chat) error {
	data, err := json.Marshal(chat)
	if err != nil {
		return fmt.Errorf("failed to marshal chat: %w", err)
	}
	return b.client.Conn().Publish(ModeSubject(chat.TenantID, chat.ID), data)
}

// SubscribeTenant delivers all live updates for a tenant's chats to handler.
func (b *NATSBroadcaster) SubscribeTenant(tenantID string, handler func(subject string, data []byte)) (*nats.Subscription, error) {
	sub, err := b.client.Conn().Subscribe(TenantFilter(tenantID), func(m *nats.Msg) {
		handler(m.Subject, m.Data)
	})
	if err != nil {
		b.logger.Error("failed to subscribe", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, err
	}
	return sub, nil
}
