// Package store defines the persistence interfaces for the handoff platform
// and provides Postgres and in-memory implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/autoline-ai/handoff-platform/internal/model"
)

var (
	// ErrNotFound is returned when a row does not exist or belongs to a
	// different tenant.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited is returned by InsertManagerMessage when the sliding
	// window is full.
	ErrRateLimited = errors.New("rate limited")

	// ErrNotManagerMode is returned by InsertManagerMessage when the locked
	// chat row is no longer in manager mode at write time.
	ErrNotManagerMode = errors.New("chat not in manager mode")

	// ErrWrongOperator is returned by InsertManagerMessage when the locked
	// chat row is held by a different operator at write time.
	ErrWrongOperator = errors.New("chat taken by another operator")
)

// ChatStore persists chats. UpdateChatLocked is the only way takeover fields
// are mutated: it re-reads the row under the chat's exclusive lock, applies
// fn, and persists the result, so no two mutations of the same chat ever
// interleave.
type ChatStore interface {
	CreateChat(ctx context.Context, chat *model.Chat) error
	GetChat(ctx context.Context, tenantID, chatID string) (*model.Chat, error)
	GetChatByTelegramID(ctx context.Context, tenantID string, telegramChatID int64) (*model.Chat, error)
	ListChats(ctx context.Context, tenantID string, limit, offset int) ([]model.Chat, int, error)
	ListExpiredTakeovers(ctx context.Context, now time.Time) ([]model.Chat, error)
	UpdateChatLocked(ctx context.Context, tenantID, chatID string, fn func(*model.Chat) error) (*model.Chat, error)
}

// MessageStore persists messages. InsertManagerMessage re-checks mode and
// ownership and performs the sliding window count and the insert under the
// chat's exclusive scope, so a release landing after the caller's guard
// cannot let a manager message through, and two concurrent sends cannot both
// observe a count just below the limit.
type MessageStore interface {
	InsertMessage(ctx context.Context, msg *model.Message) error
	InsertManagerMessage(ctx context.Context, msg *model.Message, limit int, window time.Duration) error
	ListMessages(ctx context.Context, tenantID, chatID string, limit, offset int) ([]model.Message, int, error)
	CountManagerMessagesSince(ctx context.Context, chatID, operatorID string, since time.Time) (int64, error)
}

// TenantStore reads tenant records.
type TenantStore interface {
	GetTenant(ctx context.Context, id string) (*model.Tenant, error)
	GetTenantByBotToken(ctx context.Context, token string) (*model.Tenant, error)
}

// ClientStore persists end-user client records.
type ClientStore interface {
	GetOrCreateClient(ctx context.Context, tenantID string, telegramUserID int64, name string) (*model.Client, error)
}

// BookingStore reads service bookings.
type BookingStore interface {
	ListBookings(ctx context.Context, tenantID string, limit, offset int) ([]model.Booking, int, error)
	ListBookingsByClient(ctx context.Context, tenantID, clientID string, limit, offset int) ([]model.Booking, int, error)
}

// AnalyticsStore appends analytics events.
type AnalyticsStore interface {
	InsertAnalyticsEvent(ctx context.Context, event *model.AnalyticsEvent) error
}

// Store aggregates all persistence interfaces. Ping reports whether the
// backing datastore is reachable; readiness checks use it.
type Store interface {
	ChatStore
	MessageStore
	TenantStore
	ClientStore
	BookingStore
	AnalyticsStore

	Ping(ctx context.Context) error
}
