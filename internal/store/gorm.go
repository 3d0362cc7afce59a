package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/autoline-ai/handoff-platform/internal/model"
	"github.com/autoline-ai/handoff-platform/pkg/logger"
)

// GormStore is the Postgres-backed Store implementation.
type GormStore struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewGormStore opens a Postgres connection and migrates the schema.
func NewGormStore(databaseURL string, log *logger.Logger) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&model.Tenant{},
		&model.Client{},
		&model.Chat{},
		&model.Message{},
		&model.Booking{},
		&model.AnalyticsEvent{},
	); err != nil {
		return nil, err
	}

	return &GormStore{db: db, log: log.Named("store")}, nil
}

// Ping checks database connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// CreateChat inserts a new chat row.
func (s *GormStore) CreateChat(ctx context.Context, chat *model.Chat) error {
	return s.db.WithContext(ctx).Create(chat).Error
}

// GetChat loads a chat scoped by tenant.
func (s *GormStore) GetChat(ctx context.Context, tenantID, chatID string) (*model.Chat, error) {
	var chat model.Chat
	err := s.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", chatID, tenantID).
		Take(&chat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// GetChatByTelegramID loads a chat by its Telegram chat id.
func (s *GormStore) GetChatByTelegramID(ctx context.Context, tenantID string, telegramChatID int64) (*model.Chat, error) {
	var chat model.Chat
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND telegram_chat_id = ?", tenantID, telegramChatID).
		Take(&chat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// ListChats returns a page of the tenant's chats, most recently updated first.
func (s *GormStore) ListChats(ctx context.Context, tenantID string, limit, offset int) ([]model.Chat, int, error) {
	var total int64
	if err := s.db.WithContext(ctx).
		Model(&model.Chat{}).
		Where("tenant_id = ?", tenantID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var chats []model.Chat
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("updated_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&chats).Error; err != nil {
		return nil, 0, err
	}
	return chats, int(total), nil
}

// ListExpiredTakeovers returns chats still in manager mode whose deadline has
// passed. Used by the sweeper; the actual release re-checks state under lock.
func (s *GormStore) ListExpiredTakeovers(ctx context.Context, now time.Time) ([]model.Chat, error) {
	var chats []model.Chat
	err := s.db.WithContext(ctx).
		Where("mode = ? AND manager_active_until IS NOT NULL AND manager_active_until <= ?", model.ModeManager, now).
		Find(&chats).Error
	if err != nil {
		return nil, err
	}
	return chats, nil
}

// UpdateChatLocked re-reads the chat under SELECT ... FOR UPDATE, applies fn,
// and saves the result within one transaction.
func (s *GormStore) UpdateChatLocked(ctx context.Context, tenantID, chatID string, fn func(*model.Chat) error) (*model.Chat, error) {
	var out *model.Chat
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var chat model.Chat
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND tenant_id = ?", chatID, tenantID).
			Take(&chat).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if err := fn(&chat); err != nil {
			return err
		}

		chat.UpdatedAt = time.Now().UTC()
		if err := tx.Save(&chat).Error; err != nil {
			return err
		}
		out = &chat
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// InsertMessage appends a message.
func (s *GormStore) InsertMessage(ctx context.Context, msg *model.Message) error {
	return s.db.WithContext(ctx).Create(msg).Error
}

// InsertManagerMessage re-verifies mode and ownership, counts the operator's
// messages on this chat within the trailing window, and inserts the new one,
// all inside a transaction holding the chat row lock so concurrent sends and
// releases serialize per chat.
func (s *GormStore) InsertManagerMessage(ctx context.Context, msg *model.Message, limit int, window time.Duration) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var chat model.Chat
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", msg.ChatID).
			Take(&chat).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		// A release may land between the caller's guard and this transaction;
		// the locked row is the source of truth at write time.
		if chat.Mode != model.ModeManager {
			return ErrNotManagerMode
		}
		if chat.TakenBy == nil || msg.Sender == nil || *chat.TakenBy != *msg.Sender {
			return ErrWrongOperator
		}

		since := msg.CreatedAt.Add(-window)
		var count int64
		if err := tx.Model(&model.Message{}).
			Where("chat_id = ? AND sender_type = ? AND sender = ? AND created_at > ?",
				msg.ChatID, model.SenderManager, msg.Sender, since).
			Count(&count).Error; err != nil {
			return err
		}
		if count >= int64(limit) {
			return ErrRateLimited
		}

		return tx.Create(msg).Error
	})
}

// ListMessages returns a page of messages in a chat, oldest first.
func (s *GormStore) ListMessages(ctx context.Context, tenantID, chatID string, limit, offset int) ([]model.Message, int, error) {
	var total int64
	if err := s.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("chat_id = ? AND tenant_id = ?", chatID, tenantID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var msgs []model.Message
	if err := s.db.WithContext(ctx).
		Where("chat_id = ? AND tenant_id = ?", chatID, tenantID).
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&msgs).Error; err != nil {
		return nil, 0, err
	}
	return msgs, int(total), nil
}

// CountManagerMessagesSince counts an operator's manager messages on a chat
// created after the given time.
func (s *GormStore) CountManagerMessagesSince(ctx context.Context, chatID, operatorID string, since time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("chat_id = ? AND sender_type = ? AND sender = ? AND created_at > ?",
			chatID, model.SenderManager, operatorID, since).
		Count(&count).Error
	return count, err
}

// GetTenant loads a tenant by id.
func (s *GormStore) GetTenant(ctx context.Context, id string) (*model.Tenant, error) {
	var tenant model.Tenant
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// GetTenantByBotToken resolves a tenant from its Telegram bot token.
func (s *GormStore) GetTenantByBotToken(ctx context.Context, token string) (*model.Tenant, error) {
	var tenant model.Tenant
	err := s.db.WithContext(ctx).Where("telegram_bot_token = ?", token).Take(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// GetOrCreateClient finds the tenant's client for a Telegram user, creating
// the record on first contact.
func (s *GormStore) GetOrCreateClient(ctx context.Context, tenantID string, telegramUserID int64, name string) (*model.Client, error) {
	var client model.Client
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND telegram_user_id = ?", tenantID, telegramUserID).
		Take(&client).Error
	if err == nil {
		return &client, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	client = model.Client{
		ID:             newID(),
		TenantID:       tenantID,
		TelegramUserID: telegramUserID,
		Name:           name,
	}
	if err := s.db.WithContext(ctx).Create(&client).Error; err != nil {
		return nil, err
	}
	return &client, nil
}

// ListBookings returns a page of the tenant's bookings, soonest first.
func (s *GormStore) ListBookings(ctx context.Context, tenantID string, limit, offset int) ([]model.Booking, int, error) {
	var total int64
	if err := s.db.WithContext(ctx).
		Model(&model.Booking{}).
		Where("tenant_id = ?", tenantID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var bookings []model.Booking
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("scheduled_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&bookings).Error; err != nil {
		return nil, 0, err
	}
	return bookings, int(total), nil
}

// ListBookingsByClient returns a page of one client's bookings, soonest first.
func (s *GormStore) ListBookingsByClient(ctx context.Context, tenantID, clientID string, limit, offset int) ([]model.Booking, int, error) {
	var total int64
	if err := s.db.WithContext(ctx).
		Model(&model.Booking{}).
		Where("tenant_id = ? AND client_id = ?", tenantID, clientID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var bookings []model.Booking
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND client_id = ?", tenantID, clientID).
		Order("scheduled_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&bookings).Error; err != nil {
		return nil, 0, err
	}
	return bookings, int(total), nil
}

// InsertAnalyticsEvent appends an analytics event.
func (s *GormStore) InsertAnalyticsEvent(ctx context.Context, event *model.AnalyticsEvent) error {
	return s.db.WithContext(ctx).Create(event).Error
}
