package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/autoline-ai/handoff-platform/internal/model"
)

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// MemoryStore is an in-process Store implementation. It serializes chat
// mutation with a per-chat mutex, which satisfies the exclusive-lock contract
// for single-process deployments and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	chats     map[string]*model.Chat
	messages  map[string][]*model.Message // keyed by chat id, insertion order
	tenants   map[string]*model.Tenant
	clients   map[string]*model.Client
	bookings  map[string]*model.Booking
	events    []*model.AnalyticsEvent
	chatLocks map[string]*sync.Mutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chats:     make(map[string]*model.Chat),
		messages:  make(map[string][]*model.Message),
		tenants:   make(map[string]*model.Tenant),
		clients:   make(map[string]*model.Client),
		bookings:  make(map[string]*model.Booking),
		chatLocks: make(map[string]*sync.Mutex),
	}
}

// Ping always succeeds; the in-memory store has no backing connection.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) lockFor(chatID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.chatLocks[chatID]
	if !ok {
		l = &sync.Mutex{}
		s.chatLocks[chatID] = l
	}
	return l
}

// CreateChat inserts a new chat.
func (s *MemoryStore) CreateChat(ctx context.Context, chat *model.Chat) error {
	now := time.Now().UTC()
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = now
	}
	chat.UpdatedAt = now
	cp := *chat

	s.mu.Lock()
	s.chats[chat.ID] = &cp
	s.mu.Unlock()
	return nil
}

// GetChat loads a copy of a chat scoped by tenant.
func (s *MemoryStore) GetChat(ctx context.Context, tenantID, chatID string) (*model.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chat, ok := s.chats[chatID]
	if !ok || chat.TenantID != tenantID {
		return nil, ErrNotFound
	}
	cp := *chat
	return &cp, nil
}

// GetChatByTelegramID loads a chat by its Telegram chat id.
func (s *MemoryStore) GetChatByTelegramID(ctx context.Context, tenantID string, telegramChatID int64) (*model.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, chat := range s.chats {
		if chat.TenantID == tenantID && chat.TelegramChatID == telegramChatID {
			cp := *chat
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// ListChats returns a page of the tenant's chats.
func (s *MemoryStore) ListChats(ctx context.Context, tenantID string, limit, offset int) ([]model.Chat, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var chats []model.Chat
	for _, chat := range s.chats {
		if chat.TenantID == tenantID {
			chats = append(chats, *chat)
		}
	}
	sort.Slice(chats, func(i, j int) bool {
		return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
	})

	total := len(chats)
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return chats[start:end], total, nil
}

// ListExpiredTakeovers returns chats in manager mode with a past deadline.
func (s *MemoryStore) ListExpiredTakeovers(ctx context.Context, now time.Time) ([]model.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var chats []model.Chat
	for _, chat := range s.chats {
		if chat.Mode == model.ModeManager && chat.ManagerActiveUntil != nil && !chat.ManagerActiveUntil.After(now) {
			chats = append(chats, *chat)
		}
	}
	return chats, nil
}

// UpdateChatLocked applies fn to the chat under its exclusive lock.
func (s *MemoryStore) UpdateChatLocked(ctx context.Context, tenantID, chatID string, fn func(*model.Chat) error) (*model.Chat, error) {
	l := s.lockFor(chatID)
	l.Lock()
	defer l.Unlock()

	s.mu.RLock()
	chat, ok := s.chats[chatID]
	s.mu.RUnlock()
	if !ok || chat.TenantID != tenantID {
		return nil, ErrNotFound
	}

	// Work on a copy so a failed fn leaves the stored row untouched.
	cp := *chat
	if err := fn(&cp); err != nil {
		return nil, err
	}
	cp.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	s.chats[chatID] = &cp
	s.mu.Unlock()

	out := cp
	return &out, nil
}

// InsertMessage appends a message.
func (s *MemoryStore) InsertMessage(ctx context.Context, msg *model.Message) error {
	if msg.ID == "" {
		msg.ID = newID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	cp := *msg

	s.mu.Lock()
	s.messages[msg.ChatID] = append(s.messages[msg.ChatID], &cp)
	s.mu.Unlock()
	return nil
}

// InsertManagerMessage re-verifies mode and ownership, counts the sliding
// window, and inserts, all under the chat's exclusive lock, matching the
// Postgres implementation's transaction scope.
func (s *MemoryStore) InsertManagerMessage(ctx context.Context, msg *model.Message, limit int, window time.Duration) error {
	l := s.lockFor(msg.ChatID)
	l.Lock()
	defer l.Unlock()

	since := msg.CreatedAt.Add(-window)

	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[msg.ChatID]
	if !ok {
		return ErrNotFound
	}

	// The caller's guard ran on an unlocked read; the locked row decides.
	if chat.Mode != model.ModeManager {
		return ErrNotManagerMode
	}
	if chat.TakenBy == nil || msg.Sender == nil || *chat.TakenBy != *msg.Sender {
		return ErrWrongOperator
	}

	count := 0
	for _, m := range s.messages[msg.ChatID] {
		if m.SenderType == model.SenderManager && m.Sender != nil && msg.Sender != nil &&
			*m.Sender == *msg.Sender && m.CreatedAt.After(since) {
			count++
		}
	}
	if count >= limit {
		return ErrRateLimited
	}

	cp := *msg
	s.messages[msg.ChatID] = append(s.messages[msg.ChatID], &cp)
	return nil
}

// ListMessages returns a page of messages in a chat, oldest first.
func (s *MemoryStore) ListMessages(ctx context.Context, tenantID, chatID string, limit, offset int) ([]model.Message, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var msgs []model.Message
	for _, m := range s.messages[chatID] {
		if m.TenantID == tenantID {
			msgs = append(msgs, *m)
		}
	}

	total := len(msgs)
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return msgs[start:end], total, nil
}

// CountManagerMessagesSince counts an operator's manager messages on a chat.
func (s *MemoryStore) CountManagerMessagesSince(ctx context.Context, chatID, operatorID string, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, m := range s.messages[chatID] {
		if m.SenderType == model.SenderManager && m.Sender != nil && *m.Sender == operatorID && m.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

// PutTenant stores a tenant, for wiring and tests.
func (s *MemoryStore) PutTenant(tenant *model.Tenant) {
	cp := *tenant
	s.mu.Lock()
	s.tenants[tenant.ID] = &cp
	s.mu.Unlock()
}

// GetTenant loads a tenant by id.
func (s *MemoryStore) GetTenant(ctx context.Context, id string) (*model.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tenant, ok := s.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tenant
	return &cp, nil
}

// GetTenantByBotToken resolves a tenant from its Telegram bot token.
func (s *MemoryStore) GetTenantByBotToken(ctx context.Context, token string) (*model.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tenant := range s.tenants {
		if tenant.TelegramBotToken == token {
			cp := *tenant
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// GetOrCreateClient finds or creates a client for a Telegram user.
func (s *MemoryStore) GetOrCreateClient(ctx context.Context, tenantID string, telegramUserID int64, name string) (*model.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.clients {
		if c.TenantID == tenantID && c.TelegramUserID == telegramUserID {
			cp := *c
			return &cp, nil
		}
	}

	client := &model.Client{
		ID:             newID(),
		TenantID:       tenantID,
		TelegramUserID: telegramUserID,
		Name:           name,
		CreatedAt:      time.Now().UTC(),
	}
	s.clients[client.ID] = client
	cp := *client
	return &cp, nil
}

// PutBooking stores a booking, for wiring and tests.
func (s *MemoryStore) PutBooking(booking *model.Booking) {
	cp := *booking
	s.mu.Lock()
	s.bookings[booking.ID] = &cp
	s.mu.Unlock()
}

// ListBookings returns a page of the tenant's bookings, soonest first.
func (s *MemoryStore) ListBookings(ctx context.Context, tenantID string, limit, offset int) ([]model.Booking, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var bookings []model.Booking
	for _, b := range s.bookings {
		if b.TenantID == tenantID {
			bookings = append(bookings, *b)
		}
	}
	sort.Slice(bookings, func(i, j int) bool {
		return bookings[i].ScheduledAt.Before(bookings[j].ScheduledAt)
	})

	total := len(bookings)
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return bookings[start:end], total, nil
}

// ListBookingsByClient returns a page of one client's bookings, soonest first.
func (s *MemoryStore) ListBookingsByClient(ctx context.Context, tenantID, clientID string, limit, offset int) ([]model.Booking, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var bookings []model.Booking
	for _, b := range s.bookings {
		if b.TenantID == tenantID && b.ClientID == clientID {
			bookings = append(bookings, *b)
		}
	}
	sort.Slice(bookings, func(i, j int) bool {
		return bookings[i].ScheduledAt.Before(bookings[j].ScheduledAt)
	})

	total := len(bookings)
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return bookings[start:end], total, nil
}

// InsertAnalyticsEvent appends an analytics event.
func (s *MemoryStore) InsertAnalyticsEvent(ctx context.Context, event *model.AnalyticsEvent) error {
	cp := *event
	s.mu.Lock()
	s.events = append(s.events, &cp)
	s.mu.Unlock()
	return nil
}

// AnalyticsEvents returns recorded events, for tests.
func (s *MemoryStore) AnalyticsEvents() []model.AnalyticsEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.AnalyticsEvent, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, *e)
	}
	return out
}
