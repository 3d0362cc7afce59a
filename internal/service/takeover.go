package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/autoline-ai/handoff-platform/internal/jobs"
	"github.com/autoline-ai/handoff-platform/internal/model"
	natsclient "github.com/autoline-ai/handoff-platform/internal/nats"
	"github.com/autoline-ai/handoff-platform/internal/store"
	"github.com/autoline-ai/handoff-platform/pkg/logger"
	"github.com/autoline-ai/handoff-platform/pkg/metrics"
)

// TakeoverOptions tune a single takeover call.
type TakeoverOptions struct {
	// Timeout overrides the configured takeover timeout when positive.
	Timeout time.Duration
	// NotifyClient controls the takeover notification to the end user.
	NotifyClient bool
}

// ReversionPayload is the task payload for a scheduled timeout reversion.
// TakenAt is the snapshot captured at schedule time; the handler no-ops when
// it no longer matches the chat's current takeover.
type ReversionPayload struct {
	TenantID string    `json:"tenant_id"`
	ChatID   string    `json:"chat_id"`
	TakenAt  time.Time `json:"taken_at"`
}

// TakeoverService owns the chat mode field and all takeover metadata. Every
// mutation runs inside the store's locked update, so transitions on one chat
// are totally ordered; side effects run only after the mutation committed.
type TakeoverService struct {
	store       store.Store
	notifier    *Notifier
	analytics   *Analytics
	broadcaster natsclient.Broadcaster
	queue       jobs.Queue
	timeout     time.Duration
	logger      *logger.Logger
	now         func() time.Time
}

// NewTakeoverService creates the takeover state machine service.
func NewTakeoverService(
	s store.Store,
	notifier *Notifier,
	analytics *Analytics,
	broadcaster natsclient.Broadcaster,
	queue jobs.Queue,
	defaultTimeout time.Duration,
	log *logger.Logger,
) *TakeoverService {
	return &TakeoverService{
		store:       s,
		notifier:    notifier,
		analytics:   analytics,
		broadcaster: broadcaster,
		queue:       queue,
		timeout:     defaultTimeout,
		logger:      log.Named("takeover"),
		now:         time.Now,
	}
}

// Takeover puts a chat into manager mode owned by operator. Fails with
// ErrAlreadyTaken when another takeover is active; the first caller wins.
func (s *TakeoverService) Takeover(ctx context.Context, tenantID, chatID string, operator model.Operator, opts TakeoverOptions) (*model.TakeoverResult, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.timeout
	}

	var takenAt time.Time
	chat, err := s.store.UpdateChatLocked(ctx, tenantID, chatID, func(c *model.Chat) error {
		if c.IsManagerMode() {
			return ErrAlreadyTaken
		}
		takenAt = s.now().UTC()
		until := takenAt.Add(timeout)
		c.Mode = model.ModeManager
		c.TakenBy = &operator.ID
		c.TakenAt = &takenAt
		c.ManagerActiveUntil = &until
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyTaken) {
			metrics.RecordTakeover(tenantID, "conflict")
		}
		return nil, err
	}
	metrics.RecordTakeover(tenantID, "ok")

	s.scheduleReversion(ctx, tenantID, chatID, takenAt, timeout)

	notificationSent := false
	if opts.NotifyClient {
		notificationSent = s.notifyClient(ctx, tenantID, chat, NotifyTakeover, &operator)
	}

	s.analytics.Track(ctx, tenantID, model.EventTakeoverStarted, chatID, map[string]any{
		"taken_by_id":     operator.ID,
		"timeout_minutes": timeout.Minutes(),
	})

	s.broadcastMode(chat)

	s.logger.Info("chat taken over",
		zap.String("tenant_id", tenantID),
		zap.String("chat_id", chatID),
		zap.String("operator_id", operator.ID),
		zap.Duration("timeout", timeout),
	)

	return &model.TakeoverResult{Chat: chat, NotificationSent: notificationSent}, nil
}

// errStaleRelease aborts a timeout release inside the locked update when the
// takeover it targeted is no longer the current one.
var errStaleRelease = errors.New("takeover release superseded")

// Release returns a chat to AI mode. timeout marks the release as caused by
// the inactivity deadline rather than the operator.
func (s *TakeoverService) Release(ctx context.Context, tenantID, chatID string, timeout bool) (*model.Chat, error) {
	return s.release(ctx, tenantID, chatID, timeout, nil)
}

// release runs the locked mode transition. guard, when set, is evaluated on
// the locked row so a timeout release cannot clobber a takeover that was
// extended or replaced after its deadline was observed.
func (s *TakeoverService) release(ctx context.Context, tenantID, chatID string, timeout bool, guard func(c *model.Chat) error) (*model.Chat, error) {
	var prevOperator string
	var sessionDuration time.Duration

	chat, err := s.store.UpdateChatLocked(ctx, tenantID, chatID, func(c *model.Chat) error {
		if !c.IsManagerMode() {
			return ErrNotTaken
		}
		if guard != nil {
			if err := guard(c); err != nil {
				return err
			}
		}
		prevOperator = *c.TakenBy
		sessionDuration = s.now().UTC().Sub(*c.TakenAt)
		c.ClearTakeover()
		return nil
	})
	if err != nil {
		return nil, err
	}

	reason := "manual"
	kind := NotifyRelease
	if timeout {
		reason = "timeout"
		kind = NotifyTimeout
	}
	durationMinutes := math.Round(sessionDuration.Minutes()*10) / 10

	metrics.RecordRelease(tenantID, reason, durationMinutes)

	s.notifyClient(ctx, tenantID, chat, kind, nil)

	s.analytics.Track(ctx, tenantID, model.EventTakeoverEnded, chatID, map[string]any{
		"taken_by_id":      prevOperator,
		"reason":           reason,
		"duration_minutes": durationMinutes,
	})

	s.broadcastMode(chat)

	s.logger.Info("chat released",
		zap.String("tenant_id", tenantID),
		zap.String("chat_id", chatID),
		zap.String("operator_id", prevOperator),
		zap.String("reason", reason),
		zap.Float64("duration_minutes", durationMinutes),
	)

	return chat, nil
}

// ExtendTimeout pushes the takeover deadline forward by the configured
// timeout. No-op when the chat is not in manager mode.
func (s *TakeoverService) ExtendTimeout(ctx context.Context, tenantID, chatID string) error {
	var takenAt time.Time
	extended := false

	_, err := s.store.UpdateChatLocked(ctx, tenantID, chatID, func(c *model.Chat) error {
		if !c.IsManagerMode() {
			return nil
		}
		until := s.now().UTC().Add(s.timeout)
		c.ManagerActiveUntil = &until
		takenAt = *c.TakenAt
		extended = true
		return nil
	})
	if err != nil {
		return err
	}

	if extended {
		s.scheduleReversion(ctx, tenantID, chatID, takenAt, s.timeout)
	}
	return nil
}

// HandleReversionTask processes one scheduled timeout reversion. A stale fire
// (chat re-taken, already released, or deadline extended past this firing)
// does nothing, which makes at-least-once delivery safe.
func (s *TakeoverService) HandleReversionTask(ctx context.Context, payload []byte) error {
	var p ReversionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.logger.Warn("dropping malformed reversion payload", zap.Error(err))
		return nil
	}

	// Both checks run on the locked row: a firing for an earlier takeover or
	// an extended deadline must never release the current one.
	_, err := s.release(ctx, p.TenantID, p.ChatID, true, func(c *model.Chat) error {
		if c.TakenAt == nil || !c.TakenAt.Equal(p.TakenAt) {
			return errStaleRelease
		}
		if c.ManagerActiveUntil != nil && c.ManagerActiveUntil.After(s.now()) {
			return errStaleRelease
		}
		return nil
	})
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, ErrNotTaken) || errors.Is(err, errStaleRelease) {
		return nil
	}
	return err
}

// ReleaseExpired releases every takeover whose deadline has passed. Run
// periodically; covers reversion timers lost to a restart.
func (s *TakeoverService) ReleaseExpired(ctx context.Context) error {
	chats, err := s.store.ListExpiredTakeovers(ctx, s.now().UTC())
	if err != nil {
		return err
	}

	for _, chat := range chats {
		takenAt := chat.TakenAt
		_, err := s.release(ctx, chat.TenantID, chat.ID, true, func(c *model.Chat) error {
			// The deadline was observed outside the lock; skip chats whose
			// takeover was extended or replaced since the listing.
			if takenAt != nil && (c.TakenAt == nil || !c.TakenAt.Equal(*takenAt)) {
				return errStaleRelease
			}
			if c.ManagerActiveUntil != nil && c.ManagerActiveUntil.After(s.now()) {
				return errStaleRelease
			}
			return nil
		})
		if err != nil && !errors.Is(err, ErrNotTaken) && !errors.Is(err, errStaleRelease) {
			s.logger.Warn("failed to release expired takeover",
				zap.String("tenant_id", chat.TenantID),
				zap.String("chat_id", chat.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (s *TakeoverService) scheduleReversion(ctx context.Context, tenantID, chatID string, takenAt time.Time, delay time.Duration) {
	payload, err := json.Marshal(ReversionPayload{
		TenantID: tenantID,
		ChatID:   chatID,
		TakenAt:  takenAt,
	})
	if err != nil {
		s.logger.Error("failed to marshal reversion payload", zap.Error(err))
		return
	}

	// The transition already committed; a failed schedule only delays the
	// reversion until the sweeper catches the expired deadline.
	if err := s.queue.Schedule(ctx, jobs.TaskRevertTakeover, payload, delay); err != nil {
		s.logger.Warn("failed to schedule reversion",
			zap.String("chat_id", chatID),
			zap.Error(err),
		)
	}
}

func (s *TakeoverService) notifyClient(ctx context.Context, tenantID string, chat *model.Chat, kind NotificationKind, operator *model.Operator) bool {
	tenant, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		s.logger.Warn("handoff notification skipped: tenant lookup failed",
			zap.String("tenant_id", tenantID),
			zap.String("chat_id", chat.ID),
			zap.String("operation", string(kind)),
			zap.Error(err),
		)
		metrics.RecordNotification(string(kind), false)
		return false
	}
	return s.notifier.Notify(ctx, tenant, chat, kind, operator)
}

func (s *TakeoverService) broadcastMode(chat *model.Chat) {
	if s.broadcaster == nil {
		return
	}
	if err := s.broadcaster.BroadcastModeChange(chat); err != nil {
		s.logger.Debug("mode broadcast failed", zap.String("chat_id", chat.ID), zap.Error(err))
	}
}
