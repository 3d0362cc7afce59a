package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/autoline-ai/handoff-platform/internal/llm"
	"github.com/autoline-ai/handoff-platform/internal/model"
	natsclient "github.com/autoline-ai/handoff-platform/internal/nats"
	"github.com/autoline-ai/handoff-platform/internal/store"
	"github.com/autoline-ai/handoff-platform/internal/telegram"
	"github.com/autoline-ai/handoff-platform/pkg/logger"
	"github.com/autoline-ai/handoff-platform/pkg/metrics"
)

const historyLimit = 50

// AssistantService generates AI replies for inbound client messages. It only
// acts while the chat is in AI mode; during a takeover the human operator
// owns the conversation and the assistant stays silent.
type AssistantService struct {
	store       store.Store
	llmClient   llm.Client
	messenger   telegram.Messenger
	broadcaster natsclient.Broadcaster
	logger      *logger.Logger
}

// NewAssistantService creates the assistant.
func NewAssistantService(
	s store.Store,
	llmClient llm.Client,
	messenger telegram.Messenger,
	broadcaster natsclient.Broadcaster,
	log *logger.Logger,
) *AssistantService {
	return &AssistantService{
		store:       s,
		llmClient:   llmClient,
		messenger:   messenger,
		broadcaster: broadcaster,
		logger:      log.Named("assistant"),
	}
}

// HandleInbound records a client message and, when the chat is in AI mode,
// generates and delivers the assistant's reply.
func (a *AssistantService) HandleInbound(ctx context.Context, tenant *model.Tenant, chat *model.Chat, text string) error {
	userMsg := &model.Message{
		ID:         uuid.Must(uuid.NewV7()).String(),
		ChatID:     chat.ID,
		TenantID:   tenant.ID,
		Role:       model.RoleUser,
		SenderType: model.SenderBot,
		Content:    text,
		CreatedAt:  time.Now().UTC(),
	}
	if err := a.store.InsertMessage(ctx, userMsg); err != nil {
		return fmt.Errorf("failed to store inbound message: %w", err)
	}
	a.broadcast(userMsg)

	if chat.IsManagerMode() || a.llmClient == nil {
		return nil
	}

	reply, err := a.generateReply(ctx, tenant, chat)
	if err != nil {
		metrics.AssistantRepliesTotal.WithLabelValues(tenant.ID, "error").Inc()
		return err
	}

	assistantMsg := &model.Message{
		ID:         uuid.Must(uuid.NewV7()).String(),
		ChatID:     chat.ID,
		TenantID:   tenant.ID,
		Role:       model.RoleAssistant,
		SenderType: model.SenderBot,
		Content:    reply,
		CreatedAt:  time.Now().UTC(),
	}
	if err := a.store.InsertMessage(ctx, assistantMsg); err != nil {
		return fmt.Errorf("failed to store assistant reply: %w", err)
	}
	a.broadcast(assistantMsg)

	res, err := a.messenger.SendMessage(ctx, tenant.TelegramBotToken, chat.TelegramChatID, reply)
	if err != nil {
		return fmt.Errorf("failed to deliver assistant reply: %w", err)
	}
	if !res.OK {
		a.logger.WithChat(tenant.ID, chat.ID).Warn("assistant reply not delivered",
			zap.String("reason", res.Description),
		)
	}

	metrics.AssistantRepliesTotal.WithLabelValues(tenant.ID, "ok").Inc()
	return nil
}

func (a *AssistantService) generateReply(ctx context.Context, tenant *model.Tenant, chat *model.Chat) (string, error) {
	history, _, err := a.store.ListMessages(ctx, tenant.ID, chat.ID, historyLimit, 0)
	if err != nil {
		return "", fmt.Errorf("failed to load history: %w", err)
	}

	messages := make([]llm.ChatMessage, 0, len(history)+1)
	if tenant.SystemPrompt != "" {
		messages = append(messages, llm.ChatMessage{
			Role:    string(model.RoleSystem),
			Content: tenant.SystemPrompt,
		})
	}
	for _, msg := range history {
		if msg.Role != model.RoleUser && msg.Role != model.RoleAssistant {
			continue
		}
		messages = append(messages, llm.ChatMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	start := time.Now()
	resp, err := a.llmClient.Complete(ctx, &llm.CompletionRequest{
		Model:    tenant.AssistantModel,
		Messages: messages,
	})
	status := "success"
	if err != nil {
		status = "error"
	}
	modelName := tenant.AssistantModel
	if resp != nil {
		modelName = resp.Model
	}
	metrics.LLMCompletionDuration.WithLabelValues(modelName, status).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("completion failed: %w", err)
	}

	return resp.Content, nil
}

func (a *AssistantService) broadcast(msg *model.Message) {
	if a.broadcaster == nil {
		return
	}
	if err := a.broadcaster.BroadcastMessage(msg); err != nil {
		a.logger.Debug("message broadcast failed", zap.String("chat_id", msg.ChatID), zap.Error(err))
	}
}
