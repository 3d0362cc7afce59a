package model

import (
	"time"
)

// Role represents the conversational role of a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// SenderType distinguishes who physically produced a message.
type SenderType string

const (
	SenderBot     SenderType = "bot"
	SenderManager SenderType = "manager"
	SenderSystem  SenderType = "system"
)

// Message represents one utterance in a chat. Messages are immutable once
// created; a manager message must have been written while the chat was in
// manager mode by the operator who held it, which the messaging gate enforces.
type Message struct {
	ID       string `json:"id" gorm:"primaryKey;type:uuid"`
	ChatID   string `json:"chat_id" gorm:"type:uuid;index:idx_messages_chat_sender"`
	TenantID string `json:"tenant_id" gorm:"type:uuid;index"`

	Role       Role       `json:"role" gorm:"type:varchar(16)"`
	SenderType SenderType `json:"sender_type" gorm:"type:varchar(16);index:idx_messages_chat_sender"`
	Sender     *string    `json:"sender,omitempty" gorm:"type:uuid;index:idx_messages_chat_sender"`
	Content    string     `json:"content"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// SendManagerMessageRequest is the request body for a manager send.
type SendManagerMessageRequest struct {
	Content string `json:"content"`
}

// ListMessagesResponse is the response for listing messages in a chat.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	Total    int       `json:"total"`
	HasMore  bool      `json:"has_more"`
}
