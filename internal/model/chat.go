// Package model defines data structures for the handoff platform.
package model

import (
	"time"
)

// ChatMode represents who currently answers a chat.
type ChatMode string

const (
	// ModeAI means the assistant answers automatically.
	ModeAI ChatMode = "ai_mode"
	// ModeManager means a human operator has taken the chat over.
	ModeManager ChatMode = "manager_mode"
)

// Chat represents an ongoing conversation between one client and one tenant.
//
// The takeover fields (Mode, TakenBy, TakenAt, ManagerActiveUntil) are owned
// by the takeover service and must not be mutated anywhere else.
type Chat struct {
	ID             string `json:"id" gorm:"primaryKey;type:uuid"`
	TenantID       string `json:"tenant_id" gorm:"type:uuid;index"`
	ClientID       string `json:"client_id" gorm:"type:uuid;index"`
	TelegramChatID int64  `json:"telegram_chat_id" gorm:"index"`

	Mode               ChatMode   `json:"mode" gorm:"type:varchar(16);default:ai_mode"`
	TakenBy            *string    `json:"taken_by,omitempty" gorm:"type:uuid"`
	TakenAt            *time.Time `json:"taken_at,omitempty"`
	ManagerActiveUntil *time.Time `json:"manager_active_until,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsManagerMode reports whether a human operator currently owns the chat.
func (c *Chat) IsManagerMode() bool {
	return c.Mode == ModeManager
}

// ClearTakeover resets the chat to AI mode and drops all takeover metadata.
func (c *Chat) ClearTakeover() {
	c.Mode = ModeAI
	c.TakenBy = nil
	c.TakenAt = nil
	c.ManagerActiveUntil = nil
}

// Operator identifies a human operator acting on a tenant's chats.
type Operator struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
}

// TakeoverResult is returned after a successful takeover.
type TakeoverResult struct {
	Chat             *Chat `json:"chat"`
	NotificationSent bool  `json:"notification_sent"`
}

// TakeoverRequest is the request body for taking over a chat.
type TakeoverRequest struct {
	TimeoutMinutes int  `json:"timeout_minutes,omitempty"`
	NotifyClient   bool `json:"notify_client"`
}

// ListChatsResponse is the response for listing chats.
type ListChatsResponse struct {
	Chats   []Chat `json:"chats"`
	Total   int    `json:"total"`
	HasMore bool   `json:"has_more"`
}
