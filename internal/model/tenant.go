package model

import (
	"time"
)

// Tenant is an independent auto-service business with its own Telegram bot
// and assistant configuration. Data isolation between tenants is enforced by
// scoping every store query with the tenant id.
type Tenant struct {
	ID   string `json:"id" gorm:"primaryKey;type:uuid"`
	Name string `json:"name"`

	TelegramBotToken string `json:"-" gorm:"uniqueIndex"`
	AssistantModel   string `json:"assistant_model,omitempty"`
	SystemPrompt     string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Client is an end user of a tenant, reached through Telegram.
type Client struct {
	ID             string `json:"id" gorm:"primaryKey;type:uuid"`
	TenantID       string `json:"tenant_id" gorm:"type:uuid;index:idx_clients_tenant_tg,unique"`
	TelegramUserID int64  `json:"telegram_user_id" gorm:"index:idx_clients_tenant_tg,unique"`
	Name           string `json:"name,omitempty"`
	Phone          string `json:"phone,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
