package model

import (
	"time"

	"gorm.io/datatypes"
)

// Analytics event names emitted by this service.
const (
	EventTakeoverStarted    = "chat_takeover_started"
	EventTakeoverEnded      = "chat_takeover_ended"
	EventManagerMessageSent = "manager_message_sent"
)

// AnalyticsEvent is a structured event recorded asynchronously for reporting.
// Write-only from this service's perspective.
type AnalyticsEvent struct {
	ID        string         `json:"id" gorm:"primaryKey;type:uuid"`
	EventName string         `json:"event_name" gorm:"type:varchar(64);index"`
	ChatID    string         `json:"chat_id" gorm:"type:uuid;index"`
	TenantID  string         `json:"tenant_id" gorm:"type:uuid;index"`
	SessionID string         `json:"session_id" gorm:"type:varchar(64);index"`
	Props     datatypes.JSON `json:"properties" gorm:"column:properties"`

	OccurredAt time.Time `json:"occurred_at"`
}
