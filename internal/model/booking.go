package model

import (
	"time"
)

// BookingStatus is the lifecycle state of a service booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

// Booking is a scheduled auto-service appointment for a client, usually
// created out of a chat conversation.
type Booking struct {
	ID       string  `json:"id" gorm:"primaryKey;type:uuid"`
	TenantID string  `json:"tenant_id" gorm:"type:uuid;index"`
	ClientID string  `json:"client_id" gorm:"type:uuid;index"`
	ChatID   *string `json:"chat_id,omitempty" gorm:"type:uuid"`

	Service     string        `json:"service"`
	ScheduledAt time.Time     `json:"scheduled_at"`
	Status      BookingStatus `json:"status" gorm:"type:varchar(16);default:pending"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListBookingsResponse is the response for listing bookings.
type ListBookingsResponse struct {
	Bookings []Booking `json:"bookings"`
	Total    int       `json:"total"`
	HasMore  bool      `json:"has_more"`
}
