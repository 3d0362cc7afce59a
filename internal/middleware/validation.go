package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ValidateMessageContent validates message content.
func ValidateMessageContent(content string) error {
	if len(content) == 0 {
		return errors.New("content cannot be empty")
	}
	if len(content) > 4096 { // Telegram message size limit
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateChatID validates a chat ID.
func ValidateChatID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid chat ID format")
	}
	return nil
}

// ValidateTimeoutMinutes validates a per-call takeover timeout override.
func ValidateTimeoutMinutes(minutes int) error {
	if minutes < 0 {
		return errors.New("timeout_minutes cannot be negative")
	}
	if minutes > 24*60 {
		return errors.New("timeout_minutes exceeds 24 hours")
	}
	return nil
}
