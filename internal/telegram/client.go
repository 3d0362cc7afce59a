// Package telegram provides a minimal Telegram Bot API client for outbound
// messages.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SendResult reports the outcome of a send. Ordinary delivery failures
// (blocked bot, unknown chat) come back as OK=false with a description;
// transport and auth problems surface as errors.
type SendResult struct {
	OK          bool
	MessageID   int64
	Description string
}

// Messenger sends messages to end users.
type Messenger interface {
	SendMessage(ctx context.Context, botToken string, chatID int64, text string) (*SendResult, error)
}

// Client is an HTTP Messenger against the Telegram Bot API.
type Client struct {
	apiBase    string
	httpClient *http.Client
}

// NewClient creates a Bot API client. apiBase defaults to the public endpoint
// when empty.
func NewClient(apiBase string, timeout time.Duration) *Client {
	if apiBase == "" {
		apiBase = "https://api.telegram.org"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		apiBase:    apiBase,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

// SendMessage delivers text to a Telegram chat through the tenant's bot.
func (c *Client) SendMessage(ctx context.Context, botToken string, chatID int64, text string) (*SendResult, error) {
	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.apiBase, botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("telegram auth failed: status %d", resp.StatusCode)
	}

	var out sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode telegram response: %w", err)
	}

	return &SendResult{
		OK:          out.OK,
		MessageID:   out.Result.MessageID,
		Description: out.Description,
	}, nil
}
