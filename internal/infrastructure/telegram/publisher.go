package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"aidigest/internal/ports"
	"aidigest/internal/retry"
)

// BotPublisher sends rendered digest messages through the Bot API.
type BotPublisher struct {
	token   string
	baseURL string
	client  *http.Client
	policy  retry.Policy
	logger  *slog.Logger
}

var _ ports.Publisher = (*BotPublisher)(nil)

// NewBotPublisher wires a Bot API client; baseURL defaults to the
// official endpoint.
func NewBotPublisher(token, baseURL string, client *http.Client, logger *slog.Logger) *BotPublisher {
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &BotPublisher{
		token:   token,
		baseURL: baseURL,
		client:  client,
		policy:  retry.DefaultPolicy(),
		logger:  logger,
	}
}

type sendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
	Parameters struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// Send delivers one HTML message and returns its message id. Flood
// control (429 with retry_after) is retried with the hinted delay.
func (p *BotPublisher) Send(ctx context.Context, chatID int64, html string) (int64, error) {
	if p.token == "" {
		return 0, fmt.Errorf("bot token is not configured")
	}

	body, err := json.Marshal(sendMessageRequest{
		ChatID:                chatID,
		Text:                  html,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return 0, fmt.Errorf("encode sendMessage: %w", err)
	}

	var messageID int64
	err = p.policy.Do(ctx, func() error {
		url := fmt.Sprintf("%s/bot%s/sendMessage", p.baseURL, p.token)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			return &retry.TransientError{Err: err}
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return &retry.TransientError{Err: err}
		}

		var decoded sendMessageResponse
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return &retry.MalformedError{Err: fmt.Errorf("decode sendMessage response: %w", err)}
		}

		switch {
		case decoded.OK:
			messageID = decoded.Result.MessageID
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			after := time.Duration(decoded.Parameters.RetryAfter) * time.Second
			if after <= 0 {
				after = time.Second
			}
			return &retry.RateLimitError{RetryAfter: after}
		case resp.StatusCode >= http.StatusInternalServerError:
			return &retry.TransientError{Err: fmt.Errorf("bot api returned %s: %s", resp.Status, decoded.Description)}
		default:
			return fmt.Errorf("bot api returned %s: %s", resp.Status, decoded.Description)
		}
	})
	if err != nil {
		return 0, err
	}

	p.logger.Debug("message sent", "chat_id", chatID, "message_id", messageID)
	return messageID, nil
}
