package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client delivers messages through the Telegram Bot API. Only
// sendMessage is consumed, so the client stays a thin HTTP wrapper.
type Client struct {
	apiBase string
	token   string
	http    *http.Client
}

func New(apiBase, token string, timeout time.Duration) *Client {
	return &Client{
		apiBase: apiBase,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (c *Client) Send(ctx context.Context, chatID int64, text string) error {
	const op = "telegram.Client.Send"

	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.apiBase, c.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var apiResp sendMessageResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return fmt.Errorf("%s: status %d: %w", op, resp.StatusCode, err)
	}

	if !apiResp.OK {
		return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, apiResp.Description)
	}

	return nil
}
