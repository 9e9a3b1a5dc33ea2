// Package notify содержит каналы доставки уведомлений владельцам баллонов.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultTelegramAPI - адрес Bot API по умолчанию.
const DefaultTelegramAPI = "https://api.telegram.org"

// RetryAfterError возвращается, если Bot API ограничил частоту запросов.
type RetryAfterError struct {
	RetryAfter time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("telegram rate limited, retry after %s", e.RetryAfter)
}

// Telegram отправляет сообщения в чат через Bot API. Идентификатор аккаунта - это id чата.
type Telegram struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewTelegram создаёт клиента Bot API. Пустой baseURL означает DefaultTelegramAPI.
func NewTelegram(baseURL, token string) *Telegram {
	if baseURL == "" {
		baseURL = DefaultTelegramAPI
	}
	return &Telegram{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// sendMessageRequest отправляется без parse_mode: псевдонимы баллонов задаёт пользователь.
type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// Notify отправляет текст в чат accountID.
func (c *Telegram) Notify(ctx context.Context, accountID, text string) error {
	if c == nil || c.token == "" {
		return fmt.Errorf("telegram client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", base, c.token)

	body, err := json.Marshal(sendMessageRequest{ChatID: accountID, Text: text})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	var result apiResponse
	_ = json.NewDecoder(resp.Body).Decode(&result)

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(result.Parameters.RetryAfter) * time.Second
		if v := resp.Header.Get("Retry-After"); v != "" && retryAfter == 0 {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return &RetryAfterError{RetryAfter: retryAfter}
	}

	if resp.StatusCode != http.StatusOK || !result.OK {
		return fmt.Errorf("unexpected status: %d %s", resp.StatusCode, result.Description)
	}
	return nil
}
