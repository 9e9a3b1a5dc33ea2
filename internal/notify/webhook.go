package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Webhook отправляет уведомления POST-запросом на произвольный адрес.
// При непустом секрете тело подписывается HMAC-SHA256 в заголовке X-Signature-256.
type Webhook struct {
	url    string
	secret string
	client *http.Client
	now    func() time.Time
}

// NewWebhook создаёт отправителя уведомлений на вебхук.
func NewWebhook(url, secret string) *Webhook {
	return &Webhook{
		url:    url,
		secret: secret,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		now: time.Now,
	}
}

type webhookPayload struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	AccountID string `json:"account_id"`
	Text      string `json:"text"`
}

// Notify отправляет уведомление на вебхук.
func (w *Webhook) Notify(ctx context.Context, accountID, text string) error {
	body, err := json.Marshal(webhookPayload{
		Event:     "siphon_notification",
		Timestamp: w.now().UTC().Format(time.RFC3339),
		AccountID: accountID,
		Text:      text,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "sodatrack/1.0")
	if w.secret != "" {
		req.Header.Set("X-Signature-256", "sha256="+Sign(body, []byte(w.secret)))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Sign вычисляет hex-подпись HMAC-SHA256 сообщения.
func Sign(message, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}
