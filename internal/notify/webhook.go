package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/voicetel/autotask-notifier/internal/config"
)

// WebhookSender posts notifications to a Slack-compatible incoming webhook.
type WebhookSender struct {
	webhookURL    string
	httpClient    *http.Client
	retryAttempts int
}

type webhookMessage struct {
	Text string `json:"text"`
}

func NewWebhookSender(cfg config.NotifyConfig) *WebhookSender {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	return &WebhookSender{
		webhookURL: cfg.WebhookURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		retryAttempts: attempts,
	}
}

func (c *WebhookSender) Send(n Notification) (string, error) {
	text := fmt.Sprintf("*%s*\n%s", n.Title, n.Body)
	if n.Link != "" {
		text += fmt.Sprintf("\n<%s|Open Ticket>", n.Link)
	}
	if err := c.post(text); err != nil {
		return "", err
	}
	return uuid.NewString(), nil
}

func (c *WebhookSender) post(text string) error {
	payload, err := json.Marshal(webhookMessage{Text: text})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			time.Sleep(time.Duration(attempt*attempt) * time.Second)
		}

		req, err := http.NewRequest("POST", c.webhookURL, bytes.NewBuffer(payload))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			return nil
		}

		lastErr = fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return fmt.Errorf("failed after %d attempts: %w", c.retryAttempts, lastErr)
}

// TestWebhook sends a connectivity check message to the given webhook.
func TestWebhook(webhookURL string) error {
	sender := NewWebhookSender(config.NotifyConfig{
		WebhookURL:    webhookURL,
		Timeout:       10 * time.Second,
		RetryAttempts: 1,
	})
	return sender.post("Autotask notifier test message - connection successful!")
}
