package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labwatch/labwatch/internal/models"
)

// WebhookSender POSTs a small JSON payload to any http(s) URL.
type WebhookSender struct {
	Client *http.Client
}

type webhookPayload struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	Source string `json:"source"`
}

func (s *WebhookSender) Send(ctx context.Context, ch *models.NotificationChannel, title, body string) error {
	payload, err := json.Marshal(webhookPayload{Title: title, Body: body, Source: "labwatch"})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ch.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
