package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/oddslab/arbscan/internal/domain"
)

// Embed sidebar colors, decimal RGB.
const (
	colorHigh   = 15158332
	colorMedium = 15105570
	colorLow    = 9807270
)

// DiscordSender delivers alerts to a Discord channel webhook. Each alert is
// rendered as a single embed colored by priority.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL. It uses
// a default HTTP client with a 10-second timeout.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the alert to the Discord webhook.
func (d *DiscordSender) Send(ctx context.Context, alert domain.Alert) error {
	embed := map[string]any{
		"title":       alert.Title,
		"description": alert.Message,
		"color":       embedColor(alert.Priority),
		"footer": map[string]string{
			"text": fmt.Sprintf("%s / %s", alert.Priority, alert.Category),
		},
	}
	if !alert.CreatedAt.IsZero() {
		embed["timestamp"] = alert.CreatedAt.Format(time.RFC3339)
	}

	body, err := json.Marshal(map[string]any{
		"embeds": []map[string]any{embed},
	})
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	// Discord returns 204 No Content on success.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}

func embedColor(p domain.AlertPriority) int {
	switch p {
	case domain.AlertHigh:
		return colorHigh
	case domain.AlertMedium:
		return colorMedium
	default:
		return colorLow
	}
}
