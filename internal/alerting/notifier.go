package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Notifier delivers a composed embed.
type Notifier interface {
	Send(ctx context.Context, embed Embed) error
}

// DeliveryError is returned when the webhook answers with a non-2xx status.
type DeliveryError struct {
	StatusCode int
	Status     string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("webhook delivery failed: %d %s", e.StatusCode, e.Status)
}

type webhookPayload struct {
	Username string  `json:"username,omitempty"`
	Embeds   []Embed `json:"embeds"`
}

// WebhookNotifier posts embeds to a Discord-compatible webhook URL.
type WebhookNotifier struct {
	url      string
	username string
	client   *http.Client
	logger   zerolog.Logger
}

// NewWebhookNotifier constructs a webhook notifier.
func NewWebhookNotifier(url, username string, timeout time.Duration, logger zerolog.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &WebhookNotifier{
		url:      url,
		username: username,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_webhook").Logger(),
	}
}

// Send posts the embed once. Delivery is not retried.
func (n *WebhookNotifier) Send(ctx context.Context, embed Embed) error {
	body, err := json.Marshal(webhookPayload{Username: n.username, Embeds: []Embed{embed}})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DeliveryError{StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	}

	n.logger.Info().Str("title", embed.Title).Int("fields", len(embed.Fields)).Msg("alert delivered")
	return nil
}

// StdoutNotifier writes the webhook payload instead of sending it.
type StdoutNotifier struct {
	w io.Writer
}

// NewStdoutNotifier builds a dry-run notifier writing to w.
func NewStdoutNotifier(w io.Writer) *StdoutNotifier {
	return &StdoutNotifier{w: w}
}

// Send prints the payload as indented JSON.
func (n *StdoutNotifier) Send(ctx context.Context, embed Embed) error {
	enc := json.NewEncoder(n.w)
	enc.SetIndent("", "  ")
	return enc.Encode(webhookPayload{Embeds: []Embed{embed}})
}

var (
	_ Notifier = (*WebhookNotifier)(nil)
	_ Notifier = (*StdoutNotifier)(nil)
)
