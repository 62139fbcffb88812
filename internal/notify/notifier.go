package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Announcement carries the context of one confirmed payout.
type Announcement struct {
	RecipientName string
	Amount        decimal.Decimal
	Kind          string
	Detail        string
	At            time.Time
}

// Notifier publishes payout announcements.
type Notifier interface {
	Announce(ctx context.Context, a Announcement) error
}

// WebhookNotifier posts messages to a Discord-compatible webhook. Delivery
// is best effort; announcement failures never affect payment state.
type WebhookNotifier struct {
	webhookURL string
	client     *http.Client
	logger     zerolog.Logger
}

// NewWebhookNotifier constructs a webhook announcer.
func NewWebhookNotifier(webhookURL string, timeout time.Duration, logger zerolog.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &WebhookNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "notify_webhook").Logger(),
	}
}

// Announce posts the rendered message.
func (n *WebhookNotifier) Announce(ctx context.Context, a Announcement) error {
	payload := map[string]string{
		"content": renderMessage(a),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	n.logger.Info().Str("recipient", a.RecipientName).Str("kind", a.Kind).Msg("payout announced")
	return nil
}

func renderMessage(a Announcement) string {
	builder := strings.Builder{}
	switch a.Kind {
	case "challenge":
		builder.WriteString(fmt.Sprintf("🏆 %s won a challenge and received %s!", a.RecipientName, a.Amount.StringFixed(2)))
	default:
		builder.WriteString(fmt.Sprintf("🎉 %s crossed a wager milestone and received %s!", a.RecipientName, a.Amount.StringFixed(2)))
	}
	if a.Detail != "" {
		builder.WriteString("\n")
		builder.WriteString(a.Detail)
	}
	return builder.String()
}

var _ Notifier = (*WebhookNotifier)(nil)
