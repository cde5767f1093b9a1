package data

import (
	"context"
	"fmt"
	"time"

	"ShiftGuard/internal/conf"
	"ShiftGuard/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-resty/resty/v2"
)

// alertPayload is the webhook body for one delivered alert.
type alertPayload struct {
	ID           string `json:"id"`
	RuleID       string `json:"rule_id"`
	Severity     string `json:"severity"`
	Message      string `json:"message"`
	Timestamp    string `json:"timestamp"`
	Acknowledged bool   `json:"acknowledged"`
}

// WebhookNotifier delivers alerts to an external webhook over HTTP. It is
// the canonical dependency wrapped by a circuit breaker: delivery calls go
// through Execute in the dispatcher, never directly. An empty URL
// disables delivery.
type WebhookNotifier struct {
	client *resty.Client
	url    string
	logger *log.Helper
}

// NewWebhookNotifier creates the notifier from bootstrap configuration.
func NewWebhookNotifier(c *conf.Notify, logger log.Logger) *WebhookNotifier {
	helper := log.NewHelper(logger)

	timeout := 10 * time.Second
	url := ""
	if c != nil {
		url = c.WebhookUrl
		if d := c.Timeout.AsDuration(); d > 0 {
			timeout = d
		}
	}
	if url == "" {
		helper.Warn("webhook URL is empty, alert delivery is disabled")
	}

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0). // the circuit breaker owns retry policy
		SetHeader("Content-Type", "application/json")

	return &WebhookNotifier{
		client: client,
		url:    url,
		logger: helper,
	}
}

// Enabled reports whether a webhook URL is configured.
func (n *WebhookNotifier) Enabled() bool {
	return n.url != ""
}

// SendAlert posts one alert to the webhook. Any non-2xx response is a
// delivery failure.
func (n *WebhookNotifier) SendAlert(ctx context.Context, alert model.Alert) error {
	if n.url == "" {
		return nil
	}

	payload := alertPayload{
		ID:           alert.ID,
		RuleID:       alert.RuleID,
		Severity:     string(alert.Severity),
		Message:      alert.Message,
		Timestamp:    alert.Timestamp.Format(time.RFC3339),
		Acknowledged: alert.Acknowledged,
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook delivery rejected: status %d", resp.StatusCode())
	}

	n.logger.Debugw("alert delivered",
		"alert_id", alert.ID,
		"status", resp.StatusCode())
	return nil
}
