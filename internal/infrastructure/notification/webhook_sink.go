package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/domain/integration"
)

// WebhookConfig holds webhook sink configuration
type WebhookConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// WebhookSink posts alerts to an HTTP endpoint, typically a chat integration.
// Delivery failures are returned to the caller, which logs and moves on.
type WebhookSink struct {
	config     WebhookConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewWebhookSink creates a new WebhookSink
func NewWebhookSink(cfg WebhookConfig, logger *zap.Logger) *WebhookSink {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSink{
		config:     cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("alerts"),
	}
}

type webhookPayload struct {
	Kind    string `json:"kind"`
	Sku     string `json:"sku,omitempty"`
	Message string `json:"message"`
}

// Notify posts the alert to the configured endpoint
func (s *WebhookSink) Notify(ctx context.Context, alert integration.Alert) error {
	body, err := json.Marshal(webhookPayload{
		Kind:    string(alert.Kind),
		Sku:     alert.Sku,
		Message: alert.Message,
	})
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.Token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("alert delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alert endpoint returned status %d", resp.StatusCode)
	}

	s.logger.Debug("alert delivered",
		zap.String("kind", string(alert.Kind)),
		zap.String("sku", alert.Sku),
	)
	return nil
}

// Ensure WebhookSink implements NotificationSink
var _ integration.NotificationSink = (*WebhookSink)(nil)
