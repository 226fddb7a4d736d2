package notification

import (
	"context"

	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/domain/integration"
)

// LogSink delivers alerts to the structured log. It is the default sink when
// no webhook endpoint is configured.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a new LogSink
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("alerts")}
}

// Notify writes the alert as a warn-level log entry
func (s *LogSink) Notify(_ context.Context, alert integration.Alert) error {
	s.logger.Warn("operator alert",
		zap.String("kind", string(alert.Kind)),
		zap.String("sku", alert.Sku),
		zap.String("message", alert.Message),
	)
	return nil
}

// Ensure LogSink implements NotificationSink
var _ integration.NotificationSink = (*LogSink)(nil)
