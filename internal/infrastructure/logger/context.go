package logger

import (
	"context"

	"go.uber.org/zap"
)

// contextKey is a type for context keys used by the logger package
type contextKey string

const (
	// LoggerKey is the context key for the logger
	LoggerKey contextKey = "logger"
	// SweepIDKey is the context key for the reconciliation sweep ID
	SweepIDKey contextKey = "sweep_id"
	// TransactionIDKey is the context key for the channel transaction being processed
	TransactionIDKey contextKey = "transaction_id"
)

// WithContext returns a new context with the logger attached
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from context, returns a no-op logger if not found
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// WithSweepID adds the sweep ID to context and returns an enriched logger
func WithSweepID(ctx context.Context, logger *zap.Logger, sweepID string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, SweepIDKey, sweepID)
	enriched := logger.With(zap.String("sweep_id", sweepID))
	return WithContext(ctx, enriched), enriched
}

// WithTransactionID adds the external transaction ID to context and returns an enriched logger
func WithTransactionID(ctx context.Context, logger *zap.Logger, transactionID string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, TransactionIDKey, transactionID)
	enriched := logger.With(zap.String("transaction_id", transactionID))
	return WithContext(ctx, enriched), enriched
}

// GetSweepID retrieves the sweep ID from context
func GetSweepID(ctx context.Context) string {
	if sweepID, ok := ctx.Value(SweepIDKey).(string); ok {
		return sweepID
	}
	return ""
}

// GetTransactionID retrieves the external transaction ID from context
func GetTransactionID(ctx context.Context) string {
	if transactionID, ok := ctx.Value(TransactionIDKey).(string); ok {
		return transactionID
	}
	return ""
}
