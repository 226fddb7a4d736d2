package logger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

const defaultSlowQueryThreshold = 200 * time.Millisecond

// GormLogger routes GORM's log output through zap. Queries are correlated
// with the reconciliation sweep that issued them via the context.
type GormLogger struct {
	zl            *zap.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

// NewGormLogger creates a GORM logger writing through the given zap logger
func NewGormLogger(zl *zap.Logger, level gormlogger.LogLevel) *GormLogger {
	return &GormLogger{
		zl:            zl.Named("gorm"),
		level:         level,
		slowThreshold: defaultSlowQueryThreshold,
	}
}

// WithSlowThreshold returns a copy reporting queries slower than threshold.
// Zero disables slow query reporting.
func (l *GormLogger) WithSlowThreshold(threshold time.Duration) *GormLogger {
	copied := *l
	copied.slowThreshold = threshold
	return &copied
}

// LogMode implements gormlogger.Interface
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	copied := *l
	copied.level = level
	return &copied
}

// Info implements gormlogger.Interface
func (l *GormLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.zl.Sugar().Infof(msg, args...)
	}
}

// Warn implements gormlogger.Interface
func (l *GormLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.zl.Sugar().Warnf(msg, args...)
	}
}

// Error implements gormlogger.Interface
func (l *GormLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.zl.Sugar().Errorf(msg, args...)
	}
}

// Trace logs one executed statement. Not-found results are routine lookups
// (idempotency checks, ref lookups) and are never reported as errors.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	query, rows := fc()
	fields := []zap.Field{
		zap.String("query", query),
		zap.Int64("rows", rows),
		zap.Duration("elapsed", elapsed),
	}
	if sweepID := GetSweepID(ctx); sweepID != "" {
		fields = append(fields, zap.String("sweep_id", sweepID))
	}

	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound) && l.level >= gormlogger.Error:
		l.zl.Error("query failed", append(fields, zap.Error(err))...)
	case l.slowThreshold > 0 && elapsed >= l.slowThreshold && l.level >= gormlogger.Warn:
		l.zl.Warn("slow query", append(fields, zap.Duration("threshold", l.slowThreshold))...)
	case l.level >= gormlogger.Info:
		l.zl.Debug("query", fields...)
	}
}

// MapGormLogLevel maps the application log level onto GORM's
func MapGormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "warn", "warning":
		return gormlogger.Warn
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
