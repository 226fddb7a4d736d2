package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	Output     string // stdout, stderr, or file path
	TimeFormat string // layout for the time field, ISO8601 when empty
}

// DefaultConfig returns the development configuration: colored console
// output on stdout
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "console",
		Output: "stdout",
	}
}

// ProductionConfig returns the production configuration: JSON on stdout
func ProductionConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}
}

// New creates a zap logger from the configuration. An unknown level falls
// back to info; an output that cannot be opened is an error.
func New(cfg *Config) (*zap.Logger, error) {
	sink, _, err := zap.Open(outputPath(cfg.Output))
	if err != nil {
		return nil, fmt.Errorf("logger: opening output %q: %w", cfg.Output, err)
	}

	core := zapcore.NewCore(buildEncoder(cfg), sink, parseLevel(cfg.Level))
	return zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	), nil
}

// parseLevel converts a string level to zapcore.Level, defaulting to info
func parseLevel(level string) zapcore.Level {
	normalized := strings.ToLower(level)
	if normalized == "warning" {
		normalized = "warn"
	}
	parsed, err := zapcore.ParseLevel(normalized)
	if err != nil {
		return zapcore.InfoLevel
	}
	return parsed
}

func buildEncoder(cfg *Config) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "time"
	ec.MessageKey = "msg"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.TimeFormat != "" {
		ec.EncodeTime = zapcore.TimeEncoderOfLayout(cfg.TimeFormat)
	}
	ec.EncodeDuration = zapcore.MillisDurationEncoder

	if strings.EqualFold(cfg.Format, "console") {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(ec)
	}
	ec.EncodeLevel = zapcore.LowercaseLevelEncoder
	return zapcore.NewJSONEncoder(ec)
}

// outputPath maps the configured output onto a zap sink path
func outputPath(output string) string {
	switch strings.ToLower(output) {
	case "", "stdout":
		return "stdout"
	case "stderr":
		return "stderr"
	default:
		return output
	}
}

// Sync flushes any buffered log entries
func Sync(logger *zap.Logger) error {
	return logger.Sync()
}
