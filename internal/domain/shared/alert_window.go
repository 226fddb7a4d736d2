package shared

import (
	"context"
	"time"
)

// AlertWindowStore suppresses repeat alerts for the same key within a rolling window.
// Used to notify about newly-unresolved SKUs at most once per window per SKU.
type AlertWindowStore interface {
	// Acquire attempts to claim the key for the given window.
	// Returns true if the key was newly claimed (alert should fire),
	// false if the key is still inside a previous window.
	Acquire(ctx context.Context, key string, window time.Duration) (bool, error)

	// Close closes the store and releases resources
	Close() error
}

// AlertWindowConfig holds configuration for alert suppression
type AlertWindowConfig struct {
	// Window is how long a fired alert suppresses repeats for the same key.
	// Default: 24 hours.
	Window time.Duration

	// Enabled determines whether suppression is enabled.
	// When disabled every occurrence alerts.
	Enabled bool
}

// DefaultAlertWindowConfig returns the default alert window configuration
func DefaultAlertWindowConfig() AlertWindowConfig {
	return AlertWindowConfig{
		Window:  24 * time.Hour,
		Enabled: true,
	}
}
