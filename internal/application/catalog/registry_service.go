package catalog

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/domain/shared"
	"github.com/marketsync/backend/internal/domain/sku"
)

// RegistryService owns the live SKU registry: it loads operator-edited
// mappings, return patterns and safety-stock overrides from the configuration
// store, compiles them together with the static channel rules, and swaps the
// immutable snapshot. It also routes unresolved-SKU alerts through the
// rolling-window dedupe.
type RegistryService struct {
	store    integration.ConfigurationStore
	snapshot *sku.Snapshot
	alerts   shared.AlertWindowStore
	sink     integration.NotificationSink
	alertCfg shared.AlertWindowConfig

	// base carries the config-file rules the store does not own:
	// fulfillment/cosmetic suffixes, catalog width, default safety floor.
	base   sku.RegistryConfig
	logger *zap.Logger
}

// NewRegistryService creates the service around an empty initial registry.
// Call Reload before first use.
func NewRegistryService(
	store integration.ConfigurationStore,
	alerts shared.AlertWindowStore,
	sink integration.NotificationSink,
	alertCfg shared.AlertWindowConfig,
	base sku.RegistryConfig,
	logger *zap.Logger,
) *RegistryService {
	initial, _ := sku.NewRegistry(base)
	return &RegistryService{
		store:    store,
		snapshot: sku.NewSnapshot(initial),
		alerts:   alerts,
		sink:     sink,
		alertCfg: alertCfg,
		base:     base,
		logger:   logger.Named("catalog"),
	}
}

// Registry returns the active immutable registry snapshot
func (s *RegistryService) Registry() *sku.Registry {
	return s.snapshot.Registry()
}

// Reload fetches all rules from the configuration store, compiles a fresh
// registry and swaps it in wholesale. Concurrent readers keep the previous
// snapshot until the swap; they never see a partially-loaded registry.
func (s *RegistryService) Reload(ctx context.Context) error {
	mappings, err := s.store.SkuMappings(ctx)
	if err != nil {
		return fmt.Errorf("loading sku mappings: %w", err)
	}
	patterns, err := s.store.ReturnPatterns(ctx)
	if err != nil {
		return fmt.Errorf("loading return patterns: %w", err)
	}
	overrides, err := s.store.SafetyStockOverrides(ctx)
	if err != nil {
		return fmt.Errorf("loading safety stock overrides: %w", err)
	}

	cfg := s.base
	cfg.Mappings = mappings
	cfg.ReturnPatterns = patterns
	cfg.SafetyStockOverrides = overrides

	registry, skipped := sku.NewRegistry(cfg)
	for _, skipErr := range skipped {
		s.logger.Warn("skipping invalid return pattern", zap.Error(skipErr))
	}

	s.snapshot.Swap(registry)
	s.logger.Info("sku registry reloaded",
		zap.Int("mappings", registry.MappingCount()),
		zap.Int("patterns", registry.PatternCount()),
		zap.Int("skipped_patterns", len(skipped)),
	)
	return nil
}

// ReportUnresolved fires an unresolved-SKU alert, suppressed to at most one
// per rolling window per SKU. Alerting is fire-and-forget: failures are
// logged, never returned.
func (s *RegistryService) ReportUnresolved(ctx context.Context, channelSku string) {
	if channelSku == "" {
		return
	}
	if s.alertCfg.Enabled {
		key := fmt.Sprintf("unresolved-sku:%s", channelSku)
		fresh, err := s.alerts.Acquire(ctx, key, s.alertCfg.Window)
		if err != nil {
			s.logger.Warn("alert window store unavailable, alerting anyway",
				zap.String("sku", channelSku), zap.Error(err))
		} else if !fresh {
			return
		}
	}

	alert := integration.Alert{
		Kind:    integration.AlertUnresolvedSku,
		Sku:     channelSku,
		Message: fmt.Sprintf("channel SKU %q could not be resolved to a catalog SKU", channelSku),
	}
	if err := s.sink.Notify(ctx, alert); err != nil {
		s.logger.Warn("notification sink rejected alert",
			zap.String("sku", channelSku), zap.Error(err))
	}
}
