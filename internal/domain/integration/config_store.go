package integration

import (
	"context"

	"github.com/marketsync/backend/internal/domain/sku"
)

// ConfigurationStore is the persistence contract for operator-editable
// resolution rules. The registry service reads everything wholesale on
// reload; edits go through the Put methods.
type ConfigurationStore interface {
	// SkuMappings returns all explicit channel-to-canonical overrides
	SkuMappings(ctx context.Context) ([]sku.Mapping, error)

	// PutSkuMapping inserts or replaces a mapping
	PutSkuMapping(ctx context.Context, m sku.Mapping) error

	// ReturnPatterns returns all configured return-extraction patterns
	ReturnPatterns(ctx context.Context) ([]sku.ReturnPattern, error)

	// PutReturnPattern inserts or replaces a pattern
	PutReturnPattern(ctx context.Context, p sku.ReturnPattern) error

	// SafetyStockOverrides returns all per-SKU safety floors
	SafetyStockOverrides(ctx context.Context) ([]sku.SafetyStockOverride, error)

	// PutSafetyStockOverride inserts or replaces an override
	PutSafetyStockOverride(ctx context.Context, o sku.SafetyStockOverride) error
}
