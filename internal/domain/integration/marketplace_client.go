package integration

import (
	"context"
	"errors"
)

var (
	// ErrMarketplaceUnavailable means the channel API could not be reached
	ErrMarketplaceUnavailable = errors.New("integration: marketplace unavailable")
	// ErrMarketplaceRejected means the channel rejected an item-level update
	ErrMarketplaceRejected = errors.New("integration: marketplace rejected update")
	// ErrMarketplaceThrottled means the channel rate limit was hit
	ErrMarketplaceThrottled = errors.New("integration: marketplace throttled")
)

// InventoryPatch is one item-level published-quantity update
type InventoryPatch struct {
	Sku           string
	MarketplaceID string
	Quantity      int
}

// Listing is one active channel listing
type Listing struct {
	Sku           string
	MarketplaceID string
	Quantity      int
	Fulfillment   string
}

// MarketplaceClient is the narrow contract against the sales channel
type MarketplaceClient interface {
	// Listings retrieves the active listings with their published quantities
	Listings(ctx context.Context, marketplaceID string) ([]Listing, error)

	// PatchInventory publishes a single item quantity update
	PatchInventory(ctx context.Context, patch InventoryPatch) error
}
