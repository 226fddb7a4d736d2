package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrBatchNotFound = errors.New("inventory: sync batch not found")

// SyncBatchRepository persists sync batches. A batch must be saved before any
// external submission so a crash mid-batch resumes from known per-item state.
type SyncBatchRepository interface {
	// Save creates or fully updates a batch including its items
	Save(ctx context.Context, batch *SyncBatch) error

	// UpdateItem persists a single item's terminal state without rewriting
	// the rest of the batch; this is the per-item checkpoint.
	UpdateItem(ctx context.Context, batchID uuid.UUID, item SyncItem) error

	// FindByID loads a batch with its items
	FindByID(ctx context.Context, id uuid.UUID) (*SyncBatch, error)

	// FindUnfinished returns batches not yet in a terminal state, oldest first
	FindUnfinished(ctx context.Context, channelID string) ([]*SyncBatch, error)
}

// PublishedStateRepository tracks the last quantity the channel accepted per
// SKU. Updated only for items whose submission succeeded.
type PublishedStateRepository interface {
	// LastPublished returns the per-SKU last accepted quantities for a channel
	LastPublished(ctx context.Context, channelID string) (map[string]int, error)

	// SetLastPublished records a successfully accepted quantity
	SetLastPublished(ctx context.Context, channelID, sku string, qty int) error
}
