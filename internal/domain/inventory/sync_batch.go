package inventory

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBatchSealed      = errors.New("inventory: sync batch items are immutable after submission")
	ErrBatchNotPending  = errors.New("inventory: sync batch is not pending")
	ErrBatchIncomplete  = errors.New("inventory: sync batch has non-terminal items")
	ErrBatchEmpty       = errors.New("inventory: sync batch has no items")
	ErrBatchItemUnknown = errors.New("inventory: sku not in sync batch")
	ErrBatchTerminal    = errors.New("inventory: sync batch already in a terminal state")
)

// BatchStatus is the lifecycle state of a SyncBatch.
// pending -> submitted -> completed is the normal path; failed is reached
// only when submission could not start at all.
type BatchStatus string

const (
	BatchStatusPending   BatchStatus = "PENDING"
	BatchStatusSubmitted BatchStatus = "SUBMITTED"
	BatchStatusCompleted BatchStatus = "COMPLETED"
	BatchStatusFailed    BatchStatus = "FAILED"
)

// IsTerminal reports whether the status is final
func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusFailed
}

// ItemStatus is the per-item submission state
type ItemStatus string

const (
	ItemStatusPending ItemStatus = "PENDING"
	ItemStatusSuccess ItemStatus = "SUCCESS"
	ItemStatusFailed  ItemStatus = "FAILED"
)

// IsTerminal reports whether the item has reached a final state
func (s ItemStatus) IsTerminal() bool {
	return s == ItemStatusSuccess || s == ItemStatusFailed
}

// SyncItem is one SKU's publish instruction inside a batch
type SyncItem struct {
	// Sku is the channel SKU the quantity is published under
	Sku string
	// Quantity is the quantity to publish
	Quantity int
	// PreviousQty is what the channel held before this batch, kept for triage
	PreviousQty int
	// Status is the per-item submission state
	Status ItemStatus
	// Error holds the submission failure, empty on success
	Error string
	// SubmittedAt is when the item reached a terminal state
	SubmittedAt *time.Time
}

// SyncBatch groups the dirty items of one reconciliation cycle. It is
// persisted before submission so a crash mid-batch resumes from known
// per-item state; the item set is append-only once submitted.
type SyncBatch struct {
	ID          uuid.UUID
	ChannelID   string
	Status      BatchStatus
	Items       []SyncItem
	Reason      string
	CreatedAt   time.Time
	SubmittedAt *time.Time
	CompletedAt *time.Time
}

// NewSyncBatch creates a pending batch for the given channel
func NewSyncBatch(channelID string, items []SyncItem) (*SyncBatch, error) {
	if len(items) == 0 {
		return nil, ErrBatchEmpty
	}
	batchItems := make([]SyncItem, len(items))
	copy(batchItems, items)
	for i := range batchItems {
		batchItems[i].Status = ItemStatusPending
		batchItems[i].Error = ""
		batchItems[i].SubmittedAt = nil
	}
	return &SyncBatch{
		ID:        uuid.New(),
		ChannelID: channelID,
		Status:    BatchStatusPending,
		Items:     batchItems,
		CreatedAt: time.Now(),
	}, nil
}

// Submit seals the item set and moves the batch to submitted
func (b *SyncBatch) Submit() error {
	if b.Status != BatchStatusPending {
		return ErrBatchNotPending
	}
	now := time.Now()
	b.Status = BatchStatusSubmitted
	b.SubmittedAt = &now
	return nil
}

// AddItem appends an item; legal only before submission
func (b *SyncBatch) AddItem(item SyncItem) error {
	if b.Status != BatchStatusPending {
		return ErrBatchSealed
	}
	item.Status = ItemStatusPending
	b.Items = append(b.Items, item)
	return nil
}

// MarkItemSuccess records a successful submission for the SKU
func (b *SyncBatch) MarkItemSuccess(sku string) error {
	return b.markItem(sku, ItemStatusSuccess, "")
}

// MarkItemFailed records a failed submission for the SKU
func (b *SyncBatch) MarkItemFailed(sku string, reason string) error {
	return b.markItem(sku, ItemStatusFailed, reason)
}

func (b *SyncBatch) markItem(sku string, status ItemStatus, errMsg string) error {
	if b.Status != BatchStatusSubmitted {
		return ErrBatchNotPending
	}
	for i := range b.Items {
		if b.Items[i].Sku == sku {
			now := time.Now()
			b.Items[i].Status = status
			b.Items[i].Error = errMsg
			b.Items[i].SubmittedAt = &now
			return nil
		}
	}
	return ErrBatchItemUnknown
}

// PendingItems returns the items not yet in a terminal state
func (b *SyncBatch) PendingItems() []SyncItem {
	var pending []SyncItem
	for _, item := range b.Items {
		if !item.Status.IsTerminal() {
			pending = append(pending, item)
		}
	}
	return pending
}

// AllItemsTerminal reports whether every item reached success or failure
func (b *SyncBatch) AllItemsTerminal() bool {
	for _, item := range b.Items {
		if !item.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// Complete finishes the batch. A batch completes once every item is terminal;
// partial item failure never fails the whole batch.
func (b *SyncBatch) Complete() error {
	if b.Status.IsTerminal() {
		return ErrBatchTerminal
	}
	if !b.AllItemsTerminal() {
		return ErrBatchIncomplete
	}
	now := time.Now()
	b.Status = BatchStatusCompleted
	b.CompletedAt = &now
	return nil
}

// Fail marks the batch failed. Legal only when submission never produced a
// terminal item, i.e. the batch could not be submitted at all.
func (b *SyncBatch) Fail(reason string) error {
	if b.Status.IsTerminal() {
		return ErrBatchTerminal
	}
	for _, item := range b.Items {
		if item.Status == ItemStatusSuccess {
			return ErrBatchIncomplete
		}
	}
	now := time.Now()
	b.Status = BatchStatusFailed
	b.Reason = reason
	b.CompletedAt = &now
	return nil
}

// SuccessCount returns the number of successfully submitted items
func (b *SyncBatch) SuccessCount() int {
	n := 0
	for _, item := range b.Items {
		if item.Status == ItemStatusSuccess {
			n++
		}
	}
	return n
}

// FailedCount returns the number of permanently failed items
func (b *SyncBatch) FailedCount() int {
	n := 0
	for _, item := range b.Items {
		if item.Status == ItemStatusFailed {
			n++
		}
	}
	return n
}
