package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/marketsync/backend/internal/domain/inventory"
)

// SyncBatchModel is the persistence model for the SyncBatch aggregate
type SyncBatchModel struct {
	ID          uuid.UUID       `gorm:"type:uuid;primary_key"`
	ChannelID   string          `gorm:"type:varchar(50);not null;index:idx_sync_batches_channel_status,priority:1"`
	Status      string          `gorm:"type:varchar(20);not null;index:idx_sync_batches_channel_status,priority:2"`
	Reason      string          `gorm:"type:text"`
	Items       []SyncItemModel `gorm:"foreignKey:BatchID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time       `gorm:"not null"`
	SubmittedAt *time.Time
	CompletedAt *time.Time
}

// TableName returns the table name for GORM
func (SyncBatchModel) TableName() string {
	return "sync_batches"
}

// SyncItemModel is the persistence model for one item inside a batch
type SyncItemModel struct {
	BatchID     uuid.UUID `gorm:"type:uuid;primary_key"`
	Sku         string    `gorm:"type:varchar(100);primary_key"`
	Quantity    int       `gorm:"not null"`
	PreviousQty int       `gorm:"not null"`
	Status      string    `gorm:"type:varchar(20);not null"`
	Error       string    `gorm:"type:text"`
	SubmittedAt *time.Time
}

// TableName returns the table name for GORM
func (SyncItemModel) TableName() string {
	return "sync_items"
}

// ToDomain converts the persistence model to a domain SyncBatch
func (m *SyncBatchModel) ToDomain() *inventory.SyncBatch {
	batch := &inventory.SyncBatch{
		ID:          m.ID,
		ChannelID:   m.ChannelID,
		Status:      inventory.BatchStatus(m.Status),
		Reason:      m.Reason,
		Items:       make([]inventory.SyncItem, 0, len(m.Items)),
		CreatedAt:   m.CreatedAt,
		SubmittedAt: m.SubmittedAt,
		CompletedAt: m.CompletedAt,
	}
	for _, item := range m.Items {
		batch.Items = append(batch.Items, inventory.SyncItem{
			Sku:         item.Sku,
			Quantity:    item.Quantity,
			PreviousQty: item.PreviousQty,
			Status:      inventory.ItemStatus(item.Status),
			Error:       item.Error,
			SubmittedAt: item.SubmittedAt,
		})
	}
	return batch
}

// FromDomain populates the persistence model from a domain SyncBatch
func (m *SyncBatchModel) FromDomain(b *inventory.SyncBatch) {
	m.ID = b.ID
	m.ChannelID = b.ChannelID
	m.Status = string(b.Status)
	m.Reason = b.Reason
	m.CreatedAt = b.CreatedAt
	m.SubmittedAt = b.SubmittedAt
	m.CompletedAt = b.CompletedAt
	m.Items = make([]SyncItemModel, 0, len(b.Items))
	for _, item := range b.Items {
		m.Items = append(m.Items, SyncItemModel{
			BatchID:     b.ID,
			Sku:         item.Sku,
			Quantity:    item.Quantity,
			PreviousQty: item.PreviousQty,
			Status:      string(item.Status),
			Error:       item.Error,
			SubmittedAt: item.SubmittedAt,
		})
	}
}

// PublishedStateModel tracks the last quantity the channel accepted per SKU
type PublishedStateModel struct {
	ChannelID string    `gorm:"type:varchar(50);primary_key"`
	Sku       string    `gorm:"type:varchar(100);primary_key"`
	Quantity  int       `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PublishedStateModel) TableName() string {
	return "published_states"
}
