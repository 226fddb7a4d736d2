package models

import (
	"time"

	"github.com/marketsync/backend/internal/domain/billing"
)

// OrderRefModel is the persistence model for the synthesis idempotency record.
// The unique index on ExternalID is what makes concurrent synthesis safe.
type OrderRefModel struct {
	ExternalID string    `gorm:"type:varchar(100);primary_key"`
	ErpOrderID int64     `gorm:"not null;index"`
	Kind       string    `gorm:"type:varchar(20);not null"`
	Step       string    `gorm:"type:varchar(20);not null"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OrderRefModel) TableName() string {
	return "order_refs"
}

// ToDomain converts the persistence model to a domain OrderRef
func (m *OrderRefModel) ToDomain() *billing.OrderRef {
	return &billing.OrderRef{
		ExternalID: m.ExternalID,
		ErpOrderID: m.ErpOrderID,
		Kind:       billing.RefKind(m.Kind),
		Step:       billing.SagaStep(m.Step),
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain OrderRef
func (m *OrderRefModel) FromDomain(r *billing.OrderRef) {
	m.ExternalID = r.ExternalID
	m.ErpOrderID = r.ErpOrderID
	m.Kind = string(r.Kind)
	m.Step = string(r.Step)
	m.CreatedAt = r.CreatedAt
	m.UpdatedAt = r.UpdatedAt
}
