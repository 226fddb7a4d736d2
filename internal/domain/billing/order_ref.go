package billing

import (
	"context"
	"errors"
	"time"
)

var ErrOrderRefNotFound = errors.New("billing: erp order ref not found")

// RefKind distinguishes sale orders from credit notes in the ERP
type RefKind string

const (
	RefKindOrder      RefKind = "ORDER"
	RefKindCreditNote RefKind = "CREDIT_NOTE"
)

// SagaStep is the furthest point a synthesized order has reached in the
// create -> confirm -> fulfill sequence. Each step is independently
// retryable; a later failure never rolls back an earlier step.
type SagaStep string

const (
	StepCreated   SagaStep = "CREATED"
	StepConfirmed SagaStep = "CONFIRMED"
	StepFulfilled SagaStep = "FULFILLED"
)

// OrderRef is the idempotency record mapping a channel transaction to the
// ERP document synthesized from it. ExternalID is unique; a ref is never
// duplicated.
type OrderRef struct {
	// ExternalID is the channel transaction identifier (idempotency key)
	ExternalID string
	// ErpOrderID is the ERP-side document id
	ErpOrderID int64
	// Kind distinguishes orders from credit notes
	Kind RefKind
	// Step is the furthest saga step reached
	Step SagaStep
	// CreatedAt is when the ref was first recorded
	CreatedAt time.Time
	// UpdatedAt is when the step last advanced
	UpdatedAt time.Time
}

// NewOrderRef records a freshly created ERP document
func NewOrderRef(externalID string, erpOrderID int64, kind RefKind) *OrderRef {
	now := time.Now()
	return &OrderRef{
		ExternalID: externalID,
		ErpOrderID: erpOrderID,
		Kind:       kind,
		Step:       StepCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Advance moves the ref to a later saga step; earlier steps are never revisited
func (r *OrderRef) Advance(step SagaStep) {
	if stepRank(step) <= stepRank(r.Step) {
		return
	}
	r.Step = step
	r.UpdatedAt = time.Now()
}

func stepRank(s SagaStep) int {
	switch s {
	case StepCreated:
		return 1
	case StepConfirmed:
		return 2
	case StepFulfilled:
		return 3
	default:
		return 0
	}
}

// OrderRefRepository persists idempotency records
type OrderRefRepository interface {
	// FindByExternalID returns the ref for a channel transaction,
	// ErrOrderRefNotFound when none exists.
	FindByExternalID(ctx context.Context, externalID string) (*OrderRef, error)

	// Save inserts a new ref; it must fail on duplicate ExternalID so two
	// concurrent synthesis attempts cannot both create ERP documents.
	Save(ctx context.Context, ref *OrderRef) error

	// Update persists step advancement
	Update(ctx context.Context, ref *OrderRef) error
}
