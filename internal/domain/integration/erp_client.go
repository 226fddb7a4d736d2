package integration

import (
	"context"
	"errors"
)

var (
	// ErrErpUnavailable means the ERP could not be reached; the operation is
	// retryable and nothing was committed.
	ErrErpUnavailable = errors.New("integration: erp unavailable")
	// ErrErpRequestFailed means the ERP rejected the request
	ErrErpRequestFailed = errors.New("integration: erp request failed")
	// ErrErpRecordMissing means a referenced record does not exist in the ERP
	ErrErpRecordMissing = errors.New("integration: erp record missing")
)

// Condition is one term of an ERP search domain, e.g. {"vat", "=", "DE123"}
type Condition struct {
	Field    string
	Operator string
	Value    any
}

// Eq builds an equality condition
func Eq(field string, value any) Condition {
	return Condition{Field: field, Operator: "=", Value: value}
}

// In builds a membership condition
func In(field string, values any) Condition {
	return Condition{Field: field, Operator: "in", Value: values}
}

// ErpClient is the narrow contract against the external ERP. The engine only
// ever uses these five operations.
type ErpClient interface {
	// Search returns ids of records matching all conditions
	Search(ctx context.Context, model string, conditions []Condition) ([]int64, error)

	// Read returns the requested fields for the given ids
	Read(ctx context.Context, model string, ids []int64, fields []string) ([]map[string]any, error)

	// Create inserts a record and returns its id
	Create(ctx context.Context, model string, fields map[string]any) (int64, error)

	// Write updates the given records
	Write(ctx context.Context, model string, ids []int64, fields map[string]any) error

	// Execute invokes an arbitrary method on the given records
	Execute(ctx context.Context, model string, method string, args ...any) (any, error)
}
