package shared

// DomainError represents a domain-level error with a stable machine-readable code
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Reconciliation error taxonomy. These codes are stable and are what triage
// tooling keys on, so changing one is a breaking change.
var (
	// ErrUnresolvedSku is non-fatal; the SKU is queued for triage
	ErrUnresolvedSku = NewDomainError("UNRESOLVED_SKU", "Channel SKU could not be resolved to a catalog SKU")
	// ErrUnclassifiableTax means a default treatment was applied and logged
	ErrUnclassifiableTax = NewDomainError("UNCLASSIFIABLE_TAX", "Tax treatment could not be classified, default applied")
	// ErrLineItem is per-line and non-fatal to the surrounding order
	ErrLineItem = NewDomainError("LINE_ITEM_ERROR", "Order line could not be synthesized")
	// ErrCounterpartyCreation is fatal to the transaction it occurred in
	ErrCounterpartyCreation = NewDomainError("COUNTERPARTY_CREATION_FAILED", "Counterparty could not be found or created")
	// ErrExternalUnavailable is fatal but retryable; the transaction stays unprocessed
	ErrExternalUnavailable = NewDomainError("EXTERNAL_UNAVAILABLE", "External system is unreachable")
	// ErrDuplicateTransaction is an idempotent no-op, not a failure
	ErrDuplicateTransaction = NewDomainError("DUPLICATE_TRANSACTION", "Transaction was already synthesized")

	ErrNotFound     = NewDomainError("NOT_FOUND", "Resource not found")
	ErrInvalidInput = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrInvalidState = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
)
