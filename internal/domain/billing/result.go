package billing

// ResultStatus is the overall outcome of synthesizing one transaction
type ResultStatus string

const (
	ResultSuccess ResultStatus = "SUCCESS"
	ResultSkipped ResultStatus = "SKIPPED"
	ResultError   ResultStatus = "ERROR"
)

// LineError reports a line that could not be synthesized. Line errors are
// non-fatal: the order is still created as long as one valid line remains.
type LineError struct {
	ChannelSku   string
	CanonicalSku string
	Reason       string
}

// Result is the structured outcome of one synthesis attempt. It carries
// enough context (external id, refs, per-line reasons) to triage without
// log-diving.
type Result struct {
	ExternalID string
	Status     ResultStatus
	Ref        *OrderRef
	// Step is the furthest saga step reached on this attempt
	Step SagaStep
	// LineErrors accompany an otherwise-successful order
	LineErrors []LineError
	// Reason explains skips and errors
	Reason string
	// Duplicate marks an idempotent no-op on an already-synthesized transaction
	Duplicate bool
}

// Succeeded reports whether an ERP document exists for the transaction
func (r Result) Succeeded() bool {
	return r.Status == ResultSuccess
}
