package integration

import "context"

// AlertKind categorizes notifications
type AlertKind string

const (
	// AlertUnresolvedSku fires when resolution produced no canonical SKU
	AlertUnresolvedSku AlertKind = "UNRESOLVED_SKU"
	// AlertDiscrepancy fires when stock views disagree beyond tolerance
	AlertDiscrepancy AlertKind = "STOCK_DISCREPANCY"
)

// Alert is a fire-and-forget operator notification
type Alert struct {
	Kind    AlertKind
	Sku     string
	Message string
}

// NotificationSink delivers alerts. Delivery is best-effort; a sink error is
// logged by the caller and never propagated into reconciliation results.
type NotificationSink interface {
	Notify(ctx context.Context, alert Alert) error
}
