package inventory

import (
	"github.com/shopspring/decimal"
)

// StockSnapshot is the per-(SKU, channel) view computed each reconciliation
// cycle from warehouse truth and the last value published to the channel.
type StockSnapshot struct {
	// Sku is the canonical catalog SKU
	Sku string
	// ChannelID identifies the sales channel / marketplace
	ChannelID string
	// SourceQty is the on-hand quantity in the warehouse
	SourceQty decimal.Decimal
	// ReservedQty is the quantity already committed to outgoing orders
	ReservedQty decimal.Decimal
	// SafetyFloor is the buffer withheld from channel publication
	SafetyFloor decimal.Decimal
	// LastPublished is the quantity most recently accepted by the channel
	LastPublished int
}

// PublishableQty is the quantity the channel should advertise:
// max(0, source - reserved - safetyFloor), truncated to a whole unit.
// It is never negative.
func (s StockSnapshot) PublishableQty() int {
	free := s.SourceQty.Sub(s.ReservedQty).Sub(s.SafetyFloor)
	if free.IsNegative() {
		return 0
	}
	return int(free.IntPart())
}

// Delta is the signed difference between what should be published and what
// the channel currently has.
func (s StockSnapshot) Delta() int {
	return s.PublishableQty() - s.LastPublished
}

// IsDirty reports whether the snapshot's delta meets the change threshold.
// A threshold below 1 is treated as 1.
func (s StockSnapshot) IsDirty(changeThreshold int) bool {
	if changeThreshold < 1 {
		changeThreshold = 1
	}
	delta := s.Delta()
	if delta < 0 {
		delta = -delta
	}
	return delta >= changeThreshold
}
