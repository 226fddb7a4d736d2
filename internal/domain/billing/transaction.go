package billing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/marketsync/backend/internal/domain/tax"
)

var (
	ErrTransactionInvalid     = errors.New("billing: invalid channel transaction payload")
	ErrTransactionUnknownType = errors.New("billing: unknown transaction type")
	ErrTransactionNoLines     = errors.New("billing: transaction carries no lines")
)

// TransactionType is the tagged variant channel payloads are validated into
type TransactionType string

const (
	TransactionShipment TransactionType = "SHIPMENT"
	TransactionReturn   TransactionType = "RETURN"
)

// IsValid reports whether the type is a known variant
func (t TransactionType) IsValid() bool {
	return t == TransactionShipment || t == TransactionReturn
}

// RawLine is one unvalidated line from a channel report
type RawLine struct {
	ChannelSku string          `json:"channel_sku" validate:"required"`
	Quantity   decimal.Decimal `json:"quantity" validate:"required"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Tax        decimal.Decimal `json:"tax"`
}

// RawTransaction is the untrusted shape arriving from the channel. It is
// validated at the boundary and converted into a Transaction before any core
// code sees it; downstream code is exhaustively typed over the variant.
type RawTransaction struct {
	ExternalID      string          `json:"external_id" validate:"required"`
	Type            string          `json:"type" validate:"required,oneof=SHIPMENT RETURN Shipment Return shipment return"`
	Lines           []RawLine       `json:"lines"`
	ShipFrom        string          `json:"ship_from" validate:"required,len=2"`
	ShipTo          string          `json:"ship_to" validate:"required,len=2"`
	BuyerVat        string          `json:"buyer_vat"`
	BuyerName       string          `json:"buyer_name"`
	BuyerCompany    string          `json:"buyer_company"`
	IsBusinessOrder bool            `json:"is_business_order"`
	ReportingScheme string          `json:"reporting_scheme"`
	Currency        string          `json:"currency" validate:"omitempty,len=3"`
	FreightAmount   decimal.Decimal `json:"freight_amount"`
	FreightDiscount decimal.Decimal `json:"freight_discount"`
	// OriginExternalID links a return to the shipment it reverses
	OriginExternalID string `json:"origin_external_id"`
}

// Line is a validated transaction line
type Line struct {
	ChannelSku string
	Quantity   decimal.Decimal
	UnitPrice  decimal.Decimal
	Tax        decimal.Decimal
}

// Totals carries order-level monetary amounts
type Totals struct {
	Currency        string
	FreightAmount   decimal.Decimal
	FreightDiscount decimal.Decimal
}

// Transaction is a validated channel transaction
type Transaction struct {
	ExternalID       string
	Type             TransactionType
	Lines            []Line
	ShipFrom         string
	ShipTo           string
	BuyerVat         string
	BuyerName        string
	BuyerCompany     string
	IsBusinessOrder  bool
	ReportingScheme  tax.ReportingScheme
	Totals           Totals
	OriginExternalID string
}

var rawValidator = validator.New(validator.WithRequiredStructEnabled())

// FromRaw validates a raw channel payload into the tagged variant.
// This is the only entry point into the typed core.
func FromRaw(raw RawTransaction) (*Transaction, error) {
	if err := rawValidator.Struct(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransactionInvalid, err)
	}

	txType := TransactionType(strings.ToUpper(strings.TrimSpace(raw.Type)))
	if !txType.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrTransactionUnknownType, raw.Type)
	}
	if len(raw.Lines) == 0 {
		return nil, ErrTransactionNoLines
	}

	lines := make([]Line, 0, len(raw.Lines))
	for _, rl := range raw.Lines {
		if err := rawValidator.Struct(rl); err != nil {
			return nil, fmt.Errorf("%w: line %q: %v", ErrTransactionInvalid, rl.ChannelSku, err)
		}
		if !rl.Quantity.IsPositive() {
			return nil, fmt.Errorf("%w: line %q: quantity must be positive", ErrTransactionInvalid, rl.ChannelSku)
		}
		lines = append(lines, Line{
			ChannelSku: strings.TrimSpace(rl.ChannelSku),
			Quantity:   rl.Quantity,
			UnitPrice:  rl.UnitPrice,
			Tax:        rl.Tax,
		})
	}

	scheme := tax.ReportingScheme(strings.ToUpper(strings.TrimSpace(raw.ReportingScheme)))
	if scheme == "" {
		scheme = tax.SchemeRegular
	}

	currency := strings.ToUpper(strings.TrimSpace(raw.Currency))
	if currency == "" {
		currency = "EUR"
	}

	return &Transaction{
		ExternalID:       strings.TrimSpace(raw.ExternalID),
		Type:             txType,
		Lines:            lines,
		ShipFrom:         strings.ToUpper(strings.TrimSpace(raw.ShipFrom)),
		ShipTo:           strings.ToUpper(strings.TrimSpace(raw.ShipTo)),
		BuyerVat:         strings.TrimSpace(raw.BuyerVat),
		BuyerName:        strings.TrimSpace(raw.BuyerName),
		BuyerCompany:     strings.TrimSpace(raw.BuyerCompany),
		IsBusinessOrder:  raw.IsBusinessOrder,
		ReportingScheme:  scheme,
		Totals: Totals{
			Currency:        currency,
			FreightAmount:   raw.FreightAmount,
			FreightDiscount: raw.FreightDiscount,
		},
		OriginExternalID: strings.TrimSpace(raw.OriginExternalID),
	}, nil
}

// TaxContext derives the classification input from the transaction
func (t *Transaction) TaxContext() tax.ShipmentContext {
	return tax.ShipmentContext{
		ShipFrom:        t.ShipFrom,
		ShipTo:          t.ShipTo,
		BuyerVat:        t.BuyerVat,
		ReportingScheme: t.ReportingScheme,
	}
}
