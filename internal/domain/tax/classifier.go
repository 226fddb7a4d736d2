package tax

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Treatment is the tax bucket a shipment falls into
type Treatment string

const (
	// TreatmentExport covers destinations outside the tax union
	TreatmentExport Treatment = "EXPORT"
	// TreatmentIntraUnionB2B covers reverse-charge sales to VAT-registered buyers
	TreatmentIntraUnionB2B Treatment = "INTRA_UNION_B2B"
	// TreatmentDomestic covers same-country sales
	TreatmentDomestic Treatment = "DOMESTIC"
	// TreatmentOSS covers cross-border B2C sales under the union OSS scheme
	TreatmentOSS Treatment = "OSS"
)

// ReportingScheme is the channel's declared handling of a shipment
type ReportingScheme string

const (
	// SchemeRegular is the default reporting scheme
	SchemeRegular ReportingScheme = "REGULAR"
	// SchemeDeemedReseller marks shipments where the channel is the deemed reseller
	SchemeDeemedReseller ReportingScheme = "DEEMED_RESELLER"
	// SchemeIOSS marks low-value imports handled under the channel's IOSS number
	SchemeIOSS ReportingScheme = "IOSS"
	// SchemeExport marks shipments the channel already reports as exports
	SchemeExport ReportingScheme = "MFN_EXPORT"
)

// forcesExport reports whether the scheme overrides destination-based classification
func (s ReportingScheme) forcesExport() bool {
	switch s {
	case SchemeDeemedReseller, SchemeIOSS, SchemeExport:
		return true
	default:
		return false
	}
}

// ShipmentContext is the classification input for one shipment
type ShipmentContext struct {
	ShipFrom        string
	ShipTo          string
	BuyerVat        string
	ReportingScheme ReportingScheme
}

// Decision is the classified tax treatment of a shipment
type Decision struct {
	Treatment         Treatment
	JournalRef        string
	TaxRate           decimal.Decimal
	FiscalPositionRef string
	CustomerBucketKey string
	ReverseCharge     bool
	Export            bool
	// DefaultedFrom carries the original unknown country code when the
	// classifier had to fall back to the home country. Empty otherwise.
	DefaultedFrom string
}

// minVatLength is the shortest plausible union VAT number after trimming
const minVatLength = 8

// Classifier derives fiscal decisions from the country registry and the
// configured reference table. It is a pure function over immutable state and
// safe for concurrent use.
type Classifier struct {
	countries *CountryRegistry
	refs      ReferenceTable
}

// NewClassifier creates a classifier over the given registry and reference table
func NewClassifier(countries *CountryRegistry, refs ReferenceTable) *Classifier {
	return &Classifier{countries: countries, refs: refs}
}

// Classify derives the fiscal decision for a shipment. First match wins:
// export, intra-union B2B, domestic, cross-border B2C (OSS).
// It never fails; unknown countries are defaulted to the home country and
// reported via Decision.DefaultedFrom for the caller to log.
func (c *Classifier) Classify(sc ShipmentContext) Decision {
	shipFrom, defaultedFrom := c.normalize(sc.ShipFrom)
	shipTo, defaultedTo := c.normalize(sc.ShipTo)

	defaulted := ""
	if defaultedFrom {
		defaulted = strings.TrimSpace(sc.ShipFrom)
	} else if defaultedTo {
		defaulted = strings.TrimSpace(sc.ShipTo)
	}

	// 1. Export: destination outside the union, or scheme-forced
	if !c.countries.IsUnionMember(shipTo) || sc.ReportingScheme.forcesExport() {
		return Decision{
			Treatment:         TreatmentExport,
			JournalRef:        c.refs.Export.JournalRef,
			TaxRate:           decimal.Zero,
			FiscalPositionRef: c.refs.Export.FiscalPositionRef,
			CustomerBucketKey: GenericCustomerKey(TreatmentExport, shipTo),
			Export:            true,
			DefaultedFrom:     defaulted,
		}
	}

	// 2. Intra-union B2B: valid buyer VAT, cross-border
	if validVat(sc.BuyerVat) && shipFrom != shipTo {
		regCountry := shipFrom
		if !c.countries.IsRegistered(regCountry) {
			regCountry = c.countries.HomeCountry()
		}
		refs, ok := c.refs.IntraUnion[regCountry]
		if !ok {
			refs = c.refs.IntraUnion[c.countries.HomeCountry()]
		}
		return Decision{
			Treatment:         TreatmentIntraUnionB2B,
			JournalRef:        refs.JournalRef,
			TaxRate:           decimal.Zero,
			FiscalPositionRef: refs.FiscalPositionRef,
			CustomerBucketKey: GenericCustomerKey(TreatmentIntraUnionB2B, shipTo),
			ReverseCharge:     true,
			DefaultedFrom:     defaulted,
		}
	}

	// 3. Domestic
	if shipFrom == shipTo {
		if c.countries.IsRegistered(shipFrom) {
			journal, _ := c.countries.RegistrationJournal(shipFrom)
			refs := c.refs.Domestic[shipFrom]
			if refs.JournalRef != "" {
				journal = refs.JournalRef
			}
			return Decision{
				Treatment:         TreatmentDomestic,
				JournalRef:        journal,
				TaxRate:           c.countries.VatRate(shipFrom),
				FiscalPositionRef: refs.FiscalPositionRef,
				CustomerBucketKey: GenericCustomerKey(TreatmentDomestic, shipFrom),
				DefaultedFrom:     defaulted,
			}
		}
		// Seller has no local registration: an in-country sale still has to be
		// reported somewhere, so it goes through the OSS scheme from home.
		return c.ossDecision(shipTo, defaulted)
	}

	// 4. Cross-border B2C under OSS
	return c.ossDecision(shipTo, defaulted)
}

func (c *Classifier) ossDecision(shipTo, defaulted string) Decision {
	return Decision{
		Treatment:         TreatmentOSS,
		JournalRef:        c.refs.OSS.JournalRef,
		TaxRate:           c.countries.VatRate(shipTo),
		FiscalPositionRef: c.refs.OSS.FiscalPositionRef,
		CustomerBucketKey: GenericCustomerKey(TreatmentOSS, shipTo),
		DefaultedFrom:     defaulted,
	}
}

// normalize maps a raw country code onto a known one, reporting fallback
func (c *Classifier) normalize(code string) (string, bool) {
	p, known := c.countries.Profile(code)
	return p.Code, !known && strings.TrimSpace(code) != ""
}

// VatRate exposes the per-country rate for consumers outside classification
func (c *Classifier) VatRate(country string) decimal.Decimal {
	return c.countries.VatRate(country)
}

// IsRegistered reports whether the seller holds a registration in the country
func (c *Classifier) IsRegistered(country string) bool {
	return c.countries.IsRegistered(country)
}

// GenericCustomerKey is the deterministic bucket key the synthesizer uses to
// find-or-create generic counterparty accounts.
func GenericCustomerKey(treatment Treatment, country string) string {
	switch treatment {
	case TreatmentExport:
		return "EXPORT"
	case TreatmentIntraUnionB2B:
		return fmt.Sprintf("B2B/%s", normalizeCountry(country))
	case TreatmentDomestic:
		return fmt.Sprintf("DOMESTIC/%s", normalizeCountry(country))
	default:
		return fmt.Sprintf("OSS/%s", normalizeCountry(country))
	}
}

func validVat(vat string) bool {
	return len(strings.TrimSpace(vat)) >= minVatLength
}
