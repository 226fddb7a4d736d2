package tax

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CountryProfile describes one country's tax parameters
type CountryProfile struct {
	// Code is the ISO 3166-1 alpha-2 country code
	Code string
	// Name is the country display name
	Name string
	// VatRate is the standard VAT rate as a percentage (e.g. 21 for 21%)
	VatRate decimal.Decimal
	// Currency is the ISO 4217 currency code
	Currency string
	// UnionMember indicates membership in the tax union
	UnionMember bool
}

// References selects the ERP bookkeeping targets for one treatment in one
// country. These are external configuration, never inline constants, so a
// deployment can repoint journals without a code change.
type References struct {
	// JournalRef identifies the ERP journal
	JournalRef string
	// FiscalPositionRef identifies the ERP fiscal position
	FiscalPositionRef string
}

// ReferenceTable is the versioned, externally-configured lookup of ERP
// references per country and treatment.
type ReferenceTable struct {
	// Version identifies the loaded revision of the table
	Version string
	// Domestic holds per-country references for domestic sales
	Domestic map[string]References
	// IntraUnion holds per-registration-country references for reverse-charge B2B
	IntraUnion map[string]References
	// OSS is the shared cross-border B2C journal/position
	OSS References
	// Export is the out-of-union journal/position
	Export References
}

// CountryRegistry holds the known country profiles and seller registrations
type CountryRegistry struct {
	profiles      map[string]CountryProfile
	registrations map[string]string // country code -> dedicated journal ref
	homeCountry   string
}

// NewCountryRegistry builds a registry from profiles and the seller's local
// VAT registrations. homeCountry is the fallback for unknown codes and for
// shipments originating in a country without a registration.
func NewCountryRegistry(profiles []CountryProfile, registrations map[string]string, homeCountry string) *CountryRegistry {
	r := &CountryRegistry{
		profiles:      make(map[string]CountryProfile, len(profiles)),
		registrations: make(map[string]string, len(registrations)),
		homeCountry:   normalizeCountry(homeCountry),
	}
	for _, p := range profiles {
		p.Code = normalizeCountry(p.Code)
		r.profiles[p.Code] = p
	}
	for cc, journal := range registrations {
		r.registrations[normalizeCountry(cc)] = journal
	}
	return r
}

// HomeCountry returns the configured home country code
func (r *CountryRegistry) HomeCountry() string {
	return r.homeCountry
}

// Profile returns the profile for a country code. Unknown codes fall back to
// the home country profile; the second return reports whether the code was known.
func (r *CountryRegistry) Profile(code string) (CountryProfile, bool) {
	if p, ok := r.profiles[normalizeCountry(code)]; ok {
		return p, true
	}
	return r.profiles[r.homeCountry], false
}

// IsUnionMember reports whether the country participates in the tax union.
// Unknown countries are treated as outside the union.
func (r *CountryRegistry) IsUnionMember(code string) bool {
	p, known := r.profiles[normalizeCountry(code)]
	return known && p.UnionMember
}

// IsRegistered reports whether the seller holds a local VAT registration
func (r *CountryRegistry) IsRegistered(code string) bool {
	_, ok := r.registrations[normalizeCountry(code)]
	return ok
}

// RegistrationJournal returns the dedicated journal for a registered country
func (r *CountryRegistry) RegistrationJournal(code string) (string, bool) {
	journal, ok := r.registrations[normalizeCountry(code)]
	return journal, ok
}

// VatRate returns the standard VAT rate for a country, falling back to the
// home country for unknown codes.
func (r *CountryRegistry) VatRate(code string) decimal.Decimal {
	p, _ := r.Profile(code)
	return p.VatRate
}

func normalizeCountry(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
