package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/marketsync/backend/internal/domain/tax"
)

// TaxRules bundles the country profiles and the ERP reference table. Both are
// deployment configuration, never inline constants: journals and fiscal
// positions get repointed without a code change.
type TaxRules struct {
	Profiles []tax.CountryProfile
	Table    tax.ReferenceTable
}

// LoadTaxRules reads tax_rules.toml from the working directory (or /app),
// falling back to the built-in defaults when no file exists.
func LoadTaxRules() (*TaxRules, error) {
	v := viper.New()

	v.SetConfigName("tax_rules")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading tax rules file: %w", err)
		}
		return DefaultTaxRules(), nil
	}

	rules := &TaxRules{
		Table: tax.ReferenceTable{
			Version:    v.GetString("version"),
			Domestic:   make(map[string]tax.References),
			IntraUnion: make(map[string]tax.References),
			OSS: tax.References{
				JournalRef:        v.GetString("references.oss.journal"),
				FiscalPositionRef: v.GetString("references.oss.fiscal_position"),
			},
			Export: tax.References{
				JournalRef:        v.GetString("references.export.journal"),
				FiscalPositionRef: v.GetString("references.export.fiscal_position"),
			},
		},
	}

	var rawProfiles []struct {
		Code        string  `mapstructure:"code"`
		Name        string  `mapstructure:"name"`
		VatRate     float64 `mapstructure:"vat_rate"`
		Currency    string  `mapstructure:"currency"`
		UnionMember bool    `mapstructure:"union_member"`
	}
	if err := v.UnmarshalKey("profiles", &rawProfiles); err != nil {
		return nil, fmt.Errorf("error parsing country profiles: %w", err)
	}
	for _, p := range rawProfiles {
		rules.Profiles = append(rules.Profiles, tax.CountryProfile{
			Code:        p.Code,
			Name:        p.Name,
			VatRate:     decimal.NewFromFloat(p.VatRate),
			Currency:    p.Currency,
			UnionMember: p.UnionMember,
		})
	}

	// viper lowercases map keys; the classifier looks countries up uppercased
	for cc := range v.GetStringMap("references.domestic") {
		rules.Table.Domestic[strings.ToUpper(cc)] = tax.References{
			JournalRef:        v.GetString("references.domestic." + cc + ".journal"),
			FiscalPositionRef: v.GetString("references.domestic." + cc + ".fiscal_position"),
		}
	}
	for cc := range v.GetStringMap("references.intra_union") {
		rules.Table.IntraUnion[strings.ToUpper(cc)] = tax.References{
			JournalRef:        v.GetString("references.intra_union." + cc + ".journal"),
			FiscalPositionRef: v.GetString("references.intra_union." + cc + ".fiscal_position"),
		}
	}

	if len(rules.Profiles) == 0 {
		rules.Profiles = DefaultTaxRules().Profiles
	}

	return rules, nil
}

// DefaultTaxRules covers the union members this deployment ships to plus the
// usual non-union destinations, with the standard rates as of 2026.
func DefaultTaxRules() *TaxRules {
	profile := func(code, name string, rate float64, member bool) tax.CountryProfile {
		currency := "EUR"
		if !member {
			currency = ""
		}
		return tax.CountryProfile{
			Code:        code,
			Name:        name,
			VatRate:     decimal.NewFromFloat(rate),
			Currency:    currency,
			UnionMember: member,
		}
	}

	profiles := []tax.CountryProfile{
		profile("BE", "Belgium", 21, true),
		profile("DE", "Germany", 19, true),
		profile("FR", "France", 20, true),
		profile("NL", "Netherlands", 21, true),
		profile("IT", "Italy", 22, true),
		profile("ES", "Spain", 21, true),
		profile("AT", "Austria", 20, true),
		profile("PL", "Poland", 23, true),
		profile("SE", "Sweden", 25, true),
		profile("IE", "Ireland", 23, true),
		profile("GB", "United Kingdom", 0, false),
		profile("US", "United States", 0, false),
		profile("CH", "Switzerland", 0, false),
		profile("NO", "Norway", 0, false),
	}

	table := tax.ReferenceTable{
		Version: "builtin",
		Domestic: map[string]tax.References{
			"BE": {JournalRef: "VBE"},
			"DE": {JournalRef: "VDE"},
			"FR": {JournalRef: "VFR"},
		},
		IntraUnion: map[string]tax.References{
			"BE": {JournalRef: "VBE", FiscalPositionRef: "Intra-Community"},
			"DE": {JournalRef: "VDE", FiscalPositionRef: "Intra-Community"},
			"FR": {JournalRef: "VFR", FiscalPositionRef: "Intra-Community"},
		},
		OSS:    tax.References{JournalRef: "OSS", FiscalPositionRef: "OSS B2C"},
		Export: tax.References{JournalRef: "EXP", FiscalPositionRef: "Export"},
	}

	return &TaxRules{Profiles: profiles, Table: table}
}
