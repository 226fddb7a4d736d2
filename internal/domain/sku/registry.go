package sku

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrPatternInvalid      = errors.New("sku: return pattern does not compile")
	ErrPatternInvalidGroup = errors.New("sku: return pattern capture group out of range")
)

// MatchType describes how a channel SKU was resolved
type MatchType string

const (
	// MatchTypeCustom means an explicit mapping matched, before or after cleaning
	MatchTypeCustom MatchType = "CUSTOM"
	// MatchTypeDirect means the cleaned SKU is used as-is
	MatchTypeDirect MatchType = "DIRECT"
	// MatchTypeUnresolved means no catalog SKU could be derived.
	// This is a distinct outcome requiring triage, not a direct resolution.
	MatchTypeUnresolved MatchType = "UNRESOLVED"
)

// Resolution is the outcome of resolving a single channel SKU.
// CanonicalSku is empty when the SKU is unresolved.
type Resolution struct {
	CanonicalSku    string
	FulfillmentHint string
	IsReturn        bool
	MatchType       MatchType
}

// Resolved reports whether a canonical SKU was derived
func (r Resolution) Resolved() bool {
	return r.MatchType != MatchTypeUnresolved && r.CanonicalSku != ""
}

// Mapping is an explicit channel-SKU to canonical-SKU override.
// ChannelSku matching is trimmed and case-insensitive.
type Mapping struct {
	ChannelSku   string
	CanonicalSku string
}

// ReturnPattern extracts an inner SKU from a return-mangled channel SKU
type ReturnPattern struct {
	Expression   string
	CaptureGroup int
}

// FulfillmentSuffix is a channel-specific tag appended to SKUs.
// Suffixes are checked in slice order; the first match wins.
type FulfillmentSuffix struct {
	Suffix string
	Hint   string
}

// SafetyStockOverride sets a per-SKU safety floor replacing the default
type SafetyStockOverride struct {
	Sku   string
	Floor decimal.Decimal
}

// RegistryConfig is the raw material a Registry is compiled from
type RegistryConfig struct {
	Mappings             []Mapping
	ReturnPatterns       []ReturnPattern
	FulfillmentSuffixes  []FulfillmentSuffix
	CosmeticSuffixes     []string
	CatalogWidth         int
	SafetyStockDefault   decimal.Decimal
	SafetyStockOverrides []SafetyStockOverride
}

type compiledPattern struct {
	re    *regexp.Regexp
	group int
}

// Registry is an immutable, compiled snapshot of SKU resolution rules.
// It is safe for concurrent readers; reloading builds a new Registry and
// swaps it via Snapshot rather than mutating in place.
type Registry struct {
	mappings        map[string]string
	patterns        []compiledPattern
	fulfillment     []FulfillmentSuffix
	cosmetic        []string
	catalogWidth    int
	variantSuffix   *regexp.Regexp
	safetyDefault   decimal.Decimal
	safetyOverrides map[string]decimal.Decimal
}

// NewRegistry compiles a registry from configuration.
// Return patterns that fail to compile are skipped and reported in the
// returned slice; a bad pattern never aborts a reload.
func NewRegistry(cfg RegistryConfig) (*Registry, []error) {
	r := &Registry{
		mappings:        make(map[string]string, len(cfg.Mappings)),
		fulfillment:     make([]FulfillmentSuffix, 0, len(cfg.FulfillmentSuffixes)),
		cosmetic:        make([]string, 0, len(cfg.CosmeticSuffixes)),
		catalogWidth:    cfg.CatalogWidth,
		safetyDefault:   cfg.SafetyStockDefault,
		safetyOverrides: make(map[string]decimal.Decimal, len(cfg.SafetyStockOverrides)),
	}

	for _, m := range cfg.Mappings {
		key := mappingKey(m.ChannelSku)
		if key == "" || m.CanonicalSku == "" {
			continue
		}
		r.mappings[key] = strings.TrimSpace(m.CanonicalSku)
	}

	var skipped []error
	for _, p := range cfg.ReturnPatterns {
		re, err := regexp.Compile(p.Expression)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("%w: %q: %v", ErrPatternInvalid, p.Expression, err))
			continue
		}
		if p.CaptureGroup < 1 || p.CaptureGroup > re.NumSubexp() {
			skipped = append(skipped, fmt.Errorf("%w: %q group %d", ErrPatternInvalidGroup, p.Expression, p.CaptureGroup))
			continue
		}
		r.patterns = append(r.patterns, compiledPattern{re: re, group: p.CaptureGroup})
	}

	for _, fs := range cfg.FulfillmentSuffixes {
		if fs.Suffix == "" {
			continue
		}
		r.fulfillment = append(r.fulfillment, FulfillmentSuffix{
			Suffix: strings.ToUpper(fs.Suffix),
			Hint:   fs.Hint,
		})
	}
	for _, cs := range cfg.CosmeticSuffixes {
		if cs == "" {
			continue
		}
		r.cosmetic = append(r.cosmetic, strings.ToUpper(cs))
	}

	if r.catalogWidth > 0 {
		// Only a full-width digit run followed by exactly one trailing "A" is
		// channel noise. Any other trailing letter denotes a real variant.
		r.variantSuffix = regexp.MustCompile(fmt.Sprintf(`^(\d{%d})A$`, r.catalogWidth))
	}

	for _, o := range cfg.SafetyStockOverrides {
		key := mappingKey(o.Sku)
		if key == "" {
			continue
		}
		r.safetyOverrides[key] = o.Floor
	}

	return r, skipped
}

// Resolve normalizes a channel SKU to a canonical catalog SKU.
// It never fails: an unresolvable SKU yields MatchTypeUnresolved.
func (r *Registry) Resolve(raw string) Resolution {
	return r.resolve(raw, true)
}

func (r *Registry) resolve(raw string, allowPatterns bool) Resolution {
	cur := strings.TrimSpace(raw)
	if cur == "" {
		return Resolution{MatchType: MatchTypeUnresolved}
	}

	// 1. Exact custom mapping on the raw SKU
	if canonical, ok := r.mappings[mappingKey(cur)]; ok {
		return Resolution{CanonicalSku: canonical, MatchType: MatchTypeCustom}
	}

	// 2. Return-pattern extraction, bounded to one recursion level.
	// On the inner pass patterns are disabled; a SKU that is still
	// return-mangled after one extraction is left for triage.
	if matched, inner := r.matchReturnPattern(cur); matched {
		if !allowPatterns {
			return Resolution{IsReturn: true, MatchType: MatchTypeUnresolved}
		}
		res := r.resolve(inner, false)
		res.IsReturn = true
		return res
	}

	// 3. Fulfillment suffix, priority ordered, then cosmetic suffixes
	hint := ""
	for _, fs := range r.fulfillment {
		if trimmed, ok := cutSuffixFold(cur, fs.Suffix); ok {
			cur = trimmed
			hint = fs.Hint
			break
		}
	}
	for stripped := true; stripped; {
		stripped = false
		for _, cs := range r.cosmetic {
			if trimmed, ok := cutSuffixFold(cur, cs); ok {
				cur = trimmed
				stripped = true
			}
		}
	}
	cur = strings.TrimSpace(strings.TrimSuffix(cur, "-"))

	// 4. Narrow variant suffix
	if r.variantSuffix != nil {
		if m := r.variantSuffix.FindStringSubmatch(cur); m != nil {
			cur = m[1]
		}
	}

	// 5. Zero-pad purely numeric SKUs to catalog width
	if r.catalogWidth > 0 && isDigits(cur) && len(cur) < r.catalogWidth {
		cur = strings.Repeat("0", r.catalogWidth-len(cur)) + cur
	}

	// 6. Re-check custom mapping against the cleaned SKU
	if canonical, ok := r.mappings[mappingKey(cur)]; ok {
		return Resolution{CanonicalSku: canonical, FulfillmentHint: hint, MatchType: MatchTypeCustom}
	}

	// 7. Fallback: cleaned SKU as-is
	if cur == "" {
		return Resolution{FulfillmentHint: hint, MatchType: MatchTypeUnresolved}
	}
	return Resolution{CanonicalSku: cur, FulfillmentHint: hint, MatchType: MatchTypeDirect}
}

func (r *Registry) matchReturnPattern(s string) (bool, string) {
	for _, p := range r.patterns {
		if m := p.re.FindStringSubmatch(s); m != nil && p.group < len(m) {
			return true, m[p.group]
		}
	}
	return false, ""
}

// SafetyFloor returns the safety stock floor for a canonical SKU,
// falling back to the configured default when no override exists.
func (r *Registry) SafetyFloor(sku string) decimal.Decimal {
	if floor, ok := r.safetyOverrides[mappingKey(sku)]; ok {
		return floor
	}
	return r.safetyDefault
}

// MappingCount returns the number of compiled custom mappings
func (r *Registry) MappingCount() int {
	return len(r.mappings)
}

// PatternCount returns the number of compiled return patterns
func (r *Registry) PatternCount() int {
	return len(r.patterns)
}

func mappingKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func cutSuffixFold(s, upperSuffix string) (string, bool) {
	if len(s) < len(upperSuffix) {
		return s, false
	}
	if strings.ToUpper(s[len(s)-len(upperSuffix):]) != upperSuffix {
		return s, false
	}
	return s[:len(s)-len(upperSuffix)], true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
