package inventory

import (
	"sort"
)

// Discrepancy is a per-SKU disagreement between our stock view and a second
// system's snapshot.
type Discrepancy struct {
	Sku        string
	OurQty     int
	TheirQty   int
	Difference int // OurQty - TheirQty
}

// Abs returns the absolute magnitude of the difference
func (d Discrepancy) Abs() int {
	if d.Difference < 0 {
		return -d.Difference
	}
	return d.Difference
}

// BuildDiscrepancyReport computes per-SKU differences between two stock
// views, sorted by descending absolute magnitude, surfacing the top N.
// SKUs known to only one side are included with the other side at zero.
// topN <= 0 returns all discrepancies.
func BuildDiscrepancyReport(ours, theirs map[string]int, topN int) []Discrepancy {
	seen := make(map[string]struct{}, len(ours)+len(theirs))
	var report []Discrepancy

	add := func(sku string) {
		if _, done := seen[sku]; done {
			return
		}
		seen[sku] = struct{}{}
		d := Discrepancy{
			Sku:      sku,
			OurQty:   ours[sku],
			TheirQty: theirs[sku],
		}
		d.Difference = d.OurQty - d.TheirQty
		if d.Difference != 0 {
			report = append(report, d)
		}
	}

	for sku := range ours {
		add(sku)
	}
	for sku := range theirs {
		add(sku)
	}

	sort.Slice(report, func(i, j int) bool {
		if report[i].Abs() != report[j].Abs() {
			return report[i].Abs() > report[j].Abs()
		}
		return report[i].Sku < report[j].Sku
	})

	if topN > 0 && len(report) > topN {
		report = report[:topN]
	}
	return report
}
