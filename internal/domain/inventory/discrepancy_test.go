package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDiscrepancyReport(t *testing.T) {
	ours := map[string]int{
		"01001": 10,
		"01002": 50,
		"01003": 7,
		"01004": 3,
	}
	theirs := map[string]int{
		"01001": 10, // agrees
		"01002": 20, // diff +30
		"01003": 9,  // diff -2
		"01005": 5,  // only theirs, diff -5
	}

	report := BuildDiscrepancyReport(ours, theirs, 0)
	require.Len(t, report, 4)

	assert.Equal(t, "01002", report[0].Sku)
	assert.Equal(t, 30, report[0].Difference)
	assert.Equal(t, "01005", report[1].Sku)
	assert.Equal(t, -5, report[1].Difference)
	assert.Equal(t, "01004", report[2].Sku)
	assert.Equal(t, 3, report[2].Difference)
	assert.Equal(t, "01003", report[3].Sku)
	assert.Equal(t, -2, report[3].Difference)
}

func TestBuildDiscrepancyReport_TopN(t *testing.T) {
	ours := map[string]int{"A": 100, "B": 50, "C": 10}
	theirs := map[string]int{"A": 0, "B": 45, "C": 9}

	report := BuildDiscrepancyReport(ours, theirs, 2)
	require.Len(t, report, 2)
	assert.Equal(t, "A", report[0].Sku)
	assert.Equal(t, "B", report[1].Sku)
}

func TestBuildDiscrepancyReport_NoDisagreement(t *testing.T) {
	ours := map[string]int{"A": 1, "B": 2}
	theirs := map[string]int{"A": 1, "B": 2}

	assert.Empty(t, BuildDiscrepancyReport(ours, theirs, 10))
}

func TestBuildDiscrepancyReport_TieBreaksBySku(t *testing.T) {
	ours := map[string]int{"Z": 5, "A": 5}
	theirs := map[string]int{"Z": 0, "A": 0}

	report := BuildDiscrepancyReport(ours, theirs, 0)
	require.Len(t, report, 2)
	assert.Equal(t, "A", report[0].Sku)
	assert.Equal(t, "Z", report[1].Sku)
}
