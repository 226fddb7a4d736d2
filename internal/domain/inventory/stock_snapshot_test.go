package inventory

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestStockSnapshot_PublishableQty(t *testing.T) {
	tests := []struct {
		name     string
		source   int64
		reserved int64
		floor    int64
		expected int
	}{
		{"plain surplus", 100, 20, 10, 70},
		{"floor consumes everything", 10, 0, 10, 0},
		{"reservation exceeds stock", 5, 8, 0, 0},
		{"deeply negative clamps to zero", 3, 10, 25, 0},
		{"all zero", 0, 0, 0, 0},
		{"no buffers", 42, 0, 0, 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := StockSnapshot{
				Sku:         "01006",
				SourceQty:   decimal.NewFromInt(tt.source),
				ReservedQty: decimal.NewFromInt(tt.reserved),
				SafetyFloor: decimal.NewFromInt(tt.floor),
			}
			got := s.PublishableQty()
			assert.Equal(t, tt.expected, got)
			assert.GreaterOrEqual(t, got, 0, "published quantity must never be negative")
		})
	}

	t.Run("fractional free quantity truncates", func(t *testing.T) {
		s := StockSnapshot{
			SourceQty:   decimal.NewFromFloat(10.8),
			ReservedQty: decimal.NewFromInt(2),
			SafetyFloor: decimal.NewFromInt(3),
		}
		assert.Equal(t, 5, s.PublishableQty())
	})
}

func TestStockSnapshot_Delta(t *testing.T) {
	s := StockSnapshot{
		SourceQty:     decimal.NewFromInt(50),
		ReservedQty:   decimal.NewFromInt(5),
		SafetyFloor:   decimal.NewFromInt(10),
		LastPublished: 30,
	}
	assert.Equal(t, 5, s.Delta())

	s.LastPublished = 40
	assert.Equal(t, -5, s.Delta())
}

func TestStockSnapshot_IsDirty(t *testing.T) {
	s := StockSnapshot{
		SourceQty:     decimal.NewFromInt(30),
		LastPublished: 28,
	}
	// delta = +2
	assert.True(t, s.IsDirty(1))
	assert.True(t, s.IsDirty(2))
	assert.False(t, s.IsDirty(3))

	t.Run("zero threshold behaves as 1", func(t *testing.T) {
		clean := StockSnapshot{SourceQty: decimal.NewFromInt(28), LastPublished: 28}
		assert.False(t, clean.IsDirty(0))
		assert.True(t, s.IsDirty(0))
	})

	t.Run("negative delta uses magnitude", func(t *testing.T) {
		down := StockSnapshot{SourceQty: decimal.NewFromInt(10), LastPublished: 14}
		assert.True(t, down.IsDirty(4))
		assert.False(t, down.IsDirty(5))
	})
}
