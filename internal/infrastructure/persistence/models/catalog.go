package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketsync/backend/internal/domain/sku"
)

// SkuMappingModel is the persistence model for explicit channel-SKU overrides
type SkuMappingModel struct {
	ChannelSku   string    `gorm:"type:varchar(100);primary_key"`
	CanonicalSku string    `gorm:"type:varchar(100);not null;index"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SkuMappingModel) TableName() string {
	return "sku_mappings"
}

// ToDomain converts the persistence model to a domain mapping
func (m *SkuMappingModel) ToDomain() sku.Mapping {
	return sku.Mapping{
		ChannelSku:   m.ChannelSku,
		CanonicalSku: m.CanonicalSku,
	}
}

// FromDomain populates the persistence model from a domain mapping
func (m *SkuMappingModel) FromDomain(d sku.Mapping) {
	m.ChannelSku = d.ChannelSku
	m.CanonicalSku = d.CanonicalSku
}

// ReturnPatternModel is the persistence model for return-extraction patterns
type ReturnPatternModel struct {
	Expression   string    `gorm:"type:varchar(255);primary_key"`
	CaptureGroup int       `gorm:"not null;default:1"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ReturnPatternModel) TableName() string {
	return "return_patterns"
}

// ToDomain converts the persistence model to a domain pattern
func (m *ReturnPatternModel) ToDomain() sku.ReturnPattern {
	return sku.ReturnPattern{
		Expression:   m.Expression,
		CaptureGroup: m.CaptureGroup,
	}
}

// FromDomain populates the persistence model from a domain pattern
func (m *ReturnPatternModel) FromDomain(d sku.ReturnPattern) {
	m.Expression = d.Expression
	m.CaptureGroup = d.CaptureGroup
}

// SafetyStockModel is the persistence model for per-SKU safety floors
type SafetyStockModel struct {
	Sku       string          `gorm:"type:varchar(100);primary_key"`
	Floor     decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	CreatedAt time.Time       `gorm:"not null"`
	UpdatedAt time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SafetyStockModel) TableName() string {
	return "safety_stock_overrides"
}

// ToDomain converts the persistence model to a domain override
func (m *SafetyStockModel) ToDomain() sku.SafetyStockOverride {
	return sku.SafetyStockOverride{
		Sku:   m.Sku,
		Floor: m.Floor,
	}
}

// FromDomain populates the persistence model from a domain override
func (m *SafetyStockModel) FromDomain(d sku.SafetyStockOverride) {
	m.Sku = d.Sku
	m.Floor = d.Floor
}
