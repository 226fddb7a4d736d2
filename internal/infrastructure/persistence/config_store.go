package persistence

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/marketsync/backend/internal/domain/sku"
	"github.com/marketsync/backend/internal/infrastructure/persistence/models"
)

// GormConfigStore implements integration.ConfigurationStore using GORM
type GormConfigStore struct {
	db *gorm.DB
}

// NewGormConfigStore creates a new GormConfigStore
func NewGormConfigStore(db *gorm.DB) *GormConfigStore {
	return &GormConfigStore{db: db}
}

// SkuMappings returns all explicit channel-to-canonical overrides
func (s *GormConfigStore) SkuMappings(ctx context.Context) ([]sku.Mapping, error) {
	var rows []models.SkuMappingModel
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	mappings := make([]sku.Mapping, 0, len(rows))
	for _, row := range rows {
		mappings = append(mappings, row.ToDomain())
	}
	return mappings, nil
}

// PutSkuMapping inserts or replaces a mapping
func (s *GormConfigStore) PutSkuMapping(ctx context.Context, m sku.Mapping) error {
	var model models.SkuMappingModel
	model.FromDomain(m)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&model).Error
}

// ReturnPatterns returns all configured return-extraction patterns
func (s *GormConfigStore) ReturnPatterns(ctx context.Context) ([]sku.ReturnPattern, error) {
	var rows []models.ReturnPatternModel
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	patterns := make([]sku.ReturnPattern, 0, len(rows))
	for _, row := range rows {
		patterns = append(patterns, row.ToDomain())
	}
	return patterns, nil
}

// PutReturnPattern inserts or replaces a pattern
func (s *GormConfigStore) PutReturnPattern(ctx context.Context, p sku.ReturnPattern) error {
	var model models.ReturnPatternModel
	model.FromDomain(p)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&model).Error
}

// SafetyStockOverrides returns all per-SKU safety floors
func (s *GormConfigStore) SafetyStockOverrides(ctx context.Context) ([]sku.SafetyStockOverride, error) {
	var rows []models.SafetyStockModel
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	overrides := make([]sku.SafetyStockOverride, 0, len(rows))
	for _, row := range rows {
		overrides = append(overrides, row.ToDomain())
	}
	return overrides, nil
}

// PutSafetyStockOverride inserts or replaces an override
func (s *GormConfigStore) PutSafetyStockOverride(ctx context.Context, o sku.SafetyStockOverride) error {
	var model models.SafetyStockModel
	model.FromDomain(o)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&model).Error
}
