package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/marketsync/backend/internal/domain/billing"
	"github.com/marketsync/backend/internal/domain/shared"
	"github.com/marketsync/backend/internal/infrastructure/persistence/models"
)

// GormOrderRefRepository implements billing.OrderRefRepository using GORM.
// Save relies on the primary key on external_id: a second insert for the same
// transaction fails at the database, which is the idempotency guarantee.
type GormOrderRefRepository struct {
	db *gorm.DB
}

// NewGormOrderRefRepository creates a new GormOrderRefRepository
func NewGormOrderRefRepository(db *gorm.DB) *GormOrderRefRepository {
	return &GormOrderRefRepository{db: db}
}

// FindByExternalID returns the ref for a channel transaction
func (r *GormOrderRefRepository) FindByExternalID(ctx context.Context, externalID string) (*billing.OrderRef, error) {
	var model models.OrderRefModel
	if err := r.db.WithContext(ctx).
		First(&model, "external_id = ?", externalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.ErrOrderRefNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save inserts a new ref, failing on duplicate ExternalID
func (r *GormOrderRefRepository) Save(ctx context.Context, ref *billing.OrderRef) error {
	var model models.OrderRefModel
	model.FromDomain(ref)

	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: %s", shared.ErrDuplicateTransaction, ref.ExternalID)
		}
		return err
	}
	return nil
}

// Update persists step advancement
func (r *GormOrderRefRepository) Update(ctx context.Context, ref *billing.OrderRef) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderRefModel{}).
		Where("external_id = ?", ref.ExternalID).
		Updates(map[string]any{
			"step":       string(ref.Step),
			"updated_at": ref.UpdatedAt,
		}).Error
}

// isDuplicateKey detects unique violations across the drivers we run on
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || // postgres
		strings.Contains(msg, "UNIQUE constraint failed") // sqlite
}
