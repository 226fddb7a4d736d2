package persistence

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/marketsync/backend/internal/domain/sku"
	"github.com/marketsync/backend/internal/infrastructure/persistence/models"
)

// newMockConfigStore creates a GormConfigStore with a mocked SQL connection
func newMockConfigStore(t *testing.T) (*GormConfigStore, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormConfigStore(gormDB), mock, mockDB
}

func TestGormConfigStore_SkuMappings(t *testing.T) {
	t.Run("returns all mappings", func(t *testing.T) {
		store, mock, mockDB := newMockConfigStore(t)
		defer mockDB.Close()

		rows := sqlmock.NewRows([]string{"channel_sku", "canonical_sku"}).
			AddRow("OLD-SKU", "01001").
			AddRow("18055-FBM", "18056")

		mock.ExpectQuery(`SELECT \* FROM "sku_mappings"`).WillReturnRows(rows)

		mappings, err := store.SkuMappings(context.Background())
		require.NoError(t, err)
		require.Len(t, mappings, 2)
		assert.Equal(t, "OLD-SKU", mappings[0].ChannelSku)
		assert.Equal(t, "01001", mappings[0].CanonicalSku)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("propagates query errors", func(t *testing.T) {
		store, mock, mockDB := newMockConfigStore(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "sku_mappings"`).
			WillReturnError(errors.New("connection reset"))

		_, err := store.SkuMappings(context.Background())
		assert.Error(t, err)
	})
}

func TestGormConfigStore_ReturnPatterns(t *testing.T) {
	store, mock, mockDB := newMockConfigStore(t)
	defer mockDB.Close()

	rows := sqlmock.NewRows([]string{"expression", "capture_group"}).
		AddRow(`^RET-(.+)-R\d+$`, 1)

	mock.ExpectQuery(`SELECT \* FROM "return_patterns"`).WillReturnRows(rows)

	patterns, err := store.ReturnPatterns(context.Background())
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, 1, patterns[0].CaptureGroup)
}

func TestGormConfigStore_SafetyStockOverrides(t *testing.T) {
	store, mock, mockDB := newMockConfigStore(t)
	defer mockDB.Close()

	rows := sqlmock.NewRows([]string{"sku", "floor"}).
		AddRow("01001", "5")

	mock.ExpectQuery(`SELECT \* FROM "safety_stock_overrides"`).WillReturnRows(rows)

	overrides, err := store.SafetyStockOverrides(context.Background())
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.True(t, decimal.NewFromInt(5).Equal(overrides[0].Floor))
}

// Put paths run against a real in-memory database so the upsert clause is
// exercised end to end.
func TestGormConfigStore_PutRoundTrips(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.SkuMappingModel{},
		&models.ReturnPatternModel{},
		&models.SafetyStockModel{},
	))
	store := NewGormConfigStore(db)
	ctx := context.Background()

	t.Run("sku mapping upsert", func(t *testing.T) {
		require.NoError(t, store.PutSkuMapping(ctx, sku.Mapping{ChannelSku: "OLD", CanonicalSku: "01001"}))
		require.NoError(t, store.PutSkuMapping(ctx, sku.Mapping{ChannelSku: "OLD", CanonicalSku: "01002"}))

		mappings, err := store.SkuMappings(ctx)
		require.NoError(t, err)
		require.Len(t, mappings, 1)
		assert.Equal(t, "01002", mappings[0].CanonicalSku)
	})

	t.Run("return pattern upsert", func(t *testing.T) {
		require.NoError(t, store.PutReturnPattern(ctx, sku.ReturnPattern{Expression: `^RET-(.+)$`, CaptureGroup: 1}))

		patterns, err := store.ReturnPatterns(ctx)
		require.NoError(t, err)
		assert.Len(t, patterns, 1)
	})

	t.Run("safety stock upsert", func(t *testing.T) {
		require.NoError(t, store.PutSafetyStockOverride(ctx, sku.SafetyStockOverride{
			Sku: "01001", Floor: decimal.NewFromInt(5),
		}))
		require.NoError(t, store.PutSafetyStockOverride(ctx, sku.SafetyStockOverride{
			Sku: "01001", Floor: decimal.NewFromInt(8),
		}))

		overrides, err := store.SafetyStockOverrides(ctx)
		require.NoError(t, err)
		require.Len(t, overrides, 1)
		assert.True(t, decimal.NewFromInt(8).Equal(overrides[0].Floor))
	})
}
