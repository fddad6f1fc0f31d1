package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/channelhub/backend/internal/domain/shared"
	"github.com/channelhub/backend/internal/domain/sync"
	"github.com/channelhub/backend/internal/infrastructure/persistence/models"
)

// setupSyncTestDB creates an in-memory SQLite database with all sync tables
func setupSyncTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.PlatformConnectionModel{},
		&models.ProductModel{},
		&models.PlatformListingModel{},
		&models.InventoryLogModel{},
		&models.OrderModel{},
		&models.OrderItemModel{},
		&models.SyncJobModel{},
	)
	require.NoError(t, err)

	return db
}

func newTestProduct(t *testing.T, tenantID uuid.UUID, sku string) *sync.Product {
	product, err := sync.NewProduct(tenantID, sku, "Walnut Desk Organizer", decimal.NewFromFloat(34.50), 12)
	require.NoError(t, err)
	return product
}

func TestGormProductRepository_Create(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewGormProductRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	t.Run("creates and retrieves product", func(t *testing.T) {
		product := newTestProduct(t, tenantID, "DESK-001")
		require.NoError(t, repo.Create(ctx, product))

		found, err := repo.FindByID(ctx, tenantID, product.ID)
		require.NoError(t, err)
		assert.Equal(t, "DESK-001", found.SKU)
		assert.True(t, found.Price.Equal(decimal.NewFromFloat(34.50)))
		assert.Equal(t, 12, found.Quantity)
		assert.Equal(t, sync.ProductStatusDraft, found.Status)
	})

	t.Run("duplicate SKU within tenant is rejected", func(t *testing.T) {
		first := newTestProduct(t, tenantID, "DESK-DUP")
		require.NoError(t, repo.Create(ctx, first))

		second := newTestProduct(t, tenantID, "DESK-DUP")
		err := repo.Create(ctx, second)
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})

	t.Run("same SKU under a different tenant is allowed", func(t *testing.T) {
		other := newTestProduct(t, uuid.New(), "DESK-DUP")
		assert.NoError(t, repo.Create(ctx, other))
	})
}

func TestGormProductRepository_FindBySKU(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewGormProductRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	product := newTestProduct(t, tenantID, "MUG-010")
	require.NoError(t, repo.Create(ctx, product))

	t.Run("finds by SKU", func(t *testing.T) {
		found, err := repo.FindBySKU(ctx, tenantID, "MUG-010")
		require.NoError(t, err)
		assert.Equal(t, product.ID, found.ID)
	})

	t.Run("wrong tenant misses", func(t *testing.T) {
		_, err := repo.FindBySKU(ctx, uuid.New(), "MUG-010")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("unknown SKU misses", func(t *testing.T) {
		_, err := repo.FindBySKU(ctx, tenantID, "MUG-404")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormProductRepository_FindActiveByTenant(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewGormProductRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	active := newTestProduct(t, tenantID, "ACT-001")
	active.Activate()
	require.NoError(t, repo.Create(ctx, active))

	draft := newTestProduct(t, tenantID, "DRF-001")
	require.NoError(t, repo.Create(ctx, draft))

	archived := newTestProduct(t, tenantID, "ARC-001")
	archived.Archive()
	require.NoError(t, repo.Create(ctx, archived))

	products, err := repo.FindActiveByTenant(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "ACT-001", products[0].SKU)
}

func TestGormProductRepository_Update(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewGormProductRepository(db)
	logs := NewGormInventoryLogRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	product := newTestProduct(t, tenantID, "CHAIR-001")
	require.NoError(t, repo.Create(ctx, product))

	log := product.SetQuantity(5, "manual adjustment")
	require.NoError(t, repo.Update(ctx, product))
	require.NoError(t, logs.Append(ctx, log))

	found, err := repo.FindByID(ctx, tenantID, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, found.Quantity)

	entries, err := logs.FindByProduct(ctx, product.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 12, entries[0].OldQuantity)
	assert.Equal(t, 5, entries[0].NewQuantity)
	assert.Equal(t, "manual adjustment", entries[0].Reason)
}

func TestGormProductRepository_List(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewGormProductRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	for _, sku := range []string{"L-001", "L-002", "L-003"} {
		require.NoError(t, repo.Create(ctx, newTestProduct(t, tenantID, sku)))
	}

	page, total, err := repo.List(ctx, tenantID, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, page, 2)

	rest, total, err := repo.List(ctx, tenantID, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, rest, 1)
}
