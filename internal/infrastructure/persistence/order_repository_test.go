package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channelhub/backend/internal/domain/shared"
	"github.com/channelhub/backend/internal/domain/sync"
)

func newTestOrder(t *testing.T, tenantID uuid.UUID, platformOrderID string) *sync.Order {
	po := &sync.PlatformOrder{
		PlatformOrderID: platformOrderID,
		Status:          sync.OrderStatusProcessing,
		CustomerName:    "Dana Reyes",
		CustomerEmail:   "dana@example.com",
		ShippingAddress: "401 Pine St, Portland OR",
		Currency:        "USD",
		Total:           decimal.NewFromFloat(69.00),
		Items: []sync.PlatformOrderItem{
			{PlatformLineItemID: "li-1", SKU: "DESK-001", Title: "Walnut Desk Organizer", Quantity: 2, UnitPrice: decimal.NewFromFloat(34.50)},
		},
		PlacedAt: time.Now().Add(-time.Hour),
	}
	order, err := sync.NewOrderFromPlatform(tenantID, sync.PlatformShopify, po)
	require.NoError(t, err)
	return order
}

func TestGormOrderRepository_CreateAndFind(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewGormOrderRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	order := newTestOrder(t, tenantID, "shopify-1001")
	require.NoError(t, repo.Create(ctx, order))

	t.Run("find by remote key loads items", func(t *testing.T) {
		found, err := repo.FindByPlatformOrderID(ctx, tenantID, sync.PlatformShopify, "shopify-1001")
		require.NoError(t, err)
		assert.Equal(t, order.ID, found.ID)
		require.Len(t, found.Items, 1)
		assert.Equal(t, "DESK-001", found.Items[0].SKU)
		assert.Equal(t, 2, found.Items[0].Quantity)
	})

	t.Run("find by id loads items", func(t *testing.T) {
		found, err := repo.FindByID(ctx, tenantID, order.ID)
		require.NoError(t, err)
		require.Len(t, found.Items, 1)
	})

	t.Run("same remote order cannot be inserted twice", func(t *testing.T) {
		dup := newTestOrder(t, tenantID, "shopify-1001")
		err := repo.Create(ctx, dup)
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})

	t.Run("same remote id on another platform is a different order", func(t *testing.T) {
		other := newTestOrder(t, tenantID, "shopify-1001")
		other.Platform = sync.PlatformEbay
		assert.NoError(t, repo.Create(ctx, other))
	})
}

func TestGormOrderRepository_UpdateHeader(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewGormOrderRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	order := newTestOrder(t, tenantID, "shopify-2001")
	require.NoError(t, repo.Create(ctx, order))

	order.ApplyUpdate(&sync.PlatformOrder{
		PlatformOrderID: "shopify-2001",
		Status:          sync.OrderStatusShipped,
		Total:           decimal.NewFromFloat(72.50),
		ShippingAddress: "88 Oak Ave, Portland OR",
	})
	require.NoError(t, repo.UpdateHeader(ctx, order))

	found, err := repo.FindByID(ctx, tenantID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, sync.OrderStatusShipped, found.Status)
	assert.True(t, found.Total.Equal(decimal.NewFromFloat(72.50)))
	assert.Equal(t, "88 Oak Ave, Portland OR", found.ShippingAddress)

	// line items survive header updates untouched
	require.Len(t, found.Items, 1)
	assert.Equal(t, 2, found.Items[0].Quantity)

	t.Run("unknown order yields not found", func(t *testing.T) {
		ghost := newTestOrder(t, tenantID, "shopify-9999")
		err := repo.UpdateHeader(ctx, ghost)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormOrderRepository_List(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewGormOrderRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	older := newTestOrder(t, tenantID, "shopify-3001")
	older.PlacedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, repo.Create(ctx, older))

	newer := newTestOrder(t, tenantID, "shopify-3002")
	newer.PlacedAt = time.Now().Add(-time.Hour)
	require.NoError(t, repo.Create(ctx, newer))

	orders, total, err := repo.List(ctx, tenantID, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, orders, 2)
	assert.Equal(t, "shopify-3002", orders[0].PlatformOrderID)
	assert.Equal(t, "shopify-3001", orders[1].PlatformOrderID)

	t.Run("other tenant sees nothing", func(t *testing.T) {
		orders, total, err := repo.List(ctx, uuid.New(), 0, 10)
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, orders)
	})
}
