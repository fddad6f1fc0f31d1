package sync

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/sync"
)

func platformOrder(id string, status sync.OrderStatus, total float64) sync.PlatformOrder {
	return sync.PlatformOrder{
		PlatformOrderID: id,
		Status:          status,
		CustomerName:    "Jamie Doe",
		CustomerEmail:   "jamie@example.com",
		ShippingAddress: "1 Main St, Springfield",
		Currency:        "USD",
		Total:           decimal.NewFromFloat(total),
		Items: []sync.PlatformOrderItem{
			{PlatformLineItemID: id + "-1", SKU: "MUG-001", Title: "Ceramic Mug", Quantity: 2, UnitPrice: decimal.NewFromFloat(total / 2)},
		},
		PlacedAt: time.Now().Add(-time.Hour),
	}
}

func newOrderService(f *serviceFixture, adapter *mockAdapter, tenantID uuid.UUID) *OrderSyncService {
	vault := newFakeVault()
	vault.put(tenantID, adapter.platform, &sync.Credentials{AccessToken: "tok"})
	creds := NewCredentialManager(vault, newStubRegistry(adapter), zap.NewNop())
	return NewOrderSyncService(f.orders, creds, zap.NewNop())
}

func TestOrderSyncService_ImportOrders(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	since := time.Now().Add(-24 * time.Hour)

	t.Run("first import creates orders with their items", func(t *testing.T) {
		f := setupServiceTest(t)
		adapter := &mockAdapter{
			platform: sync.PlatformShopify,
			ordersFn: func(_ context.Context, _ *sync.Credentials, filter sync.OrderFilter) (*sync.OrderPage, error) {
				assert.WithinDuration(t, since, filter.CreatedAfter, time.Second)
				return &sync.OrderPage{Orders: []sync.PlatformOrder{
					platformOrder("SHOP-100", sync.OrderStatusPending, 49.00),
					platformOrder("SHOP-101", sync.OrderStatusProcessing, 18.00),
				}}, nil
			},
		}
		svc := newOrderService(f, adapter, tenantID)

		result, err := svc.ImportOrders(ctx, tenantID, sync.PlatformShopify, since)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Total)
		assert.Equal(t, 2, result.Created)
		assert.Equal(t, 0, result.Updated)

		stored, err := f.orders.FindByPlatformOrderID(ctx, tenantID, sync.PlatformShopify, "SHOP-100")
		require.NoError(t, err)
		assert.Equal(t, sync.OrderStatusPending, stored.Status)
		require.Len(t, stored.Items, 1)
		assert.Equal(t, "MUG-001", stored.Items[0].SKU)
	})

	t.Run("re-import updates fulfillment fields without duplicating", func(t *testing.T) {
		f := setupServiceTest(t)
		first := platformOrder("ETSY-7", sync.OrderStatusPending, 30.00)
		shipped := platformOrder("ETSY-7", sync.OrderStatusShipped, 30.00)
		shipped.Items = append(shipped.Items, sync.PlatformOrderItem{
			PlatformLineItemID: "ETSY-7-2", SKU: "MUG-002", Title: "Travel Mug", Quantity: 1, UnitPrice: decimal.NewFromInt(10),
		})

		pages := [][]sync.PlatformOrder{{first}, {shipped}}
		call := 0
		adapter := &mockAdapter{
			platform: sync.PlatformEtsy,
			ordersFn: func(_ context.Context, _ *sync.Credentials, _ sync.OrderFilter) (*sync.OrderPage, error) {
				page := &sync.OrderPage{Orders: pages[call]}
				call++
				return page, nil
			},
		}
		svc := newOrderService(f, adapter, tenantID)

		_, err := svc.ImportOrders(ctx, tenantID, sync.PlatformEtsy, since)
		require.NoError(t, err)
		result, err := svc.ImportOrders(ctx, tenantID, sync.PlatformEtsy, since)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Created)
		assert.Equal(t, 1, result.Updated)

		stored, err := f.orders.FindByPlatformOrderID(ctx, tenantID, sync.PlatformEtsy, "ETSY-7")
		require.NoError(t, err)
		assert.Equal(t, sync.OrderStatusShipped, stored.Status)
		// line items are immutable after import
		assert.Len(t, stored.Items, 1)

		orders, _, err := f.orders.List(ctx, tenantID, 0, 50)
		require.NoError(t, err)
		assert.Len(t, orders, 1)
	})

	t.Run("a malformed order is skipped, the batch continues", func(t *testing.T) {
		f := setupServiceTest(t)
		bad := platformOrder("", sync.OrderStatusPending, 10.00)
		good := platformOrder("AMZ-1", sync.OrderStatusPending, 20.00)
		adapter := &mockAdapter{
			platform: sync.PlatformAmazon,
			ordersFn: func(_ context.Context, _ *sync.Credentials, _ sync.OrderFilter) (*sync.OrderPage, error) {
				return &sync.OrderPage{Orders: []sync.PlatformOrder{bad, good}}, nil
			},
		}
		svc := newOrderService(f, adapter, tenantID)

		result, err := svc.ImportOrders(ctx, tenantID, sync.PlatformAmazon, since)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Total)
		assert.Equal(t, 1, result.Created)
		assert.Equal(t, 1, result.Skipped)
		require.Len(t, result.Failures, 1)
	})

	t.Run("pagination follows the cursor until the last page", func(t *testing.T) {
		f := setupServiceTest(t)
		adapter := &mockAdapter{
			platform: sync.PlatformEbay,
			ordersFn: func(_ context.Context, _ *sync.Credentials, filter sync.OrderFilter) (*sync.OrderPage, error) {
				if filter.Cursor == "" {
					return &sync.OrderPage{
						Orders:     []sync.PlatformOrder{platformOrder("EBAY-1", sync.OrderStatusPending, 5.00)},
						NextCursor: "page-2",
						HasMore:    true,
					}, nil
				}
				return &sync.OrderPage{
					Orders: []sync.PlatformOrder{platformOrder("EBAY-2", sync.OrderStatusPending, 6.00)},
				}, nil
			},
		}
		svc := newOrderService(f, adapter, tenantID)

		result, err := svc.ImportOrders(ctx, tenantID, sync.PlatformEbay, since)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Created)
	})

	t.Run("fetch failure aborts the run", func(t *testing.T) {
		f := setupServiceTest(t)
		adapter := &mockAdapter{
			platform: sync.PlatformSquare,
			ordersFn: func(_ context.Context, _ *sync.Credentials, _ sync.OrderFilter) (*sync.OrderPage, error) {
				return nil, sync.NewAdapterError(sync.PlatformSquare, 503, "unavailable")
			},
		}
		svc := newOrderService(f, adapter, tenantID)

		_, err := svc.ImportOrders(ctx, tenantID, sync.PlatformSquare, since)
		assert.Error(t, err)
	})
}
