package webhook

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	appsync "github.com/channelhub/backend/internal/application/sync"
	"github.com/channelhub/backend/internal/domain/sync"
	"github.com/channelhub/backend/internal/infrastructure/persistence"
	"github.com/channelhub/backend/internal/infrastructure/persistence/models"
)

// plainVault serves fixed plaintext credentials for every tenant connection
type plainVault struct{}

func (plainVault) Store(_ context.Context, tenantID uuid.UUID, platform sync.Platform, _ *sync.Credentials) (*sync.PlatformConnection, error) {
	return sync.NewPlatformConnection(tenantID, platform, "enc-access", "enc-refresh")
}

func (plainVault) Get(_ context.Context, _ uuid.UUID, _ sync.Platform) (*sync.Credentials, error) {
	return &sync.Credentials{AccessToken: "tok"}, nil
}

func (plainVault) ListMasked(_ context.Context, _ uuid.UUID) ([]sync.MaskedConnection, error) {
	return nil, nil
}

func (plainVault) Disconnect(_ context.Context, _ uuid.UUID, _ sync.Platform) error { return nil }

func (plainVault) MarkError(_ context.Context, _ uuid.UUID, _ sync.Platform, _ string) error {
	return nil
}

type processFixture struct {
	products sync.ProductRepository
	orders   sync.OrderRepository
	adapter  *webhookAdapter
	service  *ProcessService
}

func setupProcessTest(t *testing.T, platform sync.Platform) *processFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.ProductModel{},
		&models.PlatformListingModel{},
		&models.InventoryLogModel{},
		&models.OrderModel{},
		&models.OrderItemModel{},
	))

	products := persistence.NewGormProductRepository(db)
	listings := persistence.NewGormListingRepository(db)
	inventoryLogs := persistence.NewGormInventoryLogRepository(db)
	orders := persistence.NewGormOrderRepository(db)

	adapter := &webhookAdapter{platform: platform}
	creds := appsync.NewCredentialManager(plainVault{}, registryOf(adapter), zap.NewNop())
	orderSvc := appsync.NewOrderSyncService(orders, creds, zap.NewNop())
	inventorySvc := appsync.NewInventorySyncService(products, listings, inventoryLogs, creds, zap.NewNop())

	return &processFixture{
		products: products,
		orders:   orders,
		adapter:  adapter,
		service:  NewProcessService(orderSvc, inventorySvc, zap.NewNop()),
	}
}

func webhookJob(t *testing.T, tenantID uuid.UUID, platform sync.Platform, eventType sync.WebhookEventType, deliveryID string) *sync.SyncJob {
	t.Helper()
	payload, err := json.Marshal(JobPayload{
		EventType:  eventType,
		SourceID:   "acme.myshopify.com",
		DeliveryID: deliveryID,
	})
	require.NoError(t, err)
	job, err := sync.NewSyncJob(tenantID, sync.JobTypeWebhook, platform, payload, deliveryID)
	require.NoError(t, err)
	return job
}

func TestProcessService_Handle(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	t.Run("order event imports recent orders", func(t *testing.T) {
		f := setupProcessTest(t, sync.PlatformShopify)
		f.adapter.ordersFn = func(_ context.Context, _ *sync.Credentials, filter sync.OrderFilter) (*sync.OrderPage, error) {
			assert.WithinDuration(t, time.Now().Add(-time.Hour), filter.CreatedAfter, 5*time.Second)
			return &sync.OrderPage{Orders: []sync.PlatformOrder{{
				PlatformOrderID: "SHOP-55",
				Status:          sync.OrderStatusPending,
				Currency:        "USD",
				Total:           decimal.NewFromInt(40),
				Items: []sync.PlatformOrderItem{
					{PlatformLineItemID: "SHOP-55-1", SKU: "MUG-001", Title: "Ceramic Mug", Quantity: 1, UnitPrice: decimal.NewFromInt(40)},
				},
				PlacedAt: time.Now().Add(-10 * time.Minute),
			}}}, nil
		}

		result, err := f.service.Handle(ctx, webhookJob(t, tenantID, sync.PlatformShopify, sync.WebhookEventOrderCreated, "dlv-1"))
		require.NoError(t, err)
		assert.Contains(t, result, "1 created")

		stored, err := f.orders.FindByPlatformOrderID(ctx, tenantID, sync.PlatformShopify, "SHOP-55")
		require.NoError(t, err)
		assert.Equal(t, sync.OrderStatusPending, stored.Status)
	})

	t.Run("inventory event refreshes matched stock", func(t *testing.T) {
		f := setupProcessTest(t, sync.PlatformEtsy)
		product, err := sync.NewProduct(tenantID, "MUG-002", "Travel Mug", decimal.NewFromInt(18), 9)
		require.NoError(t, err)
		product.Activate()
		require.NoError(t, f.products.Create(ctx, product))

		f.adapter.fetchFn = func(_ context.Context, _ *sync.Credentials, _ string) (*sync.ProductPage, error) {
			return &sync.ProductPage{Products: []sync.PlatformProduct{
				{PlatformProductID: "e-1", SKU: "MUG-002", Quantity: 2},
			}}, nil
		}

		result, err := f.service.Handle(ctx, webhookJob(t, tenantID, sync.PlatformEtsy, sync.WebhookEventInventoryUpdated, "dlv-2"))
		require.NoError(t, err)
		assert.Contains(t, result, "refreshed 1/1")

		updated, err := f.products.FindByID(ctx, tenantID, product.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, updated.Quantity)
	})

	t.Run("malformed payload fails the job", func(t *testing.T) {
		f := setupProcessTest(t, sync.PlatformShopify)
		job, err := sync.NewSyncJob(tenantID, sync.JobTypeWebhook, sync.PlatformShopify, []byte("not json"), "dlv-3")
		require.NoError(t, err)

		_, err = f.service.Handle(ctx, job)
		assert.ErrorIs(t, err, sync.ErrJobPayloadInvalid)
	})

	t.Run("unknown event type is acknowledged, not retried", func(t *testing.T) {
		f := setupProcessTest(t, sync.PlatformShopify)

		result, err := f.service.Handle(ctx, webhookJob(t, tenantID, sync.PlatformShopify, "order.archived", "dlv-4"))
		require.NoError(t, err)
		assert.Contains(t, result, "ignored")
	})
}
