package sync

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/sync"
)

func createActiveProduct(t *testing.T, f *serviceFixture, tenantID uuid.UUID, sku string, quantity int) *sync.Product {
	t.Helper()
	product, err := sync.NewProduct(tenantID, sku, "Ceramic Mug", decimal.NewFromFloat(24.50), quantity)
	require.NoError(t, err)
	product.Activate()
	require.NoError(t, f.products.Create(context.Background(), product))
	return product
}

func newProductService(f *serviceFixture, registry sync.AdapterRegistry, vault sync.CredentialVault) *ProductSyncService {
	creds := NewCredentialManager(vault, registry, zap.NewNop())
	return NewProductSyncService(f.products, f.listings, f.connections, creds, zap.NewNop())
}

func TestProductSyncService_SyncProduct(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	t.Run("first sync creates the listing and records the snapshot", func(t *testing.T) {
		f := setupServiceTest(t)
		product := createActiveProduct(t, f, tenantID, "MUG-001", 12)

		var created sync.ListingDraft
		adapter := &mockAdapter{
			platform: sync.PlatformShopify,
			createFn: func(_ context.Context, _ *sync.Credentials, draft sync.ListingDraft) (string, error) {
				created = draft
				return "shopify-991", nil
			},
		}
		vault := newFakeVault()
		vault.put(tenantID, sync.PlatformShopify, &sync.Credentials{AccessToken: "tok"})
		svc := newProductService(f, newStubRegistry(adapter), vault)

		results, err := svc.SyncProduct(ctx, tenantID, product.ID, []sync.Platform{sync.PlatformShopify})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.True(t, results[0].Success)
		assert.Equal(t, "shopify-991", results[0].PlatformListingID)
		assert.Equal(t, "MUG-001", created.SKU)
		assert.Equal(t, 12, created.Quantity)

		listing, err := f.listings.FindByProductAndPlatform(ctx, product.ID, sync.PlatformShopify)
		require.NoError(t, err)
		assert.Equal(t, sync.ListingStatusActive, listing.Status)
		assert.Equal(t, "shopify-991", listing.PlatformListingID)
		assert.Equal(t, 12, listing.SyncedQuantity)
		assert.True(t, listing.SyncedPrice.Equal(product.Price))
		assert.NotNil(t, listing.LastSyncedAt)
	})

	t.Run("existing listing is updated, not recreated", func(t *testing.T) {
		f := setupServiceTest(t)
		product := createActiveProduct(t, f, tenantID, "MUG-002", 5)

		updates := 0
		adapter := &mockAdapter{
			platform: sync.PlatformEtsy,
			createFn: func(_ context.Context, _ *sync.Credentials, _ sync.ListingDraft) (string, error) {
				return "etsy-1", nil
			},
			updateFn: func(_ context.Context, _ *sync.Credentials, platformListingID string, _ sync.ListingDraft) error {
				updates++
				assert.Equal(t, "etsy-1", platformListingID)
				return nil
			},
		}
		vault := newFakeVault()
		vault.put(tenantID, sync.PlatformEtsy, &sync.Credentials{AccessToken: "tok"})
		svc := newProductService(f, newStubRegistry(adapter), vault)

		_, err := svc.SyncProduct(ctx, tenantID, product.ID, []sync.Platform{sync.PlatformEtsy})
		require.NoError(t, err)
		_, err = svc.SyncProduct(ctx, tenantID, product.ID, []sync.Platform{sync.PlatformEtsy})
		require.NoError(t, err)
		assert.Equal(t, 1, updates)

		listings, err := f.listings.FindByProduct(ctx, product.ID)
		require.NoError(t, err)
		assert.Len(t, listings, 1)
	})

	t.Run("one platform failing never blocks the others", func(t *testing.T) {
		f := setupServiceTest(t)
		product := createActiveProduct(t, f, tenantID, "MUG-003", 7)

		healthy := &mockAdapter{platform: sync.PlatformShopify}
		broken := &mockAdapter{
			platform: sync.PlatformAmazon,
			createFn: func(_ context.Context, _ *sync.Credentials, _ sync.ListingDraft) (string, error) {
				return "", sync.NewAdapterError(sync.PlatformAmazon, 500, "internal error")
			},
		}
		vault := newFakeVault()
		vault.put(tenantID, sync.PlatformShopify, &sync.Credentials{AccessToken: "tok"})
		vault.put(tenantID, sync.PlatformAmazon, &sync.Credentials{AccessToken: "tok"})
		svc := newProductService(f, newStubRegistry(healthy, broken), vault)

		results, err := svc.SyncProduct(ctx, tenantID, product.ID, []sync.Platform{sync.PlatformShopify, sync.PlatformAmazon})
		require.NoError(t, err)
		require.Len(t, results, 2)

		byPlatform := make(map[sync.Platform]PlatformResult)
		for _, r := range results {
			byPlatform[r.Platform] = r
		}
		assert.True(t, byPlatform[sync.PlatformShopify].Success)
		assert.False(t, byPlatform[sync.PlatformAmazon].Success)
		assert.Contains(t, byPlatform[sync.PlatformAmazon].Error, "internal error")

		failed, err := f.listings.FindByProductAndPlatform(ctx, product.ID, sync.PlatformAmazon)
		require.NoError(t, err)
		assert.Equal(t, sync.ListingStatusError, failed.Status)
		assert.Contains(t, failed.LastError, "internal error")
	})

	t.Run("empty platform list targets every active connection", func(t *testing.T) {
		f := setupServiceTest(t)
		product := createActiveProduct(t, f, tenantID, "MUG-004", 3)
		f.connect(t, tenantID, sync.PlatformShopify)
		f.connect(t, tenantID, sync.PlatformEbay)

		vault := newFakeVault()
		vault.put(tenantID, sync.PlatformShopify, &sync.Credentials{AccessToken: "tok"})
		vault.put(tenantID, sync.PlatformEbay, &sync.Credentials{AccessToken: "tok"})
		svc := newProductService(f, newStubRegistry(
			&mockAdapter{platform: sync.PlatformShopify},
			&mockAdapter{platform: sync.PlatformEbay},
		), vault)

		results, err := svc.SyncProduct(ctx, tenantID, product.ID, nil)
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})

	t.Run("unknown product is an error", func(t *testing.T) {
		f := setupServiceTest(t)
		svc := newProductService(f, newStubRegistry(), newFakeVault())

		_, err := svc.SyncProduct(ctx, tenantID, uuid.New(), []sync.Platform{sync.PlatformShopify})
		assert.Error(t, err)
	})
}

func TestProductSyncService_SyncAllProducts(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	f := setupServiceTest(t)
	createActiveProduct(t, f, tenantID, "SKU-A", 4)
	createActiveProduct(t, f, tenantID, "SKU-B", 9)
	f.connect(t, tenantID, sync.PlatformShopify)

	adapter := &mockAdapter{
		platform: sync.PlatformShopify,
		createFn: func(_ context.Context, _ *sync.Credentials, draft sync.ListingDraft) (string, error) {
			if draft.SKU == "SKU-B" {
				return "", sync.NewAdapterError(sync.PlatformShopify, 422, "title rejected")
			}
			return "shopify-" + draft.SKU, nil
		},
	}
	vault := newFakeVault()
	vault.put(tenantID, sync.PlatformShopify, &sync.Credentials{AccessToken: "tok"})
	svc := newProductService(f, newStubRegistry(adapter), vault)

	result, err := svc.SyncAllProducts(ctx, tenantID, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalCount)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 1, result.FailedCount)
	assert.Equal(t, sync.SyncStatusPartial, result.Status)
	require.Len(t, result.FailedItems, 1)
	assert.Equal(t, "SKU-B", result.FailedItems[0].ItemID)
}
