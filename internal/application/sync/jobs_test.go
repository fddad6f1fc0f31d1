package sync

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/sync"
)

func newJobHandlers(f *serviceFixture, registry sync.AdapterRegistry, vault sync.CredentialVault) *JobHandlers {
	creds := NewCredentialManager(vault, registry, zap.NewNop())
	orders := NewOrderSyncService(f.orders, creds, zap.NewNop())
	products := NewProductSyncService(f.products, f.listings, f.connections, creds, zap.NewNop())
	inventory := NewInventorySyncService(f.products, f.listings, f.inventory, creds, zap.NewNop())
	return NewJobHandlers(orders, products, inventory, DefaultOrderLookback, zap.NewNop())
}

func countingAdapter(platform sync.Platform, pushes map[sync.Platform]int) *mockAdapter {
	return &mockAdapter{
		platform: platform,
		createFn: func(_ context.Context, _ *sync.Credentials, draft sync.ListingDraft) (string, error) {
			pushes[platform]++
			return string(platform) + "-" + draft.SKU, nil
		},
	}
}

func TestJobHandlers_HandleProductSync(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	t.Run("catalog job pushes only to its own platform", func(t *testing.T) {
		f := setupServiceTest(t)
		createActiveProduct(t, f, tenantID, "MUG-001", 5)
		f.connect(t, tenantID, sync.PlatformShopify)
		f.connect(t, tenantID, sync.PlatformEtsy)

		pushes := make(map[sync.Platform]int)
		vault := newFakeVault()
		vault.put(tenantID, sync.PlatformShopify, &sync.Credentials{AccessToken: "tok"})
		vault.put(tenantID, sync.PlatformEtsy, &sync.Credentials{AccessToken: "tok"})
		registry := newStubRegistry(
			countingAdapter(sync.PlatformShopify, pushes),
			countingAdapter(sync.PlatformEtsy, pushes),
		)
		handlers := newJobHandlers(f, registry, vault)

		trigger := NewTriggerService(f.jobs, f.connections, DefaultOrderLookback, 0, zap.NewNop())
		result, err := trigger.TriggerSync(ctx, tenantID, sync.JobTypeProductSync)
		require.NoError(t, err)
		require.Equal(t, 2, result.Enqueued)

		jobs, err := f.jobs.FindRecentByTenant(ctx, tenantID, 10)
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		for _, job := range jobs {
			_, err := handlers.HandleProductSync(ctx, job)
			require.NoError(t, err)
		}

		assert.Equal(t, map[sync.Platform]int{
			sync.PlatformShopify: 1,
			sync.PlatformEtsy:    1,
		}, pushes)
	})

	t.Run("single product job stays scoped to the job platform", func(t *testing.T) {
		f := setupServiceTest(t)
		product := createActiveProduct(t, f, tenantID, "MUG-002", 5)
		f.connect(t, tenantID, sync.PlatformShopify)
		f.connect(t, tenantID, sync.PlatformEtsy)

		pushes := make(map[sync.Platform]int)
		vault := newFakeVault()
		vault.put(tenantID, sync.PlatformShopify, &sync.Credentials{AccessToken: "tok"})
		vault.put(tenantID, sync.PlatformEtsy, &sync.Credentials{AccessToken: "tok"})
		registry := newStubRegistry(
			countingAdapter(sync.PlatformShopify, pushes),
			countingAdapter(sync.PlatformEtsy, pushes),
		)
		handlers := newJobHandlers(f, registry, vault)

		payload, err := json.Marshal(ProductSyncPayload{ProductID: &product.ID})
		require.NoError(t, err)
		job, err := sync.NewSyncJob(tenantID, sync.JobTypeProductSync, sync.PlatformEtsy, payload, "")
		require.NoError(t, err)

		_, err = handlers.HandleProductSync(ctx, job)
		require.NoError(t, err)
		assert.Equal(t, map[sync.Platform]int{sync.PlatformEtsy: 1}, pushes)
	})
}
