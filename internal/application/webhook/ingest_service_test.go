package webhook

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/channelhub/backend/internal/domain/sync"
	"github.com/channelhub/backend/internal/infrastructure/cache"
	"github.com/channelhub/backend/internal/infrastructure/persistence"
	"github.com/channelhub/backend/internal/infrastructure/persistence/models"
)

type ingestFixture struct {
	connections sync.ConnectionRepository
	jobs        sync.JobRepository
	dedup       *cache.InMemoryIdempotencyStore
	adapter     *webhookAdapter
	service     *IngestService
}

// flakyJobRepository fails the next N Enqueue calls to exercise the
// transient-failure paths of the ingest pipeline.
type flakyJobRepository struct {
	sync.JobRepository
	failures int
}

func (r *flakyJobRepository) Enqueue(ctx context.Context, job *sync.SyncJob) error {
	if r.failures > 0 {
		r.failures--
		return errors.New("queue backend unavailable")
	}
	return r.JobRepository.Enqueue(ctx, job)
}

func setupIngestTest(t *testing.T, platform sync.Platform) *ingestFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.PlatformConnectionModel{}, &models.SyncJobModel{}))

	connections := persistence.NewGormConnectionRepository(db)
	jobs := persistence.NewGormJobRepository(db)
	adapter := &webhookAdapter{platform: platform}
	dedup := cache.NewInMemoryIdempotencyStore()
	t.Cleanup(func() { _ = dedup.Close() })

	registry := registryOf(adapter)
	return &ingestFixture{
		connections: connections,
		jobs:        jobs,
		dedup:       dedup,
		adapter:     adapter,
		service:     NewIngestService(registry, connections, jobs, dedup, time.Minute, 0, zap.NewNop()),
	}
}

func (f *ingestFixture) connectShop(t *testing.T, platform sync.Platform, shopDomain string) uuid.UUID {
	t.Helper()
	tenantID := uuid.New()
	conn, err := sync.NewPlatformConnection(tenantID, platform, "enc-access", "enc-refresh")
	require.NoError(t, err)
	conn.Metadata["shop_domain"] = shopDomain
	require.NoError(t, f.connections.Save(context.Background(), conn))
	return tenantID
}

func orderCreatedEvent(platform sync.Platform, sourceID, deliveryID string) *sync.WebhookEvent {
	return &sync.WebhookEvent{
		Platform:   platform,
		EventType:  sync.WebhookEventOrderCreated,
		SourceID:   sourceID,
		DeliveryID: deliveryID,
		Payload:    []byte(`{"id":100}`),
	}
}

func TestIngestService_Ingest(t *testing.T) {
	ctx := context.Background()
	req := &sync.WebhookRequest{Method: "POST", Body: []byte(`{"id":100}`)}

	t.Run("verified delivery is enqueued for the resolved tenant", func(t *testing.T) {
		f := setupIngestTest(t, sync.PlatformShopify)
		tenantID := f.connectShop(t, sync.PlatformShopify, "acme.myshopify.com")
		f.adapter.verifyFn = func(_ *sync.WebhookRequest) (*sync.WebhookEvent, error) {
			return orderCreatedEvent(sync.PlatformShopify, "acme.myshopify.com", "dlv-1"), nil
		}

		require.NoError(t, f.service.Ingest(ctx, sync.PlatformShopify, req))

		jobs, err := f.jobs.FindRecentByTenant(ctx, tenantID, 10)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, sync.JobTypeWebhook, jobs[0].Type)
		assert.Equal(t, sync.PlatformShopify, jobs[0].Platform)
		assert.Contains(t, string(jobs[0].Payload), "order.created")
	})

	t.Run("invalid signature propagates and enqueues nothing", func(t *testing.T) {
		f := setupIngestTest(t, sync.PlatformShopify)
		tenantID := f.connectShop(t, sync.PlatformShopify, "acme.myshopify.com")
		f.adapter.verifyFn = func(_ *sync.WebhookRequest) (*sync.WebhookEvent, error) {
			return nil, sync.ErrInvalidSignature
		}

		err := f.service.Ingest(ctx, sync.PlatformShopify, req)
		assert.ErrorIs(t, err, sync.ErrInvalidSignature)

		jobs, err := f.jobs.FindRecentByTenant(ctx, tenantID, 10)
		require.NoError(t, err)
		assert.Empty(t, jobs)
	})

	t.Run("unclassified event is acked without a job", func(t *testing.T) {
		f := setupIngestTest(t, sync.PlatformShopify)
		tenantID := f.connectShop(t, sync.PlatformShopify, "acme.myshopify.com")
		f.adapter.verifyFn = func(_ *sync.WebhookRequest) (*sync.WebhookEvent, error) {
			return nil, sync.ErrUnknownWebhookEvent
		}

		require.NoError(t, f.service.Ingest(ctx, sync.PlatformShopify, req))

		jobs, err := f.jobs.FindRecentByTenant(ctx, tenantID, 10)
		require.NoError(t, err)
		assert.Empty(t, jobs)
	})

	t.Run("unresolved shop is acked without a job", func(t *testing.T) {
		f := setupIngestTest(t, sync.PlatformShopify)
		f.adapter.verifyFn = func(_ *sync.WebhookRequest) (*sync.WebhookEvent, error) {
			return orderCreatedEvent(sync.PlatformShopify, "stranger.myshopify.com", "dlv-2"), nil
		}

		assert.NoError(t, f.service.Ingest(ctx, sync.PlatformShopify, req))
	})

	t.Run("duplicate delivery id is suppressed", func(t *testing.T) {
		f := setupIngestTest(t, sync.PlatformShopify)
		tenantID := f.connectShop(t, sync.PlatformShopify, "acme.myshopify.com")
		f.adapter.verifyFn = func(_ *sync.WebhookRequest) (*sync.WebhookEvent, error) {
			return orderCreatedEvent(sync.PlatformShopify, "acme.myshopify.com", "dlv-3"), nil
		}

		require.NoError(t, f.service.Ingest(ctx, sync.PlatformShopify, req))
		require.NoError(t, f.service.Ingest(ctx, sync.PlatformShopify, req))

		jobs, err := f.jobs.FindRecentByTenant(ctx, tenantID, 10)
		require.NoError(t, err)
		assert.Len(t, jobs, 1)
	})

	t.Run("configured retry ceiling applies to webhook jobs", func(t *testing.T) {
		f := setupIngestTest(t, sync.PlatformShopify)
		tenantID := f.connectShop(t, sync.PlatformShopify, "acme.myshopify.com")
		f.adapter.verifyFn = func(_ *sync.WebhookRequest) (*sync.WebhookEvent, error) {
			return orderCreatedEvent(sync.PlatformShopify, "acme.myshopify.com", "dlv-6"), nil
		}
		svc := NewIngestService(registryOf(f.adapter), f.connections, f.jobs, f.dedup, time.Minute, 8, zap.NewNop())

		require.NoError(t, svc.Ingest(ctx, sync.PlatformShopify, req))

		jobs, err := f.jobs.FindRecentByTenant(ctx, tenantID, 10)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, 8, jobs[0].MaxAttempts)
	})

	t.Run("failed enqueue frees the delivery id for redelivery", func(t *testing.T) {
		f := setupIngestTest(t, sync.PlatformShopify)
		tenantID := f.connectShop(t, sync.PlatformShopify, "acme.myshopify.com")
		f.adapter.verifyFn = func(_ *sync.WebhookRequest) (*sync.WebhookEvent, error) {
			return orderCreatedEvent(sync.PlatformShopify, "acme.myshopify.com", "dlv-4"), nil
		}

		flaky := &flakyJobRepository{JobRepository: f.jobs, failures: 1}
		svc := NewIngestService(registryOf(f.adapter), f.connections, flaky, f.dedup, time.Minute, 0, zap.NewNop())

		require.Error(t, svc.Ingest(ctx, sync.PlatformShopify, req))

		jobs, err := f.jobs.FindRecentByTenant(ctx, tenantID, 10)
		require.NoError(t, err)
		require.Empty(t, jobs)

		require.NoError(t, svc.Ingest(ctx, sync.PlatformShopify, req))

		jobs, err = f.jobs.FindRecentByTenant(ctx, tenantID, 10)
		require.NoError(t, err)
		assert.Len(t, jobs, 1)
	})

	t.Run("unregistered platform is an error", func(t *testing.T) {
		f := setupIngestTest(t, sync.PlatformShopify)

		err := f.service.Ingest(ctx, sync.PlatformSquare, req)
		assert.ErrorIs(t, err, sync.ErrPlatformNotSupported)
	})
}

func TestIngestService_Challenge(t *testing.T) {
	f := setupIngestTest(t, sync.PlatformEbay)
	f.adapter.challengeFn = func(req *sync.WebhookRequest) (string, error) {
		return "challenge-answer", nil
	}

	answer, err := f.service.Challenge(context.Background(), sync.PlatformEbay, &sync.WebhookRequest{Method: "GET"})
	require.NoError(t, err)
	assert.Equal(t, "challenge-answer", answer)
}
