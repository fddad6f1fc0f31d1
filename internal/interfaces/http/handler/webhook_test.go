package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/application/webhook"
	"github.com/channelhub/backend/internal/domain/sync"
	"github.com/channelhub/backend/internal/infrastructure/cache"
	"github.com/channelhub/backend/internal/infrastructure/persistence"
	"github.com/channelhub/backend/internal/infrastructure/persistence/models"
)

func setupWebhookHandlerTest(t *testing.T, adapter *stubAdapter, maxBody int64) (*gin.Engine, sync.JobRepository, sync.ConnectionRepository) {
	t.Helper()
	db := openTestDB(t, &models.PlatformConnectionModel{}, &models.SyncJobModel{})
	connections := persistence.NewGormConnectionRepository(db)
	jobs := persistence.NewGormJobRepository(db)
	dedup := cache.NewInMemoryIdempotencyStore()
	t.Cleanup(func() { _ = dedup.Close() })

	ingest := webhook.NewIngestService(stubRegistryOf(adapter), connections, jobs, dedup, time.Minute, 0, zap.NewNop())

	engine := gin.New()
	NewWebhookHandler(ingest, maxBody).RegisterPublicRoutes(engine)
	return engine, jobs, connections
}

func TestWebhookHandler_Receive(t *testing.T) {
	body := `{"id":100}`

	t.Run("verified delivery is acked and enqueued", func(t *testing.T) {
		adapter := &stubAdapter{
			platform: sync.PlatformShopify,
			verifyFn: func(req *sync.WebhookRequest) (*sync.WebhookEvent, error) {
				assert.Equal(t, []byte(body), req.Body)
				assert.Equal(t, "sha256-sig", req.Header("X-Shopify-Hmac-Sha256"))
				return &sync.WebhookEvent{
					Platform:   sync.PlatformShopify,
					EventType:  sync.WebhookEventOrderCreated,
					SourceID:   "acme.myshopify.com",
					DeliveryID: "dlv-1",
					Payload:    req.Body,
				}, nil
			},
		}
		engine, jobs, connections := setupWebhookHandlerTest(t, adapter, 0)

		tenantID := uuid.New()
		conn, err := sync.NewPlatformConnection(tenantID, sync.PlatformShopify, "enc-access", "enc-refresh")
		require.NoError(t, err)
		conn.Metadata["shop_domain"] = "acme.myshopify.com"
		require.NoError(t, connections.Save(context.Background(), conn))

		req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify", bytes.NewBufferString(body))
		req.Header.Set("X-Shopify-Hmac-Sha256", "sha256-sig")
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"received":true`)

		queued, err := jobs.FindRecentByTenant(context.Background(), tenantID, 10)
		require.NoError(t, err)
		assert.Len(t, queued, 1)
	})

	t.Run("bad signature gets 401", func(t *testing.T) {
		adapter := &stubAdapter{platform: sync.PlatformShopify}
		engine, _, _ := setupWebhookHandlerTest(t, adapter, 0)

		req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown platform gets 404", func(t *testing.T) {
		adapter := &stubAdapter{platform: sync.PlatformShopify}
		engine, _, _ := setupWebhookHandlerTest(t, adapter, 0)

		req := httptest.NewRequest(http.MethodPost, "/webhooks/carrierpigeon", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("oversized payload gets 413", func(t *testing.T) {
		adapter := &stubAdapter{platform: sync.PlatformShopify}
		engine, _, _ := setupWebhookHandlerTest(t, adapter, 16)

		req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify", strings.NewReader(strings.Repeat("a", 64)))
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestWebhookHandler_Challenge(t *testing.T) {
	t.Run("answers the handshake", func(t *testing.T) {
		adapter := &stubAdapter{
			platform: sync.PlatformEbay,
			challengeFn: func(req *sync.WebhookRequest) (string, error) {
				assert.Equal(t, "token-123", req.Query["challenge_code"])
				return "hashed-answer", nil
			},
		}
		engine, _, _ := setupWebhookHandlerTest(t, adapter, 0)

		req := httptest.NewRequest(http.MethodGet, "/webhooks/ebay?challenge_code=token-123", nil)
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "hashed-answer", resp["challengeResponse"])
	})

	t.Run("platform without a challenge scheme gets 404", func(t *testing.T) {
		adapter := &stubAdapter{platform: sync.PlatformShopify}
		engine, _, _ := setupWebhookHandlerTest(t, adapter, 0)

		req := httptest.NewRequest(http.MethodGet, "/webhooks/shopify", nil)
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
