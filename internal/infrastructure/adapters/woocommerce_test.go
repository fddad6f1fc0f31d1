package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/sync"
	"github.com/channelhub/backend/internal/infrastructure/config"
)

func newTestWooAdapter(serverURL string) *WooCommerceAdapter {
	return NewWooCommerceAdapter(config.PlatformCredentials{
		ClientSecret: "test-webhook-secret",
		APIBaseURL:   serverURL,
	}, zap.NewNop())
}

func TestWooCommerceAdapter_FetchProducts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wp-json/wc/v3/products", r.URL.Path)

		username, password, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "test-access-token", username)
		assert.Equal(t, "test-refresh-token", password)

		stock := 7
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]wooProduct{
			{ID: 42, Name: "Walnut Shelf", SKU: "SHELF-001", Price: "89.00", Status: "publish", StockQuantity: &stock},
		})
	}))
	defer server.Close()

	adapter := newTestWooAdapter(server.URL)

	page, err := adapter.FetchProducts(context.Background(), testCredentials("store.example.com"), "")
	require.NoError(t, err)
	require.Len(t, page.Products, 1)

	product := page.Products[0]
	assert.Equal(t, "42", product.PlatformProductID)
	assert.Equal(t, "SHELF-001", product.SKU)
	assert.True(t, product.Price.Equal(decimal.NewFromFloat(89.00)))
	assert.Equal(t, 7, product.Quantity)
	assert.True(t, product.Active)
	assert.False(t, page.HasMore)
}

func TestWooCommerceAdapter_SiteBaseURL(t *testing.T) {
	adapter := NewWooCommerceAdapter(config.PlatformCredentials{}, zap.NewNop())

	t.Run("bare domain gets https", func(t *testing.T) {
		base, err := adapter.siteBaseURL(testCredentials("store.example.com"))
		require.NoError(t, err)
		assert.Equal(t, "https://store.example.com/wp-json/wc/v3", base)
	})

	t.Run("full url with trailing slash", func(t *testing.T) {
		base, err := adapter.siteBaseURL(testCredentials("https://store.example.com/"))
		require.NoError(t, err)
		assert.Equal(t, "https://store.example.com/wp-json/wc/v3", base)
	})

	t.Run("missing site", func(t *testing.T) {
		_, err := adapter.siteBaseURL(&sync.Credentials{AccessToken: "ck", RefreshToken: "cs"})
		assert.ErrorIs(t, err, sync.ErrCredentialsMissing)
	})
}

func TestWooCommerceAdapter_MapStatus(t *testing.T) {
	adapter := newTestWooAdapter("")

	tests := []struct {
		native   string
		expected sync.OrderStatus
	}{
		{"pending", sync.OrderStatusPending},
		{"on-hold", sync.OrderStatusPending},
		{"processing", sync.OrderStatusProcessing},
		{"completed", sync.OrderStatusDelivered},
		{"cancelled", sync.OrderStatusCancelled},
		{"failed", sync.OrderStatusCancelled},
		{"refunded", sync.OrderStatusRefunded},
		{"checkout-draft", sync.OrderStatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.native, func(t *testing.T) {
			assert.Equal(t, tt.expected, adapter.mapStatus(tt.native))
		})
	}
}

func TestWooCommerceAdapter_VerifyWebhook(t *testing.T) {
	adapter := newTestWooAdapter("")
	body := []byte(`{"id":42,"status":"processing"}`)
	signature := hmacSHA256Base64("test-webhook-secret", body)

	t.Run("valid signature", func(t *testing.T) {
		event, err := adapter.VerifyWebhook(newWebhookRequest(body, map[string]string{
			"X-WC-Webhook-Signature":   signature,
			"X-WC-Webhook-Topic":       "order.updated",
			"X-WC-Webhook-Source":      "https://store.example.com/",
			"X-WC-Webhook-Delivery-ID": "wc-delivery-9",
		}))
		require.NoError(t, err)
		assert.Equal(t, sync.PlatformWooCommerce, event.Platform)
		assert.Equal(t, sync.WebhookEventOrderUpdated, event.EventType)
		assert.Equal(t, "https://store.example.com/", event.SourceID)
		assert.Equal(t, "wc-delivery-9", event.DeliveryID)
	})

	t.Run("wrong secret", func(t *testing.T) {
		bad := hmacSHA256Base64("other-secret", body)
		_, err := adapter.VerifyWebhook(newWebhookRequest(body, map[string]string{
			"X-WC-Webhook-Signature": bad,
			"X-WC-Webhook-Topic":     "order.updated",
		}))
		assert.ErrorIs(t, err, sync.ErrInvalidSignature)
	})

	t.Run("missing signature", func(t *testing.T) {
		_, err := adapter.VerifyWebhook(newWebhookRequest(body, map[string]string{
			"X-WC-Webhook-Topic": "order.updated",
		}))
		assert.ErrorIs(t, err, sync.ErrInvalidSignature)
	})

	t.Run("unknown topic", func(t *testing.T) {
		_, err := adapter.VerifyWebhook(newWebhookRequest(body, map[string]string{
			"X-WC-Webhook-Signature": signature,
			"X-WC-Webhook-Topic":     "coupon.created",
		}))
		assert.ErrorIs(t, err, sync.ErrUnknownWebhookEvent)
	})
}

func TestWooCommerceAdapter_ExchangeCode(t *testing.T) {
	adapter := newTestWooAdapter("")

	t.Run("splits key pair", func(t *testing.T) {
		creds, err := adapter.ExchangeCode(context.Background(), "ck_abc:cs_def", "", "")
		require.NoError(t, err)
		assert.Equal(t, "ck_abc", creds.AccessToken)
		assert.Equal(t, "cs_def", creds.RefreshToken)
	})

	t.Run("malformed payload", func(t *testing.T) {
		_, err := adapter.ExchangeCode(context.Background(), "ck_only", "", "")
		assert.ErrorIs(t, err, sync.ErrPlatformInvalidResponse)
	})
}

func TestWooCommerceAdapter_RefreshNotSupported(t *testing.T) {
	adapter := newTestWooAdapter("")
	_, err := adapter.RefreshCredentials(context.Background(), testCredentials("store.example.com"))
	assert.ErrorIs(t, err, sync.ErrRefreshNotSupported)
	assert.False(t, adapter.RequiresPKCE())
}
