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

func squareCredentials(locationID string) *sync.Credentials {
	creds := testCredentials("M-1")
	creds.Metadata["location_id"] = locationID
	return creds
}

func newTestSquareAdapter(serverURL string) *SquareAdapter {
	return NewSquareAdapter(config.PlatformCredentials{
		ClientID:     "test-client-id",
		ClientSecret: "test-signature-key",
		APIBaseURL:   serverURL,
	}, zap.NewNop())
}

func TestSquareAdapter_FetchProducts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/catalog/list", r.URL.Path)
		assert.Equal(t, "Bearer test-access-token", r.Header.Get("Authorization"))
		assert.Equal(t, squareAPIVersion, r.Header.Get("Square-Version"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"cursor": "next-cursor",
			"objects": []map[string]any{
				{
					"id":         "ITEM-1",
					"is_deleted": false,
					"item_data": map[string]any{
						"name": "Ceramic Mug",
						"variations": []map[string]any{
							{
								"id": "VAR-1",
								"item_variation_data": map[string]any{
									"sku":         "MUG-001",
									"price_money": map[string]any{"amount": 1850, "currency": "USD"},
								},
							},
						},
					},
				},
			},
		})
	}))
	defer server.Close()

	adapter := newTestSquareAdapter(server.URL)

	page, err := adapter.FetchProducts(context.Background(), squareCredentials("LOC-1"), "")
	require.NoError(t, err)
	require.Len(t, page.Products, 1)

	product := page.Products[0]
	assert.Equal(t, "ITEM-1", product.PlatformProductID)
	assert.Equal(t, "MUG-001", product.SKU)
	assert.Equal(t, "Ceramic Mug", product.Title)
	assert.True(t, product.Price.Equal(decimal.NewFromFloat(18.50)))
	assert.Equal(t, "next-cursor", page.NextCursor)
	assert.True(t, page.HasMore)
}

func TestSquareAdapter_UpdateInventory(t *testing.T) {
	t.Run("records physical count", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/v2/catalog/search":
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]any{
					"objects": []map[string]any{{"id": "VAR-1"}},
				})
			case "/v2/inventory/changes/batch-create":
				var payload map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
				assert.NotEmpty(t, payload["idempotency_key"])
				changes := payload["changes"].([]any)
				require.Len(t, changes, 1)
				count := changes[0].(map[string]any)["physical_count"].(map[string]any)
				assert.Equal(t, "VAR-1", count["catalog_object_id"])
				assert.Equal(t, "LOC-1", count["location_id"])
				assert.Equal(t, "25", count["quantity"])
				w.Write([]byte(`{}`))
			default:
				t.Errorf("unexpected path %s", r.URL.Path)
			}
		}))
		defer server.Close()

		adapter := newTestSquareAdapter(server.URL)
		err := adapter.UpdateInventory(context.Background(), squareCredentials("LOC-1"), "MUG-001", 25)
		assert.NoError(t, err)
	})

	t.Run("unknown sku", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"objects": []}`))
		}))
		defer server.Close()

		adapter := newTestSquareAdapter(server.URL)
		err := adapter.UpdateInventory(context.Background(), squareCredentials("LOC-1"), "GONE-001", 5)

		var adapterErr *sync.AdapterError
		require.ErrorAs(t, err, &adapterErr)
		assert.Equal(t, http.StatusNotFound, adapterErr.StatusCode)
	})
}

func TestSquareAdapter_MapStatus(t *testing.T) {
	adapter := newTestSquareAdapter("")

	tests := []struct {
		native   string
		expected sync.OrderStatus
	}{
		{"DRAFT", sync.OrderStatusPending},
		{"OPEN", sync.OrderStatusProcessing},
		{"COMPLETED", sync.OrderStatusDelivered},
		{"CANCELED", sync.OrderStatusCancelled},
		{"open", sync.OrderStatusProcessing},
		{"SOMETHING_ELSE", sync.OrderStatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.native, func(t *testing.T) {
			assert.Equal(t, tt.expected, adapter.mapStatus(tt.native))
		})
	}
}

func TestSquareAdapter_VerifyWebhook(t *testing.T) {
	adapter := newTestSquareAdapter("")
	endpoint := "https://app.example/webhooks/square"
	body := []byte(`{"type": "order.created", "event_id": "sq-evt-1", "merchant_id": "M-1"}`)
	signature := hmacSHA256Base64("test-signature-key", append([]byte(endpoint), body...))

	t.Run("valid signature over url and body", func(t *testing.T) {
		req := newWebhookRequest(body, map[string]string{
			"X-Square-Hmacsha256-Signature": signature,
		})
		req.EndpointURL = endpoint

		event, err := adapter.VerifyWebhook(req)
		require.NoError(t, err)
		assert.Equal(t, sync.PlatformSquare, event.Platform)
		assert.Equal(t, sync.WebhookEventOrderCreated, event.EventType)
		assert.Equal(t, "M-1", event.SourceID)
		assert.Equal(t, "sq-evt-1", event.DeliveryID)
	})

	t.Run("signature bound to endpoint url", func(t *testing.T) {
		req := newWebhookRequest(body, map[string]string{
			"X-Square-Hmacsha256-Signature": signature,
		})
		req.EndpointURL = "https://attacker.example/webhooks/square"

		_, err := adapter.VerifyWebhook(req)
		assert.ErrorIs(t, err, sync.ErrInvalidSignature)
	})

	t.Run("missing signature", func(t *testing.T) {
		req := newWebhookRequest(body, nil)
		req.EndpointURL = endpoint
		_, err := adapter.VerifyWebhook(req)
		assert.ErrorIs(t, err, sync.ErrInvalidSignature)
	})

	t.Run("unknown event type", func(t *testing.T) {
		other := []byte(`{"type": "payment.created", "event_id": "sq-evt-2", "merchant_id": "M-1"}`)
		req := newWebhookRequest(other, map[string]string{
			"X-Square-Hmacsha256-Signature": hmacSHA256Base64("test-signature-key", append([]byte(endpoint), other...)),
		})
		req.EndpointURL = endpoint

		_, err := adapter.VerifyWebhook(req)
		assert.ErrorIs(t, err, sync.ErrUnknownWebhookEvent)
	})
}

func TestSquareAdapter_ExchangeCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth2/token":
			var payload map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "authorization_code", payload["grant_type"])
			assert.Equal(t, "test-client-id", payload["client_id"])
			assert.Equal(t, "test-signature-key", payload["client_secret"])
			assert.Equal(t, "auth-code", payload["code"])

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(squareTokenResponse{
				AccessToken:  "sq-access",
				RefreshToken: "sq-refresh",
				ExpiresAt:    "2026-09-30T12:00:00Z",
				MerchantID:   "M-1",
			})
		case "/v2/locations":
			assert.Equal(t, "Bearer sq-access", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"locations":[{"id":"LOC-MAIN","status":"ACTIVE"}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	adapter := newTestSquareAdapter(server.URL)

	creds, err := adapter.ExchangeCode(context.Background(), "auth-code", "https://app.example/callback", "")
	require.NoError(t, err)
	assert.Equal(t, "sq-access", creds.AccessToken)
	assert.Equal(t, "sq-refresh", creds.RefreshToken)
	require.NotNil(t, creds.ExpiresAt)
	assert.Equal(t, "M-1", creds.Metadata[sync.MetadataShopDomain])
	assert.Equal(t, "LOC-MAIN", creds.Metadata["location_id"])
}
