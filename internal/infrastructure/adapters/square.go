package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/sync"
	"github.com/channelhub/backend/internal/infrastructure/config"
)

const (
	squareDefaultAPIBase = "https://connect.squareup.com"
	squareAPIVersion     = "2024-01-18"
	squareCentDivisor    = 100
)

// SquareAdapter implements PlatformAdapter for Square. Catalog objects
// carry SKUs on item variations, and inventory is tracked per location.
// The connection metadata captured at connect time holds the merchant id
// under the shop-domain key and the main location id under "location_id".
type SquareAdapter struct {
	cfg    config.PlatformCredentials
	client *resty.Client
	log    *zap.Logger
}

// NewSquareAdapter creates a new Square adapter
func NewSquareAdapter(cfg config.PlatformCredentials, log *zap.Logger) *SquareAdapter {
	return &SquareAdapter{
		cfg:    cfg,
		client: newRestyClient(),
		log:    log.Named("square"),
	}
}

// Platform returns the platform this adapter handles
func (a *SquareAdapter) Platform() sync.Platform {
	return sync.PlatformSquare
}

func (a *SquareAdapter) apiBase() string {
	if a.cfg.APIBaseURL != "" {
		return a.cfg.APIBaseURL
	}
	return squareDefaultAPIBase
}

func (a *SquareAdapter) request(creds *sync.Credentials) *resty.Request {
	return a.client.R().
		SetHeader("Square-Version", squareAPIVersion).
		SetAuthToken(creds.AccessToken)
}

func (a *SquareAdapter) locationID(creds *sync.Credentials) (string, error) {
	loc := creds.Metadata["location_id"]
	if loc == "" {
		return "", sync.ErrCredentialsMissing
	}
	return loc, nil
}

// ---------------------------------------------------------------------------
// Catalog operations
// ---------------------------------------------------------------------------

// FetchProducts returns one page of catalog items. Square paginates with
// an opaque cursor of its own, passed through unchanged.
func (a *SquareAdapter) FetchProducts(ctx context.Context, creds *sync.Credentials, cursor string) (*sync.ProductPage, error) {
	req := a.request(creds).
		SetContext(ctx).
		SetQueryParam("types", "ITEM")
	if cursor != "" {
		req.SetQueryParam("cursor", cursor)
	}

	var body squareCatalogListResponse
	resp, err := req.SetResult(&body).Get(a.apiBase() + "/v2/catalog/list")
	if err != nil {
		return nil, wrapTransportErr(sync.PlatformSquare, err)
	}
	if resp.IsError() {
		return nil, apiErr(sync.PlatformSquare, resp)
	}

	page := &sync.ProductPage{Products: make([]sync.PlatformProduct, 0, len(body.Objects))}
	for _, obj := range body.Objects {
		if obj.ItemData == nil || len(obj.ItemData.Variations) == 0 {
			continue
		}
		variation := obj.ItemData.Variations[0]
		product := sync.PlatformProduct{
			PlatformProductID: obj.ID,
			Title:             obj.ItemData.Name,
			Active:            !obj.IsDeleted,
		}
		if variation.ItemVariationData != nil {
			product.SKU = variation.ItemVariationData.SKU
			if variation.ItemVariationData.PriceMoney != nil {
				product.Price = variation.ItemVariationData.PriceMoney.Decimal()
				product.Currency = variation.ItemVariationData.PriceMoney.Currency
			}
		}
		page.Products = append(page.Products, product)
	}

	if body.Cursor != "" {
		page.NextCursor = body.Cursor
		page.HasMore = true
	}
	return page, nil
}

// CreateListing upserts a catalog item with a single SKU variation
func (a *SquareAdapter) CreateListing(ctx context.Context, creds *sync.Credentials, draft sync.ListingDraft) (string, error) {
	var body squareUpsertResponse
	resp, err := a.request(creds).
		SetContext(ctx).
		SetBody(squareUpsertPayload("#new-item", draft)).
		SetResult(&body).
		Post(a.apiBase() + "/v2/catalog/object")
	if err != nil {
		return "", wrapTransportErr(sync.PlatformSquare, err)
	}
	if resp.IsError() {
		return "", apiErr(sync.PlatformSquare, resp)
	}
	if body.CatalogObject.ID == "" {
		return "", sync.ErrPlatformInvalidResponse
	}
	return body.CatalogObject.ID, nil
}

// UpdateListing upserts the existing catalog item
func (a *SquareAdapter) UpdateListing(ctx context.Context, creds *sync.Credentials, platformListingID string, draft sync.ListingDraft) error {
	resp, err := a.request(creds).
		SetContext(ctx).
		SetBody(squareUpsertPayload(platformListingID, draft)).
		Post(a.apiBase() + "/v2/catalog/object")
	if err != nil {
		return wrapTransportErr(sync.PlatformSquare, err)
	}
	if resp.IsError() {
		return apiErr(sync.PlatformSquare, resp)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Order operations
// ---------------------------------------------------------------------------

// squareStatusMap maps Square order states to the canonical vocabulary
var squareStatusMap = map[string]sync.OrderStatus{
	"DRAFT":     sync.OrderStatusPending,
	"OPEN":      sync.OrderStatusProcessing,
	"COMPLETED": sync.OrderStatusDelivered,
	"CANCELED":  sync.OrderStatusCancelled,
}

// FetchOrders searches orders for the connection's location
func (a *SquareAdapter) FetchOrders(ctx context.Context, creds *sync.Credentials, filter sync.OrderFilter) (*sync.OrderPage, error) {
	location, err := a.locationID(creds)
	if err != nil {
		return nil, err
	}

	query := map[string]any{
		"location_ids": []string{location},
		"limit":        clampPageSize(filter.PageSize, 500),
	}
	if filter.Cursor != "" {
		query["cursor"] = filter.Cursor
	}
	if !filter.CreatedAfter.IsZero() {
		query["query"] = map[string]any{
			"filter": map[string]any{
				"date_time_filter": map[string]any{
					"created_at": map[string]any{
						"start_at": filter.CreatedAfter.UTC().Format(time.RFC3339),
					},
				},
			},
			"sort": map[string]any{"sort_field": "CREATED_AT", "sort_order": "ASC"},
		}
	}

	var body squareSearchOrdersResponse
	resp, err := a.request(creds).
		SetContext(ctx).
		SetBody(query).
		SetResult(&body).
		Post(a.apiBase() + "/v2/orders/search")
	if err != nil {
		return nil, wrapTransportErr(sync.PlatformSquare, err)
	}
	if resp.IsError() {
		return nil, apiErr(sync.PlatformSquare, resp)
	}

	page := &sync.OrderPage{Orders: make([]sync.PlatformOrder, 0, len(body.Orders))}
	for _, o := range body.Orders {
		order := sync.PlatformOrder{
			PlatformOrderID: o.ID,
			Status:          a.mapStatus(o.State),
			Currency:        o.TotalMoney.Currency,
			Total:           o.TotalMoney.Decimal(),
			PlacedAt:        o.CreatedAt,
			Items:           make([]sync.PlatformOrderItem, 0, len(o.LineItems)),
		}
		if len(o.Fulfillments) > 0 {
			recipient := o.Fulfillments[0].ShipmentDetails.Recipient
			order.CustomerName = recipient.DisplayName
			order.CustomerEmail = recipient.EmailAddress
			order.ShippingAddress = strings.TrimSpace(strings.Join([]string{
				recipient.Address.AddressLine1,
				recipient.Address.Locality,
				recipient.Address.AdministrativeDistrictLevel1,
				recipient.Address.PostalCode,
				recipient.Address.Country,
			}, ", "))
		}
		for _, li := range o.LineItems {
			quantity, _ := strconv.Atoi(li.Quantity)
			order.Items = append(order.Items, sync.PlatformOrderItem{
				PlatformLineItemID: li.UID,
				SKU:                li.CatalogSKU,
				Title:              li.Name,
				Quantity:           quantity,
				UnitPrice:          li.BasePriceMoney.Decimal(),
			})
		}
		page.Orders = append(page.Orders, order)
	}

	if body.Cursor != "" {
		page.NextCursor = body.Cursor
		page.HasMore = true
	}
	return page, nil
}

func (a *SquareAdapter) mapStatus(native string) sync.OrderStatus {
	if status, ok := squareStatusMap[strings.ToUpper(native)]; ok {
		return status
	}
	a.log.Warn("unmapped order status", zap.String("native_status", native))
	return sync.OrderStatusPending
}

// ---------------------------------------------------------------------------
// Inventory operations
// ---------------------------------------------------------------------------

// UpdateInventory records a physical count for the variation matching the SKU
func (a *SquareAdapter) UpdateInventory(ctx context.Context, creds *sync.Credentials, sku string, quantity int) error {
	location, err := a.locationID(creds)
	if err != nil {
		return err
	}

	var lookup squareCatalogSearchResponse
	resp, err := a.request(creds).
		SetContext(ctx).
		SetBody(map[string]any{
			"object_types": []string{"ITEM_VARIATION"},
			"query": map[string]any{
				"exact_query": map[string]any{
					"attribute_name":  "sku",
					"attribute_value": sku,
				},
			},
		}).
		SetResult(&lookup).
		Post(a.apiBase() + "/v2/catalog/search")
	if err != nil {
		return wrapTransportErr(sync.PlatformSquare, err)
	}
	if resp.IsError() {
		return apiErr(sync.PlatformSquare, resp)
	}
	if len(lookup.Objects) == 0 {
		return sync.NewAdapterError(sync.PlatformSquare, 404, fmt.Sprintf("no catalog variation with sku %q", sku))
	}

	resp, err = a.request(creds).
		SetContext(ctx).
		SetBody(map[string]any{
			"idempotency_key": uuid.NewString(),
			"changes": []map[string]any{{
				"type": "PHYSICAL_COUNT",
				"physical_count": map[string]any{
					"catalog_object_id": lookup.Objects[0].ID,
					"location_id":       location,
					"state":             "IN_STOCK",
					"quantity":          fmt.Sprintf("%d", quantity),
					"occurred_at":       time.Now().UTC().Format(time.RFC3339),
				},
			}},
		}).
		Post(a.apiBase() + "/v2/inventory/changes/batch-create")
	if err != nil {
		return wrapTransportErr(sync.PlatformSquare, err)
	}
	if resp.IsError() {
		return apiErr(sync.PlatformSquare, resp)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Credential lifecycle
// ---------------------------------------------------------------------------

// RefreshCredentials rotates the bearer through the refresh grant
func (a *SquareAdapter) RefreshCredentials(ctx context.Context, creds *sync.Credentials) (*sync.Credentials, error) {
	if creds.RefreshToken == "" {
		return nil, sync.ErrCredentialsMissing
	}
	return a.obtainToken(ctx, map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": creds.RefreshToken,
	}, creds)
}

// AuthorizeURL builds the Square consent URL
func (a *SquareAdapter) AuthorizeURL(state, _, _ string) string {
	q := url.Values{}
	q.Set("client_id", a.cfg.ClientID)
	q.Set("scope", strings.Join(a.cfg.Scopes, " "))
	q.Set("state", state)
	q.Set("session", "false")
	return a.apiBase() + "/oauth2/authorize?" + q.Encode()
}

// ExchangeCode trades the authorization code for a token pair
func (a *SquareAdapter) ExchangeCode(ctx context.Context, code, redirectURI, _ string) (*sync.Credentials, error) {
	creds, err := a.obtainToken(ctx, map[string]string{
		"grant_type":   "authorization_code",
		"code":         code,
		"redirect_uri": redirectURI,
	}, nil)
	if err != nil {
		return nil, err
	}

	location, err := a.fetchMainLocation(ctx, creds)
	if err != nil {
		return nil, err
	}
	if creds.Metadata == nil {
		creds.Metadata = make(map[string]string, 1)
	}
	creds.Metadata["location_id"] = location
	return creds, nil
}

// fetchMainLocation resolves the merchant's first active location, which
// order search and inventory writes are scoped to.
func (a *SquareAdapter) fetchMainLocation(ctx context.Context, creds *sync.Credentials) (string, error) {
	var body squareListLocationsResponse
	resp, err := a.request(creds).
		SetContext(ctx).
		SetResult(&body).
		Get(a.apiBase() + "/v2/locations")
	if err != nil {
		return "", wrapTransportErr(sync.PlatformSquare, err)
	}
	if resp.IsError() {
		return "", apiErr(sync.PlatformSquare, resp)
	}
	for _, loc := range body.Locations {
		if loc.Status == "" || loc.Status == "ACTIVE" {
			return loc.ID, nil
		}
	}
	return "", sync.ErrPlatformInvalidResponse
}

// obtainToken calls the shared token endpoint. Square returns the expiry
// as an absolute RFC3339 timestamp rather than a lifetime.
func (a *SquareAdapter) obtainToken(ctx context.Context, grant map[string]string, prev *sync.Credentials) (*sync.Credentials, error) {
	payload := map[string]string{
		"client_id":     a.cfg.ClientID,
		"client_secret": a.cfg.ClientSecret,
	}
	for k, v := range grant {
		payload[k] = v
	}

	var body squareTokenResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&body).
		Post(a.apiBase() + "/oauth2/token")
	if err != nil {
		return nil, wrapTransportErr(sync.PlatformSquare, err)
	}
	if resp.IsError() {
		return nil, apiErr(sync.PlatformSquare, resp)
	}
	if body.AccessToken == "" {
		return nil, sync.ErrPlatformInvalidResponse
	}

	creds := &sync.Credentials{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
	}
	if expiresAt, err := time.Parse(time.RFC3339, body.ExpiresAt); err == nil {
		creds.ExpiresAt = &expiresAt
	}
	if prev != nil {
		if creds.RefreshToken == "" {
			creds.RefreshToken = prev.RefreshToken
		}
		creds.Scope = prev.Scope
		creds.Metadata = prev.Metadata
	}
	if body.MerchantID != "" {
		if creds.Metadata == nil {
			creds.Metadata = make(map[string]string, 1)
		}
		creds.Metadata[sync.MetadataShopDomain] = body.MerchantID
	}
	return creds, nil
}

// RequiresPKCE reports that Square's flow does not use PKCE
func (a *SquareAdapter) RequiresPKCE() bool {
	return false
}

// ---------------------------------------------------------------------------
// Webhook verification
// ---------------------------------------------------------------------------

// squareEventMap maps Square event types to canonical event types
var squareEventMap = map[string]sync.WebhookEventType{
	"order.created":             sync.WebhookEventOrderCreated,
	"order.updated":             sync.WebhookEventOrderUpdated,
	"order.fulfillment.updated": sync.WebhookEventOrderUpdated,
	"catalog.version.updated":   sync.WebhookEventProductUpdated,
	"inventory.count.updated":   sync.WebhookEventInventoryUpdated,
}

// VerifyWebhook checks the x-square-hmacsha256-signature header, a base64
// HMAC SHA-256 keyed with the signature key over the notification URL
// concatenated with the raw body
func (a *SquareAdapter) VerifyWebhook(req *sync.WebhookRequest) (*sync.WebhookEvent, error) {
	signature := req.Header("X-Square-Hmacsha256-Signature")
	if signature == "" {
		return nil, sync.ErrInvalidSignature
	}
	signed := append([]byte(req.EndpointURL), req.Body...)
	if !verifyHMACBase64(a.cfg.ClientSecret, signed, signature) {
		return nil, sync.ErrInvalidSignature
	}

	var envelope squareWebhookEnvelope
	if err := json.Unmarshal(req.Body, &envelope); err != nil {
		return nil, sync.ErrInvalidSignature
	}
	eventType, ok := squareEventMap[envelope.Type]
	if !ok {
		return nil, sync.ErrUnknownWebhookEvent
	}

	return &sync.WebhookEvent{
		Platform:   sync.PlatformSquare,
		EventType:  eventType,
		SourceID:   envelope.MerchantID,
		DeliveryID: envelope.EventID,
		Payload:    req.Body,
	}, nil
}

// AnswerChallenge is unsupported: Square has no challenge handshake
func (a *SquareAdapter) AnswerChallenge(_ *sync.WebhookRequest) (string, error) {
	return "", sync.ErrChallengeUnsupported
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

// squareMoney is an integer amount in the currency's smallest unit
type squareMoney struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Decimal converts the minor-unit amount to a decimal value
func (m squareMoney) Decimal() decimal.Decimal {
	return decimal.NewFromInt(m.Amount).Div(decimal.NewFromInt(squareCentDivisor))
}

func squareUpsertPayload(objectID string, draft sync.ListingDraft) map[string]any {
	currency := draft.Currency
	if currency == "" {
		currency = "USD"
	}
	return map[string]any{
		"idempotency_key": uuid.NewString(),
		"object": map[string]any{
			"type": "ITEM",
			"id":   objectID,
			"item_data": map[string]any{
				"name":        draft.Title,
				"description": draft.Description,
				"variations": []map[string]any{{
					"type": "ITEM_VARIATION",
					"id":   objectID + "-variation",
					"item_variation_data": map[string]any{
						"sku":          draft.SKU,
						"pricing_type": "FIXED_PRICING",
						"price_money": map[string]any{
							"amount":   draft.Price.Mul(decimal.NewFromInt(squareCentDivisor)).IntPart(),
							"currency": currency,
						},
					},
				}},
			},
		},
	}
}

type squareCatalogObject struct {
	ID        string `json:"id"`
	IsDeleted bool   `json:"is_deleted"`
	ItemData  *struct {
		Name       string                `json:"name"`
		Variations []squareCatalogObject `json:"variations"`
	} `json:"item_data"`
	ItemVariationData *struct {
		SKU        string       `json:"sku"`
		PriceMoney *squareMoney `json:"price_money"`
	} `json:"item_variation_data"`
}

type squareCatalogListResponse struct {
	Objects []squareCatalogObject `json:"objects"`
	Cursor  string                `json:"cursor"`
}

type squareCatalogSearchResponse struct {
	Objects []squareCatalogObject `json:"objects"`
}

type squareUpsertResponse struct {
	CatalogObject squareCatalogObject `json:"catalog_object"`
}

type squareAddress struct {
	AddressLine1                 string `json:"address_line_1"`
	Locality                     string `json:"locality"`
	AdministrativeDistrictLevel1 string `json:"administrative_district_level_1"`
	PostalCode                   string `json:"postal_code"`
	Country                      string `json:"country"`
}

type squareOrder struct {
	ID           string      `json:"id"`
	State        string      `json:"state"`
	CreatedAt    time.Time   `json:"created_at"`
	TotalMoney   squareMoney `json:"total_money"`
	Fulfillments []struct {
		ShipmentDetails struct {
			Recipient struct {
				DisplayName  string        `json:"display_name"`
				EmailAddress string        `json:"email_address"`
				Address      squareAddress `json:"address"`
			} `json:"recipient"`
		} `json:"shipment_details"`
	} `json:"fulfillments"`
	LineItems []struct {
		UID            string      `json:"uid"`
		Name           string      `json:"name"`
		CatalogSKU     string      `json:"catalog_sku"`
		Quantity       string      `json:"quantity"`
		BasePriceMoney squareMoney `json:"base_price_money"`
	} `json:"line_items"`
}

type squareSearchOrdersResponse struct {
	Orders []squareOrder `json:"orders"`
	Cursor string        `json:"cursor"`
}

type squareListLocationsResponse struct {
	Locations []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"locations"`
}

type squareTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    string `json:"expires_at"`
	MerchantID   string `json:"merchant_id"`
}

type squareWebhookEnvelope struct {
	Type       string `json:"type"`
	EventID    string `json:"event_id"`
	MerchantID string `json:"merchant_id"`
}

// Ensure SquareAdapter implements PlatformAdapter
var _ sync.PlatformAdapter = (*SquareAdapter)(nil)
