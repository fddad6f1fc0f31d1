package adapters

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/sync"
	"github.com/channelhub/backend/internal/infrastructure/config"
)

const shopifyAPIVersion = "2024-01"

// ShopifyAdapter implements PlatformAdapter for Shopify. Shopify issues
// permanent access tokens through its OAuth flow, so there is no refresh
// protocol; webhooks carry a base64 HMAC-SHA256 signature over the raw body.
type ShopifyAdapter struct {
	cfg    config.PlatformCredentials
	client *resty.Client
	log    *zap.Logger
}

// NewShopifyAdapter creates a new Shopify adapter
func NewShopifyAdapter(cfg config.PlatformCredentials, log *zap.Logger) *ShopifyAdapter {
	return &ShopifyAdapter{
		cfg:    cfg,
		client: newRestyClient(),
		log:    log.Named("shopify"),
	}
}

// Platform returns the platform this adapter handles
func (a *ShopifyAdapter) Platform() sync.Platform {
	return sync.PlatformShopify
}

// shopBaseURL builds the per-shop admin API root from the connection metadata
func (a *ShopifyAdapter) shopBaseURL(creds *sync.Credentials) (string, error) {
	if a.cfg.APIBaseURL != "" {
		return a.cfg.APIBaseURL, nil
	}
	shop := creds.Metadata[sync.MetadataShopDomain]
	if shop == "" {
		return "", sync.ErrCredentialsMissing
	}
	return fmt.Sprintf("https://%s/admin/api/%s", shop, shopifyAPIVersion), nil
}

func (a *ShopifyAdapter) request(creds *sync.Credentials) *resty.Request {
	return a.client.R().SetHeader("X-Shopify-Access-Token", creds.AccessToken)
}

// ---------------------------------------------------------------------------
// Catalog operations
// ---------------------------------------------------------------------------

// FetchProducts returns one page of the shop's catalog. Shopify paginates
// with an opaque page_info cursor carried in the Link header.
func (a *ShopifyAdapter) FetchProducts(ctx context.Context, creds *sync.Credentials, cursor string) (*sync.ProductPage, error) {
	base, err := a.shopBaseURL(creds)
	if err != nil {
		return nil, err
	}

	req := a.request(creds).
		SetContext(ctx).
		SetQueryParam("limit", strconv.Itoa(defaultPageSize))
	if cursor != "" {
		req.SetQueryParam("page_info", cursor)
	}

	var body shopifyProductListResponse
	resp, err := req.SetResult(&body).Get(base + "/products.json")
	if err != nil {
		return nil, wrapTransportErr(sync.PlatformShopify, err)
	}
	if resp.IsError() {
		return nil, apiErr(sync.PlatformShopify, resp)
	}

	page := &sync.ProductPage{Products: make([]sync.PlatformProduct, 0, len(body.Products))}
	for _, p := range body.Products {
		if len(p.Variants) == 0 {
			continue
		}
		v := p.Variants[0]
		price, _ := decimal.NewFromString(v.Price)
		page.Products = append(page.Products, sync.PlatformProduct{
			PlatformProductID: strconv.FormatInt(p.ID, 10),
			SKU:               v.SKU,
			Title:             p.Title,
			Price:             price,
			Currency:          "USD",
			Quantity:          v.InventoryQuantity,
			Active:            p.Status == "active",
		})
	}

	page.NextCursor = nextLinkCursor(resp.Header().Get("Link"))
	page.HasMore = page.NextCursor != ""
	return page, nil
}

// CreateListing publishes a product on Shopify and returns the product ID
func (a *ShopifyAdapter) CreateListing(ctx context.Context, creds *sync.Credentials, draft sync.ListingDraft) (string, error) {
	base, err := a.shopBaseURL(creds)
	if err != nil {
		return "", err
	}

	var body shopifyProductResponse
	resp, err := a.request(creds).
		SetContext(ctx).
		SetBody(shopifyProductPayload(draft)).
		SetResult(&body).
		Post(base + "/products.json")
	if err != nil {
		return "", wrapTransportErr(sync.PlatformShopify, err)
	}
	if resp.IsError() {
		return "", apiErr(sync.PlatformShopify, resp)
	}
	if body.Product == nil {
		return "", sync.ErrPlatformInvalidResponse
	}
	return strconv.FormatInt(body.Product.ID, 10), nil
}

// UpdateListing updates an existing Shopify product
func (a *ShopifyAdapter) UpdateListing(ctx context.Context, creds *sync.Credentials, platformListingID string, draft sync.ListingDraft) error {
	base, err := a.shopBaseURL(creds)
	if err != nil {
		return err
	}

	resp, err := a.request(creds).
		SetContext(ctx).
		SetBody(shopifyProductPayload(draft)).
		Put(fmt.Sprintf("%s/products/%s.json", base, platformListingID))
	if err != nil {
		return wrapTransportErr(sync.PlatformShopify, err)
	}
	if resp.IsError() {
		return apiErr(sync.PlatformShopify, resp)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Order operations
// ---------------------------------------------------------------------------

// FetchOrders returns one page of orders created after the filter bound
func (a *ShopifyAdapter) FetchOrders(ctx context.Context, creds *sync.Credentials, filter sync.OrderFilter) (*sync.OrderPage, error) {
	base, err := a.shopBaseURL(creds)
	if err != nil {
		return nil, err
	}

	req := a.request(creds).
		SetContext(ctx).
		SetQueryParam("limit", strconv.Itoa(clampPageSize(filter.PageSize, 250))).
		SetQueryParam("status", "any")
	if filter.Cursor != "" {
		req.SetQueryParam("page_info", filter.Cursor)
	} else if !filter.CreatedAfter.IsZero() {
		req.SetQueryParam("created_at_min", filter.CreatedAfter.Format(time.RFC3339))
	}

	var body shopifyOrderListResponse
	resp, err := req.SetResult(&body).Get(base + "/orders.json")
	if err != nil {
		return nil, wrapTransportErr(sync.PlatformShopify, err)
	}
	if resp.IsError() {
		return nil, apiErr(sync.PlatformShopify, resp)
	}

	page := &sync.OrderPage{Orders: make([]sync.PlatformOrder, 0, len(body.Orders))}
	for _, o := range body.Orders {
		page.Orders = append(page.Orders, a.normalizeOrder(&o))
	}
	page.NextCursor = nextLinkCursor(resp.Header().Get("Link"))
	page.HasMore = page.NextCursor != ""
	return page, nil
}

func (a *ShopifyAdapter) normalizeOrder(o *shopifyOrder) sync.PlatformOrder {
	total, _ := decimal.NewFromString(o.TotalPrice)
	order := sync.PlatformOrder{
		PlatformOrderID: strconv.FormatInt(o.ID, 10),
		Status:          a.mapStatus(o),
		CustomerEmail:   o.Email,
		Currency:        o.Currency,
		Total:           total,
		PlacedAt:        o.CreatedAt,
		Items:           make([]sync.PlatformOrderItem, 0, len(o.LineItems)),
	}
	if o.Customer != nil {
		order.CustomerName = strings.TrimSpace(o.Customer.FirstName + " " + o.Customer.LastName)
	}
	if o.ShippingAddress != nil {
		order.ShippingAddress = strings.TrimSpace(strings.Join([]string{
			o.ShippingAddress.Address1,
			o.ShippingAddress.City,
			o.ShippingAddress.Province,
			o.ShippingAddress.Zip,
			o.ShippingAddress.Country,
		}, ", "))
	}
	for _, li := range o.LineItems {
		unitPrice, _ := decimal.NewFromString(li.Price)
		order.Items = append(order.Items, sync.PlatformOrderItem{
			PlatformLineItemID: strconv.FormatInt(li.ID, 10),
			SKU:                li.SKU,
			Title:              li.Title,
			Quantity:           li.Quantity,
			UnitPrice:          unitPrice,
		})
	}
	return order
}

// mapStatus folds Shopify's financial + fulfillment state pair into the
// canonical vocabulary. Cancellation and refunds outrank fulfillment.
func (a *ShopifyAdapter) mapStatus(o *shopifyOrder) sync.OrderStatus {
	if o.CancelledAt != nil {
		return sync.OrderStatusCancelled
	}
	if o.FinancialStatus == "refunded" {
		return sync.OrderStatusRefunded
	}
	switch o.FulfillmentStatus {
	case "fulfilled":
		return sync.OrderStatusShipped
	case "", "null", "partial", "unfulfilled":
		if o.FinancialStatus == "paid" || o.FinancialStatus == "partially_paid" {
			return sync.OrderStatusProcessing
		}
		return sync.OrderStatusPending
	default:
		a.log.Warn("unmapped order status",
			zap.String("fulfillment_status", o.FulfillmentStatus),
			zap.String("financial_status", o.FinancialStatus))
		return sync.OrderStatusPending
	}
}

// ---------------------------------------------------------------------------
// Inventory operations
// ---------------------------------------------------------------------------

// UpdateInventory pushes a stock level for one SKU. The variant is resolved
// by SKU first since Shopify keys inventory by variant, not by SKU.
func (a *ShopifyAdapter) UpdateInventory(ctx context.Context, creds *sync.Credentials, sku string, quantity int) error {
	base, err := a.shopBaseURL(creds)
	if err != nil {
		return err
	}

	var lookup shopifyVariantListResponse
	resp, err := a.request(creds).
		SetContext(ctx).
		SetQueryParam("sku", sku).
		SetResult(&lookup).
		Get(base + "/variants.json")
	if err != nil {
		return wrapTransportErr(sync.PlatformShopify, err)
	}
	if resp.IsError() {
		return apiErr(sync.PlatformShopify, resp)
	}
	if len(lookup.Variants) == 0 {
		return sync.NewAdapterError(sync.PlatformShopify, 404, fmt.Sprintf("no variant with sku %q", sku))
	}

	resp, err = a.request(creds).
		SetContext(ctx).
		SetBody(map[string]any{
			"inventory_item_id": lookup.Variants[0].InventoryItemID,
			"available":         quantity,
		}).
		Post(base + "/inventory_levels/set.json")
	if err != nil {
		return wrapTransportErr(sync.PlatformShopify, err)
	}
	if resp.IsError() {
		return apiErr(sync.PlatformShopify, resp)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Credential lifecycle
// ---------------------------------------------------------------------------

// RefreshCredentials is unsupported: Shopify access tokens are permanent
func (a *ShopifyAdapter) RefreshCredentials(_ context.Context, _ *sync.Credentials) (*sync.Credentials, error) {
	return nil, sync.ErrRefreshNotSupported
}

// AuthorizeURL builds the shop's OAuth consent URL
func (a *ShopifyAdapter) AuthorizeURL(state, redirectURI, _ string) string {
	q := url.Values{}
	q.Set("client_id", a.cfg.ClientID)
	q.Set("scope", strings.Join(a.cfg.Scopes, ","))
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	return a.authBaseURL() + "/admin/oauth/authorize?" + q.Encode()
}

func (a *ShopifyAdapter) authBaseURL() string {
	if a.cfg.APIBaseURL != "" {
		return a.cfg.APIBaseURL
	}
	return "https://admin.shopify.com"
}

// ExchangeCode trades the authorization code for a permanent access token
func (a *ShopifyAdapter) ExchangeCode(ctx context.Context, code, _ string, _ string) (*sync.Credentials, error) {
	var body shopifyTokenResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"client_id":     a.cfg.ClientID,
			"client_secret": a.cfg.ClientSecret,
			"code":          code,
		}).
		SetResult(&body).
		Post(a.authBaseURL() + "/admin/oauth/access_token")
	if err != nil {
		return nil, wrapTransportErr(sync.PlatformShopify, err)
	}
	if resp.IsError() {
		return nil, apiErr(sync.PlatformShopify, resp)
	}
	if body.AccessToken == "" {
		return nil, sync.ErrPlatformInvalidResponse
	}
	return &sync.Credentials{
		AccessToken: body.AccessToken,
		Scope:       body.Scope,
	}, nil
}

// RequiresPKCE reports that Shopify's flow does not use PKCE
func (a *ShopifyAdapter) RequiresPKCE() bool {
	return false
}

// ---------------------------------------------------------------------------
// Webhook verification
// ---------------------------------------------------------------------------

// shopifyTopicMap maps Shopify webhook topics to canonical event types
var shopifyTopicMap = map[string]sync.WebhookEventType{
	"orders/create":           sync.WebhookEventOrderCreated,
	"orders/updated":          sync.WebhookEventOrderUpdated,
	"orders/fulfilled":        sync.WebhookEventOrderUpdated,
	"orders/cancelled":        sync.WebhookEventOrderUpdated,
	"products/update":         sync.WebhookEventProductUpdated,
	"inventory_levels/update": sync.WebhookEventInventoryUpdated,
}

// VerifyWebhook checks the HMAC signature over the raw body and classifies
// the delivery by topic.
func (a *ShopifyAdapter) VerifyWebhook(req *sync.WebhookRequest) (*sync.WebhookEvent, error) {
	if !verifyHMACBase64(a.cfg.ClientSecret, req.Body, req.Header("X-Shopify-Hmac-Sha256")) {
		return nil, sync.ErrInvalidSignature
	}

	topic := req.Header("X-Shopify-Topic")
	eventType, ok := shopifyTopicMap[topic]
	if !ok {
		return nil, sync.ErrUnknownWebhookEvent
	}

	return &sync.WebhookEvent{
		Platform:   sync.PlatformShopify,
		EventType:  eventType,
		SourceID:   req.Header("X-Shopify-Shop-Domain"),
		DeliveryID: req.Header("X-Shopify-Webhook-Id"),
		Payload:    req.Body,
	}, nil
}

// AnswerChallenge is unsupported: Shopify has no challenge handshake
func (a *ShopifyAdapter) AnswerChallenge(_ *sync.WebhookRequest) (string, error) {
	return "", sync.ErrChallengeUnsupported
}

// nextLinkCursor extracts the page_info cursor from a Shopify Link header,
// empty when there is no rel="next" entry.
func nextLinkCursor(link string) string {
	for _, part := range strings.Split(link, ",") {
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		start := strings.Index(part, "<")
		end := strings.Index(part, ">")
		if start < 0 || end <= start {
			continue
		}
		u, err := url.Parse(part[start+1 : end])
		if err != nil {
			continue
		}
		return u.Query().Get("page_info")
	}
	return ""
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type shopifyVariant struct {
	ID                int64  `json:"id"`
	SKU               string `json:"sku"`
	Price             string `json:"price"`
	InventoryQuantity int    `json:"inventory_quantity"`
	InventoryItemID   int64  `json:"inventory_item_id"`
}

type shopifyProduct struct {
	ID       int64            `json:"id"`
	Title    string           `json:"title"`
	Status   string           `json:"status"`
	Variants []shopifyVariant `json:"variants"`
}

type shopifyProductListResponse struct {
	Products []shopifyProduct `json:"products"`
}

type shopifyProductResponse struct {
	Product *shopifyProduct `json:"product"`
}

type shopifyVariantListResponse struct {
	Variants []shopifyVariant `json:"variants"`
}

type shopifyCustomer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type shopifyAddress struct {
	Address1 string `json:"address1"`
	City     string `json:"city"`
	Province string `json:"province"`
	Zip      string `json:"zip"`
	Country  string `json:"country"`
}

type shopifyLineItem struct {
	ID       int64  `json:"id"`
	SKU      string `json:"sku"`
	Title    string `json:"title"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
}

type shopifyOrder struct {
	ID                int64             `json:"id"`
	Email             string            `json:"email"`
	Currency          string            `json:"currency"`
	TotalPrice        string            `json:"total_price"`
	FinancialStatus   string            `json:"financial_status"`
	FulfillmentStatus string            `json:"fulfillment_status"`
	CancelledAt       *time.Time        `json:"cancelled_at"`
	CreatedAt         time.Time         `json:"created_at"`
	Customer          *shopifyCustomer  `json:"customer"`
	ShippingAddress   *shopifyAddress   `json:"shipping_address"`
	LineItems         []shopifyLineItem `json:"line_items"`
}

type shopifyOrderListResponse struct {
	Orders []shopifyOrder `json:"orders"`
}

type shopifyTokenResponse struct {
	AccessToken string `json:"access_token"`
	Scope       string `json:"scope"`
}

// shopifyProductPayload builds the product create/update request body
func shopifyProductPayload(draft sync.ListingDraft) map[string]any {
	return map[string]any{
		"product": map[string]any{
			"title":     draft.Title,
			"body_html": draft.Description,
			"status":    "active",
			"variants": []map[string]any{{
				"sku":                draft.SKU,
				"price":              draft.Price.StringFixed(2),
				"inventory_quantity": draft.Quantity,
			}},
		},
	}
}

// Ensure ShopifyAdapter implements PlatformAdapter
var _ sync.PlatformAdapter = (*ShopifyAdapter)(nil)
