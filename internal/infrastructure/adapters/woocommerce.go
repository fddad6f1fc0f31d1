package adapters

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/sync"
	"github.com/channelhub/backend/internal/infrastructure/config"
)

const wooAPIPrefix = "/wp-json/wc/v3"

// WooCommerceAdapter implements PlatformAdapter for WooCommerce stores.
// WooCommerce has no central host: every connection carries its own site
// URL, and auth is a long-lived consumer key/secret pair sent as basic
// auth. The pair is stored in the access and refresh token slots.
type WooCommerceAdapter struct {
	cfg    config.PlatformCredentials
	client *resty.Client
	log    *zap.Logger
}

// NewWooCommerceAdapter creates a new WooCommerce adapter
func NewWooCommerceAdapter(cfg config.PlatformCredentials, log *zap.Logger) *WooCommerceAdapter {
	return &WooCommerceAdapter{
		cfg:    cfg,
		client: newRestyClient(),
		log:    log.Named("woocommerce"),
	}
}

// Platform returns the platform this adapter handles
func (a *WooCommerceAdapter) Platform() sync.Platform {
	return sync.PlatformWooCommerce
}

// siteBaseURL resolves the store's REST root from the connection metadata
func (a *WooCommerceAdapter) siteBaseURL(creds *sync.Credentials) (string, error) {
	if a.cfg.APIBaseURL != "" {
		return a.cfg.APIBaseURL + wooAPIPrefix, nil
	}
	site := creds.Metadata[sync.MetadataShopDomain]
	if site == "" {
		return "", sync.ErrCredentialsMissing
	}
	if !strings.HasPrefix(site, "http") {
		site = "https://" + site
	}
	return strings.TrimRight(site, "/") + wooAPIPrefix, nil
}

// consumer key as username, consumer secret as password
func (a *WooCommerceAdapter) request(creds *sync.Credentials) *resty.Request {
	return a.client.R().SetBasicAuth(creds.AccessToken, creds.RefreshToken)
}

// ---------------------------------------------------------------------------
// Catalog operations
// ---------------------------------------------------------------------------

// FetchProducts returns one page of store products. WooCommerce paginates
// with a numeric page carried as the opaque cursor, starting at 1.
func (a *WooCommerceAdapter) FetchProducts(ctx context.Context, creds *sync.Credentials, cursor string) (*sync.ProductPage, error) {
	base, err := a.siteBaseURL(creds)
	if err != nil {
		return nil, err
	}

	pageNum := 1
	if cursor != "" {
		pageNum, _ = strconv.Atoi(cursor)
		if pageNum < 1 {
			pageNum = 1
		}
	}

	var body []wooProduct
	resp, err := a.request(creds).
		SetContext(ctx).
		SetQueryParam("per_page", strconv.Itoa(defaultPageSize)).
		SetQueryParam("page", strconv.Itoa(pageNum)).
		SetResult(&body).
		Get(base + "/products")
	if err != nil {
		return nil, wrapTransportErr(sync.PlatformWooCommerce, err)
	}
	if resp.IsError() {
		return nil, apiErr(sync.PlatformWooCommerce, resp)
	}

	page := &sync.ProductPage{Products: make([]sync.PlatformProduct, 0, len(body))}
	for _, p := range body {
		price, _ := decimal.NewFromString(p.Price)
		quantity := 0
		if p.StockQuantity != nil {
			quantity = *p.StockQuantity
		}
		page.Products = append(page.Products, sync.PlatformProduct{
			PlatformProductID: strconv.FormatInt(p.ID, 10),
			SKU:               p.SKU,
			Title:             p.Name,
			Price:             price,
			Quantity:          quantity,
			Active:            p.Status == "publish",
		})
	}

	if len(body) == defaultPageSize {
		page.NextCursor = strconv.Itoa(pageNum + 1)
		page.HasMore = true
	}
	return page, nil
}

// CreateListing publishes a product in the store
func (a *WooCommerceAdapter) CreateListing(ctx context.Context, creds *sync.Credentials, draft sync.ListingDraft) (string, error) {
	base, err := a.siteBaseURL(creds)
	if err != nil {
		return "", err
	}

	var body wooProduct
	resp, err := a.request(creds).
		SetContext(ctx).
		SetBody(wooProductPayload(draft)).
		SetResult(&body).
		Post(base + "/products")
	if err != nil {
		return "", wrapTransportErr(sync.PlatformWooCommerce, err)
	}
	if resp.IsError() {
		return "", apiErr(sync.PlatformWooCommerce, resp)
	}
	if body.ID == 0 {
		return "", sync.ErrPlatformInvalidResponse
	}
	return strconv.FormatInt(body.ID, 10), nil
}

// UpdateListing updates an existing product
func (a *WooCommerceAdapter) UpdateListing(ctx context.Context, creds *sync.Credentials, platformListingID string, draft sync.ListingDraft) error {
	base, err := a.siteBaseURL(creds)
	if err != nil {
		return err
	}

	resp, err := a.request(creds).
		SetContext(ctx).
		SetBody(wooProductPayload(draft)).
		Put(base + "/products/" + platformListingID)
	if err != nil {
		return wrapTransportErr(sync.PlatformWooCommerce, err)
	}
	if resp.IsError() {
		return apiErr(sync.PlatformWooCommerce, resp)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Order operations
// ---------------------------------------------------------------------------

// wooStatusMap maps WooCommerce order statuses to the canonical vocabulary
var wooStatusMap = map[string]sync.OrderStatus{
	"pending":    sync.OrderStatusPending,
	"on-hold":    sync.OrderStatusPending,
	"processing": sync.OrderStatusProcessing,
	"completed":  sync.OrderStatusDelivered,
	"cancelled":  sync.OrderStatusCancelled,
	"failed":     sync.OrderStatusCancelled,
	"refunded":   sync.OrderStatusRefunded,
}

// FetchOrders returns one page of orders created after the filter bound
func (a *WooCommerceAdapter) FetchOrders(ctx context.Context, creds *sync.Credentials, filter sync.OrderFilter) (*sync.OrderPage, error) {
	base, err := a.siteBaseURL(creds)
	if err != nil {
		return nil, err
	}

	pageNum := 1
	if filter.Cursor != "" {
		pageNum, _ = strconv.Atoi(filter.Cursor)
		if pageNum < 1 {
			pageNum = 1
		}
	}
	pageSize := clampPageSize(filter.PageSize, 100)

	req := a.request(creds).
		SetContext(ctx).
		SetQueryParam("per_page", strconv.Itoa(pageSize)).
		SetQueryParam("page", strconv.Itoa(pageNum))
	if !filter.CreatedAfter.IsZero() {
		req.SetQueryParam("after", filter.CreatedAfter.UTC().Format(time.RFC3339))
	}

	var body []wooOrder
	resp, err := req.SetResult(&body).Get(base + "/orders")
	if err != nil {
		return nil, wrapTransportErr(sync.PlatformWooCommerce, err)
	}
	if resp.IsError() {
		return nil, apiErr(sync.PlatformWooCommerce, resp)
	}

	page := &sync.OrderPage{Orders: make([]sync.PlatformOrder, 0, len(body))}
	for _, o := range body {
		page.Orders = append(page.Orders, a.normalizeOrder(o))
	}
	if len(body) == pageSize {
		page.NextCursor = strconv.Itoa(pageNum + 1)
		page.HasMore = true
	}
	return page, nil
}

func (a *WooCommerceAdapter) normalizeOrder(o wooOrder) sync.PlatformOrder {
	total, _ := decimal.NewFromString(o.Total)
	order := sync.PlatformOrder{
		PlatformOrderID: strconv.FormatInt(o.ID, 10),
		Status:          a.mapStatus(o.Status),
		CustomerName:    strings.TrimSpace(o.Billing.FirstName + " " + o.Billing.LastName),
		CustomerEmail:   o.Billing.Email,
		ShippingAddress: strings.TrimSpace(strings.Join([]string{
			o.Shipping.Address1,
			o.Shipping.City,
			o.Shipping.State,
			o.Shipping.Postcode,
			o.Shipping.Country,
		}, ", ")),
		Currency:        o.Currency,
		Total:           total,
		PlacedAt:        o.DateCreated,
		Items:           make([]sync.PlatformOrderItem, 0, len(o.LineItems)),
	}
	for _, li := range o.LineItems {
		unitPrice, _ := decimal.NewFromString(li.Price)
		order.Items = append(order.Items, sync.PlatformOrderItem{
			PlatformLineItemID: strconv.FormatInt(li.ID, 10),
			SKU:                li.SKU,
			Title:              li.Name,
			Quantity:           li.Quantity,
			UnitPrice:          unitPrice,
		})
	}
	return order
}

func (a *WooCommerceAdapter) mapStatus(native string) sync.OrderStatus {
	if status, ok := wooStatusMap[strings.ToLower(native)]; ok {
		return status
	}
	a.log.Warn("unmapped order status", zap.String("native_status", native))
	return sync.OrderStatusPending
}

// ---------------------------------------------------------------------------
// Inventory operations
// ---------------------------------------------------------------------------

// UpdateInventory sets the stock quantity on the product matching the SKU
func (a *WooCommerceAdapter) UpdateInventory(ctx context.Context, creds *sync.Credentials, sku string, quantity int) error {
	base, err := a.siteBaseURL(creds)
	if err != nil {
		return err
	}

	var lookup []wooProduct
	resp, err := a.request(creds).
		SetContext(ctx).
		SetQueryParam("sku", sku).
		SetResult(&lookup).
		Get(base + "/products")
	if err != nil {
		return wrapTransportErr(sync.PlatformWooCommerce, err)
	}
	if resp.IsError() {
		return apiErr(sync.PlatformWooCommerce, resp)
	}
	if len(lookup) == 0 {
		return sync.NewAdapterError(sync.PlatformWooCommerce, 404, fmt.Sprintf("no product with sku %q", sku))
	}

	resp, err = a.request(creds).
		SetContext(ctx).
		SetBody(map[string]any{
			"manage_stock":   true,
			"stock_quantity": quantity,
		}).
		Put(fmt.Sprintf("%s/products/%d", base, lookup[0].ID))
	if err != nil {
		return wrapTransportErr(sync.PlatformWooCommerce, err)
	}
	if resp.IsError() {
		return apiErr(sync.PlatformWooCommerce, resp)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Credential lifecycle
// ---------------------------------------------------------------------------

// RefreshCredentials is unsupported: the consumer key pair does not expire
func (a *WooCommerceAdapter) RefreshCredentials(_ context.Context, _ *sync.Credentials) (*sync.Credentials, error) {
	return nil, sync.ErrRefreshNotSupported
}

// AuthorizeURL builds the store's REST API key authorization endpoint.
// The store returns the generated key pair to the callback URL.
func (a *WooCommerceAdapter) AuthorizeURL(state, redirectURI, _ string) string {
	site := a.cfg.APIBaseURL
	if site == "" {
		site = "https://example.com"
	}
	return fmt.Sprintf("%s/wc-auth/v1/authorize?app_name=ChannelHub&scope=read_write&user_id=%s&return_url=%s&callback_url=%s",
		strings.TrimRight(site, "/"), state, redirectURI, redirectURI)
}

// ExchangeCode is not an OAuth exchange for WooCommerce. The store posts
// the consumer key pair to the callback as "key:secret", which is split
// into the access and refresh token slots.
func (a *WooCommerceAdapter) ExchangeCode(_ context.Context, code, _, _ string) (*sync.Credentials, error) {
	key, secret, ok := strings.Cut(code, ":")
	if !ok || key == "" || secret == "" {
		return nil, sync.ErrPlatformInvalidResponse
	}
	return &sync.Credentials{
		AccessToken:  key,
		RefreshToken: secret,
	}, nil
}

// RequiresPKCE reports that WooCommerce's flow does not use PKCE
func (a *WooCommerceAdapter) RequiresPKCE() bool {
	return false
}

// ---------------------------------------------------------------------------
// Webhook verification
// ---------------------------------------------------------------------------

// wooTopicMap maps X-WC-Webhook-Topic values to event types
var wooTopicMap = map[string]sync.WebhookEventType{
	"order.created":   sync.WebhookEventOrderCreated,
	"order.updated":   sync.WebhookEventOrderUpdated,
	"product.updated": sync.WebhookEventProductUpdated,
	"product.created": sync.WebhookEventProductUpdated,
}

// VerifyWebhook checks the X-WC-Webhook-Signature header, a base64 HMAC
// SHA-256 over the raw body keyed with the webhook secret
func (a *WooCommerceAdapter) VerifyWebhook(req *sync.WebhookRequest) (*sync.WebhookEvent, error) {
	signature := req.Header("X-WC-Webhook-Signature")
	if signature == "" || !verifyHMACBase64(a.cfg.ClientSecret, req.Body, signature) {
		return nil, sync.ErrInvalidSignature
	}

	topic := req.Header("X-WC-Webhook-Topic")
	eventType, ok := wooTopicMap[topic]
	if !ok {
		return nil, sync.ErrUnknownWebhookEvent
	}

	return &sync.WebhookEvent{
		Platform:   sync.PlatformWooCommerce,
		EventType:  eventType,
		SourceID:   req.Header("X-WC-Webhook-Source"),
		DeliveryID: req.Header("X-WC-Webhook-Delivery-ID"),
		Payload:    req.Body,
	}, nil
}

// AnswerChallenge is unsupported: WooCommerce has no challenge handshake
func (a *WooCommerceAdapter) AnswerChallenge(_ *sync.WebhookRequest) (string, error) {
	return "", sync.ErrChallengeUnsupported
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

func wooProductPayload(draft sync.ListingDraft) map[string]any {
	return map[string]any{
		"name":           draft.Title,
		"description":    draft.Description,
		"sku":            draft.SKU,
		"regular_price":  draft.Price.StringFixed(2),
		"manage_stock":   true,
		"stock_quantity": draft.Quantity,
		"status":         "publish",
	}
}

type wooProduct struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	SKU           string `json:"sku"`
	Price         string `json:"price"`
	Status        string `json:"status"`
	StockQuantity *int   `json:"stock_quantity"`
}

type wooAddress struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Address1  string `json:"address_1"`
	City      string `json:"city"`
	State     string `json:"state"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
	Email     string `json:"email"`
}

type wooOrder struct {
	ID          int64      `json:"id"`
	Status      string     `json:"status"`
	Currency    string     `json:"currency"`
	Total       string     `json:"total"`
	DateCreated time.Time  `json:"date_created_gmt"`
	Billing     wooAddress `json:"billing"`
	Shipping    wooAddress `json:"shipping"`
	LineItems   []struct {
		ID       int64  `json:"id"`
		Name     string `json:"name"`
		SKU      string `json:"sku"`
		Quantity int    `json:"quantity"`
		Price    string `json:"price"`
	} `json:"line_items"`
}

// Ensure WooCommerceAdapter implements PlatformAdapter
var _ sync.PlatformAdapter = (*WooCommerceAdapter)(nil)
